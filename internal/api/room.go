package api

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/jonboulle/clockwork"
	"github.com/lalith-99/focusroom/internal/account"
	"github.com/lalith-99/focusroom/internal/middleware"
	"github.com/lalith-99/focusroom/internal/models"
	"github.com/lalith-99/focusroom/internal/room"
	"github.com/lalith-99/focusroom/internal/roomstore"
	"go.uber.org/zap"
)

// RoomHandler exposes the room core over HTTP. The core's registry is
// built per request around the authenticated account, because the
// registry's idea of "who is signed in" is per client, not per server.
type RoomHandler struct {
	store     roomstore.Store
	durations models.Durations
	clock     clockwork.Clock
	sessions  *SessionManager
	logger    *zap.Logger
}

func NewRoomHandler(store roomstore.Store, durations models.Durations, clock clockwork.Clock, sessions *SessionManager, logger *zap.Logger) *RoomHandler {
	return &RoomHandler{
		store:     store,
		durations: durations,
		clock:     clock,
		sessions:  sessions,
		logger:    logger,
	}
}

func (h *RoomHandler) registryFor(acct *account.Account) *room.Registry {
	return room.NewRegistry(h.store, account.NewStaticProvider(acct), h.durations, h.clock, h.logger)
}

type joinRequest struct {
	Password string `json:"password"`
}

type roomResponse struct {
	Room     models.Room `json:"room"`
	Degraded bool        `json:"degraded"`
}

// Create handles POST /v1/rooms.
func (h *RoomHandler) Create(c *gin.Context) {
	acct := middleware.GetAccount(c)
	if acct == nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "authentication required"})
		return
	}
	var cfg room.Config
	if err := c.ShouldBindJSON(&cfg); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	sess, err := h.registryFor(acct).CreateRoom(c.Request.Context(), cfg)
	if err != nil {
		h.fail(c, err, "create room")
		return
	}
	h.install(c, acct, sess)
	c.JSON(http.StatusCreated, roomResponse{Room: sess.Room(), Degraded: sess.Degraded()})
}

// Get handles GET /v1/rooms/:id — the existence check behind the
// shareable /room/{id} link. Password never appears in the response;
// only the hasPassword flag tells the client to prompt.
func (h *RoomHandler) Get(c *gin.Context) {
	acct := middleware.GetAccount(c)
	if acct == nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "authentication required"})
		return
	}
	found, err := h.registryFor(acct).CheckRoomExists(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.fail(c, err, "get room")
		return
	}
	c.JSON(http.StatusOK, found.Sanitized())
}

// Join handles POST /v1/rooms/:id/join. Joining while already in a
// different room leaves that room first; joining the current room
// again is idempotent.
func (h *RoomHandler) Join(c *gin.Context) {
	acct := middleware.GetAccount(c)
	if acct == nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "authentication required"})
		return
	}
	var req joinRequest
	if err := c.ShouldBindJSON(&req); err != nil && c.Request.ContentLength > 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	roomID := c.Param("id")
	if existing := h.sessions.Get(acct.UID); existing != nil && existing.RoomID() == roomID {
		c.JSON(http.StatusOK, roomResponse{Room: existing.Room(), Degraded: existing.Degraded()})
		return
	}

	sess, err := h.registryFor(acct).JoinRoom(c.Request.Context(), roomID, req.Password)
	if err != nil {
		h.fail(c, err, "join room")
		return
	}
	h.install(c, acct, sess)
	c.JSON(http.StatusOK, roomResponse{Room: sess.Room(), Degraded: sess.Degraded()})
}

// Leave handles POST /v1/rooms/:id/leave. The local session is always
// gone afterwards; a failed remote cleanup is reported but does not
// keep the user in the room.
func (h *RoomHandler) Leave(c *gin.Context) {
	acct := middleware.GetAccount(c)
	if acct == nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "authentication required"})
		return
	}
	sess := h.sessions.Get(acct.UID)
	if sess == nil || sess.RoomID() != c.Param("id") {
		c.JSON(http.StatusNotFound, gin.H{"error": "not in this room"})
		return
	}
	err := sess.Leave(c.Request.Context())
	h.sessions.Remove(acct.UID, sess)
	if err != nil {
		h.logger.Warn("remote leave incomplete", zap.Error(err))
		c.JSON(http.StatusOK, gin.H{"left": true, "remote_clean": false})
		return
	}
	c.JSON(http.StatusOK, gin.H{"left": true, "remote_clean": true})
}

// Messages handles GET /v1/rooms/:id/messages — the chat backlog for a
// participant, timestamp ascending.
func (h *RoomHandler) Messages(c *gin.Context) {
	acct := middleware.GetAccount(c)
	if acct == nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "authentication required"})
		return
	}
	msgs, err := h.registryFor(acct).Messages(c.Request.Context(), c.Param("id"), acct.UID)
	if err != nil {
		h.fail(c, err, "list messages")
		return
	}
	c.JSON(http.StatusOK, msgs)
}

// install swaps the new session in and leaves any displaced one.
func (h *RoomHandler) install(c *gin.Context, acct *account.Account, sess *room.Session) {
	if old := h.sessions.Swap(acct.UID, sess); old != nil {
		if err := old.Leave(c.Request.Context()); err != nil {
			h.logger.Warn("leaving previous room incomplete",
				zap.String("room_id", old.RoomID()), zap.Error(err))
		}
	}
}

// fail maps the room taxonomy onto status codes. Blocked actions get
// an explicit, immediate answer; store trouble is a 503.
func (h *RoomHandler) fail(c *gin.Context, err error, op string) {
	switch {
	case errors.Is(err, room.ErrAuthenticationRequired):
		c.JSON(http.StatusUnauthorized, gin.H{"error": "authentication required"})
	case errors.Is(err, room.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "room not found"})
	case errors.Is(err, room.ErrWrongPassword):
		c.JSON(http.StatusForbidden, gin.H{"error": "wrong password"})
	case errors.Is(err, room.ErrRoomFull):
		c.JSON(http.StatusConflict, gin.H{"error": "room is full"})
	case errors.Is(err, room.ErrInvalidConfig):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.Is(err, room.ErrStoreUnavailable):
		h.logger.Error("store unavailable", zap.String("op", op), zap.Error(err))
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "store unavailable"})
	default:
		h.logger.Error("unexpected failure", zap.String("op", op), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
	}
}
