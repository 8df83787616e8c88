// Package account is the account/profile collaborator the room core
// consumes: who is signed in right now, and a way to hear about
// sign-in state changes. The core never cares how accounts are stored;
// the gateway wires the Postgres-backed credential store, embedded
// users can hand the core a StaticProvider.
package account

import (
	"strings"
	"sync"
)

// Account identifies a signed-in user.
type Account struct {
	UID         string `json:"uid"`
	DisplayName string `json:"displayName"`
	Email       string `json:"email"`
}

// Name returns the display name, falling back to the local part of the
// email when the profile never set one.
func (a *Account) Name() string {
	if a.DisplayName != "" {
		return a.DisplayName
	}
	if at := strings.IndexByte(a.Email, '@'); at > 0 {
		return a.Email[:at]
	}
	return a.Email
}

// Provider answers "who is signed in" for one client session.
type Provider interface {
	// CurrentAccount returns the signed-in account, or nil.
	CurrentAccount() *Account

	// OnAuthStateChanged registers fn to run on every sign-in or
	// sign-out. The returned func cancels the registration.
	OnAuthStateChanged(fn func(*Account)) func()
}

// StaticProvider holds one account in memory. It serves embedded use
// and tests; the gateway builds one per authenticated request from the
// verified token claims.
type StaticProvider struct {
	mu      sync.Mutex
	current *Account
	subs    map[int]func(*Account)
	next    int
}

func NewStaticProvider(a *Account) *StaticProvider {
	return &StaticProvider{current: a, subs: make(map[int]func(*Account))}
}

func (p *StaticProvider) CurrentAccount() *Account {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.current
}

// SetAccount swaps the signed-in account (nil = signed out) and
// notifies listeners.
func (p *StaticProvider) SetAccount(a *Account) {
	p.mu.Lock()
	p.current = a
	fns := make([]func(*Account), 0, len(p.subs))
	for _, fn := range p.subs {
		fns = append(fns, fn)
	}
	p.mu.Unlock()
	for _, fn := range fns {
		fn(a)
	}
}

func (p *StaticProvider) OnAuthStateChanged(fn func(*Account)) func() {
	p.mu.Lock()
	defer p.mu.Unlock()
	key := p.next
	p.next++
	p.subs[key] = fn
	return func() {
		p.mu.Lock()
		defer p.mu.Unlock()
		delete(p.subs, key)
	}
}
