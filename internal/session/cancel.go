package session

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Token pins one session generation. Store mutations and state
// transitions are accepted only from the live token, so work belonging
// to a superseded session can never write anything observable.
type Token struct {
	id     uuid.UUID
	ctx    context.Context
	cancel context.CancelFunc
}

// ID is the session id the token was issued for.
func (t *Token) ID() uuid.UUID { return t.id }

// Context carries the session's lifetime. It dies on Stop, on a new
// Submit, and when the maximum session duration elapses.
func (t *Token) Context() context.Context { return t.ctx }

// tokenSource hands out the live token. Not safe for concurrent use on
// its own; every call happens under the Controller's mutex.
type tokenSource struct {
	cur *Token
}

// Issue cancels the previous token and derives a fresh one bounded by
// ttl, so a stalled session cannot outlive its ceiling.
func (ts *tokenSource) Issue(parent context.Context, ttl time.Duration, id uuid.UUID) *Token {
	if ts.cur != nil {
		ts.cur.cancel()
	}
	ctx, cancel := context.WithTimeout(parent, ttl)
	ts.cur = &Token{id: id, ctx: ctx, cancel: cancel}
	return ts.cur
}

// Invalidate cancels the live token, leaving no session active.
func (ts *tokenSource) Invalidate() {
	if ts.cur != nil {
		ts.cur.cancel()
		ts.cur = nil
	}
}

// Stale reports whether tok has been superseded or invalidated.
func (ts *tokenSource) Stale(tok *Token) bool {
	return ts.cur != tok
}
