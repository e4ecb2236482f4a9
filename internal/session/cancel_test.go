package session

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
)

func TestTokenSourceSupersedes(t *testing.T) {
	var ts tokenSource

	a := ts.Issue(context.Background(), time.Minute, uuid.New())
	assert.False(t, ts.Stale(a))

	b := ts.Issue(context.Background(), time.Minute, uuid.New())
	defer b.cancel()

	assert.True(t, ts.Stale(a))
	assert.False(t, ts.Stale(b))
	assert.Error(t, a.Context().Err())
	assert.NoError(t, b.Context().Err())
}

func TestTokenSourceInvalidate(t *testing.T) {
	var ts tokenSource

	a := ts.Issue(context.Background(), time.Minute, uuid.New())
	ts.Invalidate()

	assert.True(t, ts.Stale(a))
	assert.Error(t, a.Context().Err())
}

func TestTokenExpiryDoesNotSupersede(t *testing.T) {
	var ts tokenSource

	a := ts.Issue(context.Background(), 10*time.Millisecond, uuid.New())
	defer a.cancel()

	select {
	case <-a.Context().Done():
	case <-time.After(time.Second):
		t.Fatal("token context never expired")
	}

	// A timed-out token still identifies the current session; only a new
	// Issue or an Invalidate makes it stale.
	assert.False(t, ts.Stale(a))
}
