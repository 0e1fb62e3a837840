// Package trace carries the id of the current updater run through a context,
// so logs, slow-query reports and published events of one run can be joined.
package trace

import (
	"context"
	"crypto/rand"
	"encoding/binary"
	"encoding/hex"
	"time"
)

type runIDKey struct{}

// NewRunID returns a random 128-bit id as 32 hex characters. If the system
// random source fails the id is derived from the clock instead.
func NewRunID() string {
	var b [16]byte
	if _, err := rand.Read(b[:]); err != nil {
		binary.BigEndian.PutUint64(b[:8], uint64(time.Now().UnixNano()))
	}
	return hex.EncodeToString(b[:])
}

// WithRunID returns ctx carrying id. An empty id leaves ctx unchanged.
func WithRunID(ctx context.Context, id string) context.Context {
	if id == "" {
		return ctx
	}
	return context.WithValue(ctx, runIDKey{}, id)
}

// RunID returns the run id in ctx, or "".
func RunID(ctx context.Context) string {
	id, _ := ctx.Value(runIDKey{}).(string)
	return id
}
