package inventory

import (
	"time"

	"github.com/google/uuid"
	"github.com/warp/lot-ledger/pkg/logger"
)

// Option configures an Engine.
type Option func(*Engine)

// WithClock replaces time.Now. Tests use it to pin timestamps.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// WithIDGenerator replaces the default UUID v7 generator.
func WithIDGenerator(newID func() string) Option {
	return func(e *Engine) { e.newID = newID }
}

func WithLogger(l *logger.Logger) Option {
	return func(e *Engine) { e.log = l.WithComponent("inventory") }
}

// WithMetadata sets the metadata of the initial empty dataset.
func WithMetadata(meta Metadata, company Company) Option {
	return func(e *Engine) { e.ds = NewDataset(meta, company) }
}

// newID returns a time-ordered UUID so records sort by creation.
func newID() string {
	id, err := uuid.NewV7()
	if err != nil {
		return uuid.NewString()
	}
	return id.String()
}
