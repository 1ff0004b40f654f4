package contracts

import (
	"context"
	"time"
)

// Envelope carries one raw HL7 message from a source.
type Envelope struct {
	Raw      string    `json:"raw"`
	Origin   string    `json:"origin"`
	Received time.Time `json:"received"`
}

// Record is one row of extracted path values.
type Record map[string]string

type SourceOption struct {
	Limit int
}

// Option configures a single Extract call.
type Option func(*SourceOption)

// WithLimit stops extraction after n messages. Zero means no limit.
func WithLimit(n int) Option {
	return func(o *SourceOption) {
		o.Limit = n
	}
}

// ApplyOptions folds opts into a SourceOption.
func ApplyOptions(opts ...Option) SourceOption {
	var o SourceOption
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

type Source interface {
	Setup(ctx context.Context) error
	Extract(ctx context.Context, opts ...Option) (<-chan Envelope, error)
	Close() error
}

type Loader interface {
	Setup(ctx context.Context) error
	StoreBatch(ctx context.Context, batch []Record) error
	StoreSingle(ctx context.Context, rec Record) error
	Close() error
}
