package ingest

import (
	"context"
	"fmt"

	"github.com/oarkflow/log"

	"github.com/oarkflow/hl7/pkg/contracts"
	"github.com/oarkflow/hl7/pkg/hl7"
	"github.com/oarkflow/hl7/pkg/parsers"
)

// Handler receives every parsed message together with its envelope.
type Handler func(ctx context.Context, env contracts.Envelope, msg *hl7.Message) error

// Summary counts what a Run did.
type Summary struct {
	Received int
	Parsed   int
	Failed   int
}

// Option configures a Runner.
type Option func(*Runner)

// WithLogger sets the logger.
func WithLogger(logger *log.Logger) Option {
	return func(r *Runner) {
		r.logger = logger
	}
}

// WithStopOnError makes Run return on the first parse or handler error.
func WithStopOnError() Option {
	return func(r *Runner) {
		r.stopOnError = true
	}
}

// Runner drains a source, parses each message and hands it on.
type Runner struct {
	parser      *parsers.HL7Parser
	logger      *log.Logger
	stopOnError bool
}

// NewRunner creates a runner using parser.
func NewRunner(parser *parsers.HL7Parser, opts ...Option) *Runner {
	r := &Runner{parser: parser, logger: &log.DefaultLogger}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Run sets up src, consumes it until it is exhausted or ctx is done, and
// closes it.
func (r *Runner) Run(ctx context.Context, src contracts.Source, handle Handler, opts ...contracts.Option) (Summary, error) {
	var summary Summary
	if err := src.Setup(ctx); err != nil {
		return summary, fmt.Errorf("source setup: %w", err)
	}
	defer func() {
		if err := src.Close(); err != nil {
			r.logger.Warn().Err(err).Msg("source close failed")
		}
	}()
	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	envelopes, err := src.Extract(runCtx, opts...)
	if err != nil {
		return summary, fmt.Errorf("source extract: %w", err)
	}
	for env := range envelopes {
		summary.Received++
		msg, err := r.parser.ParseString(env.Raw)
		if err == nil {
			err = handle(runCtx, env, msg)
		}
		if err != nil {
			summary.Failed++
			r.logger.Error().Err(err).Str("origin", env.Origin).Int("message", summary.Received).Msg("message rejected")
			if r.stopOnError {
				return summary, err
			}
			continue
		}
		summary.Parsed++
	}
	r.logger.Info().Int("received", summary.Received).Int("parsed", summary.Parsed).Int("failed", summary.Failed).Msg("source drained")
	return summary, ctx.Err()
}
