// Package dispatch implements the message-send pipeline: cache lookup,
// a single completion request on a miss, and caching of the result.
package dispatch

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/pario-ai/chatline/pkg/cache/memory"
	"github.com/pario-ai/chatline/pkg/models"
	"github.com/pario-ai/chatline/pkg/provider"
)

// Completer performs one completion request.
type Completer interface {
	Complete(ctx context.Context, systemPrompt, userMessage string) (*provider.Completion, error)
}

// Recorder stores usage for requests that reached the network.
type Recorder interface {
	Record(ctx context.Context, rec models.UsageRecord) error
}

// Dispatcher resolves a user message to completion text.
type Dispatcher struct {
	cache    *memory.Cache
	client   Completer
	ttl      time.Duration
	recorder Recorder
	log      zerolog.Logger
}

// Option configures a Dispatcher.
type Option func(*Dispatcher)

// WithTTL overrides the cache TTL used for stored completions.
func WithTTL(ttl time.Duration) Option {
	return func(d *Dispatcher) { d.ttl = ttl }
}

// WithRecorder records usage for every network round trip.
func WithRecorder(r Recorder) Option {
	return func(d *Dispatcher) { d.recorder = r }
}

// WithLogger sets the logger.
func WithLogger(l zerolog.Logger) Option {
	return func(d *Dispatcher) { d.log = l }
}

// New creates a Dispatcher. A nil cache disables caching.
func New(cache *memory.Cache, client Completer, opts ...Option) *Dispatcher {
	d := &Dispatcher{
		cache:  cache,
		client: client,
		log:    zerolog.Nop(),
	}
	if cache != nil {
		d.ttl = cache.TTL()
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Send returns the completion for userMessage under systemPrompt. A cached
// answer is returned without touching the network. On a miss exactly one
// request is made; a successful answer is cached, a failure is returned as is.
// Send does not validate or trim userMessage.
func (d *Dispatcher) Send(ctx context.Context, userMessage, systemPrompt string) (string, error) {
	key := memory.Key{SystemPrompt: systemPrompt, UserMessage: userMessage}
	keyHash := key.Hash()

	if d.cache != nil {
		if text, ok := d.cache.Get(key); ok {
			d.log.Debug().Str("key_hash", keyHash).Str("cache", "hit").Msg("dispatch")
			return text, nil
		}
	}

	start := time.Now()
	out, err := d.client.Complete(ctx, systemPrompt, userMessage)
	latency := time.Since(start)
	if err != nil {
		d.log.Warn().Err(err).
			Str("key_hash", keyHash).
			Int64("latency_ms", latency.Milliseconds()).
			Msg("completion request failed")
		return "", err
	}

	if d.cache != nil {
		d.cache.Put(key, out.Text, d.ttl)
	}

	d.log.Info().
		Str("key_hash", keyHash).
		Str("cache", "miss").
		Str("model", out.Model).
		Str("request_id", out.RequestID).
		Int("total_tokens", out.Usage.TotalTokens).
		Int64("latency_ms", latency.Milliseconds()).
		Msg("dispatch")

	if d.recorder != nil {
		rec := models.UsageRecord{
			ID:               uuid.NewString(),
			Model:            out.Model,
			KeyHash:          keyHash,
			PromptTokens:     out.Usage.PromptTokens,
			CompletionTokens: out.Usage.CompletionTokens,
			TotalTokens:      out.Usage.TotalTokens,
			LatencyMs:        latency.Milliseconds(),
			CreatedAt:        time.Now().UTC(),
		}
		if err := d.recorder.Record(context.WithoutCancel(ctx), rec); err != nil {
			d.log.Warn().Err(err).Msg("record usage")
		}
	}

	return out.Text, nil
}
