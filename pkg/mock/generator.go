// Package mock produces a deterministic synthetic chat stream, used in place
// of a live backend to exercise the relay and the transcript assembler.
package mock

import (
	"context"
	"time"

	"github.com/papercomputeco/typhoon/pkg/chat"
)

const (
	DefaultInterval = 100 * time.Millisecond
	DefaultTicks    = 10

	// DefaultMessage is echoed when the caller supplies no message.
	DefaultMessage = "No message provided"

	initialTokens = 2
	initialSpeed  = 1
)

// Generator emits one initial payload immediately and then one payload per
// interval, each with tokens and tokenSpeed one higher than the previous,
// for a fixed number of ticks.
type Generator struct {
	message  string
	interval time.Duration
	ticks    int
}

type Option func(*Generator)

// WithInterval overrides the tick interval.
func WithInterval(d time.Duration) Option {
	return func(g *Generator) {
		g.interval = d
	}
}

// WithTicks overrides the number of ticks after the initial payload.
func WithTicks(n int) Option {
	return func(g *Generator) {
		g.ticks = n
	}
}

// NewGenerator returns a Generator echoing message.
func NewGenerator(message string, opts ...Option) *Generator {
	if message == "" {
		message = DefaultMessage
	}
	g := &Generator{
		message:  message,
		interval: DefaultInterval,
		ticks:    DefaultTicks,
	}
	for _, opt := range opts {
		opt(g)
	}
	if g.interval <= 0 {
		g.interval = DefaultInterval
	}
	return g
}

// Payloads returns the full sequence Run emits, without the timing.
func (g *Generator) Payloads() []chat.Payload {
	out := make([]chat.Payload, 0, g.ticks+1)
	for i := 0; i <= g.ticks; i++ {
		out = append(out, g.payload(i))
	}
	return out
}

func (g *Generator) payload(tick int) chat.Payload {
	return chat.Payload{
		IsBot:      true,
		Content:    "hey why you send me this? " + g.message,
		Tokens:     initialTokens + tick,
		TokenSpeed: initialSpeed + float64(tick),
	}
}

// Run emits the sequence to emit. It returns nil after the last tick, the
// context's error if ctx is done first, or the first error from emit.
func (g *Generator) Run(ctx context.Context, emit func(chat.Payload) error) error {
	if err := emit(g.payload(0)); err != nil {
		return err
	}

	ticker := time.NewTicker(g.interval)
	defer ticker.Stop()

	for tick := 1; tick <= g.ticks; tick++ {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
		if err := emit(g.payload(tick)); err != nil {
			return err
		}
	}
	return nil
}
