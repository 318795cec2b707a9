package chat

import (
	"encoding/json"
	"fmt"
	"math"
	"strings"
)

// DonePayload is the data of the sentinel event that ends a chat stream.
const DonePayload = "done"

// IsDone reports whether an event's data is the end-of-stream sentinel.
// Backends are allowed to quote it as a JSON string.
func IsDone(data string) bool {
	data = strings.TrimSpace(data)
	return data == DonePayload || data == `"`+DonePayload+`"`
}

// Payload is the JSON body of one non-sentinel stream event.
type Payload struct {
	Content    string  `json:"content"`
	Tokens     int     `json:"tokens"`
	TokenSpeed float64 `json:"tokenSpeed"`

	// IsBot is only set by the mock generator.
	IsBot bool `json:"isbot,omitempty"`
}

// DecodePayload parses the data of a stream event.
func DecodePayload(data string) (Payload, error) {
	var p Payload
	if err := json.Unmarshal([]byte(data), &p); err != nil {
		return Payload{}, fmt.Errorf("%w: %w", ErrMalformedPayload, err)
	}
	return p, nil
}

// Encode returns the payload as event data.
func (p Payload) Encode() (string, error) {
	b, err := json.Marshal(p)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// RoundRate rounds a token rate to 2 decimal places.
func RoundRate(rate float64) float64 {
	return math.Round(rate*100) / 100
}

// Accumulator folds stream payloads into a single turn. Content is
// concatenated in arrival order; token count and token rate are last write
// wins.
type Accumulator struct {
	content strings.Builder
	tokens  int
	rate    float64
	events  int
}

// Apply folds one payload into the accumulator.
func (a *Accumulator) Apply(p Payload) {
	a.content.WriteString(p.Content)
	a.tokens = p.Tokens
	a.rate = RoundRate(p.TokenSpeed)
	a.events++
}

func (a *Accumulator) Content() string {
	return a.content.String()
}

func (a *Accumulator) Tokens() int {
	return a.tokens
}

func (a *Accumulator) Rate() float64 {
	return a.rate
}

// Events returns how many payloads have been applied.
func (a *Accumulator) Events() int {
	return a.events
}

// ApplyTo copies the accumulated state onto m.
func (a *Accumulator) ApplyTo(m *Message) {
	m.Content = a.Content()
	m.TokenCount = a.tokens
	m.TokenRate = a.rate
}
