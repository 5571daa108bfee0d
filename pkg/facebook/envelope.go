package facebook

import (
	"encoding/json"
	"fmt"
)

// envelopePrefix guards the JSON bodies against being executed as script.
const envelopePrefix = "for (;;);"

// Family selects where an envelope carries its markup.
type Family int

// Envelope families.
const (
	// FamilyTimeline nests markup at domops[0][3].__html.
	FamilyTimeline Family = iota
	// FamilyNotes carries markup directly in payload.
	FamilyNotes
)

func (f Family) String() string {
	switch f {
	case FamilyTimeline:
		return "timeline"
	case FamilyNotes:
		return "notes"
	default:
		return fmt.Sprintf("family(%d)", int(f))
	}
}

// Unwrap strips the guard prefix from raw, decodes the JSON envelope and
// returns the markup it carries.
func Unwrap(raw []byte, family Family) (string, error) {
	if len(raw) < len(envelopePrefix) {
		return "", fmt.Errorf("%w: %s body is %d bytes", ErrEnvelope, family, len(raw))
	}
	body := raw[len(envelopePrefix):]

	switch family {
	case FamilyTimeline:
		return unwrapTimeline(body)
	case FamilyNotes:
		return unwrapNotes(body)
	default:
		return "", fmt.Errorf("%w: unknown %s", ErrEnvelope, family)
	}
}

func unwrapTimeline(body []byte) (string, error) {
	var env struct {
		Domops [][]json.RawMessage `json:"domops"`
	}
	if err := json.Unmarshal(body, &env); err != nil {
		return "", fmt.Errorf("%w: timeline: %w", ErrEnvelope, err)
	}
	if len(env.Domops) == 0 || len(env.Domops[0]) < 4 {
		return "", fmt.Errorf("%w: timeline: domops[0][3] absent", ErrEnvelope)
	}

	var op struct {
		HTML *string `json:"__html"`
	}
	if err := json.Unmarshal(env.Domops[0][3], &op); err != nil {
		return "", fmt.Errorf("%w: timeline: domops[0][3]: %w", ErrEnvelope, err)
	}
	if op.HTML == nil {
		return "", fmt.Errorf("%w: timeline: domops[0][3].__html absent", ErrEnvelope)
	}
	return *op.HTML, nil
}

func unwrapNotes(body []byte) (string, error) {
	var env struct {
		Payload *string `json:"payload"`
	}
	if err := json.Unmarshal(body, &env); err != nil {
		return "", fmt.Errorf("%w: notes: %w", ErrEnvelope, err)
	}
	if env.Payload == nil {
		return "", fmt.Errorf("%w: notes: payload absent", ErrEnvelope)
	}
	return *env.Payload, nil
}
