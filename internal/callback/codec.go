// ABOUTME: Codec for compact interactive-callback wire payloads.
// ABOUTME: Positional delimited tokens, validated against the platform size ceiling.

package callback

import (
	"fmt"
	"strings"
)

// Delimiter separates wire tokens. Field values must not contain it.
const Delimiter = ":"

// WireLimit is the safe payload ceiling across supported platforms. Telegram
// caps callback data at 64 bytes; 60 leaves headroom for platform framing.
const WireLimit = 60

// Registered callback ids.
const (
	IDApproval       = "approval"
	IDQuestionOption = "question_option"
	IDQuestionDone   = "question_done"
	IDQuestionCustom = "question_custom"
	IDQuestionCancel = "question_cancel"
	IDInterrupt      = "interrupt"
)

// Well-known field names.
const (
	FieldRequestID     = "request_id"
	FieldDecision      = "decision"
	FieldQuestionIndex = "question_index"
	FieldOptionIndex   = "option_index"
)

// Callback is a platform-neutral interactive action: a registered id plus its
// field values.
type Callback struct {
	ID     string
	Fields map[string]string
}

// wireSpec fixes the wire shape of one callback kind: a unique prefix token
// followed by required fields in order, then optional fields in order.
type wireSpec struct {
	id       string
	prefix   string
	required []string
	optional []string
}

// Codec holds the immutable kind registry. Build one at process start and
// share it by reference; it is never mutated afterwards.
type Codec struct {
	byID     map[string]wireSpec
	byPrefix map[string]wireSpec
	limit    int
}

// New builds a codec with the standard kind registry.
func New() *Codec {
	specs := []wireSpec{
		{id: IDApproval, prefix: "a", required: []string{FieldRequestID, FieldDecision}},
		{id: IDQuestionOption, prefix: "qo", required: []string{FieldRequestID, FieldQuestionIndex, FieldOptionIndex}},
		{id: IDQuestionDone, prefix: "qd", required: []string{FieldRequestID, FieldQuestionIndex}},
		{id: IDQuestionCustom, prefix: "qc", required: []string{FieldRequestID, FieldQuestionIndex}},
		{id: IDQuestionCancel, prefix: "qx", required: []string{FieldRequestID}},
		{id: IDInterrupt, prefix: "h", optional: []string{FieldRequestID}},
	}

	c := &Codec{
		byID:     make(map[string]wireSpec, len(specs)),
		byPrefix: make(map[string]wireSpec, len(specs)),
		limit:    WireLimit,
	}
	for _, s := range specs {
		c.byID[s.id] = s
		c.byPrefix[s.prefix] = s
	}
	return c
}

// Encode renders a callback into its wire form. It fails if the id is not
// registered, a required field is missing, any value contains the delimiter,
// or the encoded string would exceed the platform ceiling. The length check
// happens here, before any network call can be attempted with the payload.
func (c *Codec) Encode(cb Callback) (string, error) {
	spec, ok := c.byID[cb.ID]
	if !ok {
		return "", fmt.Errorf("callback: unknown id %q", cb.ID)
	}

	tokens := []string{spec.prefix}
	for _, name := range spec.required {
		v := cb.Fields[name]
		if v == "" {
			return "", fmt.Errorf("callback: %s: missing required field %q", cb.ID, name)
		}
		if strings.Contains(v, Delimiter) {
			return "", fmt.Errorf("callback: %s: field %q contains delimiter", cb.ID, name)
		}
		tokens = append(tokens, v)
	}
	for i, name := range spec.optional {
		v, present := cb.Fields[name]
		if !present {
			// Optionals are positional; once one is absent the rest must be too.
			for _, later := range spec.optional[i+1:] {
				if _, ok := cb.Fields[later]; ok {
					return "", fmt.Errorf("callback: %s: optional field %q set without %q", cb.ID, later, name)
				}
			}
			break
		}
		if v == "" || strings.Contains(v, Delimiter) {
			return "", fmt.Errorf("callback: %s: invalid optional field %q", cb.ID, name)
		}
		tokens = append(tokens, v)
	}

	for name := range cb.Fields {
		if !contains(spec.required, name) && !contains(spec.optional, name) {
			return "", fmt.Errorf("callback: %s: unknown field %q", cb.ID, name)
		}
	}

	wire := strings.Join(tokens, Delimiter)
	if len(wire) > c.limit {
		return "", fmt.Errorf("callback: %s: encoded payload %d bytes exceeds limit %d", cb.ID, len(wire), c.limit)
	}
	return wire, nil
}

// Decode parses a wire payload back into a callback. Any mismatch — unknown
// prefix, wrong token count, empty token — returns ok=false. Decode never
// returns an error: a payload this codec did not produce is simply not ours.
func (c *Codec) Decode(wire string) (Callback, bool) {
	if wire == "" || len(wire) > c.limit {
		return Callback{}, false
	}

	tokens := strings.Split(wire, Delimiter)
	spec, ok := c.byPrefix[tokens[0]]
	if !ok {
		return Callback{}, false
	}

	got := len(tokens) - 1
	if got < len(spec.required) || got > len(spec.required)+len(spec.optional) {
		return Callback{}, false
	}

	fields := make(map[string]string, got)
	rest := tokens[1:]
	for i, name := range spec.required {
		if rest[i] == "" {
			return Callback{}, false
		}
		fields[name] = rest[i]
	}
	rest = rest[len(spec.required):]
	for i, v := range rest {
		if v == "" {
			return Callback{}, false
		}
		fields[spec.optional[i]] = v
	}

	return Callback{ID: spec.id, Fields: fields}, true
}

// DecodeID is a cheap probe that returns only the callback id for a wire
// payload, used by the dispatcher's bypass rule.
func (c *Codec) DecodeID(wire string) (string, bool) {
	cb, ok := c.Decode(wire)
	if !ok {
		return "", false
	}
	return cb.ID, true
}

func contains(names []string, name string) bool {
	for _, n := range names {
		if n == name {
			return true
		}
	}
	return false
}
