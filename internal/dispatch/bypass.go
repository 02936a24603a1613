// ABOUTME: Structural bypass rule for urgent events.
// ABOUTME: Matches urgent logical-callback ids, legacy raw prefixes, and stop words.

package dispatch

import (
	"strings"

	"github.com/beaconlabs/courier/internal/callback"
	"github.com/beaconlabs/courier/internal/model"
)

// urgentCallbackIDs is the fixed set of logical callbacks that must never
// queue behind slow work: they either resolve a human decision something is
// blocked on, or abort work in flight.
var urgentCallbackIDs = map[string]bool{
	callback.IDApproval:       true,
	callback.IDQuestionOption: true,
	callback.IDQuestionDone:   true,
	callback.IDQuestionCustom: true,
	callback.IDQuestionCancel: true,
	callback.IDInterrupt:      true,
}

// stopTokens are message texts that act as an interrupt command. Matched
// against the trimmed, case-folded text exactly.
var stopTokens = map[string]bool{
	"stop":   true,
	"cancel": true,
	"abort":  true,
}

// structuralBypass reports whether an event is urgent by shape alone.
// Interactions match when the payload carries a configured legacy raw prefix
// or decodes to an urgent logical callback. Messages match the stop-token set.
func (d *Dispatcher) structuralBypass(ev model.Event) bool {
	switch e := ev.(type) {
	case model.InteractionEvent:
		for _, prefix := range d.rawPrefixes {
			if strings.HasPrefix(e.Payload, prefix) {
				return true
			}
		}
		if id, ok := d.codec.DecodeID(e.Payload); ok {
			return urgentCallbackIDs[id]
		}
		return false
	case model.MessageEvent:
		return stopTokens[strings.ToLower(strings.TrimSpace(e.Text))]
	default:
		return false
	}
}
