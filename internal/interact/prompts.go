// ABOUTME: Keyboard construction and outcome rendering for prompts.
// ABOUTME: All wire payloads go through the callback codec.

package interact

import (
	"strconv"
	"strings"

	"github.com/beaconlabs/courier/internal/callback"
	"github.com/beaconlabs/courier/internal/platform"
)

func (c *Coordinator) approvalKeyboard(requestID string) ([][]platform.Button, error) {
	accept, err := c.codec.Encode(callback.Callback{
		ID: callback.IDApproval,
		Fields: map[string]string{
			callback.FieldRequestID: requestID,
			callback.FieldDecision:  "accept",
		},
	})
	if err != nil {
		return nil, err
	}
	decline, err := c.codec.Encode(callback.Callback{
		ID: callback.IDApproval,
		Fields: map[string]string{
			callback.FieldRequestID: requestID,
			callback.FieldDecision:  "decline",
		},
	})
	if err != nil {
		return nil, err
	}
	return [][]platform.Button{{
		{Label: "✅ Approve", Data: accept},
		{Label: "❌ Decline", Data: decline},
	}}, nil
}

// questionKeyboard builds one row per option, marking the selected ones, plus
// a control row with done/custom/cancel as the question shape requires.
func (c *Coordinator) questionKeyboard(requestID string, state questionState, selected []int) ([][]platform.Button, error) {
	idx := strconv.Itoa(state.Index)
	var rows [][]platform.Button

	for i, opt := range state.Options {
		data, err := c.codec.Encode(callback.Callback{
			ID: callback.IDQuestionOption,
			Fields: map[string]string{
				callback.FieldRequestID:     requestID,
				callback.FieldQuestionIndex: idx,
				callback.FieldOptionIndex:   strconv.Itoa(i),
			},
		})
		if err != nil {
			return nil, err
		}
		label := opt
		if containsInt(selected, i) {
			label = "✓ " + opt
		}
		rows = append(rows, []platform.Button{{Label: label, Data: data}})
	}

	var control []platform.Button
	if state.Multi {
		done, err := c.codec.Encode(callback.Callback{
			ID: callback.IDQuestionDone,
			Fields: map[string]string{
				callback.FieldRequestID:     requestID,
				callback.FieldQuestionIndex: idx,
			},
		})
		if err != nil {
			return nil, err
		}
		control = append(control, platform.Button{Label: "Done", Data: done})
	}
	if state.AllowCustom {
		custom, err := c.codec.Encode(callback.Callback{
			ID: callback.IDQuestionCustom,
			Fields: map[string]string{
				callback.FieldRequestID:     requestID,
				callback.FieldQuestionIndex: idx,
			},
		})
		if err != nil {
			return nil, err
		}
		control = append(control, platform.Button{Label: "✏️ Other", Data: custom})
	}
	cancel, err := c.codec.Encode(callback.Callback{
		ID:     callback.IDQuestionCancel,
		Fields: map[string]string{callback.FieldRequestID: requestID},
	})
	if err != nil {
		return nil, err
	}
	control = append(control, platform.Button{Label: "Cancel", Data: cancel})
	rows = append(rows, control)

	return rows, nil
}

// answerSummary renders the committed answer for the final prompt edit.
func (c *Coordinator) answerSummary(state questionState, ans Answer) string {
	if ans.Text != "" {
		return "💬 " + ans.Text
	}
	var labels []string
	for _, i := range ans.Selected {
		if i >= 0 && i < len(state.Options) {
			labels = append(labels, state.Options[i])
		}
	}
	if len(labels) == 0 {
		return "✔ Answered"
	}
	return "✔ " + strings.Join(labels, ", ")
}

func containsInt(xs []int, x int) bool {
	for _, v := range xs {
		if v == x {
			return true
		}
	}
	return false
}
