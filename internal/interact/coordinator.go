// ABOUTME: Coordinator state machine: pending registry, resolution, timeouts.
// ABOUTME: Each request resolves exactly once, guarded against double delivery.

package interact

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/beaconlabs/courier/internal/callback"
	"github.com/beaconlabs/courier/internal/model"
	"github.com/beaconlabs/courier/internal/platform"
	"github.com/beaconlabs/courier/internal/store"
)

// Decision is the outcome of an approval request.
type Decision string

const (
	DecisionApproved Decision = "approved"
	DecisionDenied   Decision = "denied"
	DecisionCanceled Decision = "canceled"
	DecisionTimedOut Decision = "timed_out"
)

// ApprovalRequest asks a human to accept or decline one operation.
type ApprovalRequest struct {
	// RequestID must be unique per request; generated when empty.
	RequestID string
	Prompt    string
}

// Question asks a human to pick from options, or type a custom answer.
type Question struct {
	RequestID string
	Prompt    string
	Options   []string
	// Index distinguishes questions when one flow asks several in sequence.
	Index int
	// Multi lets the user toggle several options before committing.
	Multi bool
	// AllowCustom adds a button that switches the prompt to free-text entry.
	AllowCustom bool
}

// Answer is the outcome of a question.
type Answer struct {
	Answered bool
	// Selected holds the chosen option indices, ascending. Empty when the
	// answer came as free text.
	Selected []int
	// Text is the free-text answer, when one was given.
	Text string
	// Reason explains a non-answer: "canceled" or "timeout".
	Reason string
}

// questionState is the kind-specific persisted payload of a pending question.
type questionState struct {
	Prompt      string   `json:"prompt"`
	Options     []string `json:"options"`
	Index       int      `json:"index"`
	Multi       bool     `json:"multi"`
	AllowCustom bool     `json:"allow_custom"`
}

// approvalState is the kind-specific persisted payload of a pending approval.
type approvalState struct {
	Prompt string `json:"prompt"`
}

// outcome is what a resolver hands to the waiting caller.
type outcome struct {
	decision Decision // approvals
	answer   Answer   // questions
}

// pendingRequest pairs the persisted record with its in-memory promise. The
// outcome channel is buffered so resolution never blocks; done closes exactly
// once when the outcome is delivered.
type pendingRequest struct {
	rec     *store.PendingInteraction
	outcome chan outcome
	done    chan struct{}
}

// Config wires a Coordinator.
type Config struct {
	Codec     *callback.Codec
	Store     store.Store
	Transport platform.Transport
	// Timeout bounds how long a prompt waits for a human. Default 10m.
	Timeout time.Duration
	Logger  *slog.Logger
}

// Coordinator owns all pending approvals and questions for one transport.
type Coordinator struct {
	codec     *callback.Codec
	store     store.Store
	transport platform.Transport
	timeout   time.Duration
	logger    *slog.Logger

	mu      sync.Mutex
	pending map[string]*pendingRequest

	now func() time.Time
}

// NewCoordinator creates a coordinator.
func NewCoordinator(cfg Config) *Coordinator {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Minute
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default().With("component", "interact")
	}
	return &Coordinator{
		codec:     cfg.Codec,
		store:     cfg.Store,
		transport: cfg.Transport,
		timeout:   cfg.Timeout,
		logger:    cfg.Logger,
		pending:   make(map[string]*pendingRequest),
		now:       time.Now,
	}
}

// RequestApproval sends an accept/decline prompt and blocks until the user
// decides, the timeout elapses, or ctx is canceled. Timeout and cancellation
// both yield a non-approved decision rather than an error.
func (c *Coordinator) RequestApproval(ctx context.Context, thread model.ThreadRef, req ApprovalRequest) (Decision, error) {
	if req.RequestID == "" {
		req.RequestID = uuid.NewString()[:8]
	}

	keyboard, err := c.approvalKeyboard(req.RequestID)
	if err != nil {
		return "", err
	}

	payload, _ := json.Marshal(approvalState{Prompt: req.Prompt})
	pr, err := c.open(ctx, thread, &store.PendingInteraction{
		RequestID: req.RequestID,
		Kind:      store.InteractionApproval,
		Payload:   payload,
	}, req.Prompt, keyboard)
	if err != nil {
		return "", err
	}

	out, ok := c.await(ctx, pr)
	if !ok {
		c.finishPrompt(pr, req.Prompt, "⏱ Timed out")
		return DecisionTimedOut, nil
	}

	switch out.decision {
	case DecisionApproved:
		c.finishPrompt(pr, req.Prompt, "✅ Approved")
	case DecisionDenied:
		c.finishPrompt(pr, req.Prompt, "❌ Declined")
	default:
		c.finishPrompt(pr, req.Prompt, "🚫 Canceled")
	}
	return out.decision, nil
}

// AskQuestion sends an option prompt and blocks until answered, canceled, or
// timed out. Multi-select questions resolve on the done button; the custom
// button switches to free text resolved by the next plain message in the
// same thread.
func (c *Coordinator) AskQuestion(ctx context.Context, thread model.ThreadRef, q Question) (Answer, error) {
	if q.RequestID == "" {
		q.RequestID = uuid.NewString()[:8]
	}
	if len(q.Options) == 0 && !q.AllowCustom {
		return Answer{}, fmt.Errorf("interact: question %s has no options and no custom entry", q.RequestID)
	}

	state := questionState{
		Prompt:      q.Prompt,
		Options:     q.Options,
		Index:       q.Index,
		Multi:       q.Multi,
		AllowCustom: q.AllowCustom,
	}
	keyboard, err := c.questionKeyboard(q.RequestID, state, nil)
	if err != nil {
		return Answer{}, err
	}

	payload, _ := json.Marshal(state)
	pr, err := c.open(ctx, thread, &store.PendingInteraction{
		RequestID: q.RequestID,
		Kind:      store.InteractionQuestion,
		Payload:   payload,
	}, q.Prompt, keyboard)
	if err != nil {
		return Answer{}, err
	}

	out, ok := c.await(ctx, pr)
	if !ok {
		c.finishPrompt(pr, q.Prompt, "⏱ Timed out")
		return Answer{Reason: "timeout"}, nil
	}

	if out.answer.Answered {
		c.finishPrompt(pr, q.Prompt, c.answerSummary(state, out.answer))
	} else {
		c.finishPrompt(pr, q.Prompt, "🚫 Canceled")
	}
	return out.answer, nil
}

// open sends the prompt, persists the pending record, and registers the
// in-memory promise. The prompt goes out first so PromptMsgID can be stored.
func (c *Coordinator) open(ctx context.Context, thread model.ThreadRef, rec *store.PendingInteraction, prompt string, keyboard [][]platform.Button) (*pendingRequest, error) {
	msg, err := c.transport.SendText(ctx, thread, prompt, &platform.SendOptions{Keyboard: keyboard})
	if err != nil {
		return nil, fmt.Errorf("interact: sending prompt: %w", err)
	}

	now := c.now()
	rec.Platform = thread.Platform
	rec.ChatID = thread.ChatID
	rec.ThreadID = thread.ThreadID
	rec.PromptMsgID = msg.MessageID
	rec.CreatedAt = now
	rec.ExpiresAt = now.Add(c.timeout)

	if err := c.store.PutPendingInteraction(ctx, rec); err != nil {
		return nil, fmt.Errorf("interact: persisting pending record: %w", err)
	}

	pr := &pendingRequest{
		rec:     rec,
		outcome: make(chan outcome, 1),
		done:    make(chan struct{}),
	}
	c.mu.Lock()
	c.pending[rec.RequestID] = pr
	c.mu.Unlock()
	return pr, nil
}

// await blocks until the promise resolves or the timeout/ctx fires. ok=false
// means no resolution arrived; the request has been withdrawn.
func (c *Coordinator) await(ctx context.Context, pr *pendingRequest) (outcome, bool) {
	timer := time.NewTimer(c.timeout)
	defer timer.Stop()

	select {
	case out := <-pr.outcome:
		return out, true
	case <-timer.C:
	case <-ctx.Done():
	}

	// Timed out or canceled. Withdraw the promise under the lock; a resolver
	// that got there first has already removed it and filled the channel.
	c.mu.Lock()
	_, stillPending := c.pending[pr.rec.RequestID]
	if stillPending {
		delete(c.pending, pr.rec.RequestID)
	}
	c.mu.Unlock()

	if !stillPending {
		// Lost the race to a real resolution; deliver it.
		out := <-pr.outcome
		return out, true
	}
	return outcome{}, false
}

// resolve delivers an outcome to the waiting caller. Returns false when no
// promise exists for the request id, or it was already resolved.
func (c *Coordinator) resolve(requestID string, out outcome) bool {
	c.mu.Lock()
	pr, ok := c.pending[requestID]
	if ok {
		delete(c.pending, requestID)
	}
	c.mu.Unlock()
	if !ok {
		return false
	}

	select {
	case pr.outcome <- out:
	default:
		// Buffer of one; a second resolution has nowhere to go.
	}
	close(pr.done)
	return true
}

// finishPrompt rewrites the prompt message with the outcome line and no
// buttons, and drops the persisted record. Best effort on both.
func (c *Coordinator) finishPrompt(pr *pendingRequest, prompt, status string) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	msg := model.MessageRef{
		Thread: model.ThreadRef{
			Platform: pr.rec.Platform,
			ChatID:   pr.rec.ChatID,
			ThreadID: pr.rec.ThreadID,
		},
		MessageID: pr.rec.PromptMsgID,
	}
	text := prompt + "\n\n" + status
	if err := c.transport.EditText(ctx, msg, text, nil); err != nil {
		c.logger.Warn("failed to edit resolved prompt", "request_id", pr.rec.RequestID, "err", err)
	}
	if err := c.store.DeletePendingInteraction(ctx, pr.rec.RequestID); err != nil {
		c.logger.Warn("failed to delete pending record", "request_id", pr.rec.RequestID, "err", err)
	}
}

// HandleInteraction routes a button press to its pending request. It returns
// true when the payload belonged to this coordinator, whether or not a
// pending request still existed; undecodable payloads return false untouched.
func (c *Coordinator) HandleInteraction(ctx context.Context, ev model.InteractionEvent) (bool, error) {
	cb, ok := c.codec.Decode(ev.Payload)
	if !ok {
		return false, nil
	}

	requestID := cb.Fields[callback.FieldRequestID]

	switch cb.ID {
	case callback.IDApproval:
		return true, c.handleApproval(ctx, ev, requestID, cb.Fields[callback.FieldDecision])
	case callback.IDQuestionOption:
		return true, c.handleOption(ctx, ev, requestID, cb.Fields)
	case callback.IDQuestionDone:
		return true, c.handleDone(ctx, ev, requestID, cb.Fields)
	case callback.IDQuestionCustom:
		return true, c.handleCustom(ctx, ev, requestID, cb.Fields)
	case callback.IDQuestionCancel:
		return true, c.handleCancel(ctx, ev, requestID)
	default:
		// Interrupt and future urgent kinds are the dispatcher's business.
		return false, nil
	}
}

func (c *Coordinator) handleApproval(ctx context.Context, ev model.InteractionEvent, requestID, decision string) error {
	d := DecisionDenied
	if decision == "accept" {
		d = DecisionApproved
	}
	if !c.resolve(requestID, outcome{decision: d}) {
		return c.ackExpired(ctx, ev)
	}
	return c.transport.AckInteraction(ctx, ev.Interaction, "")
}

func (c *Coordinator) handleOption(ctx context.Context, ev model.InteractionEvent, requestID string, fields map[string]string) error {
	pr, state, ok := c.questionFor(requestID, fields)
	if !ok {
		return c.ackExpired(ctx, ev)
	}
	optIdx, err := strconv.Atoi(fields[callback.FieldOptionIndex])
	if err != nil || optIdx < 0 || optIdx >= len(state.Options) {
		return c.ackExpired(ctx, ev)
	}

	if !state.Multi {
		if !c.resolve(requestID, outcome{answer: Answer{Answered: true, Selected: []int{optIdx}}}) {
			return c.ackExpired(ctx, ev)
		}
		return c.transport.AckInteraction(ctx, ev.Interaction, "")
	}

	// Multi-select: toggle, persist, and re-render the same message. The
	// store and transport get a snapshot taken under the lock; concurrent
	// presses on the same prompt keep mutating the live record.
	c.mu.Lock()
	pr.rec.Selected = toggle(pr.rec.Selected, optIdx)
	snap := snapshotRecord(pr.rec)
	c.mu.Unlock()

	if err := c.store.PutPendingInteraction(ctx, snap); err != nil {
		c.logger.Warn("failed to persist selection", "request_id", requestID, "err", err)
	}

	keyboard, err := c.questionKeyboard(requestID, state, snap.Selected)
	if err != nil {
		return err
	}
	msg := promptRef(snap)
	if err := c.transport.EditText(ctx, msg, state.Prompt, &platform.SendOptions{Keyboard: keyboard}); err != nil {
		c.logger.Warn("failed to re-render selection", "request_id", requestID, "err", err)
	}
	return c.transport.AckInteraction(ctx, ev.Interaction, "")
}

func (c *Coordinator) handleDone(ctx context.Context, ev model.InteractionEvent, requestID string, fields map[string]string) error {
	pr, _, ok := c.questionFor(requestID, fields)
	if !ok {
		return c.ackExpired(ctx, ev)
	}

	c.mu.Lock()
	selected := append([]int(nil), pr.rec.Selected...)
	c.mu.Unlock()
	sort.Ints(selected)

	if !c.resolve(requestID, outcome{answer: Answer{Answered: true, Selected: selected}}) {
		return c.ackExpired(ctx, ev)
	}
	return c.transport.AckInteraction(ctx, ev.Interaction, "")
}

func (c *Coordinator) handleCustom(ctx context.Context, ev model.InteractionEvent, requestID string, fields map[string]string) error {
	pr, state, ok := c.questionFor(requestID, fields)
	if !ok || !state.AllowCustom {
		return c.ackExpired(ctx, ev)
	}

	c.mu.Lock()
	pr.rec.AwaitingText = true
	snap := snapshotRecord(pr.rec)
	c.mu.Unlock()
	if err := c.store.PutPendingInteraction(ctx, snap); err != nil {
		c.logger.Warn("failed to persist awaiting-text flag", "request_id", requestID, "err", err)
	}

	msg := promptRef(snap)
	text := state.Prompt + "\n\n✏️ Reply with your answer"
	if err := c.transport.EditText(ctx, msg, text, nil); err != nil {
		c.logger.Warn("failed to switch prompt to free text", "request_id", requestID, "err", err)
	}
	return c.transport.AckInteraction(ctx, ev.Interaction, "")
}

func (c *Coordinator) handleCancel(ctx context.Context, ev model.InteractionEvent, requestID string) error {
	c.mu.Lock()
	pr, ok := c.pending[requestID]
	var kind string
	if ok {
		kind = pr.rec.Kind
	}
	c.mu.Unlock()
	if !ok {
		return c.ackExpired(ctx, ev)
	}

	var out outcome
	if kind == store.InteractionApproval {
		out = outcome{decision: DecisionCanceled}
	} else {
		out = outcome{answer: Answer{Reason: "canceled"}}
	}
	if !c.resolve(requestID, out) {
		return c.ackExpired(ctx, ev)
	}
	return c.transport.AckInteraction(ctx, ev.Interaction, "")
}

// HandleMessage resolves a question that is awaiting free text when a plain
// message arrives in its thread. Returns true when the message was consumed.
func (c *Coordinator) HandleMessage(ctx context.Context, ev model.MessageEvent) (bool, error) {
	if ev.Text == "" {
		return false, nil
	}

	c.mu.Lock()
	var match *pendingRequest
	for _, pr := range c.pending {
		if !pr.rec.AwaitingText {
			continue
		}
		if pr.rec.Platform == ev.Thread.Platform &&
			pr.rec.ChatID == ev.Thread.ChatID &&
			pr.rec.ThreadID == ev.Thread.ThreadID {
			match = pr
			break
		}
	}
	c.mu.Unlock()
	if match == nil {
		return false, nil
	}

	c.resolve(match.rec.RequestID, outcome{answer: Answer{Answered: true, Text: ev.Text}})
	return true, nil
}

// ExpireStale deletes persisted pending records that have no live promise,
// editing their prompts so dead buttons do not linger. Called at startup.
func (c *Coordinator) ExpireStale(ctx context.Context) error {
	records, err := c.store.ListPendingInteractions(ctx)
	if err != nil {
		return fmt.Errorf("interact: listing pending records: %w", err)
	}

	for _, rec := range records {
		c.mu.Lock()
		_, live := c.pending[rec.RequestID]
		c.mu.Unlock()
		if live {
			continue
		}

		msg := model.MessageRef{
			Thread: model.ThreadRef{
				Platform: rec.Platform,
				ChatID:   rec.ChatID,
				ThreadID: rec.ThreadID,
			},
			MessageID: rec.PromptMsgID,
		}
		if err := c.transport.EditText(ctx, msg, "⏱ Timed out", nil); err != nil {
			c.logger.Warn("failed to expire stale prompt", "request_id", rec.RequestID, "err", err)
		}
		if err := c.store.DeletePendingInteraction(ctx, rec.RequestID); err != nil {
			return fmt.Errorf("interact: deleting stale record %s: %w", rec.RequestID, err)
		}
		c.logger.Info("expired stale prompt", "request_id", rec.RequestID, "kind", rec.Kind)
	}
	return nil
}

// ackExpired acknowledges an interaction that matched no live request.
func (c *Coordinator) ackExpired(ctx context.Context, ev model.InteractionEvent) error {
	return c.transport.AckInteraction(ctx, ev.Interaction, "This prompt is no longer active")
}

// questionFor returns the live question promise for a request id, verifying
// the kind and question index against the callback fields.
func (c *Coordinator) questionFor(requestID string, fields map[string]string) (*pendingRequest, questionState, bool) {
	c.mu.Lock()
	pr, ok := c.pending[requestID]
	c.mu.Unlock()
	if !ok || pr.rec.Kind != store.InteractionQuestion {
		return nil, questionState{}, false
	}

	var state questionState
	if err := json.Unmarshal(pr.rec.Payload, &state); err != nil {
		return nil, questionState{}, false
	}
	if idx, ok := fields[callback.FieldQuestionIndex]; ok {
		if n, err := strconv.Atoi(idx); err != nil || n != state.Index {
			return nil, questionState{}, false
		}
	}
	return pr, state, true
}

func promptRef(rec *store.PendingInteraction) model.MessageRef {
	return model.MessageRef{
		Thread: model.ThreadRef{
			Platform: rec.Platform,
			ChatID:   rec.ChatID,
			ThreadID: rec.ThreadID,
		},
		MessageID: rec.PromptMsgID,
	}
}

// snapshotRecord deep-copies a pending record so it can be persisted and
// rendered without racing further mutation. Callers must hold c.mu.
func snapshotRecord(rec *store.PendingInteraction) *store.PendingInteraction {
	cp := *rec
	cp.Selected = append([]int(nil), rec.Selected...)
	return &cp
}

// toggle adds idx to the selection or removes it when already present.
func toggle(selected []int, idx int) []int {
	for i, s := range selected {
		if s == idx {
			return append(selected[:i], selected[i+1:]...)
		}
	}
	return append(selected, idx)
}
