// Package trace implements the run's append-only JSONL audit trail:
// run.events.jsonl, one canonical JSON object per line.
package trace

import (
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"github.com/ormasoftchile/missionctl/pkg/kernel/schema"
)

// EventType enumerates the fixed set of mission run trace events.
type EventType string

const (
	EventMissionRunStarted      EventType = "MissionRunStarted"
	EventNextStepIssued         EventType = "NextStepIssued"
	EventNextStepAutoCompleted  EventType = "NextStepAutoCompleted"
	EventDecisionInputRequested EventType = "DecisionInputRequested"
	EventDecisionInputAnswered  EventType = "DecisionInputAnswered"
	EventMissionRunCompleted    EventType = "MissionRunCompleted"
	EventSignificanceEvaluated  EventType = "SignificanceEvaluated"
	EventDecisionTimeoutExpired EventType = "DecisionTimeoutExpired"
)

// Event is a single line of run.events.jsonl before canonical encoding.
type Event struct {
	EventType EventType      `json:"event_type"`
	Timestamp string         `json:"timestamp"`
	Payload   map[string]any `json:"payload"`
}

// Writer appends canonical JSON event lines to an append-only stream.
// Safe for concurrent use; a failed write never corrupts prior lines
// since each Emit writes and flushes exactly one complete line.
type Writer struct {
	mu    sync.Mutex
	w     io.Writer
	runID string
	now   func() time.Time
}

// NewWriter creates a trace writer over an arbitrary io.Writer.
func NewWriter(w io.Writer, runID string) *Writer {
	return &Writer{w: w, runID: runID, now: func() time.Time { return time.Now().UTC() }}
}

// NewFileWriter opens (creating if absent) path for append and wraps it.
func NewFileWriter(path, runID string) (*Writer, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open trace file: %w", err)
	}
	return NewWriter(f, runID), nil
}

// actorPayload builds the {actor_id, actor_type} object carried on every
// event's payload.
func actorPayload(actor schema.Actor) map[string]any {
	return map[string]any{
		"actor_id":   actor.ActorID,
		"actor_type": string(actor.ActorType),
	}
}

// Emit writes one event line: {"event_type":..., "timestamp":..., "payload":...},
// keys sorted, no whitespace, terminated by a single newline.
func (w *Writer) Emit(eventType EventType, actor schema.Actor, fields map[string]any) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	payload := map[string]any{"run_id": w.runID, "actor": actorPayload(actor)}
	for k, v := range fields {
		payload[k] = v
	}

	evt := Event{EventType: eventType, Timestamp: w.now().Format(time.RFC3339), Payload: payload}
	line, err := schema.CanonicalJSON(evt)
	if err != nil {
		return fmt.Errorf("encode trace event: %w", err)
	}
	line = append(line, '\n')
	_, err = w.w.Write(line)
	return err
}

// EmitMissionRunStarted records a run's start.
func (w *Writer) EmitMissionRunStarted(actor schema.Actor, missionKey, templateHash string) error {
	return w.Emit(EventMissionRunStarted, actor, map[string]any{
		"mission_key":   missionKey,
		"template_hash": templateHash,
	})
}

// EmitNextStepIssued records a Step decision handed to the caller.
func (w *Writer) EmitNextStepIssued(actor schema.Actor, stepID string) error {
	return w.Emit(EventNextStepIssued, actor, map[string]any{"step_id": stepID})
}

// EmitNextStepAutoCompleted records a low-significance audit step the
// engine completed without operator interaction.
func (w *Writer) EmitNextStepAutoCompleted(actor schema.Actor, stepID string, effectiveBand string) error {
	return w.Emit(EventNextStepAutoCompleted, actor, map[string]any{
		"step_id":        stepID,
		"effective_band": effectiveBand,
	})
}

// EmitDecisionInputRequested records a DecisionRequired surfaced to the caller.
func (w *Writer) EmitDecisionInputRequested(actor schema.Actor, decisionID, stepID, inputKey, question string, options []string) error {
	fields := map[string]any{
		"decision_id": decisionID,
		"question":    question,
	}
	if stepID != "" {
		fields["step_id"] = stepID
	}
	if inputKey != "" {
		fields["input_key"] = inputKey
	}
	if len(options) > 0 {
		fields["options"] = options
	}
	return w.Emit(EventDecisionInputRequested, actor, fields)
}

// EmitDecisionInputAnswered records an operator's answer to a pending decision.
func (w *Writer) EmitDecisionInputAnswered(actor schema.Actor, decisionID, answer string) error {
	return w.Emit(EventDecisionInputAnswered, actor, map[string]any{
		"decision_id": decisionID,
		"answer":      answer,
	})
}

// EmitMissionRunCompleted records a run reaching Terminal.
func (w *Writer) EmitMissionRunCompleted(actor schema.Actor) error {
	return w.Emit(EventMissionRunCompleted, actor, nil)
}

// EmitSignificanceEvaluated records the score computed for an audit checkpoint.
func (w *Writer) EmitSignificanceEvaluated(actor schema.Actor, stepID string, composite int, band, effectiveBand string, hardTriggers []string) error {
	fields := map[string]any{
		"step_id":        stepID,
		"composite":      composite,
		"band":           band,
		"effective_band": effectiveBand,
	}
	if len(hardTriggers) > 0 {
		fields["hard_trigger_classes"] = hardTriggers
	}
	return w.Emit(EventSignificanceEvaluated, actor, fields)
}

// EmitDecisionTimeoutExpired records a decision timing out and the
// escalation targets notified as a result.
func (w *Writer) EmitDecisionTimeoutExpired(actor schema.Actor, decisionID string, escalatedTo []string) error {
	fields := map[string]any{"decision_id": decisionID}
	if len(escalatedTo) > 0 {
		fields["escalated_to"] = escalatedTo
	}
	return w.Emit(EventDecisionTimeoutExpired, actor, fields)
}
