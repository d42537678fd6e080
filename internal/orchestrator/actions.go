package orchestrator

import (
	"encoding/json"
	"fmt"
	"sync"

	"github.com/marinraf/StimuliApp-sub001/internal/events"
	"github.com/marinraf/StimuliApp-sub001/internal/mqtt"
	"github.com/marinraf/StimuliApp-sub001/internal/timeline"
)

// CheckpointMessage is the body published for every fired checkpoint.
type CheckpointMessage struct {
	Cursor
	Action string `json:"action"`
	Object int    `json:"object"`
}

// CheckpointExecutor is the renderer of a live run: it publishes every
// checkpoint and trial to the renderer topics. Publish failures are
// reported once per outage as renderer.error and never stop the run.
type CheckpointExecutor struct {
	client mqtt.Broker
	topics mqtt.Topics

	mu       sync.Mutex
	cursor   Cursor
	failing  bool
	failures int
}

var (
	_ timeline.Renderer = (*CheckpointExecutor)(nil)
	_ CursorAware       = (*CheckpointExecutor)(nil)
	_ TrialPublisher    = (*CheckpointExecutor)(nil)
)

// NewCheckpointExecutor creates an executor publishing through client.
func NewCheckpointExecutor(client mqtt.Broker, topics mqtt.Topics) *CheckpointExecutor {
	return &CheckpointExecutor{client: client, topics: topics}
}

// SetCursor records where the next checkpoints belong.
func (e *CheckpointExecutor) SetCursor(c Cursor) {
	e.mu.Lock()
	e.cursor = c
	e.mu.Unlock()
}

// OnCheckpoint publishes one checkpoint.
func (e *CheckpointExecutor) OnCheckpoint(action timeline.Action, object int) {
	e.mu.Lock()
	msg := CheckpointMessage{Cursor: e.cursor, Action: action.String(), Object: object}
	e.mu.Unlock()

	payload, err := json.Marshal(msg)
	if err != nil {
		e.report(e.topics.Checkpoint(), fmt.Errorf("failed to marshal checkpoint: %w", err))
		return
	}
	e.report(e.topics.Checkpoint(), e.publish(e.topics.Checkpoint(), payload))
}

// PublishTrial publishes the resolved values of a trial.
func (e *CheckpointExecutor) PublishTrial(p TrialPayload) error {
	payload, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("failed to marshal trial: %w", err)
	}
	err = e.publish(e.topics.Trial(), payload)
	e.report(e.topics.Trial(), err)
	return err
}

// Failures is the number of failed publishes.
func (e *CheckpointExecutor) Failures() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.failures
}

func (e *CheckpointExecutor) publish(topic string, payload []byte) error {
	if e.client == nil || !e.client.IsConnected() {
		return fmt.Errorf("MQTT client not connected")
	}
	if err := e.client.Publish(topic, payload); err != nil {
		return fmt.Errorf("MQTT publish failed: %w", err)
	}
	return nil
}

// report tracks the outage state and emits one event per transition.
func (e *CheckpointExecutor) report(topic string, err error) {
	e.mu.Lock()
	wasFailing := e.failing
	e.failing = err != nil
	if err != nil {
		e.failures++
	}
	e.mu.Unlock()

	switch {
	case err != nil && !wasFailing:
		events.Emit("error", "renderer.error", err.Error(), map[string]interface{}{
			"topic": topic,
			"error": err.Error(),
		})
	case err == nil && wasFailing:
		events.Emit("info", "renderer.connected", "", map[string]interface{}{"topic": topic})
	}
}
