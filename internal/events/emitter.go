package events

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sync"
	"time"
)

var buffer = NewRingBuffer(256)

var (
	outMu sync.Mutex
	out   io.Writer = os.Stdout
)

// SetOutput redirects the JSON line log. A nil writer silences it.
func SetOutput(w io.Writer) {
	outMu.Lock()
	out = w
	outMu.Unlock()
}

type Event struct {
	// Seq numbers events in emit order within the process.
	Seq       uint64                 `json:"seq,omitempty"`
	Timestamp string                 `json:"ts"`
	Level     string                 `json:"level"`
	Name      string                 `json:"event"`
	Message   string                 `json:"msg,omitempty"`
	Fields    map[string]interface{} `json:"fields,omitempty"`
}

// Emit records a registered event: it is written as one JSON line, kept in
// the ring buffer, broadcast to subscribers and queued for persistence.
func Emit(level, name, msg string, fields map[string]interface{}) ([]byte, error) {
	if err := Validate(name); err != nil {
		return nil, err
	}

	ts := time.Now().UTC()
	e := Event{
		Timestamp: ts.Format(time.RFC3339Nano),
		Level:     level,
		Name:      name,
		Message:   msg,
		Fields:    fields,
	}

	e = buffer.Add(e)
	broadcast(e)
	persistEvent(ts, e)

	b, err := json.Marshal(e)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal event: %w", err)
	}

	outMu.Lock()
	if out != nil {
		out.Write(append(b, '\n'))
	}
	outMu.Unlock()

	return b, nil
}

func Snapshot() []Event {
	return buffer.Snapshot()
}

// TotalCount returns the number of events emitted since the last Clear.
func TotalCount() uint64 {
	return buffer.Total()
}

// Clear resets the event buffer. Used for testing.
func Clear() {
	buffer.Clear()
}
