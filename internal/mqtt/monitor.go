package mqtt

import (
	"sort"
	"sync"
	"time"

	"github.com/marinraf/StimuliApp-sub001/internal/events"
)

// DisplayState tracks a registered display's health.
type DisplayState struct {
	DisplayID    string
	RefreshHz    float64
	LastSeen     time.Time
	HeartbeatSec int
	Connected    bool
}

// Monitor tracks display registration and health.
type Monitor struct {
	mu        sync.RWMutex
	displays  map[string]*DisplayState
	spec      DisplaySpec
	tolerance float64 // multiplier for heartbeat interval (e.g., 2.0 = 2x heartbeat)
	now       func() time.Time
	stopCh    chan struct{}
	wg        sync.WaitGroup
}

// NewMonitor creates a new display monitor.
// tolerance is the multiplier for heartbeat interval before considering disconnected.
func NewMonitor(spec DisplaySpec, tolerance float64) *Monitor {
	if tolerance <= 1.0 {
		tolerance = 2.0 // default: miss 1 heartbeat
	}
	return &Monitor{
		displays:  make(map[string]*DisplayState),
		spec:      spec,
		tolerance: tolerance,
		now:       time.Now,
		stopCh:    make(chan struct{}),
	}
}

// HandleRegistration processes a hello message. A known display counts
// it as a heartbeat; display.online is emitted only when it comes back.
func (m *Monitor) HandleRegistration(payload *RegistrationPayload) *ValidationResult {
	result := ValidateRegistration(payload, m.spec)

	m.mu.Lock()
	defer m.mu.Unlock()

	id := payload.Display.ID
	if !result.Valid {
		events.Emit("error", "renderer.error", "display registration rejected", map[string]interface{}{
			"display_id": id,
			"errors":     result.Errors,
		})
		return result
	}

	existing, known := m.displays[id]
	m.displays[id] = &DisplayState{
		DisplayID:    id,
		RefreshHz:    payload.Display.RefreshHz,
		LastSeen:     m.now(),
		HeartbeatSec: payload.HeartbeatSec,
		Connected:    true,
	}

	switch {
	case !known:
		events.Emit("info", "display.registered", "", map[string]interface{}{
			"display_id": id,
			"refresh_hz": payload.Display.RefreshHz,
			"renderer":   payload.Display.Renderer,
			"warnings":   result.Warnings,
		})
	case !existing.Connected:
		events.Emit("info", "display.online", "", map[string]interface{}{
			"display_id": id,
			"reconnect":  true,
		})
	}

	return result
}

// Start begins the background health check loop.
func (m *Monitor) Start(checkInterval time.Duration) {
	m.wg.Add(1)
	go m.healthCheckLoop(checkInterval)
}

// Stop stops the background health check loop.
func (m *Monitor) Stop() {
	close(m.stopCh)
	m.wg.Wait()
}

func (m *Monitor) healthCheckLoop(interval time.Duration) {
	defer m.wg.Done()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-m.stopCh:
			return
		case <-ticker.C:
			m.checkHealth()
		}
	}
}

func (m *Monitor) checkHealth() {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()

	for id, state := range m.displays {
		if !state.Connected || state.HeartbeatSec <= 0 {
			continue
		}

		// Calculate timeout: heartbeat * tolerance
		timeout := time.Duration(float64(state.HeartbeatSec)*m.tolerance) * time.Second
		if now.Sub(state.LastSeen) > timeout {
			state.Connected = false
			events.Emit("warn", "display.offline", "heartbeat timeout", map[string]interface{}{
				"display_id":  id,
				"last_seen":   state.LastSeen.Format(time.RFC3339),
				"timeout_sec": timeout.Seconds(),
			})
		}
	}
}

// GetDisplayState returns the state of a display (for testing/inspection).
func (m *Monitor) GetDisplayState(displayID string) *DisplayState {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if state, ok := m.displays[displayID]; ok {
		cpy := *state
		return &cpy
	}
	return nil
}

// ConnectedDisplays returns the ids of the connected displays, sorted.
func (m *Monitor) ConnectedDisplays() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var ids []string
	for id, state := range m.displays {
		if state.Connected {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	return ids
}
