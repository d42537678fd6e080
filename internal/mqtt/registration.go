package mqtt

import (
	"encoding/json"
	"fmt"
	"math"
)

// DefaultRefreshTolerance is how far, in Hz, a display may run from the
// design frame rate.
const DefaultRefreshTolerance = 0.5

// RegistrationPayload represents a v1 display hello message. Displays
// resend it every heartbeat.
type RegistrationPayload struct {
	Version      int         `json:"version"`
	Display      DisplayInfo `json:"display"`
	HeartbeatSec int         `json:"heartbeat_sec"`
}

// DisplayInfo describes the renderer's display.
type DisplayInfo struct {
	ID        string  `json:"id"`
	Renderer  string  `json:"renderer"`
	RefreshHz float64 `json:"refresh_hz"`
	Width     int     `json:"width"`
	Height    int     `json:"height"`
}

// ParseRegistration parses a registration payload from JSON bytes.
func ParseRegistration(data []byte) (*RegistrationPayload, error) {
	var payload RegistrationPayload
	if err := json.Unmarshal(data, &payload); err != nil {
		return nil, fmt.Errorf("invalid registration JSON: %w", err)
	}

	if payload.Version != 1 {
		return nil, fmt.Errorf("unsupported registration version: %d", payload.Version)
	}

	if payload.Display.ID == "" {
		return nil, fmt.Errorf("display.id is required")
	}

	return &payload, nil
}

// DisplaySpec is what the run expects from a display.
type DisplaySpec struct {
	FrameRate int
	// Tolerance in Hz; zero means DefaultRefreshTolerance.
	Tolerance float64
}

// ValidationResult contains validation outcome.
type ValidationResult struct {
	Valid    bool
	Errors   []string
	Warnings []string
}

// ValidateRegistration checks a display against the run's frame rate.
// Checkpoints are stamped in frames, so a display refreshing at another
// rate would change every duration.
func ValidateRegistration(payload *RegistrationPayload, spec DisplaySpec) *ValidationResult {
	result := &ValidationResult{Valid: true}
	d := payload.Display

	if d.RefreshHz <= 0 {
		result.Errors = append(result.Errors, fmt.Sprintf("display %s: refresh_hz must be positive", d.ID))
		result.Valid = false
	} else if spec.FrameRate > 0 {
		tol := spec.Tolerance
		if tol <= 0 {
			tol = DefaultRefreshTolerance
		}
		if math.Abs(d.RefreshHz-float64(spec.FrameRate)) > tol {
			result.Errors = append(result.Errors, fmt.Sprintf("display %s: refresh rate %g Hz does not match frame rate %d",
				d.ID, d.RefreshHz, spec.FrameRate))
			result.Valid = false
		}
	}

	if payload.HeartbeatSec <= 0 {
		result.Warnings = append(result.Warnings, fmt.Sprintf("display %s: no heartbeat, health is not monitored", d.ID))
	}
	if d.Width <= 0 || d.Height <= 0 {
		result.Warnings = append(result.Warnings, fmt.Sprintf("display %s: unknown resolution", d.ID))
	}

	return result
}
