package events

import "fmt"

var allowedEvents = map[string]struct{}{
	// run
	"run.started":   {},
	"run.seed":      {},
	"run.paused":    {},
	"run.resumed":   {},
	"run.completed": {},
	"run.aborted":   {},
	"run.restored":  {},

	// section
	"section.started":    {},
	"section.completed":  {},
	"section.transition": {},

	// trial
	"trial.started":   {},
	"trial.completed": {},

	// scene
	"scene.started":   {},
	"scene.completed": {},

	// timeline
	"checkpoint.fired": {},
	"staircase.step":   {},

	// response
	"response.received": {},
	"response.rejected": {},

	// renderer
	"renderer.connected":    {},
	"renderer.disconnected": {},
	"renderer.error":        {},

	// display
	"display.registered": {},
	"display.online":     {},
	"display.offline":    {},

	// operator
	"operator.pause":  {},
	"operator.resume": {},
	"operator.abort":  {},

	// system
	"system.startup":         {},
	"system.shutdown":        {},
	"system.error":           {},
	"system.startup_restore": {},
}

func Validate(event string) error {
	if _, ok := allowedEvents[event]; !ok {
		return fmt.Errorf("unknown event: %s", event)
	}
	return nil
}
