package mqtt

import "strings"

// DefaultPrefix roots every topic when none is configured.
const DefaultPrefix = "stimuli"

// Topics names the topics of one installation.
type Topics struct {
	Prefix string
}

func (t Topics) topic(parts ...string) string {
	p := strings.TrimSuffix(t.Prefix, "/")
	if p == "" {
		p = DefaultPrefix
	}
	return p + "/" + strings.Join(parts, "/")
}

// Checkpoint carries one fired checkpoint to the renderer.
func (t Topics) Checkpoint() string { return t.topic("renderer", "checkpoint") }

// Trial carries the resolved values of a trial to the renderer.
func (t Topics) Trial() string { return t.topic("renderer", "trial") }

// Response carries participant responses from the renderer.
func (t Topics) Response() string { return t.topic("response") }

// DisplayHello carries display registration and heartbeats.
func (t Topics) DisplayHello() string { return t.topic("display", "hello") }

// DisplayFrame carries one message per display refresh.
func (t Topics) DisplayFrame() string { return t.topic("display", "frame") }
