// Package version holds the build version of the stimuli runner.
package version

// Version is overridden at build time:
//
//	go build -ldflags "-X github.com/marinraf/StimuliApp-sub001/internal/version.Version=x.y.z"
var Version = "0.1.0"
