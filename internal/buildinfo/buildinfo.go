// Package buildinfo carries the build identity stamped into the binary.
package buildinfo

import "time"

// Set via -ldflags at build time.
var (
	Version    = "dev"
	CommitHash string
	BuildTime  string
)

// StartTime is recorded when the process starts.
var StartTime = time.Now().UTC().Format(time.RFC3339)

// Info is the identity block reported by the health endpoint.
type Info struct {
	Version    string `json:"version"`
	CommitHash string `json:"commit_hash,omitempty"`
	BuildTime  string `json:"build_time,omitempty"`
	StartTime  string `json:"start_time"`
}

// Current returns the running binary's identity.
func Current() Info {
	return Info{
		Version:    Version,
		CommitHash: CommitHash,
		BuildTime:  BuildTime,
		StartTime:  StartTime,
	}
}
