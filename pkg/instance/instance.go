// Package instance names the running process for log fields.
package instance

import (
	"os"
	"strings"
)

var sources = []string{"DYNO", "WORKER_ID"}

// ID returns the platform-assigned instance name. DYNO wins over WORKER_ID,
// then the hostname is used, and "local" when nothing is available.
func ID() string {
	for _, key := range sources {
		if v := strings.TrimSpace(os.Getenv(key)); v != "" {
			return v
		}
	}
	if host, err := os.Hostname(); err == nil && host != "" {
		return host
	}
	return "local"
}
