//go:build !linux

package media

import "fmt"

// NewSession creates a new platform-specific media session.
// Only MPRIS is supported; other platforms run without one.
func NewSession() (Session, error) {
	return nil, fmt.Errorf("media session not supported on this platform")
}
