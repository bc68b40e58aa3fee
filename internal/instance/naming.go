// Package instance validates the names that namespace a cmdbus deployment.
//
// The name becomes a segment of every Redis key and channel of the deployment
// (cmdbus:{name}:...), so it must never contain ':' or glob characters, and it
// is kept usable as a DNS label for the health endpoint's host.
package instance

import (
	"errors"
	"fmt"
	"regexp"
)

// MaxNameLength is the longest DNS label.
const MaxNameLength = 63

// ErrEmptyName is returned for an empty instance name.
var ErrEmptyName = errors.New("instance name cannot be empty")

// Lowercase alphanumeric runs joined by single hyphens.
var namePattern = regexp.MustCompile(`^[a-z0-9]+(-[a-z0-9]+)*$`)

// ValidateName reports why name cannot namespace a deployment, or nil.
func ValidateName(name string) error {
	switch {
	case name == "":
		return ErrEmptyName
	case len(name) > MaxNameLength:
		return fmt.Errorf("invalid instance name: %d characters exceeds the limit of %d", len(name), MaxNameLength)
	case !namePattern.MatchString(name):
		return fmt.Errorf("invalid instance name %q: use lowercase letters and digits, separated by single hyphens", name)
	}
	return nil
}
