package auth

import (
	"fmt"
	"time"
)

// Policy decides what happens to a signed-in identity when re-validation
// could not reach either auth scheme.
type Policy string

const (
	// PolicyRetain keeps the current identity until a scheme answers.
	PolicyRetain Policy = "retain"
	// PolicyDrop signs the user out as soon as re-validation fails.
	PolicyDrop Policy = "drop"
)

// ParsePolicy validates a policy name.
func ParsePolicy(s string) (Policy, error) {
	switch Policy(s) {
	case PolicyRetain, PolicyDrop:
		return Policy(s), nil
	case "":
		return PolicyRetain, nil
	}
	return "", fmt.Errorf("unknown transport error policy %q", s)
}

// Config configures a Resolver.
type Config struct {
	// RevalidateInterval is the period of Run's re-validation loop.
	RevalidateInterval time.Duration
	// ValidateTimeout bounds a background validation.
	ValidateTimeout time.Duration
	// OnTransportError applies when an already signed-in identity is
	// re-validated and every remote step failed without a definite answer.
	OnTransportError Policy
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		RevalidateInterval: 5 * time.Minute,
		ValidateTimeout:    30 * time.Second,
		OnTransportError:   PolicyRetain,
	}
}
