package config

import (
	"fmt"
	"time"
)

// Duration is a time.Duration flag.Value, letting modules register
// durations ("100ms", "2s") as ordinary string-valued flags.
type Duration time.Duration

// String implements flag.Value.
func (d *Duration) String() string {
	return time.Duration(*d).String()
}

// Set implements flag.Value.
func (d *Duration) Set(value string) error {
	parsed, err := time.ParseDuration(value)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", value, err)
	}
	*d = Duration(parsed)
	return nil
}

// Duration unwraps to a time.Duration.
func (d Duration) Duration() time.Duration {
	return time.Duration(d)
}
