package util

import (
	"bytes"
	"context"
	"encoding/json"
	"time"

	"gopkg.in/yaml.v3"
)

// Duration is a time.Duration that reads and writes as text ("1m30s") in YAML,
// JSON and flags. "never" is stored as a negative duration.
type Duration time.Duration

func (d Duration) IsZero() bool     { return d == 0 }
func (d Duration) IsPositive() bool { return d > 0 }
func (d Duration) Duration() time.Duration {
	return time.Duration(d)
}

// Or substitutes o for an unset duration.
func (d Duration) Or(o time.Duration) Duration {
	if d.IsZero() {
		return Duration(o)
	}
	return Duration(max(0, d))
}

// Timeout bounds ctx by d when d is positive.
func (d Duration) Timeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if !d.IsPositive() {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, time.Duration(d))
}

func (d Duration) String() string {
	if d < 0 {
		return "never"
	}
	return time.Duration(d).String()
}
func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}
func (d *Duration) UnmarshalText(text []byte) (err error) {
	if bytes.Equal(text, []byte("never")) {
		*d = -1
		return
	}
	dx, err := time.ParseDuration(string(text))
	*d = Duration(dx)
	return
}

// Set and Type let a Duration be bound as a pflag value.
func (d *Duration) Set(s string) error { return d.UnmarshalText([]byte(s)) }
func (d *Duration) Type() string       { return "duration" }

func (d Duration) MarshalYAML() (any, error) {
	return d.String(), nil
}
func (d *Duration) UnmarshalYAML(node *yaml.Node) error {
	var res string
	if err := node.Decode(&res); err != nil {
		return err
	}
	return d.UnmarshalText([]byte(res))
}
func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(d.String())
}
func (d *Duration) UnmarshalJSON(text []byte) (err error) {
	var res string
	if err := json.Unmarshal(text, &res); err != nil {
		return err
	}
	return d.UnmarshalText([]byte(res))
}
