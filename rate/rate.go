// Package rate parses rates written as "count/period" such as "100/s" or
// "5/1m", and turns them into token bucket limiters.
package rate

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	xrate "golang.org/x/time/rate"
	"gopkg.in/yaml.v3"
)

type Rate struct {
	Count  uint
	Period time.Duration
}

func Parse(s string) (Rate, error) {
	var r Rate
	err := r.UnmarshalText([]byte(s))
	return r, err
}

func (d Rate) IsZero() bool {
	return d.Period == 0 || d.Count == 0
}
func (d Rate) String() string {
	if d.IsZero() {
		return "0"
	}
	return fmt.Sprintf("%d/%s", d.Count, d.Period)
}
func (d Rate) Interval() time.Duration {
	return d.Period / time.Duration(d.Count)
}

// Limit is the rate in events per second, xrate.Inf for the zero rate.
func (d Rate) Limit() xrate.Limit {
	if d.IsZero() {
		return xrate.Inf
	}
	return xrate.Every(d.Interval())
}

// Limiter returns a limiter allowing bursts of burst events, or of Count
// events when burst is not positive. The zero rate yields nil, meaning no limit.
func (d Rate) Limiter(burst int) *xrate.Limiter {
	if d.IsZero() {
		return nil
	}
	if burst <= 0 {
		burst = int(d.Count)
	}
	return xrate.NewLimiter(d.Limit(), burst)
}

func (d Rate) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}
func (d *Rate) UnmarshalText(text []byte) (err error) {
	if len(text) == 0 || string(text) == "0" {
		*d = Rate{}
		return nil
	}
	if before, after, ok := strings.Cut(string(text), "/"); ok {
		var n uint64
		n, err = strconv.ParseUint(before, 10, 32)
		if err != nil {
			return
		}
		d.Count = uint(n)
		d.Period, err = time.ParseDuration(after)
		if err != nil {
			after = "1" + after
			d.Period, err = time.ParseDuration(after)
		}
		return
	} else {
		d.Count = 1
		d.Period, err = time.ParseDuration(string(text))
		return
	}
}
func (d Rate) MarshalYAML() (any, error) {
	return d.String(), nil
}
func (d *Rate) UnmarshalYAML(node *yaml.Node) error {
	var res string
	if err := node.Decode(&res); err != nil {
		return err
	}
	return d.UnmarshalText([]byte(res))
}
func (d Rate) MarshalJSON() ([]byte, error) {
	return json.Marshal(d.String())
}
func (d *Rate) UnmarshalJSON(data []byte) error {
	var res string
	if err := json.Unmarshal(data, &res); err != nil {
		return err
	}
	return d.UnmarshalText([]byte(res))
}
