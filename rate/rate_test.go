package rate

import (
	"testing"
	"time"

	"gopkg.in/yaml.v3"
)

func TestParse(t *testing.T) {
	cases := map[string]Rate{
		"100/s":  {100, time.Second},
		"5/1m":   {5, time.Minute},
		"250ms":  {1, 250 * time.Millisecond},
		"0":      {},
		"":       {},
		"10/90s": {10, 90 * time.Second},
	}
	for in, want := range cases {
		got, err := Parse(in)
		if err != nil || got != want {
			t.Fatalf("Parse(%q) = %v, %v; want %v", in, got, err, want)
		}
	}
	if _, err := Parse("x/s"); err == nil {
		t.Fatalf("expected error")
	}
}

func TestLimiter(t *testing.T) {
	if l := (Rate{}).Limiter(0); l != nil {
		t.Fatalf("zero rate produced a limiter")
	}
	l := Rate{Count: 10, Period: time.Second}.Limiter(0)
	if l.Burst() != 10 {
		t.Fatalf("burst = %d", l.Burst())
	}
	if got := float64(l.Limit()); got < 9.99 || got > 10.01 {
		t.Fatalf("limit = %v", got)
	}
}

func TestYAML(t *testing.T) {
	var v struct {
		R Rate `yaml:"r"`
	}
	if err := yaml.Unmarshal([]byte("r: 20/s\n"), &v); err != nil {
		t.Fatal(err)
	}
	if v.R != (Rate{20, time.Second}) {
		t.Fatalf("got %v", v.R)
	}
	out, _ := yaml.Marshal(v)
	if string(out) != "r: 20/1s\n" {
		t.Fatalf("marshal = %q", out)
	}
}
