package snowflake

import (
	"testing"
	"time"
)

func TestOrderedAndUnique(t *testing.T) {
	g := &Generator{MachineID: 7 << MachineIDShift}
	now := time.Now()
	seen := map[ID]bool{}
	var prev ID
	for i := 0; i < 1000; i++ {
		id := g.NextAt(now.Add(time.Duration(i) * time.Millisecond))
		if seen[id] {
			t.Fatalf("duplicate id %v", id)
		}
		if id <= prev {
			t.Fatalf("id %v not after %v", id, prev)
		}
		seen[id], prev = true, id
	}
	if prev.MachineID() != 7 {
		t.Fatalf("machine id = %d", prev.MachineID())
	}
	if prev.Timestamp().UnixMilli() != now.Add(999*time.Millisecond).UnixMilli() {
		t.Fatalf("timestamp = %v", prev.Timestamp())
	}
}

func TestParse(t *testing.T) {
	id := New()
	got, err := Parse(id.String())
	if err != nil || got != id {
		t.Fatalf("Parse(%q) = %v, %v", id.String(), got, err)
	}
}
