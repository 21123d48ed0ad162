package config

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/pme-sh/lrpc/rate"
)

func TestLoadMissingFileHasDefaults(t *testing.T) {
	c, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	if err != nil {
		t.Fatal(err)
	}
	if c.Listen == "" || c.Transport != "tcp" || c.BoundTTL.Duration() != 10*time.Minute {
		t.Fatalf("unexpected defaults %+v", c)
	}
}

func TestSaveLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "lrpc.yaml")
	in, _ := Load(path)
	in.Service = "arith"
	in.Services["arith"] = []string{"127.0.0.1:7420", "127.0.0.1:7421"}
	in.RateLimit = rate.Rate{Count: 50, Period: time.Second}
	in.SetDefaults()
	if err := Save(path, &in); err != nil {
		t.Fatal(err)
	}
	out, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if out.Service != "arith" || len(out.Services["arith"]) != 2 || out.RateBurst != 50 {
		t.Fatalf("unexpected round trip %+v", out)
	}
	if out.PoolExpiry != in.PoolExpiry {
		t.Fatalf("pool expiry changed: %s != %s", out.PoolExpiry, in.PoolExpiry)
	}
}
