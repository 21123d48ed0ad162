package config

import (
	"bytes"
	"os"
	"path/filepath"
	"sync/atomic"
	"time"

	"github.com/pme-sh/lrpc/rate"
	"github.com/pme-sh/lrpc/retry"
	"github.com/pme-sh/lrpc/util"

	atomicfile "github.com/natefinch/atomic"
	"gopkg.in/yaml.v3"
)

type Etcd struct {
	Endpoints []string `yaml:"endpoints,omitempty"` // Cluster members, discovery through etcd is disabled when empty
	Prefix    string   `yaml:"prefix,omitempty"`    // Key prefix for announcements
	TTL       int64    `yaml:"ttl,omitempty"`       // Lease TTL in seconds
}

type Nats struct {
	URL    string `yaml:"url,omitempty"`    // Server URL, discovery through NATS is disabled when empty
	Bucket string `yaml:"bucket,omitempty"` // JetStream key-value bucket
}

type Config struct {
	Service     string              `yaml:"service,omitempty"`   // Service id served by this instance
	Listen      string              `yaml:"listen"`              // Listen address
	Advertise   string              `yaml:"advertise,omitempty"` // Endpoint given to peers, defaults to the listen address
	Transport   string              `yaml:"transport"`           // tcp or ws
	Services    map[string][]string `yaml:"services,omitempty"`  // Static service id -> endpoints table
	Etcd        Etcd                `yaml:"etcd,omitempty"`
	Nats        Nats                `yaml:"nats,omitempty"`
	PoolExpiry  util.Duration       `yaml:"pool_expiry"`          // Idle time before a pooled session is closed
	BoundTTL    util.Duration       `yaml:"bound_ttl"`            // Idle time before a published bound function is dropped
	CallTimeout util.Duration       `yaml:"call_timeout"`         // Deadline of a single CLI call
	RateLimit   rate.Rate           `yaml:"rate_limit,omitempty"` // Inbound invocations per channel such as "100/s", 0 for unlimited
	RateBurst   int                 `yaml:"rate_burst,omitempty"`
	Retry       retry.Policy        `yaml:"retry,omitempty"`
}

func (c *Config) SetDefaults() {
	if c.Listen == "" {
		c.Listen = "127.0.0.1:7420"
	}
	if c.Transport == "" {
		c.Transport = "tcp"
	}
	if c.Services == nil {
		c.Services = map[string][]string{}
	}
	if c.Etcd.Prefix == "" {
		c.Etcd.Prefix = "/lrpc/services/"
	}
	if c.Etcd.TTL == 0 {
		c.Etcd.TTL = 10
	}
	if c.Nats.Bucket == "" {
		c.Nats.Bucket = "lrpc-services"
	}
	c.PoolExpiry = c.PoolExpiry.Or(2 * time.Minute)
	c.BoundTTL = c.BoundTTL.Or(10 * time.Minute)
	c.CallTimeout = c.CallTimeout.Or(30 * time.Second)
	if !c.RateLimit.IsZero() && c.RateBurst <= 0 {
		c.RateBurst = int(c.RateLimit.Count)
	}
}

// AdvertisedAddr is the address peers should dial.
func (c *Config) AdvertisedAddr() string {
	if c.Advertise != "" {
		return c.Advertise
	}
	return c.Listen
}

func Path() string {
	if *ConfigFile != "" {
		return *ConfigFile
	}
	return filepath.Join(Home(), "config.yaml")
}

// Load reads the file at path; a missing file yields the defaults.
func Load(path string) (out Config, err error) {
	data, err := os.ReadFile(path)
	if err != nil && !os.IsNotExist(err) {
		return
	}
	err = nil
	if len(data) != 0 {
		err = yaml.Unmarshal(data, &out)
	}
	out.SetDefaults()
	return
}

func Marshal(c *Config) ([]byte, error) {
	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(c); err != nil {
		return nil, err
	}
	return buf.Bytes(), enc.Close()
}

// Save writes c to path atomically.
func Save(path string, c *Config) error {
	data, err := Marshal(c)
	if err != nil {
		return err
	}
	if dir := filepath.Dir(path); dir != "" {
		os.MkdirAll(dir, 0755)
	}
	return atomicfile.WriteFile(path, bytes.NewReader(data))
}

var settings atomic.Pointer[Config]

// Update applies update to the configuration on disk under the file lock.
func Update(update func(*Config) error) error {
	return WithLock(func() error {
		c, err := Load(Path())
		if err != nil {
			return err
		}
		if update != nil {
			if err = update(&c); err != nil {
				return err
			}
		}
		if err = Save(Path(), &c); err != nil {
			return err
		}
		settings.Store(&c)
		return nil
	})
}

// Get returns the configuration, loading it on first use.
func Get() (*Config, error) {
	if res := settings.Load(); res != nil {
		return res, nil
	}
	c, err := Load(Path())
	if err != nil {
		return nil, err
	}
	settings.Store(&c)
	return &c, nil
}
