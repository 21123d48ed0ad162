package fn

import (
	"fmt"
	"net"
	"strconv"
	"strings"

	uuid "github.com/satori/go.uuid"
)

// AccessName identifies a function within the scope that defines it, either a name a
// service declared or one a registry minted for a closure.
type AccessName string

func (n AccessName) String() string { return string(n) }

// ServiceId identifies a logical service, shared by all of its replicas.
type ServiceId string

func NewServiceId() ServiceId {
	return ServiceId(uuid.NewV4().String())
}

// ParseServiceId accepts UUIDs (normalized to their canonical form) or any other
// non-empty token without whitespace.
func ParseServiceId(s string) (ServiceId, error) {
	if u, err := uuid.FromString(s); err == nil {
		return ServiceId(u.String()), nil
	}
	if s == "" || strings.ContainsAny(s, " \t\r\n") {
		return "", fmt.Errorf("invalid service id: %q", s)
	}
	return ServiceId(s), nil
}

func (id ServiceId) String() string { return string(id) }

// Endpoint is the network address of one running service instance.
type Endpoint struct {
	Host string
	Port int
}

func ParseEndpoint(s string) (ep Endpoint, err error) {
	host, port, err := net.SplitHostPort(s)
	if err != nil {
		return
	}
	p, err := strconv.Atoi(port)
	if err != nil || p <= 0 || p > 0xffff {
		return ep, fmt.Errorf("invalid endpoint port: %q", s)
	}
	return Endpoint{Host: host, Port: p}, nil
}

func (e Endpoint) IsZero() bool { return e.Host == "" && e.Port == 0 }
func (e Endpoint) String() string {
	return net.JoinHostPort(e.Host, strconv.Itoa(e.Port))
}
func (e Endpoint) MarshalText() ([]byte, error) {
	return []byte(e.String()), nil
}
func (e *Endpoint) UnmarshalText(text []byte) (err error) {
	*e, err = ParseEndpoint(string(text))
	return
}

// ExecutionId names one in-flight invocation on a channel.
type ExecutionId uint64

// HeadExecutionId names the top-level invocation a nested one is subordinate to.
type HeadExecutionId uint64

func (id ExecutionId) String() string     { return strconv.FormatUint(uint64(id), 10) }
func (id HeadExecutionId) String() string { return strconv.FormatUint(uint64(id), 10) }

// Head returns the head id of a top-level execution, which is its own id.
func (id ExecutionId) Head() HeadExecutionId { return HeadExecutionId(id) }
