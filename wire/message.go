package wire

import (
	"fmt"

	"github.com/pme-sh/lrpc/fn"
	"github.com/pme-sh/lrpc/rpcerr"
)

type MessageType uint8

const (
	TypeInvoke MessageType = 'I'
	TypeResult MessageType = 'R'
	TypeError  MessageType = 'E'
)

func (t MessageType) Valid() bool {
	return t == TypeInvoke || t == TypeResult || t == TypeError
}
func (t MessageType) String() string {
	switch t {
	case TypeInvoke:
		return "invoke"
	case TypeResult:
		return "result"
	case TypeError:
		return "error"
	}
	return fmt.Sprintf("type(%d)", uint8(t))
}

// Header precedes every body on the stream. Head is zero on results and errors.
type Header struct {
	Type MessageType
	ID   fn.ExecutionId
	Head fn.HeadExecutionId
}

// Target names what an Invoke calls: an entry of the receiver's channel
// registry, or a function the receiver exposes as a service.
type Target struct {
	Name    fn.AccessName `json:"name"`
	Channel bool          `json:"channel,omitempty"`
}

func ChannelTarget(name fn.AccessName) Target { return Target{Name: name, Channel: true} }
func ServiceTarget(name fn.AccessName) Target { return Target{Name: name} }

func (t Target) String() string {
	if t.Channel {
		return "channel:" + string(t.Name)
	}
	return string(t.Name)
}

type Invoke struct {
	ID     fn.ExecutionId     `json:"-"`
	Head   fn.HeadExecutionId `json:"-"`
	Target Target             `json:"target"`
	Args   []Entity           `json:"args"`
}

// Nested reports whether the invocation is subordinate to another execution.
func (m *Invoke) Nested() bool { return fn.HeadExecutionId(m.ID) != m.Head }

func (m *Invoke) Validate() error {
	if m.ID == 0 || m.Head == 0 {
		return rpcerr.New(rpcerr.ProtocolViolation, "invoke without execution id")
	}
	if m.Target.Name == "" {
		return rpcerr.New(rpcerr.MalformedEntity, "invoke without target")
	}
	for i := range m.Args {
		if err := m.Args[i].Validate(); err != nil {
			return err
		}
	}
	return nil
}

type Result struct {
	ID    fn.ExecutionId
	Value Entity
}

type Error struct {
	ID  fn.ExecutionId
	Err *rpcerr.Error
}
