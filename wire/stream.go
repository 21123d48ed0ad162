package wire

import (
	"bufio"
	"encoding/binary"
	"io"
	"net"
	"sync"

	"github.com/pme-sh/lrpc/fn"
	"github.com/pme-sh/lrpc/rpcerr"
)

// Stream frames packets over an ordered byte stream:
//
//	type:u8 | id:u64le | head:u64le | compact json body | '\n'
//
// Writes may come from any goroutine; reads belong to a single reader loop.
type Stream struct {
	c     io.ReadWriteCloser
	wb    *bufio.Writer
	rb    *bufio.Reader
	wlock sync.Mutex
}

var writerPool = sync.Pool{
	New: func() any {
		return bufio.NewWriterSize(nil, 64*1024)
	},
}

type rawHeader struct {
	Type uint8
	ID   uint64
	Head uint64
}

func NewStream(conn io.ReadWriteCloser) *Stream {
	if tcp, ok := conn.(*net.TCPConn); ok {
		tcp.SetNoDelay(true)
	}
	wb := writerPool.Get().(*bufio.Writer)
	wb.Reset(conn)
	return &Stream{
		c:  conn,
		wb: wb,
		rb: bufio.NewReader(conn),
	}
}

func (s *Stream) Close() error {
	s.wlock.Lock()
	defer s.wlock.Unlock()
	if s.wb != nil {
		s.wb.Reset(nil)
		writerPool.Put(s.wb)
		s.wb = nil
	}
	return s.c.Close()
}

func (s *Stream) Write(p *Packet) error {
	s.wlock.Lock()
	defer s.wlock.Unlock()
	if s.wb == nil {
		return io.ErrClosedPipe
	}

	h := rawHeader{uint8(p.Type), uint64(p.ID), uint64(p.Head)}
	if err := binary.Write(s.wb, binary.LittleEndian, &h); err != nil {
		return err
	}
	body := p.Body
	if n := len(body); n == 0 {
		body = []byte("null\n")
	} else if body[n-1] != '\n' {
		s.wb.Write(body)
		body = []byte{'\n'}
	}
	s.wb.Write(body)
	return s.wb.Flush()
}

// Read fills p with the next packet. An unknown message type is a protocol
// violation the stream cannot recover from.
func (s *Stream) Read(p *Packet) (err error) {
	var h rawHeader
	if err = binary.Read(s.rb, binary.LittleEndian, &h); err != nil {
		return
	}
	p.Header = Header{Type: MessageType(h.Type)}
	p.ID = fn.ExecutionId(h.ID)
	p.Head = fn.HeadExecutionId(h.Head)
	if !p.Type.Valid() {
		return rpcerr.Errorf(rpcerr.ProtocolViolation, "unknown message type %d", h.Type)
	}
	line, err := s.rb.ReadSlice('\n')
	body := append(p.Body[:0], line...)
	if err == bufio.ErrBufferFull {
		var rest []byte
		rest, err = s.rb.ReadBytes('\n')
		body = append(body, rest...)
	}
	p.Body = body
	return
}
