// Package snowflake mints time-ordered 64-bit ids that are unique per machine.
package snowflake

import (
	"crypto/rand"
	"crypto/sha1"
	"encoding/binary"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/samber/lo"
	"github.com/shirou/gopsutil/v3/host"
)

const (
	EpochBegin     = int64(1704067200000) // 2024-01-01T00:00:00Z
	SeqShift       = 0
	SeqMask        = uint64(0xFFF)
	MachineIDShift = 12
	MachineIDMask  = uint64(0x3FF000)
	TimestampShift = 22
)

type ID uint64

type Generator struct {
	MachineID uint32
	Sequence  uint32
}

func (g *Generator) NextAtUnixMilli(t int64) ID {
	return FromParts(g.MachineID, atomic.AddUint32(&g.Sequence, 1), t)
}
func (g *Generator) NextAt(t time.Time) ID {
	return g.NextAtUnixMilli(t.UnixMilli())
}
func (g *Generator) Next() ID {
	return g.NextAt(time.Now())
}

var DefaultGenerator = &Generator{}

func init() {
	var buf [8]byte
	lo.Must(rand.Read(buf[:]))
	DefaultGenerator.Sequence = binary.LittleEndian.Uint32(buf[4:])

	i, _ := host.Info()
	seed := buf[:4]
	if i != nil {
		seed = []byte(i.HostID + i.Hostname)
	}
	hash := sha1.Sum(seed)
	DefaultGenerator.MachineID = binary.BigEndian.Uint32(hash[:4]) << MachineIDShift
}

func New() ID {
	return DefaultGenerator.Next()
}

func FromParts(machineID uint32, seq uint32, unixMilli int64) ID {
	v := uint64(machineID) & MachineIDMask
	v |= uint64(seq) & SeqMask
	v |= uint64(unixMilli-EpochBegin) << TimestampShift
	return ID(v)
}

// Parse reads the base-36 form produced by String.
func Parse(s string) (ID, error) {
	v, err := strconv.ParseUint(s, 36, 64)
	return ID(v), err
}

func (value ID) String() string {
	return strconv.FormatUint(uint64(value), 36)
}
func (value ID) IsZero() bool {
	return value == 0
}
func (value ID) Sequence() uint32 {
	return uint32(value) & uint32(SeqMask)
}
func (value ID) MachineID() uint32 {
	return (uint32(value) & uint32(MachineIDMask)) >> MachineIDShift
}
func (value ID) Timestamp() time.Time {
	return time.UnixMilli(int64((uint64(value) >> TimestampShift) + uint64(EpochBegin)))
}
func (value ID) MarshalText() ([]byte, error) {
	return []byte(value.String()), nil
}
func (value *ID) UnmarshalText(data []byte) (err error) {
	*value, err = Parse(string(data))
	return
}
