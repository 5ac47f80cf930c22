package adapter

import (
	"context"
	"fmt"
	"sync"

	"github.com/renardein/smbus"
)

// MockBehaviorFunc replaces the built-in register handling of a Mock.
// Installing one turns the mock into a scriptable bus, which is how
// tests inject faults.
type MockBehaviorFunc func(ctx context.Context, addr uint8, dir smbus.Direction, command uint8, kind smbus.Kind, data *smbus.Data) error

// Mock emulates a bus populated with in-memory devices so front ends
// and tests can run without hardware. Devices answer quick probes once
// added; registers read back whatever was last written to them.
type Mock struct {
	mx       sync.Mutex
	behavior MockBehaviorFunc
	present  map[uint8]bool
	bytes    map[uint16]uint8
	words    map[uint16]uint16
	blocks   map[uint16][]byte
	recv     map[uint8]uint8
	quicks   map[uint8]int
}

type MockOpt func(*Mock)

// WithMockBehavior installs fn in place of the built-in register file.
func WithMockBehavior(fn MockBehaviorFunc) MockOpt {
	return func(m *Mock) { m.behavior = fn }
}

func NewMock(opts ...MockOpt) *Mock {
	m := &Mock{
		present: map[uint8]bool{},
		bytes:   map[uint16]uint8{},
		words:   map[uint16]uint16{},
		blocks:  map[uint16][]byte{},
		recv:    map[uint8]uint8{},
		quicks:  map[uint8]int{},
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Adapter wraps the register file in a bus adapter under the given
// name.
func (m *Mock) Adapter(name string) *smbus.Adapter {
	return smbus.NewAdapter(name, smbus.Native, smbus.WithAccessFunc(m.access))
}

// AddDevice makes a bare device acknowledge at addr.
func (m *Mock) AddDevice(addr uint8) {
	m.mx.Lock()
	defer m.mx.Unlock()
	m.present[addr] = true
}

func (m *Mock) SetByte(addr, command, value uint8) {
	m.mx.Lock()
	defer m.mx.Unlock()
	m.present[addr] = true
	m.bytes[mockKey(addr, command)] = value
}

func (m *Mock) SetWord(addr, command uint8, value uint16) {
	m.mx.Lock()
	defer m.mx.Unlock()
	m.present[addr] = true
	m.words[mockKey(addr, command)] = value
}

func (m *Mock) SetBlock(addr, command uint8, buf []byte) {
	if len(buf) > smbus.BlockMax {
		buf = buf[:smbus.BlockMax]
	}
	m.mx.Lock()
	defer m.mx.Unlock()
	m.present[addr] = true
	m.blocks[mockKey(addr, command)] = append([]byte(nil), buf...)
}

func (m *Mock) access(ctx context.Context, addr uint8, dir smbus.Direction, command uint8, kind smbus.Kind, data *smbus.Data) error {
	if data == nil && needsData(kind, dir) {
		return fmt.Errorf("%s %s: %w", dir, kind, smbus.ErrMissingData)
	}
	m.mx.Lock()
	defer m.mx.Unlock()
	if m.behavior != nil {
		return m.behavior(ctx, addr, dir, command, kind, data)
	}
	if !m.present[addr] {
		return noAck(addr)
	}
	key := mockKey(addr, command)
	switch kind {
	case smbus.KindQuick:
		m.quicks[addr]++
		return nil
	case smbus.KindByte:
		if dir == smbus.Read {
			data.Byte = m.recv[addr]
			return nil
		}
		m.recv[addr] = command
		return nil
	case smbus.KindByteData:
		if dir == smbus.Read {
			data.Byte = m.bytes[key]
			return nil
		}
		m.bytes[key] = data.Byte
		return nil
	case smbus.KindWordData:
		if dir == smbus.Read {
			data.Word = m.words[key]
			return nil
		}
		m.words[key] = data.Word
		return nil
	case smbus.KindProcCall:
		// answer with the previous register value, then latch the input
		prev := m.words[key]
		m.words[key] = data.Word
		data.Word = prev
		return nil
	case smbus.KindBlockData:
		if dir == smbus.Read {
			data.SetBlock(m.blocks[key])
			return nil
		}
		m.blocks[key] = append([]byte(nil), data.BlockBytes()...)
		return nil
	}
	return fmt.Errorf("kind %d: %w", kind, smbus.ErrNotSupported)
}

// QuickCount reports how many quick pulses the device at addr has
// acknowledged, which is what scan tests assert on.
func (m *Mock) QuickCount(addr uint8) int {
	m.mx.Lock()
	defer m.mx.Unlock()
	return m.quicks[addr]
}

func mockKey(addr, command uint8) uint16 {
	return uint16(addr)<<8 | uint16(command)
}

// noAck is what the controller reports when nothing answers at addr.
func noAck(addr uint8) error {
	return fmt.Errorf("no acknowledge from device %x: %w", addr, &smbus.TransferError{Code: -6})
}
