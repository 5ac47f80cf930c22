package smbus

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/stretchr/testify/mock"
)

func newTestRegistry() *Registry {
	return New(WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))))
}

// bareAlgo identifies itself and declares no capabilities.
type bareAlgo struct {
	name string
}

func (b *bareAlgo) Name() string { return b.name }

// stubAlgo adds client hooks driven by behavior funcs.
type stubAlgo struct {
	name           string
	registerFunc   func(c *Client) error
	unregisterFunc func(c *Client) error
	registered     int64
	unregistered   int64
}

func (s *stubAlgo) Name() string { return s.name }

func (s *stubAlgo) RegisterClient(c *Client) error {
	atomic.AddInt64(&s.registered, 1)
	if s.registerFunc != nil {
		return s.registerFunc(c)
	}
	return nil
}

func (s *stubAlgo) UnregisterClient(c *Client) error {
	atomic.AddInt64(&s.unregistered, 1)
	if s.unregisterFunc != nil {
		return s.unregisterFunc(c)
	}
	return nil
}

// xferAlgo captures emulated-path master transfers.
type xferAlgo struct {
	name     string
	xferFunc func(ctx context.Context, a *Adapter, msgs []Msg) (int, error)

	mu    sync.Mutex
	calls [][]Msg
}

func (x *xferAlgo) Name() string { return x.name }

func (x *xferAlgo) MasterXfer(ctx context.Context, a *Adapter, msgs []Msg) (int, error) {
	cp := make([]Msg, len(msgs))
	for i, m := range msgs {
		cp[i] = Msg{Addr: m.Addr, Flags: m.Flags, Buf: append([]byte(nil), m.Buf...)}
	}
	x.mu.Lock()
	x.calls = append(x.calls, cp)
	x.mu.Unlock()
	if x.xferFunc != nil {
		return x.xferFunc(ctx, a, msgs)
	}
	return len(msgs), nil
}

// stubDriver is a behavior-func driver for probe scenarios.
type stubDriver struct {
	name       string
	attachFunc func(ctx context.Context, a *Adapter) error
	detachFunc func(ctx context.Context, c *Client) error
	probes     int64
}

func (d *stubDriver) Name() string { return d.name }

func (d *stubDriver) AttachAdapter(ctx context.Context, a *Adapter) error {
	atomic.AddInt64(&d.probes, 1)
	if d.attachFunc != nil {
		return d.attachFunc(ctx, a)
	}
	return nil
}

func (d *stubDriver) DetachClient(ctx context.Context, c *Client) error {
	if d.detachFunc != nil {
		return d.detachFunc(ctx, c)
	}
	return nil
}

// mockDriver is a testify mock for hook call assertions.
type mockDriver struct {
	mock.Mock
	name string
}

func (d *mockDriver) Name() string { return d.name }

func (d *mockDriver) AttachAdapter(ctx context.Context, a *Adapter) error {
	args := d.Called(ctx, a)
	return args.Error(0)
}

func (d *mockDriver) DetachClient(ctx context.Context, c *Client) error {
	args := d.Called(ctx, c)
	return args.Error(0)
}

// slaveAlgo exposes the slave and control capabilities over in-memory
// buffers.
type slaveAlgo struct {
	name  string
	inbox []byte
	speed int64
}

func (s *slaveAlgo) Name() string { return s.name }

func (s *slaveAlgo) SlaveSend(ctx context.Context, a *Adapter, buf []byte) (int, error) {
	s.inbox = append(s.inbox, buf...)
	return len(buf), nil
}

func (s *slaveAlgo) SlaveRecv(ctx context.Context, a *Adapter, buf []byte) (int, error) {
	n := copy(buf, s.inbox)
	s.inbox = s.inbox[n:]
	return n, nil
}

func (s *slaveAlgo) Control(ctx context.Context, a *Adapter, cmd uint, arg any) error {
	hz, ok := arg.(int64)
	if !ok {
		return ErrNotSupported
	}
	s.speed = hz
	return nil
}

// cmdDriver answers driver commands and counts references.
type cmdDriver struct {
	stubDriver
	lastCmd uint
	lastArg any
	uses    int64
}

func (d *cmdDriver) Command(ctx context.Context, c *Client, cmd uint, arg any) error {
	d.lastCmd = cmd
	d.lastArg = arg
	return nil
}

func (d *cmdDriver) IncUse(c *Client) { atomic.AddInt64(&d.uses, 1) }
func (d *cmdDriver) DecUse(c *Client) { atomic.AddInt64(&d.uses, -1) }

type quickCall struct {
	dir     Direction
	dataNil bool
}

// regmap is an in-memory register map posing as SMBus-native hardware.
// It tracks call and concurrency counts the way a logic analyzer would.
type regmap struct {
	mu     sync.Mutex
	bytes  map[uint16]uint8
	words  map[uint16]uint16
	blocks map[uint16][]byte
	recv   map[uint8]uint8
	quicks []quickCall

	delay time.Duration
	err   error

	calls         int64
	concurrentOps int64
	maxConcurrent int64
}

func newRegmap() *regmap {
	return &regmap{
		bytes:  make(map[uint16]uint8),
		words:  make(map[uint16]uint16),
		blocks: make(map[uint16][]byte),
		recv:   make(map[uint8]uint8),
	}
}

func key(addr, command uint8) uint16 {
	return uint16(addr)<<8 | uint16(command)
}

func (m *regmap) access(ctx context.Context, addr uint8, dir Direction, command uint8, kind Kind, data *Data) error {
	atomic.AddInt64(&m.calls, 1)
	m.mu.Lock()
	concurrent := atomic.AddInt64(&m.concurrentOps, 1)
	if concurrent > atomic.LoadInt64(&m.maxConcurrent) {
		atomic.StoreInt64(&m.maxConcurrent, concurrent)
	}
	m.mu.Unlock()
	defer atomic.AddInt64(&m.concurrentOps, -1)

	if m.delay > 0 {
		time.Sleep(m.delay)
	}
	if m.err != nil {
		return m.err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	k := key(addr, command)
	switch kind {
	case KindQuick:
		m.quicks = append(m.quicks, quickCall{dir: dir, dataNil: data == nil})
	case KindByte:
		if dir == Read {
			data.Byte = m.recv[addr]
		} else {
			m.recv[addr] = command
		}
	case KindByteData:
		if dir == Read {
			data.Byte = m.bytes[k]
		} else {
			m.bytes[k] = data.Byte
		}
	case KindWordData:
		if dir == Read {
			data.Word = m.words[k]
		} else {
			m.words[k] = data.Word
		}
	case KindProcCall:
		prev := m.words[k]
		m.words[k] = data.Word
		data.Word = prev
	case KindBlockData:
		if dir == Read {
			stored := m.blocks[k]
			data.SetBlock(stored)
		} else {
			m.blocks[k] = append([]byte(nil), data.BlockBytes()...)
		}
	}
	return nil
}

func (m *regmap) maxConcurrentOps() int64 {
	return atomic.LoadInt64(&m.maxConcurrent)
}

func (m *regmap) accessCalls() int64 {
	return atomic.LoadInt64(&m.calls)
}
