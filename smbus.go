// Package smbus is a bus abstraction and transaction dispatch layer for
// SMBus controllers. Algorithms describe how a class of controllers moves
// bytes, adapters are controller instances bound to one algorithm, drivers
// describe how to operate a class of chips, and clients are chip instances
// bound to one driver and one adapter. A registry ties the four together
// and a single dispatcher routes typed transactions through the owning
// adapter's access routine.
package smbus

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// ClientMax bounds the number of clients attached to a single adapter.
const ClientMax = 32

// AlgoSMBus marks adapters that carry a native SMBus access routine. The
// routine is present if and only if this flag is set.
const AlgoSMBus uint32 = 0x40000

// AccessFunc is the low-level access routine an SMBus-native adapter
// supplies. It receives the transaction exactly as handed to the
// dispatcher and owns all hardware specifics, including the adapter's
// timeout and retry policy. The dispatcher never retries.
type AccessFunc func(ctx context.Context, addr uint8, dir Direction, command uint8, kind Kind, data *Data) error

// MsgFlags qualify a raw bus message.
type MsgFlags uint16

// MsgRead marks a message as a read from the addressed chip.
const MsgRead MsgFlags = 0x0001

// Msg is one raw message of a master transfer, used on the emulated
// dispatch path for adapters without a native SMBus routine.
type Msg struct {
	Addr  uint8
	Flags MsgFlags
	Buf   []byte
}

// Algorithm describes how a class of bus controllers is accessed. A bare
// Algorithm only identifies itself; actual bus operations are declared by
// implementing the capability interfaces below.
type Algorithm interface {
	Name() string
}

// Native is the algorithm shared by every adapter that carries its own
// SMBus access routine. It declares no bus capabilities; the routine on
// the adapter does all the work.
var Native Algorithm = nativeAlgo{}

type nativeAlgo struct{}

func (nativeAlgo) Name() string { return "smbus-native" }

// MasterTransferor executes raw master transfers. The dispatcher falls
// back to it for adapters without a native SMBus routine, translating
// each transaction into one or two messages. It returns the number of
// messages transferred.
type MasterTransferor interface {
	MasterXfer(ctx context.Context, a *Adapter, msgs []Msg) (int, error)
}

// SlaveSender sends buf when the controller is addressed as a slave.
type SlaveSender interface {
	SlaveSend(ctx context.Context, a *Adapter, buf []byte) (int, error)
}

// SlaveReceiver receives into buf when the controller is addressed as a
// slave.
type SlaveReceiver interface {
	SlaveRecv(ctx context.Context, a *Adapter, buf []byte) (int, error)
}

// Controller handles algorithm-specific control requests. Command numbers
// are private to each algorithm.
type Controller interface {
	Control(ctx context.Context, a *Adapter, cmd uint, arg any) error
}

// ClientHook is notified when clients come and go on adapters bound to
// the algorithm. Hooks run under the registry lock and must not call back
// into the registry. A RegisterClient error aborts the attach.
type ClientHook interface {
	RegisterClient(c *Client) error
	UnregisterClient(c *Client) error
}

// Driver describes how to operate a class of chips. AttachAdapter is
// the detection probe: the registry invokes it against every adapter
// registered now or later, and the driver attaches a client for each chip
// it recognizes; it runs outside the registry lock and may call back into
// the registry. DetachClient is the driver's cleanup hook, invoked before
// a client of this driver is removed; it runs under the registry lock and
// must not call back in.
type Driver interface {
	Name() string
	AttachAdapter(ctx context.Context, a *Adapter) error
	DetachClient(ctx context.Context, c *Client) error
}

// Commander handles driver-specific control requests addressed to one
// client. Command numbers are private to each driver.
type Commander interface {
	Command(ctx context.Context, c *Client, cmd uint, arg any) error
}

// UsageCounter lets a driver track live references to its clients.
type UsageCounter interface {
	IncUse(c *Client)
	DecUse(c *Client)
}

// Adapter is one registered bus controller. The hardware collaborator
// constructs it, supplies the access routine or a MasterTransferor
// algorithm, and keeps all controller state on its own side.
type Adapter struct {
	name    string
	id      int
	algo    Algorithm
	flags   uint32
	access  AccessFunc
	timeout time.Duration
	retries int

	// mx serializes transactions, cmu guards the client table. The
	// registry takes cmu after its own lock, never the other way round.
	mx      sync.Mutex
	cmu     sync.RWMutex
	clients []*Client
}

// AdapterOpt configures an adapter at construction.
type AdapterOpt func(*Adapter)

// WithAccessFunc installs a native SMBus access routine and flags the
// adapter AlgoSMBus. A nil routine clears the flag again; the routine is
// present if and only if the flag is set.
func WithAccessFunc(fn AccessFunc) AdapterOpt {
	return func(a *Adapter) {
		a.access = fn
		if fn == nil {
			a.flags &^= AlgoSMBus
			return
		}
		a.flags |= AlgoSMBus
	}
}

// WithTimeout records the per-transaction timeout the adapter's access
// routine honors.
func WithTimeout(d time.Duration) AdapterOpt {
	return func(a *Adapter) { a.timeout = d }
}

// WithRetries caps how many times the adapter's access routine may
// retry a busy transaction.
func WithRetries(n int) AdapterOpt {
	return func(a *Adapter) { a.retries = n }
}

// NewAdapter builds an unregistered adapter bound to algo.
func NewAdapter(name string, algo Algorithm, opts ...AdapterOpt) *Adapter {
	a := &Adapter{name: name, algo: algo}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

func (a *Adapter) Name() string           { return a.name }
func (a *Adapter) ID() int                { return a.id }
func (a *Adapter) Algorithm() Algorithm   { return a.algo }
func (a *Adapter) Flags() uint32          { return a.flags }
func (a *Adapter) Timeout() time.Duration { return a.timeout }
func (a *Adapter) Retries() int           { return a.retries }

// SMBusNative reports whether the adapter carries a direct access routine.
func (a *Adapter) SMBusNative() bool { return a.flags&AlgoSMBus != 0 }

// Clients returns a snapshot of the attached clients in arrival order.
func (a *Adapter) Clients() []*Client {
	a.cmu.RLock()
	defer a.cmu.RUnlock()
	out := make([]*Client, len(a.clients))
	copy(out, a.clients)
	return out
}

func (a *Adapter) ClientCount() int {
	a.cmu.RLock()
	defer a.cmu.RUnlock()
	return len(a.clients)
}

// ClientByAddr finds the attached client holding addr.
func (a *Adapter) ClientByAddr(addr uint8) (*Client, bool) {
	a.cmu.RLock()
	defer a.cmu.RUnlock()
	for _, c := range a.clients {
		if c.addr == addr {
			return c, true
		}
	}
	return nil, false
}

func (a *Adapter) attached(c *Client) bool {
	a.cmu.RLock()
	defer a.cmu.RUnlock()
	for _, cc := range a.clients {
		if cc == c {
			return true
		}
	}
	return false
}

func (a *Adapter) removeClient(c *Client) {
	a.cmu.Lock()
	defer a.cmu.Unlock()
	for i, cc := range a.clients {
		if cc == c {
			a.clients = append(a.clients[:i], a.clients[i+1:]...)
			return
		}
	}
}

// Client is one registered chip instance, bound to one adapter and one
// driver. Chip state lives on the driver's side.
type Client struct {
	name    string
	id      int
	flags   uint32
	addr    uint8
	adapter *Adapter
	driver  Driver
}

// ClientOpt configures a client at construction.
type ClientOpt func(*Client)

// WithClientFlags sets driver-defined flag bits on the client.
func WithClientFlags(f uint32) ClientOpt {
	return func(c *Client) { c.flags |= f }
}

// NewClient builds an unattached client for addr on a, operated by d.
func NewClient(name string, addr uint8, a *Adapter, d Driver, opts ...ClientOpt) *Client {
	c := &Client{name: name, addr: addr, adapter: a, driver: d}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Client) Name() string      { return c.name }
func (c *Client) ID() int           { return c.id }
func (c *Client) Flags() uint32     { return c.flags }
func (c *Client) Addr() uint8       { return c.addr }
func (c *Client) Adapter() *Adapter { return c.adapter }
func (c *Client) Driver() Driver    { return c.driver }

// Command forwards a driver-specific request for this client.
func (c *Client) Command(ctx context.Context, cmd uint, arg any) error {
	if d, ok := c.driver.(Commander); ok {
		return d.Command(ctx, c, cmd, arg)
	}
	return fmt.Errorf("client %s: command: %w", c.name, ErrNotSupported)
}

// Use marks the client in use when its driver counts references.
func (c *Client) Use() {
	if u, ok := c.driver.(UsageCounter); ok {
		u.IncUse(c)
	}
}

// Unuse drops a reference taken with Use.
func (c *Client) Unuse() {
	if u, ok := c.driver.(UsageCounter); ok {
		u.DecUse(c)
	}
}
