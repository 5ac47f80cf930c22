package smbus

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
)

type algoEntry struct {
	id   int
	algo Algorithm
}

type driverEntry struct {
	id     int
	driver Driver
}

// Registry owns the algorithm, adapter and driver tables and the client
// bookkeeping on top of them. Construct with New; all methods are safe
// for concurrent use. Ids are assigned per entity class, starting at 1.
type Registry struct {
	log *slog.Logger

	mu            sync.Mutex
	closed        bool
	algorithms    []*algoEntry
	adapters      []*Adapter
	drivers       []*driverEntry
	nextAlgoID    int
	nextAdapterID int
	nextDriverID  int
	nextClientID  int
}

// RegistryOpt configures a registry at construction.
type RegistryOpt func(*Registry)

// WithLogger routes best-effort failure reports to l instead of
// slog.Default.
func WithLogger(l *slog.Logger) RegistryOpt {
	return func(r *Registry) { r.log = l }
}

// New builds an empty registry.
func New(opts ...RegistryOpt) *Registry {
	r := &Registry{
		log:           slog.Default(),
		nextAlgoID:    1,
		nextAdapterID: 1,
		nextDriverID:  1,
		nextClientID:  1,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// RegisterAlgorithm makes algo available for adapters to bind to.
func (r *Registry) RegisterAlgorithm(algo Algorithm) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return 0, ErrClosed
	}
	for _, e := range r.algorithms {
		if e.algo.Name() == algo.Name() {
			return 0, fmt.Errorf("algorithm %s: %w", algo.Name(), ErrDuplicateName)
		}
	}
	e := &algoEntry{id: r.nextAlgoID, algo: algo}
	r.nextAlgoID++
	r.algorithms = append(r.algorithms, e)
	return e.id, nil
}

// UnregisterAlgorithm removes the algorithm with the given id. It fails
// with ErrInUse while any adapter still references the algorithm.
func (r *Registry) UnregisterAlgorithm(id int) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i, e := range r.algorithms {
		if e.id != id {
			continue
		}
		for _, a := range r.adapters {
			if a.algo == e.algo {
				return fmt.Errorf("algorithm %s referenced by adapter %s: %w",
					e.algo.Name(), a.name, ErrInUse)
			}
		}
		r.algorithms = append(r.algorithms[:i], r.algorithms[i+1:]...)
		return nil
	}
	return fmt.Errorf("algorithm id %d: %w", id, ErrNotFound)
}

// RegisterAdapter adds a to the registry and lets every registered driver
// probe it for chips. The adapter's algorithm must already be registered
// and its access routine must match its AlgoSMBus flag. Probe failures
// are logged, they do not fail the registration.
func (r *Registry) RegisterAdapter(ctx context.Context, a *Adapter) (int, error) {
	id, drivers, err := r.addAdapter(a)
	if err != nil {
		return 0, err
	}
	for _, e := range drivers {
		if err := e.driver.AttachAdapter(ctx, a); err != nil {
			r.log.Warn("adapter probe failed",
				"driver", e.driver.Name(), "adapter", a.name, "error", err)
		}
	}
	return id, nil
}

func (r *Registry) addAdapter(a *Adapter) (int, []*driverEntry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return 0, nil, ErrClosed
	}
	if a.algo == nil || !r.algoListed(a.algo) {
		return 0, nil, fmt.Errorf("adapter %s: algorithm: %w", a.name, ErrNotFound)
	}
	if (a.access != nil) != a.SMBusNative() {
		return 0, nil, fmt.Errorf("adapter %s: access routine does not match AlgoSMBus flag", a.name)
	}
	for _, other := range r.adapters {
		if other.name == a.name {
			return 0, nil, fmt.Errorf("adapter %s: %w", a.name, ErrDuplicateName)
		}
	}
	a.id = r.nextAdapterID
	r.nextAdapterID++
	r.adapters = append(r.adapters, a)
	drivers := make([]*driverEntry, len(r.drivers))
	copy(drivers, r.drivers)
	return a.id, drivers, nil
}

// UnregisterAdapter removes the adapter with the given id. It fails with
// ErrInUse while clients remain attached.
func (r *Registry) UnregisterAdapter(id int) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i, a := range r.adapters {
		if a.id != id {
			continue
		}
		if n := a.ClientCount(); n > 0 {
			return fmt.Errorf("adapter %s has %d attached clients: %w", a.name, n, ErrInUse)
		}
		a.id = 0
		r.adapters = append(r.adapters[:i], r.adapters[i+1:]...)
		return nil
	}
	return fmt.Errorf("adapter id %d: %w", id, ErrNotFound)
}

// RegisterDriver adds d to the registry and runs its probe against every
// adapter registered so far. The probe also runs against adapters
// registered later. Probe failures are logged, they do not fail the
// registration.
func (r *Registry) RegisterDriver(ctx context.Context, d Driver) (int, error) {
	id, adapters, err := r.addDriver(d)
	if err != nil {
		return 0, err
	}
	for _, a := range adapters {
		if err := d.AttachAdapter(ctx, a); err != nil {
			r.log.Warn("adapter probe failed",
				"driver", d.Name(), "adapter", a.name, "error", err)
		}
	}
	return id, nil
}

func (r *Registry) addDriver(d Driver) (int, []*Adapter, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return 0, nil, ErrClosed
	}
	for _, e := range r.drivers {
		if e.driver.Name() == d.Name() {
			return 0, nil, fmt.Errorf("driver %s: %w", d.Name(), ErrDuplicateName)
		}
	}
	e := &driverEntry{id: r.nextDriverID, driver: d}
	r.nextDriverID++
	r.drivers = append(r.drivers, e)
	adapters := make([]*Adapter, len(r.adapters))
	copy(adapters, r.adapters)
	return e.id, adapters, nil
}

// UnregisterDriver detaches every client bound to the driver, then
// removes the driver entry. A failing driver detach hook aborts the
// removal with ErrInUse; clients detached before the failure stay
// detached and the error reports how far the teardown got.
func (r *Registry) UnregisterDriver(ctx context.Context, id int) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	idx := -1
	for i, e := range r.drivers {
		if e.id == id {
			idx = i
			break
		}
	}
	if idx < 0 {
		return fmt.Errorf("driver id %d: %w", id, ErrNotFound)
	}
	d := r.drivers[idx].driver
	detached := 0
	for _, a := range r.adapters {
		for _, c := range a.Clients() {
			if c.driver != d {
				continue
			}
			if err := d.DetachClient(ctx, c); err != nil {
				hook := &HookError{Hook: "detach_client", Name: d.Name(), Err: err}
				return fmt.Errorf("driver %s after detaching %d clients: %w: %w",
					d.Name(), detached, ErrInUse, hook)
			}
			r.removeClient(a, c)
			detached++
		}
	}
	r.drivers = append(r.drivers[:idx], r.drivers[idx+1:]...)
	return nil
}

// AttachClient binds c to the client table of its adapter. Capacity,
// address range and address collision are checked before any hook runs;
// a failing algorithm register hook aborts the attach with nothing
// committed. On success the client gets a fresh id and is appended in
// arrival order.
func (r *Registry) AttachClient(c *Client) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return ErrClosed
	}
	a := c.adapter
	if a == nil || !r.adapterListed(a) {
		return fmt.Errorf("client %s: adapter: %w", c.name, ErrNotFound)
	}
	if c.addr > AddrMax {
		return fmt.Errorf("client %s at %#x: %w", c.name, c.addr, ErrAddressOutOfRange)
	}
	if n := a.ClientCount(); n >= ClientMax {
		return fmt.Errorf("adapter %s: %w", a.name, ErrAdapterFull)
	}
	if _, taken := a.ClientByAddr(c.addr); taken {
		return fmt.Errorf("address %#x on adapter %s: %w", c.addr, a.name, ErrDuplicateAddress)
	}
	if h, ok := a.algo.(ClientHook); ok {
		if err := h.RegisterClient(c); err != nil {
			return &HookError{Hook: "register_client", Name: a.algo.Name(), Err: err}
		}
	}
	c.id = r.nextClientID
	r.nextClientID++
	a.cmu.Lock()
	a.clients = append(a.clients, c)
	a.cmu.Unlock()
	return nil
}

// DetachClient removes c from its adapter. The algorithm's unregister
// hook runs first, then the driver's detach hook. Hook failures are
// logged and reported in the returned error but do not block the
// removal, so a misbehaving chip driver cannot wedge an adapter slot.
func (r *Registry) DetachClient(ctx context.Context, c *Client) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	a := c.adapter
	if a == nil || !a.attached(c) {
		return fmt.Errorf("client %s: %w", c.name, ErrNotFound)
	}
	var errs []error
	if h, ok := a.algo.(ClientHook); ok {
		if err := h.UnregisterClient(c); err != nil {
			errs = append(errs, &HookError{Hook: "unregister_client", Name: a.algo.Name(), Err: err})
			r.log.Warn("client unregister hook failed",
				"algorithm", a.algo.Name(), "client", c.name, "error", err)
		}
	}
	if c.driver != nil {
		if err := c.driver.DetachClient(ctx, c); err != nil {
			errs = append(errs, &HookError{Hook: "detach_client", Name: c.driver.Name(), Err: err})
			r.log.Warn("client detach hook failed",
				"driver", c.driver.Name(), "client", c.name, "error", err)
		}
	}
	a.removeClient(c)
	return errors.Join(errs...)
}

// removeClient runs the algorithm's unregister hook and splices c out of
// a's table. Hook failures are logged, removal proceeds. Caller holds r.mu.
func (r *Registry) removeClient(a *Adapter, c *Client) {
	if h, ok := a.algo.(ClientHook); ok {
		if err := h.UnregisterClient(c); err != nil {
			r.log.Warn("client unregister hook failed",
				"algorithm", a.algo.Name(), "client", c.name, "error", err)
		}
	}
	a.removeClient(c)
}

// Close tears the registry down. It fails with ErrInUse while any
// adapter remains registered; algorithms and drivers hold no resources
// of their own and are dropped.
func (r *Registry) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return nil
	}
	if n := len(r.adapters); n > 0 {
		return fmt.Errorf("%d adapters still registered: %w", n, ErrInUse)
	}
	r.algorithms, r.drivers = nil, nil
	r.closed = true
	return nil
}

// Adapters returns a snapshot of the registered adapters in registration
// order.
func (r *Registry) Adapters() []*Adapter {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*Adapter, len(r.adapters))
	copy(out, r.adapters)
	return out
}

// AdapterByName finds a registered adapter.
func (r *Registry) AdapterByName(name string) (*Adapter, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, a := range r.adapters {
		if a.name == name {
			return a, true
		}
	}
	return nil, false
}

// Algorithms returns a snapshot of the registered algorithms.
func (r *Registry) Algorithms() []Algorithm {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Algorithm, 0, len(r.algorithms))
	for _, e := range r.algorithms {
		out = append(out, e.algo)
	}
	return out
}

// Drivers returns a snapshot of the registered drivers.
func (r *Registry) Drivers() []Driver {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Driver, 0, len(r.drivers))
	for _, e := range r.drivers {
		out = append(out, e.driver)
	}
	return out
}

func (r *Registry) algoListed(algo Algorithm) bool {
	for _, e := range r.algorithms {
		if e.algo == algo {
			return true
		}
	}
	return false
}

func (r *Registry) adapterListed(a *Adapter) bool {
	for _, reg := range r.adapters {
		if reg == a {
			return true
		}
	}
	return false
}
