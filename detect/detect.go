// Package detect sweeps adapters for responding devices, either as a
// one-shot scan or as a driver that binds a client to every address
// that answers.
package detect

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/renardein/smbus"
)

// ProbeFunc reports whether something answered at addr.
type ProbeFunc func(ctx context.Context, a *smbus.Adapter, addr uint8) bool

// FoundFunc runs after the scanner binds a client to a responding
// address.
type FoundFunc func(ctx context.Context, c *smbus.Client) error

// Standard sweep bounds. Addresses outside them are reserved by the
// bus standard.
const (
	FirstAddr uint8 = 0x03
	LastAddr  uint8 = 0x77
)

// DefaultProbe picks the probe transaction the way i2cdetect does: a
// receive byte for the EEPROM and SPD ranges, a quick write everywhere
// else, so write-sensitive chips stay untouched. Buses that refuse
// quick writes get probed by receive byte throughout.
func DefaultProbe(ctx context.Context, a *smbus.Adapter, addr uint8) bool {
	if (addr >= 0x30 && addr <= 0x37) || (addr >= 0x50 && addr <= 0x5F) {
		_, err := a.ReadByte(ctx, addr)
		return err == nil
	}
	err := a.WriteQuick(ctx, addr, false)
	if errors.Is(err, smbus.ErrNotSupported) {
		_, err = a.ReadByte(ctx, addr)
	}
	return err == nil
}

// Sweep probes every address in [first, last] on a single adapter and
// returns the ones that answered. A nil probe falls back to
// DefaultProbe.
func Sweep(ctx context.Context, a *smbus.Adapter, first, last uint8, probe ProbeFunc) ([]uint8, error) {
	if first > last || last > smbus.AddrMax {
		return nil, fmt.Errorf("scan range %#x..%#x: %w", first, last, smbus.ErrAddressOutOfRange)
	}
	if probe == nil {
		probe = DefaultProbe
	}
	var found []uint8
	for addr := first; addr <= last; addr++ {
		if err := ctx.Err(); err != nil {
			return found, err
		}
		if probe(ctx, a, addr) {
			found = append(found, addr)
		}
	}
	return found, nil
}

// Scanner is a driver that sweeps every adapter it is attached to and
// binds one of its clients to each responding address. Registering it
// early means later adapters are swept the moment they appear.
type Scanner struct {
	name  string
	reg   *smbus.Registry
	log   *slog.Logger
	first uint8
	last  uint8
	flags uint32
	probe ProbeFunc
	found FoundFunc

	mx      sync.Mutex
	clients []*smbus.Client
}

type Opt func(*Scanner)

// WithRange narrows the sweep window.
func WithRange(first, last uint8) Opt {
	return func(s *Scanner) {
		s.first, s.last = first, last
	}
}

// WithProbe replaces DefaultProbe.
func WithProbe(probe ProbeFunc) Opt {
	return func(s *Scanner) { s.probe = probe }
}

// WithFound installs a callback invoked for every client the scanner
// binds.
func WithFound(found FoundFunc) Opt {
	return func(s *Scanner) { s.found = found }
}

// WithLogger routes sweep reports to l instead of slog.Default.
func WithLogger(l *slog.Logger) Opt {
	return func(s *Scanner) { s.log = l }
}

// WithClientFlags sets the flags carried by every bound client.
func WithClientFlags(flags uint32) Opt {
	return func(s *Scanner) { s.flags = flags }
}

func NewScanner(reg *smbus.Registry, name string, opts ...Opt) *Scanner {
	s := &Scanner{
		name:  name,
		reg:   reg,
		log:   slog.Default(),
		first: FirstAddr,
		last:  LastAddr,
		probe: DefaultProbe,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Scanner) Name() string {
	return s.name
}

// AttachAdapter sweeps the adapter and binds a client to every
// responding address. Addresses already owned by another client are
// left alone; a full client table ends the sweep.
func (s *Scanner) AttachAdapter(ctx context.Context, a *smbus.Adapter) error {
	addrs, err := Sweep(ctx, a, s.first, s.last, s.probe)
	if err != nil {
		return err
	}
	for _, addr := range addrs {
		c := smbus.NewClient(fmt.Sprintf("%s-%02x", s.name, addr), addr, a, s,
			smbus.WithClientFlags(s.flags))
		err := s.reg.AttachClient(c)
		switch {
		case errors.Is(err, smbus.ErrDuplicateAddress):
			continue
		case errors.Is(err, smbus.ErrAdapterFull):
			return fmt.Errorf("sweep of %s stopped: %w", a.Name(), err)
		case err != nil:
			return err
		}
		s.mx.Lock()
		s.clients = append(s.clients, c)
		s.mx.Unlock()
		s.log.Info("device found",
			"adapter", a.Name(), "addr", fmt.Sprintf("%#02x", addr), "client", c.Name())
		if s.found != nil {
			if err := s.found(ctx, c); err != nil {
				return fmt.Errorf("found callback for %s: %w", c.Name(), err)
			}
		}
	}
	return nil
}

// DetachClient forgets a bound client. Clients the scanner does not
// know are ignored.
func (s *Scanner) DetachClient(ctx context.Context, c *smbus.Client) error {
	s.mx.Lock()
	defer s.mx.Unlock()
	for i, have := range s.clients {
		if have == c {
			s.clients = append(s.clients[:i], s.clients[i+1:]...)
			break
		}
	}
	return nil
}

// Clients returns a snapshot of the clients the scanner has bound, in
// discovery order.
func (s *Scanner) Clients() []*smbus.Client {
	s.mx.Lock()
	defer s.mx.Unlock()
	out := make([]*smbus.Client, len(s.clients))
	copy(out, s.clients)
	return out
}
