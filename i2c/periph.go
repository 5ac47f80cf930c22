package i2c

import (
	"context"
	"fmt"

	"github.com/renardein/smbus"

	"periph.io/x/conn/v3/i2c"
	"periph.io/x/conn/v3/i2c/i2creg"
	"periph.io/x/conn/v3/physic"
	"periph.io/x/host/v3"
)

var _ smbus.MasterTransferor = &GenericBus{}
var _ smbus.Controller = &GenericBus{}

// Control request codes understood by the generic bus.
const (
	// CtlSetSpeed reprograms the bus clock; arg is the frequency in
	// hertz as an int64.
	CtlSetSpeed uint = iota + 1
)

// GenericBus adapts any bus the periph host layer exposes into a bus
// algorithm. It carries no native access routine, so transactions reach
// it as raw transfers through emulation.
type GenericBus struct {
	name string
	bus  i2c.BusCloser
}

// NewGenericBus initializes the periph host once and opens the named
// bus. dev accepts whatever i2creg resolves: a number, "/dev/i2c-1" or
// a board alias.
func NewGenericBus(dev string) (*GenericBus, error) {
	_, err := host.Init()
	if err != nil {
		return nil, fmt.Errorf("could not init host: %w", err)
	}
	bus, err := i2creg.Open(dev)
	if err != nil {
		return nil, fmt.Errorf("could not open i2c bus: %w", err)
	}
	return &GenericBus{
		name: "periph-i2c:" + dev,
		bus:  bus,
	}, nil
}

func (b *GenericBus) Name() string {
	return b.name
}

// Adapter wraps the bus in an adapter bound to this algorithm.
func (b *GenericBus) Adapter(name string) *smbus.Adapter {
	return smbus.NewAdapter(name, b)
}

// MasterXfer plays the messages against the bus. A write immediately
// followed by a read of the same address collapses into one transaction
// so the register select stays under a repeated START. Zero-length
// messages are refused: the sysfs layer drops empty transfers without
// touching the bus, so carrying them would acknowledge addresses nobody
// answered at.
func (b *GenericBus) MasterXfer(ctx context.Context, a *smbus.Adapter, msgs []smbus.Msg) (int, error) {
	done := 0
	for i := 0; i < len(msgs); {
		m := msgs[i]
		if len(m.Buf) == 0 {
			return done, fmt.Errorf("zero-length transfer to %x: %w", m.Addr, smbus.ErrNotSupported)
		}
		if m.Flags&smbus.MsgRead == 0 && i+1 < len(msgs) {
			next := msgs[i+1]
			if next.Addr == m.Addr && next.Flags&smbus.MsgRead != 0 {
				err := b.bus.Tx(uint16(m.Addr), m.Buf, next.Buf)
				if err != nil {
					return done, fmt.Errorf("could not read from i2c bus %x: %w", m.Addr, err)
				}
				done += 2
				i += 2
				continue
			}
		}
		var err error
		if m.Flags&smbus.MsgRead != 0 {
			err = b.bus.Tx(uint16(m.Addr), nil, m.Buf)
			if err != nil {
				err = fmt.Errorf("could not read from i2c bus %x: %w", m.Addr, err)
			}
		} else {
			err = b.bus.Tx(uint16(m.Addr), m.Buf, nil)
			if err != nil {
				err = fmt.Errorf("could not write to i2c bus %x: %w", m.Addr, err)
			}
		}
		if err != nil {
			return done, err
		}
		done++
		i++
	}
	return done, nil
}

// Control handles bus level requests for the dispatcher.
func (b *GenericBus) Control(ctx context.Context, a *smbus.Adapter, cmd uint, arg any) error {
	switch cmd {
	case CtlSetSpeed:
		hz, ok := arg.(int64)
		if !ok {
			return fmt.Errorf("set speed wants a frequency in hertz, got %T", arg)
		}
		return b.bus.SetSpeed(physic.Frequency(hz) * physic.Hertz)
	}
	return fmt.Errorf("control %d: %w", cmd, smbus.ErrNotSupported)
}

func (b *GenericBus) Close() error {
	return b.bus.Close()
}
