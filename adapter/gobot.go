package adapter

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/renardein/smbus"

	"gobot.io/x/gobot/v2/drivers/i2c"
)

// Gobot runs bus transactions through any gobot platform adaptor with
// an I2C connector, which covers the Raspberry Pi, the NanoPi and
// everything else the gobot sysfs layer speaks to. Gobot binds the
// slave address when a connection is opened, so connections are cached
// per address.
type Gobot struct {
	mx        sync.Mutex
	connector i2c.Connector
	bus       int
	conns     map[uint8]i2c.Connection
}

type GobotOpt func(*Gobot)

// WithBusNumber selects the platform bus instead of the connector's
// default one.
func WithBusNumber(bus int) GobotOpt {
	return func(g *Gobot) { g.bus = bus }
}

func NewGobot(connector i2c.Connector, opts ...GobotOpt) *Gobot {
	g := &Gobot{
		connector: connector,
		bus:       connector.DefaultI2cBus(),
		conns:     map[uint8]i2c.Connection{},
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Adapter wraps the platform in a bus adapter under the given name.
func (g *Gobot) Adapter(name string) *smbus.Adapter {
	return smbus.NewAdapter(name, smbus.Native, smbus.WithAccessFunc(g.access))
}

// Close releases every cached connection.
func (g *Gobot) Close() error {
	g.mx.Lock()
	defer g.mx.Unlock()
	var errs []error
	for addr, conn := range g.conns {
		err := conn.Close()
		if err != nil {
			errs = append(errs, fmt.Errorf("connection %x: %w", addr, err))
		}
	}
	g.conns = map[uint8]i2c.Connection{}
	return errors.Join(errs...)
}

func (g *Gobot) connection(addr uint8) (i2c.Connection, error) {
	conn, ok := g.conns[addr]
	if ok {
		return conn, nil
	}
	conn, err := g.connector.GetI2cConnection(int(addr), g.bus)
	if err != nil {
		return nil, fmt.Errorf("could not open connection to %x on bus %d: %w", addr, g.bus, err)
	}
	g.conns[addr] = conn
	return conn, nil
}

// access maps transaction kinds onto the gobot connection primitives.
// Register reads and writes go through the platform's own transfer
// calls; blocks travel as raw frames because the platform caps block
// transfers below a full frame. Quick reads and process calls have no
// gobot equivalent.
func (g *Gobot) access(ctx context.Context, addr uint8, dir smbus.Direction, command uint8, kind smbus.Kind, data *smbus.Data) error {
	if data == nil && needsData(kind, dir) {
		return fmt.Errorf("%s %s: %w", dir, kind, smbus.ErrMissingData)
	}
	g.mx.Lock()
	defer g.mx.Unlock()
	conn, err := g.connection(addr)
	if err != nil {
		return err
	}
	switch kind {
	case smbus.KindQuick:
		if dir == smbus.Read {
			return fmt.Errorf("quick read: %w", smbus.ErrNotSupported)
		}
		return conn.WriteBytes(nil)
	case smbus.KindByte:
		if dir == smbus.Read {
			val, err := conn.ReadByte()
			if err != nil {
				return err
			}
			data.Byte = val
			return nil
		}
		return conn.WriteByte(command)
	case smbus.KindByteData:
		if dir == smbus.Read {
			val, err := conn.ReadByteData(command)
			if err != nil {
				return err
			}
			data.Byte = val
			return nil
		}
		return conn.WriteByteData(command, data.Byte)
	case smbus.KindWordData:
		if dir == smbus.Read {
			val, err := conn.ReadWordData(command)
			if err != nil {
				return err
			}
			data.Word = val
			return nil
		}
		return conn.WriteWordData(command, data.Word)
	case smbus.KindProcCall:
		return fmt.Errorf("process call: %w", smbus.ErrNotSupported)
	case smbus.KindBlockData:
		if dir == smbus.Read {
			err := conn.WriteBytes([]byte{command})
			if err != nil {
				return fmt.Errorf("selecting register %x: %w", command, err)
			}
			frame := make([]byte, smbus.BlockMax+1)
			n, err := conn.Read(frame)
			if err != nil {
				return err
			}
			if n < 1 {
				return fmt.Errorf("block read from %x returned no data", addr)
			}
			count := int(frame[0])
			if count > smbus.BlockMax {
				count = smbus.BlockMax
			}
			if count > n-1 {
				count = n - 1
			}
			data.SetBlock(frame[1 : 1+count])
			return nil
		}
		n := int(data.Block[0])
		if n > smbus.BlockMax {
			n = smbus.BlockMax
		}
		frame := make([]byte, 2+n)
		frame[0] = command
		frame[1] = uint8(n)
		copy(frame[2:], data.Block[1:1+n])
		return conn.WriteBytes(frame)
	}
	return fmt.Errorf("kind %d: %w", kind, smbus.ErrNotSupported)
}
