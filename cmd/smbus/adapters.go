package main

import (
	"context"
	"fmt"
	"strconv"

	"github.com/urfave/cli/v2"
	"gobot.io/x/gobot/v2/platforms/nanopi"

	"github.com/renardein/smbus"
	"github.com/renardein/smbus/adapter"
	"github.com/renardein/smbus/cmd/smbus/console"
	"github.com/renardein/smbus/i2c"
	"github.com/renardein/smbus/smbctx"
)

var builtinAdapters = []string{"mcp2221", "generic", "nanopi", "mock"}

// adapterFlags returns the flag set shared by every command that talks
// to a bus. Each command gets its own copy so parsed values never leak
// between commands.
func adapterFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:    "adapter",
			Aliases: []string{"a"},
			Usage:   "bus adapter, builtin or from the config file",
			Value:   "mcp2221",
		},
		&cli.StringFlag{
			Name:    "config",
			Aliases: []string{"c"},
			Usage:   "adapter definitions file",
		},
		&cli.StringFlag{
			Name:    "device",
			Aliases: []string{"d"},
			Usage:   "character device used by the generic adapter",
			Value:   "/dev/i2c-1",
		},
		&cli.IntFlag{
			Name:  "bus",
			Usage: "bus number used by the nanopi adapter",
			Value: -1,
		},
		&cli.BoolFlag{Name: "verbose", Aliases: []string{"v"}},
	}
}

// openAdapter builds the bus adapter selected on the command line,
// preferring a config file entry over the builtin of the same name. The
// returned closer releases whatever the adapter keeps open.
func openAdapter(c *cli.Context) (*smbus.Adapter, func(), error) {
	name := c.String("adapter")
	if path := c.String("config"); path != "" {
		cfg, err := loadConfig(path)
		if err != nil {
			return nil, nil, err
		}
		if ac, ok := cfg.adapter(name); ok {
			return openConfigured(ac)
		}
	}
	switch name {
	case "mcp2221":
		dev := adapter.NewMCP2221()
		return dev.Adapter(name), func() {}, nil
	case "generic":
		bus, err := i2c.NewGenericBus(c.String("device"))
		if err != nil {
			return nil, nil, fmt.Errorf("adapter initialization error: %w", err)
		}
		return bus.Adapter(name), func() {
			if err := bus.Close(); err != nil {
				console.Errorf("error closing bus: %s", console.Red(err))
			}
		}, nil
	case "nanopi":
		return openNanopi(name, c.Int("bus"))
	case "mock":
		mk := adapter.NewMock()
		seedMock(mk)
		return mk.Adapter(name), func() {}, nil
	default:
		return nil, nil, fmt.Errorf("unknown adapter %s", name)
	}
}

func openNanopi(name string, bus int) (*smbus.Adapter, func(), error) {
	npi := nanopi.NewNeoAdaptor()
	if err := npi.I2cBusAdaptor.Connect(); err != nil {
		return nil, nil, fmt.Errorf("adaptor connect error: %w", err)
	}
	var opts []adapter.GobotOpt
	if bus >= 0 {
		opts = append(opts, adapter.WithBusNumber(bus))
	}
	g := adapter.NewGobot(npi, opts...)
	return g.Adapter(name), func() {
		if err := g.Close(); err != nil {
			console.Errorf("error closing connections: %s", console.Red(err))
		}
		_ = npi.I2cBusAdaptor.Finalize()
	}, nil
}

// seedMock populates the offline register file: something that answers
// like a thermometer at 0x48, an EEPROM-looking device at 0x50 and a
// bare one at 0x2C.
func seedMock(m *adapter.Mock) {
	m.SetByte(0x48, 0x00, 0x1A)
	m.SetWord(0x48, 0x01, 0x03E8)
	m.SetBlock(0x50, 0x00, []byte("smbus mock"))
	m.AddDevice(0x2C)
}

// commandCtx wires the verbose switch into the console and the request
// context.
func commandCtx(c *cli.Context) context.Context {
	verbose := c.Bool("verbose")
	console.Trace = verbose
	return smbctx.SetVerbose(context.Background(), verbose)
}

func parseAddr(arg string) (uint8, error) {
	v, err := strconv.ParseUint(arg, 0, 8)
	if err != nil || v > uint64(smbus.AddrMax) {
		return 0, fmt.Errorf("invalid device address %q", arg)
	}
	return uint8(v), nil
}

func parseByte(arg string) (uint8, error) {
	v, err := strconv.ParseUint(arg, 0, 8)
	if err != nil {
		return 0, fmt.Errorf("invalid byte value %q", arg)
	}
	return uint8(v), nil
}

func parseWord(arg string) (uint16, error) {
	v, err := strconv.ParseUint(arg, 0, 16)
	if err != nil {
		return 0, fmt.Errorf("invalid word value %q", arg)
	}
	return uint16(v), nil
}
