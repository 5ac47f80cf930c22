package main

import (
	"context"
	"fmt"

	"github.com/urfave/cli/v2"

	"github.com/renardein/smbus"
	"github.com/renardein/smbus/cmd/smbus/console"
	"github.com/renardein/smbus/detect"
)

var scanCmd = cli.Command{
	Name:    "scan",
	Aliases: []string{"detect"},
	Usage:   "sweep the bus for responding devices",
	Flags: append(adapterFlags(),
		&cli.StringFlag{
			Name:  "first",
			Usage: "first address of the sweep",
			Value: "0x03",
		},
		&cli.StringFlag{
			Name:  "last",
			Usage: "last address of the sweep",
			Value: "0x77",
		},
		&cli.BoolFlag{
			Name:  "quick",
			Usage: "probe every address with a quick write",
		},
	),
	Action: func(c *cli.Context) error {
		first, err := parseAddr(c.String("first"))
		if err != nil {
			return console.Exit(1, "%v", err)
		}
		last, err := parseAddr(c.String("last"))
		if err != nil {
			return console.Exit(1, "%v", err)
		}
		ctx := commandCtx(c)
		a, done, err := openAdapter(c)
		if err != nil {
			return console.Exit(1, "adapter initialization error: %s", console.Red(err))
		}
		defer done()
		probe := detect.DefaultProbe
		if c.Bool("quick") {
			probe = func(ctx context.Context, a *smbus.Adapter, addr uint8) bool {
				return a.WriteQuick(ctx, addr, false) == nil
			}
		}
		found, err := detect.Sweep(ctx, a, first, last, probe)
		if err != nil {
			return console.Exit(1, "scan error: %s", console.Red(err))
		}
		printGrid(found, first, last)
		console.PInfof(console.PictoSearch, "%d devices found", len(found))
		return nil
	},
}

// printGrid renders the sweep sixteen addresses per row, the way
// i2cdetect does.
func printGrid(found []uint8, first, last uint8) {
	hits := make(map[uint8]bool, len(found))
	for _, addr := range found {
		hits[addr] = true
	}
	console.Print("     0  1  2  3  4  5  6  7  8  9  a  b  c  d  e  f")
	for row := uint8(0); row <= last>>4; row++ {
		line := fmt.Sprintf("%02x:", row<<4)
		for col := uint8(0); col <= 0x0F; col++ {
			addr := row<<4 | col
			switch {
			case addr < first || addr > last:
				line += "   "
			case hits[addr]:
				line += " " + console.Green(fmt.Sprintf("%02x", addr))
			default:
				line += " --"
			}
		}
		console.Print(line)
	}
}
