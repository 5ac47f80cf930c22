package main

import (
	"encoding/hex"

	"github.com/urfave/cli/v2"

	"github.com/renardein/smbus"
	"github.com/renardein/smbus/cmd/smbus/console"
)

var readCmd = cli.Command{
	Name:      "read",
	Aliases:   []string{"rd"},
	Usage:     "read from a device, with a command byte or a plain receive",
	ArgsUsage: "<addr> [command]",
	Flags: append(adapterFlags(),
		&cli.StringFlag{
			Name:    "size",
			Aliases: []string{"s"},
			Usage:   "register size: byte, word or block",
			Value:   "byte",
		},
	),
	Action: func(c *cli.Context) error {
		if c.NArg() < 1 || c.NArg() > 2 {
			return console.Exit(1, "expected 1 or 2 arguments, got %d", c.NArg())
		}
		addr, err := parseAddr(c.Args().Get(0))
		if err != nil {
			return console.Exit(1, "%v", err)
		}
		ctx := commandCtx(c)
		a, done, err := openAdapter(c)
		if err != nil {
			return console.Exit(1, "adapter initialization error: %s", console.Red(err))
		}
		defer done()
		if c.NArg() == 1 {
			value, err := a.ReadByte(ctx, addr)
			if err != nil {
				return console.Exit(1, "read error: %s", console.Red(err))
			}
			console.Printf("%#02x\n", value)
			return nil
		}
		command, err := parseByte(c.Args().Get(1))
		if err != nil {
			return console.Exit(1, "%v", err)
		}
		switch c.String("size") {
		case "byte":
			value, err := a.ReadByteData(ctx, addr, command)
			if err != nil {
				return console.Exit(1, "read error: %s", console.Red(err))
			}
			console.Printf("%#02x\n", value)
		case "word":
			value, err := a.ReadWordData(ctx, addr, command)
			if err != nil {
				return console.Exit(1, "read error: %s", console.Red(err))
			}
			console.Printf("%#04x\n", value)
		case "block":
			buf := make([]byte, smbus.BlockMax)
			n, err := a.ReadBlockData(ctx, addr, command, buf)
			if err != nil {
				return console.Exit(1, "read error: %s", console.Red(err))
			}
			console.Printf("%s", hex.Dump(buf[:n]))
		default:
			return console.Exit(1, "unknown size %s", c.String("size"))
		}
		return nil
	},
}
