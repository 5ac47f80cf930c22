package main

import (
	"fmt"
	"strconv"

	"github.com/urfave/cli/v2"

	"github.com/renardein/smbus"
	"github.com/renardein/smbus/cmd/smbus/console"
)

var writeCmd = cli.Command{
	Name:      "write",
	Aliases:   []string{"wr"},
	Usage:     "write to a device, a plain send or through a command byte",
	ArgsUsage: "<addr> <value> | <addr> <command> <value>",
	Flags: append(adapterFlags(),
		&cli.StringFlag{
			Name:    "size",
			Aliases: []string{"s"},
			Usage:   "register size: byte, word or block (value as hex string)",
			Value:   "byte",
		},
		&cli.BoolFlag{
			Name:    "yes",
			Aliases: []string{"y"},
			Usage:   "do not ask for confirmation",
		},
	),
	Action: func(c *cli.Context) error {
		if c.NArg() < 2 || c.NArg() > 3 {
			return console.Exit(1, "expected 2 or 3 arguments, got %d", c.NArg())
		}
		addr, err := parseAddr(c.Args().Get(0))
		if err != nil {
			return console.Exit(1, "%v", err)
		}
		if !c.Bool("yes") {
			answer, err := console.YesOrNo(fmt.Sprintf("write to device %#02x?", addr))
			if err != nil {
				return console.Exit(1, "prompt error: %v", err)
			}
			if answer != console.Yes {
				console.PInfof(console.PictoStop, "write aborted")
				return nil
			}
		}
		ctx := commandCtx(c)
		a, done, err := openAdapter(c)
		if err != nil {
			return console.Exit(1, "adapter initialization error: %s", console.Red(err))
		}
		defer done()
		if c.NArg() == 2 {
			value, err := parseByte(c.Args().Get(1))
			if err != nil {
				return console.Exit(1, "%v", err)
			}
			if err := a.WriteByte(ctx, addr, value); err != nil {
				return console.Exit(1, "write error: %s", console.Red(err))
			}
			console.PInfof(console.PictoFinish, "sent %#02x to %#02x", value, addr)
			return nil
		}
		command, err := parseByte(c.Args().Get(1))
		if err != nil {
			return console.Exit(1, "%v", err)
		}
		switch c.String("size") {
		case "byte":
			value, err := parseByte(c.Args().Get(2))
			if err != nil {
				return console.Exit(1, "%v", err)
			}
			if err := a.WriteByteData(ctx, addr, command, value); err != nil {
				return console.Exit(1, "write error: %s", console.Red(err))
			}
			console.PInfof(console.PictoFinish, "wrote %#02x to register %#02x of %#02x", value, command, addr)
		case "word":
			value, err := parseWord(c.Args().Get(2))
			if err != nil {
				return console.Exit(1, "%v", err)
			}
			if err := a.WriteWordData(ctx, addr, command, value); err != nil {
				return console.Exit(1, "write error: %s", console.Red(err))
			}
			console.PInfof(console.PictoFinish, "wrote %#04x to register %#02x of %#02x", value, command, addr)
		case "block":
			buf, err := hexStringToBytes(c.Args().Get(2))
			if err != nil {
				return console.Exit(1, "invalid block hex string: %v", err)
			}
			if len(buf) == 0 || len(buf) > smbus.BlockMax {
				return console.Exit(1, "block length out of range: %d", len(buf))
			}
			if err := a.WriteBlockData(ctx, addr, command, buf); err != nil {
				return console.Exit(1, "write error: %s", console.Red(err))
			}
			console.PInfof(console.PictoFinish, "wrote %d bytes to register %#02x of %#02x", len(buf), command, addr)
		default:
			return console.Exit(1, "unknown size %s", c.String("size"))
		}
		return nil
	},
}

func hexStringToBytes(s string) ([]byte, error) {
	if len(s)%2 != 0 {
		return nil, fmt.Errorf("hex string must have even length")
	}
	b := make([]byte, len(s)/2)
	for i := 0; i < len(b); i++ {
		v, err := strconv.ParseUint(s[2*i:2*i+2], 16, 8)
		if err != nil {
			return nil, err
		}
		b[i] = byte(v)
	}
	return b, nil
}
