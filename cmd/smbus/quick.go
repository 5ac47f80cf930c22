package main

import (
	"github.com/urfave/cli/v2"

	"github.com/renardein/smbus/cmd/smbus/console"
)

var quickCmd = cli.Command{
	Name:      "quick",
	Usage:     "send a quick presence pulse",
	ArgsUsage: "<addr>",
	Flags: append(adapterFlags(),
		&cli.BoolFlag{
			Name:  "read",
			Usage: "pulse with the read bit set",
		},
	),
	Action: func(c *cli.Context) error {
		if c.NArg() != 1 {
			return console.Exit(1, "expected 1 argument, got %d", c.NArg())
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
		if err := a.WriteQuick(ctx, addr, c.Bool("read")); err != nil {
			return console.Exit(1, "no acknowledge from %#02x: %s", addr, console.Red(err))
		}
		console.PInfof(console.PictoPlug, "device %#02x acknowledged", addr)
		return nil
	},
}

var callCmd = cli.Command{
	Name:      "call",
	Usage:     "issue a process call and print the response word",
	ArgsUsage: "<addr> <command> <value>",
	Flags:     adapterFlags(),
	Action: func(c *cli.Context) error {
		if c.NArg() != 3 {
			return console.Exit(1, "expected 3 arguments, got %d", c.NArg())
		}
		addr, err := parseAddr(c.Args().Get(0))
		if err != nil {
			return console.Exit(1, "%v", err)
		}
		command, err := parseByte(c.Args().Get(1))
		if err != nil {
			return console.Exit(1, "%v", err)
		}
		value, err := parseWord(c.Args().Get(2))
		if err != nil {
			return console.Exit(1, "%v", err)
		}
		ctx := commandCtx(c)
		a, done, err := openAdapter(c)
		if err != nil {
			return console.Exit(1, "adapter initialization error: %s", console.Red(err))
		}
		defer done()
		result, err := a.ProcessCall(ctx, addr, command, value)
		if err != nil {
			return console.Exit(1, "process call error: %s", console.Red(err))
		}
		console.Printf("%#04x\n", result)
		return nil
	},
}
