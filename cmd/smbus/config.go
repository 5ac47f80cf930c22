package main

import (
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/urfave/cli/v2"
	"gopkg.in/yaml.v3"

	"github.com/renardein/smbus"
	"github.com/renardein/smbus/adapter"
	"github.com/renardein/smbus/cmd/smbus/console"
	"github.com/renardein/smbus/i2c"
)

// AdapterConfig is one adapter definition from the cli config file.
// Type selects the collaborator (mcp2221, generic, nanopi or mock), the
// remaining fields carry its tuning.
type AdapterConfig struct {
	Name        string `yaml:"name"`
	Type        string `yaml:"type"`
	Device      string `yaml:"device"`
	DeviceIndex *int   `yaml:"device_index"`
	Bus         int    `yaml:"bus"`
	Timeout     string `yaml:"timeout"`
	Retries     int    `yaml:"retries"`
}

type Config struct {
	Adapters []AdapterConfig `yaml:"adapters"`
}

func loadConfig(path string) (*Config, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("could not read config file: %w", err)
	}
	var cfg Config
	if err := yaml.Unmarshal(raw, &cfg); err != nil {
		return nil, fmt.Errorf("could not parse config file: %w", err)
	}
	return &cfg, nil
}

func (cfg *Config) adapter(name string) (*AdapterConfig, bool) {
	for i := range cfg.Adapters {
		if cfg.Adapters[i].Name == name {
			return &cfg.Adapters[i], true
		}
	}
	return nil, false
}

// openConfigured builds the adapter a config entry describes.
func openConfigured(ac *AdapterConfig) (*smbus.Adapter, func(), error) {
	switch ac.Type {
	case "mcp2221":
		var opts []adapter.MCP2221Opt
		if ac.Timeout != "" {
			wait, err := time.ParseDuration(ac.Timeout)
			if err != nil {
				return nil, nil, fmt.Errorf("adapter %s: invalid timeout: %w", ac.Name, err)
			}
			opts = append(opts, adapter.WithResponseWait(wait))
		}
		if ac.Retries > 0 {
			opts = append(opts, adapter.WithRetryLimit(ac.Retries))
		}
		if ac.DeviceIndex != nil {
			opts = append(opts, adapter.WithDeviceIndex(*ac.DeviceIndex))
		}
		dev := adapter.NewMCP2221(opts...)
		return dev.Adapter(ac.Name), func() {}, nil
	case "generic":
		bus, err := i2c.NewGenericBus(ac.Device)
		if err != nil {
			return nil, nil, fmt.Errorf("adapter %s: %w", ac.Name, err)
		}
		return bus.Adapter(ac.Name), func() {
			if err := bus.Close(); err != nil {
				console.Errorf("error closing bus: %s", console.Red(err))
			}
		}, nil
	case "nanopi":
		return openNanopi(ac.Name, ac.Bus)
	case "mock":
		mk := adapter.NewMock()
		seedMock(mk)
		return mk.Adapter(ac.Name), func() {}, nil
	default:
		return nil, nil, fmt.Errorf("adapter %s: unknown type %s", ac.Name, ac.Type)
	}
}

var adaptersCmd = cli.Command{
	Name:  "adapters",
	Usage: "list adapters available to the other commands",
	Flags: []cli.Flag{
		&cli.StringFlag{
			Name:    "config",
			Aliases: []string{"c"},
			Usage:   "adapter definitions file",
		},
	},
	Action: func(c *cli.Context) error {
		w := tabwriter.NewWriter(os.Stdout, 16, 0, 1, ' ', 0)
		_, _ = fmt.Fprintf(w, "NAME\tTYPE\tDEVICE\tTIMEOUT\tRETRIES\n")
		if path := c.String("config"); path != "" {
			cfg, err := loadConfig(path)
			if err != nil {
				return console.Exit(1, "%v", err)
			}
			for _, ac := range cfg.Adapters {
				device := ac.Device
				if ac.Type == "nanopi" {
					device = fmt.Sprintf("bus %d", ac.Bus)
				}
				_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%d\n", ac.Name, ac.Type, device, ac.Timeout, ac.Retries)
			}
		}
		for _, name := range builtinAdapters {
			_, _ = fmt.Fprintf(w, "%s\t%s\t\t\t\n", name, "builtin")
		}
		_ = w.Flush()
		return nil
	},
}
