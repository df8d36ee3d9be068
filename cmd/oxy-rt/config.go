package main

import (
	"fmt"
	"os"

	"github.com/Carmen-Shannon/oxy-rt/engine"
	"github.com/Carmen-Shannon/oxy-rt/engine/config"
	"github.com/Carmen-Shannon/oxy-rt/engine/model"
	"github.com/olekukonko/tablewriter"
	"github.com/urfave/cli"
)

// loadConfig reads the --config file, or the defaults, and applies the command line overrides.
func loadConfig(ctx *cli.Context) (config.Config, error) {
	cfg := config.Default()
	if path := ctx.String("config"); path != "" {
		var err error
		if cfg, err = config.Load(path); err != nil {
			return config.Config{}, &engine.UsageError{Err: err}
		}
	}

	opts := []config.Option{
		config.WithExtent(ctx.Int("width"), ctx.Int("height")),
		config.WithSwapchainLength(ctx.Int("swapchain")),
		config.WithAcquireOrder(config.AcquireOrder(ctx.String("acquire-order"))),
		config.WithRenderMode(config.RenderMode(ctx.String("mode"))),
		config.WithWorkers(ctx.Int("workers")),
		config.WithFrames(ctx.Int("frames")),
		config.WithOutput(ctx.String("out")),
	}
	if ctx.IsSet("denoise") {
		opts = append(opts, config.WithDenoise(ctx.BoolT("denoise")))
	}
	if ctx.IsSet("vsync") {
		vsync := ctx.BoolT("vsync")
		opts = append(opts, func(c *config.Config) { c.Window.VSync = vsync })
	}
	cfg = cfg.With(opts...)

	if err := cfg.Validate(); err != nil {
		return config.Config{}, &engine.UsageError{Err: err}
	}
	setupLogging(ctx, cfg.LogLevel)
	return cfg, nil
}

// PrintConfig writes the effective configuration to stdout.
func PrintConfig(ctx *cli.Context) error {
	cfg, err := loadConfig(ctx)
	if err != nil {
		return err
	}
	data, err := cfg.Marshal()
	if err != nil {
		return err
	}
	_, err = os.Stdout.Write(data)
	return err
}

// ListScenes prints the built-in scenes with their instance and material counts.
func ListScenes(_ *cli.Context) error {
	table := tablewriter.NewWriter(os.Stdout)
	table.SetHeader([]string{"Scene", "Meshes", "Instances", "Materials", "Animated"})
	for _, name := range model.BuiltinNames() {
		m, err := model.Builtin(name)
		if err != nil {
			return err
		}
		table.Append([]string{
			name,
			fmt.Sprint(len(m.Meshes())),
			fmt.Sprint(len(m.Instances())),
			fmt.Sprint(len(m.Materials())),
			fmt.Sprint(len(m.Animations()) > 0),
		})
	}
	table.Render()
	return nil
}
