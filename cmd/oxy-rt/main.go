package main

import (
	"os"
	"strings"

	"github.com/Carmen-Shannon/oxy-rt/engine"
	"github.com/Carmen-Shannon/oxy-rt/engine/model"
	"github.com/urfave/cli"
)

func main() {
	cli.VersionFlag = cli.BoolFlag{
		Name:  "version",
		Usage: "print only the version",
	}

	sceneFlags := []cli.Flag{
		cli.StringFlag{
			Name:  "config, c",
			Usage: "TOML configuration file; flags override its values",
		},
		cli.StringFlag{
			Name:  "scene, s",
			Value: model.SceneShadows,
			Usage: "built-in scene: " + strings.Join(model.BuiltinNames(), ", "),
		},
		cli.StringFlag{
			Name:  "mode, m",
			Usage: "shadow technique: raytrace or rayquery",
		},
		cli.BoolTFlag{
			Name:  "denoise",
			Usage: "run the temporal and spatial denoise passes",
		},
		cli.IntFlag{
			Name:  "width",
			Usage: "render width",
		},
		cli.IntFlag{
			Name:  "height",
			Usage: "render height",
		},
		cli.IntFlag{
			Name:  "swapchain",
			Usage: "number of swapchain images",
		},
		cli.StringFlag{
			Name:  "acquire-order",
			Usage: "reference swapchain acquire order: round-robin or scrambled",
		},
		cli.IntFlag{
			Name:  "workers",
			Usage: "reference device workers, 0 for one per CPU",
		},
		cli.IntFlag{
			Name:  "frames, n",
			Usage: "number of frames to render",
		},
	}

	app := cli.NewApp()
	app.Name = "oxy-rt"
	app.Usage = "ray-traced shadows over a GPU acceleration structure"
	app.Version = "0.1.0"
	app.Flags = []cli.Flag{
		cli.BoolFlag{
			Name:  "v",
			Usage: "enable verbose logging",
		},
		cli.BoolFlag{
			Name:  "vv",
			Usage: "enable even more verbose logging",
		},
	}
	app.Commands = []cli.Command{
		{
			Name:    "run",
			Aliases: []string{"render"},
			Usage:   "render frames headless on the reference device",
			Description: `
Build the scene's acceleration structures, render the requested number of frames
through the G-buffer, shadow, denoise and composite passes and optionally write the
last presented image as a PNG.`,
			Flags: append(sceneFlags,
				cli.StringFlag{
					Name:  "out, o",
					Usage: "PNG filename for the last presented frame",
				},
			),
			Action: RenderHeadless,
		},
		{
			Name:        "window",
			Usage:       "render interactively into a window",
			Description: `Keys: arrows orbit, =/- zoom, D denoise, L light, Space pause, P stats, Esc quit.`,
			Flags: append(sceneFlags,
				cli.BoolTFlag{
					Name:  "vsync",
					Usage: "wait for vertical blank when presenting",
				},
			),
			Action: RenderWindow,
		},
		{
			Name:   "scenes",
			Usage:  "list the built-in scenes",
			Action: ListScenes,
		},
		{
			Name:  "config",
			Usage: "print the effective configuration as TOML",
			Flags: []cli.Flag{sceneFlags[0]},
			Action: PrintConfig,
		},
	}

	os.Exit(engine.HandleError(app.Run(os.Args)))
}
