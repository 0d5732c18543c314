// Command gbcore runs the Game Boy / Game Boy Color emulation core, either
// headlessly (for batch/test use) or interactively in a terminal.
package main

import (
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/urfave/cli"

	"github.com/dmoretti/gbcore/gbcore"
	"github.com/dmoretti/gbcore/gbcore/backend"
	"github.com/dmoretti/gbcore/gbcore/backend/headless"
	"github.com/dmoretti/gbcore/gbcore/backend/terminal"
	"github.com/dmoretti/gbcore/gbcore/input"
	"github.com/dmoretti/gbcore/gbcore/input/action"
	"github.com/dmoretti/gbcore/gbcore/input/event"
)

func main() {
	app := cli.NewApp()
	app.Name = "gbcore"
	app.Usage = "gbcore [options] <ROM file>"
	app.Description = "A Game Boy / Game Boy Color emulation core"
	app.Version = "1.0.0"
	app.Flags = []cli.Flag{
		cli.StringFlag{
			Name:  "rom",
			Usage: "Path to the ROM file",
		},
		cli.BoolFlag{
			Name:  "headless",
			Usage: "Run without a terminal UI",
		},
		cli.IntFlag{
			Name:  "frames",
			Usage: "Number of frames to run in headless mode (required for headless)",
		},
		cli.BoolFlag{
			Name:  "test-pattern",
			Usage: "Display a test pattern instead of emulation (for verifying the display pipeline)",
		},
		cli.IntFlag{
			Name:  "snapshot-interval",
			Usage: "Save a PNG snapshot every N frames in headless mode (0 = disabled)",
		},
		cli.StringFlag{
			Name:  "snapshot-dir",
			Usage: "Directory to save snapshots to (default: a temp directory)",
		},
		cli.StringFlag{
			Name:  "log-level",
			Usage: "Log level: debug, info, warn, error",
			Value: "info",
		},
	}
	app.Action = run

	if err := app.Run(os.Args); err != nil {
		slog.Error("gbcore exited with an error", "error", err)
		os.Exit(1)
	}
}

func run(c *cli.Context) error {
	var level slog.Level
	if err := level.UnmarshalText([]byte(c.String("log-level"))); err != nil {
		return fmt.Errorf("invalid --log-level: %w", err)
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))

	testPattern := c.Bool("test-pattern")

	romPath := c.String("rom")
	if romPath == "" && c.NArg() > 0 {
		romPath = c.Args().Get(0)
	}
	if romPath == "" && !testPattern {
		cli.ShowAppHelp(c)
		return errors.New("no ROM path provided")
	}

	var emu *gbcore.Emulator
	if romPath != "" {
		var err error
		emu, err = gbcore.NewWithFile(romPath)
		if err != nil {
			return fmt.Errorf("loading ROM: %w", err)
		}
	} else {
		emu = gbcore.New()
	}

	cfg := backend.BackendConfig{
		Title:       "gbcore",
		TestPattern: testPattern,
		APU:         emu.GetMMU().APU,
	}

	if c.Bool("headless") {
		frames := c.Int("frames")
		if frames <= 0 && !testPattern {
			return errors.New("headless mode requires --frames with a positive value")
		}

		snapshotConfig, err := headless.CreateSnapshotConfig(c.Int("snapshot-interval"), c.String("snapshot-dir"), romPath)
		if err != nil {
			return err
		}

		be := headless.New(frames, snapshotConfig)
		return runLoop(emu, be, cfg)
	}

	be := terminal.New()
	return runLoop(emu, be, cfg)
}

// runLoop drives a backend.Backend against an emulator: each iteration
// renders the current frame through the backend, routes any resulting input
// events to the game's joypad (or the backend's own action handler), then
// advances one emulated frame. It exits on an EmulatorQuit event.
func runLoop(emu *gbcore.Emulator, be backend.Backend, cfg backend.BackendConfig) error {
	if err := be.Init(cfg); err != nil {
		return fmt.Errorf("initializing backend: %w", err)
	}
	defer be.Cleanup()

	mgr := input.NewManager(emu.GetMMU())

	type actionHandler interface {
		HandleAction(action.Action)
	}
	handler, _ := be.(actionHandler)

	for {
		events, err := be.Update(emu.GetCurrentFrame())
		if err != nil {
			return fmt.Errorf("backend update: %w", err)
		}

		for _, evt := range events {
			if evt.Action == action.EmulatorQuit {
				return nil
			}
			if action.GetInfo(evt.Action).Category == action.CategoryGameInput {
				mgr.Trigger(evt.Action, evt.Type)
				continue
			}
			if handler != nil && evt.Type == event.Press {
				handler.HandleAction(evt.Action)
			}
		}

		emu.RunUntilFrame()
	}
}
