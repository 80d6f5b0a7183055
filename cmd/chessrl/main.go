// Command chessrl is the CLI entry point for the self-play training
// core: train runs the Cycle Orchestrator, eval scores a saved
// checkpoint, play exposes the Core's single-step move API against a
// checkpoint. Exit codes follow spec §6: 0 success, 1 validation
// failure, 2 configuration error, 3 runtime error.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/alecthomas/kong"
	"github.com/charmbracelet/log"

	"github.com/chessrl/core/internal/approx"
	"github.com/chessrl/core/internal/checkpoint"
	"github.com/chessrl/core/internal/chesstypes/simplerules"
	"github.com/chessrl/core/internal/config"
	"github.com/chessrl/core/internal/corestate"
	"github.com/chessrl/core/internal/seeding"
)

var cli struct {
	Debug bool `help:"enable debug logging"`

	Train TrainCmd `cmd:"" help:"run self-play training cycles"`
	Eval  EvalCmd  `cmd:"" help:"evaluate a saved checkpoint"`
	Play  PlayCmd  `cmd:"" help:"ask a checkpoint for one move on a position"`
}

type TrainCmd struct {
	Cycles    int    `help:"number of cycles to run" default:"10"`
	Seed      int64  `help:"master seed override (0 keeps the config/file value)"`
	Config    string `help:"path to a YAML config file"`
	Overrides string `help:"flat key=value,key=value config overrides"`
}

type EvalCmd struct {
	Checkpoint string `help:"checkpoint id to evaluate" required:""`
	Games      int    `help:"number of evaluation games" default:"20"`
	Opponent   string `help:"opponent-pool baseline to play against" default:"random" enum:"random,material"`
	Config     string `help:"path to a YAML config file"`
}

type PlayCmd struct {
	Checkpoint string `help:"checkpoint id to play from" required:""`
	FEN        string `help:"position to move from" required:""`
	Config     string `help:"path to a YAML config file"`
}

func main() {
	kctx := kong.Parse(&cli,
		kong.Name("chessrl"),
		kong.Description("self-play chess reinforcement-learning training core"),
		kong.UsageOnError(),
	)

	logger := newLogger(cli.Debug)
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	var err error
	switch kctx.Command() {
	case "train":
		err = cli.Train.Run(ctx, logger)
	case "eval":
		err = cli.Eval.Run(ctx, logger)
	case "play":
		err = cli.Play.Run(ctx, logger)
	default:
		logger.Fatalf("unknown command: %s", kctx.Command())
	}

	os.Exit(exitCode(err, logger))
}

func newLogger(debug bool) *log.Logger {
	level := log.InfoLevel
	if debug {
		level = log.DebugLevel
	}
	return log.NewWithOptions(os.Stderr, log.Options{Level: level})
}

// exitCode maps a returned error to spec §6's exit codes: 0 success,
// 1 validation failure, 2 configuration error, 3 runtime error.
func exitCode(err error, logger *log.Logger) int {
	if err == nil {
		return 0
	}
	switch corestate.CodeOf(err) {
	case corestate.CodeConfigInvalid:
		logger.Errorf("configuration error: %v", err)
		return 2
	case corestate.CodeCheckpointValidationFailed, corestate.CodeCheckpointFormatMismatch:
		logger.Errorf("validation failure: %v", err)
		return 1
	default:
		logger.Errorf("runtime error: %v", err)
		return 3
	}
}

func loadConfig(path string) (config.Config, error) {
	return config.Load(path, "")
}

func seedsFor(cfg config.Config) seeding.Manager {
	return seeding.NewManager(cfg.MasterSeed)
}

// newRules is the Core's one reference rules-engine wiring: every
// cmd/chessrl subcommand plays against internal/chesstypes/simplerules,
// the from-scratch implementation of the external chesstypes.Rules
// capability set. A production deployment substitutes a different
// implementation here without touching internal/.
func newRules() simplerules.Engine { return simplerules.Engine{} }

func loadApproximator(ckptDir string, maxModelVersions int, id string) (approx.Approximator, error) {
	mgr, err := checkpoint.New(ckptDir, maxModelVersions, checkpoint.FormatNativeCompressed)
	if err != nil {
		return nil, err
	}
	if id == "" || id == "best" {
		id, err = mgr.SelectBest()
		if err != nil {
			return nil, err
		}
	}
	blob, _, err := mgr.Load(id)
	if err != nil {
		return nil, err
	}
	net := approx.NewNetwork(approx.ModeValue, 2, 256, 1e-3, 0.99, 5.0)
	if err := net.Restore(blob); err != nil {
		return nil, err
	}
	return net, nil
}
