package main

import (
	"context"
	"math/rand"

	"github.com/charmbracelet/log"

	"github.com/chessrl/core/internal/codec"
)

// Run loads p.Checkpoint and returns the single move it selects from
// p.FEN with exploration disabled, implementing the Core's single-step
// play API (spec §6: "run play ... interactive; Core exposes a
// single-step API").
func (p *PlayCmd) Run(ctx context.Context, logger *log.Logger) error {
	cfg, err := loadConfig(p.Config)
	if err != nil {
		return err
	}
	cfg = cfg.ApplyEnv()
	if err := cfg.Validate(); err != nil {
		return err
	}

	main, err := loadApproximator(cfg.CheckpointDirectory, cfg.MaxModelVersions, p.Checkpoint)
	if err != nil {
		return err
	}

	rules := newRules()
	cdc := codec.New(rules)
	board, err := rules.FromFEN(p.FEN)
	if err != nil {
		return err
	}

	state, err := cdc.EncodeState(board)
	if err != nil {
		return err
	}
	mask := cdc.LegalMask(board)

	actionIdx, err := main.SelectAction(state, mask, 0, rand.New(rand.NewSource(cfg.MasterSeed)))
	if err != nil {
		return err
	}
	move, err := cdc.DecodeAction(actionIdx, board)
	if err != nil {
		return err
	}

	logger.Infof("move: from=%d to=%d", move.From(), move.To())
	return nil
}
