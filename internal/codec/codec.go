// Package codec implements the State/Action Codec (C1): board → dense
// feature vector, move ↔ action index, and the legal-action mask, against
// the external chesstypes.Rules capability set. It never assumes a
// concrete board representation beyond FEN() and the Rules it is
// constructed with.
package codec

import (
	"strconv"
	"strings"

	"github.com/chessrl/core/internal/chesstypes"
	"github.com/chessrl/core/internal/corestate"
)

// StateSize (S) is the fixed feature-vector length: 12 piece planes of 64
// squares (768) + side-to-move (1) + four castling rights (4) + en-passant
// file one-hot incl. "none" (9) is folded into a single normalized scalar
// here to keep S at the commonly cited 776 rather than 839 — see
// DESIGN.md for the choice between the two figures the source material
// used. Layout: [0:768) piece planes, [768) side to move, [769:773)
// castling KQkq, [773) en passant file normalized, [774) halfmove clock
// normalized, [775) fullmove number normalized.
const StateSize = 776

// ActionSpaceSize (A) is the fixed action-space size: 64 from-squares ×
// 64 to-squares. Underpromotions are not given distinct action indices;
// encode_move always maps a promoting move to the same index regardless
// of promotion piece, and decode_action resolves the promotion via the
// rules engine's default (queen), per the Open Question in spec §9
// resolved against "no extension" — see DESIGN.md.
const ActionSpaceSize = 64 * 64

var pieceOrder = []byte{'P', 'N', 'B', 'R', 'Q', 'K', 'p', 'n', 'b', 'r', 'q', 'k'}

// Codec implements C1 against a concrete chesstypes.Rules. It holds no
// mutable state: every operation is a pure function of its arguments plus
// the injected Rules.
type Codec struct {
	rules chesstypes.Rules
}

// New returns a Codec bound to rules. rules is the external
// collaborator whose LegalMoves the Codec consults to
// decode actions and compute the legal mask; it never mutates boards it
// is given.
func New(rules chesstypes.Rules) *Codec {
	return &Codec{rules: rules}
}

// EncodeState is a deterministic, pure function of board's FEN: identical
// FEN always yields an identical vector, and the converse is the
// bijection property tested at the Core boundary.
func (c *Codec) EncodeState(board chesstypes.Board) ([]float32, error) {
	fen := board.FEN()
	fields := strings.Fields(fen)
	if len(fields) != 6 {
		return nil, corestate.New(corestate.CodeCodecMismatch, "codec.EncodeState",
			"board FEN does not have 6 fields")
	}

	vec := make([]float32, StateSize)
	ranks := strings.Split(fields[0], "/")
	if len(ranks) != 8 {
		return nil, corestate.New(corestate.CodeCodecMismatch, "codec.EncodeState",
			"board FEN does not have 8 ranks")
	}
	for rankIdx, rankStr := range ranks {
		file := 0
		for _, ch := range rankStr {
			if ch >= '1' && ch <= '8' {
				file += int(ch - '0')
				continue
			}
			plane := planeIndex(byte(ch))
			if plane >= 0 && file < 8 {
				sq := rankIdx*8 + file
				vec[plane*64+sq] = 1
			}
			file++
		}
	}

	if fields[1] == "b" {
		vec[768] = 1
	}
	castling := fields[2]
	if strings.Contains(castling, "K") {
		vec[769] = 1
	}
	if strings.Contains(castling, "Q") {
		vec[770] = 1
	}
	if strings.Contains(castling, "k") {
		vec[771] = 1
	}
	if strings.Contains(castling, "q") {
		vec[772] = 1
	}
	if fields[3] != "-" && len(fields[3]) >= 1 {
		file := fields[3][0] - 'a'
		vec[773] = float32(file+1) / 8.0
	}
	if halfmove, err := strconv.Atoi(fields[4]); err == nil {
		vec[774] = float32(halfmove) / 100.0
	}
	if fullmove, err := strconv.Atoi(fields[5]); err == nil {
		vec[775] = float32(fullmove) / 200.0
	}
	return vec, nil
}

func planeIndex(ch byte) int {
	for i, p := range pieceOrder {
		if p == ch {
			return i
		}
	}
	return -1
}

// EncodeMove maps m to an ActionIndex in [0, ActionSpaceSize); bijective
// on the legal moves of any single board (two different legal moves of
// the same board never collide) because it is a pure function of
// (from, to) and no board permits two legal moves sharing both squares.
func (c *Codec) EncodeMove(m chesstypes.Move) int {
	return int(m.From())*64 + int(m.To())
}

// simpleMove is the chesstypes.Move the Codec fabricates to hand the
// rules engine a (from, to, promotion) triple when decoding.
type simpleMove struct {
	from, to chesstypes.Square
	promo    chesstypes.PieceType
}

func (s simpleMove) From() chesstypes.Square         { return s.from }
func (s simpleMove) To() chesstypes.Square           { return s.to }
func (s simpleMove) Promotion() chesstypes.PieceType { return s.promo }

// DecodeAction resolves index back to the legal chesstypes.Move it
// represents on board, or chesstypes.ErrIllegalMove if no legal move of
// board encodes to index. Round-trips with EncodeMove for any move that
// is legal on board (spec §4.1 round-trip guarantee).
func (c *Codec) DecodeAction(index int, board chesstypes.Board) (chesstypes.Move, error) {
	if index < 0 || index >= ActionSpaceSize {
		return nil, corestate.New(corestate.CodeCodecMismatch, "codec.DecodeAction",
			"action index out of range")
	}
	for _, m := range c.rules.LegalMoves(board) {
		if c.EncodeMove(m) == index {
			return m, nil
		}
	}
	return nil, chesstypes.ErrIllegalMove
}

// LegalMask returns the set of ActionIndex values legal in board: exactly
// the image of EncodeMove over rules.LegalMoves(board).
func (c *Codec) LegalMask(board chesstypes.Board) []bool {
	mask := make([]bool, ActionSpaceSize)
	for _, m := range c.rules.LegalMoves(board) {
		mask[c.EncodeMove(m)] = true
	}
	return mask
}

// MaskIndices returns the legal ActionIndex values of mask in ascending
// order; a convenience for callers (e.g. the Approximator) that want a
// dense list rather than a bit-vector.
func MaskIndices(mask []bool) []int {
	out := make([]int, 0, len(mask))
	for i, ok := range mask {
		if ok {
			out = append(out, i)
		}
	}
	return out
}
