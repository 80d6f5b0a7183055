package simplerules

import (
	"github.com/chessrl/core/internal/chesstypes"
)

// Engine implements chesstypes.Rules.
type Engine struct{}

var _ chesstypes.Rules = Engine{}

func (Engine) NewBoard() chesstypes.Board {
	return InitialPosition()
}

func (Engine) FromFEN(text string) (chesstypes.Board, error) {
	return ParseFEN(text)
}

func (Engine) ToFEN(b chesstypes.Board) string {
	return b.(*Position).FEN()
}

func (Engine) LegalMoves(b chesstypes.Board) []chesstypes.Move {
	p := b.(*Position)
	legal := LegalMoves(p)
	out := make([]chesstypes.Move, len(legal))
	for i, m := range legal {
		out[i] = m
	}
	return out
}

func (Engine) ApplyMove(b chesstypes.Board, m chesstypes.Move) (chesstypes.Board, error) {
	p := b.(*Position)
	cm, ok := toConcreteMove(p, m)
	if !ok {
		return nil, chesstypes.ErrIllegalMove
	}
	next, err := applyMoveRaw(p, cm)
	if err != nil {
		return nil, err
	}
	kingSq := findKing(next, p.side)
	if kingSq >= 0 && squareAttacked(next, kingSq, p.side.Other()) {
		return nil, chesstypes.ErrIllegalMove
	}
	next.repetitions[next.repetitionKey()]++
	return next, nil
}

// toConcreteMove matches an arbitrary chesstypes.Move against the legal
// move list, resolving default promotions (queen) if the caller's move
// value didn't specify one but a promotion is forced by the target rank.
func toConcreteMove(p *Position, m chesstypes.Move) (move, bool) {
	for _, legal := range LegalMoves(p) {
		if legal.From() == m.From() && legal.To() == m.To() {
			if legal.Promotion() == chesstypes.NoPiece || legal.Promotion() == m.Promotion() {
				return legal, true
			}
			if legal.Promotion() == chesstypes.Queen && m.Promotion() == chesstypes.NoPiece {
				return legal, true
			}
		}
	}
	return move{}, false
}

func (Engine) TerminalStatus(b chesstypes.Board) chesstypes.TerminalStatus {
	p := b.(*Position)
	legal := LegalMoves(p)
	kingSq := findKing(p, p.side)
	inCheck := kingSq >= 0 && squareAttacked(p, kingSq, p.side.Other())

	if len(legal) == 0 {
		if inCheck {
			if p.side == chesstypes.White {
				return chesstypes.StatusBlackWins
			}
			return chesstypes.StatusWhiteWins
		}
		return chesstypes.StatusDrawStalemate
	}
	if p.halfmoveClock >= 100 {
		return chesstypes.StatusDrawFiftyMove
	}
	if p.repetitions[p.repetitionKey()] >= 3 {
		return chesstypes.StatusDrawRepetition
	}
	if insufficientMaterial(p) {
		return chesstypes.StatusDrawInsufficientMaterial
	}
	if inCheck {
		return chesstypes.StatusInCheck
	}
	return chesstypes.StatusOngoing
}

func (Engine) SideToMove(b chesstypes.Board) chesstypes.Side {
	return b.(*Position).side
}

func insufficientMaterial(p *Position) bool {
	var minor, major int
	for _, piece := range p.squares {
		switch piece {
		case WP, BP, WR, BR, WQ, BQ:
			major++
		case WN, BN, WB, BB:
			minor++
		}
	}
	return major == 0 && minor <= 1
}

// applyMoveRaw applies a pseudo-legal move without checking whether it
// leaves the mover's own king in check; used internally by LegalMoves to
// probe king safety and by ApplyMove once the move is confirmed legal.
func applyMoveRaw(p *Position, m move) (*Position, error) {
	next := p.Clone().(*Position)
	from, to := int(m.from), int(m.to)
	piece := next.squares[from]
	if piece == Empty {
		return nil, chesstypes.ErrIllegalMove
	}
	captured := next.squares[to]

	isPawn := piece == WP || piece == BP
	isEnPassant := isPawn && to == p.epSquare && captured == Empty && fileOf(from) != fileOf(to)
	if isEnPassant {
		capturedSq := to + 8
		if p.side == chesstypes.White {
			capturedSq = to - 8
		}
		next.squares[capturedSq] = Empty
	}

	next.squares[to] = piece
	next.squares[from] = Empty

	if m.promo != chesstypes.NoPiece {
		next.squares[to] = promotedPiece(p.side, m.promo)
	}

	// Castling: king moves two files, also move the rook.
	if piece == WK || piece == BK {
		if from == 60 && to == 62 {
			next.squares[61], next.squares[63] = next.squares[63], Empty
		} else if from == 60 && to == 58 {
			next.squares[59], next.squares[56] = next.squares[56], Empty
		} else if from == 4 && to == 6 {
			next.squares[5], next.squares[7] = next.squares[7], Empty
		} else if from == 4 && to == 2 {
			next.squares[3], next.squares[0] = next.squares[0], Empty
		}
	}

	next.castleRights = updateCastleRights(p.castleRights, from, to)

	if isPawn && abs(to-from) == 16 {
		next.epSquare = (from + to) / 2
	} else {
		next.epSquare = -1
	}

	if isPawn || captured != Empty || isEnPassant {
		next.halfmoveClock = 0
	} else {
		next.halfmoveClock = p.halfmoveClock + 1
	}

	if p.side == chesstypes.Black {
		next.fullmoveNum = p.fullmoveNum + 1
	}
	next.side = p.side.Other()
	// repetitions map is reset to track only the new line going forward is not
	// correct for threefold detection across the whole game; ApplyMove (the
	// exported, legality-checked path) increments the shared count after
	// cloning here, applyMoveRaw itself leaves counts untouched so probing
	// king safety never pollutes the real repetition history.
	return next, nil
}

func abs(x int) int {
	if x < 0 {
		return -x
	}
	return x
}

func promotedPiece(side chesstypes.Side, pt chesstypes.PieceType) byte {
	white := side == chesstypes.White
	switch pt {
	case chesstypes.Queen:
		if white {
			return WQ
		}
		return BQ
	case chesstypes.Rook:
		if white {
			return WR
		}
		return BR
	case chesstypes.Bishop:
		if white {
			return WB
		}
		return BB
	case chesstypes.Knight:
		if white {
			return WN
		}
		return BN
	default:
		if white {
			return WQ
		}
		return BQ
	}
}

func updateCastleRights(rights uint8, from, to int) uint8 {
	clear := func(mask uint8) { rights &^= mask }
	switch from {
	case 60:
		clear(castleWK | castleWQ)
	case 4:
		clear(castleBK | castleBQ)
	case 56:
		clear(castleWQ)
	case 63:
		clear(castleWK)
	case 0:
		clear(castleBQ)
	case 7:
		clear(castleBK)
	}
	switch to {
	case 56:
		clear(castleWQ)
	case 63:
		clear(castleWK)
	case 0:
		clear(castleBQ)
	case 7:
		clear(castleBK)
	}
	return rights
}
