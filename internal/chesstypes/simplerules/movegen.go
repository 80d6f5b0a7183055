package simplerules

import "github.com/chessrl/core/internal/chesstypes"

// move is the concrete chesstypes.Move implementation.
type move struct {
	from, to chesstypes.Square
	promo    chesstypes.PieceType
}

var _ chesstypes.Move = move{}

func (m move) From() chesstypes.Square          { return m.from }
func (m move) To() chesstypes.Square            { return m.to }
func (m move) Promotion() chesstypes.PieceType  { return m.promo }

func fileOf(sq int) int { return sq % 8 }
func rankOf(sq int) int { return sq / 8 }

func onBoard(file, rank int) bool { return file >= 0 && file < 8 && rank >= 0 && rank < 8 }

var knightDeltas = [8][2]int{{1, 2}, {2, 1}, {2, -1}, {1, -2}, {-1, -2}, {-2, -1}, {-2, 1}, {-1, 2}}
var kingDeltas = [8][2]int{{1, 0}, {1, 1}, {0, 1}, {-1, 1}, {-1, 0}, {-1, -1}, {0, -1}, {1, -1}}
var bishopDirs = [4][2]int{{1, 1}, {1, -1}, {-1, 1}, {-1, -1}}
var rookDirs = [4][2]int{{1, 0}, {-1, 0}, {0, 1}, {0, -1}}

// pseudoLegalMoves generates all moves for p.side ignoring whether the
// moving side's own king ends up in check.
func pseudoLegalMoves(p *Position) []move {
	var moves []move
	for sq := 0; sq < 64; sq++ {
		piece := p.squares[sq]
		if piece == Empty || sideOf(piece) != p.side {
			continue
		}
		switch piece {
		case WP, BP:
			moves = append(moves, pawnMoves(p, sq)...)
		case WN, BN:
			moves = append(moves, leaperMoves(p, sq, knightDeltas)...)
		case WK, BK:
			moves = append(moves, leaperMoves(p, sq, kingDeltas)...)
			moves = append(moves, castleMoves(p, sq)...)
		case WB, BB:
			moves = append(moves, sliderMoves(p, sq, bishopDirs[:])...)
		case WR, BR:
			moves = append(moves, sliderMoves(p, sq, rookDirs[:])...)
		case WQ, BQ:
			moves = append(moves, sliderMoves(p, sq, bishopDirs[:])...)
			moves = append(moves, sliderMoves(p, sq, rookDirs[:])...)
		}
	}
	return moves
}

func pawnMoves(p *Position, sq int) []move {
	var moves []move
	file, rank := fileOf(sq), rankOf(sq)
	white := p.side == chesstypes.White
	forward := 1
	startRank := 1
	promoRank := 7
	if white {
		forward = -1
		startRank = 6
		promoRank = 0
	}
	oneStep := sq + forward*8
	addPawnMove := func(from, to int) {
		if rankOf(to) == promoRank {
			for _, pt := range []chesstypes.PieceType{chesstypes.Queen, chesstypes.Rook, chesstypes.Bishop, chesstypes.Knight} {
				moves = append(moves, move{chesstypes.Square(from), chesstypes.Square(to), pt})
			}
		} else {
			moves = append(moves, move{chesstypes.Square(from), chesstypes.Square(to), chesstypes.NoPiece})
		}
	}
	if onBoard(file, rankOf(oneStep)) && p.squares[oneStep] == Empty {
		addPawnMove(sq, oneStep)
		twoStep := sq + forward*16
		if rank == startRank && p.squares[twoStep] == Empty {
			moves = append(moves, move{chesstypes.Square(sq), chesstypes.Square(twoStep), chesstypes.NoPiece})
		}
	}
	for _, df := range []int{-1, 1} {
		capFile := file + df
		capRank := rank + forward
		if !onBoard(capFile, capRank) {
			continue
		}
		capSq := capRank*8 + capFile
		if p.squares[capSq] != Empty && sideOf(p.squares[capSq]) != p.side {
			addPawnMove(sq, capSq)
		} else if capSq == p.epSquare {
			moves = append(moves, move{chesstypes.Square(sq), chesstypes.Square(capSq), chesstypes.NoPiece})
		}
	}
	return moves
}

func leaperMoves(p *Position, sq int, deltas [8][2]int) []move {
	var moves []move
	file, rank := fileOf(sq), rankOf(sq)
	for _, d := range deltas {
		nf, nr := file+d[0], rank+d[1]
		if !onBoard(nf, nr) {
			continue
		}
		to := nr*8 + nf
		if p.squares[to] == Empty || sideOf(p.squares[to]) != p.side {
			moves = append(moves, move{chesstypes.Square(sq), chesstypes.Square(to), chesstypes.NoPiece})
		}
	}
	return moves
}

func sliderMoves(p *Position, sq int, dirs [][2]int) []move {
	var moves []move
	file, rank := fileOf(sq), rankOf(sq)
	for _, d := range dirs {
		nf, nr := file+d[0], rank+d[1]
		for onBoard(nf, nr) {
			to := nr*8 + nf
			if p.squares[to] == Empty {
				moves = append(moves, move{chesstypes.Square(sq), chesstypes.Square(to), chesstypes.NoPiece})
			} else {
				if sideOf(p.squares[to]) != p.side {
					moves = append(moves, move{chesstypes.Square(sq), chesstypes.Square(to), chesstypes.NoPiece})
				}
				break
			}
			nf += d[0]
			nr += d[1]
		}
	}
	return moves
}

func castleMoves(p *Position, sq int) []move {
	var moves []move
	white := p.side == chesstypes.White
	rank := 0
	if white {
		rank = 7
	}
	if rankOf(sq) != rank || fileOf(sq) != 4 {
		return nil
	}
	kingSide, queenSide := castleWK, castleWQ
	if !white {
		kingSide, queenSide = castleBK, castleBQ
	}
	if p.castleRights&kingSide != 0 &&
		p.squares[rank*8+5] == Empty && p.squares[rank*8+6] == Empty &&
		!squareAttacked(p, rank*8+4, p.side.Other()) &&
		!squareAttacked(p, rank*8+5, p.side.Other()) &&
		!squareAttacked(p, rank*8+6, p.side.Other()) {
		moves = append(moves, move{chesstypes.Square(sq), chesstypes.Square(rank*8 + 6), chesstypes.NoPiece})
	}
	if p.castleRights&queenSide != 0 &&
		p.squares[rank*8+3] == Empty && p.squares[rank*8+2] == Empty && p.squares[rank*8+1] == Empty &&
		!squareAttacked(p, rank*8+4, p.side.Other()) &&
		!squareAttacked(p, rank*8+3, p.side.Other()) &&
		!squareAttacked(p, rank*8+2, p.side.Other()) {
		moves = append(moves, move{chesstypes.Square(sq), chesstypes.Square(rank*8 + 2), chesstypes.NoPiece})
	}
	return moves
}

// squareAttacked reports whether sq is attacked by any piece of attacker.
func squareAttacked(p *Position, sq int, attacker chesstypes.Side) bool {
	file, rank := fileOf(sq), rankOf(sq)

	// Pawn attacks: a pawn of `attacker` color attacks diagonally forward from its
	// own perspective; we look backward from sq to find such a pawn.
	pawnDir := 1
	pawnPiece := byte(BP)
	if attacker == chesstypes.White {
		pawnDir = -1
		pawnPiece = WP
	}
	for _, df := range []int{-1, 1} {
		sf, sr := file+df, rank-pawnDir
		if onBoard(sf, sr) && p.squares[sr*8+sf] == pawnPiece {
			return true
		}
	}

	knightPiece := byte(BN)
	kingPiece := byte(BK)
	bishopPiece := byte(BB)
	rookPiece := byte(BR)
	queenPiece := byte(BQ)
	if attacker == chesstypes.White {
		knightPiece, kingPiece, bishopPiece, rookPiece, queenPiece = WN, WK, WB, WR, WQ
	}

	for _, d := range knightDeltas {
		nf, nr := file+d[0], rank+d[1]
		if onBoard(nf, nr) && p.squares[nr*8+nf] == knightPiece {
			return true
		}
	}
	for _, d := range kingDeltas {
		nf, nr := file+d[0], rank+d[1]
		if onBoard(nf, nr) && p.squares[nr*8+nf] == kingPiece {
			return true
		}
	}
	for _, d := range bishopDirs {
		if rayAttacks(p, file, rank, d, bishopPiece, queenPiece) {
			return true
		}
	}
	for _, d := range rookDirs {
		if rayAttacks(p, file, rank, d, rookPiece, queenPiece) {
			return true
		}
	}
	return false
}

func rayAttacks(p *Position, file, rank int, dir [2]int, slider1, slider2 byte) bool {
	nf, nr := file+dir[0], rank+dir[1]
	for onBoard(nf, nr) {
		piece := p.squares[nr*8+nf]
		if piece != Empty {
			if piece == slider1 || piece == slider2 {
				return true
			}
			return false
		}
		nf += dir[0]
		nr += dir[1]
	}
	return false
}

func findKing(p *Position, side chesstypes.Side) int {
	king := byte(WK)
	if side == chesstypes.Black {
		king = BK
	}
	for sq, piece := range p.squares {
		if piece == king {
			return sq
		}
	}
	return -1
}

// LegalMoves filters pseudo-legal moves to those that leave the mover's own
// king safe.
func LegalMoves(p *Position) []move {
	pseudo := pseudoLegalMoves(p)
	legal := make([]move, 0, len(pseudo))
	for _, m := range pseudo {
		next, err := applyMoveRaw(p, m)
		if err != nil {
			continue
		}
		kingSq := findKing(next, p.side)
		if kingSq < 0 || !squareAttacked(next, kingSq, p.side.Other()) {
			legal = append(legal, m)
		}
	}
	return legal
}
