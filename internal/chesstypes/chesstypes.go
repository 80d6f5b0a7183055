// Package chesstypes defines the capability set the Core requires from the
// chess rules engine (board state, legal move generation, terminal
// detection, FEN serialization) without implementing it. The rules engine
// itself is an external collaborator: the Core is polymorphic over this
// interface set and never assumes a concrete board representation.
package chesstypes

import "fmt"

// Side identifies which player is to move or has won.
type Side int

const (
	White Side = iota
	Black
)

// Other returns the opposing side.
func (s Side) Other() Side {
	if s == White {
		return Black
	}
	return White
}

func (s Side) String() string {
	if s == White {
		return "white"
	}
	return "black"
}

// Outcome classifies how a game stands or ended.
type Outcome int

const (
	Ongoing Outcome = iota
	WhiteWins
	BlackWins
	Draw
)

func (o Outcome) String() string {
	switch o {
	case Ongoing:
		return "ongoing"
	case WhiteWins:
		return "white_wins"
	case BlackWins:
		return "black_wins"
	case Draw:
		return "draw"
	default:
		return fmt.Sprintf("outcome(%d)", int(o))
	}
}

// TerminalStatus is the fine-grained terminal classification from §6.
type TerminalStatus int

const (
	StatusOngoing TerminalStatus = iota
	StatusWhiteWins
	StatusBlackWins
	StatusDrawStalemate
	StatusDrawInsufficientMaterial
	StatusDrawFiftyMove
	StatusDrawRepetition
	StatusInCheck
)

// Outcome collapses a TerminalStatus into the coarser Outcome used by
// experience metadata.
func (s TerminalStatus) Outcome() Outcome {
	switch s {
	case StatusWhiteWins:
		return WhiteWins
	case StatusBlackWins:
		return BlackWins
	case StatusDrawStalemate, StatusDrawInsufficientMaterial, StatusDrawFiftyMove, StatusDrawRepetition:
		return Draw
	default:
		return Ongoing
	}
}

// IsTerminal reports whether the status represents a finished game.
func (s TerminalStatus) IsTerminal() bool {
	return s != StatusOngoing && s != StatusInCheck
}

func (s TerminalStatus) String() string {
	switch s {
	case StatusOngoing:
		return "ongoing"
	case StatusWhiteWins:
		return "white_wins"
	case StatusBlackWins:
		return "black_wins"
	case StatusDrawStalemate:
		return "draw_stalemate"
	case StatusDrawInsufficientMaterial:
		return "draw_insufficient_material"
	case StatusDrawFiftyMove:
		return "draw_fifty_move"
	case StatusDrawRepetition:
		return "draw_repetition"
	case StatusInCheck:
		return "in_check"
	default:
		return fmt.Sprintf("status(%d)", int(s))
	}
}

// PieceType is used only to resolve promotion targets; the Core never
// reasons about piece identity beyond this.
type PieceType int

const (
	NoPiece PieceType = iota
	Queen
	Rook
	Bishop
	Knight
)

// Square is a 0..63 board index, a8=0 .. h1=63 convention is the rules
// engine's choice; the Core treats it as an opaque bijective index.
type Square int

// Move is the capability set the Core needs from a rules-engine move value.
// Concrete rules engines may carry far more (e.g. en-passant flags,
// disambiguation) but the Core only ever asks for these four facts.
type Move interface {
	From() Square
	To() Square
	Promotion() PieceType
}

// Board is the capability set the Core needs from a rules-engine position.
// Implementations must be safe to retain (e.g. as the next_state of an
// Experience) and must not be mutated in place by later calls to Rules.
type Board interface {
	// Clone returns an independent copy; mutating the clone must never
	// affect the receiver.
	Clone() Board

	// FEN returns the canonical textual serialization of the position.
	FEN() string
}

// Rules is the full capability set of §6, consumed by the Core. A
// conforming implementation is the chess rules engine; it is explicitly
// out of this repository's scope, specified only by this interface.
type Rules interface {
	NewBoard() Board
	FromFEN(text string) (Board, error)
	ToFEN(b Board) string
	LegalMoves(b Board) []Move
	ApplyMove(b Board, m Move) (Board, error)
	TerminalStatus(b Board) TerminalStatus
	SideToMove(b Board) Side
}

// ErrIllegalMove is returned by ApplyMove when the proposed move is not in
// LegalMoves(b) at the time it is applied.
var ErrIllegalMove = fmt.Errorf("chesstypes: illegal move")
