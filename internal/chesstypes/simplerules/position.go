// Package simplerules is a reference implementation of chesstypes.Rules.
//
// It is a minimal, array-based ("mailbox") chess engine in the style of
// the small chess reference implementations in the example pack
// (AdamGriffiths31-ChessEngine, hailam-chessplay, Mgrdich-TermChess):
// an 8x8 byte array, pseudo-legal move generation per piece type, then a
// king-safety filter to produce the legal set.
//
// It exists to exercise and test the Core against a real rules engine.
// Per the specification, the chess rules engine itself is an external
// collaborator and out of the Core's scope; this package is test/demo
// infrastructure, not a component of the trained system.
package simplerules

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/chessrl/core/internal/chesstypes"
)

// Piece codes. 0 is empty; 1-6 are white pieces, 7-12 are black pieces.
const (
	Empty byte = iota
	WP
	WN
	WB
	WR
	WQ
	WK
	BP
	BN
	BB
	BR
	BQ
	BK
)

func isWhite(p byte) bool { return p >= WP && p <= WK }
func isBlack(p byte) bool { return p >= BP && p <= BK }

func sideOf(p byte) chesstypes.Side {
	if isWhite(p) {
		return chesstypes.White
	}
	return chesstypes.Black
}

const (
	castleWK = 1 << iota
	castleWQ
	castleBK
	castleBQ
)

// Position is the concrete board state. It implements chesstypes.Board.
type Position struct {
	squares       [64]byte
	side          chesstypes.Side
	castleRights  uint8
	epSquare      int // -1 if none
	halfmoveClock int
	fullmoveNum   int
	// repetitions counts occurrences of each position key (board+side+castle+ep),
	// shared by value-copy across clones since Go maps alias on copy; ApplyMove
	// always produces a fresh map so mutation never leaks between positions.
	repetitions map[string]int
}

var _ chesstypes.Board = (*Position)(nil)

func (p *Position) Clone() chesstypes.Board {
	np := *p
	np.repetitions = make(map[string]int, len(p.repetitions))
	for k, v := range p.repetitions {
		np.repetitions[k] = v
	}
	return &np
}

// repetitionKey ignores move counters, as required for threefold detection.
func (p *Position) repetitionKey() string {
	var sb strings.Builder
	sb.Write(p.squares[:])
	sb.WriteByte(byte(p.side))
	sb.WriteByte(p.castleRights)
	sb.WriteByte(byte(p.epSquare + 1))
	return sb.String()
}

func squareName(sq int) string {
	file := sq % 8
	rank := sq / 8
	return fmt.Sprintf("%c%d", 'a'+file, 8-rank)
}

func pieceToFEN(p byte) byte {
	switch p {
	case WP:
		return 'P'
	case WN:
		return 'N'
	case WB:
		return 'B'
	case WR:
		return 'R'
	case WQ:
		return 'Q'
	case WK:
		return 'K'
	case BP:
		return 'p'
	case BN:
		return 'n'
	case BB:
		return 'b'
	case BR:
		return 'r'
	case BQ:
		return 'q'
	case BK:
		return 'k'
	default:
		return 0
	}
}

func fenToPiece(c byte) byte {
	switch c {
	case 'P':
		return WP
	case 'N':
		return WN
	case 'B':
		return WB
	case 'R':
		return WR
	case 'Q':
		return WQ
	case 'K':
		return WK
	case 'p':
		return BP
	case 'n':
		return BN
	case 'b':
		return BB
	case 'r':
		return BR
	case 'q':
		return BQ
	case 'k':
		return BK
	default:
		return Empty
	}
}

// FEN serializes the position to canonical Forsyth-Edwards notation.
func (p *Position) FEN() string {
	var sb strings.Builder
	for rank := 0; rank < 8; rank++ {
		empty := 0
		for file := 0; file < 8; file++ {
			sq := rank*8 + file
			piece := p.squares[sq]
			if piece == Empty {
				empty++
				continue
			}
			if empty > 0 {
				sb.WriteString(strconv.Itoa(empty))
				empty = 0
			}
			sb.WriteByte(pieceToFEN(piece))
		}
		if empty > 0 {
			sb.WriteString(strconv.Itoa(empty))
		}
		if rank != 7 {
			sb.WriteByte('/')
		}
	}
	sb.WriteByte(' ')
	if p.side == chesstypes.White {
		sb.WriteByte('w')
	} else {
		sb.WriteByte('b')
	}
	sb.WriteByte(' ')
	rights := ""
	if p.castleRights&castleWK != 0 {
		rights += "K"
	}
	if p.castleRights&castleWQ != 0 {
		rights += "Q"
	}
	if p.castleRights&castleBK != 0 {
		rights += "k"
	}
	if p.castleRights&castleBQ != 0 {
		rights += "q"
	}
	if rights == "" {
		rights = "-"
	}
	sb.WriteString(rights)
	sb.WriteByte(' ')
	if p.epSquare < 0 {
		sb.WriteByte('-')
	} else {
		sb.WriteString(squareName(p.epSquare))
	}
	sb.WriteByte(' ')
	sb.WriteString(strconv.Itoa(p.halfmoveClock))
	sb.WriteByte(' ')
	sb.WriteString(strconv.Itoa(p.fullmoveNum))
	return sb.String()
}

// ParseFEN builds a Position from canonical FEN text.
func ParseFEN(text string) (*Position, error) {
	fields := strings.Fields(text)
	if len(fields) != 6 {
		return nil, errorf("expected 6 FEN fields, got %d", len(fields))
	}
	p := &Position{epSquare: -1, repetitions: make(map[string]int)}
	ranks := strings.Split(fields[0], "/")
	if len(ranks) != 8 {
		return nil, errorf("expected 8 ranks, got %d", len(ranks))
	}
	for rankIdx, rankStr := range ranks {
		file := 0
		for _, c := range rankStr {
			if c >= '1' && c <= '8' {
				file += int(c - '0')
				continue
			}
			if file >= 8 {
				return nil, errorf("rank %d overflows", rankIdx)
			}
			p.squares[rankIdx*8+file] = fenToPiece(byte(c))
			file++
		}
	}
	switch fields[1] {
	case "w":
		p.side = chesstypes.White
	case "b":
		p.side = chesstypes.Black
	default:
		return nil, errorf("invalid side to move %q", fields[1])
	}
	for _, c := range fields[2] {
		switch c {
		case 'K':
			p.castleRights |= castleWK
		case 'Q':
			p.castleRights |= castleWQ
		case 'k':
			p.castleRights |= castleBK
		case 'q':
			p.castleRights |= castleBQ
		case '-':
		default:
			return nil, errorf("invalid castling field %q", fields[2])
		}
	}
	if fields[3] == "-" {
		p.epSquare = -1
	} else {
		sq, err := parseSquareName(fields[3])
		if err != nil {
			return nil, err
		}
		p.epSquare = sq
	}
	halfmove, err := strconv.Atoi(fields[4])
	if err != nil {
		return nil, errorf("invalid halfmove clock %q", fields[4])
	}
	p.halfmoveClock = halfmove
	fullmove, err := strconv.Atoi(fields[5])
	if err != nil {
		return nil, errorf("invalid fullmove number %q", fields[5])
	}
	p.fullmoveNum = fullmove
	p.repetitions[p.repetitionKey()] = 1
	return p, nil
}

func parseSquareName(s string) (int, error) {
	if len(s) != 2 {
		return 0, errorf("invalid square %q", s)
	}
	file := int(s[0] - 'a')
	rank := int('8' - s[1])
	if file < 0 || file > 7 || rank < 0 || rank > 7 {
		return 0, errorf("invalid square %q", s)
	}
	return rank*8 + file, nil
}

func errorf(format string, args ...any) error {
	return fmt.Errorf("simplerules: "+format, args...)
}

// InitialPosition returns the standard chess starting position.
func InitialPosition() *Position {
	p, err := ParseFEN("rnbqkbnr/pppppppp/8/8/8/8/PPPPPPPP/RNBQKBNR w KQkq - 0 1")
	if err != nil {
		panic(err)
	}
	return p
}
