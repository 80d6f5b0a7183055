package simplerules_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chessrl/core/internal/chesstypes"
	"github.com/chessrl/core/internal/chesstypes/simplerules"
)

func TestInitialPositionHasTwentyLegalMoves(t *testing.T) {
	eng := simplerules.Engine{}
	board := eng.NewBoard()
	assert.Len(t, eng.LegalMoves(board), 20)
	assert.Equal(t, chesstypes.StatusOngoing, eng.TerminalStatus(board))
	assert.Equal(t, chesstypes.White, eng.SideToMove(board))
}

func TestFENRoundTrip(t *testing.T) {
	eng := simplerules.Engine{}
	fen := "rnbqkbnr/pppppppp/8/8/8/8/PPPPPPPP/RNBQKBNR w KQkq - 0 1"
	board, err := eng.FromFEN(fen)
	require.NoError(t, err)
	assert.Equal(t, fen, eng.ToFEN(board))
}

func TestFromFENRejectsMalformedText(t *testing.T) {
	eng := simplerules.Engine{}
	_, err := eng.FromFEN("not a fen string")
	assert.Error(t, err)
}

func TestFoolsMateIsCheckmate(t *testing.T) {
	eng := simplerules.Engine{}
	board, err := eng.FromFEN("rnb1kbnr/pppp1ppp/8/4p3/6Pq/5P2/PPPPP2P/RNBQKBNR w KQkq - 1 3")
	require.NoError(t, err)

	assert.Equal(t, chesstypes.StatusBlackWins, eng.TerminalStatus(board))
	assert.Empty(t, eng.LegalMoves(board))
}

func TestStalemateHasNoLegalMovesAndIsNotCheck(t *testing.T) {
	eng := simplerules.Engine{}
	// Black king on h8 stalemated by the white king on f7 and queen on g6,
	// black to move and not in check.
	board, err := eng.FromFEN("7k/5K2/6Q1/8/8/8/8/8 b - - 0 1")
	require.NoError(t, err)

	assert.Equal(t, chesstypes.StatusDrawStalemate, eng.TerminalStatus(board))
	assert.Empty(t, eng.LegalMoves(board))
}

func TestLegalMovesExcludesPinnedPieceMoves(t *testing.T) {
	eng := simplerules.Engine{}
	// White knight on e2 pinned against the king on e1 by a black rook on
	// e8 along the e-file; a knight never moves in a straight line, so the
	// e2 knight has no legal move at all while it must block the pin.
	board, err := eng.FromFEN("4r3/8/8/8/8/8/4N3/4K3 w - - 0 1")
	require.NoError(t, err)

	for _, m := range eng.LegalMoves(board) {
		assert.NotEqual(t, squareFromName("e2"), m.From(), "pinned knight must not have a legal move")
	}
}

func TestApplyMoveRejectsMoveNotInLegalSet(t *testing.T) {
	eng := simplerules.Engine{}
	board := eng.NewBoard()
	// A white pawn advancing three squares from its start is never legal.
	_, err := eng.ApplyMove(board, bogusMove{from: squareFromName("e2"), to: squareFromName("e5")})
	assert.ErrorIs(t, err, chesstypes.ErrIllegalMove)
}

type bogusMove struct {
	from, to chesstypes.Square
}

func (m bogusMove) From() chesstypes.Square         { return m.from }
func (m bogusMove) To() chesstypes.Square           { return m.to }
func (m bogusMove) Promotion() chesstypes.PieceType { return chesstypes.NoPiece }

// squareFromName mirrors simplerules' own a8=0..h1=63 indexing, matching
// ParseFEN's square-name parsing.
func squareFromName(s string) chesstypes.Square {
	file := int(s[0] - 'a')
	rank := int('8' - s[1])
	return chesstypes.Square(rank*8 + file)
}

func TestApplyMoveAdvancesSideToMove(t *testing.T) {
	eng := simplerules.Engine{}
	board := eng.NewBoard()
	moves := eng.LegalMoves(board)
	require.NotEmpty(t, moves)

	next, err := eng.ApplyMove(board, moves[0])
	require.NoError(t, err)
	assert.Equal(t, chesstypes.Black, eng.SideToMove(next))
}

