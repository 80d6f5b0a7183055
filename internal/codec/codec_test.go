package codec_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chessrl/core/internal/chesstypes"
	"github.com/chessrl/core/internal/chesstypes/simplerules"
	"github.com/chessrl/core/internal/codec"
)

func TestEncodeStateDeterministic(t *testing.T) {
	rules := simplerules.Engine{}
	cdc := codec.New(rules)
	board := rules.NewBoard()

	v1, err := cdc.EncodeState(board)
	require.NoError(t, err)
	v2, err := cdc.EncodeState(board)
	require.NoError(t, err)

	assert.Equal(t, v1, v2)
	assert.Len(t, v1, codec.StateSize)
}

func TestEncodeStateDistinguishesPositions(t *testing.T) {
	rules := simplerules.Engine{}
	cdc := codec.New(rules)
	start := rules.NewBoard()
	moves := rules.LegalMoves(start)
	require.NotEmpty(t, moves)
	next, err := rules.ApplyMove(start, moves[0])
	require.NoError(t, err)

	v1, err := cdc.EncodeState(start)
	require.NoError(t, err)
	v2, err := cdc.EncodeState(next)
	require.NoError(t, err)

	assert.NotEqual(t, v1, v2)
}

func TestEncodeDecodeActionRoundTrip(t *testing.T) {
	rules := simplerules.Engine{}
	cdc := codec.New(rules)
	board := rules.NewBoard()

	for _, m := range rules.LegalMoves(board) {
		idx := cdc.EncodeMove(m)
		assert.GreaterOrEqual(t, idx, 0)
		assert.Less(t, idx, codec.ActionSpaceSize)

		decoded, err := cdc.DecodeAction(idx, board)
		require.NoError(t, err)
		assert.Equal(t, m.From(), decoded.From())
		assert.Equal(t, m.To(), decoded.To())
	}
}

func TestDecodeActionOutOfRange(t *testing.T) {
	rules := simplerules.Engine{}
	cdc := codec.New(rules)
	board := rules.NewBoard()

	_, err := cdc.DecodeAction(-1, board)
	assert.Error(t, err)
	_, err = cdc.DecodeAction(codec.ActionSpaceSize, board)
	assert.Error(t, err)
}

func TestDecodeActionIllegalMove(t *testing.T) {
	rules := simplerules.Engine{}
	cdc := codec.New(rules)
	board := rules.NewBoard()

	// a1 (square 56) to a1 is never a legal move on the opening board.
	_, err := cdc.DecodeAction(56*64+56, board)
	assert.ErrorIs(t, err, chesstypes.ErrIllegalMove)
}

func TestLegalMaskMatchesLegalMoves(t *testing.T) {
	rules := simplerules.Engine{}
	cdc := codec.New(rules)
	board := rules.NewBoard()

	mask := cdc.LegalMask(board)
	assert.Len(t, mask, codec.ActionSpaceSize)

	legal := rules.LegalMoves(board)
	indices := codec.MaskIndices(mask)
	assert.Len(t, indices, len(legal))

	for _, m := range legal {
		assert.True(t, mask[cdc.EncodeMove(m)])
	}
}
