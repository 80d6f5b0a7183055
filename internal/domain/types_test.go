package domain_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/chessrl/core/internal/chesstypes"
	"github.com/chessrl/core/internal/domain"
)

func TestQualityScoreWithinUnitRange(t *testing.T) {
	cases := []struct {
		outcome    chesstypes.Outcome
		moveNumber int
		gameLength int
		reward     float32
	}{
		{chesstypes.WhiteWins, 40, 40, 1.0},
		{chesstypes.Draw, 1, 100, 0},
		{chesstypes.Ongoing, 10, 100, -0.001},
		{chesstypes.BlackWins, 200, 100, -1.0},
	}
	for _, c := range cases {
		score := domain.QualityScore(c.outcome, c.moveNumber, c.gameLength, c.reward)
		assert.GreaterOrEqual(t, score, float32(0))
		assert.LessOrEqual(t, score, float32(1))
	}
}

func TestQualityScoreRanksDecisiveLateGameHigher(t *testing.T) {
	early := domain.QualityScore(chesstypes.WhiteWins, 1, 100, 0.1)
	late := domain.QualityScore(chesstypes.WhiteWins, 100, 100, 0.1)
	assert.Greater(t, late, early)
}

func TestEnhancedExperienceValidateRejectsBadMoveNumber(t *testing.T) {
	exp := domain.EnhancedExperience{MoveNumber: 0, QualityScore: 0.5, GameOutcome: chesstypes.Draw}
	assert.Error(t, exp.Validate())
}

func TestEnhancedExperienceValidateRejectsTerminalOngoing(t *testing.T) {
	exp := domain.EnhancedExperience{
		MoveNumber:   1,
		QualityScore: 0.5,
		GameOutcome:  chesstypes.Ongoing,
		Experience:   domain.Experience{Terminal: true},
	}
	assert.Error(t, exp.Validate())
}

func TestEnhancedExperienceValidateAcceptsWellFormed(t *testing.T) {
	exp := domain.EnhancedExperience{
		MoveNumber:   1,
		QualityScore: 0.5,
		GameOutcome:  chesstypes.WhiteWins,
		Experience:   domain.Experience{Terminal: true},
	}
	assert.NoError(t, exp.Validate())
}

func TestGameResultValidateChecksExperienceCount(t *testing.T) {
	g := domain.GameResult{GameID: "g1", Length: 2, Experiences: []domain.EnhancedExperience{{}}}
	assert.Error(t, g.Validate())

	g.Experiences = append(g.Experiences, domain.EnhancedExperience{})
	assert.NoError(t, g.Validate())
}

func TestUpdateResultIsFinite(t *testing.T) {
	ok := domain.UpdateResult{Loss: 0.1, GradientNorm: 1, PolicyEntropy: 0.5, QMean: 0.2, TargetMean: 0.2}
	assert.True(t, ok.IsFinite())

	bad := domain.UpdateResult{Loss: float32(1) / float32(0)}
	assert.False(t, bad.IsFinite())
}
