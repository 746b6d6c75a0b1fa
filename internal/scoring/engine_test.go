package scoring_test

import (
	"testing"

	"archetype-chat-service/internal/domain"
	"archetype-chat-service/internal/scoring"
	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	catA domain.Category = "A"
	catB domain.Category = "B"
	catC domain.Category = "C"
	catD domain.Category = "D"
)

func testConfig() domain.ScoringConfig {
	return domain.ScoringConfig{
		Categories:    []domain.Category{catA, catB, catC, catD},
		CoreWeight:    2,
		RegularWeight: 1,
		TieBreakOrder: []domain.Category{catA, catB, catC, catD},
	}
}

func answer(q int, c domain.Category, core bool) domain.WeightedAnswer {
	return domain.WeightedAnswer{QuestionID: q, Category: c, Core: core}
}

func TestCoreMajorityShortCircuit(t *testing.T) {
	answers := []domain.WeightedAnswer{
		answer(1, catA, true),
		answer(2, catA, true),
		answer(3, catB, false),
	}

	res, err := scoring.Score(answers, testConfig())
	require.NoError(t, err)

	assert.Equal(t, catA, res.Winner)
	assert.False(t, res.UsedTieBreaker)
	assert.Empty(t, res.TieRule)
	assert.Equal(t, domain.DecisionCoreMajority, res.Decision)

	want := map[domain.Category]float64{catA: 4, catB: 1, catC: 0, catD: 0}
	if diff := cmp.Diff(want, res.TotalScores); diff != "" {
		t.Fatalf("total scores mismatch (-want +got):\n%s", diff)
	}
	assert.Equal(t, 2, res.CoreCounts[catA])
}

func TestCoreMajorityBeatsHigherWeightedScore(t *testing.T) {
	answers := []domain.WeightedAnswer{
		answer(1, catB, true),
		answer(2, catB, true),
		answer(3, catC, false),
		answer(4, catC, false),
		answer(5, catC, false),
		answer(6, catC, false),
		answer(7, catC, false),
	}

	res, err := scoring.Score(answers, testConfig())
	require.NoError(t, err)
	assert.Equal(t, catB, res.Winner)
	assert.Greater(t, res.TotalScores[catC], res.TotalScores[catB])
}

func TestCoreMajorityFollowsConfigOrder(t *testing.T) {
	cfg := testConfig()
	cfg.Categories = []domain.Category{catC, catB, catA, catD}
	answers := []domain.WeightedAnswer{
		answer(1, catA, true),
		answer(2, catA, true),
		answer(3, catB, true),
		answer(4, catB, true),
	}

	res, err := scoring.Score(answers, cfg)
	require.NoError(t, err)
	assert.Equal(t, catB, res.Winner)
}

func TestStrictMaximumWins(t *testing.T) {
	answers := []domain.WeightedAnswer{
		answer(1, catA, true),
		answer(2, catB, false),
		answer(3, catB, false),
		answer(4, catB, false),
	}

	res, err := scoring.Score(answers, testConfig())
	require.NoError(t, err)
	assert.Equal(t, catB, res.Winner)
	assert.False(t, res.UsedTieBreaker)
	assert.Equal(t, domain.DecisionHighestScore, res.Decision)
}

func TestTieBrokenByCoreCount(t *testing.T) {
	answers := []domain.WeightedAnswer{
		answer(1, catA, false),
		answer(2, catA, false),
		answer(3, catB, true),
	}

	res, err := scoring.Score(answers, testConfig())
	require.NoError(t, err)
	assert.Equal(t, catB, res.Winner)
	assert.True(t, res.UsedTieBreaker)
	assert.Equal(t, "Most core questions", res.TieRule)
	assert.Equal(t, []domain.Category{catA, catB}, res.Tied)
}

func TestTieBrokenByQuestionOne(t *testing.T) {
	answers := []domain.WeightedAnswer{
		answer(1, catA, true),
		answer(2, catB, true),
		answer(3, catA, false),
		answer(4, catB, false),
	}

	res, err := scoring.Score(answers, testConfig())
	require.NoError(t, err)
	assert.Equal(t, 3.0, res.TotalScores[catA])
	assert.Equal(t, 3.0, res.TotalScores[catB])
	assert.Equal(t, catA, res.Winner)
	assert.Equal(t, "Question 1 preference", res.TieRule)
	assert.Equal(t, domain.DecisionQuestionOne, res.Decision)
}

func TestQuestionOneOutsideTiedSetFallsThrough(t *testing.T) {
	cfg := testConfig()
	cfg.TieBreakOrder = []domain.Category{catD, catC, catB, catA}
	answers := []domain.WeightedAnswer{
		answer(1, catD, false),
		answer(2, catA, true),
		answer(3, catB, true),
		answer(4, catA, false),
		answer(5, catB, false),
	}

	res, err := scoring.Score(answers, cfg)
	require.NoError(t, err)
	assert.Equal(t, catB, res.Winner)
	assert.Equal(t, "Default ordering", res.TieRule)
}

func TestDefaultOrderingIsDeterministic(t *testing.T) {
	cfg := testConfig()
	cfg.TieBreakOrder = []domain.Category{catC, catB, catA, catD}
	answers := []domain.WeightedAnswer{
		answer(2, catA, false),
		answer(3, catB, false),
		answer(4, catC, false),
	}

	first, err := scoring.Score(answers, cfg)
	require.NoError(t, err)
	for i := 0; i < 10; i++ {
		again, err := scoring.Score(answers, cfg)
		require.NoError(t, err)
		if diff := cmp.Diff(first, again); diff != "" {
			t.Fatalf("run %d differs (-first +again):\n%s", i, diff)
		}
	}
	assert.Equal(t, catC, first.Winner)
	assert.Equal(t, "Default ordering", first.TieRule)
	assert.NotEqual(t, domain.DecisionFallbackOrder, first.Decision)
}

func TestRejectsEmptyAnswers(t *testing.T) {
	_, err := scoring.Score(nil, testConfig())
	require.ErrorIs(t, err, domain.ErrInvalidInput)
	require.ErrorIs(t, err, domain.ErrEmptyAnswers)
}

func TestRejectsUnknownCategory(t *testing.T) {
	_, err := scoring.Score([]domain.WeightedAnswer{answer(1, "Z", true)}, testConfig())
	require.ErrorIs(t, err, domain.ErrInvalidInput)
	require.ErrorIs(t, err, domain.ErrUnknownCategory)
}

func TestValidateConfig(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*domain.ScoringConfig)
		ok     bool
	}{
		{name: "valid", mutate: func(*domain.ScoringConfig) {}, ok: true},
		{name: "three categories", mutate: func(c *domain.ScoringConfig) {
			c.Categories = c.Categories[:3]
		}},
		{name: "duplicate category", mutate: func(c *domain.ScoringConfig) {
			c.Categories = []domain.Category{catA, catA, catC, catD}
		}},
		{name: "order not a permutation", mutate: func(c *domain.ScoringConfig) {
			c.TieBreakOrder = []domain.Category{catA, catA, catB, catC}
		}},
		{name: "order missing category", mutate: func(c *domain.ScoringConfig) {
			c.TieBreakOrder = []domain.Category{catA, catB, catC}
		}},
		{name: "negative weight", mutate: func(c *domain.ScoringConfig) {
			c.CoreWeight = -1
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := testConfig()
			tt.mutate(&cfg)
			err := scoring.ValidateConfig(cfg)
			if tt.ok {
				assert.NoError(t, err)
				return
			}
			assert.ErrorIs(t, err, domain.ErrInvalidScoringConfig)
		})
	}
}

func TestDefaultConfigIsValid(t *testing.T) {
	require.NoError(t, scoring.ValidateConfig(scoring.DefaultConfig()))
}
