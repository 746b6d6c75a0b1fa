// Package scoring maps quiz answers onto a single archetype.
//
// The decision order is fixed: a core-question majority wins outright, then
// the highest weighted score, then the tie-break chain (most core answers,
// the answer to question 1, the configured tie-break order).
package scoring

import (
	"fmt"

	"archetype-chat-service/internal/domain"
)

// ReferenceQuestionID is the question whose answer breaks ties that survive
// the core-count comparison.
const ReferenceQuestionID = 1

// coreMajority is the number of core answers that decides the result on its own.
const coreMajority = 2

const (
	ruleMostCore     = "Most core questions"
	ruleQuestionOne  = "Question 1 preference"
	ruleDefaultOrder = "Default ordering"
	ruleFallback     = "Fallback: first tied category"
)

// Score picks the winning category for answers under cfg.
func Score(answers []domain.WeightedAnswer, cfg domain.ScoringConfig) (domain.ScoringResult, error) {
	if err := ValidateConfig(cfg); err != nil {
		return domain.ScoringResult{}, err
	}
	if len(answers) == 0 {
		return domain.ScoringResult{}, fmt.Errorf("%w: %w", domain.ErrInvalidInput, domain.ErrEmptyAnswers)
	}

	known := make(map[domain.Category]struct{}, len(cfg.Categories))
	for _, c := range cfg.Categories {
		known[c] = struct{}{}
	}

	totals := make(map[domain.Category]float64, len(cfg.Categories))
	cores := make(map[domain.Category]int, len(cfg.Categories))
	for _, c := range cfg.Categories {
		totals[c] = 0
		cores[c] = 0
	}
	for _, a := range answers {
		if _, ok := known[a.Category]; !ok {
			return domain.ScoringResult{}, fmt.Errorf("%w: %w %q on question %d", domain.ErrInvalidInput, domain.ErrUnknownCategory, a.Category, a.QuestionID)
		}
		if a.Core {
			totals[a.Category] += cfg.CoreWeight
			cores[a.Category]++
		} else {
			totals[a.Category] += cfg.RegularWeight
		}
	}

	result := domain.ScoringResult{
		TotalScores: totals,
		CoreCounts:  cores,
	}

	if winner, ok := FirstCoreMajority(cfg.Categories, cores); ok {
		result.Winner = winner
		result.Decision = domain.DecisionCoreMajority
		return result, nil
	}

	tied := leaders(cfg.Categories, totals)
	if len(tied) == 1 {
		result.Winner = tied[0]
		result.Decision = domain.DecisionHighestScore
		return result, nil
	}

	result.UsedTieBreaker = true
	result.Tied = tied
	result.Winner, result.Decision, result.TieRule = breakTie(tied, answers, cores, cfg.TieBreakOrder)
	return result, nil
}

// FirstCoreMajority walks categories in configuration order and returns the
// first one with at least two core answers. Configuration order, not answer
// order, decides between several qualifying categories.
func FirstCoreMajority(categories []domain.Category, coreCounts map[domain.Category]int) (domain.Category, bool) {
	for _, c := range categories {
		if coreCounts[c] >= coreMajority {
			return c, true
		}
	}
	return "", false
}

// leaders returns every category sharing the maximum total, in config order.
func leaders(categories []domain.Category, totals map[domain.Category]float64) []domain.Category {
	var (
		best float64
		out  []domain.Category
	)
	for i, c := range categories {
		switch {
		case i == 0 || totals[c] > best:
			best = totals[c]
			out = append(out[:0], c)
		case totals[c] == best:
			out = append(out, c)
		}
	}
	return out
}

func breakTie(tied []domain.Category, answers []domain.WeightedAnswer, cores map[domain.Category]int, order []domain.Category) (domain.Category, domain.Decision, string) {
	// Most core answers among the tied set.
	maxCore := -1
	var remaining []domain.Category
	for _, c := range tied {
		switch {
		case cores[c] > maxCore:
			maxCore = cores[c]
			remaining = append(remaining[:0], c)
		case cores[c] == maxCore:
			remaining = append(remaining, c)
		}
	}
	if len(remaining) == 1 {
		return remaining[0], domain.DecisionMostCore, ruleMostCore
	}

	if ref, ok := referenceAnswer(answers); ok && contains(remaining, ref.Category) {
		return ref.Category, domain.DecisionQuestionOne, ruleQuestionOne
	}

	for _, c := range order {
		if contains(remaining, c) {
			return c, domain.DecisionDefaultOrder, ruleDefaultOrder
		}
	}

	// Unreachable while order is a permutation of the categories.
	return tied[0], domain.DecisionFallbackOrder, ruleFallback
}

func referenceAnswer(answers []domain.WeightedAnswer) (domain.WeightedAnswer, bool) {
	for _, a := range answers {
		if a.QuestionID == ReferenceQuestionID {
			return a, true
		}
	}
	return domain.WeightedAnswer{}, false
}

func contains(set []domain.Category, c domain.Category) bool {
	for _, s := range set {
		if s == c {
			return true
		}
	}
	return false
}
