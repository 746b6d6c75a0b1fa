package scoring

import (
	"fmt"

	"archetype-chat-service/internal/domain"
)

// CategoryCount is the size of the archetype set every configuration must define.
const CategoryCount = 4

// DefaultConfig is used when no scoring section is configured.
func DefaultConfig() domain.ScoringConfig {
	categories := []domain.Category{"visionary", "nurturer", "adventurer", "guardian"}
	return domain.ScoringConfig{
		Categories:    categories,
		CoreWeight:    2,
		RegularWeight: 1,
		TieBreakOrder: append([]domain.Category(nil), categories...),
	}
}

// ValidateConfig checks the category set and that the tie-break order is a
// permutation of it.
func ValidateConfig(cfg domain.ScoringConfig) error {
	if len(cfg.Categories) != CategoryCount {
		return fmt.Errorf("%w: want %d categories, got %d", domain.ErrInvalidScoringConfig, CategoryCount, len(cfg.Categories))
	}
	seen := make(map[domain.Category]bool, len(cfg.Categories))
	for _, c := range cfg.Categories {
		if c == "" {
			return fmt.Errorf("%w: empty category", domain.ErrInvalidScoringConfig)
		}
		if seen[c] {
			return fmt.Errorf("%w: duplicate category %q", domain.ErrInvalidScoringConfig, c)
		}
		seen[c] = true
	}
	if len(cfg.TieBreakOrder) != len(cfg.Categories) {
		return fmt.Errorf("%w: tie-break order must list every category once", domain.ErrInvalidScoringConfig)
	}
	used := make(map[domain.Category]bool, len(cfg.TieBreakOrder))
	for _, c := range cfg.TieBreakOrder {
		if !seen[c] || used[c] {
			return fmt.Errorf("%w: tie-break order must list every category once", domain.ErrInvalidScoringConfig)
		}
		used[c] = true
	}
	if cfg.CoreWeight < 0 || cfg.RegularWeight < 0 {
		return fmt.Errorf("%w: negative weight", domain.ErrInvalidScoringConfig)
	}
	return nil
}
