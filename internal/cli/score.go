package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"

	"archetype-chat-service/internal/config"
	"archetype-chat-service/internal/domain"
	"archetype-chat-service/internal/scoring"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

type scoreInput struct {
	Config  *domain.ScoringConfig   `yaml:"config"`
	Answers []domain.WeightedAnswer `yaml:"answers"`
}

// NewScoreCmd scores an answer file offline and prints the audit trail.
func NewScoreCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "score <answers.yaml>",
		Short: "Score a file of weighted answers and print the result as JSON",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			raw, err := os.ReadFile(args[0])
			if err != nil {
				return err
			}
			var in scoreInput
			if err := yaml.Unmarshal(raw, &in); err != nil {
				return fmt.Errorf("parse %s: %w", args[0], err)
			}

			scoringCfg := scoring.DefaultConfig()
			if in.Config != nil {
				scoringCfg = *in.Config
			} else {
				cfg, err := config.Load(opts.configPath)
				switch {
				case err == nil:
					scoringCfg = cfg.ScoringConfig()
				case !errors.Is(err, fs.ErrNotExist):
					return err
				}
			}

			result, err := scoring.Score(in.Answers, scoringCfg)
			if err != nil {
				return err
			}
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(result)
		},
	}
}
