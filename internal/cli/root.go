package cli

import (
	"strings"

	"archetype-chat-service/internal/config"
	"archetype-chat-service/internal/logger"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// options are the persistent settings shared by every subcommand, resolved
// from flags first and ARCHETYPE_* environment variables second.
type options struct {
	configPath string
	port       string
	logMode    string
}

// Execute runs the CLI.
func Execute() error {
	return newRootCmd().Execute()
}

func newRootCmd() *cobra.Command {
	v := viper.New()
	v.SetEnvPrefix("ARCHETYPE")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()
	_ = v.BindEnv("port", "ARCHETYPE_PORT", "PORT")
	_ = v.BindEnv("config", "ARCHETYPE_CONFIG", "CONFIG_PATH")

	opts := &options{}
	cmd := &cobra.Command{
		Use:          "archetype-service",
		Short:        "Archetype quiz scoring and chat relay service",
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			opts.configPath = v.GetString("config")
			opts.port = v.GetString("port")
			opts.logMode = v.GetString("log-mode")
			return nil
		},
	}

	flags := cmd.PersistentFlags()
	flags.String("config", "config/config.yaml", "path to YAML config")
	flags.String("port", "", "port to listen on (overrides config)")
	flags.String("log-mode", "", "log mode: dev or prod (overrides config)")
	_ = v.BindPFlags(flags)

	cmd.AddCommand(NewStartCmd(opts))
	cmd.AddCommand(NewMigrateCmd(opts))
	cmd.AddCommand(NewScoreCmd(opts))
	return cmd
}

func newLogger(opts *options, cfg config.Config) (*logger.Logger, error) {
	mode := opts.logMode
	if mode == "" {
		mode = cfg.Log.Mode
	}
	return logger.New(mode)
}
