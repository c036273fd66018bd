package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/YunYun501/Lazy-Learn-V2/cmd/lazylearn/ui"
	"github.com/YunYun501/Lazy-Learn-V2/internal/config"
	"github.com/YunYun501/Lazy-Learn-V2/internal/observability"
)

var (
	cfgFile string
	verbose bool
	noColor bool

	cfg    *config.Config
	logger *observability.Logger
)

var rootCmd = &cobra.Command{
	Use:   "lazylearn",
	Short: "Lazy Learn ingestion pipeline",
	Long: `lazylearn imports textbooks and course documents, discovers their chapters,
scores them against course material and extracts the chapters you select.

Typical flow:
  lazylearn course create --name "Physics 101"
  lazylearn import book.pdf --course <course-id>
  lazylearn verify <document-id> --chapters <id>,<id>
  lazylearn extract-deferred <document-id> --chapters <id>`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		config.LoadDotEnv()

		var err error
		cfg, err = config.Load(cfgFile)
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}

		level := cfg.Observability.LogLevel
		if verbose {
			level = "debug"
		} else if cfg.Observability.LogFormat == "console" && level == "info" {
			// progress is rendered by the ui package; keep the console quiet
			level = "warn"
		}
		logger = observability.NewLogger(observability.LogConfig{
			Level:       level,
			Format:      cfg.Observability.LogFormat,
			ServiceName: "lazylearn",
		})

		ui.InitUI(noColor, verbose)
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "", "config file path (default: defaults plus environment)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable verbose output")
	rootCmd.PersistentFlags().BoolVar(&noColor, "no-color", false, "disable colored output")
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}
