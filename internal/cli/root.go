// Package cli provides the command-line interface for ecf.
package cli

import (
	"context"
	"errors"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/aristath/ecf/internal/config"
)

// ErrConfig marks configuration and dependency failures so main can exit
// with the dedicated status code.
var ErrConfig = errors.New("configuration error")

var (
	cfgFile string
	verbose bool
)

// rootCmd represents the base command.
var rootCmd = &cobra.Command{
	Use:   "ecf",
	Short: "Goal-driven agent controller",
	Long: `ecf plans a goal into steps with an LLM, executes each step through a
single tool call, and keeps every task in a crash-safe JSON file so an
interrupted run can always be resumed.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute runs the root command under the given context.
func Execute(ctx context.Context) error {
	return rootCmd.ExecuteContext(ctx)
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is ./ecf.yaml)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable verbose output")

	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(resumeCmd)
	rootCmd.AddCommand(listCmd)
	rootCmd.AddCommand(batchCmd)
	rootCmd.AddCommand(superviseCmd)
	rootCmd.AddCommand(checkCmd)
}

func initConfig() {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.SetConfigName("ecf")
		viper.SetConfigType("yaml")
		viper.AddConfigPath(".")
	}

	viper.SetEnvPrefix("ECF")
	viper.AutomaticEnv()

	viper.ReadInConfig()
}

// loadConfig resolves the effective configuration: file, then environment
// overrides for the secrets that should not live on disk.
func loadConfig() (*config.Config, error) {
	path := cfgFile
	if path == "" {
		path = viper.ConfigFileUsed()
	}

	cfg, err := config.Load(path)
	if err != nil {
		return nil, errors.Join(ErrConfig, err)
	}

	if key := viper.GetString("LLM_API_KEY"); key != "" {
		cfg.LLM.APIKey = key
	}
	if key := viper.GetString("TAVILY_API_KEY"); key != "" {
		cfg.Search.TavilyAPIKey = key
	}
	if verbose {
		cfg.Logging.Level = "debug"
	}

	if err := cfg.Validate(); err != nil {
		return nil, errors.Join(ErrConfig, err)
	}
	return cfg, nil
}
