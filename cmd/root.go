package cmd

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/michaelpento.lv/dexarb/utils"
)

var (
	cfgFile string
	debug   bool
)

var rootCmd = &cobra.Command{
	Use:   "dexarb",
	Short: "A two-venue DEX arbitrage bot",
	Long: `A CLI bot that compares the price of a token pair on two DEX routers
and, when they differ, buys on the cheaper venue and sells on the dearer one.
Every quote and action is appended to an audit log.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute runs the CLI and logs a failure, with any revert reason and data,
// before returning it
func Execute() error {
	return executeContext(context.Background())
}

func executeContext(ctx context.Context) error {
	err := rootCmd.ExecuteContext(ctx)
	if err != nil {
		logFatal(utils.GetLogger(), "dexarb failed", err)
	}
	return err
}

func init() {
	cobra.OnInitialize(initConfig)
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "YAML config file (environment and .env override it)")
	rootCmd.PersistentFlags().BoolVar(&debug, "debug", false, "enable debug logging")
}

func initConfig() {
	utils.InitLogger(debug)
}
