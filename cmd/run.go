// -- cmd/run.go --
package cmd

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	jsoniter "github.com/json-iterator/go"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/stepwright/stepwright/internal/observability"
	"github.com/stepwright/stepwright/internal/script"
	"github.com/stepwright/stepwright/internal/session"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// runCmd executes a step script against a fresh session.
var runCmd = &cobra.Command{
	Use:   "run <script.yaml>",
	Short: "Run a step script against a new browser session.",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		logger := observability.GetLogger()

		sc, err := script.Load(args[0])
		if err != nil {
			return err
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		manager, err := session.NewManager(appConfig, logger)
		if err != nil {
			return err
		}
		defer func() {
			if closeErr := manager.Close(ctx); closeErr != nil {
				logger.Warn("manager shutdown reported an error", zap.Error(closeErr))
			}
		}()

		sess := manager.NewSession()
		runner := script.NewRunner(appConfig.Script, logger)
		outcomes, runErr := runner.Run(ctx, sess, sc)

		// The outcome report goes to stdout regardless of how the run
		// ended; the exit code carries the failure.
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		if encErr := enc.Encode(outcomes); encErr != nil {
			return fmt.Errorf("failed to encode run report: %w", encErr)
		}
		return runErr
	},
}

func init() {
	runCmd.Flags().Float64("pace", 0, "maximum dispatched steps per second (0 = unthrottled)")
	runCmd.Flags().Bool("keep-going", false, "continue past non-fatal step failures")
	runCmd.Flags().Bool("headless", true, "run the browser headless")

	_ = viper.BindPFlag("script.pace", runCmd.Flags().Lookup("pace"))
	_ = viper.BindPFlag("script.keep_going", runCmd.Flags().Lookup("keep-going"))
	_ = viper.BindPFlag("browser.headless", runCmd.Flags().Lookup("headless"))

	rootCmd.AddCommand(runCmd)
}
