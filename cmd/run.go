// -- cmd/run.go --
package cmd

import (
	"fmt"
	"io"
	"strings"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/xkilldash9x/webpilot/internal/config"
	"github.com/xkilldash9x/webpilot/internal/observability"
	"github.com/xkilldash9x/webpilot/internal/orchestrator"
	"github.com/xkilldash9x/webpilot/internal/service"
)

func newRunCmd(v *viper.Viper, factory service.ComponentFactory) *cobra.Command {
	var nonInteractive bool
	defaults := config.NewDefaultConfig()

	runCmd := &cobra.Command{
		Use:   "run [task...]",
		Short: "Translate a task into a browser routine, run it and retry on failure",
		Long: `Translates a plain-language task into a browser routine, shows it for
approval and runs it in a live browser. When a statement fails, the failure
evidence is fed back to the model and a corrected routine is offered, up to
the configured retry limit. Without a task argument the task is prompted for.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			logger := observability.GetLogger()

			cfg, err := config.NewConfigFromViper(v, flagOverrides(cmd, nonInteractive))
			if err != nil {
				return err
			}

			components, err := factory.Create(ctx, cfg, service.RunOptions{
				Task:           strings.Join(args, " "),
				NonInteractive: nonInteractive,
			}, logger)
			if err != nil {
				return fmt.Errorf("failed to initialize run components: %w", err)
			}
			defer components.Shutdown()

			res, err := components.Runner.Run(ctx, strings.Join(args, " "))
			printSummary(cmd.OutOrStdout(), res)
			if err != nil {
				logger.Error("Run stopped.", zap.String("run_id", res.RunID), zap.Error(err))
				return err
			}
			return nil
		},
	}

	flags := runCmd.Flags()
	flags.BoolVarP(&nonInteractive, "yes", "y", false, "Confirm the run and every retry without prompting")
	flags.Int("max-retries", defaults.Retry().MaxRetries, "Maximum number of corrected routines to try")
	flags.Bool("headless", defaults.Browser().Headless, "Run the browser without a window")
	flags.String("driver", defaults.Browser().Driver, "Browser driver: cdp, playwright or rod")
	flags.String("provider", defaults.Translator().Provider, "LLM provider: gemini or openai")
	flags.String("model", defaults.Translator().Model, "LLM model name")
	flags.String("artifacts", defaults.Evidence().Dir, "Directory for failure evidence and screenshots")
	return runCmd
}

// flagOverrides applies the run flags the user actually set. Unset flags
// leave the file, environment and default values alone.
func flagOverrides(cmd *cobra.Command, nonInteractive bool) config.Override {
	flags := cmd.Flags()
	return func(cfg config.Interface) {
		if flags.Changed("max-retries") {
			n, _ := flags.GetInt("max-retries")
			cfg.SetRetryMaxRetries(n)
		}
		if flags.Changed("headless") {
			b, _ := flags.GetBool("headless")
			cfg.SetBrowserHeadless(b)
		}
		if flags.Changed("driver") {
			s, _ := flags.GetString("driver")
			cfg.SetBrowserDriver(s)
		}
		if flags.Changed("provider") {
			s, _ := flags.GetString("provider")
			cfg.SetTranslatorProvider(s)
		}
		if flags.Changed("model") {
			s, _ := flags.GetString("model")
			cfg.SetTranslatorModel(s)
		}
		if flags.Changed("artifacts") {
			s, _ := flags.GetString("artifacts")
			cfg.SetEvidenceDir(s)
		}
		if nonInteractive {
			cfg.SetRetryAutoApprove(true)
		}
	}
}

func printSummary(w io.Writer, res orchestrator.Result) {
	var status string
	switch res.Status {
	case orchestrator.StatusSucceeded:
		status = color.GreenString(string(res.Status))
	case orchestrator.StatusCancelled:
		status = color.YellowString(string(res.Status))
	default:
		status = color.RedString(string(res.Status))
	}
	fmt.Fprintf(w, "\nRun %s %s (attempts: %d, retries: %d)\n", res.RunID, status, res.Attempts, res.Retries)
	if ev := res.LastEvidence; ev != nil && res.Status != orchestrator.StatusSucceeded {
		if ev.ScreenshotPath != "" {
			fmt.Fprintf(w, "Last failure screenshot: %s\n", ev.ScreenshotPath)
		}
	}
}
