package cli

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/labfleet/labfleet/internal/inputs"
	"github.com/labfleet/labfleet/internal/orchestrator"
)

var teardownSandboxID string

var teardownCmd = &cobra.Command{
	Use:   "teardown",
	Short: "Unwind a training environment",
	Long: `Ends every trainee sandbox recorded on the instructor reservation,
revokes student tokens and removes the per-session user group. Failures are
written to the reservation output as a warning; teardown always makes a best
effort rather than stopping at the first error.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runTeardown()
	},
}

func init() {
	teardownCmd.Flags().StringVar(&teardownSandboxID, "sandbox-id", os.Getenv("LABFLEET_SANDBOX_ID"), "Instructor reservation to tear down")
	RootCmd.AddCommand(teardownCmd)
}

func runTeardown() error {
	if err := requireSandboxID(teardownSandboxID); err != nil {
		return err
	}

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	client, tokenClient, err := newClients(cfg)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	log.Info().Str("reservation", teardownSandboxID).Msg("starting teardown")

	o := orchestrator.New(client, tokenClient, cfg, teardownSandboxID, inputs.Environment{InstructorMode: true})
	if err := o.Teardown(ctx); err != nil {
		return err
	}

	log.Info().Str("reservation", teardownSandboxID).Msg("teardown finished")
	return nil
}
