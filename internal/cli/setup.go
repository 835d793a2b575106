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

var (
	setupSandboxID   string
	setupUsers       string
	setupDiagnostics bool
)

var setupCmd = &cobra.Command{
	Use:   "setup",
	Short: "Run the training environment setup workflow",
	Long: `Runs the setup phase against a reservation.

For an instructor reservation, pass the trainee roster with --users
(semicolon-separated). Inside a spawned trainee sandbox the roster carries a
"user#id" marker and setup clears the sandbox's pre-provisioned components
instead.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runSetup()
	},
}

func init() {
	setupCmd.Flags().StringVar(&setupSandboxID, "sandbox-id", os.Getenv("LABFLEET_SANDBOX_ID"), "Reservation to run setup in")
	setupCmd.Flags().StringVar(&setupUsers, "users", "", "Semicolon-separated trainee roster")
	setupCmd.Flags().BoolVar(&setupDiagnostics, "diagnostics", false, "Mirror debug messages to the reservation output")
	RootCmd.AddCommand(setupCmd)
}

func runSetup() error {
	if err := requireSandboxID(setupSandboxID); err != nil {
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

	globalInputs := map[string]string{inputs.TrainingUsersInput: setupUsers}
	if setupDiagnostics {
		globalInputs[inputs.DiagnosticsInput] = "On"
	}
	env := inputs.Parse(globalInputs)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	log.Info().
		Str("reservation", setupSandboxID).
		Int("trainees", len(env.Users)).
		Bool("instructor_mode", env.InstructorMode).
		Msg("starting setup")

	o := orchestrator.New(client, tokenClient, cfg, setupSandboxID, env)
	if err := o.Setup(ctx); err != nil {
		return err
	}

	log.Info().Str("reservation", setupSandboxID).Msg("setup finished")
	return nil
}
