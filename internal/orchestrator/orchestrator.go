// Package orchestrator wires the training workflow together: the setup
// entrypoint that duplicates apps and provisions one sandbox per trainee,
// and the teardown entrypoint that unwinds everything best-effort.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/labfleet/labfleet/internal/automation"
	"github.com/labfleet/labfleet/internal/config"
	"github.com/labfleet/labfleet/internal/inputs"
	"github.com/labfleet/labfleet/internal/lifecycle"
	"github.com/labfleet/labfleet/internal/output"
	"github.com/labfleet/labfleet/internal/planner"
	"github.com/labfleet/labfleet/internal/portal"
	"github.com/labfleet/labfleet/internal/topology"
	"github.com/labfleet/labfleet/internal/userdata"
	"github.com/labfleet/labfleet/internal/users"
)

// TokenService is the slice of the token microservice the workflow uses.
// DeleteToken reports success as a bool: revocation is best-effort and must
// never block teardown.
type TokenService interface {
	Login(ctx context.Context) (string, error)
	CreateToken(ctx context.Context, adminToken, user, domain string) (string, error)
	DeleteToken(ctx context.Context, adminToken, userToken string) bool
}

// Orchestrator runs the setup and teardown workflows for one training
// reservation. All collaborators are constructed once per run and passed by
// reference; nothing is process-global.
type Orchestrator struct {
	client    automation.Client
	tokens    TokenService
	cfg       config.Config
	sandboxID string
	env       inputs.Environment

	out       *output.Service
	store     *userdata.Store
	users     *users.Service
	planner   *planner.Planner
	lifecycle *lifecycle.Controller
	links     *portal.Provider
}

// New builds an orchestrator bound to the reservation identified by
// sandboxID, which is the instructor reservation in instructor mode and the
// trainee's own reservation in student mode.
func New(client automation.Client, tokens TokenService, cfg config.Config,
	sandboxID string, env inputs.Environment) *Orchestrator {

	out := output.NewService(client, sandboxID, env.DebugEnabled)
	return &Orchestrator{
		client:    client,
		tokens:    tokens,
		cfg:       cfg,
		sandboxID: sandboxID,
		env:       env,
		out:       out,
		store:     userdata.NewStore(client, sandboxID),
		users:     users.NewService(client),
		planner:   planner.New(client, out, cfg.Octet(), cfg.IPIncrement),
		lifecycle: lifecycle.NewController(client, out,
			time.Duration(cfg.PollIntervalSeconds)*time.Second,
			time.Duration(cfg.MaxWaitMinutes)*time.Minute),
		links: portal.NewProvider(cfg.PortalBaseURL, cfg.Domain, tokens),
	}
}

// Store exposes the per-user records for read-only surfaces such as the
// monitor API.
func (o *Orchestrator) Store() *userdata.Store {
	return o.store
}

// Setup runs the reservation's setup phase. In instructor mode it prepares
// accounts, duplicates apps and provisions one sandbox per trainee; in
// student mode it clears the pre-provisioned components the blueprint copy
// came with, since the trainee's real components are attached by the
// instructor-side workflow.
func (o *Orchestrator) Setup(ctx context.Context) error {
	if !o.env.InstructorMode {
		return o.clearStudentSandbox(ctx)
	}

	if len(o.env.Users) == 0 {
		return errors.New("no trainee users provided in the reservation inputs")
	}
	if o.cfg.BlueprintPath == "" {
		return fmt.Errorf("%w: blueprint_path is required for setup", config.ErrInvalidConfig)
	}

	o.out.Notify(ctx, "Setting up the training environment")

	details, err := o.client.GetReservationDetails(ctx, o.sandboxID, true)
	if err != nil {
		return fmt.Errorf("reading instructor reservation: %w", err)
	}

	if err := o.prepareAccounts(ctx); err != nil {
		return err
	}

	// Validate the whole addressing plan before any mutation.
	if err := o.planner.ValidateIncrementBounds(details, len(o.env.Users)); err != nil {
		return err
	}

	if err := o.planner.PlanDuplicationBatch(ctx, o.sandboxID, details, o.env.Users, o.store); err != nil {
		return err
	}

	duration, err := o.lifecycle.TraineeSandboxDuration(details)
	if err != nil {
		return err
	}

	// Re-read after duplication so trainee-prefixed resources and shared
	// apps are visible for the attach step.
	deployed, err := o.client.GetReservationDetails(ctx, o.sandboxID, true)
	if err != nil {
		return fmt.Errorf("re-reading instructor reservation: %w", err)
	}
	positions, err := o.client.GetResourcePositions(ctx, o.sandboxID)
	if err != nil {
		return fmt.Errorf("reading resource positions: %w", err)
	}

	for i, user := range o.env.Users {
		numericID := strconv.Itoa(i + 1)
		if err := o.provisionTrainee(ctx, user, numericID, duration, deployed, positions); err != nil {
			log.Error().Err(err).Str("user", user).Msg("trainee provisioning failed")
			o.out.Notify(ctx, fmt.Sprintf("Provisioning failed for %s: %v", user, err))
		}
	}

	if err := o.store.Save(ctx); err != nil {
		return err
	}

	o.out.Notify(ctx, "Training environment setup finished")
	return nil
}

// prepareAccounts makes sure every trainee has an active account and the
// per-session group exists with all trainees in it.
func (o *Orchestrator) prepareAccounts(ctx context.Context) error {
	if err := o.users.CreateTrainingGroup(ctx, o.sandboxID, o.cfg.Domain); err != nil {
		return err
	}
	for _, user := range o.env.Users {
		if err := o.users.CreateOrActivateUser(ctx, user); err != nil {
			log.Error().Err(err).Str("user", user).Msg("account preparation failed")
			o.out.Notify(ctx, fmt.Sprintf("Could not prepare an account for %s: %v", user, err))
		}
	}
	return o.users.AddUsersToGroup(ctx, o.sandboxID, o.env.Users)
}

// provisionTrainee creates and readies one trainee sandbox, attaches that
// trainee's resources from the instructor reservation and hands out the
// student link.
func (o *Orchestrator) provisionTrainee(ctx context.Context, user, numericID string,
	duration time.Duration, deployed automation.ReservationDetails,
	positions map[string]automation.Position) error {

	reservation, err := o.lifecycle.CreateTraineeSandbox(ctx, o.cfg.BlueprintPath, user, numericID, duration)
	if err != nil {
		return err
	}
	o.store.SetSandboxID(user, reservation.ID)

	outcome, err := o.lifecycle.WaitReady(ctx, reservation.ID)
	if err != nil {
		return err
	}
	if outcome != lifecycle.OutcomeReady {
		return fmt.Errorf("sandbox %s never became usable: %s", reservation.ID, outcome)
	}

	attach := traineeResources(deployed, numericID)
	if len(attach) > 0 {
		if err := o.client.SetResourceSharedState(ctx, o.sandboxID, attach, true); err != nil {
			return fmt.Errorf("sharing resources for %s: %w", user, err)
		}
		if err := o.client.AddResourcesToReservation(ctx, reservation.ID, attach, true); err != nil {
			return fmt.Errorf("attaching resources for %s: %w", user, err)
		}
		for _, name := range attach {
			pos, ok := positions[name]
			if !ok {
				continue
			}
			if err := o.client.SetResourcePosition(ctx, reservation.ID, name, pos); err != nil {
				log.Warn().Err(err).Str("resource", name).Msg("could not restore diagram position")
			}
		}
	}

	link, err := o.links.CreateStudentLink(ctx, user, reservation.ID)
	if err != nil {
		return err
	}
	o.store.SetToken(user, link.Token)
	o.store.SetStudentLink(user, link.URL)

	o.out.Notify(ctx, fmt.Sprintf("Sandbox for %s is ready: %s", user, link.URL))
	return nil
}

// traineeResources returns the instructor-side resources one trainee works
// on: their own duplicates (name prefixed with "<numericID>_") plus every
// resource deployed from an app marked shared.
func traineeResources(deployed automation.ReservationDetails, numericID string) []string {
	sharedApps := make(map[string]bool)
	for _, app := range deployed.Apps {
		if topology.ShouldShare(app) {
			sharedApps[app.Name] = true
		}
	}

	var names []string
	for _, resource := range deployed.Resources {
		if !resource.HasVM {
			continue
		}
		switch {
		case strings.HasPrefix(resource.Name, numericID+"_"):
			names = append(names, resource.Name)
		case resource.AppName != "" && sharedApps[resource.AppName]:
			names = append(names, resource.Name)
		}
	}
	return names
}

// clearStudentSandbox strips the blueprint's pre-provisioned components out
// of a trainee sandbox. Real components are attached by the instructor-side
// workflow after this sandbox reports ready.
func (o *Orchestrator) clearStudentSandbox(ctx context.Context) error {
	o.out.Debug(ctx, fmt.Sprintf("Preparing student sandbox for %s", o.env.StudentUser))

	details, err := o.client.GetReservationDetails(ctx, o.sandboxID, true)
	if err != nil {
		return fmt.Errorf("reading student reservation: %w", err)
	}

	var resources []string
	for _, resource := range details.Resources {
		resources = append(resources, resource.Name)
	}
	if len(resources) > 0 {
		if err := o.client.RemoveResourcesFromReservation(ctx, o.sandboxID, resources); err != nil {
			return fmt.Errorf("removing pre-provisioned resources: %w", err)
		}
	}

	var aliases []string
	for _, service := range details.Services {
		aliases = append(aliases, service.Alias)
	}
	if len(aliases) > 0 {
		// Service removal is best-effort; leftover services are cosmetic.
		if err := o.client.RemoveServicesFromReservation(ctx, o.sandboxID, aliases); err != nil {
			log.Warn().Err(err).Msg("could not remove pre-provisioned services")
		}
	}

	for _, app := range details.Apps {
		if err := o.client.RemoveAppFromReservation(ctx, o.sandboxID, app.Name); err != nil {
			return fmt.Errorf("removing pre-provisioned app %s: %w", app.Name, err)
		}
	}
	return nil
}

// Teardown unwinds the training environment. Internal failures are collected
// and surfaced as one visible warning on the instructor reservation instead
// of propagating, so the platform's own base teardown always proceeds.
func (o *Orchestrator) Teardown(ctx context.Context) error {
	if err := o.teardown(ctx); err != nil {
		log.Error().Err(err).Str("reservation", o.sandboxID).Msg("teardown finished with errors")
		o.out.Notify(ctx, fmt.Sprintf("Teardown finished with errors: %v", err))
	}
	return nil
}

func (o *Orchestrator) teardown(ctx context.Context) error {
	o.out.Notify(ctx, "Tearing down the training environment")

	if err := o.store.Load(ctx); err != nil {
		return err
	}

	details, err := o.client.GetReservationDetails(ctx, o.sandboxID, true)
	if err != nil {
		return fmt.Errorf("reading instructor reservation: %w", err)
	}
	var instructorResources []string
	for _, resource := range details.Resources {
		instructorResources = append(instructorResources, resource.Name)
	}

	adminToken, err := o.tokens.Login(ctx)
	if err != nil {
		// Token revocation becomes impossible but sandbox teardown must
		// still run.
		log.Warn().Err(err).Msg("token service login failed, skipping token revocation")
		adminToken = ""
	}

	var errs []error
	for user, record := range o.store.Records() {
		if record.SandboxID != "" {
			if err := o.lifecycle.EndStudentReservation(ctx, user, record.SandboxID, instructorResources); err != nil {
				log.Error().Err(err).Str("user", user).Msg("could not end trainee sandbox")
				errs = append(errs, err)
			}
		}
		if record.Token != "" && adminToken != "" {
			o.tokens.DeleteToken(ctx, adminToken, record.Token)
		}
	}

	if err := o.users.DeleteTrainingGroup(ctx, o.sandboxID); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}
