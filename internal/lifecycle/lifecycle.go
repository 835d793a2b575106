// Package lifecycle creates, waits on and ends the per-trainee sandboxes.
//
// Each trainee reservation moves through Created -> Polling -> one of the
// terminal outcomes. The controller processes trainees independently; a
// failure for one user never aborts the rest of the batch.
package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/labfleet/labfleet/internal/automation"
	"github.com/labfleet/labfleet/internal/inputs"
	"github.com/labfleet/labfleet/internal/output"
)

// WaitOutcome is the terminal condition a readiness wait ended on. Only
// OutcomeReady means the sandbox is usable; the other outcomes indicate the
// reservation died before becoming ready and are never retried.
type WaitOutcome string

const (
	OutcomeReady             WaitOutcome = "ready"
	OutcomeProvisioningError WaitOutcome = "provisioning-error"
	OutcomeTornDown          WaitOutcome = "torn-down"
	OutcomeCompleted         WaitOutcome = "completed"
)

// ErrWaitTimeout indicates a sandbox did not reach a terminal state within
// the configured maximum wait.
var ErrWaitTimeout = errors.New("timed out waiting for sandbox readiness")

// durationBuffer pads a trainee sandbox past the instructor reservation's end
// time so instructor teardown always finishes cleanup before any trainee
// sandbox expires on its own and orphans shared resources.
const durationBuffer = 15 * time.Minute

const sandboxNameSuffix = " - Trainee Sandbox"

// Controller drives trainee reservation lifecycles against the automation
// platform.
type Controller struct {
	client automation.Client
	out    *output.Service

	pollInterval time.Duration
	maxWait      time.Duration

	now func() time.Time
}

// NewController returns a controller polling at pollInterval and giving up a
// readiness wait after maxWait.
func NewController(client automation.Client, out *output.Service, pollInterval, maxWait time.Duration) *Controller {
	return &Controller{
		client:       client,
		out:          out,
		pollInterval: pollInterval,
		maxWait:      maxWait,
		now:          time.Now,
	}
}

// TraineeSandboxDuration derives the trainee sandbox duration from the
// instructor reservation's remaining time plus the fixed safety buffer.
func (c *Controller) TraineeSandboxDuration(details automation.ReservationDetails) (time.Duration, error) {
	end, err := time.ParseInLocation(automation.EndTimeLayout, details.EndTime, time.UTC)
	if err != nil {
		return 0, fmt.Errorf("parsing reservation end time %q: %w", details.EndTime, err)
	}

	remaining := end.Sub(c.now().UTC())
	if remaining <= 0 {
		return 0, fmt.Errorf("reservation %s is already past its end time", details.ID)
	}
	return remaining + durationBuffer, nil
}

// CreateTraineeSandbox reserves a fresh copy of the blueprint for one
// trainee. The trainee-users global input carries "user#numericID" so the
// child sandbox recognizes itself as student-mode on startup.
func (c *Controller) CreateTraineeSandbox(ctx context.Context, blueprintPath, user, numericID string,
	duration time.Duration) (automation.Reservation, error) {

	req := automation.CreateReservationRequest{
		Name:            user + sandboxNameSuffix,
		Owner:           user,
		DurationMinutes: int(duration.Minutes()),
		TopologyPath:    blueprintPath,
		GlobalInputs: []automation.GlobalInput{
			{Name: inputs.TrainingUsersInput, Value: fmt.Sprintf("%s#%s", user, numericID)},
		},
	}

	reservation, err := c.client.CreateImmediateReservation(ctx, req)
	if err != nil {
		return automation.Reservation{}, fmt.Errorf("creating sandbox for %s: %w", user, err)
	}

	log.Info().Str("user", user).Str("reservation", reservation.ID).Msg("trainee sandbox created")
	return reservation, nil
}

// WaitReady blocks until the reservation reaches a terminal condition and
// reports which one. The wait is bounded by the controller's maximum wait;
// hitting the bound returns ErrWaitTimeout.
func (c *Controller) WaitReady(ctx context.Context, reservationID string) (WaitOutcome, error) {
	c.out.Debug(ctx, fmt.Sprintf("Waiting for sandbox %s to become ready", reservationID))
	deadline := c.now().Add(c.maxWait)

	for {
		status, err := c.client.GetReservationStatus(ctx, reservationID)
		if err != nil {
			return "", fmt.Errorf("polling reservation %s: %w", reservationID, err)
		}

		switch {
		case status.ProvisioningStatus == automation.ProvisioningError:
			return OutcomeProvisioningError, nil
		case status.Status == automation.StatusTeardown:
			return OutcomeTornDown, nil
		case status.Status == automation.StatusCompleted:
			return OutcomeCompleted, nil
		case status.Status == automation.StatusStarted &&
			status.ProvisioningStatus == automation.ProvisioningReady:
			return OutcomeReady, nil
		}

		if !c.now().Before(deadline) {
			return "", fmt.Errorf("reservation %s: %w", reservationID, ErrWaitTimeout)
		}

		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-time.After(c.pollInterval):
		}
	}
}

// EndStudentReservation tears one trainee sandbox down. Shared resources
// originating from the instructor reservation are powered off gracefully and
// detached first so ending the sandbox cannot destroy them. Calling it again
// after the reservation completed is a no-op.
func (c *Controller) EndStudentReservation(ctx context.Context, user, sandboxID string,
	instructorResources []string) error {

	status, err := c.client.GetReservationStatus(ctx, sandboxID)
	if err != nil {
		return fmt.Errorf("checking sandbox %s for %s: %w", sandboxID, user, err)
	}
	if status.Status == automation.StatusCompleted {
		log.Debug().Str("user", user).Str("reservation", sandboxID).
			Msg("sandbox already completed, nothing to end")
		return nil
	}

	details, err := c.client.GetReservationDetails(ctx, sandboxID, true)
	if err != nil {
		return fmt.Errorf("reading sandbox %s for %s: %w", sandboxID, user, err)
	}

	shared := make(map[string]bool, len(instructorResources))
	for _, name := range instructorResources {
		shared[name] = true
	}

	var detach []string
	for _, resource := range details.Resources {
		if !shared[resource.Name] {
			continue
		}
		if resource.HasVM {
			// Best effort: a failed power-off must not keep the resource
			// attached through teardown.
			if err := c.client.ExecuteResourceCommand(ctx, sandboxID, resource.Name,
				automation.PowerOffCommand); err != nil {
				log.Warn().Err(err).Str("resource", resource.Name).
					Msg("graceful power-off failed")
			}
		}
		detach = append(detach, resource.Name)
	}

	if len(detach) > 0 {
		if err := c.client.RemoveResourcesFromReservation(ctx, sandboxID, detach); err != nil {
			return fmt.Errorf("detaching shared resources from %s: %w", sandboxID, err)
		}
	}

	if err := c.client.EndReservation(ctx, sandboxID); err != nil {
		return fmt.Errorf("ending sandbox %s for %s: %w", sandboxID, user, err)
	}

	log.Info().Str("user", user).Str("reservation", sandboxID).Msg("trainee sandbox ended")
	return nil
}
