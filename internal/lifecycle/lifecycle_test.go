package lifecycle

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/labfleet/labfleet/internal/automation"
	"github.com/labfleet/labfleet/internal/output"
)

const instructorID = "res-instructor"

func newTestController(fake *automation.Fake) *Controller {
	out := output.NewService(fake, instructorID, false)
	c := NewController(fake, out, time.Millisecond, time.Minute)
	return c
}

func TestTraineeSandboxDuration(t *testing.T) {
	fake := automation.NewFake()
	c := newTestController(fake)

	frozen := time.Date(2026, 3, 14, 10, 0, 0, 0, time.UTC)
	c.now = func() time.Time { return frozen }

	details := automation.ReservationDetails{
		ID:      instructorID,
		EndTime: frozen.Add(120 * time.Minute).Format(automation.EndTimeLayout),
	}

	duration, err := c.TraineeSandboxDuration(details)
	require.NoError(t, err)
	assert.Equal(t, 135*time.Minute, duration)
}

func TestTraineeSandboxDurationExpired(t *testing.T) {
	fake := automation.NewFake()
	c := newTestController(fake)

	frozen := time.Date(2026, 3, 14, 10, 0, 0, 0, time.UTC)
	c.now = func() time.Time { return frozen }

	_, err := c.TraineeSandboxDuration(automation.ReservationDetails{
		ID:      instructorID,
		EndTime: frozen.Add(-time.Hour).Format(automation.EndTimeLayout),
	})
	assert.Error(t, err)

	_, err = c.TraineeSandboxDuration(automation.ReservationDetails{EndTime: "garbage"})
	assert.Error(t, err)
}

func TestCreateTraineeSandbox(t *testing.T) {
	fake := automation.NewFake()
	c := newTestController(fake)

	reservation, err := c.CreateTraineeSandbox(context.Background(),
		"Labs/Training Blueprint", "alice@corp.io", "1", 135*time.Minute)
	require.NoError(t, err)
	assert.NotEmpty(t, reservation.ID)

	require.Len(t, fake.CreatedReservations, 1)
	req := fake.CreatedReservations[0]
	assert.Equal(t, "alice@corp.io - Trainee Sandbox", req.Name)
	assert.Equal(t, "alice@corp.io", req.Owner)
	assert.Equal(t, "Labs/Training Blueprint", req.TopologyPath)
	assert.Equal(t, 135, req.DurationMinutes)
	require.Len(t, req.GlobalInputs, 1)
	assert.Equal(t, "Training Users", req.GlobalInputs[0].Name)
	assert.Equal(t, "alice@corp.io#1", req.GlobalInputs[0].Value)
}

func TestWaitReadyOutcomes(t *testing.T) {
	tests := []struct {
		name    string
		queue   []automation.SlimStatus
		outcome WaitOutcome
	}{
		{
			name: "ready after provisioning",
			queue: []automation.SlimStatus{
				{Status: automation.StatusPending, ProvisioningStatus: automation.ProvisioningNotStarted},
				{Status: automation.StatusStarted, ProvisioningStatus: automation.ProvisioningInProgress},
				{Status: automation.StatusStarted, ProvisioningStatus: automation.ProvisioningReady},
			},
			outcome: OutcomeReady,
		},
		{
			name: "provisioning error",
			queue: []automation.SlimStatus{
				{Status: automation.StatusStarted, ProvisioningStatus: automation.ProvisioningError},
			},
			outcome: OutcomeProvisioningError,
		},
		{
			name: "torn down mid-wait",
			queue: []automation.SlimStatus{
				{Status: automation.StatusTeardown, ProvisioningStatus: automation.ProvisioningInProgress},
			},
			outcome: OutcomeTornDown,
		},
		{
			name: "completed before use",
			queue: []automation.SlimStatus{
				{Status: automation.StatusCompleted, ProvisioningStatus: automation.ProvisioningReady},
			},
			outcome: OutcomeCompleted,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fake := automation.NewFake()
			fake.Seed(automation.ReservationDetails{ID: "sb-1"})
			fake.SetStatusQueue("sb-1", tt.queue...)
			c := newTestController(fake)

			outcome, err := c.WaitReady(context.Background(), "sb-1")
			require.NoError(t, err)
			assert.Equal(t, tt.outcome, outcome)
		})
	}
}

func TestWaitReadyTimeout(t *testing.T) {
	fake := automation.NewFake()
	fake.Seed(automation.ReservationDetails{ID: "sb-1"})
	fake.SetStatusQueue("sb-1", automation.SlimStatus{
		Status:             automation.StatusPending,
		ProvisioningStatus: automation.ProvisioningNotStarted,
	})

	out := output.NewService(fake, instructorID, false)
	c := NewController(fake, out, time.Millisecond, 0)

	_, err := c.WaitReady(context.Background(), "sb-1")
	assert.ErrorIs(t, err, ErrWaitTimeout)
}

func TestEndStudentReservation(t *testing.T) {
	fake := automation.NewFake()
	fake.Seed(automation.ReservationDetails{
		ID: "sb-1",
		Resources: []automation.Resource{
			{Name: "shared-firewall", HasVM: true},
			{Name: "1_web-vm", HasVM: true},
		},
	})
	fake.SetStatusQueue("sb-1", automation.SlimStatus{
		Status:             automation.StatusStarted,
		ProvisioningStatus: automation.ProvisioningReady,
	})
	c := newTestController(fake)
	ctx := context.Background()

	err := c.EndStudentReservation(ctx, "alice@corp.io", "sb-1", []string{"shared-firewall"})
	require.NoError(t, err)

	// The shared resource is powered off and detached; the trainee's own
	// duplicate is left for the reservation teardown.
	assert.Equal(t, []string{"sb-1/shared-firewall/Power Off"}, fake.ExecutedCommands)
	assert.Equal(t, 1, fake.RemoveResourcesCalls)
	assert.Equal(t, []string{"sb-1"}, fake.EndedReservations)

	details, _ := fake.Details("sb-1")
	require.Len(t, details.Resources, 1)
	assert.Equal(t, "1_web-vm", details.Resources[0].Name)

	// Second call sees Completed and performs no further mutation.
	require.NoError(t, c.EndStudentReservation(ctx, "alice@corp.io", "sb-1", []string{"shared-firewall"}))
	assert.Len(t, fake.ExecutedCommands, 1)
	assert.Equal(t, 1, fake.RemoveResourcesCalls)
	assert.Len(t, fake.EndedReservations, 1)
}

func TestEndStudentReservationNoSharedResources(t *testing.T) {
	fake := automation.NewFake()
	fake.Seed(automation.ReservationDetails{
		ID:        "sb-1",
		Resources: []automation.Resource{{Name: "1_web-vm", HasVM: true}},
	})
	c := newTestController(fake)

	require.NoError(t, c.EndStudentReservation(context.Background(), "alice@corp.io", "sb-1", nil))
	assert.Empty(t, fake.ExecutedCommands)
	assert.Zero(t, fake.RemoveResourcesCalls)
	assert.Equal(t, []string{"sb-1"}, fake.EndedReservations)
}
