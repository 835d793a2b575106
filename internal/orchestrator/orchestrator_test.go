package orchestrator

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/labfleet/labfleet/internal/automation"
	"github.com/labfleet/labfleet/internal/config"
	"github.com/labfleet/labfleet/internal/inputs"
	"github.com/labfleet/labfleet/internal/userdata"
)

const instructorID = "res-instructor"

type fakeTokens struct {
	loginErr error
	deleted  []string
}

func (f *fakeTokens) Login(ctx context.Context) (string, error) {
	if f.loginErr != nil {
		return "", f.loginErr
	}
	return "admin-token", nil
}

func (f *fakeTokens) CreateToken(ctx context.Context, adminToken, user, domain string) (string, error) {
	return "tok-" + user, nil
}

func (f *fakeTokens) DeleteToken(ctx context.Context, adminToken, userToken string) bool {
	f.deleted = append(f.deleted, userToken)
	return true
}

func testConfig() config.Config {
	cfg := config.Default()
	cfg.PortalBaseURL = "https://portal.corp.io"
	cfg.Domain = "Training"
	cfg.BlueprintPath = "Labs/Training Blueprint"
	return cfg
}

func instructorDetails() automation.ReservationDetails {
	return automation.ReservationDetails{
		ID:      instructorID,
		EndTime: time.Now().UTC().Add(2 * time.Hour).Format(automation.EndTimeLayout),
		Apps: []automation.App{
			{
				Name:              "web",
				TemplateName:      "web-template",
				LogicalAttributes: []automation.Attribute{{Name: "Shared", Value: "No"}},
				DeploymentPaths: []automation.DeploymentPath{{
					Name:      "vcenter",
					IsDefault: true,
					Attributes: []automation.Attribute{
						{Name: "Private IP", Value: "10.0.0.10-10"},
					},
				}},
			},
			{
				Name:              "firewall",
				TemplateName:      "firewall-template",
				LogicalAttributes: []automation.Attribute{{Name: "Shared", Value: "Yes"}},
			},
		},
		Resources: []automation.Resource{
			{Name: "firewall-vm", AppName: "firewall", HasVM: true},
		},
		Services: []automation.Service{{Alias: "mgmt"}},
		Connectors: []automation.Connector{
			{Source: "mgmt", Target: "web"},
		},
	}
}

func instructorEnv(users string) inputs.Environment {
	return inputs.Parse(map[string]string{inputs.TrainingUsersInput: users})
}

func TestSetupInstructorMode(t *testing.T) {
	fake := automation.NewFake()
	fake.Seed(instructorDetails())
	tokens := &fakeTokens{}
	o := New(fake, tokens, testConfig(), instructorID, instructorEnv("alice@corp.io;bob@corp.io"))

	require.NoError(t, o.Setup(context.Background()))

	// Accounts and the per-session group.
	assert.Equal(t, []string{"alice@corp.io", "bob@corp.io"}, fake.Groups(instructorID))
	for _, user := range []string{"alice@corp.io", "bob@corp.io"} {
		account, err := fake.GetUser(context.Background(), user)
		require.NoError(t, err)
		assert.True(t, account.IsActive)
	}

	// App duplication went out as three bulk calls.
	assert.Equal(t, 1, fake.EditAppsCalls)
	assert.Equal(t, 1, fake.SetConnectorsCalls)
	assert.Equal(t, 1, fake.SetConnectorAttrsCalls)

	// One sandbox per trainee, reserved from the blueprint.
	require.Len(t, fake.CreatedReservations, 2)
	assert.Equal(t, "alice@corp.io - Trainee Sandbox", fake.CreatedReservations[0].Name)
	assert.Equal(t, "Labs/Training Blueprint", fake.CreatedReservations[0].TopologyPath)

	// The shared firewall was attached to each trainee sandbox.
	require.Len(t, fake.AddedResourceBatches, 2)
	assert.Equal(t, []string{"firewall-vm"}, fake.AddedResourceBatches[0])
	assert.Equal(t, []string{"firewall-vm"}, fake.AddedResourceBatches[1])
	require.Len(t, fake.SharedStateBatches, 2)

	// Records were persisted on the instructor reservation.
	reload := userdata.NewStore(fake, instructorID)
	require.NoError(t, reload.Load(context.Background()))

	alice, ok := reload.Get("alice@corp.io")
	require.True(t, ok)
	assert.Equal(t, "1", alice.NumericID)
	assert.NotEmpty(t, alice.SandboxID)
	assert.Equal(t, "tok-alice@corp.io", alice.Token)
	assert.Equal(t, "https://portal.corp.io/"+alice.SandboxID+"?access=tok-alice@corp.io", alice.StudentLink)

	bob, ok := reload.Get("bob@corp.io")
	require.True(t, ok)
	assert.Equal(t, "2", bob.NumericID)
	assert.NotEqual(t, alice.SandboxID, bob.SandboxID)
}

// provisioningFailClient fails provisioning for sandboxes owned by one user.
type provisioningFailClient struct {
	*automation.Fake
	failOwner string
}

func (c *provisioningFailClient) CreateImmediateReservation(ctx context.Context,
	req automation.CreateReservationRequest) (automation.Reservation, error) {

	reservation, err := c.Fake.CreateImmediateReservation(ctx, req)
	if err == nil && req.Owner == c.failOwner {
		c.SetStatusQueue(reservation.ID, automation.SlimStatus{
			Status:             automation.StatusStarted,
			ProvisioningStatus: automation.ProvisioningError,
		})
	}
	return reservation, err
}

func TestSetupIsolatesTraineeFailure(t *testing.T) {
	fake := automation.NewFake()
	fake.Seed(instructorDetails())
	client := &provisioningFailClient{Fake: fake, failOwner: "alice@corp.io"}
	o := New(client, &fakeTokens{}, testConfig(), instructorID, instructorEnv("alice@corp.io;bob@corp.io"))

	require.NoError(t, o.Setup(context.Background()))

	// Bob's sandbox still went through.
	reload := userdata.NewStore(fake, instructorID)
	require.NoError(t, reload.Load(context.Background()))
	bob, ok := reload.Get("bob@corp.io")
	require.True(t, ok)
	assert.NotEmpty(t, bob.StudentLink)

	alice, ok := reload.Get("alice@corp.io")
	require.True(t, ok)
	assert.Empty(t, alice.StudentLink)

	failed := false
	for _, msg := range fake.Messages(instructorID) {
		if strings.Contains(msg, "Provisioning failed for alice@corp.io") {
			failed = true
		}
	}
	assert.True(t, failed)
}

func TestSetupStudentModeClearsComponents(t *testing.T) {
	fake := automation.NewFake()
	fake.Seed(automation.ReservationDetails{
		ID: "sb-1",
		Resources: []automation.Resource{
			{Name: "template-vm", HasVM: true},
		},
		Services: []automation.Service{{Alias: "mgmt"}, {Alias: "net-a"}},
		Apps:     []automation.App{{Name: "web"}},
	})

	env := inputs.Parse(map[string]string{inputs.TrainingUsersInput: "alice@corp.io#1"})
	require.False(t, env.InstructorMode)

	o := New(fake, &fakeTokens{}, testConfig(), "sb-1", env)
	require.NoError(t, o.Setup(context.Background()))

	assert.Equal(t, 1, fake.RemoveResourcesCalls)
	assert.Equal(t, [][]string{{"mgmt", "net-a"}}, fake.RemovedServiceBatches)
	assert.Equal(t, []string{"web"}, fake.RemovedApps)

	details, _ := fake.Details("sb-1")
	assert.Empty(t, details.Resources)
	assert.Empty(t, details.Apps)
}

func TestTeardown(t *testing.T) {
	fake := automation.NewFake()
	fake.Seed(automation.ReservationDetails{
		ID:        instructorID,
		Resources: []automation.Resource{{Name: "firewall-vm", HasVM: true}},
	})
	fake.Seed(automation.ReservationDetails{
		ID:        "sb-1",
		Resources: []automation.Resource{{Name: "firewall-vm", HasVM: true}},
	})
	fake.Seed(automation.ReservationDetails{ID: "sb-2"})

	ctx := context.Background()
	seed := userdata.NewStore(fake, instructorID)
	seed.SetNumericID("alice@corp.io", "1")
	seed.SetSandboxID("alice@corp.io", "sb-1")
	seed.SetToken("alice@corp.io", "tok-alice")
	seed.SetNumericID("bob@corp.io", "2")
	seed.SetSandboxID("bob@corp.io", "sb-2")
	seed.SetToken("bob@corp.io", "tok-bob")
	require.NoError(t, seed.Save(ctx))

	tokens := &fakeTokens{}
	env := instructorEnv("alice@corp.io;bob@corp.io")
	o := New(fake, tokens, testConfig(), instructorID, env)

	require.NoError(t, o.Teardown(ctx))

	assert.ElementsMatch(t, []string{"sb-1", "sb-2"}, fake.EndedReservations)
	assert.ElementsMatch(t, []string{"tok-alice", "tok-bob"}, tokens.deleted)

	// The shared firewall was powered off and detached before sb-1 ended.
	assert.Equal(t, []string{"sb-1/firewall-vm/Power Off"}, fake.ExecutedCommands)
	assert.Nil(t, fake.Groups(instructorID))
}

func TestTeardownSurfacesFailuresAsWarning(t *testing.T) {
	fake := automation.NewFake()
	fake.Seed(automation.ReservationDetails{ID: instructorID})

	ctx := context.Background()
	seed := userdata.NewStore(fake, instructorID)
	seed.SetSandboxID("alice@corp.io", "ghost-sandbox")
	require.NoError(t, seed.Save(ctx))

	o := New(fake, &fakeTokens{}, testConfig(), instructorID, instructorEnv("alice@corp.io"))

	// The entrypoint never propagates; it warns on the reservation output.
	require.NoError(t, o.Teardown(ctx))

	warned := false
	for _, msg := range fake.Messages(instructorID) {
		if strings.Contains(msg, "Teardown finished with errors") {
			warned = true
		}
	}
	assert.True(t, warned)
}

func TestTeardownSkipsTokenRevocationWhenLoginFails(t *testing.T) {
	fake := automation.NewFake()
	fake.Seed(automation.ReservationDetails{ID: instructorID})
	fake.Seed(automation.ReservationDetails{ID: "sb-1"})

	ctx := context.Background()
	seed := userdata.NewStore(fake, instructorID)
	seed.SetSandboxID("alice@corp.io", "sb-1")
	seed.SetToken("alice@corp.io", "tok-alice")
	require.NoError(t, seed.Save(ctx))

	tokens := &fakeTokens{loginErr: context.DeadlineExceeded}
	o := New(fake, tokens, testConfig(), instructorID, instructorEnv("alice@corp.io"))

	require.NoError(t, o.Teardown(ctx))

	// Sandbox teardown ran anyway; tokens were left alone.
	assert.Equal(t, []string{"sb-1"}, fake.EndedReservations)
	assert.Empty(t, tokens.deleted)
}
