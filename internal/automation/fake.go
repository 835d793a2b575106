package automation

import (
	"context"
	"fmt"
	"sync"
)

// Fake is an in-memory Client used by the workflow tests. It applies
// mutations to its own reservation state so tests can assert on the end
// result, and counts the bulk mutation calls so tests can assert on
// batching behavior.
type Fake struct {
	mu sync.Mutex

	nextID       int
	reservations map[string]*fakeReservation
	users        map[string]*User
	passwords    map[string]string
	groups       map[string][]string
	domainGroups map[string][]string

	// Call counters for the batched mutation endpoints.
	EditAppsCalls           int
	SetConnectorsCalls      int
	SetConnectorAttrsCalls  int
	RemoveResourcesCalls    int
	ExecutedCommands        []string // "<reservation>/<resource>/<command>"
	CreatedReservations     []CreateReservationRequest
	EndedReservations       []string
	AddedResourceBatches    [][]string
	SharedStateBatches      [][]string
	PositionedResources     []string
	RemovedServiceBatches   [][]string
	RemovedApps             []string
	ConnectorAttrUpdates    []ConnectorAttributeUpdate
	AppliedEdits            []EditAppRequest
	AppliedConnectorCreates []SetConnectorRequest
}

type fakeReservation struct {
	details     ReservationDetails
	statusQueue []SlimStatus
	sandboxData map[string]string
	messages    []string
	appCounter  int
}

// NewFake returns an empty Fake.
func NewFake() *Fake {
	return &Fake{
		reservations: make(map[string]*fakeReservation),
		users:        make(map[string]*User),
		passwords:    make(map[string]string),
		groups:       make(map[string][]string),
		domainGroups: make(map[string][]string),
	}
}

// Seed installs a reservation with the given details and an initial
// Started/Ready status.
func (f *Fake) Seed(details ReservationDetails) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.reservations[details.ID] = &fakeReservation{
		details:     details,
		statusQueue: []SlimStatus{{Status: StatusStarted, ProvisioningStatus: ProvisioningReady}},
		sandboxData: make(map[string]string),
	}
}

// PushStatus queues statuses to be returned, in order, by
// GetReservationStatus. The final status repeats once the queue drains.
func (f *Fake) PushStatus(reservationID string, statuses ...SlimStatus) {
	f.mu.Lock()
	defer f.mu.Unlock()
	r := f.reservations[reservationID]
	r.statusQueue = append(r.statusQueue, statuses...)
}

// SetStatusQueue replaces the status queue entirely.
func (f *Fake) SetStatusQueue(reservationID string, statuses ...SlimStatus) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.reservations[reservationID].statusQueue = statuses
}

// Messages returns the output stream written to a reservation.
func (f *Fake) Messages(reservationID string) []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	if r, ok := f.reservations[reservationID]; ok {
		return append([]string(nil), r.messages...)
	}
	return nil
}

// Details returns a copy of the reservation details, for assertions.
func (f *Fake) Details(reservationID string) (ReservationDetails, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	r, ok := f.reservations[reservationID]
	if !ok {
		return ReservationDetails{}, false
	}
	return r.details, true
}

// SeedUser installs a user account.
func (f *Fake) SeedUser(u User) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.users[u.Name] = &u
}

// Groups returns the member list of a group, nil if the group is gone.
func (f *Fake) Groups(name string) []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	members, ok := f.groups[name]
	if !ok {
		return nil
	}
	return append([]string(nil), members...)
}

func (f *Fake) get(reservationID string) (*fakeReservation, error) {
	r, ok := f.reservations[reservationID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrReservationNotFound, reservationID)
	}
	return r, nil
}

func (f *Fake) CreateImmediateReservation(ctx context.Context, req CreateReservationRequest) (Reservation, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.nextID++
	id := fmt.Sprintf("res-%d", f.nextID)
	f.CreatedReservations = append(f.CreatedReservations, req)
	f.reservations[id] = &fakeReservation{
		details: ReservationDetails{ID: id},
		statusQueue: []SlimStatus{
			{Status: StatusStarted, ProvisioningStatus: ProvisioningReady},
		},
		sandboxData: make(map[string]string),
	}
	return Reservation{ID: id, Name: req.Name, Owner: req.Owner}, nil
}

func (f *Fake) GetReservationStatus(ctx context.Context, reservationID string) (SlimStatus, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	r, err := f.get(reservationID)
	if err != nil {
		return SlimStatus{}, err
	}
	status := r.statusQueue[0]
	if len(r.statusQueue) > 1 {
		r.statusQueue = r.statusQueue[1:]
	}
	return status, nil
}

func (f *Fake) GetReservationDetails(ctx context.Context, reservationID string, disableCache bool) (ReservationDetails, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	r, err := f.get(reservationID)
	if err != nil {
		return ReservationDetails{}, err
	}
	return r.details, nil
}

func (f *Fake) EndReservation(ctx context.Context, reservationID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	r, err := f.get(reservationID)
	if err != nil {
		return err
	}
	f.EndedReservations = append(f.EndedReservations, reservationID)
	r.statusQueue = []SlimStatus{{Status: StatusCompleted, ProvisioningStatus: ProvisioningReady}}
	return nil
}

func (f *Fake) WriteMessage(ctx context.Context, reservationID, message string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	r, err := f.get(reservationID)
	if err != nil {
		return err
	}
	r.messages = append(r.messages, message)
	return nil
}

func (f *Fake) AddAppToReservation(ctx context.Context, reservationID, templateName string, pos Position) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	r, err := f.get(reservationID)
	if err != nil {
		return "", err
	}
	r.appCounter++
	reservedName := fmt.Sprintf("%s_%d", templateName, r.appCounter)
	r.details.Apps = append(r.details.Apps, App{Name: reservedName, TemplateName: templateName})
	return reservedName, nil
}

func (f *Fake) EditAppsInReservation(ctx context.Context, reservationID string, edits []EditAppRequest) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	r, err := f.get(reservationID)
	if err != nil {
		return err
	}
	f.EditAppsCalls++
	f.AppliedEdits = append(f.AppliedEdits, edits...)
	for _, edit := range edits {
		for i := range r.details.Apps {
			if r.details.Apps[i].Name != edit.Name {
				continue
			}
			if edit.NewName != "" {
				r.details.Apps[i].Name = edit.NewName
			}
			if edit.Attributes != nil {
				r.details.Apps[i].DeploymentPaths = []DeploymentPath{{
					Name:       edit.DeploymentPathName,
					IsDefault:  true,
					Attributes: edit.Attributes,
				}}
			}
		}
	}
	return nil
}

func (f *Fake) SetConnectorsInReservation(ctx context.Context, reservationID string, requests []SetConnectorRequest) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	r, err := f.get(reservationID)
	if err != nil {
		return err
	}
	f.SetConnectorsCalls++
	f.AppliedConnectorCreates = append(f.AppliedConnectorCreates, requests...)
	for _, req := range requests {
		r.details.Connectors = append(r.details.Connectors, Connector{Source: req.Source, Target: req.Target})
	}
	return nil
}

func (f *Fake) SetConnectorAttributes(ctx context.Context, reservationID string, updates []ConnectorAttributeUpdate) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	r, err := f.get(reservationID)
	if err != nil {
		return err
	}
	f.SetConnectorAttrsCalls++
	f.ConnectorAttrUpdates = append(f.ConnectorAttrUpdates, updates...)
	for _, update := range updates {
		for i := range r.details.Connectors {
			c := &r.details.Connectors[i]
			if c.Source == update.Source && c.Target == update.Target {
				c.Attributes = append(c.Attributes, update.Attributes...)
			}
		}
	}
	return nil
}

func (f *Fake) SetResourceSharedState(ctx context.Context, reservationID string, resources []string, shared bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if _, err := f.get(reservationID); err != nil {
		return err
	}
	f.SharedStateBatches = append(f.SharedStateBatches, append([]string(nil), resources...))
	return nil
}

func (f *Fake) AddResourcesToReservation(ctx context.Context, reservationID string, resources []string, shared bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	r, err := f.get(reservationID)
	if err != nil {
		return err
	}
	f.AddedResourceBatches = append(f.AddedResourceBatches, append([]string(nil), resources...))
	for _, name := range resources {
		r.details.Resources = append(r.details.Resources, Resource{Name: name, HasVM: true})
	}
	return nil
}

func (f *Fake) SetResourcePosition(ctx context.Context, reservationID, resource string, pos Position) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if _, err := f.get(reservationID); err != nil {
		return err
	}
	f.PositionedResources = append(f.PositionedResources, resource)
	return nil
}

func (f *Fake) RemoveResourcesFromReservation(ctx context.Context, reservationID string, resources []string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	r, err := f.get(reservationID)
	if err != nil {
		return err
	}
	f.RemoveResourcesCalls++
	remove := make(map[string]bool, len(resources))
	for _, name := range resources {
		remove[name] = true
	}
	kept := r.details.Resources[:0]
	for _, res := range r.details.Resources {
		if !remove[res.Name] {
			kept = append(kept, res)
		}
	}
	r.details.Resources = kept
	return nil
}

func (f *Fake) RemoveServicesFromReservation(ctx context.Context, reservationID string, aliases []string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	r, err := f.get(reservationID)
	if err != nil {
		return err
	}
	f.RemovedServiceBatches = append(f.RemovedServiceBatches, append([]string(nil), aliases...))
	r.details.Services = nil
	return nil
}

func (f *Fake) RemoveAppFromReservation(ctx context.Context, reservationID, appName string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	r, err := f.get(reservationID)
	if err != nil {
		return err
	}
	f.RemovedApps = append(f.RemovedApps, appName)
	kept := r.details.Apps[:0]
	for _, app := range r.details.Apps {
		if app.Name != appName {
			kept = append(kept, app)
		}
	}
	r.details.Apps = kept
	return nil
}

func (f *Fake) ExecuteResourceCommand(ctx context.Context, reservationID, resource, command string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if _, err := f.get(reservationID); err != nil {
		return err
	}
	f.ExecutedCommands = append(f.ExecutedCommands, fmt.Sprintf("%s/%s/%s", reservationID, resource, command))
	return nil
}

func (f *Fake) GetResourcePositions(ctx context.Context, reservationID string) (map[string]Position, error) {
	return f.positions(reservationID, true)
}

func (f *Fake) GetServicePositions(ctx context.Context, reservationID string) (map[string]Position, error) {
	return f.positions(reservationID, false)
}

func (f *Fake) positions(reservationID string, resources bool) (map[string]Position, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	r, err := f.get(reservationID)
	if err != nil {
		return nil, err
	}
	out := make(map[string]Position)
	if resources {
		for _, res := range r.details.Resources {
			out[res.Name] = Position{}
		}
		return out, nil
	}
	for _, svc := range r.details.Services {
		out[svc.Alias] = Position{}
	}
	for _, app := range r.details.Apps {
		out[app.Name] = Position{}
	}
	return out, nil
}

func (f *Fake) AddGroup(ctx context.Context, name, description, role string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.groups[name]; !ok {
		f.groups[name] = []string{}
	}
	return nil
}

func (f *Fake) AddGroupsToDomain(ctx context.Context, domain string, groups []string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.domainGroups[domain] = append(f.domainGroups[domain], groups...)
	return nil
}

func (f *Fake) AddUsersToGroup(ctx context.Context, users []string, group string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.groups[group] = append(f.groups[group], users...)
	return nil
}

func (f *Fake) DeleteGroup(ctx context.Context, name string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.groups, name)
	return nil
}

func (f *Fake) GetUser(ctx context.Context, username string) (User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	u, ok := f.users[username]
	if !ok {
		return User{}, &APIError{Code: CodeUserNotFound, Message: "user not found: " + username}
	}
	return *u, nil
}

func (f *Fake) AddUser(ctx context.Context, username, password, email string, active bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.users[username]; ok {
		return &APIError{Code: CodeUserAlreadyExists, Message: "user already exists: " + username}
	}
	f.users[username] = &User{Name: username, Email: email, IsActive: active}
	f.passwords[username] = password
	return nil
}

func (f *Fake) UpdateUser(ctx context.Context, username, email string, active bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	u, ok := f.users[username]
	if !ok {
		return &APIError{Code: CodeUserNotFound, Message: "user not found: " + username}
	}
	u.Email = email
	u.IsActive = active
	return nil
}

func (f *Fake) UpdateUserPassword(ctx context.Context, username, password string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.users[username]; !ok {
		return &APIError{Code: CodeUserNotFound, Message: "user not found: " + username}
	}
	f.passwords[username] = password
	return nil
}

func (f *Fake) GetSandboxData(ctx context.Context, reservationID string) ([]SandboxDataEntry, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	r, err := f.get(reservationID)
	if err != nil {
		return nil, err
	}
	entries := make([]SandboxDataEntry, 0, len(r.sandboxData))
	for k, v := range r.sandboxData {
		entries = append(entries, SandboxDataEntry{Key: k, Value: v})
	}
	return entries, nil
}

func (f *Fake) SetSandboxData(ctx context.Context, reservationID string, entries []SandboxDataEntry) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	r, err := f.get(reservationID)
	if err != nil {
		return err
	}
	for _, entry := range entries {
		r.sandboxData[entry.Key] = entry.Value
	}
	return nil
}

var _ Client = (*Fake)(nil)
