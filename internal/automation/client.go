// Package automation defines the abstraction layer over the vendor
// sandbox-automation platform.
//
// The orchestration workflows never talk to the platform directly; they go
// through the Client interface so the whole training workflow can run
// against the in-memory Fake in tests.
package automation

import (
	"context"
	"errors"
)

// Common errors returned by Client implementations.
var (
	// ErrReservationNotFound indicates the requested reservation does not exist.
	ErrReservationNotFound = errors.New("reservation not found")

	// ErrAppNotFound indicates the requested app is not part of the reservation.
	ErrAppNotFound = errors.New("app not found in reservation")

	// ErrResourceNotFound indicates the requested resource is not part of the reservation.
	ErrResourceNotFound = errors.New("resource not found in reservation")
)

// PowerOffCommand is the resource command issued to shut a deployed app down
// gracefully before it is detached from a reservation.
const PowerOffCommand = "Power Off"

// Client is the set of platform operations the training workflows consume.
// Implementations must be safe for concurrent use.
//
// All methods accept a context.Context; implementations backed by the real
// platform should respect its deadline on every call.
type Client interface {
	// Reservation CRUD.

	// CreateImmediateReservation reserves a topology right now and returns
	// a handle for it. Provisioning proceeds asynchronously; poll
	// GetReservationStatus until the reservation is usable.
	CreateImmediateReservation(ctx context.Context, req CreateReservationRequest) (Reservation, error)

	// GetReservationStatus returns the slim status projection for a reservation.
	GetReservationStatus(ctx context.Context, reservationID string) (SlimStatus, error)

	// GetReservationDetails returns the full reservation description.
	// disableCache forces a fresh read from the platform.
	GetReservationDetails(ctx context.Context, reservationID string, disableCache bool) (ReservationDetails, error)

	// EndReservation moves the reservation into teardown.
	EndReservation(ctx context.Context, reservationID string) error

	// WriteMessage appends a message to the reservation's live output stream.
	WriteMessage(ctx context.Context, reservationID, message string) error

	// Topology mutation.

	// AddAppToReservation places a new app from the named template at the
	// given diagram position and returns the reserved app name the
	// platform assigned to it.
	AddAppToReservation(ctx context.Context, reservationID, templateName string, pos Position) (string, error)

	// EditAppsInReservation applies a batch of app edits in one call.
	EditAppsInReservation(ctx context.Context, reservationID string, edits []EditAppRequest) error

	// SetConnectorsInReservation creates a batch of connectors in one call.
	SetConnectorsInReservation(ctx context.Context, reservationID string, requests []SetConnectorRequest) error

	// SetConnectorAttributes applies a batch of connector attribute
	// updates in one call. Each update is keyed by the connector's two
	// endpoints.
	SetConnectorAttributes(ctx context.Context, reservationID string, updates []ConnectorAttributeUpdate) error

	// SetResourceSharedState marks resources as shared or exclusive.
	SetResourceSharedState(ctx context.Context, reservationID string, resources []string, shared bool) error

	// AddResourcesToReservation attaches existing resources to a reservation.
	AddResourcesToReservation(ctx context.Context, reservationID string, resources []string, shared bool) error

	// SetResourcePosition moves a resource on the reservation diagram.
	SetResourcePosition(ctx context.Context, reservationID, resource string, pos Position) error

	// RemoveResourcesFromReservation detaches resources without ending the reservation.
	RemoveResourcesFromReservation(ctx context.Context, reservationID string, resources []string) error

	// RemoveServicesFromReservation removes service instances by alias.
	RemoveServicesFromReservation(ctx context.Context, reservationID string, aliases []string) error

	// RemoveAppFromReservation removes a single undeployed app.
	RemoveAppFromReservation(ctx context.Context, reservationID, appName string) error

	// ExecuteResourceCommand runs a named command (e.g. PowerOffCommand)
	// on a deployed resource and waits for it to finish.
	ExecuteResourceCommand(ctx context.Context, reservationID, resource, command string) error

	// GetResourcePositions returns the diagram positions of all resources.
	GetResourcePositions(ctx context.Context, reservationID string) (map[string]Position, error)

	// GetServicePositions returns the diagram positions of all services
	// and undeployed apps.
	GetServicePositions(ctx context.Context, reservationID string) (map[string]Position, error)

	// User and group administration.

	// AddGroup creates a user group with the given role.
	AddGroup(ctx context.Context, name, description, role string) error

	// AddGroupsToDomain grants the groups access to a domain.
	AddGroupsToDomain(ctx context.Context, domain string, groups []string) error

	// AddUsersToGroup adds users to an existing group.
	AddUsersToGroup(ctx context.Context, users []string, group string) error

	// DeleteGroup removes a group. Memberships are discarded, users survive.
	DeleteGroup(ctx context.Context, name string) error

	// GetUser looks a user up by name. Returns an APIError with
	// CodeUserNotFound if the account does not exist.
	GetUser(ctx context.Context, username string) (User, error)

	// AddUser creates a user account. Returns an APIError with
	// CodeUserAlreadyExists if the account is already present.
	AddUser(ctx context.Context, username, password, email string, active bool) error

	// UpdateUser changes a user's email and active flag.
	UpdateUser(ctx context.Context, username, email string, active bool) error

	// UpdateUserPassword resets a user's password.
	UpdateUserPassword(ctx context.Context, username, password string) error

	// Opaque per-reservation key/value store.

	// GetSandboxData reads all key/value entries stored on the reservation.
	GetSandboxData(ctx context.Context, reservationID string) ([]SandboxDataEntry, error)

	// SetSandboxData writes key/value entries, replacing existing keys.
	SetSandboxData(ctx context.Context, reservationID string, entries []SandboxDataEntry) error
}
