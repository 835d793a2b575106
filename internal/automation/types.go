package automation

import (
	"errors"
	"fmt"
)

// ReservationStatus is the coarse lifecycle state reported by the platform.
type ReservationStatus string

const (
	StatusPending   ReservationStatus = "Pending"
	StatusStarted   ReservationStatus = "Started"
	StatusTeardown  ReservationStatus = "Teardown"
	StatusCompleted ReservationStatus = "Completed"
)

// ProvisioningStatus reflects how far the platform got building the
// reservation's resources. Ready is the only usable terminal value.
type ProvisioningStatus string

const (
	ProvisioningNotStarted ProvisioningStatus = "Not Run"
	ProvisioningInProgress ProvisioningStatus = "In Progress"
	ProvisioningReady      ProvisioningStatus = "Ready"
	ProvisioningError      ProvisioningStatus = "Error"
)

// Attribute is a single name/value pair on an app deployment, a logical
// resource or a connector.
type Attribute struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

// DeploymentPath is one deployment option of an app. Exactly one path is
// expected to be the default; its attributes carry the "Private IP" request
// and everything else the platform needs to deploy the app.
type DeploymentPath struct {
	Name       string      `json:"name"`
	IsDefault  bool        `json:"is_default"`
	Attributes []Attribute `json:"attributes"`
}

// App is a deployable unit placed on a reservation topology.
type App struct {
	Name         string `json:"name"`
	TemplateName string `json:"template_name"`

	// LogicalAttributes come from the app's logical resource and carry the
	// sharing convention attribute (any attribute whose name ends with
	// "shared", case-insensitive).
	LogicalAttributes []Attribute `json:"logical_attributes"`

	DeploymentPaths []DeploymentPath `json:"deployment_paths"`
}

// Connector is an unordered link between two named components on the
// topology diagram.
type Connector struct {
	Source     string      `json:"source"`
	Target     string      `json:"target"`
	Attributes []Attribute `json:"attributes"`
}

// Resource is a deployed component inside a reservation.
type Resource struct {
	Name string `json:"name"`

	// AppName is the name of the app this resource was deployed from,
	// empty for plain inventory resources.
	AppName string `json:"app_name,omitempty"`

	// HasVM reports whether the resource is backed by a virtual machine,
	// i.e. it is a deployed app or static VM rather than an abstract
	// inventory item.
	HasVM bool `json:"has_vm"`
}

// Service is a non-deployable network service instance (e.g. a subnet)
// placed on the topology.
type Service struct {
	Alias string `json:"alias"`
}

// Position is a component's placement on the topology diagram.
type Position struct {
	X int `json:"x"`
	Y int `json:"y"`
}

// EndTimeLayout is the vendor's wire format for reservation end times.
const EndTimeLayout = "01/02/2006 15:04"

// ReservationDetails is the full description of a reservation.
type ReservationDetails struct {
	ID         string      `json:"id"`
	DomainName string      `json:"domain_name"`
	EndTime    string      `json:"end_time"` // EndTimeLayout, UTC
	Resources  []Resource  `json:"resources"`
	Services   []Service   `json:"services"`
	Apps       []App       `json:"apps"`
	Connectors []Connector `json:"connectors"`
}

// SlimStatus is the cheap status projection used by poll loops.
type SlimStatus struct {
	Status             ReservationStatus  `json:"status"`
	ProvisioningStatus ProvisioningStatus `json:"provisioning_status"`
}

// Reservation is the handle returned when a reservation is created.
type Reservation struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Owner string `json:"owner"`
}

// GlobalInput is a launch parameter passed to a topology reservation.
type GlobalInput struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

// CreateReservationRequest describes an immediate reservation of a topology.
type CreateReservationRequest struct {
	Name            string        `json:"name"`
	Owner           string        `json:"owner"`
	DurationMinutes int           `json:"duration_minutes"`
	TopologyPath    string        `json:"topology_path"`
	GlobalInputs    []GlobalInput `json:"global_inputs,omitempty"`
}

// EditAppRequest renames an app and/or replaces its default deployment
// attributes. A nil Attributes slice leaves the deployment untouched.
type EditAppRequest struct {
	Name               string      `json:"name"`
	NewName            string      `json:"new_name,omitempty"`
	DeploymentPathName string      `json:"deployment_path_name,omitempty"`
	Attributes         []Attribute `json:"attributes,omitempty"`
}

// ConnectorAttributeUpdate is the canonical record for a connector
// attribute change, keyed by the connector's two endpoints. Both the vNIC
// assignment and the attribute-copy paths emit this one shape.
type ConnectorAttributeUpdate struct {
	Source     string      `json:"source"`
	Target     string      `json:"target"`
	Attributes []Attribute `json:"attributes"`
}

// SetConnectorRequest creates or replaces a connector between two components.
type SetConnectorRequest struct {
	Source    string `json:"source"`
	Target    string `json:"target"`
	Direction string `json:"direction"`
	Alias     string `json:"alias,omitempty"`
}

// SandboxDataEntry is one key/value pair in a reservation's opaque data store.
type SandboxDataEntry struct {
	Key   string `json:"key"`
	Value string `json:"value"`
}

// User is a platform user account.
type User struct {
	Name     string `json:"name"`
	Email    string `json:"email"`
	IsActive bool   `json:"is_active"`
}

// Vendor error codes the orchestration recovers from selectively.
const (
	CodeUserNotFound      = 133
	CodeUserAlreadyExists = 134
)

// APIError is an error response from the automation platform.
type APIError struct {
	Code    int
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("automation api error %d: %s", e.Code, e.Message)
}

// IsCode reports whether err is an APIError carrying the given vendor code.
func IsCode(err error, code int) bool {
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		return false
	}
	return apiErr.Code == code
}
