// Package topology answers structural questions about a reservation's
// apps, services and connectors: which connectors are external, which one
// is the management connector, and which apps are marked for per-trainee
// duplication.
package topology

import (
	"strings"

	"github.com/labfleet/labfleet/internal/automation"
)

// Connector attribute names for explicit vNIC requests.
const (
	RequestedSourceVnicAttr = "Requested Source vNIC Name"
	RequestedTargetVnicAttr = "Requested Target vNIC Name"
)

// sharedAttrSuffix is the naming convention for the app sharing flag: any
// logical attribute whose name ends with this suffix, case-insensitive.
const sharedAttrSuffix = "shared"

// falseyValues are the attribute values that mean "do not share".
var falseyValues = map[string]bool{"no": true, "false": true, "0": true}

// mgmtServiceNames identify the management network service by convention.
var mgmtServiceNames = map[string]bool{"mgmt": true, "management": true, "mgt": true}

// Attributes is an attribute bag with lookup helpers.
type Attributes []automation.Attribute

// TryGet returns the value of the exactly-named attribute.
func (a Attributes) TryGet(name string) (string, bool) {
	for _, attr := range a {
		if attr.Name == name {
			return attr.Value, true
		}
	}
	return "", false
}

// TryGetSuffixFold returns the first attribute whose name ends with suffix,
// compared case-insensitively. This is the one matching rule the sharing
// convention needs, kept as a named helper instead of inline string logic.
func (a Attributes) TryGetSuffixFold(suffix string) (string, bool) {
	lower := strings.ToLower(suffix)
	for _, attr := range a {
		if strings.HasSuffix(strings.ToLower(attr.Name), lower) {
			return attr.Value, true
		}
	}
	return "", false
}

// ShouldDuplicate reports whether an app is marked for per-trainee
// duplication. An app with no sharing attribute defaults to shared.
func ShouldDuplicate(app automation.App) bool {
	value, ok := Attributes(app.LogicalAttributes).TryGetSuffixFold(sharedAttrSuffix)
	if !ok {
		return false
	}
	return falseyValues[strings.ToLower(value)]
}

// ShouldShare is the complement of ShouldDuplicate.
func ShouldShare(app automation.App) bool {
	return !ShouldDuplicate(app)
}

// AppsToDuplicate filters apps down to the ones marked duplicable.
func AppsToDuplicate(apps []automation.App) []automation.App {
	var out []automation.App
	for _, app := range apps {
		if ShouldDuplicate(app) {
			out = append(out, app)
		}
	}
	return out
}

// DefaultDeploymentPath returns the app's default deployment path.
func DefaultDeploymentPath(app automation.App) (automation.DeploymentPath, bool) {
	for _, path := range app.DeploymentPaths {
		if path.IsDefault {
			return path, true
		}
	}
	return automation.DeploymentPath{}, false
}

// DeploymentAttributeValue reads one attribute off a deployment path.
func DeploymentAttributeValue(path automation.DeploymentPath, name string) (string, bool) {
	return Attributes(path.Attributes).TryGet(name)
}

// AppConnectors maps each app name to its external connectors: the ones
// where exactly one endpoint is the app and the other is a known network
// service. App-to-app and app-to-resource connectors are excluded because
// only service links matter for vNIC indexing.
func AppConnectors(apps []automation.App, connectors []automation.Connector, serviceNames map[string]bool) map[string][]automation.Connector {
	out := make(map[string][]automation.Connector, len(apps))
	for _, app := range apps {
		out[app.Name] = nil
		for _, connector := range connectors {
			if (connector.Source == app.Name && serviceNames[connector.Target]) ||
				(connector.Target == app.Name && serviceNames[connector.Source]) {
				out[app.Name] = append(out[app.Name], connector)
			}
		}
	}
	return out
}

// ServiceNameSet builds the lookup set AppConnectors expects.
func ServiceNameSet(services []automation.Service) map[string]bool {
	set := make(map[string]bool, len(services))
	for _, svc := range services {
		set[svc.Alias] = true
	}
	return set
}

// ManagementConnector returns the first connector, in input order, with an
// endpoint named after the management service convention.
func ManagementConnector(connectors []automation.Connector) (automation.Connector, bool) {
	for _, connector := range connectors {
		if mgmtServiceNames[strings.ToLower(connector.Source)] ||
			mgmtServiceNames[strings.ToLower(connector.Target)] {
			return connector, true
		}
	}
	return automation.Connector{}, false
}

// RequestedVnicAttributeName resolves which requested-vNIC attribute applies
// to the app's end of the connector. ok is false when the app is not an
// endpoint, which is a caller error.
func RequestedVnicAttributeName(connector automation.Connector, appName string) (string, bool) {
	switch appName {
	case connector.Source:
		return RequestedSourceVnicAttr, true
	case connector.Target:
		return RequestedTargetVnicAttr, true
	}
	return "", false
}

// HasExistingVnicRequest reports whether any connector already carries a
// non-empty value under its resolved requested-vNIC attribute. A single hit
// suppresses convention-based assignment for the app's whole connector set.
func HasExistingVnicRequest(appName string, connectors []automation.Connector) bool {
	for _, connector := range connectors {
		attrName, ok := RequestedVnicAttributeName(connector, appName)
		if !ok {
			continue
		}
		if value, ok := Attributes(connector.Attributes).TryGet(attrName); ok && value != "" {
			return true
		}
	}
	return false
}

// SameEndpoints reports whether two connectors join the same pair of
// components, used to identify the management connector inside a set.
func SameEndpoints(a, b automation.Connector) bool {
	return a.Source == b.Source && a.Target == b.Target
}
