// Package planner computes how template apps are cloned per trainee: vNIC
// index assignments, new names and positions, renumbered private IP
// requests, and the batched mutation requests that realize the plan.
package planner

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/rs/zerolog/log"

	"github.com/labfleet/labfleet/internal/automation"
	"github.com/labfleet/labfleet/internal/ipcodec"
	"github.com/labfleet/labfleet/internal/output"
	"github.com/labfleet/labfleet/internal/topology"
	"github.com/labfleet/labfleet/internal/userdata"
)

// PrivateIPAttr is the deployment attribute carrying the IP request
// expression.
const PrivateIPAttr = "Private IP"

// verticalSpacing is the fixed Y offset between trainee rows on the
// topology diagram. The value must stay stable for diagram compatibility.
const verticalSpacing = 100

// Planner builds the duplication plan for one setup pass.
type Planner struct {
	client automation.Client
	out    *output.Service

	octet       ipcodec.Octet
	ipIncrement int
}

// New returns a planner using the configured increment octet and size.
func New(client automation.Client, out *output.Service, octet ipcodec.Octet, ipIncrement int) *Planner {
	return &Planner{
		client:      client,
		out:         out,
		octet:       octet,
		ipIncrement: ipIncrement,
	}
}

// PlanVnicAssignments assigns requested-vNIC indices by convention.
//
// An app qualifies only when it has more than one external connector, a
// management connector is identifiable, and no connector already carries an
// explicit request. The management connector gets index 0; the rest get
// consecutive indices from 1 in stable order. Assigned attributes are also
// written back into appConnectors so duplication copies them.
//
// Apps are planned independently; one app's plan never blocks another's.
func (p *Planner) PlanVnicAssignments(ctx context.Context, apps []automation.App,
	appConnectors map[string][]automation.Connector) []automation.ConnectorAttributeUpdate {

	var updates []automation.ConnectorAttributeUpdate

	for _, app := range apps {
		connectors := appConnectors[app.Name]
		if len(connectors) <= 1 {
			continue
		}

		mgmt, ok := topology.ManagementConnector(connectors)
		if !ok {
			continue
		}

		if topology.HasExistingVnicRequest(app.Name, connectors) {
			p.out.Notify(ctx, fmt.Sprintf(
				"Requested vNICs will not be changed for %s because an existing value was detected on one or more connectors",
				app.Name))
			continue
		}

		p.out.Debug(ctx, fmt.Sprintf("Setting management connection for %s", app.Name))

		mgmtIdx := -1
		for i := range connectors {
			if topology.SameEndpoints(connectors[i], mgmt) {
				mgmtIdx = i
				break
			}
		}
		updates = append(updates, p.assignVnic(app.Name, connectors, mgmtIdx, "0"))

		vnicIndex := 1
		for i := range connectors {
			if i == mgmtIdx {
				continue
			}
			updates = append(updates, p.assignVnic(app.Name, connectors, i, strconv.Itoa(vnicIndex)))
			vnicIndex++
		}
	}

	return updates
}

func (p *Planner) assignVnic(appName string, connectors []automation.Connector, idx int, value string) automation.ConnectorAttributeUpdate {
	connector := &connectors[idx]
	attrName, _ := topology.RequestedVnicAttributeName(*connector, appName)
	attr := automation.Attribute{Name: attrName, Value: value}
	connector.Attributes = append(connector.Attributes, attr)
	return automation.ConnectorAttributeUpdate{
		Source:     connector.Source,
		Target:     connector.Target,
		Attributes: []automation.Attribute{attr},
	}
}

// duplicateApp places one clone of app for a trainee and returns the
// batched requests that finish it: the rename/attribute edit, the connector
// re-parenting, and the attribute copies.
func (p *Planner) duplicateApp(ctx context.Context, reservationID string, app automation.App,
	connectors []automation.Connector, pos automation.Position, traineeIndex int, numericID string) (
	automation.EditAppRequest, []automation.SetConnectorRequest, []automation.ConnectorAttributeUpdate, error) {

	newName := fmt.Sprintf("%s_%s", numericID, app.Name)
	newPos := automation.Position{X: pos.X, Y: pos.Y + verticalSpacing*traineeIndex}

	// Compute the new address request before touching the platform so a
	// broken expression abandons the app without a stray half-placed clone.
	newIP, hasIP, err := p.incrementedPrivateIP(ctx, app, traineeIndex)
	if err != nil {
		return automation.EditAppRequest{}, nil, nil, err
	}

	reservedName, err := p.client.AddAppToReservation(ctx, reservationID, app.TemplateName, newPos)
	if err != nil {
		return automation.EditAppRequest{}, nil, nil, fmt.Errorf("placing duplicate of %s: %w", app.Name, err)
	}

	edit := automation.EditAppRequest{Name: reservedName, NewName: newName}
	if hasIP {
		path, _ := topology.DefaultDeploymentPath(app)
		edit.DeploymentPathName = path.Name
		edit.Attributes = mergeAttributes(path.Attributes, automation.Attribute{Name: PrivateIPAttr, Value: newIP})
	}

	connectorRequests, attrUpdates := reparentConnectors(app.Name, newName, connectors)
	return edit, connectorRequests, attrUpdates, nil
}

// incrementedPrivateIP returns the trainee's private IP request, or
// hasIP=false when the app requests no addresses.
func (p *Planner) incrementedPrivateIP(ctx context.Context, app automation.App, traineeIndex int) (string, bool, error) {
	path, ok := topology.DefaultDeploymentPath(app)
	if !ok {
		return "", false, nil
	}
	requested, ok := topology.DeploymentAttributeValue(path, PrivateIPAttr)
	if !ok || requested == "" {
		return "", false, nil
	}

	p.out.Debug(ctx, fmt.Sprintf("original ip for %s is: %s", app.Name, requested))

	incremented, err := ipcodec.IncrementRequestString(requested, p.octet, traineeIndex*p.ipIncrement)
	if err != nil {
		return "", false, fmt.Errorf("incrementing ip request for %s: %w", app.Name, err)
	}

	p.out.Debug(ctx, fmt.Sprintf("incremented requested ips: %s", incremented))
	return incremented, true, nil
}

// reparentConnectors rewrites the original app's external connectors onto
// the duplicate, copying every non-empty attribute value (including vNIC
// indices assigned earlier in this pass).
func reparentConnectors(origName, newName string, connectors []automation.Connector) (
	[]automation.SetConnectorRequest, []automation.ConnectorAttributeUpdate) {

	var requests []automation.SetConnectorRequest
	var updates []automation.ConnectorAttributeUpdate

	for _, connector := range connectors {
		var source, target string
		switch origName {
		case connector.Source:
			source, target = newName, connector.Target
		case connector.Target:
			source, target = connector.Source, newName
		default:
			continue
		}

		requests = append(requests, automation.SetConnectorRequest{
			Source:    source,
			Target:    target,
			Direction: "bi",
		})

		var kept []automation.Attribute
		for _, attr := range connector.Attributes {
			if attr.Value != "" {
				kept = append(kept, attr)
			}
		}
		if len(kept) > 0 {
			updates = append(updates, automation.ConnectorAttributeUpdate{
				Source:     source,
				Target:     target,
				Attributes: kept,
			})
		}
	}

	return requests, updates
}

// PlanDuplicationBatch clones every duplicable app once per trainee and
// issues the result as three bulk calls: edit-apps, set-connectors and
// set-connector-attributes. The mutation count stays constant no matter how
// many trainees there are.
//
// A failing app plan is logged and skipped; the rest of the batch proceeds.
func (p *Planner) PlanDuplicationBatch(ctx context.Context, reservationID string,
	details automation.ReservationDetails, trainees []string, store *userdata.Store) error {

	serviceNames := topology.ServiceNameSet(details.Services)
	appConnectors := topology.AppConnectors(details.Apps, details.Connectors, serviceNames)

	attrUpdates := p.PlanVnicAssignments(ctx, details.Apps, appConnectors)

	appsToDuplicate := topology.AppsToDuplicate(details.Apps)

	positions, err := p.client.GetServicePositions(ctx, reservationID)
	if err != nil {
		return fmt.Errorf("reading diagram positions: %w", err)
	}

	var edits []automation.EditAppRequest
	var connectorRequests []automation.SetConnectorRequest

	for traineeIndex, user := range trainees {
		numericID := strconv.Itoa(traineeIndex + 1)
		store.SetNumericID(user, numericID)

		for _, app := range appsToDuplicate {
			p.out.Debug(ctx, fmt.Sprintf("Duplicating app %s for user #%s", app.Name, numericID))

			edit, requests, updates, err := p.duplicateApp(ctx, reservationID, app,
				appConnectors[app.Name], positions[app.Name], traineeIndex+1, numericID)
			if err != nil {
				log.Error().Err(err).Str("app", app.Name).Str("user", user).
					Msg("abandoning app duplication")
				p.out.Notify(ctx, fmt.Sprintf("skipping duplication of %s for %s: %v", app.Name, user, err))
				continue
			}

			edits = append(edits, edit)
			connectorRequests = append(connectorRequests, requests...)
			attrUpdates = append(attrUpdates, updates...)
		}
	}

	if len(edits) > 0 {
		if err := p.client.EditAppsInReservation(ctx, reservationID, edits); err != nil {
			return fmt.Errorf("editing duplicated apps: %w", err)
		}
	}
	if len(connectorRequests) > 0 {
		if err := p.client.SetConnectorsInReservation(ctx, reservationID, connectorRequests); err != nil {
			return fmt.Errorf("creating duplicated connectors: %w", err)
		}
	}
	if len(attrUpdates) > 0 {
		if err := p.client.SetConnectorAttributes(ctx, reservationID, attrUpdates); err != nil {
			return fmt.Errorf("updating connector attributes: %w", err)
		}
	}
	return nil
}

// ValidateIncrementBounds rejects a trainee roster whose address offsets
// would overflow an octet. Run before any mutation.
func (p *Planner) ValidateIncrementBounds(details automation.ReservationDetails, traineeCount int) error {
	total := traineeCount * p.ipIncrement
	if p.octet != ipcodec.OctetSlash24 {
		return nil
	}
	for _, app := range topology.AppsToDuplicate(details.Apps) {
		path, ok := topology.DefaultDeploymentPath(app)
		if !ok {
			continue
		}
		requested, ok := topology.DeploymentAttributeValue(path, PrivateIPAttr)
		if !ok || requested == "" {
			continue
		}
		if err := ipcodec.CheckIncrementBounds(requested, total); err != nil {
			if errors.Is(err, ipcodec.ErrIncrementOverflow) {
				return fmt.Errorf("app %s cannot host %d trainees: %w", app.Name, traineeCount, err)
			}
			// Malformed expressions are dealt with during planning, where
			// the single app is skipped instead of blocking the batch.
			continue
		}
	}
	return nil
}

func mergeAttributes(existing []automation.Attribute, override automation.Attribute) []automation.Attribute {
	merged := []automation.Attribute{override}
	for _, attr := range existing {
		if attr.Name == override.Name {
			continue
		}
		merged = append(merged, attr)
	}
	return merged
}
