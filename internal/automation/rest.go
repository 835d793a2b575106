package automation

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"
)

// REST implements Client against the platform's HTTP automation API. It is a
// thin wrapper: every method is one request, all interpretation of the
// results happens in the workflow packages.
type REST struct {
	baseURL    string
	token      string
	httpClient *http.Client
}

// NewREST returns a client for the automation API at baseURL, authenticating
// every call with the given API token.
func NewREST(baseURL, token string) *REST {
	return &REST{
		baseURL: baseURL,
		token:   token,
		httpClient: &http.Client{
			Timeout: 60 * time.Second,
		},
	}
}

func (r *REST) do(ctx context.Context, method, path string, payload, out any) error {
	var body *bytes.Reader
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			return err
		}
		body = bytes.NewReader(raw)
	} else {
		body = bytes.NewReader(nil)
	}

	req, err := http.NewRequestWithContext(ctx, method, r.baseURL+path, body)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Basic "+r.token)

	resp, err := r.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		var apiErr APIError
		if err := json.NewDecoder(resp.Body).Decode(&apiErr); err == nil && apiErr.Code != 0 {
			return &apiErr
		}
		return fmt.Errorf("automation api: %s %s returned %d", method, path, resp.StatusCode)
	}

	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("decoding automation api response: %w", err)
		}
	}
	return nil
}

func reservationPath(id, suffix string) string {
	return "/api/v1/reservations/" + url.PathEscape(id) + suffix
}

func (r *REST) CreateImmediateReservation(ctx context.Context, req CreateReservationRequest) (Reservation, error) {
	var out Reservation
	err := r.do(ctx, http.MethodPost, "/api/v1/reservations", req, &out)
	return out, err
}

func (r *REST) GetReservationStatus(ctx context.Context, reservationID string) (SlimStatus, error) {
	var out SlimStatus
	err := r.do(ctx, http.MethodGet, reservationPath(reservationID, "/status"), nil, &out)
	return out, err
}

func (r *REST) GetReservationDetails(ctx context.Context, reservationID string, disableCache bool) (ReservationDetails, error) {
	path := reservationPath(reservationID, "")
	if disableCache {
		path += "?refresh=true"
	}
	var out ReservationDetails
	err := r.do(ctx, http.MethodGet, path, nil, &out)
	return out, err
}

func (r *REST) EndReservation(ctx context.Context, reservationID string) error {
	return r.do(ctx, http.MethodDelete, reservationPath(reservationID, ""), nil, nil)
}

func (r *REST) WriteMessage(ctx context.Context, reservationID, message string) error {
	return r.do(ctx, http.MethodPost, reservationPath(reservationID, "/output"),
		map[string]string{"message": message}, nil)
}

func (r *REST) AddAppToReservation(ctx context.Context, reservationID, templateName string, pos Position) (string, error) {
	var out struct {
		Name string `json:"name"`
	}
	err := r.do(ctx, http.MethodPost, reservationPath(reservationID, "/apps"), map[string]any{
		"template_name": templateName,
		"position":      pos,
	}, &out)
	return out.Name, err
}

func (r *REST) EditAppsInReservation(ctx context.Context, reservationID string, edits []EditAppRequest) error {
	return r.do(ctx, http.MethodPut, reservationPath(reservationID, "/apps"),
		map[string]any{"edits": edits}, nil)
}

func (r *REST) SetConnectorsInReservation(ctx context.Context, reservationID string, requests []SetConnectorRequest) error {
	return r.do(ctx, http.MethodPut, reservationPath(reservationID, "/connectors"),
		map[string]any{"connectors": requests}, nil)
}

func (r *REST) SetConnectorAttributes(ctx context.Context, reservationID string, updates []ConnectorAttributeUpdate) error {
	return r.do(ctx, http.MethodPut, reservationPath(reservationID, "/connectors/attributes"),
		map[string]any{"updates": updates}, nil)
}

func (r *REST) SetResourceSharedState(ctx context.Context, reservationID string, resources []string, shared bool) error {
	return r.do(ctx, http.MethodPut, reservationPath(reservationID, "/resources/shared"),
		map[string]any{"resources": resources, "shared": shared}, nil)
}

func (r *REST) AddResourcesToReservation(ctx context.Context, reservationID string, resources []string, shared bool) error {
	return r.do(ctx, http.MethodPost, reservationPath(reservationID, "/resources"),
		map[string]any{"resources": resources, "shared": shared}, nil)
}

func (r *REST) SetResourcePosition(ctx context.Context, reservationID, resource string, pos Position) error {
	return r.do(ctx, http.MethodPut,
		reservationPath(reservationID, "/resources/"+url.PathEscape(resource)+"/position"), pos, nil)
}

func (r *REST) RemoveResourcesFromReservation(ctx context.Context, reservationID string, resources []string) error {
	return r.do(ctx, http.MethodPost, reservationPath(reservationID, "/resources/remove"),
		map[string]any{"resources": resources}, nil)
}

func (r *REST) RemoveServicesFromReservation(ctx context.Context, reservationID string, aliases []string) error {
	return r.do(ctx, http.MethodPost, reservationPath(reservationID, "/services/remove"),
		map[string]any{"aliases": aliases}, nil)
}

func (r *REST) RemoveAppFromReservation(ctx context.Context, reservationID, appName string) error {
	return r.do(ctx, http.MethodDelete,
		reservationPath(reservationID, "/apps/"+url.PathEscape(appName)), nil, nil)
}

func (r *REST) ExecuteResourceCommand(ctx context.Context, reservationID, resource, command string) error {
	return r.do(ctx, http.MethodPost,
		reservationPath(reservationID, "/resources/"+url.PathEscape(resource)+"/commands"),
		map[string]string{"command": command}, nil)
}

func (r *REST) GetResourcePositions(ctx context.Context, reservationID string) (map[string]Position, error) {
	var out map[string]Position
	err := r.do(ctx, http.MethodGet, reservationPath(reservationID, "/positions/resources"), nil, &out)
	return out, err
}

func (r *REST) GetServicePositions(ctx context.Context, reservationID string) (map[string]Position, error) {
	var out map[string]Position
	err := r.do(ctx, http.MethodGet, reservationPath(reservationID, "/positions/services"), nil, &out)
	return out, err
}

func (r *REST) AddGroup(ctx context.Context, name, description, role string) error {
	return r.do(ctx, http.MethodPost, "/api/v1/groups", map[string]string{
		"name":        name,
		"description": description,
		"role":        role,
	}, nil)
}

func (r *REST) AddGroupsToDomain(ctx context.Context, domain string, groups []string) error {
	return r.do(ctx, http.MethodPost, "/api/v1/domains/"+url.PathEscape(domain)+"/groups",
		map[string]any{"groups": groups}, nil)
}

func (r *REST) AddUsersToGroup(ctx context.Context, users []string, group string) error {
	return r.do(ctx, http.MethodPost, "/api/v1/groups/"+url.PathEscape(group)+"/users",
		map[string]any{"users": users}, nil)
}

func (r *REST) DeleteGroup(ctx context.Context, name string) error {
	return r.do(ctx, http.MethodDelete, "/api/v1/groups/"+url.PathEscape(name), nil, nil)
}

func (r *REST) GetUser(ctx context.Context, username string) (User, error) {
	var out User
	err := r.do(ctx, http.MethodGet, "/api/v1/users/"+url.PathEscape(username), nil, &out)
	return out, err
}

func (r *REST) AddUser(ctx context.Context, username, password, email string, active bool) error {
	return r.do(ctx, http.MethodPost, "/api/v1/users", map[string]any{
		"name":      username,
		"password":  password,
		"email":     email,
		"is_active": active,
	}, nil)
}

func (r *REST) UpdateUser(ctx context.Context, username, email string, active bool) error {
	return r.do(ctx, http.MethodPut, "/api/v1/users/"+url.PathEscape(username), map[string]any{
		"email":     email,
		"is_active": active,
	}, nil)
}

func (r *REST) UpdateUserPassword(ctx context.Context, username, password string) error {
	return r.do(ctx, http.MethodPut, "/api/v1/users/"+url.PathEscape(username)+"/password",
		map[string]string{"password": password}, nil)
}

func (r *REST) GetSandboxData(ctx context.Context, reservationID string) ([]SandboxDataEntry, error) {
	var out []SandboxDataEntry
	err := r.do(ctx, http.MethodGet, reservationPath(reservationID, "/data"), nil, &out)
	return out, err
}

func (r *REST) SetSandboxData(ctx context.Context, reservationID string, entries []SandboxDataEntry) error {
	return r.do(ctx, http.MethodPut, reservationPath(reservationID, "/data"), entries, nil)
}

var _ Client = (*REST)(nil)
