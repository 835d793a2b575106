// Package tokens is the client for the platform's token microservice, which
// issues the per-user API tokens embedded in student links.
package tokens

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/rs/zerolog/log"
)

// ErrTokenRequest indicates the token service answered with a non-success
// status.
var ErrTokenRequest = errors.New("token service request failed")

// AdminCredentials authenticate the login call.
type AdminCredentials struct {
	Username string
	Password string
	Domain   string
}

// Client talks to the token service over plain HTTP, matching the service's
// own deployment model (it only listens inside the management network).
type Client struct {
	baseURL    string
	creds      AdminCredentials
	httpClient *http.Client
}

// NewClient returns a client for the token service at host:port.
func NewClient(host string, port int, creds AdminCredentials) *Client {
	return &Client{
		baseURL: fmt.Sprintf("http://%s:%d", host, port),
		creds:   creds,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// Login exchanges the admin credentials for an admin token.
func (c *Client) Login(ctx context.Context) (string, error) {
	payload := map[string]string{
		"username": c.creds.Username,
		"password": c.creds.Password,
		"domain":   c.creds.Domain,
	}

	var token string
	if err := c.do(ctx, http.MethodPut, "/api/login", payload, "", &token); err != nil {
		return "", fmt.Errorf("admin login: %w", err)
	}
	return token, nil
}

// CreateToken issues a token for the designated user in the given domain.
func (c *Client) CreateToken(ctx context.Context, adminToken, user, domain string) (string, error) {
	payload := map[string]string{
		"username": user,
		"domain":   domain,
	}

	var token string
	if err := c.do(ctx, http.MethodPost, "/api/Token", payload, adminToken, &token); err != nil {
		return "", fmt.Errorf("creating token for %s: %w", user, err)
	}
	return token, nil
}

// DeleteToken revokes a user token. Failure is logged and reported as
// false rather than returned as an error: token cleanup is best-effort and
// must never block teardown.
func (c *Client) DeleteToken(ctx context.Context, adminToken, userToken string) bool {
	err := c.do(ctx, http.MethodDelete, "/api/Token/"+userToken, nil, adminToken, nil)
	if err != nil {
		log.Warn().Err(err).Msg("failed to delete user token")
		return false
	}
	return true
}

func (c *Client) do(ctx context.Context, method, path string, payload any, adminToken string, out any) error {
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

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if adminToken != "" {
		req.Header.Set("Authorization", "Basic "+adminToken)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%w: %s %s returned %d", ErrTokenRequest, method, path, resp.StatusCode)
	}

	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("decoding token service response: %w", err)
		}
	}
	return nil
}
