// Package portal builds the per-trainee access links handed out when a
// student sandbox is ready.
package portal

import (
	"context"
	"fmt"
)

// TokenIssuer is the slice of the token service the provider needs.
type TokenIssuer interface {
	Login(ctx context.Context) (string, error)
	CreateToken(ctx context.Context, adminToken, user, domain string) (string, error)
}

// StudentLink pairs the issued token with the portal URL carrying it.
type StudentLink struct {
	Token string
	URL   string
}

// Provider issues tokens and formats portal links.
type Provider struct {
	baseURL string
	domain  string
	issuer  TokenIssuer
}

// NewProvider returns a link provider for the given portal and domain.
func NewProvider(baseURL, domain string, issuer TokenIssuer) *Provider {
	return &Provider{baseURL: baseURL, domain: domain, issuer: issuer}
}

// CreateStudentLink issues a fresh token for the user and embeds it in the
// portal URL of their sandbox.
func (p *Provider) CreateStudentLink(ctx context.Context, user, sandboxID string) (StudentLink, error) {
	adminToken, err := p.issuer.Login(ctx)
	if err != nil {
		return StudentLink{}, fmt.Errorf("student link for %s: %w", user, err)
	}

	token, err := p.issuer.CreateToken(ctx, adminToken, user, p.domain)
	if err != nil {
		return StudentLink{}, fmt.Errorf("student link for %s: %w", user, err)
	}

	return StudentLink{
		Token: token,
		URL:   fmt.Sprintf("%s/%s?access=%s", p.baseURL, sandboxID, token),
	}, nil
}
