package portal

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubIssuer struct {
	loginErr error
	tokens   map[string]string
}

func (s *stubIssuer) Login(ctx context.Context) (string, error) {
	if s.loginErr != nil {
		return "", s.loginErr
	}
	return "admin-token", nil
}

func (s *stubIssuer) CreateToken(ctx context.Context, adminToken, user, domain string) (string, error) {
	token, ok := s.tokens[user]
	if !ok {
		return "", errors.New("unknown user")
	}
	return token, nil
}

func TestCreateStudentLink(t *testing.T) {
	provider := NewProvider("https://training.example.com", "Training", &stubIssuer{
		tokens: map[string]string{"alice@corp.io": "tok-1"},
	})

	link, err := provider.CreateStudentLink(context.Background(), "alice@corp.io", "res-5")
	require.NoError(t, err)
	assert.Equal(t, "tok-1", link.Token)
	assert.Equal(t, "https://training.example.com/res-5?access=tok-1", link.URL)
}

func TestCreateStudentLinkLoginFailure(t *testing.T) {
	provider := NewProvider("https://training.example.com", "Training", &stubIssuer{
		loginErr: errors.New("service down"),
	})

	_, err := provider.CreateStudentLink(context.Background(), "alice@corp.io", "res-5")
	assert.Error(t, err)
}
