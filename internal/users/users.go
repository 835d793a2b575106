// Package users manages the platform accounts and the per-training user
// group that trainees are placed in for the duration of a session.
package users

import (
	"context"
	"crypto/rand"
	"fmt"
	"math/big"

	"github.com/rs/zerolog/log"

	"github.com/labfleet/labfleet/internal/automation"
)

const (
	groupDescription = "Group for training users"
	groupRole        = "Regular"
	passwordLength   = 12
)

const passwordAlphabet = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789!@#$%^&*-_=+"

// Service wraps the platform's user and group administration calls.
// The training group is named after the instructor sandbox id so teardown
// can always find it.
type Service struct {
	client automation.Client
}

// NewService returns a user admin service.
func NewService(client automation.Client) *Service {
	return &Service{client: client}
}

// CreateTrainingGroup creates the per-session group and grants it access to
// the training domain.
func (s *Service) CreateTrainingGroup(ctx context.Context, instructorSandboxID, domain string) error {
	log.Debug().Str("group", instructorSandboxID).Str("domain", domain).Msg("creating training users group")

	if err := s.client.AddGroup(ctx, instructorSandboxID, groupDescription, groupRole); err != nil {
		return fmt.Errorf("creating training group: %w", err)
	}
	if err := s.client.AddGroupsToDomain(ctx, domain, []string{instructorSandboxID}); err != nil {
		return fmt.Errorf("adding training group to domain: %w", err)
	}
	return nil
}

// DeleteTrainingGroup removes the per-session group.
func (s *Service) DeleteTrainingGroup(ctx context.Context, instructorSandboxID string) error {
	log.Debug().Str("group", instructorSandboxID).Msg("deleting training users group")
	if err := s.client.DeleteGroup(ctx, instructorSandboxID); err != nil {
		return fmt.Errorf("deleting training group: %w", err)
	}
	return nil
}

// AddUsersToGroup places the trainees in the session group.
func (s *Service) AddUsersToGroup(ctx context.Context, instructorSandboxID string, users []string) error {
	if err := s.client.AddUsersToGroup(ctx, users, instructorSandboxID); err != nil {
		return fmt.Errorf("adding users to training group: %w", err)
	}
	return nil
}

// CreateOrActivateUser makes sure a trainee account exists and is active.
// A missing account is created with a generated password; an existing
// inactive one is re-activated. The platform's "already exists" error on
// create is treated as success, so concurrent setups don't trip each other.
func (s *Service) CreateOrActivateUser(ctx context.Context, user string) error {
	existing, err := s.client.GetUser(ctx, user)
	if err == nil {
		if existing.IsActive {
			return nil
		}
		log.Debug().Str("user", user).Msg("re-activating training user")
		if err := s.client.UpdateUser(ctx, user, user, true); err != nil {
			return fmt.Errorf("activating user %s: %w", user, err)
		}
		return nil
	}

	if !automation.IsCode(err, automation.CodeUserNotFound) {
		return fmt.Errorf("looking up user %s: %w", user, err)
	}

	log.Debug().Str("user", user).Msg("creating training user")
	password, err := GeneratePassword(passwordLength)
	if err != nil {
		return fmt.Errorf("generating password for %s: %w", user, err)
	}
	if err := s.client.AddUser(ctx, user, password, user, true); err != nil {
		if automation.IsCode(err, automation.CodeUserAlreadyExists) {
			return nil
		}
		return fmt.Errorf("creating user %s: %w", user, err)
	}
	return nil
}

// GeneratePassword returns a random password of the given length drawn from
// a mixed alphabet, using crypto/rand.
func GeneratePassword(length int) (string, error) {
	out := make([]byte, length)
	max := big.NewInt(int64(len(passwordAlphabet)))
	for i := range out {
		n, err := rand.Int(rand.Reader, max)
		if err != nil {
			return "", err
		}
		out[i] = passwordAlphabet[n.Int64()]
	}
	return string(out), nil
}
