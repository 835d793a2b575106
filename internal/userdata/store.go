// Package userdata keeps the per-trainee artifacts produced during setup
// (numeric id, sandbox id, token, student link) and round-trips them through
// the reservation's opaque key/value store so teardown can find them later.
package userdata

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/labfleet/labfleet/internal/automation"
)

// usersDataKey is the well-known sandbox-data key the whole store is
// serialized under.
const usersDataKey = "users_dict"

// Record is everything the workflow derives for one trainee.
type Record struct {
	NumericID   string `json:"id"`
	SandboxID   string `json:"sandbox_id"`
	Token       string `json:"token"`
	StudentLink string `json:"student_link"`
}

// Store is a mutex-guarded user → Record map. It must stay safe for
// concurrent use even though the reference workflow drives it sequentially.
type Store struct {
	client        automation.Client
	reservationID string

	mu   sync.Mutex
	data map[string]*Record
}

// NewStore returns a Store persisted on the given reservation.
func NewStore(client automation.Client, reservationID string) *Store {
	return &Store{
		client:        client,
		reservationID: reservationID,
		data:          make(map[string]*Record),
	}
}

func (s *Store) upsert(user string, update func(*Record)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	record, ok := s.data[user]
	if !ok {
		record = &Record{}
		s.data[user] = record
	}
	update(record)
}

// SetNumericID records the trainee's 1-based ordinal id.
func (s *Store) SetNumericID(user, id string) {
	s.upsert(user, func(r *Record) { r.NumericID = id })
}

// SetSandboxID records the trainee's reservation id.
func (s *Store) SetSandboxID(user, sandboxID string) {
	s.upsert(user, func(r *Record) { r.SandboxID = sandboxID })
}

// SetToken records the trainee's access token.
func (s *Store) SetToken(user, token string) {
	s.upsert(user, func(r *Record) { r.Token = token })
}

// SetStudentLink records the trainee's portal link.
func (s *Store) SetStudentLink(user, link string) {
	s.upsert(user, func(r *Record) { r.StudentLink = link })
}

// Get returns a copy of the user's record.
func (s *Store) Get(user string) (Record, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	record, ok := s.data[user]
	if !ok {
		return Record{}, false
	}
	return *record, true
}

// Users returns every user with a record, in no particular order.
func (s *Store) Users() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	users := make([]string, 0, len(s.data))
	for user := range s.data {
		users = append(users, user)
	}
	return users
}

// Records returns a copy of the whole map, for read-only surfaces.
func (s *Store) Records() map[string]Record {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]Record, len(s.data))
	for user, record := range s.data {
		out[user] = *record
	}
	return out
}

// Load replaces the in-memory cache with whatever is stored on the
// reservation. A reservation without stored data yields an empty store.
func (s *Store) Load(ctx context.Context) error {
	entries, err := s.client.GetSandboxData(ctx, s.reservationID)
	if err != nil {
		return fmt.Errorf("loading users data: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.data = make(map[string]*Record)
	for _, entry := range entries {
		if entry.Key != usersDataKey {
			continue
		}
		if err := json.Unmarshal([]byte(entry.Value), &s.data); err != nil {
			return fmt.Errorf("parsing users data: %w", err)
		}
		break
	}
	return nil
}

// Save writes the current cache back to the reservation.
func (s *Store) Save(ctx context.Context) error {
	s.mu.Lock()
	payload, err := json.Marshal(s.data)
	s.mu.Unlock()
	if err != nil {
		return fmt.Errorf("serializing users data: %w", err)
	}

	err = s.client.SetSandboxData(ctx, s.reservationID, []automation.SandboxDataEntry{
		{Key: usersDataKey, Value: string(payload)},
	})
	if err != nil {
		return fmt.Errorf("saving users data: %w", err)
	}
	return nil
}
