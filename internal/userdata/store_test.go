package userdata

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/labfleet/labfleet/internal/automation"
)

func newTestStore(t *testing.T) (*Store, *automation.Fake) {
	t.Helper()
	fake := automation.NewFake()
	fake.Seed(automation.ReservationDetails{ID: "res-instructor"})
	return NewStore(fake, "res-instructor"), fake
}

func TestStoreUpsert(t *testing.T) {
	store, _ := newTestStore(t)

	store.SetNumericID("alice@corp.io", "1")
	store.SetSandboxID("alice@corp.io", "res-5")
	store.SetToken("alice@corp.io", "tok-abc")
	store.SetStudentLink("alice@corp.io", "https://portal/res-5?access=tok-abc")

	record, ok := store.Get("alice@corp.io")
	require.True(t, ok)
	assert.Equal(t, "1", record.NumericID)
	assert.Equal(t, "res-5", record.SandboxID)
	assert.Equal(t, "tok-abc", record.Token)

	_, ok = store.Get("nobody@corp.io")
	assert.False(t, ok)
}

func TestStoreSaveLoadRoundTrip(t *testing.T) {
	store, fake := newTestStore(t)
	ctx := context.Background()

	store.SetNumericID("alice@corp.io", "1")
	store.SetSandboxID("alice@corp.io", "res-5")
	store.SetNumericID("bob@corp.io", "2")
	require.NoError(t, store.Save(ctx))

	// A fresh store sees what the first one persisted.
	reloaded := NewStore(fake, "res-instructor")
	require.NoError(t, reloaded.Load(ctx))

	record, ok := reloaded.Get("alice@corp.io")
	require.True(t, ok)
	assert.Equal(t, "res-5", record.SandboxID)
	assert.Len(t, reloaded.Users(), 2)
}

func TestStoreLoadEmptyReservation(t *testing.T) {
	store, _ := newTestStore(t)
	require.NoError(t, store.Load(context.Background()))
	assert.Empty(t, store.Users())
}

func TestStoreConcurrentWrites(t *testing.T) {
	store, _ := newTestStore(t)

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			store.SetToken("alice@corp.io", "tok")
		}()
		go func() {
			defer wg.Done()
			store.SetSandboxID("alice@corp.io", "res-1")
		}()
	}
	wg.Wait()

	record, ok := store.Get("alice@corp.io")
	require.True(t, ok)
	assert.Equal(t, "tok", record.Token)
	assert.Equal(t, "res-1", record.SandboxID)
}
