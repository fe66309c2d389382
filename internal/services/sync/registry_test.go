package sync_test

import (
	"fmt"
	gosync "sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/TheMichaelB/chatsync/internal/models"
	syncsvc "github.com/TheMichaelB/chatsync/internal/services/sync"
)

func newCheckpoint(t *testing.T, targetID string) *models.Checkpoint {
	t.Helper()
	cp, err := models.NewCheckpoint(targetID)
	require.NoError(t, err)
	return cp
}

func TestRegistrySingleFlight(t *testing.T) {
	registry := syncsvc.NewRegistry()
	cp := newCheckpoint(t, "t1@s.whatsapp.net")

	assert.True(t, registry.Admit("t1@s.whatsapp.net", cp))

	// Second admit for the same target is rejected.
	other := newCheckpoint(t, "t1@s.whatsapp.net")
	assert.False(t, registry.Admit("t1@s.whatsapp.net", other))

	// The original entry is still the one registered.
	assert.Same(t, cp, registry.Get("t1@s.whatsapp.net"))

	// A different target is unaffected.
	assert.True(t, registry.Admit("t2@s.whatsapp.net", newCheckpoint(t, "t2@s.whatsapp.net")))
	assert.Equal(t, 2, registry.Len())
}

func TestRegistryRelease(t *testing.T) {
	registry := syncsvc.NewRegistry()
	cp := newCheckpoint(t, "t1@s.whatsapp.net")

	require.True(t, registry.Admit("t1@s.whatsapp.net", cp))
	registry.Release("t1@s.whatsapp.net")

	assert.Nil(t, registry.Get("t1@s.whatsapp.net"))
	assert.True(t, registry.Admit("t1@s.whatsapp.net", cp))

	// Releasing an absent target is a no-op.
	registry.Release("missing@s.whatsapp.net")
}

func TestRegistryConcurrentAdmit(t *testing.T) {
	registry := syncsvc.NewRegistry()

	const targets = 8
	const workers = 16

	var admitted gosync.Map
	var wg gosync.WaitGroup

	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < targets; i++ {
				target := fmt.Sprintf("chat-%d@s.whatsapp.net", i)
				cp, err := models.NewCheckpoint(target)
				if err != nil {
					t.Error(err)
					return
				}
				if registry.Admit(target, cp) {
					if _, loaded := admitted.LoadOrStore(target, true); loaded {
						t.Errorf("target %s admitted twice", target)
					}
				}
			}
		}()
	}

	wg.Wait()
	assert.Equal(t, targets, registry.Len())
}
