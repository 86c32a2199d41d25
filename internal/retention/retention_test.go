package retention

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"cardstate/pkg/models"
	"cardstate/pkg/store"
)

func TestRunOnce_PurgesOldReadNotifications(t *testing.T) {
	require.NoError(t, store.Open(t.TempDir()))
	t.Cleanup(func() { require.NoError(t, store.Close()) })

	old := time.Now().UTC().Add(-48 * time.Hour).UnixNano()
	fresh := time.Now().UTC().UnixNano()
	require.NoError(t, store.SaveNotification(&models.Notification{ID: "n1", ContextID: "ctx1", Read: true, Created: old}))
	require.NoError(t, store.SaveNotification(&models.Notification{ID: "n2", ContextID: "ctx1", Read: false, Created: old}))
	require.NoError(t, store.SaveNotification(&models.Notification{ID: "n3", ContextID: "ctx1", Read: true, Created: fresh}))

	require.NoError(t, RunOnce(24*time.Hour, false))

	left, err := store.ListNotifications("ctx1")
	require.NoError(t, err)
	require.Len(t, left, 2)
	for _, n := range left {
		require.NotEqual(t, "n1", n.ID)
	}
}

func TestRunOnce_DryRunKeepsEverything(t *testing.T) {
	require.NoError(t, store.Open(t.TempDir()))
	t.Cleanup(func() { require.NoError(t, store.Close()) })

	old := time.Now().UTC().Add(-48 * time.Hour).UnixNano()
	require.NoError(t, store.SaveNotification(&models.Notification{ID: "n1", ContextID: "ctx1", Read: true, Created: old}))

	require.NoError(t, RunOnce(24*time.Hour, true))

	left, err := store.ListNotifications("ctx1")
	require.NoError(t, err)
	require.Len(t, left, 1)
}
