package journal

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/twopanel/ftpcore/common"
)

func TestPollControlReturnsAndClearsRequestedAction(t *testing.T) {
	a := assert.New(t)
	store := newTestStore(t)
	uid := common.NewOperationUID()
	require.NoError(t, store.SaveOperation(uid, testParams(), 1000))

	action, err := store.PollControl(uid)
	require.NoError(t, err)
	a.Equal(ControlNone, action)

	require.NoError(t, store.RequestControl(uid, ControlPause))

	action, err = store.PollControl(uid)
	require.NoError(t, err)
	a.Equal(ControlPause, action)

	// Cleared by the first poll, so a second poll sees nothing pending.
	action, err = store.PollControl(uid)
	require.NoError(t, err)
	a.Equal(ControlNone, action)
}

func TestRequestControlOverwritesPendingAction(t *testing.T) {
	a := assert.New(t)
	store := newTestStore(t)
	uid := common.NewOperationUID()
	require.NoError(t, store.SaveOperation(uid, testParams(), 1000))

	require.NoError(t, store.RequestControl(uid, ControlPause))
	require.NoError(t, store.RequestControl(uid, ControlCancel))

	action, err := store.PollControl(uid)
	require.NoError(t, err)
	a.Equal(ControlCancel, action)
}
