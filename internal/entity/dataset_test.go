package entity

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestStatusApply(t *testing.T) {
	testCases := []struct {
		name     string
		initial  Status
		update   StatusUpdate
		expected Status
	}{
		{
			name:     "settle clears error and new",
			initial:  Status{New: true, Error: true},
			update:   Settle(),
			expected: Status{},
		},
		{
			name:     "settle clears everything",
			initial:  Status{New: true, Modified: true, Stale: true, Error: true},
			update:   Settle(),
			expected: Status{},
		},
		{
			name:     "fail keeps other flags",
			initial:  Status{Modified: true},
			update:   Fail(),
			expected: Status{Modified: true, Error: true},
		},
		{
			name:     "empty update",
			initial:  Status{Stale: true},
			update:   StatusUpdate{},
			expected: Status{Stale: true},
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			require.Equal(t, tc.expected, tc.initial.Apply(tc.update))
		})
	}
}

func TestStatusSettled(t *testing.T) {
	require.True(t, Status{}.Settled())

	for _, f := range Flags {
		st := Status{}.Apply(StatusUpdate{f: true})
		require.False(t, st.Settled(), f)
		require.True(t, st.Get(f), f)
	}
}

func TestSyncSummaryInterrupted(t *testing.T) {
	require.False(t, (&SyncSummary{Selected: 3, Attempted: 3}).Interrupted())
	require.True(t, (&SyncSummary{Selected: 3, Attempted: 1}).Interrupted())
}
