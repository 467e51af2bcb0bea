package logicalday

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func mustInstant(t *testing.T, s string) time.Time {
	t.Helper()
	ts, err := time.Parse(time.RFC3339, s)
	require.NoError(t, err)
	return ts
}

func TestResolveDSTBoundaries(t *testing.T) {
	cases := []struct {
		instant string
		want    string
	}{
		{"2024-03-10T06:59:00Z", "2024-03-10"},
		{"2024-03-10T07:01:00Z", "2024-03-10"},
		{"2024-11-03T06:30:00Z", "2024-11-03"},
		{"2024-03-10T04:59:00Z", "2024-03-09"},
	}
	for _, tc := range cases {
		got, err := Resolve(mustInstant(t, tc.instant), "America/New_York")
		require.NoError(t, err)
		require.Equal(t, tc.want, got.String(), tc.instant)
	}
}

func TestResolveExtremeOffsets(t *testing.T) {
	noon := mustInstant(t, "2024-06-15T12:00:00Z")

	got, err := Resolve(noon, "Pacific/Kiritimati")
	require.NoError(t, err)
	require.Equal(t, "2024-06-16", got.String())

	got, err = Resolve(noon, "Etc/GMT+12")
	require.NoError(t, err)
	require.Equal(t, "2024-06-15", got.String())

	// +05:45 and +05:30 offsets
	late := mustInstant(t, "2024-06-15T18:20:00Z")
	got, err = Resolve(late, "Asia/Kathmandu")
	require.NoError(t, err)
	require.Equal(t, "2024-06-16", got.String())
	got, err = Resolve(late, "Asia/Kolkata")
	require.NoError(t, err)
	require.Equal(t, "2024-06-15", got.String())
}

func TestResolveUnknownTimezoneFallsBack(t *testing.T) {
	instant := mustInstant(t, "2024-01-01T23:30:00Z")
	got, err := Resolve(instant, "Mars/Olympus_Mons")
	require.Error(t, err)
	require.True(t, errors.Is(err, ErrUnknownTimezone))
	var fb *TimezoneFallbackError
	require.True(t, errors.As(err, &fb))
	require.Equal(t, "Mars/Olympus_Mons", fb.Timezone)
	require.Equal(t, "2024-01-01", got.String())

	_, err = Resolve(instant, "Local")
	require.ErrorIs(t, err, ErrUnknownTimezone)

	got, err = Resolve(instant, "")
	require.NoError(t, err)
	require.Equal(t, "2024-01-01", got.String())
}

func TestResolverCachesAndNeverFails(t *testing.T) {
	r := NewResolver(zap.NewNop()).WithClock(func() time.Time {
		return mustInstant(t, "2024-06-15T12:00:00Z")
	})
	require.Equal(t, "2024-06-16", r.Today("Pacific/Kiritimati").String())
	require.Equal(t, "2024-06-15", r.Today("not/a-zone").String())
	require.Same(t, time.UTC, r.Location("not/a-zone"))
	require.Len(t, r.cache, 2)
}
