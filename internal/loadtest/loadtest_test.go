package loadtest

import (
	"bytes"
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yohanns/storefront/internal/store/sqlite"
)

func TestRun(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping load test in short mode")
	}
	db, err := sqlite.Open(filepath.Join(t.TempDir(), "load.db"))
	require.NoError(t, err)
	defer db.Close()

	rep, err := Run(context.Background(), db, Options{Orders: 30, Workers: 6, Artists: 4})
	require.NoError(t, err)

	assert.Zero(t, rep.Checkout.Errors)
	assert.Zero(t, rep.Layout.Errors)
	assert.Equal(t, 30, rep.Checkout.Count)
	assert.Empty(t, rep.Violations)
	assert.LessOrEqual(t, rep.Spread, 1)
	assert.True(t, rep.OK())

	total := 0
	for _, n := range rep.OpenTasks {
		total += n
	}
	assert.Equal(t, 30, total)
	assert.Len(t, rep.OpenTasks, 4)

	var out bytes.Buffer
	rep.Print(&out)
	assert.Contains(t, out.String(), "Checkout (30 ok, 0 errors)")
}

func TestRun_NoArtists(t *testing.T) {
	db, err := sqlite.Open(filepath.Join(t.TempDir(), "load.db"))
	require.NoError(t, err)
	defer db.Close()

	rep, err := Run(context.Background(), db, Options{Orders: 3, Workers: 2})
	require.NoError(t, err)
	// Orders still move to layout; assignment failures show up as
	// uncovered orders.
	assert.Zero(t, rep.Layout.Errors)
	assert.Len(t, rep.Violations, 3)
	assert.False(t, rep.OK())
}

func TestRun_InvalidOptions(t *testing.T) {
	_, err := Run(context.Background(), nil, Options{})
	assert.Error(t, err)
}

func TestComputeLatencyStats(t *testing.T) {
	var ds []time.Duration
	for i := 100; i >= 1; i-- {
		ds = append(ds, time.Duration(i)*time.Millisecond)
	}
	st := computeLatencyStats(ds)
	assert.Equal(t, 100, st.Count)
	assert.Equal(t, time.Millisecond, st.Min)
	assert.Equal(t, 100*time.Millisecond, st.Max)
	assert.Equal(t, 51*time.Millisecond, st.P50)
	assert.Equal(t, 96*time.Millisecond, st.P95)
	assert.Equal(t, 100*time.Millisecond, st.P99)
	assert.Equal(t, 50500*time.Microsecond, st.Mean)

	assert.Equal(t, LatencyStats{}, computeLatencyStats(nil))
}
