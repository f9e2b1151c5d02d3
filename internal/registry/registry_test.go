package registry

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/shopindex/shopindex/internal/catalog"
)

type fixedClock struct{ t time.Time }

func (c fixedClock) Now() time.Time { return c.t }

func TestStartRejectsActiveSlug(t *testing.T) {
	t.Parallel()

	reg := New(fixedClock{t: time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)})

	entry, err := reg.Start("acme", "index")
	require.NoError(t, err)
	require.NotEmpty(t, entry.RunID())

	_, err = reg.Start("acme", "refresh")
	var active *ErrRunActive
	require.ErrorAs(t, err, &active)
	require.Equal(t, "acme", active.Slug)
	require.Equal(t, entry.RunID(), active.RunID)

	// A different slug is independent.
	_, err = reg.Start("other", "index")
	require.NoError(t, err)
	require.Equal(t, 2, reg.ActiveRuns())
}

func TestStartAllowedAfterTerminalState(t *testing.T) {
	t.Parallel()

	reg := New(nil)
	first, err := reg.Start("acme", "index")
	require.NoError(t, err)
	first.Finish(catalog.RunFailed, "boom", nil)

	second, err := reg.Start("acme", "refresh")
	require.NoError(t, err)
	require.NotEqual(t, first.RunID(), second.RunID())

	// The registry serves the newest run for the slug.
	require.Equal(t, second.RunID(), reg.Get("acme").RunID())
}

func TestFinishIsSetOnce(t *testing.T) {
	t.Parallel()

	reg := New(nil)
	entry, err := reg.Start("acme", "index")
	require.NoError(t, err)
	entry.MarkRunning()

	at := time.Date(2026, 8, 2, 9, 0, 0, 0, time.UTC)
	entry.Finish(catalog.RunCompleted, "", &at)
	entry.Finish(catalog.RunFailed, "late failure is ignored", nil)

	status := entry.Status()
	require.Equal(t, catalog.RunCompleted, status.State)
	require.Empty(t, status.LastError)
	require.Equal(t, &at, status.LastIndexedAt)
	require.True(t, entry.Finished())
	require.Zero(t, reg.ActiveRuns())
}

func TestMarkRunningAfterFinishIgnored(t *testing.T) {
	t.Parallel()

	reg := New(nil)
	entry, err := reg.Start("acme", "index")
	require.NoError(t, err)
	entry.Finish(catalog.RunFailed, "boom", nil)
	entry.MarkRunning()
	require.Equal(t, catalog.RunFailed, entry.Status().State)
}

func TestAddStatsConcurrent(t *testing.T) {
	t.Parallel()

	reg := New(nil)
	entry, err := reg.Start("acme", "index")
	require.NoError(t, err)

	var wg sync.WaitGroup
	for w := 0; w < 10; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 100; i++ {
				entry.AddStats(catalog.RunStats{Crawled: 1, Errors: 1})
			}
		}()
	}
	wg.Wait()

	stats := entry.Stats()
	require.Equal(t, 1000, stats.Crawled)
	require.Equal(t, 1000, stats.Errors)
}

func TestStatusView(t *testing.T) {
	t.Parallel()

	now := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	reg := New(fixedClock{t: now})
	entry, err := reg.Start("acme", "index")
	require.NoError(t, err)
	entry.MarkRunning()
	entry.AddStats(catalog.RunStats{Discovered: 40, Crawled: 12, SitemapsVisited: 3, SkippedUnchanged: 5})
	entry.SetWarning("no products found")
	entry.SetWarning("second warning dropped")

	status := entry.Status()
	require.Equal(t, "acme", status.Slug)
	require.Equal(t, catalog.RunRunning, status.State)
	require.Equal(t, 40, status.Discovered)
	require.Equal(t, 12, status.Crawled)
	require.Equal(t, 3, status.SitemapsVisited)
	require.Equal(t, 5, status.SkippedUnchanged)
	require.Equal(t, "no products found", status.Warning)
	require.Equal(t, now, *status.StartedAt)
	require.Nil(t, reg.Get("missing"))
}
