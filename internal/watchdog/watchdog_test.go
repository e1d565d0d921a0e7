package watchdog

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flybeeper/fsd-airspace/internal/clock"
	"github.com/flybeeper/fsd-airspace/internal/models"
	"github.com/flybeeper/fsd-airspace/pkg/utils"
)

var t0 = time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)

func newTestWatchdog(t *testing.T, timeout time.Duration) (*Watchdog, *clock.Manual) {
	clk := clock.NewManual(t0)
	w, err := New("aircraft", timeout, clk, utils.NewLogger("debug", "text"))
	require.NoError(t, err)
	return w, clk
}

func TestNew_RequiresLogger(t *testing.T) {
	_, err := New("aircraft", time.Second, nil, nil)
	assert.Error(t, err)

	w, err := New("generic", 0, nil, utils.NewLogger("info", "text"))
	require.NoError(t, err)
	assert.Equal(t, DefaultTimeout, w.Timeout())
}

func TestCheckTimeouts_EmitsExactlyOnce(t *testing.T) {
	w, clk := newTestWatchdog(t, 15*time.Second)

	var events []models.Callsign
	w.TimedOut.Connect(func(e Expired) { events = append(events, e.Callsign) })

	w.Touch("DLH123")
	clk.Advance(15 * time.Second)
	// Ровно на границе таймаута позывной еще жив
	assert.Empty(t, w.CheckTimeouts())

	clk.Advance(time.Millisecond)
	assert.Equal(t, []models.Callsign{"DLH123"}, w.CheckTimeouts())
	assert.Equal(t, []models.Callsign{"DLH123"}, events)

	// Повторная проверка не сообщает снова
	clk.Advance(time.Minute)
	assert.Empty(t, w.CheckTimeouts())
	assert.Len(t, events, 1)
	assert.False(t, w.Contains("DLH123"))
}

func TestExpire_ReportsLastActivity(t *testing.T) {
	w, clk := newTestWatchdog(t, 10*time.Second)

	w.Touch("BAW1")
	touched := clk.Now()
	clk.Advance(3 * time.Second)
	w.Touch("BAW1")
	last := clk.Now()
	clk.Advance(11 * time.Second)

	expired := w.Expire()
	require.Len(t, expired, 1)
	assert.Equal(t, models.Callsign("BAW1"), expired[0].Callsign)
	assert.Equal(t, touched, expired[0].FirstSeen)
	assert.Equal(t, last, expired[0].LastActivity)
	assert.Empty(t, w.Expire())
}

func TestTouch_RefreshesTimestampOnly(t *testing.T) {
	w, clk := newTestWatchdog(t, 10*time.Second)

	w.Touch("AFR1")
	clk.Advance(8 * time.Second)
	w.Touch("AFR1")
	assert.Equal(t, 1, w.Count())

	first, ok := w.FirstSeen("AFR1")
	require.True(t, ok)
	assert.Equal(t, t0, first)

	last, ok := w.LastActivity("AFR1")
	require.True(t, ok)
	assert.Equal(t, t0.Add(8*time.Second), last)

	clk.Advance(8 * time.Second)
	assert.Empty(t, w.CheckTimeouts())
}

func TestRemove_Idempotent(t *testing.T) {
	w, clk := newTestWatchdog(t, time.Second)

	var events int
	w.TimedOut.Connect(func(Expired) { events++ })

	assert.False(t, w.Remove("NOBODY"))
	w.Touch("BAW9")
	assert.True(t, w.Remove("BAW9"))
	assert.False(t, w.Remove("BAW9"))

	clk.Advance(time.Hour)
	assert.Empty(t, w.CheckTimeouts())
	assert.Zero(t, events)
}

func TestRemoveAll(t *testing.T) {
	w, clk := newTestWatchdog(t, time.Second)
	w.Touch("A1")
	w.Touch("B2")

	assert.Equal(t, 2, w.RemoveAll())
	clk.Advance(time.Hour)
	assert.Empty(t, w.CheckTimeouts())
}

func TestDisabled_NoTimeouts(t *testing.T) {
	w, clk := newTestWatchdog(t, time.Second)
	w.SetEnabled(false)

	w.Touch("DLH1")
	clk.Advance(time.Hour)
	assert.Empty(t, w.CheckTimeouts())
	assert.True(t, w.Contains("DLH1"))

	// Touch и Remove продолжают работать
	assert.True(t, w.Remove("DLH1"))

	w.Touch("DLH2")
	w.SetEnabled(true)
	clk.Advance(2 * time.Second)
	assert.Equal(t, []models.Callsign{"DLH2"}, w.CheckTimeouts())
}

func TestCheckTimeouts_SortedAndConcurrentSafe(t *testing.T) {
	w, clk := newTestWatchdog(t, time.Second)

	var wg sync.WaitGroup
	for _, cs := range []models.Callsign{"C3", "A1", "B2"} {
		wg.Add(1)
		go func(cs models.Callsign) {
			defer wg.Done()
			for i := 0; i < 100; i++ {
				w.Touch(cs)
			}
		}(cs)
	}
	wg.Wait()

	clk.Advance(2 * time.Second)
	assert.Equal(t, []models.Callsign{"A1", "B2", "C3"}, w.CheckTimeouts())
}

func TestRun_StopsOnCancel(t *testing.T) {
	w, clk := newTestWatchdog(t, time.Second)
	w.Touch("X1")
	clk.Advance(2 * time.Second)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		w.Run(ctx, 5*time.Millisecond)
		close(done)
	}()

	assert.Eventually(t, func() bool { return !w.Contains("X1") }, time.Second, 5*time.Millisecond)
	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Run did not stop")
	}
}
