package quiz

import (
	"fmt"
	"sync"
	"time"
)

// Urgency is the countdown's warning level.
type Urgency string

const (
	UrgencyNone     Urgency = "normal"
	UrgencyWarning  Urgency = "warning"
	UrgencyCritical Urgency = "critical"
)

const (
	warningThreshold  = 30 // seconds
	criticalThreshold = 10
)

// UrgencyFor returns the warning level for the remaining seconds.
func UrgencyFor(remaining int) Urgency {
	switch {
	case remaining <= criticalThreshold:
		return UrgencyCritical
	case remaining <= warningThreshold:
		return UrgencyWarning
	default:
		return UrgencyNone
	}
}

// FormatClock renders seconds as M:SS.
func FormatClock(seconds int) string {
	if seconds < 0 {
		seconds = 0
	}
	return fmt.Sprintf("%d:%02d", seconds/60, seconds%60)
}

// Ticker delivers countdown ticks.
type Ticker interface {
	C() <-chan time.Time
	Stop()
}

type timeTicker struct{ t *time.Ticker }

func (t timeTicker) C() <-chan time.Time { return t.t.C }
func (t timeTicker) Stop()               { t.t.Stop() }

// NewTimeTicker returns a Ticker backed by time.Ticker.
func NewTimeTicker(d time.Duration) Ticker {
	return timeTicker{t: time.NewTicker(d)}
}

// countdown is the cancellable timer owned by an active session. Its
// remaining field is guarded by the session mutex.
type countdown struct {
	remaining int
	ticker    Ticker
	done      chan struct{}
	stopOnce  sync.Once
}

func newCountdown(seconds int, ticker Ticker) *countdown {
	return &countdown{
		remaining: seconds,
		ticker:    ticker,
		done:      make(chan struct{}),
	}
}

// run forwards ticks to onTick until stop is called.
func (c *countdown) run(onTick func(*countdown)) {
	for {
		select {
		case <-c.done:
			return
		case <-c.ticker.C():
			select {
			case <-c.done:
				return
			default:
			}
			onTick(c)
		}
	}
}

func (c *countdown) stop() {
	c.stopOnce.Do(func() {
		c.ticker.Stop()
		close(c.done)
	})
}
