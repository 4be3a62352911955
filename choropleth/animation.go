package choropleth

import (
	"log"
	"slices"
	"sync"
	"sync/atomic"
	"time"
)

// Dispatcher runs functions on the goroutine that owns a Widget.
type Dispatcher interface {
	Post(fn func(*Widget)) bool
}

// Animator steps the shown column through a fixed sequence, one column per
// tick. Ticks before the widget is ready are no-ops. Without loop the
// animator stops itself on the first tick after the last column.
type Animator struct {
	columns  []string
	loop     bool
	interval time.Duration

	frame    int // Only touched by Tick, on the widget's goroutine
	stopped  atomic.Bool
	done     chan struct{}
	stopOnce sync.Once
}

// NewAnimator returns an animator that does nothing until driven by Tick or
// Start.
func NewAnimator(interval time.Duration, columns []string, loop bool) *Animator {
	return &Animator{
		columns:  slices.Clone(columns),
		loop:     loop,
		interval: interval,
		done:     make(chan struct{}),
	}
}

// Start posts a Tick to d every interval until the animator stops.
func (a *Animator) Start(d Dispatcher) {
	if a.interval <= 0 {
		return
	}
	go func() {
		ticker := time.NewTicker(a.interval)
		defer ticker.Stop()
		for {
			select {
			case <-a.done:
				return
			case <-ticker.C:
				if !d.Post(a.Tick) {
					a.Stop()
					return
				}
			}
		}
	}()
}

// Tick advances the animation by one frame on w. It must run on the
// widget's goroutine.
func (a *Animator) Tick(w *Widget) {
	if a.stopped.Load() || !w.Ready() {
		return
	}
	if a.frame >= len(a.columns) {
		if !a.loop || len(a.columns) == 0 {
			a.Stop()
			return
		}
		a.frame = 0
	}
	column := a.columns[a.frame]
	a.frame++
	if err := w.showColumn(column); err != nil {
		log.Printf("[widget] animation frame %q: %v", column, err)
	}
}

// Stop halts the animator. It is safe to call more than once and from any
// goroutine. Ticks that run after Stop are no-ops.
func (a *Animator) Stop() {
	a.stopOnce.Do(func() {
		a.stopped.Store(true)
		close(a.done)
	})
}

// Stopped reports whether the animator has stopped.
func (a *Animator) Stopped() bool {
	return a.stopped.Load()
}

// Done is closed when the animator stops.
func (a *Animator) Done() <-chan struct{} {
	return a.done
}

// Frame returns the position of the next column to show.
func (a *Animator) Frame() int {
	return a.frame
}
