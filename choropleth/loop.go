package choropleth

import (
	"context"
	"log"
	"strings"
	"sync"
)

// Loop runs every operation on its Widget from a single goroutine, one
// event at a time.
type Loop struct {
	w     *Widget
	jobs  chan func(*Widget)
	done  chan struct{}
	once  sync.Once
	start sync.Once
}

// NewLoop wraps w. Animations set up on w afterwards tick through the loop.
func NewLoop(w *Widget) *Loop {
	l := &Loop{
		w:    w,
		jobs: make(chan func(*Widget), 64),
		done: make(chan struct{}),
	}
	w.dispatcher = l
	return l
}

// Start runs the loop in a new goroutine until ctx is cancelled.
func (l *Loop) Start(ctx context.Context) {
	l.start.Do(func() {
		go l.run(ctx)
	})
}

func (l *Loop) run(ctx context.Context) {
	defer l.close()
	for {
		select {
		case <-ctx.Done():
			l.w.StopAnimation()
			return
		case fn := <-l.jobs:
			fn(l.w)
		}
	}
}

func (l *Loop) close() {
	l.once.Do(func() { close(l.done) })
}

// Done is closed once the loop has stopped.
func (l *Loop) Done() <-chan struct{} {
	return l.done
}

// Post queues fn without waiting for it to run. It reports false when the
// loop has stopped.
func (l *Loop) Post(fn func(*Widget)) bool {
	select {
	case <-l.done:
		return false
	default:
	}
	select {
	case l.jobs <- fn:
		return true
	case <-l.done:
		return false
	}
}

// Do runs fn on the loop and waits for its result.
func (l *Loop) Do(ctx context.Context, fn func(*Widget) error) error {
	result := make(chan error, 1)
	job := func(w *Widget) { result <- fn(w) }

	select {
	case l.jobs <- job:
	case <-l.done:
		return ErrLoopClosed
	case <-ctx.Done():
		return ctx.Err()
	}

	select {
	case err := <-result:
		return err
	case <-l.done:
		return ErrLoopClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

// State returns a snapshot of the widget taken on the loop.
func (l *Loop) State(ctx context.Context) (State, error) {
	var st State
	err := l.Do(ctx, func(w *Widget) error {
		st = w.State()
		return nil
	})
	return st, err
}

// LoadSource loads a dataset from a file path or an http(s) URL. The widget
// is not ready while the dataset is fetched; the fetch itself runs off the
// loop. onFinish, when non-nil, runs on the loop after a successful load.
func (l *Loop) LoadSource(ctx context.Context, source string, override DataConfig, onFinish func(*Widget), opts ...FetchOption) error {
	if err := l.Do(ctx, func(w *Widget) error {
		w.MarkLoading()
		return nil
	}); err != nil {
		return err
	}

	ds, err := readDataset(ctx, source, opts...)
	if err != nil {
		log.Printf("[widget] loading %s: %v", source, err)
		_ = l.Do(ctx, func(w *Widget) error {
			w.LoadFailed(err)
			return nil
		})
		return err
	}

	return l.Do(ctx, func(w *Widget) error {
		meta, err := ds.Resolve(override)
		if err != nil {
			w.LoadFailed(err)
			return err
		}
		if err := w.Load(ds, meta); err != nil {
			return err
		}
		if onFinish != nil {
			onFinish(w)
		}
		return nil
	})
}

func readDataset(ctx context.Context, source string, opts ...FetchOption) (*Dataset, error) {
	if strings.HasPrefix(source, "http://") || strings.HasPrefix(source, "https://") {
		return FetchDataset(ctx, source, opts...)
	}
	return LoadDatasetFile(source)
}
