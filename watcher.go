package authclient

import (
	"context"
	"sync"
	"time"
)

// Ticker is the part of *time.Ticker the Watcher uses.
type Ticker interface {
	C() <-chan time.Time
	Stop()
}

// TickerFactory creates tickers for the Watcher.
type TickerFactory func(d time.Duration) Ticker

type timeTicker struct {
	t *time.Ticker
}

func (t timeTicker) C() <-chan time.Time { return t.t.C }
func (t timeTicker) Stop()               { t.t.Stop() }

func newTimeTicker(d time.Duration) Ticker {
	return timeTicker{t: time.NewTicker(d)}
}

// Watcher periodically compares the provider's live authenticated flag with
// the session and corrects drift through the controller, catching events the
// provider failed to deliver.
type Watcher struct {
	controller *Controller
	interval   time.Duration
	newTicker  TickerFactory
	logger     Logger

	startOnce sync.Once
	stopOnce  sync.Once
	startErr  error
	stop      chan struct{}
	done      chan struct{}
}

// WatcherOption configures a Watcher.
type WatcherOption func(*Watcher)

// WithWatchInterval overrides the controller's configured interval.
func WithWatchInterval(d time.Duration) WatcherOption {
	return func(w *Watcher) {
		if d > 0 {
			w.interval = d
		}
	}
}

// WithTickerFactory replaces time.NewTicker.
func WithTickerFactory(factory TickerFactory) WatcherOption {
	return func(w *Watcher) {
		if factory != nil {
			w.newTicker = factory
		}
	}
}

// NewWatcher creates a Watcher for controller.
func NewWatcher(controller *Controller, opts ...WatcherOption) *Watcher {
	w := &Watcher{
		controller: controller,
		interval:   controller.config.WatchInterval,
		newTicker:  newTimeTicker,
		logger:     controller.logger,
		stop:       make(chan struct{}),
		done:       make(chan struct{}),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(w)
		}
	}
	return w
}

// Start launches the watch loop. Only the first call has an effect; later
// calls return the first call's result. It refuses to run when the
// controller started non-interactive.
func (w *Watcher) Start(ctx context.Context) error {
	w.startOnce.Do(func() {
		if w.controller.NonInteractive() {
			w.startErr = ErrNonInteractive
			close(w.done)
			return
		}

		ticker := w.newTicker(w.interval)
		w.logger.Debug("session watcher started, interval=%s", w.interval)
		go w.run(ctx, ticker)
	})
	return w.startErr
}

// Check runs a single reconciliation against the provider.
func (w *Watcher) Check(ctx context.Context) bool {
	return w.controller.Reconcile(ctx, w.controller.provider.Authenticated())
}

// Stop ends the watch loop and waits for it to exit. Safe to call more than
// once, and before Start.
func (w *Watcher) Stop() {
	w.stopOnce.Do(func() {
		close(w.stop)
	})
	w.startOnce.Do(func() {
		close(w.done)
	})
	<-w.done
}

// Done is closed when the watch loop exited.
func (w *Watcher) Done() <-chan struct{} {
	return w.done
}

func (w *Watcher) run(ctx context.Context, ticker Ticker) {
	defer close(w.done)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-w.stop:
			return
		case <-ticker.C():
			w.Check(ctx)
		}
	}
}
