package notify

import (
	"context"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"golang.org/x/sync/semaphore"
)

// Async runs sends in the background after the caller's work has committed.
// Failures are logged and counted, never returned. Concurrency is bounded
// by a weighted semaphore and each send by a timeout.
type Async struct {
	sender  Sender
	timeout time.Duration
	sem     *semaphore.Weighted
	wg      sync.WaitGroup
	log     zerolog.Logger
	sent    *prometheus.CounterVec
}

func NewAsync(sender Sender, timeout time.Duration, workers int64, logger zerolog.Logger, reg prometheus.Registerer) *Async {
	if workers < 1 {
		workers = 1
	}
	a := &Async{
		sender:  sender,
		timeout: timeout,
		sem:     semaphore.NewWeighted(workers),
		log:     logger.With().Str("component", "notify").Logger(),
		sent: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "billing",
			Name:      "notifications_total",
			Help:      "Notification attempts by kind and result.",
		}, []string{"kind", "result"}),
	}
	if reg != nil {
		reg.MustRegister(a.sent)
	}
	return a
}

// Go schedules a send and returns immediately.
func (a *Async) Go(to string, kind Kind, data Data) {
	if to == "" {
		a.log.Warn().Str("kind", string(kind)).Msg("skipping notification without recipient")
		return
	}
	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		ctx, cancel := context.WithTimeout(context.Background(), a.timeout)
		defer cancel()

		if err := a.sem.Acquire(ctx, 1); err != nil {
			a.sent.WithLabelValues(string(kind), "dropped").Inc()
			a.log.Warn().Err(err).Str("kind", string(kind)).Msg("notification dropped: no free worker before timeout")
			return
		}
		defer a.sem.Release(1)

		if err := a.sender.Send(ctx, to, kind, data); err != nil {
			a.sent.WithLabelValues(string(kind), "failed").Inc()
			a.log.Warn().Err(err).Str("kind", string(kind)).Msg("notification failed")
			return
		}
		a.sent.WithLabelValues(string(kind), "sent").Inc()
		a.log.Debug().Str("kind", string(kind)).Msg("notification sent")
	}()
}

// Wait blocks until every scheduled send has finished or ctx is done.
func (a *Async) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		a.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
