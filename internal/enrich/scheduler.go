package enrich

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"github.com/sells-group/address-helper/pkg/egrn"
)

// Scheduler issues one cadastral request per building with at most limit
// requests holding a permit at any time.
type Scheduler struct {
	requester egrn.Requester
	limit     int
	delay     time.Duration
	listener  *Listener
	log       *zap.Logger
}

// NewScheduler creates a scheduler. limit is clamped to at least 1 and a
// negative delay to 0.
func NewScheduler(r egrn.Requester, limit int, delay time.Duration, l *Listener) *Scheduler {
	if limit < 1 {
		limit = 1
	}
	if delay < 0 {
		delay = 0
	}
	return &Scheduler{
		requester: r,
		limit:     limit,
		delay:     delay,
		listener:  l,
		log:       zap.L().With(zap.String("component", "scheduler")),
	}
}

// Run dispatches the buildings in input order and returns the stream of
// successful responses. The stream closes exactly once: when the task for the
// last building finishes, or when ctx is cancelled and all started tasks have
// returned. OnResponseContinue fires at that moment.
func (s *Scheduler) Run(ctx context.Context, buildings []*Building) <-chan Response {
	st := newStream(s.limit)
	if len(buildings) == 0 {
		s.finish(st)
		return st.ch
	}

	g, gctx := errgroup.WithContext(ctx)
	sem := semaphore.NewWeighted(int64(s.limit))

	go func() {
		for i, b := range buildings {
			if err := sem.Acquire(gctx, 1); err != nil {
				s.log.Debug("dispatch stopped", zap.Int("dispatched", i), zap.Error(err))
				break
			}
			g.Go(func() error {
				s.task(gctx, st, sem, i, len(buildings), b)
				return nil
			})
		}
		_ = g.Wait()
		s.finish(st)
	}()

	return st.ch
}

// task runs one request. The permit is released on the way out unless the
// batch has been cancelled, in which case it is abandoned with the group.
func (s *Scheduler) task(ctx context.Context, st *stream, sem *semaphore.Weighted, index, total int, b *Building) {
	defer func() {
		if ctx.Err() == nil {
			sem.Release(1)
		}
	}()

	last := index == total-1
	resp, err := s.requester.Request(ctx, b.LatLon())
	if err != nil {
		s.logFailure(b, err)
		var re *egrn.ResponseError
		if errors.As(err, &re) {
			s.listener.response(re.StatusCode)
		}
		if last {
			s.finish(st)
		}
		return
	}

	if st.isClosed() {
		s.log.Debug("stream closed, response dropped", zap.String("id", b.ID()))
		return
	}
	s.listener.response(resp.StatusCode)
	if !st.send(ctx, Response{Building: b, Body: string(resp.Body)}) {
		s.log.Debug("response not delivered", zap.String("id", b.ID()))
	}

	if last {
		s.finish(st)
	} else if total-s.limit >= index {
		s.pause(ctx)
	}
}

// finish closes the stream and signals continuation once.
func (s *Scheduler) finish(st *stream) {
	st.close(s.listener.responseContinue)
}

func (s *Scheduler) pause(ctx context.Context) {
	if s.delay <= 0 {
		return
	}
	t := time.NewTimer(s.delay)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}

func (s *Scheduler) logFailure(b *Building, err error) {
	fields := []zap.Field{zap.String("id", b.ID()), zap.Error(err)}
	var re *egrn.ResponseError
	switch {
	case errors.As(err, &re):
		s.log.Warn("cadastral response rejected", append(fields, zap.Int("status", re.StatusCode))...)
	case egrn.IsTimeout(err):
		s.log.Warn("cadastral request timed out", fields...)
	case errors.Is(err, context.Canceled):
		s.log.Debug("cadastral request cancelled", fields...)
	default:
		s.log.Warn("cadastral request failed", fields...)
	}
}
