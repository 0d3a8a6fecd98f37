package playback

import (
	"context"
	"time"
)

// play emits the run's samples in order. Cancellation is checked before and
// after every wait; a persistence write already under way is allowed to
// finish.
func (s *Scheduler) play(h *handle) {
	defer s.wg.Done()
	defer close(h.done)
	defer s.finish(h)

	run := h.run
	timer := time.NewTimer(0)
	if !timer.Stop() {
		<-timer.C
	}
	defer timer.Stop()

	for i, p := range run.DataPoints {
		if h.ctx.Err() != nil {
			return
		}
		if i > 0 && run.WaitTimes[i] > 0 {
			timer.Reset(time.Duration(run.WaitTimes[i]) * time.Millisecond)
			select {
			case <-h.ctx.Done():
				return
			case <-timer.C:
			}
			if h.ctx.Err() != nil {
				return
			}
		}

		s.sink.Sample(run.ID, p)
		s.samplesSent.Add(h.ctx, 1)
		if err := s.store.PutSample(context.WithoutCancel(h.ctx), run.ID, i, p); err != nil {
			s.persistErrors.Add(h.ctx, 1)
			s.logger.Warn("playback: persist sample failed", "run_id", run.ID, "index", i, "error", err)
		}
	}
	s.logger.Info("playback: run completed", "run_id", run.ID, "samples", len(run.DataPoints))
}

// finish removes the run from the active table (if Stop has not already)
// and reports the end of the run exactly once.
func (s *Scheduler) finish(h *handle) {
	s.removeIfPresent(h)
	h.cancel()
	s.sink.RunEnded(h.run.ID)
}
