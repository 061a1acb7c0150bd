package txmanager

import (
	"context"
	"sync"
	"time"

	"msgtx/log"
)

// Reaper rolls back global branches that were started and then abandoned:
// ACTIVE, not associated with any caller and idle for longer than the
// factory's Timeout.
type Reaper struct {
	ctx  context.Context
	stop context.CancelFunc
	done chan struct{}
	xids *XidManager
	opts *Options
}

// StartReaper launches the polling loop. Stop must be called to release it.
func (m *XidManager) StartReaper(ctx context.Context) *Reaper {
	ctx, cancel := context.WithCancel(ctx)
	r := &Reaper{
		ctx:  ctx,
		stop: cancel,
		done: make(chan struct{}),
		xids: m,
		opts: m.f.opts,
	}
	go r.run()
	return r
}

// Stop cancels the loop and waits for it to exit.
func (r *Reaper) Stop() {
	r.stop()
	<-r.done
}

func (r *Reaper) run() {
	defer close(r.done)

	var tick time.Duration
	var err error
	for {
		if err == nil {
			tick = r.opts.MonitorTick
		} else {
			// back off while rollbacks keep failing
			tick = r.backOffTick(tick)
		}
		select {
		case <-r.ctx.Done():
			return
		case <-time.After(tick):
			_, err = r.reap(r.ctx)
		}
	}
}

func (r *Reaper) backOffTick(tick time.Duration) time.Duration {
	if tick > r.opts.MonitorTick<<3 {
		return tick
	}
	return tick << 1
}

// reap rolls back every expired branch concurrently and returns how many were
// rolled back together with the first failure.
func (r *Reaper) reap(ctx context.Context) (int, error) {
	cutoff := time.Now().Add(-r.opts.Timeout)
	var expired []*XidParticipant
	for _, p := range r.xids.reg.snapshot() {
		if p.idleSince(cutoff) {
			expired = append(expired, p)
		}
	}
	if len(expired) == 0 {
		return 0, nil
	}

	errCh := make(chan error)
	go func() {
		var wg sync.WaitGroup
		for _, p := range expired {
			p := p
			wg.Add(1)
			go func() {
				defer wg.Done()
				id := p.PersistentTranID()
				if err := r.xids.Rollback(ctx, id); err != nil {
					log.ErrorContextf(ctx, "reaper rollback of %s failed: %v", id, err)
					errCh <- err
					return
				}
				log.InfoContextf(ctx, "reaper rolled back idle transaction %s", id)
			}()
		}
		wg.Wait()
		close(errCh)
	}()

	var firstErr error
	failed := 0
	for err := range errCh {
		failed++
		if firstErr == nil {
			firstErr = err
		}
	}
	return len(expired) - failed, firstErr
}
