package lifecycle

import (
	"context"
	"time"
)

// Run drives status polling for every non-terminal session until ctx is
// canceled. Sessions are multiplexed onto one scheduler tick; each session is
// polled in its own goroutine so a slow provider round trip for one call
// never delays the others. Terminal sessions drop out of ListActive and stop
// being polled automatically.
func (m *Manager) Run(ctx context.Context) {
	t := time.NewTicker(m.cfg.PollInterval)
	defer t.Stop()

	m.log.Info("status poller started", "interval", m.cfg.PollInterval.String())
	for {
		select {
		case <-ctx.Done():
			m.log.Info("status poller stopped")
			return
		case <-t.C:
			for _, sess := range m.store.ListActive() {
				id := sess.ID
				go func() {
					pollCtx, cancel := context.WithTimeout(ctx, m.cfg.PollInterval*2)
					defer cancel()
					if _, err := m.PollStatus(pollCtx, id); err != nil {
						m.log.Error("poll failed", "call_id", id, "err", err)
					}
				}()
			}
		}
	}
}
