package status

import (
	"context"
	"time"

	"github.com/pelletier/go-toml/v2"
	"go.uber.org/zap"

	"github.com/mgrindstad/replayd/internal/infra"
)

// DefaultPublishInterval is how often the status file is rewritten.
const DefaultPublishInterval = time.Second

// Publisher periodically serializes the tracker to the status file. Writes
// are atomic (temp file + rename) so pollers never read a torn document.
// Publish failures are logged and retried on the next tick, never fatal.
type Publisher struct {
	tracker  *Tracker
	path     string
	interval time.Duration
	logger   *zap.Logger
}

// NewPublisher returns a publisher writing tracker snapshots to path.
func NewPublisher(tracker *Tracker, path string, logger *zap.Logger) *Publisher {
	return &Publisher{
		tracker:  tracker,
		path:     path,
		interval: DefaultPublishInterval,
		logger:   logger,
	}
}

// Publish writes one snapshot immediately. Used on startup-failure paths
// where the periodic loop never gets to run.
func (p *Publisher) Publish() {
	p.publish()
}

// Run publishes until ctx is canceled, then writes one final snapshot so the
// file reflects the shutdown state.
func (p *Publisher) Run(ctx context.Context) {
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	p.publish()
	for {
		select {
		case <-ctx.Done():
			p.publish()
			return
		case <-ticker.C:
			p.publish()
		}
	}
}

func (p *Publisher) publish() {
	snap := p.tracker.Snapshot()
	data, err := toml.Marshal(snap)
	if err != nil {
		p.logger.Warn("failed to encode status", zap.Error(err))
		return
	}
	if err := infra.WriteFileAtomic(p.path, data, 0o644); err != nil {
		p.logger.Warn("failed to write status file", zap.String("path", p.path), zap.Error(err))
	}
}
