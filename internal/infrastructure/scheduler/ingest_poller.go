package scheduler

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	ingestapp "github.com/timberdayz/datahub/internal/application/ingest"
)

// IngestPoller sweeps the catalog for pending files on a fixed interval
// and runs them through the orchestrator. Sweeps never overlap; a long
// sweep just delays the next one.
type IngestPoller struct {
	orchestrator *ingestapp.Orchestrator
	interval     time.Duration
	batchLimit   int
	logger       *zap.Logger

	cancel  context.CancelFunc
	wg      sync.WaitGroup
	mu      sync.Mutex
	running bool
}

// NewIngestPoller creates the pending-file poller
func NewIngestPoller(orchestrator *ingestapp.Orchestrator, interval time.Duration, batchLimit int, logger *zap.Logger) *IngestPoller {
	if interval <= 0 {
		interval = 30 * time.Second
	}
	if batchLimit <= 0 {
		batchLimit = 50
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &IngestPoller{
		orchestrator: orchestrator,
		interval:     interval,
		batchLimit:   batchLimit,
		logger:       logger,
	}
}

// Start launches the polling loop. Starting twice is a no-op.
func (p *IngestPoller) Start(ctx context.Context) {
	p.mu.Lock()
	if p.running {
		p.mu.Unlock()
		return
	}
	p.running = true
	p.mu.Unlock()

	ctx, cancel := context.WithCancel(ctx)
	p.cancel = cancel

	p.wg.Add(1)
	go p.loop(ctx)

	p.logger.Info("ingest poller started",
		zap.Duration("interval", p.interval),
		zap.Int("batch_limit", p.batchLimit))
}

// Stop halts the polling loop, letting an in-flight sweep finish or the
// context expire.
func (p *IngestPoller) Stop(ctx context.Context) error {
	p.mu.Lock()
	if !p.running {
		p.mu.Unlock()
		return nil
	}
	p.running = false
	p.mu.Unlock()

	if p.cancel != nil {
		p.cancel()
	}

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		p.logger.Info("ingest poller stopped")
		return nil
	case <-ctx.Done():
		p.logger.Warn("ingest poller stop timed out")
		return ctx.Err()
	}
}

func (p *IngestPoller) loop(ctx context.Context) {
	defer p.wg.Done()

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			processed, err := p.orchestrator.ProcessPending(ctx, p.batchLimit)
			if err != nil {
				if ctx.Err() != nil {
					return
				}
				p.logger.Error("pending sweep failed", zap.Error(err))
				continue
			}
			if processed > 0 {
				p.logger.Info("pending sweep finished", zap.Int("files_processed", processed))
			}
		}
	}
}
