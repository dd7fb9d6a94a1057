// Package refresh coordinates aggregate-view rebuilds. Views are
// recomputed from canonical data, never patched incrementally; a failed
// rebuild leaves the previous snapshot authoritative.
package refresh

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/timberdayz/datahub/internal/domain/ingest"
	"github.com/timberdayz/datahub/internal/domain/shared"
	"github.com/timberdayz/datahub/internal/domain/views"
)

// Trigger sources recorded on the refresh audit trail.
const (
	TriggerSchedule = "schedule"
	TriggerIngest   = "ingest"
	TriggerManual   = "manual"
)

// RebuildFunc recomputes one view from canonical data and returns the
// resulting row count. It must be atomic: either the new snapshot
// replaces the old one or nothing changes.
type RebuildFunc func(ctx context.Context) (int64, error)

type registeredView struct {
	name    string
	rebuild RebuildFunc
	mu      sync.Mutex // serializes rebuilds of this view
}

// Coordinator runs view rebuilds, serializing per view while letting
// distinct views refresh concurrently. Every attempt lands on the audit
// trail, so completion is observable by polling rather than by callback.
type Coordinator struct {
	logs    views.RefreshLogRepository
	clock   ingest.Clock
	logger  *zap.Logger
	tracer  trace.Tracer
	timeout time.Duration

	mu    sync.RWMutex
	views map[string]*registeredView
}

// NewCoordinator creates the refresh coordinator
func NewCoordinator(logs views.RefreshLogRepository, clock ingest.Clock, logger *zap.Logger, viewTimeout time.Duration) *Coordinator {
	if clock == nil {
		clock = ingest.SystemClock{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if viewTimeout <= 0 {
		viewTimeout = 30 * time.Minute
	}
	return &Coordinator{
		logs:    logs,
		clock:   clock,
		logger:  logger,
		tracer:  otel.Tracer("datahub/refresh"),
		timeout: viewTimeout,
		views:   make(map[string]*registeredView),
	}
}

// Register adds a view and its rebuild function. Registering the same
// name again replaces the function.
func (c *Coordinator) Register(name string, rebuild RebuildFunc) error {
	if name == "" {
		return shared.NewDomainError(shared.CodeInvalidInput, "View name cannot be empty")
	}
	if rebuild == nil {
		return shared.NewDomainError(shared.CodeInvalidInput, "Rebuild function cannot be nil")
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.views[name] = &registeredView{name: name, rebuild: rebuild}
	return nil
}

// ViewNames lists the registered views, sorted.
func (c *Coordinator) ViewNames() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	names := make([]string, 0, len(c.views))
	for name := range c.views {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Refresh rebuilds one view and records the attempt. On failure the
// returned error wraps REFRESH_FAILURE and the audit row carries the
// cause; the previous snapshot stays in place.
func (c *Coordinator) Refresh(ctx context.Context, viewName, triggeredBy string) (*views.RefreshLog, error) {
	c.mu.RLock()
	view, ok := c.views[viewName]
	c.mu.RUnlock()
	if !ok {
		return nil, shared.NewDomainErrorf(shared.CodeNotFound, "View %q is not registered", viewName)
	}

	view.mu.Lock()
	defer view.mu.Unlock()

	ctx, span := c.tracer.Start(ctx, "refresh.view",
		trace.WithAttributes(
			attribute.String("view.name", viewName),
			attribute.String("trigger", triggeredBy),
		))
	defer span.End()

	log, err := views.NewRefreshLog(viewName, triggeredBy, c.clock.Now())
	if err != nil {
		return nil, err
	}
	if err := c.logs.Save(ctx, log); err != nil {
		return nil, fmt.Errorf("failed to open refresh log: %w", err)
	}

	rebuildCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	rowCount, rebuildErr := view.rebuild(rebuildCtx)
	completed := c.clock.Now()

	if rebuildErr != nil {
		if err := log.Fail(completed, rebuildErr.Error()); err != nil {
			return nil, err
		}
		if err := c.logs.Update(ctx, log); err != nil {
			c.logger.Error("failed to record refresh failure",
				zap.String("view", viewName), zap.Error(err))
		}
		c.logger.Error("view refresh failed",
			zap.String("view", viewName),
			zap.String("trigger", triggeredBy),
			zap.Error(rebuildErr))
		return log, shared.NewDomainErrorf(shared.CodeRefreshFailure,
			"Refresh of view %q failed: %v", viewName, rebuildErr)
	}

	if err := log.Succeed(completed, rowCount); err != nil {
		return nil, err
	}
	if err := c.logs.Update(ctx, log); err != nil {
		return nil, fmt.Errorf("failed to close refresh log: %w", err)
	}

	span.SetAttributes(attribute.Int64("view.rows", rowCount))
	c.logger.Info("view refreshed",
		zap.String("view", viewName),
		zap.String("trigger", triggeredBy),
		zap.Int64("rows", rowCount),
		zap.Int64("duration_ms", log.DurationMS))
	return log, nil
}

// RefreshAll rebuilds every registered view concurrently. One view's
// failure never blocks the others; the joined error reports all of them.
func (c *Coordinator) RefreshAll(ctx context.Context, triggeredBy string) error {
	names := c.ViewNames()
	if len(names) == 0 {
		return nil
	}

	var (
		g, gctx = errgroup.WithContext(ctx)
		mu      sync.Mutex
		failed  []error
	)
	for _, name := range names {
		g.Go(func() error {
			if _, err := c.Refresh(gctx, name, triggeredBy); err != nil {
				mu.Lock()
				failed = append(failed, err)
				mu.Unlock()
			}
			// Errors are collected, not returned: returning would cancel
			// sibling refreshes through gctx.
			return nil
		})
	}
	_ = g.Wait()
	return errors.Join(failed...)
}

// Freshness reports how current one view is.
func (c *Coordinator) Freshness(ctx context.Context, viewName string) (*views.Freshness, error) {
	c.mu.RLock()
	_, ok := c.views[viewName]
	c.mu.RUnlock()
	if !ok {
		return nil, shared.NewDomainErrorf(shared.CodeNotFound, "View %q is not registered", viewName)
	}
	return c.logs.Freshness(ctx, viewName, c.clock.Now())
}

// FreshnessAll reports freshness for every registered view.
func (c *Coordinator) FreshnessAll(ctx context.Context) ([]views.Freshness, error) {
	out := make([]views.Freshness, 0, len(c.views))
	for _, name := range c.ViewNames() {
		f, err := c.logs.Freshness(ctx, name, c.clock.Now())
		if err != nil {
			return nil, err
		}
		out = append(out, *f)
	}
	return out, nil
}
