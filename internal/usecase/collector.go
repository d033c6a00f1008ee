package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"PatentReporter/internal/domain"
	"PatentReporter/internal/logging"
	"PatentReporter/internal/ports"
)

// SourceKIPRIS labels records that came from the live API.
const SourceKIPRIS = "KIPRIS API"

// Collector produces the raw records. A non-empty cache is authoritative and is never refreshed
// automatically; remove the cache file to force a live fetch.
type Collector struct {
	source ports.PatentSource
	cache  ports.PatentCache
	logger *slog.Logger
}

// NewCollector wires the live source and the optional cache.
func NewCollector(source ports.PatentSource, cache ports.PatentCache, logger *slog.Logger) *Collector {
	if logger == nil {
		logger = logging.Discard()
	}
	return &Collector{source: source, cache: cache, logger: logger}
}

// Name identifies the stage in logs and in the error trail.
func (c *Collector) Name() string {
	return "Collector"
}

// Run sets state.RawRecords. It returns an error only when nothing could be collected.
func (c *Collector) Run(ctx context.Context, state *domain.PipelineState) error {
	if c.cache != nil {
		cached, err := c.cache.Load(ctx)
		switch {
		case err != nil:
			c.logger.Warn("cache unreadable, falling back to live source", "path", c.cache.Location(), "error", err)
			state.AppendError("Collector: cache %s: %v", c.cache.Location(), err)
		case len(cached) > 0:
			state.RawRecords = cached
			state.Source = "CSV cache (" + c.cache.Location() + ")"
			state.Notify("Loaded %d patents from %s", len(cached), c.cache.Location())
			c.logger.Info("loaded patents from cache", "path", c.cache.Location(), "count", len(cached))
			return nil
		}
	}

	if c.source == nil {
		return errors.New("no patent source configured and no cached data available")
	}

	c.logger.Info("fetching patents from source")
	patents, err := c.source.FetchRawRecords(ctx)
	if len(patents) == 0 {
		if err != nil {
			return fmt.Errorf("fetch patents: %w", err)
		}
		state.Source = SourceKIPRIS
		state.Notify("No patents collected")
		c.logger.Warn("source returned no patents")
		return nil
	}
	if err != nil {
		c.logger.Warn("partial fetch", "count", len(patents), "error", err)
		state.AppendError("Collector: partial fetch: %v", err)
	}

	state.RawRecords = patents
	state.Source = SourceKIPRIS
	state.Notify("Collected %d patents from %s", len(patents), SourceKIPRIS)
	c.logger.Info("collected patents", "count", len(patents))

	if c.cache != nil {
		if err := c.cache.Save(ctx, patents); err != nil {
			c.logger.Warn("cache write failed", "path", c.cache.Location(), "error", err)
			state.AppendError("Collector: save cache %s: %v", c.cache.Location(), err)
		} else {
			state.Notify("Saved patents to %s", c.cache.Location())
		}
	}
	return nil
}
