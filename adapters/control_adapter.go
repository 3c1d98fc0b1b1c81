// Package adapters
// Author: momentics <momentics@gmail.com>
//
// Control adapter implementing api.Control using control package primitives.

package adapters

import (
	"github.com/momentics/hioload-mq/api"
	"github.com/momentics/hioload-mq/control"
)

// HintStatisticsSource is anything that reports hint-token statistics.
type HintStatisticsSource interface {
	Statistics() api.HintStatistics
}

// ControlAdapter publishes fresh pool and hint statistics on every Stats call.
type ControlAdapter struct {
	metrics *control.MetricsRegistry
	debug   *control.DebugProbes
	pool    control.StatisticsSource
	hints   HintStatisticsSource
}

var _ api.Control = (*ControlAdapter)(nil)

// NewControlAdapter creates an adapter. Either source may be nil.
func NewControlAdapter(p control.StatisticsSource, h HintStatisticsSource) *ControlAdapter {
	adapter := &ControlAdapter{
		metrics: control.NewMetricsRegistry(),
		debug:   control.NewDebugProbes(),
		pool:    p,
		hints:   h,
	}
	control.RegisterPlatformProbes(adapter.debug)
	if p != nil {
		control.RegisterPoolProbes(adapter.debug, p)
	}
	return adapter
}

// Refresh republishes the current statistics into the metrics registry.
func (c *ControlAdapter) Refresh() {
	if c.pool != nil {
		control.PublishPoolStatistics(c.metrics, c.pool.Statistics())
	}
	if c.hints != nil {
		control.PublishHintStatistics(c.metrics, c.hints.Statistics())
	}
}

// Stats returns metrics merged with debug probe output under "debug.".
func (c *ControlAdapter) Stats() map[string]any {
	c.Refresh()
	stats := c.metrics.GetSnapshot()
	for k, v := range c.debug.DumpState() {
		stats["debug."+k] = v
	}
	return stats
}

// SetMetric stores a custom metric.
func (c *ControlAdapter) SetMetric(key string, value any) {
	c.metrics.Set(key, value)
}

func (c *ControlAdapter) RegisterDebugProbe(name string, fn func() any) {
	c.debug.RegisterProbe(name, fn)
}

func (c *ControlAdapter) DumpState() map[string]any {
	return c.debug.DumpState()
}
