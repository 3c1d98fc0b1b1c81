// control/debug.go
// Author: momentics <momentics@gmail.com>
//
// Runtime debug handler and probe reflector for internal inspection.

package control

import (
	"sync"

	"github.com/momentics/hioload-mq/api"
)

// DebugProbes holds registered probe functions.
type DebugProbes struct {
	mu     sync.RWMutex
	probes map[string]func() any
}

// NewDebugProbes creates a probe registry.
func NewDebugProbes() *DebugProbes {
	return &DebugProbes{
		probes: make(map[string]func() any),
	}
}

// RegisterProbe inserts a named debug hook.
func (dp *DebugProbes) RegisterProbe(name string, fn func() any) {
	dp.mu.Lock()
	defer dp.mu.Unlock()
	dp.probes[name] = fn
}

// DumpState returns output of all probes.
func (dp *DebugProbes) DumpState() map[string]any {
	dp.mu.RLock()
	defer dp.mu.RUnlock()
	out := make(map[string]any)
	for k, fn := range dp.probes {
		out[k] = fn()
	}
	return out
}

// StatisticsSource is anything that reports pool statistics.
type StatisticsSource interface {
	Statistics() api.PoolStatistics
}

// RegisterPoolProbes exposes a pool's summary and per-class state.
func RegisterPoolProbes(dp *DebugProbes, src StatisticsSource) {
	dp.RegisterProbe("pool.summary", func() any {
		return src.Statistics().String()
	})
	dp.RegisterProbe("pool.classes", func() any {
		st := src.Statistics()
		out := make([]string, 0, len(st.Classes))
		for _, c := range st.Classes {
			if c.Rents == 0 && c.Free == 0 {
				continue
			}
			out = append(out, c.String())
		}
		return out
	})
}
