// control/leak.go
// Author: momentics <momentics@gmail.com>
//
// Outstanding-buffer detection for drain and shutdown paths.

package control

import (
	"log/slog"
	"strconv"

	"github.com/momentics/hioload-mq/api"
	"github.com/momentics/hioload-mq/internal/logging"
)

// LeakDetector reports buffers that were rented and never given back.
type LeakDetector struct {
	src StatisticsSource
	log *slog.Logger
}

// NewLeakDetector creates a detector over src. A nil logger uses slog.Default.
func NewLeakDetector(src StatisticsSource, log *slog.Logger) *LeakDetector {
	return &LeakDetector{src: src, log: logging.Component(log, "leak")}
}

// Check returns an *api.Error with ErrCodeLeak when any class still has
// outstanding buffers. Call it only once all traffic has drained.
func (d *LeakDetector) Check() error {
	st := d.src.Statistics()
	if st.Outstanding() == 0 {
		return nil
	}
	e := api.Wrap(api.ErrCodeLeak, "buffers not returned", api.ErrLeakDetected).
		WithContext("outstanding", st.Outstanding())
	for _, c := range st.Classes {
		if n := c.Outstanding(); n != 0 {
			e.WithContext(classKey(c.Capacity), n)
			d.log.Warn("outstanding buffers",
				slog.Int("capacity", c.Capacity),
				slog.Int64("count", n))
		}
	}
	return e
}

func classKey(capacity int) string {
	return "class." + strconv.Itoa(capacity)
}
