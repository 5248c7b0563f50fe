package monitor

import (
	"context"

	"github.com/shirou/gopsutil/v4/cpu"
	"github.com/shirou/gopsutil/v4/mem"

	"codeberg.org/halcyard/taskguard/internal/errors"
)

// RefreshGauges samples host CPU and memory counters. Each collector is
// isolated: a failing one is logged and the rest of the sample still
// lands, so one bad counter cannot halt the monitoring loop.
func (m *Monitor) RefreshGauges(ctx context.Context) {
	errFactory := errors.New()
	sample := Gauges{SampledAt: m.now().UTC()}

	// Interval 0 measures since the previous call, which matches the
	// per-second refresh cadence.
	percents, err := cpu.PercentWithContext(ctx, 0, false)
	if err != nil || len(percents) == 0 {
		m.log.Debug().Err(errFactory.Wrap(ErrGaugeSample, err)).Msg("CPU gauge sample failed")
		m.mu.Lock()
		sample.CPUPercent = m.gauges.CPUPercent
		m.mu.Unlock()
	} else {
		sample.CPUPercent = percents[0]
	}

	vm, err := mem.VirtualMemoryWithContext(ctx)
	if err != nil {
		m.log.Debug().Err(errFactory.Wrap(ErrGaugeSample, err)).Msg("Memory gauge sample failed")
		m.mu.Lock()
		sample.MemoryPercent = m.gauges.MemoryPercent
		sample.MemoryUsedMB = m.gauges.MemoryUsedMB
		m.mu.Unlock()
	} else {
		sample.MemoryPercent = vm.UsedPercent
		sample.MemoryUsedMB = float64(vm.Used) / (1024 * 1024)
	}

	m.mu.Lock()
	m.gauges = sample
	m.mu.Unlock()
}

// CurrentGauges returns the latest host sample.
func (m *Monitor) CurrentGauges() Gauges {
	m.mu.Lock()
	defer m.mu.Unlock()

	return m.gauges
}
