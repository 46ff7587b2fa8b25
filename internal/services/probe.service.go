package services

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/mem"
)

// Probe samples coarse host resource usage. Update refreshes every gauge it
// can; each accessor reports false when its gauge is unsupported or the last
// Update could not produce it. Values are fractions in [0, 1].
type Probe interface {
	Update(ctx context.Context) error
	CPUUsage() (float64, bool)
	CPUStealUsage() (float64, bool)
	RAMUsage() (float64, bool)
	SwapUsage() (float64, bool)
}

type gauge struct {
	value float64
	ok    bool
}

func (g gauge) get() (float64, bool) {
	return g.value, g.ok
}

// SystemProbe reads host usage through gopsutil. CPU usage and steal are
// computed from the delta of cumulative CPU times between updates; the first
// update falls back to the totals since boot.
type SystemProbe struct {
	mu        sync.Mutex
	lastTimes *cpu.TimesStat

	cpu   gauge
	steal gauge
	ram   gauge
	swap  gauge

	// Collection functions for mocking
	getCPUTimes  func(context.Context, bool) ([]cpu.TimesStat, error)
	getMemStats  func(context.Context) (*mem.VirtualMemoryStat, error)
	getSwapStats func(context.Context) (*mem.SwapMemoryStat, error)
}

// NewSystemProbe creates a probe backed by the host operating system.
func NewSystemProbe() *SystemProbe {
	return &SystemProbe{
		getCPUTimes:  cpu.TimesWithContext,
		getMemStats:  mem.VirtualMemoryWithContext,
		getSwapStats: mem.SwapMemoryWithContext,
	}
}

// Update implements Probe.
func (p *SystemProbe) Update(ctx context.Context) error {
	// Call the OS outside the lock
	times, cpuErr := p.getCPUTimes(ctx, false)
	vm, memErr := p.getMemStats(ctx)
	sw, swapErr := p.getSwapStats(ctx)

	p.mu.Lock()
	defer p.mu.Unlock()

	var errs []error

	p.cpu, p.steal = gauge{}, gauge{}
	switch {
	case cpuErr != nil:
		errs = append(errs, fmt.Errorf("cpu times: %w", cpuErr))
	case len(times) == 0:
		errs = append(errs, errors.New("cpu times: no data returned"))
	default:
		t := times[0]
		base := cpu.TimesStat{}
		if p.lastTimes != nil {
			base = *p.lastTimes
		}
		deltaTotal := t.Total() - base.Total()
		if deltaTotal > 0 {
			deltaIdle := (t.Idle + t.Iowait) - (base.Idle + base.Iowait)
			deltaSteal := t.Steal - base.Steal
			p.cpu = gauge{value: (deltaTotal - deltaIdle) / deltaTotal, ok: true}
			p.steal = gauge{value: deltaSteal / deltaTotal, ok: true}
		}
		p.lastTimes = &t
	}

	p.ram = gauge{}
	if memErr != nil {
		errs = append(errs, fmt.Errorf("virtual memory: %w", memErr))
	} else if vm != nil {
		p.ram = gauge{value: vm.UsedPercent / 100, ok: true}
	}

	p.swap = gauge{}
	if swapErr != nil {
		errs = append(errs, fmt.Errorf("swap memory: %w", swapErr))
	} else if sw != nil {
		if sw.Total == 0 {
			// no swap configured
			p.swap = gauge{value: 0, ok: true}
		} else {
			p.swap = gauge{value: sw.UsedPercent / 100, ok: true}
		}
	}

	return errors.Join(errs...)
}

func (p *SystemProbe) CPUUsage() (float64, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.cpu.get()
}

func (p *SystemProbe) CPUStealUsage() (float64, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.steal.get()
}

func (p *SystemProbe) RAMUsage() (float64, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.ram.get()
}

func (p *SystemProbe) SwapUsage() (float64, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.swap.get()
}

// FixedProbe reports constant usage without touching the OS. Used in
// development and in environments where /proc is unavailable.
type FixedProbe struct {
	CPU      float64
	CPUSteal float64
	RAM      float64
	Swap     float64
}

// NewFixedProbe returns the development defaults: 15% CPU, 30% RAM, no
// steal and no swap.
func NewFixedProbe() *FixedProbe {
	return &FixedProbe{CPU: 0.15, RAM: 0.3}
}

func (p *FixedProbe) Update(context.Context) error { return nil }
func (p *FixedProbe) CPUUsage() (float64, bool) { return p.CPU, true }
func (p *FixedProbe) CPUStealUsage() (float64, bool) { return p.CPUSteal, true }
func (p *FixedProbe) RAMUsage() (float64, bool) { return p.RAM, true }
func (p *FixedProbe) SwapUsage() (float64, bool) { return p.Swap, true }
