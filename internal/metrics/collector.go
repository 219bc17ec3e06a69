// Package metrics logs the progress of long runs: application counters with
// their rates, next to the CPU and memory use of the process.
package metrics

import (
	"context"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/shirou/gopsutil/v4/cpu"
	"github.com/shirou/gopsutil/v4/mem"
	"github.com/shirou/gopsutil/v4/process"
	"go.uber.org/zap"
)

// Counter is a monotonic application counter read on every sample
type Counter struct {
	Name  string
	Value func() int64
}

// Sample is one progress measurement
type Sample struct {
	Time    time.Time
	Elapsed time.Duration // since the collector started

	Totals map[string]int64
	// Rates are per second since the previous sample; empty for the first
	Rates map[string]float64

	SystemCPUPercent  float64
	ProcessCPUPercent float64 // per core, exceeds 100 on multi-core
	ProcessRSSBytes   uint64
	MemoryPercent     float64
}

// Collector samples counters and resource use at a fixed interval
type Collector struct {
	interval time.Duration
	logger   *zap.Logger
	counters []Counter
	proc     *process.Process

	started time.Time
	mu      sync.RWMutex
	last    *Sample
}

// NewCollector creates a collector for counters. Intervals below one second
// fall back to 30 seconds.
func NewCollector(interval time.Duration, logger *zap.Logger, counters ...Counter) *Collector {
	if interval < time.Second {
		interval = 30 * time.Second
	}
	proc, _ := process.NewProcess(int32(os.Getpid()))

	return &Collector{
		interval: interval,
		logger:   logger,
		counters: counters,
		proc:     proc,
		started:  time.Now(),
	}
}

// Start samples until ctx is cancelled, then logs a final sample
func (c *Collector) Start(ctx context.Context) {
	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	// baseline for rates and process CPU
	c.record(c.sample(time.Now()))

	for {
		select {
		case <-ctx.Done():
			c.log("Progress complete", c.record(c.sample(time.Now())))
			return
		case now := <-ticker.C:
			c.log("Progress", c.record(c.sample(now)))
		}
	}
}

// Last returns the latest sample, nil before the first
func (c *Collector) Last() *Sample {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.last
}

func (c *Collector) record(s *Sample) *Sample {
	c.mu.Lock()
	c.last = s
	c.mu.Unlock()
	return s
}

// sample reads the counters and derives rates from the previous sample
func (c *Collector) sample(now time.Time) *Sample {
	s := &Sample{
		Time:    now,
		Elapsed: now.Sub(c.started),
		Totals:  make(map[string]int64, len(c.counters)),
		Rates:   make(map[string]float64, len(c.counters)),
	}
	for _, counter := range c.counters {
		s.Totals[counter.Name] = counter.Value()
	}

	if prev := c.Last(); prev != nil {
		secs := now.Sub(prev.Time).Seconds()
		for name, total := range s.Totals {
			if secs > 0 {
				s.Rates[name] = float64(total-prev.Totals[name]) / secs
			} else {
				s.Rates[name] = 0
			}
		}
	}

	if pct, err := cpu.Percent(0, false); err == nil && len(pct) > 0 {
		s.SystemCPUPercent = pct[0]
	}
	if c.proc != nil {
		if pct, err := c.proc.Percent(0); err == nil {
			s.ProcessCPUPercent = pct
		}
		if info, err := c.proc.MemoryInfo(); err == nil {
			s.ProcessRSSBytes = info.RSS
		}
	}
	if vmem, err := mem.VirtualMemory(); err == nil {
		s.MemoryPercent = vmem.UsedPercent
	}
	return s
}

func (c *Collector) log(msg string, s *Sample) {
	fields := make([]zap.Field, 0, 2*len(c.counters)+5)
	for _, counter := range c.counters {
		fields = append(fields, zap.Int64(counter.Name, s.Totals[counter.Name]))
		if rate, ok := s.Rates[counter.Name]; ok {
			fields = append(fields, zap.String(counter.Name+"_rate", formatRate(rate)))
		}
	}
	fields = append(fields,
		zap.Duration("elapsed", s.Elapsed.Round(time.Second)),
		zap.Float64("sys_cpu", s.SystemCPUPercent),
		zap.Float64("proc_cpu", s.ProcessCPUPercent),
		zap.String("rss", formatMB(s.ProcessRSSBytes)),
		zap.Float64("mem_pct", s.MemoryPercent),
	)
	c.logger.Info(msg, fields...)
}

func formatRate(perSecond float64) string {
	return fmt.Sprintf("%.1f/s", perSecond)
}

func formatMB(bytes uint64) string {
	return fmt.Sprintf("%.1f MB", float64(bytes)/(1024*1024))
}
