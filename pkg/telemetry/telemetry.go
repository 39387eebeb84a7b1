/*
 * Copyright 2019-2020 by Nedim Sabic Sabic
 * https://www.fibratus.io
 * All Rights Reserved.
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *  http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

// Package telemetry exports capture_stats on a periodic tick to one or
// more sinks (§9 "Capture statistics"). The export goroutine is the one
// sanctioned concurrency exception to the single-threaded Inspector
// Loop: it only ever reads the stats snapshot and never mutates anything
// on the hot path.
package telemetry

import (
	"sync"
	"time"

	"github.com/evgeni/sysdig/pkg/ilog"
)

// Stats is the read-only capture snapshot an exporter publishes on each
// tick (spec §7 "capture_stats").
type Stats struct {
	SeenEvents  uint64
	Drops       uint64
	Preemptions uint64
	ThreadCount int
	FdCount     int
}

// StatsProvider is implemented by the Inspector; telemetry depends only
// on this narrow read seam, never on the Inspector type itself.
type StatsProvider interface {
	CaptureStats() Stats
}

// Exporter publishes a Stats snapshot to an external sink.
type Exporter interface {
	Export(Stats) error
	Close() error
}

// Manager drives every registered Exporter from a single ticker
// goroutine: a periodic, quit-channel-stoppable background scan that
// only reads shared state.
type Manager struct {
	mu        sync.Mutex
	provider  StatsProvider
	interval  time.Duration
	exporters []Exporter
	quit      chan struct{}
	wg        sync.WaitGroup
}

// NewManager builds a Manager; interval <= 0 disables the export tick.
func NewManager(provider StatsProvider, interval time.Duration, exporters ...Exporter) *Manager {
	return &Manager{
		provider:  provider,
		interval:  interval,
		exporters: exporters,
		quit:      make(chan struct{}),
	}
}

// Start launches the export goroutine. A no-op if interval <= 0 or no
// exporters were registered.
func (m *Manager) Start() {
	if m.interval <= 0 || len(m.exporters) == 0 {
		return
	}
	m.wg.Add(1)
	go m.run()
}

func (m *Manager) run() {
	defer m.wg.Done()
	tick := time.NewTicker(m.interval)
	defer tick.Stop()
	for {
		select {
		case <-tick.C:
			m.exportOnce()
		case <-m.quit:
			return
		}
	}
}

func (m *Manager) exportOnce() {
	stats := m.provider.CaptureStats()
	m.mu.Lock()
	exporters := make([]Exporter, len(m.exporters))
	copy(exporters, m.exporters)
	m.mu.Unlock()
	for _, exp := range exporters {
		if err := exp.Export(stats); err != nil {
			ilog.Warnf("telemetry export failed: %v", err)
		}
	}
}

// Stop signals the export goroutine to return and closes every
// registered exporter.
func (m *Manager) Stop() {
	close(m.quit)
	m.wg.Wait()

	m.mu.Lock()
	defer m.mu.Unlock()
	for _, exp := range m.exporters {
		if err := exp.Close(); err != nil {
			ilog.Warnf("telemetry exporter close failed: %v", err)
		}
	}
}
