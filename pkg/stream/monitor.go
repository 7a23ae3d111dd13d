package stream

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/sudorandom/fightscope/pkg/layout"
)

// Health is the monitor's view of a stream after one snapshot.
type Health struct {
	RunID    uuid.UUID
	Seq      uint64
	Ticks    uint64
	Alpha    float64
	MeanTick time.Duration
	LastTick time.Duration
	Stable   bool
	// Gaps counts snapshots missing from the current run's sequence.
	Gaps     uint64
	Degraded bool
	Runs     int
}

// Monitor watches a snapshot stream and flags the layout as degraded while
// its mean tick duration exceeds the budget.
type Monitor struct {
	budget time.Duration
	logger zerolog.Logger

	mu sync.Mutex
	h  Health
}

func NewMonitor(budget time.Duration, logger zerolog.Logger) *Monitor {
	return &Monitor{budget: budget, logger: logger}
}

func (m *Monitor) Observe(s layout.Snapshot) Health {
	m.mu.Lock()
	defer m.mu.Unlock()

	h := &m.h
	if s.RunID != h.RunID {
		if h.Runs > 0 {
			m.logger.Info().Str("run", s.RunID.String()).Msg("New layout run")
		}
		*h = Health{RunID: s.RunID, Runs: h.Runs + 1, Degraded: h.Degraded}
	} else if s.Seq > h.Seq+1 {
		h.Gaps += s.Seq - h.Seq - 1
	}
	if s.Seq > h.Seq || h.Seq == 0 {
		h.Seq = s.Seq
	}
	h.Ticks = s.Stats.Ticks
	h.Alpha = s.Stats.Alpha
	h.MeanTick = s.Stats.MeanTick
	h.LastTick = s.Stats.LastTick
	if s.Type == layout.TypeStable {
		h.Stable = true
	}

	degraded := m.budget > 0 && s.Stats.MeanTick > m.budget
	switch {
	case degraded && !h.Degraded:
		m.logger.Warn().Dur("mean_tick", s.Stats.MeanTick).Dur("budget", m.budget).Msg("Layout degraded")
	case !degraded && h.Degraded:
		m.logger.Info().Dur("mean_tick", s.Stats.MeanTick).Msg("Layout recovered")
	}
	h.Degraded = degraded
	return *h
}

func (m *Monitor) Health() Health {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.h
}
