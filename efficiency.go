package crystal

import (
	"math"
	"time"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	"github.com/legendaryobs/crystal/internal/stats"
)

// Sample is one efficiency measurement.
type Sample struct {
	Time          time.Time
	Efficiency    float64
	HitRatio      float64
	ActiveRecords int
	Hits          int64
	Misses        int64
}

// Efficiency returns the system efficiency score for the given counters.
// With no reads at all the score is 100.
//
//	0.6 × hitRatio + 0.4 × min(100, 2 × activeRecords)
func Efficiency(hits, misses int64, activeRecords int) float64 {
	if hits+misses == 0 {
		return 100
	}
	return 0.6*hitRatio(hits, misses) + 0.4*math.Min(100, float64(activeRecords)*2)
}

func hitRatio(hits, misses int64) float64 {
	if hits+misses == 0 {
		return 100
	}
	return float64(hits) / float64(hits+misses) * 100
}

// Measure computes the current efficiency, appends it to the history and
// publishes it to the stats collector.
func (s *Store) Measure() Sample {
	active := s.tracker.Len()

	s.mu.Lock()
	hits, misses := s.counters.Hits, s.counters.Misses
	sample := Sample{
		Time:          s.now(),
		Efficiency:    Efficiency(hits, misses, active),
		HitRatio:      hitRatio(hits, misses),
		ActiveRecords: active,
		Hits:          hits,
		Misses:        misses,
	}
	s.history = append(s.history, sample)
	if over := len(s.history) - s.historySize; over > 0 {
		s.history = append(s.history[:0], s.history[over:]...)
	}
	s.mu.Unlock()

	s.stats.SetGauge(stats.MetricEfficiency, sample.Efficiency)
	s.stats.SetGauge(stats.MetricActiveCount, float64(active))
	return sample
}

// ComputeSystemEfficiency returns the current efficiency score and records it
// in the history.
func (s *Store) ComputeSystemEfficiency() float64 {
	return s.Measure().Efficiency
}

// HitRatio returns the percentage of reads that found a crystal, or 100 when
// nothing has been read.
func (s *Store) HitRatio() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return hitRatio(s.counters.Hits, s.counters.Misses)
}

// History returns the retained samples, oldest first.
func (s *Store) History() []Sample {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]Sample, len(s.history))
	copy(out, s.history)
	return out
}

// Trend summarizes the efficiency history.
type Trend struct {
	Samples int
	Mean    float64
	StdDev  float64
	Min     float64
	Max     float64
}

// Trend summarizes the retained samples. The zero Trend is returned when the
// history is empty.
func (s *Store) Trend() Trend {
	return trendOf(s.History())
}

func trendOf(history []Sample) Trend {
	if len(history) == 0 {
		return Trend{}
	}

	xs := make([]float64, len(history))
	for i, h := range history {
		xs[i] = h.Efficiency
	}

	t := Trend{
		Samples: len(xs),
		Mean:    stat.Mean(xs, nil),
		Min:     floats.Min(xs),
		Max:     floats.Max(xs),
	}
	if len(xs) > 1 {
		t.StdDev = stat.StdDev(xs, nil)
	}
	return t
}

// Grade is a qualitative rating of an efficiency score.
type Grade string

// Grades from best to worst.
const (
	GradeLegendary         Grade = "legendary"
	GradeExcellent         Grade = "excellent"
	GradeGood              Grade = "good"
	GradeNeedsOptimization Grade = "needs optimization"
)

// GradeOf rates an efficiency score.
func GradeOf(efficiency float64) Grade {
	switch {
	case efficiency >= 90:
		return GradeLegendary
	case efficiency >= 75:
		return GradeExcellent
	case efficiency >= 60:
		return GradeGood
	default:
		return GradeNeedsOptimization
	}
}

// Healthy reports whether an efficiency score is acceptable for service.
func Healthy(efficiency float64) bool {
	return efficiency > 50
}
