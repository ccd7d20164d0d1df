// Package metrics exposes search progress as Prometheus collectors.
package metrics

import (
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const Namespace = "gapsearch"

// Collectors groups every gapsearch metric. A nil *Collectors is valid and
// records nothing.
type Collectors struct {
	evaluations         *prometheus.CounterVec
	trials              prometheus.Counter
	cacheHits           prometheus.Counter
	invariantViolations *prometheus.CounterVec
	generation          prometheus.Gauge
	bestFitness         prometheus.Gauge
	stall               prometheus.Gauge
	generationSeconds   prometheus.Histogram
}

// New registers the collectors on reg.
func New(reg prometheus.Registerer) (c *Collectors, err error) {
	if reg == nil {
		return nil, errors.New("metrics registerer is required")
	}
	defer func() {
		// promauto panics on duplicate registration.
		if r := recover(); r != nil {
			c = nil
			if regErr, ok := r.(error); ok {
				err = regErr
				return
			}
			err = errors.New("register gapsearch collectors")
		}
	}()

	factory := promauto.With(reg)
	return &Collectors{
		evaluations: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: "fitness",
			Name:      "evaluations_total",
			Help:      "Candidate evaluations by outcome (complete or abandoned).",
		}, []string{"outcome"}),
		trials: factory.NewCounter(prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: "fitness",
			Name:      "trials_total",
			Help:      "Instrumented sorts performed while scoring candidates.",
		}),
		cacheHits: factory.NewCounter(prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: "fitness",
			Name:      "cache_hits_total",
			Help:      "Evaluations answered from the memoised results.",
		}),
		invariantViolations: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: "evo",
			Name:      "invariant_violations_total",
			Help:      "Operator results that failed validation after repair.",
		}, []string{"operator"}),
		generation: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: Namespace,
			Subsystem: "evo",
			Name:      "generation",
			Help:      "Most recently evaluated generation.",
		}),
		bestFitness: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: Namespace,
			Subsystem: "evo",
			Name:      "best_fitness",
			Help:      "Best-ever weighted mean comparison count.",
		}),
		stall: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: Namespace,
			Subsystem: "evo",
			Name:      "stall_generations",
			Help:      "Generations since the best-ever fitness last improved.",
		}),
		generationSeconds: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: Namespace,
			Subsystem: "evo",
			Name:      "generation_duration_seconds",
			Help:      "Wall time spent per generation.",
			Buckets:   prometheus.ExponentialBuckets(0.01, 4, 10),
		}),
	}, nil
}

func (c *Collectors) ObserveEvaluation(abandoned bool, trials int) {
	if c == nil {
		return
	}
	outcome := "complete"
	if abandoned {
		outcome = "abandoned"
	}
	c.evaluations.WithLabelValues(outcome).Inc()
	c.trials.Add(float64(trials))
}

func (c *Collectors) ObserveCacheHit() {
	if c == nil {
		return
	}
	c.cacheHits.Inc()
}

func (c *Collectors) ObserveInvariantViolation(operator string) {
	if c == nil {
		return
	}
	c.invariantViolations.WithLabelValues(operator).Inc()
}

func (c *Collectors) ObserveGeneration(generation int, best float64, stall int, elapsed time.Duration) {
	if c == nil {
		return
	}
	c.generation.Set(float64(generation))
	c.bestFitness.Set(best)
	c.stall.Set(float64(stall))
	c.generationSeconds.Observe(elapsed.Seconds())
}
