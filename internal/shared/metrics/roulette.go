package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Roulette reúne os coletores usados pelo wager-service e pelo settlement-worker
type Roulette struct {
	WagersPlaced   prometheus.Counter
	WagersSettled  *prometheus.CounterVec // result: won | lost | expired
	Failures       *prometheus.CounterVec // stage: place | settle | reclaim | journal | publish | decode
	RandomnessWait prometheus.Histogram
	RateLimited    *prometheus.CounterVec // op
	Submissions    *prometheus.HistogramVec
}

// NewRoulette cria os coletores e registra no registerer informado
func NewRoulette(reg prometheus.Registerer) *Roulette {
	m := &Roulette{
		WagersPlaced: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "roulette_wagers_placed_total", Help: "apostas aceitas pela rede",
		}),
		WagersSettled: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "roulette_wagers_settled_total", Help: "apostas finalizadas por resultado",
		}, []string{"result"}),
		Failures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "roulette_failures_total", Help: "erros por estágio",
		}, []string{"stage"}),
		RandomnessWait: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "roulette_randomness_wait_seconds",
			Help:    "tempo entre a aposta e a aleatoriedade disponível",
			Buckets: []float64{1, 2, 5, 10, 20, 30, 60, 120, 300},
		}),
		RateLimited: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "roulette_rpc_rate_limited_total", Help: "back-offs por limite de requisições",
		}, []string{"op"}),
		Submissions: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "roulette_submit_duration_seconds",
			Help:    "tempo até a confirmação da transação",
			Buckets: prometheus.DefBuckets,
		}, []string{"instruction"}),
	}
	reg.MustRegister(m.WagersPlaced, m.WagersSettled, m.Failures, m.RandomnessWait, m.RateLimited, m.Submissions)
	return m
}

func (m *Roulette) OnRateLimited(op string) { m.RateLimited.WithLabelValues(op).Inc() }

func (m *Roulette) OnSubmitted(name string, d time.Duration) {
	m.Submissions.WithLabelValues(name).Observe(d.Seconds())
}

func (m *Roulette) OnError(stage string) { m.Failures.WithLabelValues(stage).Inc() }
