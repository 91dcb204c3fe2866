package metrics

import (
	"log"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type Collector struct {
	reg *prometheus.Registry

	RequestsSubmitted prometheus.Counter
	RequestsTimedOut  prometheus.Counter
	RidesAccepted     prometheus.Counter
	RidesCompleted    prometheus.Counter
	OffersSeen        prometheus.Counter
	OffersLost        prometheus.Counter // another rickshaw took the ride

	BackendErrors *prometheus.CounterVec // kind label: connectivity|protocol

	PointsAwarded    prometheus.Counter
	DropDistance     prometheus.Histogram
	WaitDuration     prometheus.Histogram
	DistanceTraveled prometheus.Counter // meters
}

func NewCollector() *Collector {
	reg := prometheus.NewRegistry()

	c := &Collector{
		reg: reg,
		RequestsSubmitted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "aeras_requests_submitted_total",
			Help: "Total ride requests submitted to the backend.",
		}),
		RequestsTimedOut: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "aeras_requests_timed_out_total",
			Help: "Total ride requests that expired without acceptance.",
		}),
		RidesAccepted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "aeras_rides_accepted_total",
			Help: "Total rides accepted by this node.",
		}),
		RidesCompleted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "aeras_rides_completed_total",
			Help: "Total rides completed by this node.",
		}),
		OffersSeen: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "aeras_offers_seen_total",
			Help: "Total distinct ride offers observed while polling.",
		}),
		OffersLost: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "aeras_offers_lost_total",
			Help: "Total offers lost to another rickshaw.",
		}),
		BackendErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "aeras_backend_errors_total",
			Help: "Backend call failures by kind.",
		}, []string{"kind"}),
		PointsAwarded: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "aeras_points_awarded_total",
			Help: "Total drop accuracy points awarded.",
		}),
		DropDistance: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "aeras_drop_distance_meters",
			Help:    "Distance from the declared destination at completion.",
			Buckets: prometheus.ExponentialBuckets(1, 2, 12),
		}),
		WaitDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "aeras_request_wait_seconds",
			Help:    "Time a rider waited between request and acceptance.",
			Buckets: prometheus.LinearBuckets(5, 5, 12),
		}),
		DistanceTraveled: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "aeras_distance_traveled_meters_total",
			Help: "Total simulated distance traveled.",
		}),
	}

	reg.MustRegister(
		c.RequestsSubmitted, c.RequestsTimedOut,
		c.RidesAccepted, c.RidesCompleted,
		c.OffersSeen, c.OffersLost,
		c.BackendErrors,
		c.PointsAwarded, c.DropDistance, c.WaitDuration, c.DistanceTraveled,
	)

	return c
}

func (c *Collector) Handler() http.Handler { return promhttp.HandlerFor(c.reg, promhttp.HandlerOpts{}) }

// Serve starts an HTTP server exposing /metrics on the given address.
func (c *Collector) Serve(addr string) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", c.Handler())
	srv := &http.Server{Addr: addr, Handler: mux}
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Printf("metrics server error: %v", err)
		}
	}()
	log.Printf("metrics listening on %s", addr)
	return srv
}
