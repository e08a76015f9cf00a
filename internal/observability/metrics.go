// Package observability holds the Prometheus collectors for the globe server.
package observability

import (
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/andreiashu/geoglobe"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Pick result labels.
const (
	PickHit  = "hit"
	PickMiss = "miss"
)

// GlobeCollector bundles Prometheus metrics for mesh construction, picking and
// the HTTP surface.
type GlobeCollector struct {
	gatherer prometheus.Gatherer

	CountriesLoaded    prometheus.Gauge
	MeshesBuilt        prometheus.Counter
	GeometriesSkipped  prometheus.Counter
	Picks              *prometheus.CounterVec
	PickDurations      prometheus.Histogram
	HTTPRequests       *prometheus.CounterVec
	HTTPRequestSeconds *prometheus.HistogramVec
}

// NewGlobeCollector registers the globe metrics against the provided
// registerer, defaulting to the global Prometheus registry when nil.
// Registering twice against the same registry reuses the existing collectors.
func NewGlobeCollector(reg prometheus.Registerer) (*GlobeCollector, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	gatherer := prometheus.DefaultGatherer
	if g, ok := reg.(prometheus.Gatherer); ok {
		gatherer = g
	}

	loaded, err := registerGauge(reg, prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "globe_countries_loaded",
		Help: "Number of country features loaded into the globe.",
	}), "globe_countries_loaded")
	if err != nil {
		return nil, err
	}
	built, err := registerCounter(reg, prometheus.NewCounter(prometheus.CounterOpts{
		Name: "globe_meshes_built_total",
		Help: "Country meshes built with at least one segment or triangle.",
	}), "globe_meshes_built_total")
	if err != nil {
		return nil, err
	}
	skipped, err := registerCounter(reg, prometheus.NewCounter(prometheus.CounterOpts{
		Name: "globe_geometries_skipped_total",
		Help: "Country geometries skipped because their type is not Polygon or MultiPolygon.",
	}), "globe_geometries_skipped_total")
	if err != nil {
		return nil, err
	}
	picks, err := registerCounterVec(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "globe_picks_total",
		Help: "Pick requests, labeled by result (hit or miss).",
	}, []string{"result"}), "globe_picks_total")
	if err != nil {
		return nil, err
	}
	pickDur, err := registerHistogram(reg, prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "globe_pick_duration_seconds",
		Help:    "Time spent resolving a pick ray against the country meshes.",
		Buckets: []float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25},
	}), "globe_pick_duration_seconds")
	if err != nil {
		return nil, err
	}
	requests, err := registerCounterVec(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "globe_http_requests_total",
		Help: "Handled HTTP requests, labeled by route and status code.",
	}, []string{"route", "code"}), "globe_http_requests_total")
	if err != nil {
		return nil, err
	}
	reqDur, err := registerHistogramVec(reg, prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "globe_http_request_duration_seconds",
		Help:    "HTTP request latency in seconds.",
		Buckets: prometheus.DefBuckets,
	}, []string{"route"}), "globe_http_request_duration_seconds")
	if err != nil {
		return nil, err
	}

	return &GlobeCollector{
		gatherer:           gatherer,
		CountriesLoaded:    loaded,
		MeshesBuilt:        built,
		GeometriesSkipped:  skipped,
		Picks:              picks,
		PickDurations:      pickDur,
		HTTPRequests:       requests,
		HTTPRequestSeconds: reqDur,
	}, nil
}

// ObserveBuild records the outcome of building a globe's meshes.
func (c *GlobeCollector) ObserveBuild(countries int, report geoglobe.BuildReport) {
	if c == nil {
		return
	}
	c.CountriesLoaded.Set(float64(countries))
	c.MeshesBuilt.Add(float64(report.Built))
	c.GeometriesSkipped.Add(float64(len(report.Skipped)))
}

// ObservePick records one pick and how long it took.
func (c *GlobeCollector) ObservePick(hit bool, elapsed time.Duration) {
	if c == nil {
		return
	}
	result := PickMiss
	if hit {
		result = PickHit
	}
	c.Picks.WithLabelValues(result).Inc()
	c.PickDurations.Observe(elapsed.Seconds())
}

// Middleware counts requests and their latency under the given route label.
func (c *GlobeCollector) Middleware(route string, next http.Handler) http.Handler {
	if c == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		c.HTTPRequests.WithLabelValues(route, strconv.Itoa(rec.status)).Inc()
		c.HTTPRequestSeconds.WithLabelValues(route).Observe(time.Since(start).Seconds())
	})
}

// Handler exposes a ready-to-use /metrics handler.
func (c *GlobeCollector) Handler() http.Handler {
	gatherer := prometheus.DefaultGatherer
	if c != nil && c.gatherer != nil {
		gatherer = c.gatherer
	}
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func registerCounter(reg prometheus.Registerer, c prometheus.Counter, name string) (prometheus.Counter, error) {
	if err := reg.Register(c); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(prometheus.Counter); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		return nil, err
	}
	return c, nil
}

func registerCounterVec(reg prometheus.Registerer, vec *prometheus.CounterVec, name string) (*prometheus.CounterVec, error) {
	if err := reg.Register(vec); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(*prometheus.CounterVec); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		return nil, err
	}
	return vec, nil
}

func registerHistogram(reg prometheus.Registerer, h prometheus.Histogram, name string) (prometheus.Histogram, error) {
	if err := reg.Register(h); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(prometheus.Histogram); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		return nil, err
	}
	return h, nil
}

func registerHistogramVec(reg prometheus.Registerer, vec *prometheus.HistogramVec, name string) (*prometheus.HistogramVec, error) {
	if err := reg.Register(vec); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(*prometheus.HistogramVec); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		return nil, err
	}
	return vec, nil
}

func registerGauge(reg prometheus.Registerer, gauge prometheus.Gauge, name string) (prometheus.Gauge, error) {
	if err := reg.Register(gauge); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(prometheus.Gauge); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		return nil, err
	}
	return gauge, nil
}
