// Command globe-server loads the world's countries and serves meshes, picking
// and country facts to a browser globe renderer.
//
// Usage:
//
//	go run ./cmd/globe-server -address :8080 -data-dir ./globe-data
package main

import (
	"net/http"
	"time"

	"github.com/andreiashu/geoglobe"
	"github.com/andreiashu/geoglobe/internal/observability"
	"github.com/andreiashu/geoglobe/internal/server"
	"github.com/prometheus/client_golang/prometheus"
)

func main() {
	cfg := readConfig()
	log := newLogger(cfg)

	opts := []geoglobe.Option{
		geoglobe.WithDataDir(cfg.DataDir),
		geoglobe.WithCacheDir(cfg.CacheDir),
		geoglobe.WithRadius(cfg.Radius),
		geoglobe.WithLogger(log),
	}
	if cfg.Offline {
		opts = append(opts, geoglobe.WithOffline())
	}

	globe, err := geoglobe.NewGlobe(opts...)
	if err != nil {
		log.WithError(err).Fatal("loading globe")
	}

	metrics, err := observability.NewGlobeCollector(prometheus.DefaultRegisterer)
	if err != nil {
		log.WithError(err).Fatal("registering metrics")
	}
	metrics.ObserveBuild(len(globe.Countries()), globe.Report())

	srv := &http.Server{
		Addr:              cfg.Address,
		Handler:           server.New(globe, metrics, log).Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	log.WithField("address", cfg.Address).Info("globe server listening")
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.WithError(err).Fatal("serving")
	}
}
