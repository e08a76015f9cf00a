// Command update-cache regenerates the country cache from raw data.
//
// Usage:
//
//	go run ./cmd/update-cache
//
// This reads from ./globe-data/ (downloading the countries GeoJSON when it is
// missing) and writes to ./globe-cache/. Pass -validate to check the written
// cache against known locations. After running, optionally compress it:
//
//	bzip2 -f globe-cache/*.dmp
package main

import (
	"flag"

	"github.com/andreiashu/geoglobe"
	"github.com/sirupsen/logrus"
)

func main() {
	dataDir := flag.String("data-dir", "./globe-data", "directory for raw country data")
	cacheDir := flag.String("cache-dir", "./globe-cache", "directory to write the cache to")
	url := flag.String("url", geoglobe.DefaultCountriesURL, "countries GeoJSON download URL")
	validate := flag.Bool("validate", false, "validate the cache after writing it")
	flag.Parse()

	log := logrus.New()
	opts := []geoglobe.Option{
		geoglobe.WithDataDir(*dataDir),
		geoglobe.WithCacheDir(*cacheDir),
		geoglobe.WithDatasetURL(*url),
		geoglobe.WithLogger(log),
	}

	log.Info("Regenerating country cache from raw data...")
	if err := geoglobe.RegenerateCache(opts...); err != nil {
		log.WithError(err).Fatal("regenerating cache")
	}
	log.WithField("cache_dir", *cacheDir).Info("Cache regenerated successfully.")

	if *validate {
		if err := geoglobe.ValidateCache(opts...); err != nil {
			log.WithError(err).Fatal("cache validation failed")
		}
		log.Info("Cache validated.")
	}
}
