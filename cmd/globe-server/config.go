package main

import (
	"flag"
	"fmt"
	"os"
	"regexp"
	"strings"

	"github.com/sirupsen/logrus"
)

// config is the server configuration read from the command line.
type config struct {
	Address      string
	DataDir      string
	CacheDir     string
	Radius       float64
	Offline      bool
	LoggingLevel string
	LogFormat    string
}

var availableLoggingLevels = []string{"panic", "fatal", "error", "warn", "info", "debug"}
var availableLoggingLevelsString = strings.Join(availableLoggingLevels, ", ")

// readConfig parses the command line. It calls os.Exit if the configuration
// is invalid.
func readConfig() config {
	cfg := config{}

	flag.StringVar(&cfg.Address, "address", ":8080", "listen host:port")
	flag.StringVar(&cfg.DataDir, "data-dir", "./globe-data", "directory for raw country data")
	flag.StringVar(&cfg.CacheDir, "cache-dir", "./globe-cache", "directory for the country cache, empty disables it")
	flag.Float64Var(&cfg.Radius, "radius", 100, "globe radius in scene units")
	flag.BoolVar(&cfg.Offline, "offline", false, "never download data sets")
	flag.StringVar(&cfg.LoggingLevel, "logging-level", "info", "logging level, one of: "+availableLoggingLevelsString)
	flag.StringVar(&cfg.LogFormat, "log-format", "text", "log format, text or json")
	flag.Parse()

	cfg.LoggingLevel = strings.ToLower(cfg.LoggingLevel)
	cfg.LogFormat = strings.ToLower(cfg.LogFormat)

	invalid := false
	if !regexp.MustCompile(`^.*?:\d+$`).MatchString(cfg.Address) {
		fmt.Fprintf(os.Stderr, "Invalid address: \"%s\"\n", cfg.Address)
		invalid = true
	}
	if !validateLoggingLevel(cfg.LoggingLevel) {
		fmt.Fprintf(os.Stderr, "Invalid logging-level: \"%s\"\n", cfg.LoggingLevel)
		invalid = true
	}
	if cfg.LogFormat != "text" && cfg.LogFormat != "json" {
		fmt.Fprintf(os.Stderr, "Invalid log-format: \"%s\"\n", cfg.LogFormat)
		invalid = true
	}
	if cfg.Radius <= 0 {
		fmt.Fprintf(os.Stderr, "Invalid radius: %v\n", cfg.Radius)
		invalid = true
	}

	if invalid {
		fmt.Fprintf(os.Stderr, "\n")
		flag.Usage()
		os.Exit(1)
	}
	return cfg
}

func validateLoggingLevel(level string) bool {
	for _, l := range availableLoggingLevels {
		if l == level {
			return true
		}
	}
	return false
}

// newLogger builds the process logger. Level and format are already validated.
func newLogger(cfg config) *logrus.Logger {
	log := logrus.New()
	log.Out = os.Stderr
	if level, err := logrus.ParseLevel(cfg.LoggingLevel); err == nil {
		log.SetLevel(level)
	}
	if cfg.LogFormat == "json" {
		log.SetFormatter(&logrus.JSONFormatter{})
	} else {
		log.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	}
	return log
}
