package main

import (
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
)

func TestValidateLoggingLevel(t *testing.T) {
	for _, l := range availableLoggingLevels {
		assert.True(t, validateLoggingLevel(l), l)
	}
	assert.False(t, validateLoggingLevel("trace"))
	assert.False(t, validateLoggingLevel("INFO"))
	assert.False(t, validateLoggingLevel(""))
}

func TestNewLogger(t *testing.T) {
	log := newLogger(config{LoggingLevel: "debug", LogFormat: "json"})
	assert.Equal(t, logrus.DebugLevel, log.GetLevel())
	assert.IsType(t, &logrus.JSONFormatter{}, log.Formatter)

	log = newLogger(config{LoggingLevel: "warn", LogFormat: "text"})
	assert.Equal(t, logrus.WarnLevel, log.GetLevel())
	assert.IsType(t, &logrus.TextFormatter{}, log.Formatter)
}
