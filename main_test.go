package main

import (
	"io"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSetLogLevel(t *testing.T) {
	tests := []struct {
		level string
		want  logrus.Level
	}{
		{"debug", logrus.DebugLevel},
		{"WARN", logrus.WarnLevel},
		{"", logrus.InfoLevel},
		{"chatty", logrus.InfoLevel},
	}
	for _, tt := range tests {
		t.Run(tt.level, func(t *testing.T) {
			log := logrus.New()
			log.SetOutput(io.Discard)
			log.SetLevel(logrus.PanicLevel)

			setLogLevel(log, tt.level)
			assert.Equal(t, tt.want, log.GetLevel())
		})
	}
}

func TestLoadConfig_AppliesLogLevel(t *testing.T) {
	t.Setenv("LOG_LEVEL", "debug")
	t.Setenv("STORAGE", "memory")
	t.Setenv("SESSION_TIMEOUT", "30m")
	log := logrus.New()
	log.SetOutput(io.Discard)

	cfg, err := loadConfig(log)
	require.NoError(t, err)
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, logrus.DebugLevel, log.GetLevel())
}
