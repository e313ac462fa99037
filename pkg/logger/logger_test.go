package logger

import (
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestZapLogger_WritesStructuredFields(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	log := FromZap(zap.New(core))

	log.Info("auction opened", "auction_id", "a1")
	log.With("instance", "i1").Warn("leadership lost")

	entries := logs.All()
	require.Len(t, entries, 2)

	require.Equal(t, "auction opened", entries[0].Message)
	require.Equal(t, "a1", entries[0].ContextMap()["auction_id"])

	require.Equal(t, zapcore.WarnLevel, entries[1].Level)
	require.Equal(t, "i1", entries[1].ContextMap()["instance"])
}

func TestNewWithLevel_UnknownLevelFallsBackToInfo(t *testing.T) {
	require.NotPanics(t, func() {
		log := NewWithLevel("chatty")
		log.Debug("dropped")
	})
}
