package notify

import (
	"bytes"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemorySink_FiltersByKind(t *testing.T) {
	sink := &MemorySink{}

	sink.Notify(Event{Kind: KindAdvisory, Message: "heads up"})
	sink.Notify(Event{Kind: KindError, Message: "fetch failed", ItemName: "a.jpg"})
	sink.Notify(Event{Kind: KindError, Message: "fetch failed", ItemName: "b.jpg"})

	require.Len(t, sink.Events, 3)

	advisories := sink.Advisories()
	require.Len(t, advisories, 1)
	assert.Equal(t, "heads up", advisories[0].Message)

	errs := sink.Errors()
	require.Len(t, errs, 2)
	assert.Equal(t, "a.jpg", errs[0].ItemName)
	assert.Equal(t, "b.jpg", errs[1].ItemName)
}

func TestLogSink_LevelsPerKind(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelInfo}))
	sink := LogSink{Logger: logger}

	sink.Notify(Event{Kind: KindAdvisory, Message: "manual trigger needed"})
	sink.Notify(Event{Kind: KindError, Message: "download failed", ItemName: "c.jpg"})

	out := buf.String()
	assert.Contains(t, out, "level=INFO")
	assert.Contains(t, out, "manual trigger needed")
	assert.Contains(t, out, "level=WARN")
	assert.Contains(t, out, "item=c.jpg")
}

func TestMultiSink_FansOut(t *testing.T) {
	a := &MemorySink{}
	b := &MemorySink{}

	MultiSink{a, b}.Notify(Event{Kind: KindAdvisory, Message: "shared"})

	require.Len(t, a.Events, 1)
	require.Len(t, b.Events, 1)
	assert.Equal(t, a.Events[0], b.Events[0])
}

func TestLogSink_NilLoggerUsesDefault(t *testing.T) {
	assert.NotPanics(t, func() {
		LogSink{}.Notify(Event{Kind: KindAdvisory, Message: "no logger configured"})
	})
}
