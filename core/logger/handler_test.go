package logger

import (
	"bytes"
	"io"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestHandler(buf *bytes.Buffer, format logFormat) (*structuredHandler, *asyncWriter) {
	aw := newAsyncWriter([]io.Writer{buf}, 1024)
	return newStructuredHandler(handlerConfig{
		level:    slog.LevelInfo,
		writer:   aw,
		format:   format,
		keyOrder: append([]string(nil), defaultKeyOrder...),
	}), aw
}

func TestStructuredHandlerKVOrder(t *testing.T) {
	buf := &bytes.Buffer{}
	h, aw := newTestHandler(buf, formatKV)

	ctx := WithRID(Background(), "rid-123")
	ctx = WithUpdateMeta(ctx, 42, 7, 9)
	LogEvent(ctx, slog.New(h).With("component", "app"), slog.LevelInfo, "test.event",
		slog.String("status", "ok"),
		slog.String("err_code", "unit"),
	)
	require.NoError(t, aw.Close())

	tokens := strings.Split(strings.TrimSpace(buf.String()), " ")
	require.GreaterOrEqual(t, len(tokens), 6)
	for i, prefix := range []string{"ts=", "level=INFO", "component=app", "event=test.event", "status=ok", "rid=rid-123"} {
		assert.True(t, strings.HasPrefix(tokens[i], prefix), "token %d = %s, want prefix %s", i, tokens[i], prefix)
	}
	assert.Contains(t, buf.String(), "update_id=42")
	assert.Contains(t, buf.String(), "user_id=7")
}

func TestStructuredHandlerJSONOrder(t *testing.T) {
	buf := &bytes.Buffer{}
	h, aw := newTestHandler(buf, formatJSON)

	ctx := WithRID(Background(), "rid-json")
	LogEvent(ctx, slog.New(h).With("component", "purchase"), slog.LevelError, "purchase.failed",
		slog.String("status", "fail"),
		slog.String("err", "boom"),
	)
	require.NoError(t, aw.Close())

	line := strings.TrimSpace(buf.String())
	pos := -1
	for _, pref := range []string{`{"ts":`, `"level":"ERROR"`, `"component":"purchase"`, `"event":"purchase.failed"`, `"status":"fail"`, `"rid":"rid-json"`} {
		idx := strings.Index(line, pref)
		require.True(t, idx > pos, "prefix %s out of order in %s", pref, line)
		pos = idx
	}
	assert.Contains(t, line, `"ts_unix_nano"`)
}

func TestStructuredHandlerCompactRID(t *testing.T) {
	buf := &bytes.Buffer{}
	h, aw := newTestHandler(buf, formatJSON)

	raw := "12:34:56"
	LogEvent(WithRID(Background(), raw), slog.New(h), slog.LevelInfo, "rid.test")
	require.NoError(t, aw.Close())

	line := buf.String()
	assert.Contains(t, line, `"rid":"`+CompactRID(raw)+`"`)
	assert.Contains(t, line, `"rid_full":"`+raw+`"`)
	assert.Contains(t, line, `"component":"app"`)
}

func TestStructuredHandlerDurationsAndEmpties(t *testing.T) {
	buf := &bytes.Buffer{}
	h, aw := newTestHandler(buf, formatKV)

	LogEvent(Background(), slog.New(h), slog.LevelInfo, "call.done",
		slog.Duration("duration", 1500*time.Microsecond),
		slog.Duration("refresh", 2*time.Second),
		slog.String("empty", ""),
	)
	require.NoError(t, aw.Close())

	line := buf.String()
	assert.Contains(t, line, "duration_ms=2")
	assert.Contains(t, line, "refresh_ms=2000")
	assert.NotContains(t, line, "empty=")
}

func TestStructuredHandlerRespectsLevel(t *testing.T) {
	buf := &bytes.Buffer{}
	h, aw := newTestHandler(buf, formatKV)
	LogEvent(Background(), slog.New(h), slog.LevelDebug, "hidden")
	require.NoError(t, aw.Close())
	assert.Empty(t, buf.String())
}

func TestCompactRID(t *testing.T) {
	assert.Equal(t, "3f.ca.lx", CompactRID("123:442:789"))
	assert.Equal(t, "not-a-rid", CompactRID("not-a-rid"))
	assert.Equal(t, "1:x:3", CompactRID("1:x:3"))
}

func TestMaskPhone(t *testing.T) {
	assert.Equal(t, "628*******890", MaskPhone("6281234567890"))
	assert.Equal(t, "****", MaskPhone("1234"))
}

func TestRatioSampler(t *testing.T) {
	s := newRatioSampler(1, 3)
	got := []bool{s.Allow(), s.Allow(), s.Allow(), s.Allow()}
	assert.Equal(t, []bool{true, false, false, true}, got)

	s.Set(0, 0)
	assert.True(t, s.Allow())

	num, den := parseRatioSpec("2/10")
	assert.Equal(t, 2, num)
	assert.Equal(t, 10, den)
	num, den = parseRatioSpec("25")
	assert.Equal(t, 1, num)
	assert.Equal(t, 25, den)
}
