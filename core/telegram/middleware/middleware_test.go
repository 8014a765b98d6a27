package middleware

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	tele "gopkg.in/telebot.v4"
)

// fakeContext implements the slice of tele.Context the middlewares touch.
type fakeContext struct {
	tele.Context
	update tele.Update
	store  map[string]interface{}
	sent   []interface{}
}

func newFakeContext(userID int64, upd tele.Update) *fakeContext {
	if upd.Message == nil && upd.Callback == nil {
		upd.Message = &tele.Message{Sender: &tele.User{ID: userID}, Chat: &tele.Chat{ID: userID}}
	}
	return &fakeContext{update: upd, store: map[string]interface{}{}}
}

func (f *fakeContext) Update() tele.Update { return f.update }

func (f *fakeContext) Sender() *tele.User {
	switch {
	case f.update.Callback != nil:
		return f.update.Callback.Sender
	case f.update.Message != nil:
		return f.update.Message.Sender
	}
	return nil
}

func (f *fakeContext) Chat() *tele.Chat {
	if f.update.Message != nil {
		return f.update.Message.Chat
	}
	return nil
}

func (f *fakeContext) Text() string {
	if f.update.Message != nil {
		return f.update.Message.Text
	}
	return ""
}

func (f *fakeContext) Set(k string, v interface{}) { f.store[k] = v }
func (f *fakeContext) Get(k string) interface{}    { return f.store[k] }

func (f *fakeContext) Send(what interface{}, _ ...interface{}) error {
	f.sent = append(f.sent, what)
	return nil
}

func TestRateLimitMiddleware(t *testing.T) {
	limited := 0
	mw := RateLimitMiddleware(RateLimitOptions{
		Interval:  time.Hour,
		Exclude:   map[string]struct{}{"callback": {}},
		OnLimited: func(tele.Context) error { limited++; return nil },
	})
	calls := 0
	h := mw(func(tele.Context) error { calls++; return nil })

	msg := newFakeContext(7, tele.Update{})
	require.NoError(t, h(msg))
	require.NoError(t, h(msg))
	assert.Equal(t, 1, calls)
	assert.Equal(t, 1, limited)

	cb := newFakeContext(7, tele.Update{Callback: &tele.Callback{Sender: &tele.User{ID: 7}}})
	require.NoError(t, h(cb))
	assert.Equal(t, 2, calls)

	require.NoError(t, h(newFakeContext(8, tele.Update{})))
	assert.Equal(t, 3, calls)
}

func TestAdminOnlyMiddleware(t *testing.T) {
	rejected := 0
	mw := AdminOnlyMiddleware(AdminOptions{AdminID: 1, OnReject: func(tele.Context) error { rejected++; return nil }})
	calls := 0
	h := mw(func(tele.Context) error { calls++; return nil })

	require.NoError(t, h(newFakeContext(1, tele.Update{})))
	require.NoError(t, h(newFakeContext(2, tele.Update{})))
	assert.Equal(t, 1, calls)
	assert.Equal(t, 1, rejected)

	closed := AdminOnlyMiddleware(AdminOptions{})(func(tele.Context) error { calls++; return nil })
	require.NoError(t, closed(newFakeContext(1, tele.Update{})))
	assert.Equal(t, 1, calls)
}

func TestRecoverMiddleware(t *testing.T) {
	h := RecoverMiddleware(func(tele.Context) error { panic("boom") })
	err := h(newFakeContext(1, tele.Update{}))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "boom")

	sentinel := errors.New("plain")
	h = RecoverMiddleware(func(tele.Context) error { return sentinel })
	assert.ErrorIs(t, h(newFakeContext(1, tele.Update{})), sentinel)
}

func TestMessageMetricsMiddlewareCounts(t *testing.T) {
	c := newFakeContext(1, tele.Update{})
	h := MessageMetricsMiddleware(func(c tele.Context) error {
		_ = c.Send("one")
		return c.Send("two", &tele.SendOptions{ReplyMarkup: &tele.ReplyMarkup{}})
	})
	require.NoError(t, h(c))

	msgs, kb := GetCounters(c)
	assert.Equal(t, 2, msgs)
	assert.True(t, kb)
}

func TestLoggerMiddlewareSetsRID(t *testing.T) {
	c := newFakeContext(5, tele.Update{ID: 11})
	h := LoggerMiddleware(func(tele.Context) error { return nil })
	require.NoError(t, h(c))
	assert.Equal(t, "11:5:5", c.Get("rid"))
}
