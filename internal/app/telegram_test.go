package app

import (
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	tele "gopkg.in/telebot.v4"

	coreconfig "github.com/m3rciful/xlbot/core/config"
	"github.com/m3rciful/xlbot/internal/conversation"
	"github.com/m3rciful/xlbot/internal/session"
	"github.com/m3rciful/xlbot/internal/xlapi"
)

type sentMessage struct {
	text   string
	edited bool
	opts   []interface{}
}

// fakeContext covers the part of tele.Context the adapter and helpers use.
type fakeContext struct {
	tele.Context
	update tele.Update
	store  map[string]interface{}
	sent   []sentMessage
}

func messageContext(userID int64, text string) *fakeContext {
	user := &tele.User{ID: userID, FirstName: "Budi", LastName: "S", Username: "budi"}
	return &fakeContext{
		update: tele.Update{ID: 1, Message: &tele.Message{Sender: user, Chat: &tele.Chat{ID: userID}, Text: text}},
		store:  map[string]interface{}{},
	}
}

func callbackContext(userID int64, data string) *fakeContext {
	user := &tele.User{ID: userID}
	return &fakeContext{
		update: tele.Update{ID: 2, Callback: &tele.Callback{Sender: user, Data: data}},
		store:  map[string]interface{}{},
	}
}

func (f *fakeContext) Update() tele.Update      { return f.update }
func (f *fakeContext) Callback() *tele.Callback { return f.update.Callback }
func (f *fakeContext) Sender() *tele.User {
	if f.update.Callback != nil {
		return f.update.Callback.Sender
	}
	return f.update.Message.Sender
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
func (f *fakeContext) Send(what interface{}, opts ...interface{}) error {
	f.sent = append(f.sent, sentMessage{text: what.(string), opts: opts})
	return nil
}
func (f *fakeContext) EditOrSend(what interface{}, opts ...interface{}) error {
	f.sent = append(f.sent, sentMessage{text: what.(string), edited: true, opts: opts})
	return nil
}

func newTestApp(t *testing.T, handler http.HandlerFunc) *App {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	cfg := &Config{
		Config: coreconfig.Config{Telegram: coreconfig.TelegramConfig{Token: "t", AdminID: 99}},
		XL:     xlapi.Config{BaseURL: srv.URL, APIKey: "k", PackageFamily: "F"},
	}
	cfg.Activity.File = filepath.Join(t.TempDir(), "activity.log")
	require.NoError(t, cfg.Normalize())
	return New(cfg, nil)
}

func otpServer(w http.ResponseWriter, r *http.Request) {
	_, _ = io.Copy(io.Discard, r.Body)
	w.Header().Set("Content-Type", "application/json")
	_, _ = io.WriteString(w, `{"status":"SUCCESS","data":{"subscriber_id":"sub"}}`)
}

func TestRegistryDeclaresCommandsAndCallbacks(t *testing.T) {
	a := newTestApp(t, otpServer)
	reg := a.Registry()

	var names []string
	for _, c := range reg.ListCommands(true) {
		names = append(names, c.Text)
	}
	sort.Strings(names)
	assert.Equal(t, []string{"cancel", "help", "kuota", "login", "logout", "menu", "packages", "start"}, names)

	key, _, ok := reg.LookupCommand("/quota")
	require.True(t, ok)
	assert.Equal(t, "/kuota", key)

	assert.ElementsMatch(t, []string{
		conversation.CallbackCancel, conversation.CallbackRelogin, conversation.CallbackMenuQuota,
		conversation.CallbackMenuPackages, conversation.CallbackMenuHelp, conversation.CallbackMenuBack,
		conversation.CallbackMenuLogout, conversation.CallbackPackage, conversation.CallbackConfirm,
	}, reg.ListCallbacks())
	assert.NotNil(t, reg.TextFallback())
}

func TestLoginFlowThroughAdapter(t *testing.T) {
	a := newTestApp(t, otpServer)
	reg := a.Registry()

	_, login, ok := reg.LookupCommand("/login")
	require.True(t, ok)
	c := messageContext(7, "/login")
	require.NoError(t, login.Handler(c))
	require.Len(t, c.sent, 1)
	assert.Contains(t, c.sent[0].text, "Login ke MyXL")
	assert.False(t, c.sent[0].edited)

	c = messageContext(7, "6281234567890")
	require.NoError(t, reg.TextFallback()(c))
	require.Len(t, c.sent, 1)
	assert.Contains(t, c.sent[0].text, "OTP dikirim")

	sess, ok := a.store.Get(7)
	require.True(t, ok)
	assert.Equal(t, session.WaitingOtp, sess.WaitingFor())
}

func TestCallbackPayloadIsDecoded(t *testing.T) {
	a := newTestApp(t, otpServer)
	reg := a.Registry()

	h, ok := reg.GetCallback(conversation.CallbackPackage)
	require.True(t, ok)
	c := callbackContext(8, "\fpkg|pkg1")
	require.NoError(t, h(c))
	require.Len(t, c.sent, 1)
	assert.True(t, c.sent[0].edited)
	assert.Contains(t, c.sent[0].text, "belum login")
}

func TestReplyMarkup(t *testing.T) {
	assert.Nil(t, replyMarkup(nil))

	m := replyMarkup([][]conversation.Button{
		{{Text: "A", Unique: "pkg", Data: "pkg1"}},
		{{Text: "B", Unique: "menu_back"}},
	})
	require.NotNil(t, m)
	require.Len(t, m.InlineKeyboard, 2)
	assert.Equal(t, "pkg", m.InlineKeyboard[0][0].Unique)
	assert.Equal(t, "pkg1", m.InlineKeyboard[0][0].Data)
}

func TestActorOf(t *testing.T) {
	act := actorOf(&tele.User{ID: 3, FirstName: "Siti", Username: "siti"})
	assert.Equal(t, int64(3), act.ID)
	assert.Equal(t, "Siti", act.FullName)
	assert.Equal(t, "siti", act.Username)
}

func TestServicesOnlyWhenListening(t *testing.T) {
	a := newTestApp(t, otpServer)
	assert.Empty(t, a.Services())
	a.cfg.Metrics.Listen = "127.0.0.1:0"
	assert.Len(t, a.Services(), 1)
	assert.NoError(t, a.Close())
}
