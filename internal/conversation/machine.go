// Package conversation drives the per-user chat flow: login by phone and OTP,
// account views and the two-step package purchase.
package conversation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/m3rciful/xlbot/core/logger"
	"github.com/m3rciful/xlbot/core/telegram/format"
	"github.com/m3rciful/xlbot/internal/activity"
	"github.com/m3rciful/xlbot/internal/auth"
	"github.com/m3rciful/xlbot/internal/models"
	"github.com/m3rciful/xlbot/internal/selection"
	"github.com/m3rciful/xlbot/internal/session"
)

const defaultCallTimeout = 30 * time.Second

// Config tunes the state machine.
type Config struct {
	CallTimeout time.Duration `yaml:"call_timeout" envconfig:"CONVERSATION_CALL_TIMEOUT"`
}

// API is the subset of the partner client the flow needs.
type API interface {
	RequestOTP(ctx context.Context, phone string) (string, error)
	VerifyOTP(ctx context.Context, phone, code string) (models.TokenSet, error)
	Profile(ctx context.Context, tokens models.TokenSet) (models.Profile, error)
	Balance(ctx context.Context, tokens models.TokenSet) (models.Balance, error)
	QuotaDetails(ctx context.Context, tokens models.TokenSet) ([]models.Quota, error)
	ListPackages(ctx context.Context, tokens models.TokenSet) ([]models.PackageSummary, error)
	PackageDetail(ctx context.Context, tokens models.TokenSet, optionCode string) (models.PackageDetail, error)
	Purchase(ctx context.Context, tokens models.TokenSet, optionCode string) (models.PurchaseResult, error)
}

// TokenKeeper refreshes a session's tokens before a protected call.
type TokenKeeper interface {
	EnsureFresh(ctx context.Context, sess *session.Session) (models.TokenSet, error)
}

// Recorder receives audit events.
type Recorder interface {
	Record(ctx context.Context, actor activity.Actor, kind, text string)
}

// Observer counts outcomes; internal/metrics implements it.
type Observer interface {
	Action(kind string)
	Login(outcome string)
	Purchase(outcome string)
}

// Deps wires a Machine. Store, Tokens, Selection and API are required.
type Deps struct {
	Store     *session.Store
	Tokens    TokenKeeper
	Selection *selection.Correlator
	API       API
	Recorder  Recorder
	Observer  Observer
	// ValidPhone is the provider's phone shape check.
	ValidPhone  func(string) bool
	CallTimeout time.Duration
}

// Machine converts every action into exactly one Reply. Turns of the same
// user are serialized by the store's per-user lock; different users proceed
// independently.
type Machine struct {
	store       *session.Store
	tokens      TokenKeeper
	sel         *selection.Correlator
	api         API
	rec         Recorder
	obs         Observer
	validPhone  func(string) bool
	callTimeout time.Duration
}

func New(d Deps) *Machine {
	m := &Machine{
		store:       d.Store,
		tokens:      d.Tokens,
		sel:         d.Selection,
		api:         d.API,
		rec:         d.Recorder,
		obs:         d.Observer,
		validPhone:  d.ValidPhone,
		callTimeout: d.CallTimeout,
	}
	if m.rec == nil {
		m.rec = nopRecorder{}
	}
	if m.obs == nil {
		m.obs = nopObserver{}
	}
	if m.validPhone == nil {
		m.validPhone = func(s string) bool { return s != "" }
	}
	if m.callTimeout <= 0 {
		m.callTimeout = defaultCallTimeout
	}
	return m
}

// Handle processes one action for its user.
func (m *Machine) Handle(ctx context.Context, a Action) Reply {
	unlock := m.store.Lock(a.UserID)
	defer unlock()

	m.obs.Action(string(a.Kind))

	switch a.Kind {
	case KindStart:
		m.store.GetOrCreate(a.UserID)
		return reply(msgWelcome)
	case KindHelp:
		return reply(msgHelp, backRow())
	case KindLogin:
		return m.login(a)
	case KindRelogin:
		return m.relogin(a)
	case KindCancel:
		return m.cancel(a)
	case KindLogout:
		m.store.Reset(a.UserID)
		m.sel.Forget(a.UserID)
		logger.Info(ctx, "session", "session.logout")
		return reply(msgLoggedOut)
	case KindText:
		return m.text(ctx, a)
	}

	sess, ok := m.store.Get(a.UserID)
	if !ok || !sess.Authenticated() {
		return reply(msgNotLoggedIn)
	}
	switch a.Kind {
	case KindMenu, KindBack:
		return m.menu(ctx, a, &sess)
	case KindQuota:
		return m.quota(ctx, a, &sess)
	case KindPackages:
		return m.packages(ctx, a, &sess)
	case KindSelectPackage:
		return m.selectPackage(ctx, a, &sess)
	case KindConfirmPurchase:
		return m.confirmPurchase(ctx, a, &sess)
	}
	logger.Warn(ctx, "conversation", "action.unknown", slog.String("action", string(a.Kind)))
	return reply(msgUseMenu)
}

func (m *Machine) login(a Action) Reply {
	sess := m.store.GetOrCreate(a.UserID)
	if sess.Authenticated() {
		return reply(alreadyLoggedIn(sess.Phone()),
			[]Button{{Text: "🔄 Login Ulang", Unique: CallbackRelogin}},
			[]Button{{Text: "❌ Batal", Unique: CallbackCancel}},
		)
	}
	sess.BeginLogin()
	m.store.Set(a.UserID, sess)
	return reply(msgLoginPrompt)
}

func (m *Machine) relogin(a Action) Reply {
	m.sel.Forget(a.UserID)
	sess := session.New()
	sess.BeginLogin()
	m.store.Set(a.UserID, sess)
	return reply(msgReloginPrompt)
}

func (m *Machine) cancel(a Action) Reply {
	if sess, ok := m.store.Get(a.UserID); ok {
		sess.Cancel()
		m.store.Set(a.UserID, sess)
	}
	return reply(msgCancelled)
}

func (m *Machine) text(ctx context.Context, a Action) Reply {
	sess, ok := m.store.Get(a.UserID)
	if !ok {
		return reply(msgStartFirst)
	}
	input := strings.TrimSpace(a.Payload)
	switch sess.WaitingFor() {
	case session.WaitingPhone:
		return m.submitPhone(ctx, a, sess, input)
	case session.WaitingOtp:
		return m.submitOtp(ctx, a, sess, input)
	}
	return reply(msgUseMenu)
}

func (m *Machine) submitPhone(ctx context.Context, a Action, sess session.Session, phone string) Reply {
	if !m.validPhone(phone) {
		return reply(msgInvalidPhone)
	}
	callCtx, cancel := context.WithTimeout(ctx, m.callTimeout)
	defer cancel()
	if _, err := m.api.RequestOTP(callCtx, phone); err != nil {
		logger.Warn(ctx, "auth", "otp.request",
			slog.String("status", "fail"),
			slog.String("phone", logger.MaskPhone(phone)),
			slog.String("err", err.Error()),
		)
		sess.Cancel()
		m.store.Set(a.UserID, sess)
		return reply(msgOtpSendFail)
	}
	if err := sess.AwaitOtp(phone); err != nil {
		return reply(msgOtpSendFail)
	}
	m.store.Set(a.UserID, sess)
	logger.Info(ctx, "auth", "otp.request",
		slog.String("status", "ok"),
		slog.String("phone", logger.MaskPhone(phone)),
	)
	return reply(msgOtpSent)
}

func (m *Machine) submitOtp(ctx context.Context, a Action, sess session.Session, code string) Reply {
	if !isOtp(code) {
		return reply(msgInvalidOtp)
	}
	phone := sess.Phone()
	callCtx, cancel := context.WithTimeout(ctx, m.callTimeout)
	defer cancel()
	tokens, err := m.api.VerifyOTP(callCtx, phone, code)
	if err == nil {
		err = sess.Authenticate(tokens)
	}
	if err != nil {
		logger.Warn(ctx, "auth", "otp.verify",
			slog.String("status", "fail"),
			slog.String("phone", logger.MaskPhone(phone)),
			slog.String("err", err.Error()),
		)
		m.obs.Login("fail")
		m.store.Reset(a.UserID)
		return reply(msgOtpWrong)
	}
	m.store.Set(a.UserID, sess)
	m.obs.Login("ok")
	logger.Info(ctx, "auth", "otp.verify",
		slog.String("status", "ok"),
		slog.String("phone", logger.MaskPhone(phone)),
	)
	m.rec.Record(ctx, a.Actor, activity.KindLogin, "Login berhasil | Nomor: "+phone)
	return m.menu(ctx, a, &sess)
}

func isOtp(s string) bool {
	if len(s) != 6 {
		return false
	}
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}

// fresh refreshes tokens and stores them. On failure the session is reset
// and ok is false; the caller replies with msgSessionExpire.
func (m *Machine) fresh(ctx context.Context, userID int64, sess *session.Session) (models.TokenSet, bool) {
	tokens, err := m.tokens.EnsureFresh(ctx, sess)
	if err != nil {
		if !errors.Is(err, auth.ErrSessionExpired) {
			err = fmt.Errorf("%w: %w", auth.ErrSessionExpired, err)
		}
		logger.Warn(ctx, "session", "session.expired", slog.String("err", err.Error()))
		m.store.Reset(userID)
		m.sel.Forget(userID)
		return models.TokenSet{}, false
	}
	m.store.Set(userID, *sess)
	return tokens, true
}

func (m *Machine) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, m.callTimeout)
}

func (m *Machine) menu(ctx context.Context, a Action, sess *session.Session) Reply {
	tokens, ok := m.fresh(ctx, a.UserID, sess)
	if !ok {
		return reply(msgSessionExpire)
	}
	callCtx, cancel := m.withTimeout(ctx)
	defer cancel()

	profile, err := m.api.Profile(callCtx, tokens)
	if err != nil {
		return m.stepFailed(ctx, "menu", err, msgMenuFailed)
	}
	balance, err := m.api.Balance(callCtx, tokens)
	if err != nil {
		return m.stepFailed(ctx, "menu", err, msgMenuFailed)
	}
	return reply(accountSummary(profile, balance),
		[]Button{{Text: "📊 Cek Kuota", Unique: CallbackMenuQuota}},
		[]Button{{Text: "📦 Lihat Paket", Unique: CallbackMenuPackages}},
		[]Button{{Text: "ℹ️ Bantuan", Unique: CallbackMenuHelp}},
		[]Button{{Text: "🚪 Logout", Unique: CallbackMenuLogout}},
	)
}

func (m *Machine) quota(ctx context.Context, a Action, sess *session.Session) Reply {
	tokens, ok := m.fresh(ctx, a.UserID, sess)
	if !ok {
		return reply(msgSessionExpire)
	}
	callCtx, cancel := m.withTimeout(ctx)
	defer cancel()

	quotas, err := m.api.QuotaDetails(callCtx, tokens)
	if err != nil {
		return m.stepFailed(ctx, "quota", err, msgQuotaFailed)
	}
	return reply(quotaList(quotas), backRow())
}

func (m *Machine) packages(ctx context.Context, a Action, sess *session.Session) Reply {
	tokens, ok := m.fresh(ctx, a.UserID, sess)
	if !ok {
		return reply(msgSessionExpire)
	}
	callCtx, cancel := m.withTimeout(ctx)
	defer cancel()

	pkgs, err := m.api.ListPackages(callCtx, tokens)
	if err != nil {
		return m.stepFailed(ctx, "packages", err, msgPackagesFailed)
	}

	codes := make([]string, len(pkgs))
	for i, p := range pkgs {
		codes[i] = p.OptionCode
	}
	// A new listing always supersedes the previous one, even when empty.
	entries := m.sel.PublishListing(a.UserID, codes)
	if len(pkgs) == 0 {
		return reply(msgNoPackages, backRow())
	}

	rows := make([][]Button, 0, len(pkgs)+1)
	for i, p := range pkgs {
		p.DisplayCode = entries[i].DisplayCode
		rows = append(rows, []Button{{Text: packageLabel(p), Unique: CallbackPackage, Data: p.DisplayCode}})
	}
	rows = append(rows, backRow())
	logger.Debug(ctx, "purchase", "packages.listed", slog.Int("count", len(pkgs)))
	return Reply{Text: msgPackageList, Buttons: rows}
}

func (m *Machine) selectPackage(ctx context.Context, a Action, sess *session.Session) Reply {
	optionCode, ok := m.sel.ResolveDisplay(a.UserID, a.Payload)
	if !ok {
		logger.Info(ctx, "purchase", "package.not_found", slog.String("code", a.Payload))
		return reply(msgNotFound, backRow())
	}
	tokens, ok := m.fresh(ctx, a.UserID, sess)
	if !ok {
		return reply(msgSessionExpire)
	}
	callCtx, cancel := m.withTimeout(ctx)
	defer cancel()

	detail, err := m.api.PackageDetail(callCtx, tokens, optionCode)
	if err != nil {
		return m.stepFailed(ctx, "package_detail", err, msgDetailFailed)
	}
	token := m.sel.PublishConfirmation(a.UserID, optionCode)
	return reply(packageDetail(detail),
		[]Button{{Text: "✅ Ya, Beli", Unique: CallbackConfirm, Data: token}},
		backRow(),
	)
}

func (m *Machine) confirmPurchase(ctx context.Context, a Action, sess *session.Session) Reply {
	// Consumed up front: a double tap cannot buy twice.
	optionCode, ok := m.sel.ConsumeConfirmation(a.UserID, a.Payload)
	if !ok {
		logger.Info(ctx, "purchase", "confirmation.not_found", slog.String("code", a.Payload))
		return reply(msgNotFound, backRow())
	}
	tokens, ok := m.fresh(ctx, a.UserID, sess)
	if !ok {
		return reply(msgSessionExpire)
	}
	phone := sess.Phone()

	callCtx, cancel := m.withTimeout(ctx)
	defer cancel()
	result, err := m.api.Purchase(callCtx, tokens, optionCode)
	if err != nil {
		m.obs.Purchase("error")
		logger.Error(ctx, "purchase", "purchase.error",
			slog.String("status", "fail"),
			slog.String("option_code", optionCode),
			slog.String("phone", logger.MaskPhone(phone)),
			slog.String("err", err.Error()),
		)
		m.rec.Record(ctx, a.Actor, activity.KindPurchaseFailed,
			fmt.Sprintf("ERROR saat pembelian | Nomor: %s | PackageCode: %s | Error: %v", phone, optionCode, err))
		return reply(msgPurchaseError, backRow())
	}

	if result.Succeeded() {
		name, price := m.purchasedPackage(ctx, tokens, optionCode)
		m.obs.Purchase("ok")
		logger.Info(ctx, "purchase", "purchase.completed",
			slog.String("status", "ok"),
			slog.String("option_code", optionCode),
			slog.String("phone", logger.MaskPhone(phone)),
		)
		m.rec.Record(ctx, a.Actor, activity.KindPurchase,
			fmt.Sprintf("Pembelian paket sukses | Nomor: %s | Paket: %s | Harga: %s", phone, name, format.Rupiah(price)))
		return reply(purchaseSucceeded(name, price), backRow())
	}

	human := failureMessage(result.ReasonCode)
	reason := human
	if result.ReasonCode != "" && result.ReasonCode != human {
		reason = fmt.Sprintf("%s (%s)", human, result.ReasonCode)
	}
	m.obs.Purchase("rejected")
	logger.Warn(ctx, "purchase", "purchase.rejected",
		slog.String("status", "fail"),
		slog.String("option_code", optionCode),
		slog.String("phone", logger.MaskPhone(phone)),
		slog.String("err_code", result.ReasonCode),
	)
	m.rec.Record(ctx, a.Actor, activity.KindPurchaseFailed,
		fmt.Sprintf("Pembelian paket GAGAL | Nomor: %s | PaketCode: %s | Alasan: %s", phone, optionCode, reason))
	return reply(purchaseFailed(human), backRow())
}

// purchasedPackage re-fetches the bought package for the receipt. A failure
// only degrades the display.
func (m *Machine) purchasedPackage(ctx context.Context, tokens models.TokenSet, optionCode string) (string, int64) {
	callCtx, cancel := m.withTimeout(ctx)
	defer cancel()
	d, err := m.api.PackageDetail(callCtx, tokens, optionCode)
	if err != nil {
		logger.Warn(ctx, "purchase", "purchase.detail_refetch",
			slog.String("status", "fail"),
			slog.String("option_code", optionCode),
			slog.String("err", err.Error()),
		)
		return unknownPackageName, 0
	}
	name := d.OptionName
	if name == "" {
		name = unknownPackageName
	}
	return name, d.Price
}

func (m *Machine) stepFailed(ctx context.Context, step string, err error, text string) Reply {
	logger.Error(ctx, "conversation", "step.failed",
		slog.String("status", "fail"),
		slog.String("action", step),
		slog.String("err", err.Error()),
	)
	return reply(text, backRow())
}

type nopRecorder struct{}

func (nopRecorder) Record(context.Context, activity.Actor, string, string) {}

type nopObserver struct{}

func (nopObserver) Action(string)   {}
func (nopObserver) Login(string)    {}
func (nopObserver) Purchase(string) {}
