package conversation

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/m3rciful/xlbot/internal/activity"
	"github.com/m3rciful/xlbot/internal/auth"
	"github.com/m3rciful/xlbot/internal/models"
	"github.com/m3rciful/xlbot/internal/selection"
	"github.com/m3rciful/xlbot/internal/session"
	"github.com/m3rciful/xlbot/internal/xlapi"
)

const (
	testUser  int64 = 1001
	testPhone       = "6281234567890"
)

var errUpstream = errors.New("upstream unavailable")

type fakeAPI struct {
	mu sync.Mutex

	otpErr     error
	verifyErr  error
	refreshErr error
	listErr    error
	detailErr  error
	purchase   models.PurchaseResult
	purchErr   error
	packages   []models.PackageSummary
	details    map[string]models.PackageDetail
	// detailFailAfter makes PackageDetail fail once it has been called this many times.
	detailFailAfter int

	refreshes   int
	detailCalls int
	purchased   []string
}

func newFakeAPI() *fakeAPI {
	return &fakeAPI{
		purchase: models.PurchaseResult{Status: models.PurchaseSuccess},
		packages: []models.PackageSummary{
			{OptionCode: "OPT-AAAAAAAA-1", Name: "Xtra 10GB", Price: 50000},
			{OptionCode: "OPT-BBBBBBBB-2", Name: "Xtra 20GB", Price: 75000},
			{OptionCode: "OPT-CCCCCCCC-3", Name: "Xtra 30GB", Price: 99000},
		},
		details: map[string]models.PackageDetail{
			"OPT-BBBBBBBB-2": {OptionCode: "OPT-BBBBBBBB-2", FamilyName: "Xtra", OptionName: "20GB", Price: 75000},
		},
	}
}

func (f *fakeAPI) RequestOTP(context.Context, string) (string, error) {
	if f.otpErr != nil {
		return "", f.otpErr
	}
	return "sub-1", nil
}

func (f *fakeAPI) VerifyOTP(_ context.Context, _, code string) (models.TokenSet, error) {
	if f.verifyErr != nil {
		return models.TokenSet{}, f.verifyErr
	}
	return models.TokenSet{AccessToken: "a0", IDToken: "i0", RefreshToken: "r0-" + code}, nil
}

func (f *fakeAPI) RefreshTokens(context.Context, string) (models.TokenSet, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.refreshes++
	if f.refreshErr != nil {
		return models.TokenSet{}, f.refreshErr
	}
	return models.TokenSet{AccessToken: "a", IDToken: "i", RefreshToken: "r"}, nil
}

func (f *fakeAPI) Profile(context.Context, models.TokenSet) (models.Profile, error) {
	return models.Profile{MSISDN: testPhone}, nil
}

func (f *fakeAPI) Balance(context.Context, models.TokenSet) (models.Balance, error) {
	return models.Balance{Remaining: 12500}, nil
}

func (f *fakeAPI) QuotaDetails(context.Context, models.TokenSet) ([]models.Quota, error) {
	return []models.Quota{{Name: "Kuota Utama", Remaining: 1024, Total: 2048}}, nil
}

func (f *fakeAPI) ListPackages(context.Context, models.TokenSet) ([]models.PackageSummary, error) {
	if f.listErr != nil {
		return nil, f.listErr
	}
	return append([]models.PackageSummary(nil), f.packages...), nil
}

func (f *fakeAPI) PackageDetail(_ context.Context, _ models.TokenSet, code string) (models.PackageDetail, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.detailCalls++
	if f.detailErr != nil || (f.detailFailAfter > 0 && f.detailCalls > f.detailFailAfter) {
		return models.PackageDetail{}, errUpstream
	}
	if d, ok := f.details[code]; ok {
		return d, nil
	}
	return models.PackageDetail{OptionCode: code, OptionName: code, Price: 1}, nil
}

func (f *fakeAPI) Purchase(_ context.Context, _ models.TokenSet, code string) (models.PurchaseResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.purchased = append(f.purchased, code)
	return f.purchase, f.purchErr
}

type recorded struct {
	kind string
	text string
}

type fakeRecorder struct {
	mu     sync.Mutex
	events []recorded
}

func (r *fakeRecorder) Record(_ context.Context, _ activity.Actor, kind, text string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, recorded{kind: kind, text: text})
}

type fakeObserver struct {
	mu        sync.Mutex
	purchases []string
}

func (o *fakeObserver) Action(string) {}
func (o *fakeObserver) Login(string)  {}

func (o *fakeObserver) Purchase(outcome string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.purchases = append(o.purchases, outcome)
}

type harness struct {
	m     *Machine
	api   *fakeAPI
	rec   *fakeRecorder
	obs   *fakeObserver
	store *session.Store
	sel   *selection.Correlator
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	h := &harness{
		api:   newFakeAPI(),
		rec:   &fakeRecorder{},
		obs:   &fakeObserver{},
		store: session.NewStore(),
		sel:   selection.New(),
	}
	h.m = New(Deps{
		Store:      h.store,
		Tokens:     auth.NewManager(h.api),
		Selection:  h.sel,
		API:        h.api,
		Recorder:   h.rec,
		Observer:   h.obs,
		ValidPhone: xlapi.ValidContact,
	})
	return h
}

func (h *harness) do(kind Kind, payload string) Reply {
	return h.m.Handle(context.Background(), Action{Kind: kind, UserID: testUser, Payload: payload})
}

func (h *harness) session(t *testing.T) session.Session {
	t.Helper()
	sess, ok := h.store.Get(testUser)
	require.True(t, ok)
	require.NoError(t, sess.Invariant())
	return sess
}

func (h *harness) loggedIn(t *testing.T) {
	t.Helper()
	h.do(KindLogin, "")
	h.do(KindText, testPhone)
	h.do(KindText, "123456")
	require.True(t, h.session(t).Authenticated())
	h.rec.events = nil
}

func buttonsWith(r Reply, unique string) []Button {
	var out []Button
	for _, row := range r.Buttons {
		for _, b := range row {
			if b.Unique == unique {
				out = append(out, b)
			}
		}
	}
	return out
}

func TestPhoneThenFailedOtpResetsSession(t *testing.T) {
	h := newHarness(t)

	r := h.do(KindLogin, "")
	assert.Equal(t, msgLoginPrompt, r.Text)
	assert.Equal(t, session.WaitingPhone, h.session(t).WaitingFor())

	r = h.do(KindText, testPhone)
	assert.Equal(t, msgOtpSent, r.Text)
	sess := h.session(t)
	assert.Equal(t, session.StateAwaitingOtp, sess.State())
	assert.Equal(t, session.WaitingOtp, sess.WaitingFor())
	assert.Equal(t, testPhone, sess.Phone())

	h.api.verifyErr = errUpstream
	r = h.do(KindText, "000000")
	assert.Equal(t, msgOtpWrong, r.Text)
	sess = h.session(t)
	assert.Equal(t, session.StateIdle, sess.State())
	assert.Equal(t, session.WaitingNone, sess.WaitingFor())
	assert.False(t, sess.Authenticated())
	assert.Empty(t, sess.Phone())
}

func TestInvalidInputRepromptsWithoutStateChange(t *testing.T) {
	h := newHarness(t)
	h.do(KindLogin, "")

	r := h.do(KindText, "08123")
	assert.Equal(t, msgInvalidPhone, r.Text)
	assert.Equal(t, session.WaitingPhone, h.session(t).WaitingFor())

	h.do(KindText, testPhone)
	for _, bad := range []string{"12345", "1234567", "12a456", "１２３４５６"} {
		r = h.do(KindText, bad)
		assert.Equal(t, msgInvalidOtp, r.Text, bad)
		assert.Equal(t, session.WaitingOtp, h.session(t).WaitingFor())
	}
}

func TestOtpSendFailureReturnsToIdle(t *testing.T) {
	h := newHarness(t)
	h.api.otpErr = errUpstream
	h.do(KindLogin, "")

	r := h.do(KindText, testPhone)
	assert.Equal(t, msgOtpSendFail, r.Text)
	sess := h.session(t)
	assert.Equal(t, session.StateIdle, sess.State())
	assert.Equal(t, session.WaitingNone, sess.WaitingFor())
	assert.Empty(t, sess.Phone())
}

func TestSuccessfulLoginRecordsAndShowsMenu(t *testing.T) {
	h := newHarness(t)
	h.do(KindLogin, "")
	h.do(KindText, testPhone)

	r := h.do(KindText, "123456")
	assert.Contains(t, r.Text, "Menu Utama")
	assert.Contains(t, r.Text, "Rp 12.500")
	assert.Len(t, buttonsWith(r, CallbackMenuPackages), 1)

	require.Len(t, h.rec.events, 1)
	assert.Equal(t, activity.KindLogin, h.rec.events[0].kind)
	assert.Equal(t, "Login berhasil | Nomor: "+testPhone, h.rec.events[0].text)

	tokens, ok := h.session(t).Tokens()
	require.True(t, ok)
	assert.Equal(t, "r", tokens.RefreshToken, "menu refreshes before its protected calls")
}

func TestLoginWhenAuthenticatedOffersRelogin(t *testing.T) {
	h := newHarness(t)
	h.loggedIn(t)

	r := h.do(KindLogin, "")
	assert.Contains(t, r.Text, "Anda sudah login sebagai")
	assert.Len(t, buttonsWith(r, CallbackRelogin), 1)
	assert.Len(t, buttonsWith(r, CallbackCancel), 1)
	assert.True(t, h.session(t).Authenticated())

	r = h.do(KindCancel, "")
	assert.Equal(t, msgCancelled, r.Text)
	assert.True(t, h.session(t).Authenticated())

	r = h.do(KindRelogin, "")
	assert.Equal(t, msgReloginPrompt, r.Text)
	sess := h.session(t)
	assert.False(t, sess.Authenticated())
	assert.Equal(t, session.WaitingPhone, sess.WaitingFor())
}

func TestListingAndSelectionCorrelate(t *testing.T) {
	h := newHarness(t)
	h.loggedIn(t)

	r := h.do(KindPackages, "")
	assert.Equal(t, msgPackageList, r.Text)
	pkgButtons := buttonsWith(r, CallbackPackage)
	require.Len(t, pkgButtons, 3)
	for i, b := range pkgButtons {
		assert.Equal(t, []string{"pkg1", "pkg2", "pkg3"}[i], b.Data)
		code, ok := h.sel.ResolveDisplay(testUser, b.Data)
		require.True(t, ok)
		assert.Equal(t, h.api.packages[i].OptionCode, code)
	}
	assert.Equal(t, "📦 Xtra 20GB - Rp 75.000", pkgButtons[1].Text)

	r = h.do(KindSelectPackage, "pkg2")
	assert.Contains(t, r.Text, "Detail Paket")
	assert.Contains(t, r.Text, "Rp 75.000")
	confirm := buttonsWith(r, CallbackConfirm)
	require.Len(t, confirm, 1)
	assert.Equal(t, "confirm_1001_OPT-BBBB", confirm[0].Data)

	code, ok := h.sel.ResolveConfirmation(testUser, confirm[0].Data)
	require.True(t, ok)
	assert.Equal(t, "OPT-BBBBBBBB-2", code)
}

func TestStaleDisplayCodeIsNotFound(t *testing.T) {
	h := newHarness(t)
	h.loggedIn(t)

	h.do(KindPackages, "")
	h.api.packages = h.api.packages[:1]
	h.do(KindPackages, "")

	r := h.do(KindSelectPackage, "pkg2")
	assert.Equal(t, msgNotFound, r.Text)
	assert.Zero(t, h.api.detailCalls)
}

func TestPurchaseBalanceInsufficient(t *testing.T) {
	h := newHarness(t)
	h.loggedIn(t)
	h.api.purchase = models.PurchaseResult{Status: models.PurchaseFailed, ReasonCode: models.ReasonBalanceInsufficient}

	h.do(KindPackages, "")
	token := buttonsWith(h.do(KindSelectPackage, "pkg2"), CallbackConfirm)[0].Data

	r := h.do(KindConfirmPurchase, token)
	assert.Contains(t, r.Text, msgBalanceInsufficient)
	assert.Equal(t, []string{"OPT-BBBBBBBB-2"}, h.api.purchased)

	require.Len(t, h.rec.events, 1)
	ev := h.rec.events[0]
	assert.Equal(t, activity.KindPurchaseFailed, ev.kind)
	assert.Contains(t, ev.text, testPhone)
	assert.Contains(t, ev.text, models.ReasonBalanceInsufficient)
}

func TestPurchaseTransportErrorIsReportedAndRecorded(t *testing.T) {
	h := newHarness(t)
	h.loggedIn(t)
	h.api.purchErr = errUpstream
	h.api.purchase = models.PurchaseResult{}

	h.do(KindPackages, "")
	token := buttonsWith(h.do(KindSelectPackage, "pkg2"), CallbackConfirm)[0].Data

	r := h.do(KindConfirmPurchase, token)
	assert.Equal(t, msgPurchaseError, r.Text)
	assert.Equal(t, []string{"OPT-BBBBBBBB-2"}, h.api.purchased)
	assert.Equal(t, []string{"error"}, h.obs.purchases)

	require.Len(t, h.rec.events, 1)
	ev := h.rec.events[0]
	assert.Equal(t, activity.KindPurchaseFailed, ev.kind)
	assert.Contains(t, ev.text, testPhone)
	assert.Contains(t, ev.text, "OPT-BBBBBBBB-2")
	assert.Contains(t, ev.text, errUpstream.Error())

	sess := h.session(t)
	assert.True(t, sess.Authenticated())
	assert.Equal(t, testPhone, sess.Phone())

	_, ok := h.sel.ResolveConfirmation(testUser, token)
	assert.False(t, ok)
	assert.Equal(t, msgNotFound, h.do(KindConfirmPurchase, token).Text)
	assert.Len(t, h.api.purchased, 1)
}

func TestPurchaseFailureReasons(t *testing.T) {
	assert.Equal(t, msgBalanceInsufficient, failureMessage(models.ReasonBalanceInsufficient))
	assert.Equal(t, "QUOTA_LIMIT", failureMessage("QUOTA_LIMIT"))
	assert.Equal(t, msgPurchaseFailedPlain, failureMessage(""))
}

func TestPurchaseSuccessSurvivesDetailRefetchFailure(t *testing.T) {
	h := newHarness(t)
	h.loggedIn(t)

	h.do(KindPackages, "")
	token := buttonsWith(h.do(KindSelectPackage, "pkg2"), CallbackConfirm)[0].Data
	h.api.detailFailAfter = h.api.detailCalls

	r := h.do(KindConfirmPurchase, token)
	assert.True(t, strings.HasPrefix(r.Text, "✅ *Paket berhasil dibeli!*"), r.Text)
	assert.Contains(t, r.Text, unknownPackageName)
	assert.Contains(t, r.Text, "Rp 0")

	require.Len(t, h.rec.events, 1)
	assert.Equal(t, activity.KindPurchase, h.rec.events[0].kind)
	assert.Contains(t, h.rec.events[0].text, "Pembelian paket sukses | Nomor: "+testPhone)
}

func TestConfirmationIsSingleUse(t *testing.T) {
	h := newHarness(t)
	h.loggedIn(t)

	h.do(KindPackages, "")
	token := buttonsWith(h.do(KindSelectPackage, "pkg1"), CallbackConfirm)[0].Data

	h.do(KindConfirmPurchase, token)
	r := h.do(KindConfirmPurchase, token)
	assert.Equal(t, msgNotFound, r.Text)
	assert.Len(t, h.api.purchased, 1)
}

func TestUnknownConfirmationNeverPurchases(t *testing.T) {
	h := newHarness(t)
	h.loggedIn(t)
	refreshes := h.api.refreshes

	r := h.do(KindConfirmPurchase, "confirm_1001_deadbeef")
	assert.Equal(t, msgNotFound, r.Text)
	assert.Empty(t, h.api.purchased)
	assert.Equal(t, refreshes, h.api.refreshes)
	assert.Empty(t, h.rec.events)
}

func TestRefreshFailureExpiresSession(t *testing.T) {
	for _, kind := range []Kind{KindMenu, KindQuota, KindPackages} {
		t.Run(string(kind), func(t *testing.T) {
			h := newHarness(t)
			h.loggedIn(t)
			h.api.refreshErr = errUpstream

			r := h.do(kind, "")
			assert.Equal(t, msgSessionExpire, r.Text)
			sess := h.session(t)
			assert.False(t, sess.Authenticated())
			_, ok := sess.Tokens()
			assert.False(t, ok)
			assert.Equal(t, session.WaitingNone, sess.WaitingFor())
		})
	}
}

func TestRefreshFailureBeforePurchase(t *testing.T) {
	h := newHarness(t)
	h.loggedIn(t)
	h.do(KindPackages, "")
	token := buttonsWith(h.do(KindSelectPackage, "pkg1"), CallbackConfirm)[0].Data

	h.api.refreshErr = errUpstream
	r := h.do(KindConfirmPurchase, token)
	assert.Equal(t, msgSessionExpire, r.Text)
	assert.Empty(t, h.api.purchased)
	assert.False(t, h.session(t).Authenticated())
	_, ok := h.sel.ResolveDisplay(testUser, "pkg1")
	assert.False(t, ok)
}

func TestCollaboratorFailureLeavesSessionIntact(t *testing.T) {
	h := newHarness(t)
	h.loggedIn(t)
	h.api.listErr = errUpstream

	r := h.do(KindPackages, "")
	assert.Equal(t, msgPackagesFailed, r.Text)
	sess := h.session(t)
	assert.True(t, sess.Authenticated())
	assert.Equal(t, testPhone, sess.Phone())
}

func TestProtectedActionsRequireLogin(t *testing.T) {
	h := newHarness(t)
	for _, kind := range []Kind{KindMenu, KindBack, KindQuota, KindPackages, KindSelectPackage, KindConfirmPurchase} {
		r := h.do(kind, "pkg1")
		assert.Equal(t, msgNotLoggedIn, r.Text, kind)
	}
	assert.Zero(t, h.api.refreshes)
}

func TestTextRouting(t *testing.T) {
	h := newHarness(t)

	r := h.do(KindText, "halo")
	assert.Equal(t, msgStartFirst, r.Text)
	_, ok := h.store.Get(testUser)
	assert.False(t, ok)

	h.do(KindStart, "")
	r = h.do(KindText, "halo")
	assert.Equal(t, msgUseMenu, r.Text)
}

func TestLogoutClearsEverything(t *testing.T) {
	h := newHarness(t)
	h.loggedIn(t)
	h.do(KindPackages, "")

	r := h.do(KindLogout, "")
	assert.Equal(t, msgLoggedOut, r.Text)
	assert.False(t, h.session(t).Authenticated())
	_, ok := h.sel.ResolveDisplay(testUser, "pkg1")
	assert.False(t, ok)
}

func TestQuotaView(t *testing.T) {
	h := newHarness(t)
	h.loggedIn(t)

	r := h.do(KindQuota, "")
	assert.Contains(t, r.Text, "1. Kuota Utama\n   ➡️ 1.024 / 2.048")
	assert.Len(t, buttonsWith(r, CallbackMenuBack), 1)

	assert.Equal(t, msgNoQuota, quotaList(nil))
}

func TestConcurrentUsersDoNotInterfere(t *testing.T) {
	h := newHarness(t)
	var wg sync.WaitGroup
	for i := int64(1); i <= 20; i++ {
		wg.Add(1)
		go func(uid int64) {
			defer wg.Done()
			ctx := context.Background()
			h.m.Handle(ctx, Action{Kind: KindLogin, UserID: uid})
			h.m.Handle(ctx, Action{Kind: KindText, UserID: uid, Payload: testPhone})
			h.m.Handle(ctx, Action{Kind: KindText, UserID: uid, Payload: "123456"})
			h.m.Handle(ctx, Action{Kind: KindPackages, UserID: uid})
		}(i)
	}
	wg.Wait()

	assert.Equal(t, session.Stats{Total: 20, Authenticated: 20}, h.store.Stats())
	for i := int64(1); i <= 20; i++ {
		code, ok := h.sel.ResolveDisplay(i, "pkg3")
		require.True(t, ok)
		assert.Equal(t, "OPT-CCCCCCCC-3", code)
	}
}
