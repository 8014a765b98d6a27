package conversation

import "github.com/m3rciful/xlbot/internal/activity"

// Kind is the closed set of inbound actions, decoded once at the transport boundary.
type Kind string

const (
	KindStart           Kind = "start"
	KindHelp            Kind = "help"
	KindLogin           Kind = "login"
	KindRelogin         Kind = "relogin"
	KindMenu            Kind = "menu"
	KindBack            Kind = "back"
	KindQuota           Kind = "quota"
	KindPackages        Kind = "packages"
	KindSelectPackage   Kind = "select_package"
	KindConfirmPurchase Kind = "confirm_purchase"
	KindCancel          Kind = "cancel"
	KindLogout          Kind = "logout"
	KindText            Kind = "text"
)

// Action is one user turn. Payload carries the display code for
// KindSelectPackage, the confirmation token for KindConfirmPurchase and the
// raw message for KindText.
type Action struct {
	Kind    Kind
	UserID  int64
	Actor   activity.Actor
	Payload string
}

// Callback keys used on inline buttons. The transport maps them back to kinds.
const (
	CallbackCancel       = "cancel"
	CallbackRelogin      = "relogin"
	CallbackMenuQuota    = "menu_kuota"
	CallbackMenuPackages = "menu_packages"
	CallbackMenuHelp     = "menu_help"
	CallbackMenuBack     = "menu_back"
	CallbackMenuLogout   = "menu_logout"
	CallbackPackage      = "pkg"
	CallbackConfirm      = "confirm"
)

// Button is one inline button: Unique is the callback key, Data its payload.
type Button struct {
	Text   string
	Unique string
	Data   string
}

// Reply is the single outbound message produced for an action.
// Text uses Telegram Markdown (v1).
type Reply struct {
	Text    string
	Buttons [][]Button
}

func reply(text string, rows ...[]Button) Reply {
	return Reply{Text: text, Buttons: rows}
}

func backRow() []Button {
	return []Button{{Text: "⬅️ Kembali ke Menu", Unique: CallbackMenuBack}}
}
