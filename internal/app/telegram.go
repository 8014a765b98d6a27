package app

import (
	"context"
	"fmt"
	"strings"

	tele "gopkg.in/telebot.v4"

	coretelegram "github.com/m3rciful/xlbot/core/telegram"
	"github.com/m3rciful/xlbot/core/telegram/callbacks"
	"github.com/m3rciful/xlbot/core/telegram/commands"
	tghelpers "github.com/m3rciful/xlbot/core/telegram/helpers"
	"github.com/m3rciful/xlbot/core/telegram/keyboard"
	"github.com/m3rciful/xlbot/core/telegram/router"
	tgsender "github.com/m3rciful/xlbot/core/telegram/sender"
	"github.com/m3rciful/xlbot/internal/activity"
	"github.com/m3rciful/xlbot/internal/conversation"
)

const (
	msgAdminOnly     = "⛔ Perintah ini khusus admin."
	msgUnknownButton = "Gunakan /menu untuk navigasi"
)

// TelegramRunOptions implements cmd.TelegramApp.
func (a *App) TelegramRunOptions() (coretelegram.RunOptions, error) {
	reg := a.Registry()
	core := a.cfg.CoreConfig()

	routes := router.CommandRoutes(reg, router.CommandRouteOptions{
		AdminID: core.Telegram.AdminID,
		OnAdminReject: func(c tele.Context) error {
			return tghelpers.SendText(c, msgAdminOnly)
		},
	})
	routes = append(routes, router.CallbackRoute(reg, router.CallbackOptions{}))
	routes = append(routes, router.TextRoutes(reg, router.TextOptions{})...)

	return coretelegram.RunOptions{
		Config:   core,
		Registry: reg,
		DispatcherOptions: tgsender.Options{
			MaxRetries: 2,
		},
		Middlewares: coretelegram.DefaultMiddlewares(core, nil),
		Routes:      routes,
		OnStart: func(_ context.Context, rt coretelegram.Runtime) error {
			a.bot.Store(rt.Bot)
			return nil
		},
		OnStop: func(_ context.Context, _ coretelegram.Runtime) error {
			a.bot.Store(nil)
			return nil
		},
	}, nil
}

// Registry declares every command and callback the bot answers.
func (a *App) Registry() *coretelegram.Registry {
	reg := coretelegram.NewRegistry()

	reg.RegisterCommand("/start", commands.Command{Handler: a.on(conversation.KindStart), Description: "Mulai bot"})
	reg.RegisterCommand("/help", commands.Command{Handler: a.on(conversation.KindHelp), Description: "Bantuan"})
	reg.RegisterCommand("/login", commands.Command{Handler: a.on(conversation.KindLogin), Description: "Login ke MyXL"})
	reg.RegisterCommand("/menu", commands.Command{Handler: a.on(conversation.KindMenu), Description: "Menu utama"})
	reg.RegisterCommand("/kuota", commands.Command{Handler: a.on(conversation.KindQuota), Description: "Cek kuota", Aliases: []string{"quota"}})
	reg.RegisterCommand("/packages", commands.Command{Handler: a.on(conversation.KindPackages), Description: "Lihat paket", Aliases: []string{"paket"}})
	reg.RegisterCommand("/cancel", commands.Command{Handler: a.on(conversation.KindCancel), Description: "Batalkan proses"})
	reg.RegisterCommand("/logout", commands.Command{Handler: a.on(conversation.KindLogout), Description: "Keluar"})
	reg.RegisterCommand("/stats", commands.Command{Handler: a.stats, Description: "Statistik sesi", AdminOnly: true})

	callbackKinds := map[string]conversation.Kind{
		conversation.CallbackCancel:       conversation.KindCancel,
		conversation.CallbackRelogin:      conversation.KindRelogin,
		conversation.CallbackMenuQuota:    conversation.KindQuota,
		conversation.CallbackMenuPackages: conversation.KindPackages,
		conversation.CallbackMenuHelp:     conversation.KindHelp,
		conversation.CallbackMenuBack:     conversation.KindBack,
		conversation.CallbackMenuLogout:   conversation.KindLogout,
		conversation.CallbackPackage:      conversation.KindSelectPackage,
		conversation.CallbackConfirm:      conversation.KindConfirmPurchase,
	}
	for key, kind := range callbackKinds {
		_ = reg.RegisterCallback(key, a.on(kind))
	}
	reg.SetCallbackNotFound(func(c tele.Context) error {
		return tghelpers.EditOrSendMD(c, msgUnknownButton)
	})
	reg.SetTextFallback(a.on(conversation.KindText))
	return reg
}

// on adapts a conversation kind to a telebot handler. The payload is the
// callback data for button presses and the message text otherwise.
func (a *App) on(kind conversation.Kind) tele.HandlerFunc {
	return func(c tele.Context) error {
		sender := c.Sender()
		if sender == nil {
			return nil
		}
		act := conversation.Action{
			Kind:   kind,
			UserID: sender.ID,
			Actor:  actorOf(sender),
		}
		switch {
		case c.Callback() != nil:
			act.Payload = callbacks.Payload(c.Callback())
		case kind == conversation.KindText:
			act.Payload = c.Text()
		}
		rep := a.machine.Handle(tghelpers.BuildContext(c), act)
		return a.deliver(c, rep)
	}
}

// deliver edits the message behind a button press, otherwise sends a new one.
func (a *App) deliver(c tele.Context, rep conversation.Reply) error {
	markup := replyMarkup(rep.Buttons)
	if c.Callback() != nil {
		return tghelpers.EditOrSendMD(c, rep.Text, markup)
	}
	return tghelpers.SendMD(c, rep.Text, markup)
}

func replyMarkup(rows [][]conversation.Button) *tele.ReplyMarkup {
	kb := make([][]keyboard.InlineBtn, 0, len(rows))
	for _, row := range rows {
		r := make([]keyboard.InlineBtn, 0, len(row))
		for _, b := range row {
			r = append(r, keyboard.InlineBtn{Text: b.Text, Unique: b.Unique, Data: b.Data})
		}
		kb = append(kb, r)
	}
	return keyboard.InlineButtonsRows(kb...)
}

func actorOf(u *tele.User) activity.Actor {
	return activity.Actor{
		ID:       u.ID,
		Username: u.Username,
		FullName: strings.TrimSpace(u.FirstName + " " + u.LastName),
	}
}

func (a *App) stats(c tele.Context) error {
	s := a.store.Stats()
	text := fmt.Sprintf("📈 Sesi: %d\n✅ Login: %d\n⏳ Proses login: %d", s.Total, s.Authenticated, s.MidLogin)
	return tghelpers.SendText(c, text)
}
