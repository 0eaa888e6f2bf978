package bot

import (
	"context"
	"strings"

	"caravan/internal/action"
	"caravan/internal/conversation"
	"caravan/internal/gateway"
	"caravan/internal/i18n"
	"caravan/internal/modules/ledger"
	"caravan/internal/modules/moderation"
	"caravan/internal/modules/order"
	"caravan/internal/modules/user"
	"caravan/internal/types"
)

// Menu items, carried as the argument of menu_<item>.
const (
	itemMain     = "main"
	itemOrders   = "orders"
	itemBalance  = "balance"
	itemTopUp    = "topup"
	itemLanguage = "lang"
	itemHelp     = "help"
	itemAdmin    = "admin"
)

// languages in picker order.
var languages = []string{"uz", "ru", "en", "tj", "kk"}

const (
	ordersShown  = 10
	entriesShown = 5
)

func (r *Router) languagePicker(ctx context.Context, chat types.ChatID) {
	texts := r.render.Texts()
	var row []gateway.Button
	for _, l := range languages {
		if texts.Has(l) {
			row = append(row, gateway.Btn(texts.Resolve(l, "lang.name", nil), action.New(action.Lang, l)))
		}
	}
	var prompt []string
	for _, l := range languages {
		if texts.Has(l) {
			prompt = append(prompt, texts.Resolve(l, "lang.choose", nil))
		}
	}
	r.send(ctx, chat, strings.Join(dedupe(prompt), "\n"), gateway.Keyboard{row})
}

func dedupe(list []string) []string {
	seen := map[string]bool{}
	out := list[:0]
	for _, s := range list {
		if !seen[s] {
			seen[s] = true
			out = append(out, s)
		}
	}
	return out
}

func (r *Router) setLanguage(ctx context.Context, u *user.User, lang string) error {
	if !r.render.Texts().Has(lang) {
		return action.ErrMalformed
	}
	if err := r.users.SetLanguage(ctx, u.ID, lang); err != nil {
		return err
	}
	u.Language = lang
	r.mainMenu(ctx, u, lang)
	return nil
}

func (r *Router) mainMenu(ctx context.Context, u *user.User, lang string) {
	item := func(name string) gateway.Button {
		return gateway.Btn(r.render.T(lang, "menu."+name, nil), action.New(action.Menu, name))
	}
	kb := gateway.Keyboard{
		{item(string(conversation.FlowTaxi)), item(string(conversation.FlowParcel))},
		{item(string(conversation.FlowCargo))},
		{item(string(conversation.FlowFlight)), item(string(conversation.FlowTrain))},
	}
	switch u.Role {
	case user.RoleDriver:
		kb = append(kb, []gateway.Button{item(itemBalance), item(itemTopUp)})
	case user.RoleAdmin:
		kb = append(kb, []gateway.Button{item(itemBalance)})
	default:
		kb = append(kb, []gateway.Button{item(string(conversation.FlowDriver))})
	}
	kb = append(kb,
		[]gateway.Button{item(itemOrders), item(itemLanguage)},
		[]gateway.Button{item(itemHelp), item(itemAdmin)},
	)
	r.send(ctx, u.ID.Chat(), r.render.T(lang, "menu.title", nil), kb)
}

func (r *Router) menu(ctx context.Context, u *user.User, lang, item string) error {
	switch item {
	case itemMain:
		r.mainMenu(ctx, u, lang)
		return nil
	case itemLanguage:
		r.languagePicker(ctx, u.ID.Chat())
		return nil
	case itemHelp:
		r.help(ctx, u, lang)
		return nil
	case itemAdmin:
		return r.adminInfo(ctx, u, lang)
	case itemOrders:
		return r.myOrders(ctx, u, lang)
	case itemBalance:
		if !u.Role.CanAccept() {
			return moderation.ErrNotDriver
		}
		return r.balance(ctx, u, lang)
	case itemTopUp:
		if u.Role != user.RoleDriver {
			return moderation.ErrNotDriver
		}
		return r.engine.Start(ctx, u.ID, lang, conversation.FlowTopUp, nil)
	case string(conversation.FlowDriver):
		if u.Role == user.RoleDriver {
			return moderation.ErrAlreadyDriver
		}
	}
	flow := conversation.FlowID(item)
	f, ok := conversation.Lookup(flow)
	if !ok || (f.Category == "" && flow != conversation.FlowDriver) {
		return action.ErrMalformed
	}
	return r.engine.Start(ctx, u.ID, lang, flow, nil)
}

// myOrders lists the most recent orders. Pending ones get a cancel button.
func (r *Router) myOrders(ctx context.Context, u *user.User, lang string) error {
	list, err := r.orders.ListByRequester(ctx, u.ID, ordersShown)
	if err != nil {
		return err
	}
	if len(list) == 0 {
		r.send(ctx, u.ID.Chat(), r.render.T(lang, "orders.empty", nil), r.backToMenu(lang))
		return nil
	}
	var b strings.Builder
	b.WriteString(r.render.T(lang, "orders.title", nil))
	var kb gateway.Keyboard
	for i := range list {
		o := &list[i]
		n := i + 1
		b.WriteString("\n")
		b.WriteString(r.render.T(lang, "orders.line", i18n.Params{"n": n, "order": r.render.OrderLine(lang, o)}))
		if o.Status == order.StatusPending {
			kb = append(kb, []gateway.Button{gateway.Btn(
				r.render.T(lang, "btn.cancelorder", i18n.Params{"n": n}),
				action.New(action.CancelOrd, string(o.ID)),
			)})
		}
	}
	kb = append(kb, r.backToMenu(lang)...)
	r.send(ctx, u.ID.Chat(), b.String(), kb)
	return nil
}

func (r *Router) balance(ctx context.Context, u *user.User, lang string) error {
	bal, err := r.ledger.Balance(ctx, u.ID)
	if err != nil {
		return err
	}
	entries, err := r.ledger.History(ctx, u.ID, entriesShown)
	if err != nil {
		return err
	}
	var b strings.Builder
	b.WriteString(r.render.T(lang, "balance.title", i18n.Params{"balance": bal}))
	if len(entries) == 0 {
		b.WriteString("\n\n" + r.render.T(lang, "balance.empty", nil))
	} else {
		b.WriteString("\n")
	}
	for _, e := range entries {
		b.WriteString("\n")
		b.WriteString(r.entryLine(lang, e))
	}
	kb := gateway.Keyboard{}
	if u.Role == user.RoleDriver {
		kb = append(kb, []gateway.Button{gateway.Btn(r.render.T(lang, "menu.topup", nil), action.New(action.Menu, itemTopUp))})
	}
	kb = append(kb, r.backToMenu(lang)...)
	r.send(ctx, u.ID.Chat(), b.String(), kb)
	return nil
}

func (r *Router) entryLine(lang string, e ledger.Entry) string {
	return r.render.T(lang, "balance.entry."+string(e.Kind), i18n.Params{
		"amount":  e.Amount,
		"balance": e.BalanceAfter,
		"date":    e.CreatedAt.Format("02.01.2006 15:04"),
	})
}

func (r *Router) backToMenu(lang string) gateway.Keyboard {
	return gateway.Keyboard{{gateway.Btn(r.render.T(lang, "menu.main", nil), action.New(action.Menu, itemMain))}}
}

func (r *Router) help(ctx context.Context, u *user.User, lang string) {
	r.send(ctx, u.ID.Chat(), r.render.T(lang, "help.page", nil), r.backToMenu(lang))
}

// adminInfo shows the support contact. Without a configured handle it lists the admins
// that have a public username.
func (r *Router) adminInfo(ctx context.Context, u *user.User, lang string) error {
	handle := r.support.Telegram
	if handle == "" {
		admins, err := r.users.Admins(ctx)
		if err != nil {
			return err
		}
		var names []string
		for _, a := range admins {
			if a.Username != "" {
				names = append(names, "@"+a.Username)
			}
		}
		handle = strings.Join(names, ", ")
	}

	var b strings.Builder
	b.WriteString(r.render.T(lang, "admin.title", nil))
	b.WriteString("\n")
	if handle != "" {
		b.WriteString("\n" + r.render.T(lang, "admin.telegram", i18n.Params{"value": handle}))
	}
	if r.support.Phone != "" {
		b.WriteString("\n" + r.render.T(lang, "admin.phone", i18n.Params{"value": r.support.Phone}))
	}
	if handle == "" && r.support.Phone == "" {
		b.WriteString("\n" + r.render.T(lang, "admin.none", nil))
	}
	b.WriteString("\n\n" + r.render.T(lang, "admin.note", nil))
	r.send(ctx, u.ID.Chat(), b.String(), r.backToMenu(lang))
	return nil
}

var chatTypes = map[string]bool{"private": true, "group": true, "supergroup": true, "channel": true}

// chatInfo answers /id in the chat it was sent from, so operators can read group ids for
// the channel settings.
func (r *Router) chatInfo(ctx context.Context, ev gateway.InboundEvent, lang string) {
	kind := ev.ChatType
	if kind == "" {
		kind = "private"
	}
	label := kind
	if chatTypes[kind] {
		label = r.render.T(lang, "id.type."+kind, nil)
	}
	r.send(ctx, ev.ChatID, r.render.T(lang, "id.info", i18n.Params{
		"chat": int64(ev.ChatID),
		"type": label,
		"user": int64(ev.UserID),
	}), nil)
}
