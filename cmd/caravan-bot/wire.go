package main

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"caravan/internal/bot"
	"caravan/internal/config"
	"caravan/internal/conversation"
	"caravan/internal/dispatch"
	"caravan/internal/events"
	"caravan/internal/gateway"
	"caravan/internal/i18n"
	"caravan/internal/modules/geo"
	"caravan/internal/modules/ledger"
	"caravan/internal/modules/moderation"
	"caravan/internal/modules/order"
	"caravan/internal/modules/pricing"
	"caravan/internal/modules/user"
	"caravan/internal/notify"
	"caravan/internal/render"
	"caravan/internal/types"
)

// app holds the wired services shared by the bot loop and the HTTP API.
type app struct {
	router     *bot.Router
	orders     *order.Service
	prices     *pricing.Service
	moderation *moderation.Workflow
}

type stores struct {
	users      user.Repository
	ledger     ledger.Repository
	orders     order.Repository
	moderation moderation.Repository
	rates      pricing.RateStore
}

func memoryStores() stores {
	users := user.NewMemoryStore()
	led := ledger.NewMemoryStore(users)
	return stores{
		users:      users,
		ledger:     led,
		orders:     order.NewMemoryStore(led),
		moderation: moderation.NewMemoryStore(users, led),
		rates:      pricing.NewMemoryStore(),
	}
}

func postgresStores(db *pgxpool.Pool) stores {
	return stores{
		users:      user.NewStore(db),
		ledger:     ledger.NewStore(db),
		orders:     order.NewStore(db),
		moderation: moderation.NewStore(db),
		rates:      pricing.NewStore(db),
	}
}

// wire builds the service graph. rdb may be nil, in which case sessions and dispatch cards
// stay in process memory.
func wire(cfg config.Config, st stores, rdb *redis.Client, gw gateway.Gateway, pub events.Publisher, log *slog.Logger) (*app, error) {
	texts, err := i18n.Load(cfg.I18n.DefaultLanguage, cfg.I18n.BundleDir)
	if err != nil {
		return nil, err
	}
	catalog, err := geo.Default(cfg.I18n.DefaultLanguage)
	if err != nil {
		return nil, fmt.Errorf("geo catalog: %w", err)
	}

	admins := make([]types.UserID, 0, len(cfg.Admins))
	for _, id := range cfg.Admins {
		admins = append(admins, types.UserID(id))
	}
	users := user.NewService(st.users, admins...)
	led := ledger.NewService(st.ledger, pub, log)
	orders := order.NewService(st.orders, pub, log)
	prices := pricing.NewService(st.rates, cfg.Pricing)

	rend := render.New(texts, catalog)
	n := notify.New(gw, texts, types.ChatID(cfg.Channels.Admin), log)

	var (
		sessions conversation.SessionStore
		cards    dispatch.CardStore
	)
	if rdb != nil {
		sessions = conversation.NewRedisSessionStore(rdb, cfg.Session.TTL)
		cards = dispatch.NewRedisCardStore(rdb)
	} else {
		sessions = conversation.NewMemorySessionStore(cfg.Session.TTL)
		cards = dispatch.NewMemoryCardStore()
	}

	disp := dispatch.NewService(orders, prices, users, led, cards, n, rend, cfg.Channels, log)
	wf := moderation.NewWorkflow(st.moderation, users, orders, led, n, rend, pub, log)

	router := bot.New(bot.Deps{
		Users:      users,
		Ledger:     led,
		Orders:     orders,
		Prices:     prices,
		Dispatch:   disp,
		Moderation: wf,
		Machine:    conversation.NewMachine(catalog, time.Now),
		Sessions:   sessions,
		Gateway:    gw,
		Notifier:   n,
		Render:     rend,
		Support:    cfg.Support,
	}, log)

	return &app{router: router, orders: orders, prices: prices, moderation: wf}, nil
}
