// README: Entry point; loads config, wires services, runs the Telegram bot and the HTTP API.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/pflag"
	"golang.org/x/sync/errgroup"

	"caravan/internal/config"
	"caravan/internal/events"
	"caravan/internal/gateway/telegram"
	httptransport "caravan/internal/http"
	"caravan/internal/http/handlers"
	"caravan/internal/infra"
	"caravan/internal/logging"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "caravan-bot: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	flags := pflag.NewFlagSet("caravan-bot", pflag.ContinueOnError)
	configPath := flags.StringP("config", "c", os.Getenv("CARAVAN_CONFIG"), "path to the YAML config file")
	memory := flags.Bool("memory", false, "keep all state in process memory (overrides storage.driver)")
	if err := flags.Parse(os.Args[1:]); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return nil
		}
		return err
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		return err
	}
	if *memory {
		cfg.Storage.Driver = config.StorageMemory
	}
	log := logging.New(cfg.Log)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	api, err := infra.NewTelegramBot(cfg.Telegram.Token)
	if err != nil {
		return err
	}
	gw := telegram.New(api, log)

	st := memoryStores()
	var rdb *redis.Client
	if cfg.Storage.Driver == config.StoragePostgres {
		pool, err := infra.NewDB(ctx, cfg.DB.DSN)
		if err != nil {
			return err
		}
		defer pool.Close()
		st = postgresStores(pool)

		rdb = infra.NewRedis(cfg.Redis.Addr, cfg.Redis.DB)
		defer rdb.Close()
		if err := rdb.Ping(ctx).Err(); err != nil {
			return fmt.Errorf("ping redis: %w", err)
		}
	}

	var pub events.Publisher = events.Nop{}
	if len(cfg.Kafka.Brokers) > 0 {
		kp := events.NewKafkaPublisher(infra.NewKafkaWriter(cfg.Kafka.Brokers, cfg.Kafka.Topic))
		defer kp.Close()
		pub = kp
	}

	a, err := wire(cfg, st, rdb, gw, pub, log)
	if err != nil {
		return err
	}

	deps := httptransport.RouterDeps{
		Events:        a.router,
		WebhookSecret: cfg.HTTP.WebhookSecret,
		Moderation:    a.moderation,
		Orders:        a.orders,
		Pricing:       a.prices,
		Log:           log,
	}
	if cfg.Telegram.Mode == config.ModeWebhook {
		deps.Webhook = handlers.Deliverer(gw)
	}
	if cfg.Firebase.ProjectID != "" {
		v, err := infra.NewFirebaseVerifier(ctx, cfg.Firebase.ProjectID, cfg.Firebase.CredentialsFile)
		if err != nil {
			return err
		}
		deps.Verifier = v
	} else {
		log.Warn("firebase project not configured; moderator API disabled")
	}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info("http listening", slog.String("addr", cfg.HTTP.Addr))
		return httptransport.Serve(ctx, cfg.HTTP.Addr, httptransport.NewRouter(deps))
	})

	switch cfg.Telegram.Mode {
	case config.ModeWebhook:
		if err := registerWebhook(api, cfg.Telegram.WebhookURL, cfg.HTTP.WebhookSecret); err != nil {
			return err
		}
	default:
		if _, err := api.Request(tgbotapi.DeleteWebhookConfig{}); err != nil {
			log.Warn("delete webhook", slog.Any("err", err))
		}
		u := tgbotapi.NewUpdate(0)
		u.Timeout = 30
		updates := api.GetUpdatesChan(u)
		g.Go(func() error {
			<-ctx.Done()
			api.StopReceivingUpdates()
			return nil
		})
		g.Go(func() error {
			err := gw.Poll(ctx, updates, a.router)
			if errors.Is(err, context.Canceled) {
				return nil
			}
			return err
		})
	}

	log.Info("caravan bot started",
		slog.String("mode", cfg.Telegram.Mode),
		slog.String("storage", cfg.Storage.Driver),
		slog.String("bot", api.Self.UserName))
	err = g.Wait()
	log.Info("caravan bot stopped")
	return err
}

func registerWebhook(api *tgbotapi.BotAPI, base, secret string) error {
	if base == "" {
		return errors.New("webhook mode requires telegram.webhook_url")
	}
	wh, err := tgbotapi.NewWebhook(strings.TrimRight(base, "/") + "/telegram/webhook/" + secret)
	if err != nil {
		return fmt.Errorf("webhook url: %w", err)
	}
	if _, err := api.Request(wh); err != nil {
		return fmt.Errorf("set webhook: %w", err)
	}
	return nil
}
