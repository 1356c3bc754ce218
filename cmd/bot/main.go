package main

import (
	"context"
	"log"
	"os/signal"
	"syscall"
	"time"

	"refgate-bot/internal/access"
	"refgate-bot/internal/bot"
	"refgate-bot/internal/config"
	"refgate-bot/internal/database"
	"refgate-bot/internal/delivery"
	"refgate-bot/internal/ledger"
	"refgate-bot/internal/ops"
	"refgate-bot/internal/relay"
	"refgate-bot/internal/stats"
	"refgate-bot/internal/throttle"
	"refgate-bot/internal/vault"
	"refgate-bot/internal/worker"

	"github.com/mymmrac/telego"
	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"
)

func main() {
	// Load Configuration
	cfg := config.LoadConfig()
	if err := cfg.Validate(); err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Connect to Database
	db, err := database.Connect(cfg)
	if err != nil {
		log.Fatalf("Could not connect to database: %v", err)
	}

	// Connect to Redis
	var rdb *redis.Client
	if cfg.NeedsRedis() {
		rdb, err = database.ConnectRedis(cfg)
		if err != nil {
			log.Fatalf("Could not connect to redis: %v", err)
		}
		defer rdb.Close()
	}

	tgBot, err := telego.NewBot(cfg.BotToken)
	if err != nil {
		log.Fatalf("Failed to create bot: %v", err)
	}
	me, err := tgBot.GetMe(ctx)
	if err != nil {
		log.Fatalf("Failed to fetch bot identity: %v", err)
	}

	limiter := relay.NewLimiter(cfg.RelayRPS)
	tg := relay.NewTelegram(tgBot, cfg.VaultChannelID, limiter)
	notifier := &relay.ChannelNotifier{Bot: tgBot, ChatID: cfg.LogChannelID, Limiter: limiter}

	refs := ledger.New(db)
	roles := &access.RoleStore{DB: db, Owner: cfg.AdminUserID}
	bans := &access.BanList{DB: db}
	policy := &access.Policy{Ledger: refs, Roles: roles, BotUsername: me.Username}
	items := vault.New(db)
	retractions := worker.NewScheduler(db, tg, cfg.SweepEvery)

	var (
		cooldown throttle.Throttle
		janitor  *throttle.Memory
	)
	switch cfg.ThrottleBackend {
	case "redis":
		cooldown = throttle.NewRedis(rdb)
	default:
		janitor = throttle.NewMemory()
		cooldown = janitor
	}

	var outcomes interface {
		stats.Recorder
		stats.Snapshotter
	}
	switch cfg.StatsBackend {
	case "redis":
		outcomes = stats.NewRedis(rdb, stats.WithBucket(cfg.StatsBucket), stats.WithTTL(cfg.StatsBucketTTL))
	case "none":
		outcomes = stats.Nop{}
	default:
		outcomes = stats.NewMemory()
	}

	coordinator := &delivery.Coordinator{
		Bans:           bans,
		Policy:         policy,
		Throttle:       cooldown,
		Vault:          items,
		Relay:          tg,
		Scheduler:      retractions,
		Notifier:       notifier,
		Stats:          outcomes,
		CooldownWindow: cfg.CooldownWindow,
		ExposureWindow: cfg.ExposureWindow,
		MaxAttempts:    cfg.MaxRelayAttempts,
		RetryDelay:     cfg.RetryDelay,
	}

	b := &bot.Bot{
		Instance:  tgBot,
		Username:  me.Username,
		OwnerID:   cfg.AdminUserID,
		Threshold: policy.Threshold,
		Ledger:    refs,
		Roles:     roles,
		Bans:      bans,
		Vault:     items,
		Ingester:  tg,
		Delivery:  coordinator,
		Notifier:  notifier,
		Forwarder: tg,
		Terms:     bot.Terms{Chat: cfg.TermsChat, MessageID: cfg.TermsMessageID},
	}
	if cfg.ForceJoinChannel != "" {
		b.Membership = relay.NewChannelMembership(tgBot, cfg.ForceJoinChannel)
	}

	opsHandler := &ops.Handler{
		Outcomes:    outcomes,
		Vault:       items,
		Retractions: retractions,
		Started:     time.Now(),
	}
	if janitor != nil {
		opsHandler.Cooldowns = janitor
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return b.Start(gctx) })
	g.Go(func() error { return retractions.Run(gctx) })
	if cfg.OpsAddr != "" {
		g.Go(func() error { return ops.Serve(gctx, cfg.OpsAddr, ops.Router(opsHandler, cfg.OpsAllowedIPs)) })
	}
	if janitor != nil {
		janitor.StartJanitor(gctx)
	}

	log.Println("Service started successfully")
	if err := g.Wait(); err != nil {
		log.Printf("Service stopped with error: %v", err)
		return
	}
	log.Println("Service stopped")
}
