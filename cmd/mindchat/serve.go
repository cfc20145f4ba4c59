package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/set-night/mindchat"
	"github.com/set-night/mindchat/internal/cache"
	"github.com/set-night/mindchat/internal/config"
	"github.com/set-night/mindchat/internal/domain"
	"github.com/set-night/mindchat/internal/events"
	"github.com/set-night/mindchat/internal/handler"
	"github.com/set-night/mindchat/internal/middleware"
	"github.com/set-night/mindchat/internal/platform/rabbitmq"
	platformredis "github.com/set-night/mindchat/internal/platform/redis"
	"github.com/set-night/mindchat/internal/repository"
	"github.com/set-night/mindchat/internal/service"
	"github.com/set-night/mindchat/internal/storage"
	"github.com/set-night/mindchat/internal/telegram"
	httptransport "github.com/set-night/mindchat/internal/transport/http"
	httphandler "github.com/set-night/mindchat/internal/transport/http/handler"
)

func newServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API and, when BOT_TOKEN is set, the Telegram bot",
		RunE:  runServeCmd,
	}
	cmd.Flags().String("addr", "", "HTTP listen address (overrides HTTP_ADDR)")
	cmd.Flags().Bool("skip-migrations", false, "do not apply migrations on startup")
	return cmd
}

func runServeCmd(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if addr, _ := cmd.Flags().GetString("addr"); addr != "" {
		cfg.HTTPAddr = addr
	}
	skipMigrations, _ := cmd.Flags().GetBool("skip-migrations")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var pool *pgxpool.Pool
	if cfg.UsesPostgres() {
		if !skipMigrations {
			if err := repository.RunMigrations(cfg.DatabaseURL, mindchat.MigrationsFS, "migrations"); err != nil {
				return err
			}
		}
		pool, err = repository.NewPool(ctx, cfg.DatabaseURL)
		if err != nil {
			return err
		}
		defer pool.Close()
	}

	ledger, err := buildLedger(ctx, cfg, pool)
	if err != nil {
		return err
	}
	store, closeStore, err := buildStore(cfg, pool)
	if err != nil {
		return err
	}
	defer closeStore()

	objects, err := buildObjectStore(ctx, cfg)
	if err != nil {
		return err
	}
	files := storage.NewResolver(objects)

	var exchange service.Exchange
	switch cfg.ExchangeBackend {
	case config.ExchangeOpenRouter:
		exchange = service.NewOpenRouterClient(cfg.OpenRouterKey, cfg.OpenRouterURL, cfg.OpenRouterModel, files)
	default:
		exchange = service.NewBackendClient(cfg.BackendURL, files)
	}

	var users service.UserRepository = service.NewMemoryUserRepository()
	if pool != nil {
		users = repository.NewUserRepository(pool)
	}
	identity := service.NewIdentityService(users, ledger, cfg.JWTSecret, time.Duration(cfg.JWTExpireMin)*time.Minute)

	// The bot is created before the handler so the admin-chat logger can use it.
	var (
		b        *bot.Bot
		h        *handler.Handler
		tgLogger *telegram.Logger
	)
	if cfg.BotToken != "" {
		b, err = bot.New(cfg.BotToken,
			bot.WithMiddlewares(
				middleware.Recover(func(err error, where string) { tgLogger.LogError(err, where) }),
				middleware.Logging(),
				middleware.RateLimit(middleware.NewChatLimiter(config.RateLimitPerMinute, config.RateLimitBurst)),
				middleware.UserLoader(identity, func(telegramID int64, name string, userID domain.UserID) {
					tgLogger.LogRegistration(telegramID, name, userID)
				}),
			),
			bot.WithDefaultHandler(func(ctx context.Context, b *bot.Bot, update *models.Update) {
				if h != nil {
					h.HandleMessage(ctx, b, update)
				}
			}),
		)
		if err != nil {
			return fmt.Errorf("create bot: %w", err)
		}
		tgLogger = telegram.NewLogger(b, cfg)
	}

	hub := service.NewEventHub()
	opts := []service.OrchestratorOption{service.WithObserver(hub)}
	if tgLogger != nil {
		opts = append(opts, service.WithObserver(tgLogger))
	}
	orchestrator := service.NewOrchestrator(store, ledger, exchange, opts...)

	identityEvents, unsubscribe := identity.Subscribe()
	defer unsubscribe()

	deps := httptransport.Deps{
		Identity:       identity,
		Chat:           orchestrator,
		Files:          objects,
		Hub:            hub,
		AllowedOrigins: cfg.AllowedOrigins,
	}
	if history, ok := ledger.(httphandler.TransactionHistory); ok {
		deps.Transactions = history
	}
	server := httptransport.NewServer(cfg.HTTPAddr, httptransport.NewRouter(deps))

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		hub.RelayIdentity(gctx, identityEvents)
		return nil
	})
	g.Go(func() error {
		slog.Info("http server listening", "addr", cfg.HTTPAddr)
		return server.Run(gctx)
	})

	if b != nil {
		h = handler.New(handler.Deps{
			Bot:      b,
			Chat:     orchestrator,
			Files:    files,
			TgLogger: tgLogger,
		})
		h.Register()

		if cfg.DropPendingUpdates {
			if _, err := b.DeleteWebhook(ctx, &bot.DeleteWebhookParams{DropPendingUpdates: true}); err != nil {
				slog.Warn("drop pending updates", "error", err)
			}
		}

		me, err := b.GetMe(ctx)
		if err != nil {
			return fmt.Errorf("get bot info: %w", err)
		}
		g.Go(func() error {
			slog.Info("starting bot", "username", me.Username, "id", me.ID)
			b.Start(gctx)
			return nil
		})
	}

	err = g.Wait()
	slog.Info("mindchat stopped")
	return err
}

func buildLedger(ctx context.Context, cfg *config.Config, pool *pgxpool.Pool) (service.Ledger, error) {
	switch cfg.LedgerBackend {
	case config.BackendPostgres:
		return repository.NewLedgerRepository(pool), nil
	case config.BackendRedis:
		client, err := platformredis.New(ctx, cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
		if err != nil {
			return nil, err
		}
		return cache.NewRedisLedger(client, ""), nil
	default:
		return service.NewMemoryLedger(), nil
	}
}

// buildStore returns the conversation store, wrapped with the message
// publisher when RabbitMQ is configured.
func buildStore(cfg *config.Config, pool *pgxpool.Pool) (service.ConversationStore, func(), error) {
	var store service.ConversationStore = service.NewMemoryConversationStore()
	if cfg.StoreBackend == config.BackendPostgres {
		store = repository.NewConversationRepository(pool)
	}
	if cfg.RabbitMQURL == "" {
		return store, func() {}, nil
	}

	conn, err := rabbitmq.New(cfg.RabbitMQURL)
	if err != nil {
		return nil, nil, err
	}
	publisher := events.NewMessagePublisher(conn, cfg.MessageQueue)
	return events.NewPublishingStore(store, publisher), func() { _ = conn.Close() }, nil
}

func buildObjectStore(ctx context.Context, cfg *config.Config) (storage.ObjectStore, error) {
	if cfg.AttachmentBackend == config.BackendS3 {
		return storage.NewS3Store(ctx, cfg.AwsAccessKey, cfg.AwsSecretKey, cfg.AwsRegion, cfg.BucketName)
	}
	return storage.NewMemoryStore(), nil
}
