package appServer

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"log"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ds124wfegd/WB_L3/parking/config"
	"github.com/ds124wfegd/WB_L3/parking/internal/broadcaster"
	"github.com/ds124wfegd/WB_L3/parking/internal/database"
	"github.com/ds124wfegd/WB_L3/parking/internal/database/memory"
	repository "github.com/ds124wfegd/WB_L3/parking/internal/database/postgres"
	"github.com/ds124wfegd/WB_L3/parking/internal/metrics"
	"github.com/ds124wfegd/WB_L3/parking/internal/service"
	"github.com/ds124wfegd/WB_L3/parking/internal/transport"
	"github.com/ds124wfegd/WB_L3/parking/internal/worker"

	"github.com/ds124wfegd/WB_L3/parking/pkg/postgres"
	"github.com/ds124wfegd/WB_L3/parking/pkg/queue"
	"github.com/ds124wfegd/WB_L3/parking/pkg/rabbitmq"
	"github.com/ds124wfegd/WB_L3/parking/pkg/redis"
	"github.com/ds124wfegd/WB_L3/parking/pkg/telegram"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

const (
	notifyMaxRetries = 3
	notifyBaseDelay  = 5 * time.Second
	shutdownTimeout  = 10 * time.Second
)

type Server struct {
	httpServer *http.Server
}

// Run serves until Shutdown. Request contexts derive from base, so
// cancelling base ends the long-lived stats streams.
func (s *Server) Run(base context.Context, cfg *config.Config, handler http.Handler) error {
	s.httpServer = &http.Server{
		Addr:              ":" + cfg.Server.Port,
		Handler:           handler,
		MaxHeaderBytes:    1 << 20,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      0, // SSE: per-request limits come from the timeout middleware
		IdleTimeout:       cfg.Server.IdleTimeout,
		ReadHeaderTimeout: 3 * time.Second,
		TLSConfig:         &tls.Config{MinVersion: tls.VersionTLS12},           // ban on outdate TLS certificate
		ErrorLog:          log.New(os.Stderr, "SERVER ERROR: ", log.LstdFlags), // os.Stderr can be replaced with ElsasticSearch in the feature
		BaseContext:       func(net.Listener) context.Context { return base },
	}
	return s.httpServer.ListenAndServe()
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

// app holds everything wired from the configuration.
type app struct {
	repos     *database.Repositories
	handler   http.Handler
	amounts   *worker.AmountWorker
	taskQueue *queue.RedisQueue
	tasks     *queue.TaskHandler
	health    map[string]func() error
	closers   []func() error
}

func (a *app) close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			logrus.WithError(err).Warn("Failed to release resource")
		}
	}
}

func setupLogging(level string) {
	logrus.SetFormatter(&logrus.JSONFormatter{})
	logrus.SetOutput(os.Stdout)

	lvl, err := logrus.ParseLevel(level)
	if err != nil {
		lvl = logrus.InfoLevel
	}
	logrus.SetLevel(lvl)
}

func openRepositories(cfg *config.Config, a *app) (*database.Repositories, error) {
	switch cfg.Database.Driver {
	case "memory":
		logrus.Warn("Using in-memory record store, data is lost on restart")
		return memory.NewStore().Repositories(), nil
	case "postgres", "":
		db, err := postgres.NewPostgresDB(&cfg.Database)
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, db.Close)

		if err := postgres.RunMigrations(db); err != nil {
			return nil, err
		}
		return repository.NewRepositories(db, postgres.DSN(&cfg.Database)), nil
	}
	return nil, fmt.Errorf("unknown database driver %q", cfg.Database.Driver)
}

// buildApp wires stores, notification sinks, services and the router.
// Optional collaborators (redis, rabbitmq, telegram) are skipped with a
// warning when not configured or unreachable.
func buildApp(cfg *config.Config) (*app, error) {
	a := &app{health: make(map[string]func() error)}

	repos, err := openRepositories(cfg, a)
	if err != nil {
		a.close()
		return nil, err
	}
	a.repos = repos

	// Notification sinks
	var push service.PushPublisher
	if cfg.RabbitMQ.URL != "" {
		publisher, err := rabbitmq.NewPublisher(rabbitmq.Config{URL: cfg.RabbitMQ.URL, QueueName: cfg.RabbitMQ.QueueName})
		if err != nil {
			logrus.WithError(err).Warn("RabbitMQ unavailable, push hand-off disabled")
		} else {
			push = publisher
			a.health["rabbitmq"] = publisher.HealthCheck
			a.closers = append(a.closers, publisher.Close)
			logrus.Info("RabbitMQ publisher initialized")
		}
	}

	var chat service.ChatSender
	if cfg.Telegram.BotToken != "" {
		bot, err := telegram.NewBot(cfg.Telegram.BotToken, cfg.Telegram.ChatID)
		if err != nil {
			logrus.WithError(err).Warn("Failed to initialize Telegram bot, admin chat alerts disabled")
		} else {
			chat = bot
			logrus.WithField("bot", bot.Username()).Info("Telegram bot initialized")
		}
	} else {
		logrus.Warn("Telegram bot token not provided, admin chat alerts disabled")
	}

	dispatcher := service.NewNotificationDispatcher(repos.Subscriptions, push, chat)
	var notifier service.Notifier = dispatcher
	var failed transport.FailedNotifications

	if cfg.Redis.Host != "" {
		q, dlq, err := openQueue(cfg, a)
		if err != nil {
			logrus.WithError(err).Error("Failed to initialize Redis queue. Continuing with direct notifications...")
		} else {
			a.taskQueue = q
			a.tasks = queue.NewTaskHandler()
			a.tasks.Register(queue.TaskTypeNotify, dispatcher.HandleTask)
			notifier = service.NewQueueAdapter(q, notifyMaxRetries)
			failed = dlq
			logrus.Info("Redis notification queue initialized")
		}
	}

	// Services
	settings := service.NewSettingsService(repos.Settings, cfg.Tariff)
	lifecycle := service.NewLifecycleService(repos, notifier, settings)
	stats := service.NewStatsService(repos.Stats)
	stream := broadcaster.New(repos.Feed, stats, broadcaster.Config{
		Heartbeat:           cfg.Stats.Heartbeat,
		InactivityThreshold: cfg.Stats.InactivityThreshold,
		ThrottledInterval:   cfg.Stats.ThrottledInterval,
	})

	a.amounts = worker.NewAmountWorker(lifecycle, cfg.Worker.AmountRefreshInterval)

	handlers := transport.Handlers{
		Lifecycle:     transport.NewLifecycleHandler(lifecycle),
		Stats:         transport.NewStatsHandler(stats, stream),
		Admin:         transport.NewAdminHandler(service.NewTicketService(repos.Tickets), service.NewStaffService(repos.Staff), service.NewHistoryService(repos.History), failed),
		Subscriptions: transport.NewSubscriptionHandler(service.NewSubscriptionService(repos.Subscriptions, repos.Tickets)),
		Settings:      transport.NewSettingsHandler(settings),
	}

	if cfg.Server.Mode == "release" {
		gin.SetMode(gin.ReleaseMode)
	}
	a.handler = transport.InitRoutes(handlers, transport.RouterOptions{
		JWTSecret:      cfg.JWT.Secret,
		RequestTimeout: cfg.Server.RequestTimeout,
		Metrics:        cfg.Metrics.Enabled,
		HealthChecks:   a.health,
	})
	if cfg.JWT.Secret == "" {
		logrus.Warn("JWT secret not set, admin routes are open")
	}

	return a, nil
}

func openQueue(cfg *config.Config, a *app) (*queue.RedisQueue, *queue.DefaultDLQHandler, error) {
	client, err := redis.NewRedisClient(&cfg.Redis)
	if err != nil {
		return nil, nil, err
	}

	dlq := queue.NewDefaultDLQHandler(client, cfg.Redis.Prefix, func(task *queue.Task) {
		metrics.Notifications.WithLabelValues("dead_letter").Inc()
	})
	q, err := queue.NewRedisQueue(client, &queue.RedisQueueConfig{
		Prefix:     cfg.Redis.Prefix,
		MaxRetries: notifyMaxRetries,
		BaseDelay:  notifyBaseDelay,
	}, queue.NewRetryManager(notifyMaxRetries, notifyBaseDelay), dlq)
	if err != nil {
		client.Close()
		return nil, nil, err
	}

	a.health["redis"] = func() error {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		return client.Ping(ctx).Err()
	}
	// очередь закрывается раньше клиента
	a.closers = append(a.closers, client.Close, q.Close)
	return q, dlq, nil
}

// start launches the background workers; they stop with ctx.
func (a *app) start(ctx context.Context) error {
	if a.taskQueue != nil {
		if err := a.taskQueue.Subscribe(ctx, a.tasks.HandleTask); err != nil {
			return fmt.Errorf("failed to start queue subscriber: %w", err)
		}
		logrus.Info("Queue subscriber started")
	}

	go a.amounts.Start(ctx)
	return nil
}

func NewServer(cfg *config.Config) {

	setupLogging(cfg.Server.LogLevel)

	a, err := buildApp(cfg)
	if err != nil {
		logrus.Fatalf("Failed to initialize application: %v", err)
	}
	defer a.close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := a.start(ctx); err != nil {
		logrus.Fatalf("Failed to start workers: %v", err)
	}

	srv := new(Server)
	go func() {
		if err := srv.Run(ctx, cfg, a.handler); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logrus.Fatalf("error occured while running http server: %s", err.Error())
		}
	}()

	logrus.WithFields(logrus.Fields{
		"port":    cfg.Server.Port,
		"driver":  cfg.Database.Driver,
		"version": cfg.Server.AppVersion,
	}).Info("App Started")

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGTERM, syscall.SIGINT)
	<-quit

	logrus.Print("App Shutting Down")

	// закрываем потоки статистики и воркеры до остановки сервера
	cancel()

	shutdownCtx, stop := context.WithTimeout(context.Background(), shutdownTimeout)
	defer stop()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logrus.Errorf("error occured on server shutting down: %s", err.Error())
	}
}
