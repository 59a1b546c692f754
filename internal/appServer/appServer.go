package appServer

import (
	"context"
	"crypto/tls"
	"database/sql"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ds124wfegd/spa-booking/config"
	"github.com/ds124wfegd/spa-booking/internal/database"
	"github.com/ds124wfegd/spa-booking/internal/database/memory"
	repository "github.com/ds124wfegd/spa-booking/internal/database/postgres"
	"github.com/ds124wfegd/spa-booking/internal/service"
	"github.com/ds124wfegd/spa-booking/internal/transport"
	"github.com/ds124wfegd/spa-booking/internal/worker"
	"github.com/ds124wfegd/spa-booking/internal/ws"

	"github.com/ds124wfegd/spa-booking/pkg/postgres"
	"github.com/ds124wfegd/spa-booking/pkg/queue"
	"github.com/ds124wfegd/spa-booking/pkg/redis"
	"github.com/ds124wfegd/spa-booking/pkg/scheduler"
	"github.com/ds124wfegd/spa-booking/pkg/telegram"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

type Server struct {
	httpServer *http.Server
}

func (s *Server) Run(cfg *config.Config, handler http.Handler) error {
	s.httpServer = &http.Server{
		Addr:              cfg.GetServerAddress(),
		Handler:           handler,
		MaxHeaderBytes:    1 << 20,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      cfg.Server.Timeout,
		IdleTimeout:       cfg.Server.IdleTimeout,
		ReadHeaderTimeout: 3 * time.Second,
		TLSConfig:         &tls.Config{MinVersion: tls.VersionTLS12},           // ban on outdate TLS certificate
		ErrorLog:          log.New(os.Stderr, "SERVER ERROR: ", log.LstdFlags), // os.Stderr can be replaced with ElsasticSearch in the feature
	}
	return s.httpServer.ListenAndServe()
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

// openStore returns the configured store and a close func.
func openStore(ctx context.Context, cfg *config.Config) (*database.Store, func(), error) {
	switch cfg.Database.Driver {
	case "memory":
		logrus.Warn("using in-memory store, data is lost on restart")
		return memory.NewStore(), func() {}, nil
	case "", "postgres":
		db, err := postgres.NewPostgresDB(&cfg.Database)
		if err != nil {
			return nil, nil, err
		}
		if err := postgres.RunMigrations(ctx, db); err != nil {
			db.Close()
			return nil, nil, err
		}
		return repository.NewStore(db), func() { closeDB(db) }, nil
	}
	return nil, nil, errors.New("unknown database driver: " + cfg.Database.Driver)
}

func closeDB(db *sql.DB) {
	if err := db.Close(); err != nil {
		logrus.WithError(err).Warn("failed to close database")
	}
}

func NewServer(cfg *config.Config) {

	logrus.SetFormatter(&logrus.JSONFormatter{})
	logrus.SetOutput(os.Stdout)
	logrus.SetLevel(logrus.InfoLevel)
	if !cfg.IsProduction() {
		logrus.SetLevel(logrus.DebugLevel)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Initialize storage
	store, closeStore, err := openStore(ctx, cfg)
	if err != nil {
		logrus.Fatalf("Failed to initialize store: %v", err)
	}
	defer closeStore()

	hub := ws.NewHub()

	// Initialize Telegram bot
	var bot service.TelegramSender
	if cfg.Telegram.Enabled && cfg.Telegram.BotToken != "" {
		bot = telegram.NewBot(cfg.Telegram.BotToken)
		logrus.Info("Telegram bot initialized")
	} else {
		logrus.Warn("Telegram bot disabled, notifications go to websocket only")
	}
	deliverer := service.NewDeliveryService(store.Accounts, bot, hub)

	// Initialize task queue
	var (
		redisQueue *queue.RedisQueue
		publisher  service.TaskPublisher
		inspector  queue.Inspector
		dlq        queue.DLQHandler
	)
	if cfg.Redis.Enabled {
		client, err := redis.NewRedisClient(ctx, &cfg.Redis)
		if err != nil {
			logrus.Errorf("Failed to connect to Redis: %v. Continuing without queue...", err)
		} else {
			defer client.Close()

			queueCfg := queue.DefaultRedisQueueConfig()
			queueCfg.Prefix = cfg.Redis.QueuePrefix
			queueCfg.MaxRetries = cfg.Redis.MaxRetries

			retryManager := queue.NewRetryManager(queueCfg.MaxRetries, queueCfg.BaseDelay).
				WithClassifier(func(err error) bool { return !worker.Retryable(err) })

			redisQueue, err = queue.NewRedisQueue(client, queueCfg, retryManager, nil)
			if err != nil {
				logrus.Errorf("Failed to initialize Redis queue: %v. Continuing without queue...", err)
			} else {
				publisher = service.NewQueueAdapter(redisQueue)
				inspector = redisQueue
				dlq = redisQueue.DLQ()
			}
		}
	}

	// Initialize services
	services := service.NewServices(service.Deps{
		Store:     store,
		Config:    cfg,
		Queue:     publisher,
		Deliverer: deliverer,
		Pusher:    hub,
	})

	if redisQueue != nil {
		taskHandler := worker.NewTaskHandler(services.Booking, services.Commission, deliverer)
		if err := redisQueue.Subscribe(ctx, taskHandler.HandleTask); err != nil {
			logrus.Errorf("Queue subscriber error: %v", err)
		} else {
			logrus.Info("Queue subscriber started")
		}
	}

	// Sweeps back up the delayed tasks and are the only driver without Redis
	expiryScheduler := scheduler.NewScheduler(services.Booking, cfg.Worker.ExpiryInterval)
	go expiryScheduler.Start(ctx)
	logrus.Info("Expiry scheduler started")

	commissionWorker := worker.NewCommissionWorker(services.Commission, cfg.Worker.CommissionInterval)
	go commissionWorker.Start(ctx)
	logrus.Info("Commission worker started")

	// Initialize handlers
	handlers := transport.Handlers{
		Booking:    transport.NewBookingHandler(services.Booking),
		Commission: transport.NewCommissionHandler(services.Commission),
		Chat:       transport.NewChatHandler(services.Chat),
		Review:     transport.NewReviewHandler(services.Review),
		Account:    transport.NewAccountHandler(services.Account, services.Chat),
		Admin:      transport.NewAdminHandler(inspector, dlq, commissionWorker),
		Hub:        hub,
	}

	if cfg.IsProduction() || cfg.Server.Mode == "release" {
		gin.SetMode(gin.ReleaseMode)
	}

	srv := new(Server)
	go func() {
		if err := srv.Run(cfg, transport.InitRoutes(handlers, cfg.Server.RequestTimeout)); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logrus.Fatalf("error occured while running http server: %s", err.Error())
		}
	}()

	logrus.WithField("addr", cfg.GetServerAddress()).Print("App Started")

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGTERM, syscall.SIGINT)
	<-quit

	logrus.Print("App Shutting Down")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logrus.Errorf("error occured on server shutting down: %s", err.Error())
	}

	cancel()
	if redisQueue != nil {
		if err := redisQueue.Close(); err != nil {
			logrus.Errorf("error closing queue: %s", err.Error())
		}
	}
}
