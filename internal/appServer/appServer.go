package appServer

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"time"

	"github.com/ds124wfegd/studio-booking/config"
	"github.com/ds124wfegd/studio-booking/internal/database"
	"github.com/ds124wfegd/studio-booking/internal/database/memory"
	repository "github.com/ds124wfegd/studio-booking/internal/database/postgres"
	"github.com/ds124wfegd/studio-booking/internal/schedule"
	"github.com/ds124wfegd/studio-booking/internal/service"
	"github.com/ds124wfegd/studio-booking/internal/transport"
	"github.com/ds124wfegd/studio-booking/internal/worker"

	"github.com/ds124wfegd/studio-booking/pkg/kafka"
	"github.com/ds124wfegd/studio-booking/pkg/postgres"
	"github.com/ds124wfegd/studio-booking/pkg/queue"
	"github.com/ds124wfegd/studio-booking/pkg/redis"
	"github.com/ds124wfegd/studio-booking/pkg/scheduler"
	"github.com/ds124wfegd/studio-booking/pkg/webhook"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

const shutdownTimeout = 10 * time.Second

type Server struct {
	httpServer *http.Server
}

func NewHTTPServer(cfg *config.Config, handler http.Handler) *Server {
	return &Server{httpServer: &http.Server{
		Addr:              cfg.GetServerAddress(),
		Handler:           handler,
		MaxHeaderBytes:    1 << 20,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      cfg.Server.Timeout,
		IdleTimeout:       cfg.Server.IdleTimeout,
		ReadHeaderTimeout: 3 * time.Second,
		TLSConfig:         &tls.Config{MinVersion: tls.VersionTLS12},
		ErrorLog:          log.New(os.Stderr, "SERVER ERROR: ", log.LstdFlags),
	}}
}

func (s *Server) Run() error {
	return s.httpServer.ListenAndServe()
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

// App holds every wired component of the service.
type App struct {
	cfg       *config.Config
	store     database.Store
	queue     queue.Queue
	producer  kafka.Producer
	tasks     *queue.TaskHandler
	scheduler *scheduler.Scheduler
	router    *gin.Engine
	closers   []func() error
}

// SetupLogging configures logrus once for the process.
func SetupLogging(cfg config.LogConfig) {
	if cfg.Format == "text" {
		logrus.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	} else {
		logrus.SetFormatter(&logrus.JSONFormatter{})
	}
	logrus.SetOutput(os.Stdout)

	level, err := logrus.ParseLevel(cfg.Level)
	if err != nil {
		level = logrus.InfoLevel
	}
	logrus.SetLevel(level)
}

// OpenStore returns the configured storage backend, migrating postgres when asked.
func OpenStore(ctx context.Context, cfg *config.Config) (database.Store, error) {
	if cfg.Server.Storage == "memory" {
		logrus.Warn("Using in-memory storage, data is lost on restart")
		return memory.NewStore(), nil
	}

	db, err := postgres.NewPostgresDB(ctx, &cfg.Database)
	if err != nil {
		return nil, err
	}
	if cfg.Database.AutoMigrate {
		if err := postgres.Migrate(ctx, db); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to run migrations: %w", err)
		}
	}
	return repository.NewStore(db), nil
}

// Build wires storage, queue, services, workers and routes.
func Build(ctx context.Context, cfg *config.Config) (*App, error) {
	app := &App{cfg: cfg}

	store, err := OpenStore(ctx, cfg)
	if err != nil {
		return nil, err
	}
	app.store = store
	app.closers = append(app.closers, store.Close)

	retryManager := queue.NewRetryManager(cfg.Webhook.MaxRetries, cfg.Webhook.BaseDelay, cfg.Webhook.MaxDelay)
	if err := app.openQueue(ctx, retryManager); err != nil {
		app.Close()
		return nil, err
	}

	if cfg.Kafka.Enabled {
		app.producer = kafka.NewProducer(cfg.Kafka.Brokers, cfg.Kafka.Topic)
	} else {
		app.producer = kafka.NewMockProducer()
	}
	app.closers = append(app.closers, app.producer.Close)

	// Initialize services
	slots := schedule.NewSlotFinder(schedule.NewCronExpander(), cfg.Schedule.MaxSlots)
	sender := webhook.NewSender(nil, cfg.Webhook.SignatureHeader, cfg.Webhook.RequestTimeout)

	notificationService := service.NewNotificationService(store, service.NewQueueAdapter(app.queue), app.producer, sender, cfg.Webhook.MaxRetries)
	templateService := service.NewTemplateService(store, slots)
	allocationService := service.NewAllocationService(store, slots, notificationService, cfg.Booking)
	reservationService := service.NewReservationService(store, allocationService, notificationService, cfg.Booking)
	ledgerService := service.NewLedgerService(store, cfg.Booking)
	bundleService := service.NewBundleService(store, notificationService, cfg.Booking)

	app.tasks = queue.NewTaskHandler()
	notificationService.RegisterHandlers(app.tasks)

	app.scheduler = scheduler.NewScheduler()
	expiry := worker.NewBundleExpiryWorker(bundleService, cfg.Worker.BatchSize)
	if err := app.scheduler.Add(scheduler.Job{
		Name:     "bundle_expiry",
		Interval: cfg.Worker.BundleExpiryInterval,
		Run:      expiry.Run,
	}); err != nil {
		app.Close()
		return nil, err
	}

	if cfg.Server.Mode == "release" || cfg.Server.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	app.router = transport.InitRoutes(&transport.Handlers{
		Templates:    transport.NewTemplateHandler(templateService, allocationService),
		Allocations:  transport.NewAllocationHandler(allocationService, reservationService),
		Reservations: transport.NewReservationHandler(reservationService),
		Bundles:      transport.NewBundleHandler(bundleService, ledgerService),
		Webhooks:     transport.NewWebhookHandler(notificationService),
	}, cfg.Server.RequestTimeout)

	return app, nil
}

func (a *App) openQueue(ctx context.Context, rm *queue.RetryManager) error {
	switch a.cfg.Queue.Driver {
	case "redis":
		client, err := redis.NewRedisClient(ctx, &a.cfg.Redis)
		if err != nil {
			return err
		}
		a.closers = append(a.closers, client.Close)

		q, err := queue.NewRedisQueue(ctx, client, &queue.RedisQueueConfig{
			MainQueue:       a.cfg.Queue.MainQueue,
			DelayedQueue:    a.cfg.Queue.DelayedQueue,
			ProcessingQueue: a.cfg.Queue.ProcessingQueue,
			DLQ:             a.cfg.Queue.DLQ,
			PollInterval:    a.cfg.Queue.PollInterval,
			Workers:         a.cfg.Queue.Workers,
			EnableMetrics:   true,
		}, rm, queue.NewDefaultDLQHandler(client, a.cfg.Queue.DLQ, a.cfg.Queue.MainQueue))
		if err != nil {
			return fmt.Errorf("failed to initialize Redis queue: %w", err)
		}
		a.queue = q
	case "rabbitmq":
		q, err := queue.NewRabbitQueue(queue.RabbitQueueConfig{
			URL:       a.cfg.RabbitMQ.URL,
			QueueName: a.cfg.RabbitMQ.QueueName,
			DLQName:   a.cfg.RabbitMQ.DLQName,
			Prefetch:  a.cfg.RabbitMQ.Prefetch,
		}, rm)
		if err != nil {
			return fmt.Errorf("failed to initialize RabbitMQ queue: %w", err)
		}
		a.queue = q
	default:
		a.queue = queue.NewMemoryQueue(rm, queue.NewMemoryDLQ(), a.cfg.Queue.Workers)
	}

	// the queue stops consuming before the connections it uses are closed
	a.closers = append(a.closers, a.queue.Close)
	logrus.WithField("driver", a.cfg.Queue.Driver).Info("Task queue initialized")
	return nil
}

// Run serves HTTP, consumes tasks and runs scheduled jobs until ctx ends or one of them fails.
func (a *App) Run(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)
	srv := NewHTTPServer(a.cfg, a.router)

	g.Go(func() error {
		if err := a.queue.Subscribe(gctx, a.tasks.HandleTask); err != nil {
			return fmt.Errorf("queue subscriber: %w", err)
		}
		logrus.Info("Queue subscriber started")
		return nil
	})

	g.Go(func() error {
		return a.scheduler.Start(gctx)
	})

	g.Go(func() error {
		logrus.WithField("addr", a.cfg.GetServerAddress()).Print("App Started")
		if err := srv.Run(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("error occured while running http server: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		logrus.Print("App Shutting Down")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logrus.Errorf("error occured on server shutting down: %s", err.Error())
		}
		return nil
	})

	return g.Wait()
}

// Close releases resources in reverse order of acquisition.
func (a *App) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			logrus.Errorf("Failed to release resource: %v", err)
		}
	}
	a.closers = nil
}

// Router exposes the HTTP handler, mainly for tests.
func (a *App) Router() http.Handler {
	return a.router
}

func NewServer(ctx context.Context, cfg *config.Config) error {
	app, err := Build(ctx, cfg)
	if err != nil {
		return err
	}
	defer app.Close()

	return app.Run(ctx)
}
