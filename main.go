package main

import (
	"context"
	"net/http"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"staybook/config"
	"staybook/cron"
	"staybook/database"
	bookingRepo "staybook/database/repository/booking"
	deadLetterRepo "staybook/database/repository/deadletter"
	"staybook/handlers"
	"staybook/routes"
	"staybook/services/booking"
	"staybook/services/messaging"
	"staybook/services/tasks"
	"staybook/transport/kafka"
	"staybook/transport/rabbitmq"
	"staybook/utils"

	"github.com/gin-gonic/gin"
	"github.com/go-redis/redis/v8"
	"github.com/hibiken/asynq"
	"go.uber.org/zap"
)

func main() {
	config.LoadConfig()
	cfg := config.AppConfig
	logger := utils.GetLogger()
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// storage.
	database.InitDB()
	db := database.Database()
	cache := utils.GetCacheClient()

	mongoBookings := bookingRepo.NewMongoBookingRepo(db.Collection("bookings"))
	deadLetters := deadLetterRepo.NewMongoDeadLetterRepo(db.Collection("dead_letters"))
	if err := mongoBookings.EnsureIndexes(ctx); err != nil {
		logger.Fatal("main: failed to ensure booking indexes", zap.Error(err))
	}
	if err := deadLetters.EnsureIndexes(ctx); err != nil {
		logger.Fatal("main: failed to ensure dead letter indexes", zap.Error(err))
	}
	repo := bookingRepo.NewCachedBookingRepo(mongoBookings, cache, cfg.BookingCacheTTL, logger)

	// dead letters go through asynq to the archive worker.
	queueOpts := asynq.RedisClientOpt{Addr: cfg.RedisAddr, Password: cfg.RedisPassword, DB: cfg.RedisDeadLetterDB}
	asynqClient := asynq.NewClient(queueOpts)
	defer asynqClient.Close()
	deadLetterWorker := cron.NewDeadLetterWorker(queueOpts, deadLetters, logger)
	deadLetterWorker.Start(ctx)

	// outbound publishing.
	brokers := map[string]utils.BrokerCheck{}
	transport, closeTransport := newTransport(cfg, logger, brokers)
	publisher := messaging.NewPublisher(transport, cfg.PublishTimeout, logger)

	// core.
	bookingService := booking.NewBookingService(repo, publisher, logger)
	router := messaging.NewBookingRouter(repo, publisher, tasks.NewDeadLetterSink(asynqClient), logger)

	var consumers sync.WaitGroup
	closers := startConsumers(ctx, cfg, router, logger, brokers, &consumers)

	utils.StartHealthMonitor(ctx, 30*time.Second, []*redis.Client{cache}, database.MongoClient, brokers)

	// http.
	var webhook *handlers.StripeWebhookHandler
	if cfg.StripeWebhookSecret != "" {
		webhook = handlers.NewStripeWebhookHandler(cfg.StripeWebhookSecret, router, logger)
	} else {
		logger.Warn("STRIPE_WEBHOOK_SECRET is empty; stripe webhook disabled")
	}
	handlerBundle := handlers.NewHandlerBundle(handlers.NewBookingHandler(bookingService, logger), webhook)

	if config.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}
	engine := gin.New()
	engine.Use(gin.Recovery())
	engine.Use(utils.ErrorHandler())
	engine.Use(gin.Logger())
	routes.RegisterRoutes(engine, handlerBundle, cfg.MaxRequestsPerMin)

	srv := &http.Server{
		Addr:    "0.0.0.0:" + cfg.AppPort,
		Handler: engine,
	}

	logger.Sugar().Infof("Starting server on %s...", srv.Addr)
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Sugar().Fatalf("main: server failed to start: %v", err)
		}
	}()

	<-ctx.Done()
	logger.Sugar().Info("main: server is shutting down...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("main: server forced to shutdown", zap.Error(err))
	}

	// stop intake first, then drain in-flight publishes.
	for _, c := range closers {
		c()
	}
	consumers.Wait()
	publisher.Wait()
	closeTransport()
	deadLetterWorker.Shutdown()

	if err := database.Disconnect(shutdownCtx); err != nil {
		logger.Error("main: mongo disconnect failed", zap.Error(err))
	}
	logger.Sugar().Info("main: server stopped gracefully")
}

// newTransport builds the outbound transport named by PUBLISH_TRANSPORT.
func newTransport(cfg config.Config, logger *zap.Logger, brokers map[string]utils.BrokerCheck) (messaging.Transport, func()) {
	switch cfg.PublishTransport {
	case "kafka":
		producer, err := kafka.NewProducer(config.SplitList(cfg.KafkaBrokers), cfg.KafkaClientID, logger)
		if err != nil {
			logger.Fatal("main: failed to create kafka producer", zap.Error(err))
		}
		return producer, func() {
			if err := producer.Close(); err != nil {
				logger.Error("main: kafka producer close failed", zap.Error(err))
			}
		}
	default:
		pub, err := rabbitmq.NewPublisher(cfg.RabbitMQURL, cfg.RabbitMQPublishExchange)
		if err != nil {
			logger.Fatal("main: failed to create rabbitmq publisher", zap.Error(err))
		}
		brokers["rabbitmq_publisher"] = pub.Ping
		return pub, func() {
			if err := pub.Close(); err != nil {
				logger.Error("main: rabbitmq publisher close failed", zap.Error(err))
			}
		}
	}
}

// startConsumers starts every enabled inbound transport and returns their closers.
func startConsumers(ctx context.Context, cfg config.Config, router *messaging.Router, logger *zap.Logger, brokers map[string]utils.BrokerCheck, wg *sync.WaitGroup) []func() {
	var closers []func()

	if cfg.RabbitMQEnabled {
		consumer := rabbitmq.NewConsumer(rabbitmq.ConsumerConfig{
			URL:                cfg.RabbitMQURL,
			Exchange:           cfg.RabbitMQExchange,
			Queue:              cfg.RabbitMQQueue,
			Bindings:           config.SplitList(cfg.RabbitMQBindings),
			ConsumerTag:        "booking-service",
			DeliveryLimit:      cfg.RabbitMQDeliveryLimit,
			DeadLetterExchange: cfg.RabbitMQDeadLetterExch,
		}, router, logger)
		brokers["rabbitmq_consumer"] = consumer.Ping

		wg.Add(1)
		go func() {
			defer wg.Done()
			runRabbitMQ(ctx, consumer, logger)
		}()
		closers = append(closers, consumer.Close)
	}

	if cfg.KafkaEnabled {
		consumer, err := kafka.NewConsumer(kafka.ConsumerConfig{
			Brokers:         config.SplitList(cfg.KafkaBrokers),
			ClientID:        cfg.KafkaClientID,
			GroupID:         cfg.KafkaGroupID,
			Topics:          config.SplitList(cfg.KafkaTopics),
			MaxRedeliveries: cfg.KafkaMaxRedeliveries,
		}, router, logger)
		if err != nil {
			logger.Fatal("main: failed to create kafka consumer", zap.Error(err))
		}
		brokers["kafka"] = consumer.Ping

		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := consumer.Run(ctx); err != nil {
				logger.Error("main: kafka consumer stopped", zap.Error(err))
			}
		}()
		closers = append(closers, func() {
			if err := consumer.Close(); err != nil {
				logger.Error("main: kafka consumer close failed", zap.Error(err))
			}
		})
	}

	return closers
}

// runRabbitMQ keeps the consumer connected, reconnecting with a growing
// delay when the broker drops the channel.
func runRabbitMQ(ctx context.Context, consumer *rabbitmq.Consumer, logger *zap.Logger) {
	delay := time.Second
	for {
		err := consumer.Connect()
		if err == nil {
			delay = time.Second
			err = consumer.Run(ctx)
		}
		if ctx.Err() != nil {
			return
		}
		logger.Warn("RabbitMQ consumer disconnected, reconnecting",
			zap.Error(err),
			zap.Duration("delay", delay),
		)
		consumer.Close()

		select {
		case <-ctx.Done():
			return
		case <-time.After(delay):
		}
		if delay < 30*time.Second {
			delay *= 2
		}
	}
}
