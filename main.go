package main

import (
	"context"
	"log"
	"os/signal"
	"strings"
	"syscall"

	"example.com/activityfeed/cmd/server"
	"example.com/activityfeed/cmd/worker"
	"example.com/activityfeed/internal/broker"
	"example.com/activityfeed/internal/dispatch"
	"example.com/activityfeed/internal/feed"
	config "example.com/activityfeed/internal/init"
	"example.com/activityfeed/internal/logger"
	"example.com/activityfeed/internal/store"
)

type pubSub interface {
	feed.Publisher
	worker.Subscriber
}

func main() {
	// Initialize application configuration
	cfg := config.Init()
	if err := logger.SetLevel(cfg.LogLevel); err != nil {
		log.Printf("invalid LOG_LEVEL %q, keeping info: %v", cfg.LogLevel, err)
	}
	logg := logger.New()
	defer logg.Sync()

	// Initialize Cassandra store connection
	st, err := store.New()
	if err != nil {
		log.Fatalf("Cassandra connection failed: %v", err)
	}
	defer st.Close()

	// Kafka carries fan-out jobs between server and workers
	queue := broker.NewKafkaQueue(broker.KafkaConfig{
		Brokers:      []string{cfg.KafkaBroker},
		TopicPrefix:  cfg.KafkaTopicPrefix,
		Partitions:   cfg.KafkaPartitions,
		GroupID:      cfg.KafkaGroupID,
		WriteTimeout: cfg.KafkaWriteTO,
		ReadTimeout:  cfg.KafkaReadTO,
	})
	defer queue.Close()

	// Redis pub/sub is optional
	var ps pubSub = broker.NopPubSub{}
	if cfg.RedisAddr != "" {
		redisPS := broker.NewRedisPubSub(
			broker.NewRedisClient(strings.Split(cfg.RedisAddr, ","), cfg.RedisPassword, cfg.RedisDB),
			cfg.PubSubNamespace,
		)
		defer redisPS.Close()
		ps = redisPS
	}

	opts := []feed.Option{
		feed.WithConcurrency(cfg.FanoutConcurrency),
		feed.WithPageSizes(cfg.DefaultPageSize, cfg.MaxPageSize),
		feed.WithPublisher(ps),
	}

	// Setup OS signal handling for graceful shutdown (SIGINT, SIGTERM)
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Run application depending on selected mode
	switch cfg.Mode {
	case "server":
		var engine *feed.Engine
		switch cfg.DispatchMode {
		case config.DispatchInline:
			d := dispatch.NewInline()
			engine = feed.New(st, st, d, opts...)
			engine.RegisterHandlers(d)
		case config.DispatchQueued:
			engine = feed.New(st, st, dispatch.NewQueued(queue), opts...)
		default:
			log.Fatalf("unknown dispatch mode: %s", cfg.DispatchMode)
		}
		logg.Info("main", "Fan-out dispatch mode: "+cfg.DispatchMode)

		if cfg.JWTSecret == "" {
			logg.Warn("main", "JWT_SECRET is empty, tokens are signed with an empty key")
		}
		server.New(st, engine, []byte(cfg.JWTSecret)).Run(ctx, cfg.ServerAddr, cfg.TLSCertFile, cfg.TLSKeyFile)
	case "worker":
		// Workers run the same fan-out handlers the inline dispatcher would
		engine := feed.New(st, st, dispatch.NewQueued(queue), opts...)
		w := worker.New(queue, cfg.WorkerCount, cfg.WorkerQueueSize, cfg.WorkerMaxRetryTO)
		engine.RegisterHandlers(w)
		w.Watch(ps, feed.TopicActivityAdded, feed.TopicActivityRemoved)

		if err := w.Run(ctx); err != nil {
			logg.Error("main", "Worker stopped with error", err)
		}
		if err := w.Close(); err != nil {
			logg.Error("main", "Failed to close worker", err)
		}
	default:
		log.Fatalf("unknown mode: %s", cfg.Mode)
	}

	log.Println("Shutdown completed")
}
