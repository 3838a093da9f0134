package main

import (
	"context"
	"errors"
	"flag"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"cloud.google.com/go/pubsub"
	"github.com/grpc-ecosystem/grpc-gateway/v2/runtime"
	"github.com/prometheus/client_golang/prometheus"
	"google.golang.org/grpc"

	grpcactor "github.com/rbroggi/recyclo/internal/actors/grpc"
	kafkaactor "github.com/rbroggi/recyclo/internal/actors/kafka"
	metricsactor "github.com/rbroggi/recyclo/internal/actors/metrics"
	produceractor "github.com/rbroggi/recyclo/internal/actors/pubsub/producer"
	subscriberactor "github.com/rbroggi/recyclo/internal/actors/pubsub/subscriber"
	"github.com/rbroggi/recyclo/internal/config"
	"github.com/rbroggi/recyclo/internal/core/ports"
	"github.com/rbroggi/recyclo/internal/core/usecase"
	log "github.com/sirupsen/logrus"
)

func init() {
	// Log as JSON instead of the default ASCII formatter.
	log.SetFormatter(&log.JSONFormatter{})

	// Output to stdout instead of the default stderr
	// Can be any io.Writer, see below for File example
	log.SetOutput(os.Stdout)

	// Only log the DebugLevel severity or above.
	log.SetLevel(log.DebugLevel)
}

var (
	grpcServerEndpoint = flag.String("grpc-server-endpoint", "localhost:50052", "gRPC server endpoint")
	httpServerEndpoint = flag.String("http-server-endpoint", "localhost:8081", "HTTP server endpoint")
)

func run() error {
	ctx := context.Background()
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	cfg, err := config.LoadWorker()
	if err != nil {
		return err
	}

	client, err := pubsub.NewClient(ctx, cfg.PubSubProjectID)
	if err != nil {
		return err
	}
	defer client.Close()

	subscription := client.Subscription(cfg.MessageEventsSubscription)
	checks := map[string]grpcactor.Check{
		"pubsub": func(ctx context.Context) error {
			_, err := subscription.Exists(ctx)
			return err
		},
	}

	var sender ports.NotificationSender
	if len(cfg.KafkaBrokers) > 0 {
		syncProducer, err := kafkaactor.NewSyncProducer(cfg.KafkaBrokers)
		if err != nil {
			return err
		}
		kafkaProducer, err := kafkaactor.NewProducer(kafkaactor.ProducerArgs{SyncProducer: syncProducer}, kafkaactor.WithTopic(cfg.KafkaTopic))
		if err != nil {
			return err
		}
		defer kafkaProducer.Close()
		sender = kafkaProducer
		log.WithField("topic", cfg.KafkaTopic).Info("publishing notifications on kafka")
	} else {
		producer, err := produceractor.NewProducer(client.Topic(cfg.NotificationsTopic))
		if err != nil {
			return err
		}
		sender = producer
	}

	registry := prometheus.NewRegistry()
	collector := metricsactor.NewCollector(registry)
	informer := usecase.NewInformer(sender,
		usecase.WithInformerFreshness(usecase.Freshness{Window: cfg.FreshnessWindow}),
		usecase.WithInformerMetrics(collector),
	)

	subscriber := subscriberactor.NewSubscriber(subscriberactor.SubscriberArgs{
		MessageEventHandler: informer,
		Subscription:        subscription,
	})

	// start subscriber
	go func(ctx context.Context) {
		if err := subscriber.Consume(ctx); err != nil {
			panic(err)
		}
	}(ctx)

	mux := runtime.NewServeMux()
	metricsHandler := metricsactor.Handler(registry)
	if err := mux.HandlePath(http.MethodGet, "/metrics", func(w http.ResponseWriter, r *http.Request, _ map[string]string) {
		metricsHandler.ServeHTTP(w, r)
	}); err != nil {
		return err
	}

	// start http server
	httpServer := &http.Server{Addr: *httpServerEndpoint, Handler: mux, ReadHeaderTimeout: 10 * time.Second}
	go func() {
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			panic(err)
		}
	}()

	lis, err := net.Listen("tcp", *grpcServerEndpoint)
	if err != nil {
		return err
	}

	s := grpc.NewServer()
	health := grpcactor.NewHealthService(grpcactor.HealthServiceArgs{Checks: checks}, grpcactor.WithInterval(cfg.HealthInterval))
	health.Register(s)
	go health.Run(ctx)

	// Start gRPC server
	go func() {
		if err := s.Serve(lis); err != nil {
			panic(err)
		}
	}()

	log.
		WithField("http-server-addr", *httpServerEndpoint).
		WithField("grpc-server-addr", *grpcServerEndpoint).
		Info("servers up or soon to be up. listening to SIGTERM, SIGINT, SIGQUIT for stoping the server")

	// Wait for signal
	ch := make(chan os.Signal, 1)
	signal.Notify(ch, syscall.SIGTERM, syscall.SIGINT, syscall.SIGQUIT)
	<-ch

	// Stop servers
	cancel()
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.WithError(err).Warn("error shutting down http server")
	}
	s.GracefulStop()

	return nil
}

func main() {
	flag.Parse()

	if err := run(); err != nil {
		panic(err)
	}
}
