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
	"github.com/go-pg/pg/v10"
	"github.com/prometheus/client_golang/prometheus"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"google.golang.org/grpc"

	"github.com/rbroggi/recyclo/internal/actors/gateway"
	grpcactor "github.com/rbroggi/recyclo/internal/actors/grpc"
	metricsactor "github.com/rbroggi/recyclo/internal/actors/metrics"
	mongoactor "github.com/rbroggi/recyclo/internal/actors/mongo"
	"github.com/rbroggi/recyclo/internal/actors/objectstore"
	postgresactor "github.com/rbroggi/recyclo/internal/actors/postgres"
	produceractor "github.com/rbroggi/recyclo/internal/actors/pubsub/producer"
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
	grpcServerEndpoint = flag.String("grpc-server-endpoint", "localhost:50051", "gRPC server endpoint")
	httpServerEndpoint = flag.String("http-server-endpoint", "localhost:8080", "HTTP server endpoint")
)

func run() error {
	ctx := context.Background()
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	cfg, err := config.LoadServer()
	if err != nil {
		return err
	}

	// Set client options
	clientOptions := options.Client().ApplyURI(cfg.MongoURL)
	db, err := mongo.Connect(ctx, clientOptions)
	if err != nil {
		return err
	}
	if err := db.Ping(ctx, nil); err != nil {
		log.WithError(err).Error("db does not appear to be reachable")
		return err
	}
	defer db.Disconnect(context.Background())

	mongoActor, err := mongoactor.NewMongoDB(mongoactor.MongoDBArgs{Database: db.Database(cfg.MongoDatabase)})
	if err != nil {
		log.WithError(err).Error("could not initialize mongo actor")
		return err
	}
	if err := mongoActor.EnsureIndexes(ctx); err != nil {
		return err
	}
	checks := map[string]grpcactor.Check{
		"mongo": func(ctx context.Context) error { return db.Ping(ctx, nil) },
	}

	var (
		users    ports.UserDirectory     = mongoActor
		listings ports.ListingRepository = mongoActor
	)
	if cfg.PostgresURL != "" {
		pgOpts, err := pg.ParseURL(cfg.PostgresURL)
		if err != nil {
			return err
		}
		pgDB := pg.Connect(pgOpts)
		defer pgDB.Close()
		postgresActor, err := postgresactor.NewPostgresDB(postgresactor.PostgresDBArgs{DB: pgDB})
		if err != nil {
			log.WithError(err).Error("could not initialize postgres actor")
			return err
		}
		users, listings = postgresActor, postgresActor
		checks["postgres"] = pgDB.Ping
		log.Info("users and listings stored in postgres")
	}

	client, err := pubsub.NewClient(ctx, cfg.PubSubProjectID)
	if err != nil {
		return err
	}
	defer client.Close()
	producer, err := produceractor.NewProducer(client.Topic(cfg.MessageEventsTopic))
	if err != nil {
		return err
	}

	var images ports.ObjectStore = objectstore.Noop{}
	if cfg.S3Endpoint != "" {
		images, err = objectstore.NewClient(objectstore.ClientArgs{
			Endpoint:  cfg.S3Endpoint,
			AccessKey: cfg.S3AccessKey,
			SecretKey: cfg.S3SecretKey,
			Bucket:    cfg.S3Bucket,
		}, objectstore.WithSSL(cfg.S3UseSSL), objectstore.WithPublicBaseURL(cfg.S3PublicBaseURL))
		if err != nil {
			return err
		}
	} else {
		log.Warn("no object store configured, listings cannot be published")
	}

	collector := metricsactor.NewCollector(prometheus.DefaultRegisterer)
	freshness := usecase.Freshness{Window: cfg.FreshnessWindow}

	if cfg.SessionSecret == "" {
		log.Warn("no session secret configured, sessions do not survive a restart")
	}
	accounts := usecase.NewAccountService(usecase.AccountServiceArgs{Users: users},
		usecase.WithSessionSecret([]byte(cfg.SessionSecret)),
		usecase.WithSessionTTL(cfg.SessionTTL),
	)
	conversations := usecase.NewConversationService(usecase.ConversationServiceArgs{
		Store:  mongoActor,
		Users:  users,
		Events: producer,
	}, usecase.WithMetrics(collector), usecase.WithViewCacheSize(cfg.ViewCacheSize))
	listingSvc := usecase.NewListingService(usecase.ListingServiceArgs{
		Listings:      listings,
		Images:        images,
		Conversations: conversations,
	})

	gw, err := gateway.NewServer(gateway.ServerArgs{
		Accounts:      accounts,
		Conversations: conversations,
		Listings:      listingSvc,
		Store:         mongoActor,
	},
		gateway.WithContactRateLimit(cfg.ContactsPerMinute, cfg.ContactsBurst),
		gateway.WithWatcherOptions(usecase.WithFreshness(freshness), usecase.WithWatcherMetrics(collector)),
	)
	if err != nil {
		return err
	}

	httpServer := &http.Server{
		Addr:              *httpServerEndpoint,
		Handler:           gw,
		ReadHeaderTimeout: 10 * time.Second,
		// event streams end with ctx
		BaseContext: func(net.Listener) context.Context { return ctx },
	}
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
