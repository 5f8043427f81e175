package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"storefront-service/config"
	"storefront-service/internal/api"
	"storefront-service/internal/broker"
	"storefront-service/internal/docstore"
	"storefront-service/internal/memstore"
	"storefront-service/internal/payment"
	"storefront-service/internal/redisclient"
	"storefront-service/internal/service"
	"storefront-service/internal/shipping"
	"storefront-service/internal/store"
	"storefront-service/internal/util"
	"storefront-service/internal/worker"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

const (
	confirmLockTTL = 30 * time.Second
	orderDraftTTL  = 24 * time.Hour
)

// storage is the durable side of the service: orders, users and signed-in lists
type storage struct {
	orders service.OrderStore
	users  service.UserStore
	lists  service.ListRepository
	ready  map[string]api.Pinger
	close  func()
}

func openStorage(ctx context.Context, cfg *config.Config) (*storage, error) {
	if cfg.Server.StorageDriver == config.StorageMemory {
		orders := memstore.NewOrders()
		return &storage{
			orders: orders,
			users:  memstore.NewUsers(),
			lists:  memstore.NewLists(),
			ready:  map[string]api.Pinger{"orders": orders},
			close:  func() {},
		}, nil
	}

	db, err := store.NewStore(cfg.Database.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	if err := db.Migrate(ctx); err != nil {
		db.Close()
		return nil, err
	}

	mongoDB, err := docstore.ConnectMongoDB(ctx, cfg.Mongo.URI, cfg.Mongo.Database)
	if err != nil {
		db.Close()
		return nil, err
	}
	lists := docstore.NewListStore(mongoDB)

	return &storage{
		orders: db,
		users:  db,
		lists:  lists,
		ready:  map[string]api.Pinger{"postgres": db, "mongo": lists},
		close: func() {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := mongoDB.Client().Disconnect(ctx); err != nil {
				log.Printf("Error disconnecting MongoDB: %v", err)
			}
			db.Close()
		},
	}, nil
}

// newProvider returns the card provider and, for Stripe, its webhook parser
func newProvider(cfg config.PaymentConfig) (payment.Provider, payment.WebhookParser) {
	if cfg.Provider == "stripe" {
		p := payment.NewStripeProvider(cfg.StripeKey, cfg.WebhookSecret)
		return p, p
	}
	return payment.NewMockProvider(), nil
}

func main() {

	cfg := config.Load()

	if err := util.InitLogger(cfg.Server.Env); err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer util.SyncLogger()

	logger := util.GetLogger()
	logger.Info("Starting storefront service", zap.String("storage", cfg.Server.StorageDriver))

	tp, err := util.InitTracer(util.ServiceName, cfg.Server.Env, cfg.Observ.JaegerEndpoint)
	if err != nil {
		log.Fatalf("Failed to initialize tracer: %v", err)
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := tp.Shutdown(ctx); err != nil {
			log.Printf("Error shutting down tracer: %v", err)
		}
	}()

	startCtx, startCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer startCancel()

	st, err := openStorage(startCtx, cfg)
	if err != nil {
		log.Fatalf("Failed to open storage: %v", err)
	}
	defer st.close()
	log.Println("Storage ready")

	redisClient, err := redisclient.NewClient(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
	if err != nil {
		log.Fatalf("Failed to connect to Redis: %v", err)
	}
	defer redisClient.Close()
	log.Println("Redis connected")
	st.ready["redis"] = redisClient

	producer := broker.NewProducer(cfg.Kafka.Brokers, cfg.Kafka.TopicOrder)
	defer producer.Close()
	log.Println("Kafka producer initialized")

	eventPublisher := broker.NewEventPublisher(producer)

	freeOver, err := decimal.NewFromString(cfg.Shipping.FreeShippingThreshold)
	if err != nil {
		log.Fatalf("Invalid free shipping threshold %q: %v", cfg.Shipping.FreeShippingThreshold, err)
	}
	table := shipping.DefaultTable().WithFreeThreshold(shipping.TierStandard, freeOver)

	rawProvider, webhooks := newProvider(cfg.Payment)
	provider := payment.WithBreaker(rawProvider, "payment-provider", payment.DefaultBreakerSettings(), logger)

	identity := service.NewIdentityResolver(cfg.Auth.JWTSecret, cfg.Auth.TokenTTL)
	carts := service.NewCartService(
		redisClient.GuestLists(cfg.Business.GuestCartTTL),
		st.lists,
		redisClient,
		cfg.Business.LockTTL,
		cfg.Business.LockWait,
	)
	merger := service.NewCartMerger(carts, redisClient, eventPublisher, cfg.Business.MergeMarkerTTL)
	checkout := service.NewCheckoutService(carts, redisClient, st.users, service.CheckoutOptions{
		Table:         table,
		Currency:      cfg.Payment.Currency,
		SessionTTL:    cfg.Business.CheckoutSessionTTL,
		GuestEmailTTL: cfg.Business.GuestCartTTL,
	})
	gateway := service.NewOrderGateway(st.orders, provider, eventPublisher)
	payments := service.NewPaymentCoordinator(checkout, provider, gateway, redisClient, confirmLockTTL, orderDraftTTL)
	reconciler := service.NewReconciler(st.orders, provider, eventPublisher)

	workerCtx, workerCancel := context.WithCancel(context.Background())
	defer workerCancel()

	reconcileConsumer := broker.NewConsumer(cfg.Kafka.Brokers, cfg.Kafka.TopicOrder, cfg.Kafka.ConsumerGroup)
	reconcileWorker := worker.NewReconcileWorker(reconcileConsumer, reconciler)
	go func() {
		if err := reconcileWorker.Start(workerCtx); err != nil {
			logger.Error("Reconcile worker error", zap.Error(err))
		}
	}()

	if cfg.Server.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	handler := api.NewHandler(api.Deps{
		Identity: identity,
		Auth:     service.NewAuthService(st.users, identity, merger),
		Carts:    carts,
		Checkout: checkout,
		Payments: payments,
		Orders:   gateway,
		Profiles: service.NewProfileService(st.users),
		Webhooks: webhooks,
		Ready:    st.ready,
		GuestTTL: cfg.Business.GuestCartTTL,
		Secure:   cfg.Server.Env == "production",
	})
	handler.SetupRoutes(router)

	srv := &http.Server{
		Addr:    fmt.Sprintf(":%s", cfg.Server.Port),
		Handler: router,
	}

	go func() {
		log.Printf("Starting HTTP server on port %s", cfg.Server.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Failed to start server: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("Shutting down server...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("Server forced to shutdown: %v", err)
	}

	workerCancel()
	reconcileWorker.Stop()

	log.Println("Server exited")
}
