package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5/pgxpool"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/redis/go-redis/v9"

	"github.com/techserve/support-api/internal/config"
	"github.com/techserve/support-api/internal/handler"
	"github.com/techserve/support-api/internal/middleware"
	"github.com/techserve/support-api/internal/payment"
	"github.com/techserve/support-api/internal/repository"
	"github.com/techserve/support-api/internal/service"
	"github.com/techserve/support-api/internal/worker"
)

func main() {
	log := slog.New(slog.NewJSONHandler(os.Stdout, nil))

	cfg, err := config.Load()
	if err != nil {
		log.Error("load config", "error", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// PostgreSQL
	poolCfg, err := pgxpool.ParseConfig(cfg.DB.DSN())
	if err != nil {
		log.Error("parse db config", "error", err)
		os.Exit(1)
	}
	poolCfg.MaxConns = cfg.DB.MaxConns

	dbPool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		log.Error("connect to database", "error", err)
		os.Exit(1)
	}
	defer dbPool.Close()

	if err := dbPool.Ping(ctx); err != nil {
		log.Error("ping database", "error", err)
		os.Exit(1)
	}
	log.Info("connected to PostgreSQL")

	// Redis
	redisClient := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	defer redisClient.Close()

	if err := redisClient.Ping(ctx).Err(); err != nil {
		log.Error("connect to Redis", "error", err)
		os.Exit(1)
	}
	log.Info("connected to Redis")

	// RabbitMQ
	amqpConn, err := amqp.Dial(cfg.RabbitMQ.URL)
	if err != nil {
		log.Error("connect to RabbitMQ", "error", err)
		os.Exit(1)
	}
	defer amqpConn.Close()

	amqpCh, err := amqpConn.Channel()
	if err != nil {
		log.Error("open RabbitMQ channel", "error", err)
		os.Exit(1)
	}
	defer amqpCh.Close()

	if err := worker.SetupRabbitMQ(amqpCh); err != nil {
		log.Error("setup RabbitMQ", "error", err)
		os.Exit(1)
	}
	log.Info("connected to RabbitMQ")

	// Repositories
	userRepo := repository.NewUserRepository(dbPool)
	categoryRepo := repository.NewCategoryRepository(dbPool)
	serviceRepo := repository.NewServiceRepository(dbPool)
	cartRepo := repository.NewCartRepository(dbPool)
	orderRepo := repository.NewOrderRepository(dbPool)

	// Payment gateway client
	gateway := payment.NewClient(cfg.Payment)
	if gateway.TestMode() {
		log.Warn("payment gateway is in test mode, checkout will skip the real gateway")
	}

	// Services
	categorySvc := service.NewCategoryService(categoryRepo)
	catalogSvc := service.NewCatalogService(serviceRepo, redisClient)
	cartSvc := service.NewCartService(cartRepo, catalogSvc, log)
	authSvc := service.NewAuthService(userRepo, cartSvc, cfg.JWT.Secret, cfg.JWT.Expiration, log)
	orderSvc := service.NewOrderService(orderRepo)
	checkoutSvc := service.NewCheckoutService(orderRepo, userRepo, cartSvc, gateway, redisClient, amqpCh, log)

	// Handlers
	authH := handler.NewAuthHandler(authSvc)
	categoryH := handler.NewCategoryHandler(categorySvc)
	catalogH := handler.NewCatalogHandler(catalogSvc)
	cartH := handler.NewCartHandler(cartSvc)
	orderH := handler.NewOrderHandler(orderSvc)
	checkoutH := handler.NewCheckoutHandler(checkoutSvc)
	healthH := handler.NewHealthHandler(dbPool, redisClient, amqpConn, gateway)

	// Worker
	emailWorker := worker.NewEmailWorker(amqpCh, orderRepo, redisClient, cfg.Email, log)

	// Router
	router := gin.Default()
	router.GET("/healthz", healthH.Healthz)
	router.GET("/readyz", healthH.Readyz)

	v1 := router.Group("/api/v1")
	{
		auth := v1.Group("/auth")
		auth.POST("/register", authH.Register)
		auth.POST("/login", authH.Login)

		categories := v1.Group("/categories")
		categories.GET("", categoryH.List)

		catAdmin := categories.Group("", middleware.AuthMiddleware(cfg.JWT.Secret), middleware.AdminOnly())
		catAdmin.POST("", categoryH.Create)
		catAdmin.PUT("/:id", categoryH.Update)
		catAdmin.DELETE("/:id", categoryH.Delete)

		services := v1.Group("/services")
		services.GET("", catalogH.List)
		services.GET("/:id", catalogH.GetByID)

		svcAdmin := services.Group("", middleware.AuthMiddleware(cfg.JWT.Secret), middleware.AdminOnly())
		svcAdmin.POST("", catalogH.Create)
		svcAdmin.PUT("/:id", catalogH.Update)
		svcAdmin.DELETE("/:id", catalogH.Delete)

		// The cart is reachable both as a guest and as a user.
		cart := v1.Group("/cart", middleware.Identity(cfg.JWT.Secret))
		cart.GET("", cartH.GetCart)
		cart.POST("/items", cartH.AddItem)
		cart.PUT("/items/:id", cartH.UpdateItem)
		cart.DELETE("/items/:id", cartH.DeleteItem)
		cart.DELETE("", cartH.Clear)

		checkout := v1.Group("/checkout", middleware.AuthMiddleware(cfg.JWT.Secret))
		checkout.POST("", checkoutH.Checkout)

		orders := v1.Group("/orders", middleware.AuthMiddleware(cfg.JWT.Secret))
		orders.GET("", orderH.ListOrders)
		orders.GET("/:id", orderH.GetOrder)
	}

	if err := emailWorker.Start(ctx); err != nil {
		log.Error("start email worker", "error", err)
		os.Exit(1)
	}

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	go func() {
		log.Info("starting HTTP server", "port", cfg.Server.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("shutting down...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("server shutdown", "error", err)
	}

	emailWorker.Stop()
	time.Sleep(500 * time.Millisecond)
	cancel()
	log.Info("server stopped")
}
