package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	_ "github.com/go-sql-driver/mysql"
	"github.com/google/uuid"

	"smart-library-backend/internal/books"
	"smart-library-backend/internal/loans"
	"smart-library-backend/internal/platform/auth"
	"smart-library-backend/internal/platform/db"
	"smart-library-backend/internal/users"
)

func main() {
	cfg, err := db.LoadConfig("config/config.yaml")
	if err != nil {
		slog.Error("load config", "err", err)
		os.Exit(1)
	}

	log := slog.New(slog.NewJSONHandler(os.Stdout, nil)).With("service", cfg.Service)
	slog.SetDefault(log)
	log.Info("starting", "mode", cfg.Mode, "listen", cfg.Listen)

	if cfg.Mode != "dev" && cfg.Mode != "release" {
		log.Error("mode must be dev or release", "mode", cfg.Mode)
		os.Exit(1)
	}

	conn, err := db.Connect(cfg.DB)
	if err != nil {
		log.Error("connect db", "err", err)
		os.Exit(1)
	}
	defer conn.Close()
	log.Info("connected to db", "dbname", cfg.DB.DBName)

	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Logger(), gin.Recovery(), requestID())
	_ = r.SetTrustedProxies(nil)

	if cfg.Mode == "dev" {
		r.Use(cors.New(cors.Config{
			AllowOrigins:     []string{"http://localhost:3000"},
			AllowHeaders:     []string{"Origin", "Content-Type", "Authorization"},
			ExposeHeaders:    []string{"Content-Length"},
			AllowMethods:     []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
			AllowCredentials: true,
		}))
	}

	r.GET("/healthz", func(c *gin.Context) { c.String(http.StatusOK, "ok") })

	secret := []byte(cfg.JWTSecret)
	requireAuth := auth.RequireAuth(secret)
	requireAdmin := auth.RequireRole("admin")

	api := r.Group("/api")
	auth.RegisterRoutes(api, auth.NewService(conn, secret))

	peerTimeout := cfg.Peers.Timeout()

	switch cfg.Service {
	case "book":
		svc := books.NewService(books.NewStore(conn),
			books.NewLoanCountsClient(cfg.Peers.LoanServiceURL, peerTimeout), log)
		books.RegisterRoutes(api, svc, requireAuth, requireAdmin)

	case "user":
		svc := users.NewService(users.NewStore(conn),
			users.NewLoanStatsClient(cfg.Peers.LoanServiceURL, peerTimeout), log)
		users.RegisterRoutes(api, svc, requireAuth)

	case "loan":
		svc := loans.NewService(loans.NewStore(conn),
			loans.NewBookServiceClient(cfg.Peers.BookServiceURL, peerTimeout),
			loans.NewUserServiceClient(cfg.Peers.UserServiceURL, peerTimeout), log)
		loans.RegisterRoutes(api, svc, requireAuth)

	case "all":
		// Single-process deployment: the loan store doubles as the borrow
		// counters the book and user services rank with, and the saga talks
		// to the in-process services through the local adapters.
		loanStore := loans.NewStore(conn)
		bookSvc := books.NewService(books.NewStore(conn), loanStore, log)
		userSvc := users.NewService(users.NewStore(conn), loanStore, log)
		loanSvc := loans.NewService(loanStore,
			loans.LocalLedger{Books: bookSvc},
			loans.LocalDirectory{Users: userSvc}, log)

		books.RegisterRoutes(api, bookSvc, requireAuth, requireAdmin)
		users.RegisterRoutes(api, userSvc, requireAuth)
		loans.RegisterRoutes(api, loanSvc, requireAuth)

	default:
		log.Error("service must be book, user, loan or all", "service", cfg.Service)
		os.Exit(1)
	}

	srv := &http.Server{
		Addr:    cfg.Listen,
		Handler: r,
	}

	go func() {
		log.Info("listening", "addr", cfg.Listen)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("serve", "err", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt)
	<-quit
	log.Info("shutting down")
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Error("shutdown", "err", err)
	}
}

// requestID tags each request so saga log lines can be tied back to the
// API call that started them.
func requestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader("X-Request-ID")
		if id == "" {
			id = uuid.NewString()
		}
		c.Header("X-Request-ID", id)
		c.Next()
	}
}
