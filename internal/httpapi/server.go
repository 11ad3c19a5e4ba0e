package httpapi

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/MarkoPoloResearchLab/courtclub/internal/booking"
	"github.com/MarkoPoloResearchLab/courtclub/internal/funding"
	"github.com/MarkoPoloResearchLab/courtclub/pkg/ledger"
	"github.com/MarkoPoloResearchLab/courtclub/pkg/roster"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// Services bundles the core collaborators the HTTP boundary exposes.
type Services struct {
	Ledger  *ledger.Service
	Roster  *roster.Service
	Booking *booking.Service
	Funding *funding.Service
}

// Server is the HTTP+JSON boundary over the club core.
type Server struct {
	cfg            Config
	logger         *zap.Logger
	ledgerService  *ledger.Service
	rosterService  *roster.Service
	bookingService *booking.Service
	fundingService *funding.Service
}

// NewServer validates the configuration and wires a Server.
func NewServer(cfg Config, logger *zap.Logger, services Services) (*Server, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("http config: %w", err)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if services.Ledger == nil || services.Roster == nil || services.Booking == nil || services.Funding == nil {
		return nil, fmt.Errorf("http server: missing service dependency")
	}
	return &Server{
		cfg:            cfg,
		logger:         logger,
		ledgerService:  services.Ledger,
		rosterService:  services.Roster,
		bookingService: services.Booking,
		fundingService: services.Funding,
	}, nil
}

// Run serves until the context is canceled, then shuts down gracefully.
func (server *Server) Run(ctx context.Context) error {
	router := server.setupRouter()

	httpServer := &http.Server{
		Addr:    server.cfg.ListenAddr,
		Handler: router,
	}

	errCh := make(chan error, 1)
	go func() {
		server.logger.Info("clubd listening", zap.String("addr", server.cfg.ListenAddr))
		errCh <- httpServer.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), server.cfg.ShutdownTimeout)
		defer cancel()
		if shutdownErr := httpServer.Shutdown(shutdownCtx); shutdownErr != nil {
			server.logger.Warn("server shutdown error", zap.Error(shutdownErr))
		}
		return nil
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}

func (server *Server) setupRouter() *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(cors.New(cors.Config{
		AllowOrigins:     server.cfg.AllowedOrigins,
		AllowMethods:     []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Content-Type", "Origin", "Accept", "Authorization"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}))

	router.GET("/healthz", func(ctx *gin.Context) {
		ctx.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	router.POST("/webhooks/topup", server.handleTopUpWebhook)

	api := router.Group("/api")
	api.Use(server.sessionMiddleware())

	api.GET("/session", server.handleSession)
	api.GET("/wallet", server.handleWallet)
	api.GET("/wallet/entries", server.handleWalletEntries)
	api.GET("/deposits", server.handleOwnDeposits)
	api.POST("/donations", server.handleDonation)

	api.GET("/events", server.handleListEvents)
	api.GET("/events/:event_id", server.handleGetEvent)
	api.GET("/events/:event_id/roster", server.handleRoster)
	api.POST("/events/:event_id/registrations", server.handleRegister)
	api.DELETE("/events/:event_id/registrations", server.handleCancelRegistration)

	admin := api.Group("/admin")
	admin.Use(requireRole(ledger.RoleAdmin, ledger.RoleSuperAdmin))

	admin.POST("/events", server.handleCreateEvent)
	admin.POST("/events/:event_id/finalize", server.handleFinalizeEvent)
	admin.POST("/events/:event_id/cancel", server.handleCancelEvent)
	admin.GET("/events/:event_id/history", server.handleRegistrationHistory)
	admin.POST("/deposits", server.handleCreateDeposit)
	admin.POST("/deposits/:deposit_id/refund", server.handleRefundDeposit)
	admin.GET("/users/:user_id/deposits", server.handleUserDeposits)
	admin.GET("/users/:user_id/wallet", server.handleUserWallet)
	admin.POST("/adjustments", server.handleAdjustment)

	super := api.Group("/super")
	super.Use(requireRole(ledger.RoleSuperAdmin))

	super.POST("/entries/:entry_id/correct", server.handleCorrectEntry)

	return router
}

func (server *Server) respondError(ctx *gin.Context, operation string, err error) {
	status, code := mapDomainError(err)
	if status == http.StatusInternalServerError {
		server.logger.Error("request failed",
			zap.String("operation", operation),
			zap.Error(err),
		)
	}
	ctx.JSON(status, errorResponse(code, err.Error()))
}
