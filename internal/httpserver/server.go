package httpserver

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/kiranmghub/pos-stack-sub004/pkg/inventory"
	"go.uber.org/zap"
)

// Engine is the slice of the inventory service the HTTP layer calls.
type Engine interface {
	Availability(ctx context.Context, storeID inventory.StoreID, variantID inventory.VariantID) (inventory.Availability, error)
	Postings(ctx context.Context, storeID inventory.StoreID, variantID inventory.VariantID, limit int) ([]inventory.LedgerPosting, error)

	Reserve(ctx context.Context, input inventory.ReserveInput) (inventory.Reservation, error)
	CommitReservation(ctx context.Context, reservationID string, actor string) (inventory.Reservation, error)
	ReleaseReservation(ctx context.Context, reservationID string, actor string) (inventory.Reservation, error)
	GetReservation(ctx context.Context, reservationID string) (inventory.Reservation, error)
	ListReservations(ctx context.Context, filter inventory.ReservationFilter) ([]inventory.Reservation, error)

	CreateAdjustment(ctx context.Context, input inventory.AdjustmentInput) (inventory.Adjustment, error)
	Receive(ctx context.Context, input inventory.ReceiveInput) (inventory.LedgerPosting, error)
	AddInTransit(ctx context.Context, storeID inventory.StoreID, variantID inventory.VariantID, quantity inventory.Quantity, refID string, actor string) (inventory.LedgerPosting, error)
	ListReasons(ctx context.Context) ([]inventory.AdjustmentReason, error)

	CreateCountSession(ctx context.Context, input inventory.CreateCountInput) (inventory.CountSession, error)
	GetCountSession(ctx context.Context, sessionID string) (inventory.CountSession, error)
	ListCountSessions(ctx context.Context, filter inventory.CountSessionFilter) ([]inventory.CountSession, error)
	DeleteCountSession(ctx context.Context, sessionID string) error
	Scan(ctx context.Context, input inventory.ScanInput) (inventory.CountLine, error)
	SetCountedQty(ctx context.Context, input inventory.SetQtyInput) (inventory.CountLine, error)
	Variance(ctx context.Context, sessionID string) (inventory.VarianceReport, error)
	FinalizeCountSession(ctx context.Context, sessionID string, actor string) (inventory.FinalizeSummary, error)
}

// Run boots the HTTP API and blocks until the context is cancelled.
func Run(ctx context.Context, cfg Config, engine Engine, logger *zap.Logger) error {
	if err := cfg.Validate(); err != nil {
		return err
	}

	handler := &httpHandler{
		logger: logger,
		engine: engine,
		cfg:    cfg,
	}

	router := setupRouter(cfg, handler)

	server := &http.Server{
		Addr:    cfg.ListenAddr,
		Handler: router,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("inventory api listening", zap.String("addr", cfg.ListenAddr))
		errCh <- server.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()
		if shutdownErr := server.Shutdown(shutdownCtx); shutdownErr != nil {
			logger.Warn("server shutdown error", zap.Error(shutdownErr))
		}
		return nil
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}

func setupRouter(cfg Config, handler *httpHandler) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(cors.New(cors.Config{
		AllowOrigins:     cfg.AllowedOrigins,
		AllowMethods:     []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Content-Type", "Origin", "Accept", "X-Actor"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}))

	router.GET("/healthz", func(ctx *gin.Context) {
		ctx.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	api := router.Group("/api/v1")

	api.GET("/availability", handler.handleAvailability)
	api.GET("/postings", handler.handlePostings)

	api.POST("/channels/:channel/reserve", handler.handleReserve)
	api.GET("/reservations", handler.handleListReservations)
	api.GET("/reservations/:id", handler.handleGetReservation)
	api.POST("/reservations/:id/commit", handler.handleCommitReservation)
	api.POST("/reservations/:id/release", handler.handleReleaseReservation)

	api.GET("/reasons", handler.handleListReasons)
	api.POST("/adjustments", handler.handleCreateAdjustment)
	api.POST("/receipts", handler.handleReceive)
	api.POST("/transfers/inbound", handler.handleAddInTransit)

	api.POST("/counts", handler.handleCreateCount)
	api.GET("/counts", handler.handleListCounts)
	api.GET("/counts/:id", handler.handleGetCount)
	api.DELETE("/counts/:id", handler.handleDeleteCount)
	api.POST("/counts/:id/scan", handler.handleScan)
	api.POST("/counts/:id/set_qty", handler.handleSetQty)
	api.GET("/counts/:id/variance", handler.handleVariance)
	api.POST("/counts/:id/finalize", handler.handleFinalizeCount)

	return router
}
