package inventory

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// ServiceOption configures a Service instance.
type ServiceOption func(*Service)

// OperationLogger records domain-level events emitted by Service operations.
type OperationLogger interface {
	LogOperation(ctx context.Context, entry OperationLog)
}

// OperationLog describes a state-changing inventory operation.
type OperationLog struct {
	Operation     string
	StoreID       StoreID
	VariantID     VariantID
	ReservationID string
	SessionID     string
	AdjustmentID  string
	Quantity      int64
	Status        string
	Error         error
}

// WithOperationLogger wires a logger that receives callbacks for every operation.
func WithOperationLogger(logger OperationLogger) ServiceOption {
	return func(service *Service) {
		service.logger = logger
	}
}

// WithVariantResolver wires the catalog resolver used by count scanning.
func WithVariantResolver(resolver VariantResolver) ServiceOption {
	return func(service *Service) {
		service.resolver = resolver
	}
}

// WithChannelPolicy overrides the per-channel backorder policy.
func WithChannelPolicy(policy ChannelPolicy) ServiceOption {
	return func(service *Service) {
		service.policy = policy
	}
}

// WithLockWait bounds how long a mutation waits for a stock line lock
// before failing with ErrBusy.
func WithLockWait(wait time.Duration) ServiceOption {
	return func(service *Service) {
		if wait > 0 {
			service.lockWait = wait
		}
	}
}

// ZapOperationLogger adapts a zap logger to the OperationLogger contract.
type ZapOperationLogger struct {
	logger *zap.Logger
}

// NewZapOperationLogger wraps a zap logger. A nil logger yields a no-op.
func NewZapOperationLogger(logger *zap.Logger) *ZapOperationLogger {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ZapOperationLogger{logger: logger}
}

// LogOperation emits one structured record per domain operation.
func (operationLogger *ZapOperationLogger) LogOperation(_ context.Context, entry OperationLog) {
	fields := []zap.Field{
		zap.String("operation", entry.Operation),
		zap.String("status", entry.Status),
	}
	if entry.StoreID != 0 {
		fields = append(fields, zap.Int64("store_id", entry.StoreID.Int64()))
	}
	if entry.VariantID != 0 {
		fields = append(fields, zap.Int64("variant_id", entry.VariantID.Int64()))
	}
	if entry.ReservationID != "" {
		fields = append(fields, zap.String("reservation_id", entry.ReservationID))
	}
	if entry.SessionID != "" {
		fields = append(fields, zap.String("session_id", entry.SessionID))
	}
	if entry.AdjustmentID != "" {
		fields = append(fields, zap.String("adjustment_id", entry.AdjustmentID))
	}
	if entry.Quantity != 0 {
		fields = append(fields, zap.Int64("quantity", entry.Quantity))
	}
	if entry.Error != nil {
		fields = append(fields, zap.Error(entry.Error))
		operationLogger.logger.Warn("inventory operation failed", fields...)
		return
	}
	operationLogger.logger.Info("inventory operation", fields...)
}
