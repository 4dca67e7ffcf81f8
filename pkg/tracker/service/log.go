package service

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/chainsafe/bridge-tracker/pkg/tracker"
	"github.com/chainsafe/bridge-tracker/pkg/transfer"
)

const serviceName = "TrackerService"

// logService wraps Service with logging of the mutating calls
type logService struct {
	svc    Service
	logger *zap.Logger
}

// NewLog creates a logging decorator for the tracker Service.
// Read-only calls are passed through; mutating calls log duration and errors.
func NewLog(svc Service, logger *zap.Logger) Service {
	return &logService{
		svc:    svc,
		logger: logger,
	}
}

func (ls *logService) done(method string, start time.Time, err error, fields ...zap.Field) {
	fields = append(fields,
		zap.String("service", serviceName),
		zap.String("method", method),
		zap.Duration("duration", time.Since(start)))

	if err != nil {
		ls.logger.Error(method+" failed", append(fields, zap.Error(err))...)
		return
	}
	ls.logger.Info(method+" completed", fields...)
}

func (ls *logService) ListTransfers(ctx context.Context) ([]transfer.Transfer, error) {
	return ls.svc.ListTransfers(ctx)
}

func (ls *logService) GetTransfer(ctx context.Context, id string) (*transfer.Transfer, error) {
	return ls.svc.GetTransfer(ctx, id)
}

func (ls *logService) AddPending(ctx context.Context, req *tracker.AddTransferRequest) (t *transfer.Transfer, err error) {
	start := time.Now()
	defer func() {
		ls.done("AddPending", start, err,
			zap.String("id", req.ID),
			zap.String("direction", string(req.Direction)),
			zap.String("asset_kind", string(req.AssetKind)))
	}()
	return ls.svc.AddPending(ctx, req)
}

func (ls *logService) ClearPending(ctx context.Context) (err error) {
	start := time.Now()
	defer func() { ls.done("ClearPending", start, err) }()
	return ls.svc.ClearPending(ctx)
}

func (ls *logService) Backfill(ctx context.Context, req *tracker.BackfillRequest) (resp *tracker.BackfillResponse, err error) {
	start := time.Now()
	defer func() {
		var fields []zap.Field
		if resp != nil {
			fields = append(fields,
				zap.Int("fetched", resp.Fetched),
				zap.Int("inserted", resp.Inserted),
				zap.Int("failed_pages", len(resp.FailedPages)))
		}
		ls.done("Backfill", start, err, fields...)
	}()
	return ls.svc.Backfill(ctx, req)
}

func (ls *logService) Refresh(ctx context.Context) (err error) {
	start := time.Now()
	defer func() { ls.done("Refresh", start, err) }()
	return ls.svc.Refresh(ctx)
}

func (ls *logService) GetSeen(ctx context.Context) (*tracker.SeenResponse, error) {
	return ls.svc.GetSeen(ctx)
}

func (ls *logService) MarkSeen(ctx context.Context, req *tracker.MarkSeenRequest) (err error) {
	start := time.Now()
	defer func() { ls.done("MarkSeen", start, err, zap.Int("count", len(req.IDs))) }()
	return ls.svc.MarkSeen(ctx, req)
}

func (ls *logService) NewTransfers(ctx context.Context) ([]transfer.Transfer, error) {
	return ls.svc.NewTransfers(ctx)
}
