package mqhandler

import (
	"context"
	"encoding/json"
	"errors"

	mqcontracts "escrowflow/contracts/mq"
	"escrowflow/internal/service/workflow"
	"escrowflow/pkg/logger"
	"escrowflow/pkg/mq"
	"escrowflow/pkg/util"

	"go.uber.org/zap"
)

const txSettledHandlerName = "tx_settled"

// 同一 tx_hash 最多处理次数，超过后转入 DLQ
const maxSettleRetries = 5

type Settler interface {
	Settle(ctx context.Context, p mqcontracts.TxSettledPayload) (*workflow.Outcome, error)
}

type Deduper interface {
	AcquireOnce(ctx context.Context, handler, key string) bool
	Release(ctx context.Context, handler, key string)
}

type RetryCounter interface {
	IncrementAndGet(ctx context.Context, key string) (int64, error)
	Reset(ctx context.Context, key string) error
}

type TxSettledHandler struct {
	settler Settler
	deduper Deduper
	retries RetryCounter
	logger  *zap.Logger
}

func NewTxSettledHandler(settler Settler, deduper Deduper, retries RetryCounter, logger *zap.Logger) *TxSettledHandler {
	return &TxSettledHandler{
		settler: settler,
		deduper: deduper,
		retries: retries,
		logger:  logger,
	}
}

// Handle -- 交易后端的异步结算结果，按 tx_hash 去重
func (h *TxSettledHandler) Handle(ctx context.Context, raw json.RawMessage) error {
	log := logger.WithTrace(ctx, h.logger)

	var p mqcontracts.TxSettledPayload
	if err := json.Unmarshal(raw, &p); err != nil {
		log.Error("Failed to unmarshal tx settled payload", zap.Error(err))
		return mq.Permanent(err)
	}
	if p.TxHash == "" {
		log.Error("Tx settled payload without tx_hash", zap.String("session_id", p.SessionID))
		return mq.Permanent(errors.New("missing tx_hash"))
	}

	log = log.With(
		zap.String("tx_hash", p.TxHash),
		zap.String("operation", p.Operation),
		zap.Int("escrow_id", p.EscrowID),
	)

	if !h.deduper.AcquireOnce(ctx, txSettledHandlerName, p.TxHash) {
		return nil
	}

	log.Info("Applying transaction settlement", zap.Bool("success", p.Success))

	_, err := h.settler.Settle(ctx, p)
	retryKey := util.FormatRetryKey(txSettledHandlerName, p.TxHash)
	if err == nil {
		if resetErr := h.retries.Reset(ctx, retryKey); resetErr != nil {
			log.Warn("Failed to reset retry counter", zap.Error(resetErr))
		}
		log.Info("Transaction settlement applied")
		return nil
	}

	retryable, errType := util.IsRetryableError(err)
	count, countErr := h.retries.IncrementAndGet(ctx, retryKey)
	if countErr != nil {
		log.Warn("Failed to increment retry counter", zap.Error(countErr))
	}

	if !util.ShouldRetry(count, maxSettleRetries, retryable) {
		log.Error("Transaction settlement failed permanently",
			zap.String("error_type", errType),
			zap.Int64("retry_count", count),
			zap.Error(err),
		)
		return mq.Permanent(err)
	}

	// 释放去重锁，MQ 重投后可以再次处理
	h.deduper.Release(ctx, txSettledHandlerName, p.TxHash)
	log.Warn("Transaction settlement failed, will retry",
		zap.String("error_type", errType),
		zap.Int64("retry_count", count),
		zap.Error(err),
	)
	return err
}
