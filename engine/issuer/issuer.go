package issuer

import (
	"context"

	"go.uber.org/zap"
)

// TokenIssuer is the external value-transfer boundary. The engine calls it
// after its own idempotency check passes; a failure is surfaced to the
// caller without retries here, because a retry with the same source event
// id is always safe.
type TokenIssuer interface {
	Mint(ctx context.Context, player string, amount int64, kind string) error
	MintAchievement(ctx context.Context, player string, tier int, metadataRef string) error
}

// LogIssuer is a TokenIssuer that only logs. It stands in for the real
// transfer system in development and tests.
type LogIssuer struct {
	logger *zap.Logger
}

// NewLogIssuer creates a LogIssuer.
func NewLogIssuer(logger *zap.Logger) *LogIssuer {
	return &LogIssuer{logger: logger}
}

func (li *LogIssuer) Mint(_ context.Context, player string, amount int64, kind string) error {
	li.logger.Info("mint",
		zap.String("player", player),
		zap.Int64("amount", amount),
		zap.String("kind", kind))
	return nil
}

func (li *LogIssuer) MintAchievement(_ context.Context, player string, tier int, metadataRef string) error {
	li.logger.Info("mint achievement",
		zap.String("player", player),
		zap.Int("tier", tier),
		zap.String("metadata_ref", metadataRef))
	return nil
}
