package idempotency

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"log/slog"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// markerTTL bounds how long a batch marker blocks duplicates. It self-expires
// so a crashed turn never blocks retries permanently.
const markerTTL = 300 * time.Second

// Client is the minimal redis surface the guard needs.
type Client interface {
	SetNX(ctx context.Context, key string, value any, expiration time.Duration) *redis.BoolCmd
}

// Guard prevents two concurrent invocations from processing the same message
// batch. A nil client degrades to "always proceed".
type Guard struct {
	client Client
	logger *slog.Logger
}

func NewGuard(log *slog.Logger, client Client) *Guard {
	if log == nil {
		log = slog.Default()
	}
	return &Guard{
		client: client,
		logger: log.With(slog.String("service", "idempotency")),
	}
}

// BeginProcessing registers the batch digest with set-if-absent semantics.
// It reports alreadyInFlight=true when another invocation holds the marker;
// the caller must then return without side effects. Cache failures are logged
// and treated as "proceed" so a missing cache never blocks conversations.
func (g *Guard) BeginProcessing(ctx context.Context, conversationID string, summaries []string) bool {
	if g.client == nil {
		g.logger.Warn("idempotency cache not configured, proceeding without guard")
		return false
	}
	key := "agent:batch:" + Digest(conversationID, summaries)
	ok, err := g.client.SetNX(ctx, key, 1, markerTTL).Result()
	if err != nil {
		g.logger.Warn("idempotency marker set failed, proceeding",
			slog.String("conversation_id", conversationID),
			slog.Any("error", err),
		)
		return false
	}
	if !ok {
		g.logger.Info("duplicate batch detected",
			slog.String("conversation_id", conversationID),
			slog.String("key", key),
		)
	}
	return !ok
}

// Digest computes a deterministic, order-preserving digest of a batch.
func Digest(conversationID string, summaries []string) string {
	h := sha256.New()
	h.Write([]byte(conversationID))
	for _, s := range summaries {
		h.Write([]byte{0})
		h.Write([]byte(strings.TrimSpace(s)))
	}
	return hex.EncodeToString(h.Sum(nil))
}
