package worker

// dlq.go: jobs that exhaust their retries land in dlq:<queue> for manual
// inspection. The scheduler exports each list's length as a gauge.

import (
	"context"
	"encoding/json"
	"time"

	"concentra/internal/infra"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

const DLQPrefix = "dlq:"

// DLQEntry wraps a failed job with metadata for debugging.
type DLQEntry struct {
	OriginalQueue string          `json:"original_queue"`
	JobType       string          `json:"job_type"`
	Payload       json.RawMessage `json:"payload"`
	Reason        string          `json:"reason"`
	FailedAt      string          `json:"failed_at"` // RFC 3339
	Attempts      int             `json:"attempts"`
}

// SendToDLQ pushes a failed job to its queue's dead letter list.
func SendToDLQ(ctx context.Context, rdb *redis.Client, queue string, jobType string, payload json.RawMessage, reason string, attempts int) {
	entry := DLQEntry{
		OriginalQueue: queue,
		JobType:       jobType,
		Payload:       payload,
		Reason:        reason,
		FailedAt:      time.Now().UTC().Format(time.RFC3339),
		Attempts:      attempts,
	}

	data, err := json.Marshal(entry)
	if err != nil {
		log.Error().Err(err).Str("queue", queue).Msg("dlq: failed to marshal entry")
		return
	}

	dlqKey := DLQPrefix + queue
	if err := rdb.LPush(context.WithoutCancel(ctx), dlqKey, data).Err(); err != nil {
		log.Error().Err(err).Str("dlq_key", dlqKey).Msg("dlq: failed to push to DLQ")
		return
	}

	log.Warn().
		Str("queue", queue).
		Str("job_type", jobType).
		Str("reason", reason).
		Int("attempts", attempts).
		Msg("dlq: job moved to dead letter queue")
}

// DLQLength returns the number of entries in a queue's DLQ.
func DLQLength(ctx context.Context, rdb *redis.Client, queue string) (int64, error) {
	return rdb.LLen(ctx, DLQPrefix+queue).Result()
}

// ActualizarMetricasDLQ refreshes the DLQ length gauge of every queue.
func ActualizarMetricasDLQ(ctx context.Context, rdb *redis.Client) {
	for _, q := range Queues {
		n, err := DLQLength(ctx, rdb, q)
		if err != nil {
			log.Warn().Err(err).Str("queue", q).Msg("dlq: length query failed")
			continue
		}
		infra.DLQLongitud.WithLabelValues(q).Set(float64(n))
	}
}
