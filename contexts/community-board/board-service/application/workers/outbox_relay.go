package workers

import (
	"context"
	"encoding/json"
	"log/slog"
	"slices"
	"time"

	application "rudefriend/contexts/community-board/board-service/application"
	"rudefriend/contexts/community-board/board-service/ports"
)

// OutboxRelay publishes persisted board events to the event bus.
type OutboxRelay struct {
	Outbox    ports.OutboxRepository
	Publisher ports.EventPublisher
	Clock     ports.Clock
	BatchSize int
	Logger    *slog.Logger
}

// RelayReport summarizes one relay cycle: how many post and vote events went
// out and which boards they belonged to.
type RelayReport struct {
	Published int
	ByType    map[string]int
	Boards    []string
}

func (rep *RelayReport) add(eventType string, boardID string) {
	rep.Published++
	if rep.ByType == nil {
		rep.ByType = make(map[string]int)
	}
	rep.ByType[eventType]++
	if boardID != "" && !slices.Contains(rep.Boards, boardID) {
		rep.Boards = append(rep.Boards, boardID)
	}
}

// RunOnce publishes a bounded batch of pending rows in creation order and
// marks each one published only after the publish call succeeded. The first
// failure ends the cycle; remaining rows are retried on the next run.
func (r OutboxRelay) RunOnce(ctx context.Context) (RelayReport, error) {
	logger := application.ResolveLogger(r.Logger)
	limit := r.BatchSize
	if limit <= 0 {
		limit = 100
	}

	pending, err := r.Outbox.ListPendingOutbox(ctx, limit)
	if err != nil {
		logger.Error("board outbox list failed",
			"event", "board_outbox_list_failed",
			"module", "community-board/board-service",
			"layer", "worker",
			"error", err.Error(),
		)
		return RelayReport{}, err
	}
	if len(pending) == 0 {
		logger.Debug("board outbox relay found no pending rows",
			"event", "board_outbox_relay_noop",
			"module", "community-board/board-service",
			"layer", "worker",
			"batch_size", limit,
		)
		return RelayReport{}, nil
	}

	var report RelayReport
	for _, row := range pending {
		var event ports.EventEnvelope
		if err := json.Unmarshal(row.Payload, &event); err != nil {
			logger.Error("board outbox decode failed",
				"event", "board_outbox_decode_failed",
				"module", "community-board/board-service",
				"layer", "worker",
				"outbox_id", row.OutboxID,
				"error", err.Error(),
			)
			return report, err
		}
		topic := event.EventType
		if topic == "" {
			topic = row.EventType
		}
		if err := r.Publisher.Publish(ctx, topic, event); err != nil {
			logger.Error("board outbox publish failed",
				"event", "board_outbox_publish_failed",
				"module", "community-board/board-service",
				"layer", "worker",
				"outbox_id", row.OutboxID,
				"event_id", event.EventID,
				"event_type", event.EventType,
				"error", err.Error(),
			)
			return report, err
		}
		if err := r.Outbox.MarkOutboxPublished(ctx, row.OutboxID, r.now()); err != nil {
			logger.Error("board outbox mark published failed",
				"event", "board_outbox_mark_published_failed",
				"module", "community-board/board-service",
				"layer", "worker",
				"outbox_id", row.OutboxID,
				"error", err.Error(),
			)
			return report, err
		}
		report.add(topic, row.PartitionKey)
	}

	logger.Info("board outbox relay cycle completed",
		"event", "board_outbox_relay_completed",
		"module", "community-board/board-service",
		"layer", "worker",
		"published_count", report.Published,
		"event_types", report.ByType,
		"board_count", len(report.Boards),
	)
	return report, nil
}

func (r OutboxRelay) now() time.Time {
	if r.Clock == nil {
		return time.Now().UTC()
	}
	return r.Clock.Now().UTC()
}
