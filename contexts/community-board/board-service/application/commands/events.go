package commands

import (
	"context"
	"encoding/json"
	"time"

	"rudefriend/contexts/community-board/board-service/ports"
	eventsv1 "rudefriend/contracts/gen/events/v1"
)

func newBoardEnvelope(
	eventID string,
	eventType string,
	postID string,
	occurredAt time.Time,
	data any,
) (ports.EventEnvelope, error) {
	payload, err := json.Marshal(data)
	if err != nil {
		return ports.EventEnvelope{}, err
	}
	return ports.EventEnvelope{
		EventID:          eventID,
		EventType:        eventType,
		OccurredAt:       occurredAt.UTC(),
		SourceService:    "board-service",
		TraceID:          eventID,
		SchemaVersion:    1,
		PartitionKeyPath: eventsv1.PartitionKeyPathBoardID,
		PartitionKey:     postID,
		Data:             payload,
	}, nil
}

func appendEvent(
	ctx context.Context,
	outbox ports.OutboxWriter,
	idGen ports.IDGenerator,
	eventType string,
	postID string,
	occurredAt time.Time,
	data any,
) error {
	if outbox == nil {
		return nil
	}
	eventID, err := idGen.NewID(ctx)
	if err != nil {
		return err
	}
	envelope, err := newBoardEnvelope(eventID, eventType, postID, occurredAt, data)
	if err != nil {
		return err
	}
	return outbox.AppendOutbox(ctx, envelope)
}
