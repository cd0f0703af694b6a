// Package stream applies DynamoDB stream records to an object graph.
package stream

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/aws/aws-lambda-go/events"

	"github.com/jacentio/lattice/mapper"
)

// Session is the unit of work a batch of records is applied to.
// *store.Context implements it.
type Session interface {
	mapper.Session
	Save(ctx context.Context) error
}

// SessionFactory opens a fresh session for one event.
type SessionFactory func(ctx context.Context) (Session, error)

// Config maps source tables to entities.
type Config struct {
	// Routes maps a source table name to the entity its items import into.
	Routes map[string]string

	// TTLAttribute names the attribute a source table sets to soft delete an
	// item. A MODIFY that sets it is handled as a removal.
	TTLAttribute string
}

// DefaultConfig returns the default handler configuration.
func DefaultConfig() Config {
	return Config{TTLAttribute: "ttl"}
}

// Handler merges the items of DynamoDB stream records into a session.
type Handler struct {
	mapper *mapper.Mapper
	open   SessionFactory
	config Config
	logger *slog.Logger
}

// NewHandler creates a new stream handler.
func NewHandler(m *mapper.Mapper, open SessionFactory, config Config, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	if config.TTLAttribute == "" {
		config.TTLAttribute = DefaultConfig().TTLAttribute
	}
	return &Handler{
		mapper: m,
		open:   open,
		config: config,
		logger: logger,
	}
}

// HandleChanges applies every record of the event to one session and saves
// it. INSERT and MODIFY records merge the new image into the routed entity;
// REMOVE records delete the object with the identity of the old image.
// This function is designed to be used as an AWS Lambda handler: any error
// leaves nothing saved so the batch can be retried.
func (h *Handler) HandleChanges(ctx context.Context, event events.DynamoDBEvent) error {
	if len(event.Records) == 0 {
		return nil
	}

	s, err := h.open(ctx)
	if err != nil {
		return fmt.Errorf("open session: %w", err)
	}

	for i := range event.Records {
		record := &event.Records[i]
		if err := h.processRecord(ctx, s, record); err != nil {
			h.logger.Error("failed to process record",
				"eventID", record.EventID,
				"eventName", record.EventName,
				"error", err,
			)
			return err
		}
	}

	if err := s.Save(ctx); err != nil {
		return fmt.Errorf("save: %w", err)
	}
	h.logger.Info("stream batch applied", "records", len(event.Records))
	return nil
}

// processRecord applies a single DynamoDB stream record.
func (h *Handler) processRecord(ctx context.Context, s Session, record *events.DynamoDBEventRecord) error {
	table := tableName(record.EventSourceArn)
	entity, ok := h.config.Routes[table]
	if !ok {
		h.logger.Debug("skipping record from unrouted table", "table", table, "eventID", record.EventID)
		return nil
	}

	switch record.EventName {
	case string(events.DynamoDBOperationTypeInsert), string(events.DynamoDBOperationTypeModify):
		if h.softDeleted(record) {
			return h.remove(ctx, s, entity, record)
		}
		if len(record.Change.NewImage) == 0 {
			h.logger.Warn("skipping record without a new image", "table", table, "eventID", record.EventID,
				"viewType", record.Change.StreamViewType)
			return nil
		}
		obj, err := ConvertImage(record.Change.NewImage)
		if err != nil {
			return fmt.Errorf("convert new image: %w", err)
		}
		if _, ok, err := h.mapper.IdentityOf(s, entity, obj); err != nil {
			return fmt.Errorf("import %s: %w", entity, err)
		} else if !ok {
			return fmt.Errorf("import %s: %w: event %s", entity, mapper.ErrIdentityNotFound, record.EventID)
		}
		if _, err := h.mapper.ImportObject(ctx, s, entity, obj, mapper.Merge); err != nil {
			return fmt.Errorf("import %s: %w", entity, err)
		}
		return nil

	case string(events.DynamoDBOperationTypeRemove):
		return h.remove(ctx, s, entity, record)
	}
	return nil
}

// remove deletes the objects matching the identity of the removed item.
func (h *Handler) remove(ctx context.Context, s Session, entity string, record *events.DynamoDBEventRecord) error {
	image := record.Change.OldImage
	if len(image) == 0 {
		image = record.Change.Keys
	}
	obj, err := ConvertImage(image)
	if err != nil {
		return fmt.Errorf("convert old image: %w", err)
	}

	found, err := h.mapper.Find(ctx, s, entity, obj.Value())
	if err != nil {
		return fmt.Errorf("find %s: %w", entity, err)
	}
	for _, o := range found {
		s.Delete(o)
	}

	h.logger.Info("removed objects",
		"entity", entity,
		"eventID", record.EventID,
		"count", len(found),
	)
	return nil
}

// softDeleted reports whether a MODIFY newly sets the TTL attribute.
func (h *Handler) softDeleted(record *events.DynamoDBEventRecord) bool {
	if record.EventName != string(events.DynamoDBOperationTypeModify) {
		return false
	}
	oldTTL := getNumberAttr(record.Change.OldImage, h.config.TTLAttribute)
	newTTL := getNumberAttr(record.Change.NewImage, h.config.TTLAttribute)
	return oldTTL == 0 && newTTL != 0
}

// tableName extracts the table name from a stream ARN of the form
// arn:aws:dynamodb:region:account:table/NAME/stream/LABEL.
func tableName(arn string) string {
	_, rest, ok := strings.Cut(arn, ":table/")
	if !ok {
		return ""
	}
	name, _, _ := strings.Cut(rest, "/")
	return name
}
