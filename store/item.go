package store

import (
	"fmt"
	"strconv"

	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/google/uuid"
)

// Item is the persisted form of an object.
type Item struct {
	// Raw is the raw DynamoDB item, set on items read from the table.
	Raw map[string]types.AttributeValue

	ID     uuid.UUID
	Entity string

	// IdentityKey is the hashed identity tuple; empty for objects without
	// a complete identity.
	IdentityKey string

	// Version is the optimistic lock version.
	Version int64

	// CreatedAt is the ISO 8601 creation timestamp.
	CreatedAt string

	// UpdatedAt is the ISO 8601 last update timestamp.
	UpdatedAt string

	// Attributes holds attribute values by name.
	Attributes map[string]any

	// Refs holds relationship targets by relationship name. To-one
	// relationships have at most one element.
	Refs map[string][]uuid.UUID
}

// marshalItem converts an Item to its DynamoDB representation.
func marshalItem(item *Item) (map[string]types.AttributeValue, error) {
	attrs, err := attributevalue.MarshalMap(item.Attributes)
	if err != nil {
		return nil, fmt.Errorf("marshal attributes of %s: %w", item.ID, err)
	}
	if attrs == nil {
		attrs = map[string]types.AttributeValue{}
	}

	refs := make(map[string]types.AttributeValue, len(item.Refs))
	for name, ids := range item.Refs {
		list := make([]string, len(ids))
		for i, id := range ids {
			list[i] = id.String()
		}
		av, err := attributevalue.MarshalList(list)
		if err != nil {
			return nil, fmt.Errorf("marshal relationship %s of %s: %w", name, item.ID, err)
		}
		refs[name] = &types.AttributeValueMemberL{Value: av}
	}

	raw := map[string]types.AttributeValue{
		"object_id":  &types.AttributeValueMemberS{Value: item.ID.String()},
		"entity":     &types.AttributeValueMemberS{Value: item.Entity},
		"version":    &types.AttributeValueMemberN{Value: strconv.FormatInt(item.Version, 10)},
		"created_at": &types.AttributeValueMemberS{Value: item.CreatedAt},
		"updated_at": &types.AttributeValueMemberS{Value: item.UpdatedAt},
		"attrs":      &types.AttributeValueMemberM{Value: attrs},
		"refs":       &types.AttributeValueMemberM{Value: refs},
	}
	// GSI key attributes cannot be empty strings.
	if item.IdentityKey != "" {
		raw["identity_key"] = &types.AttributeValueMemberS{Value: item.IdentityKey}
	}
	return raw, nil
}

// unmarshalItem converts a DynamoDB item to an Item struct.
func unmarshalItem(raw map[string]types.AttributeValue) (*Item, error) {
	item := &Item{Raw: raw, Refs: map[string][]uuid.UUID{}}

	v, ok := raw["object_id"].(*types.AttributeValueMemberS)
	if !ok {
		return nil, fmt.Errorf("item without object_id")
	}
	id, err := uuid.Parse(v.Value)
	if err != nil {
		return nil, fmt.Errorf("item %q: %w", v.Value, err)
	}
	item.ID = id

	if v, ok := raw["entity"].(*types.AttributeValueMemberS); ok {
		item.Entity = v.Value
	}
	if v, ok := raw["identity_key"].(*types.AttributeValueMemberS); ok {
		item.IdentityKey = v.Value
	}
	if v, ok := raw["version"].(*types.AttributeValueMemberN); ok {
		item.Version, _ = strconv.ParseInt(v.Value, 10, 64)
	}
	if v, ok := raw["created_at"].(*types.AttributeValueMemberS); ok {
		item.CreatedAt = v.Value
	}
	if v, ok := raw["updated_at"].(*types.AttributeValueMemberS); ok {
		item.UpdatedAt = v.Value
	}
	if v, ok := raw["attrs"].(*types.AttributeValueMemberM); ok {
		if err := attributevalue.UnmarshalMap(v.Value, &item.Attributes); err != nil {
			return nil, fmt.Errorf("item %s attributes: %w", id, err)
		}
	}
	if v, ok := raw["refs"].(*types.AttributeValueMemberM); ok {
		for name, av := range v.Value {
			var list []string
			if err := attributevalue.Unmarshal(av, &list); err != nil {
				return nil, fmt.Errorf("item %s relationship %s: %w", id, name, err)
			}
			ids := make([]uuid.UUID, 0, len(list))
			for _, s := range list {
				ref, err := uuid.Parse(s)
				if err != nil {
					return nil, fmt.Errorf("item %s relationship %s: %w", id, name, err)
				}
				ids = append(ids, ref)
			}
			item.Refs[name] = ids
		}
	}
	return item, nil
}
