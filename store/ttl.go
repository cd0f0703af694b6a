package store

import (
	"maps"
	"strconv"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

// Deleted objects are not removed from the table. They get a "ttl" attribute
// set to the deletion time and are filtered out of every read; DynamoDB's
// TTL reaper removes them eventually.

// IsDeleted reports whether an item carries an expired TTL.
func IsDeleted(item map[string]types.AttributeValue) bool {
	return isDeletedAt(item, time.Now())
}

func isDeletedAt(item map[string]types.AttributeValue, now time.Time) bool {
	ttlNum, ok := item["ttl"].(*types.AttributeValueMemberN)
	if !ok {
		return false
	}
	ttl, err := strconv.ParseInt(ttlNum.Value, 10, 64)
	if err != nil {
		return false
	}
	return ttl <= now.Unix()
}

// TTLFilterExpr returns the filter expression to exclude deleted items.
func TTLFilterExpr() string {
	return "(attribute_not_exists(#ttl) OR #ttl > :now)"
}

// TTLFilterNames returns expression attribute names for TTL filter.
func TTLFilterNames() map[string]string {
	return map[string]string{"#ttl": "ttl"}
}

// TTLFilterValues returns expression attribute values for TTL filter.
func TTLFilterValues(now time.Time) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		":now": &types.AttributeValueMemberN{Value: strconv.FormatInt(now.Unix(), 10)},
	}
}

// softDelete builds the write that marks an item deleted. The identity key
// is dropped so the identity can be reused right away.
func softDelete(table string, item *Item, now time.Time) types.TransactWriteItem {
	return types.TransactWriteItem{
		Update: &types.Update{
			TableName: aws.String(table),
			Key: map[string]types.AttributeValue{
				"object_id": &types.AttributeValueMemberS{Value: item.ID.String()},
			},
			UpdateExpression:    aws.String("SET #ttl = :ttl, updated_at = :updated REMOVE identity_key"),
			ConditionExpression: aws.String("version = :expected AND " + TTLFilterExpr()),
			ExpressionAttributeNames: TTLFilterNames(),
			ExpressionAttributeValues: mergeExprValues(TTLFilterValues(now), map[string]types.AttributeValue{
				":ttl":      &types.AttributeValueMemberN{Value: strconv.FormatInt(now.Unix(), 10)},
				":updated":  &types.AttributeValueMemberS{Value: now.UTC().Format(time.RFC3339)},
				":expected": &types.AttributeValueMemberN{Value: strconv.FormatInt(item.Version, 10)},
			}),
		},
	}
}

// mergeExprValues merges multiple expression attribute value maps.
func mergeExprValues(ms ...map[string]types.AttributeValue) map[string]types.AttributeValue {
	result := make(map[string]types.AttributeValue)
	for _, m := range ms {
		maps.Copy(result, m)
	}
	return result
}
