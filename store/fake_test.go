package store

import (
	"context"
	"strconv"
	"strings"
	"sync"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

// fakeDynamo is an in-memory single-table DynamoDB good enough for the
// requests Store issues.
type fakeDynamo struct {
	mu    sync.Mutex
	items map[string]map[string]types.AttributeValue

	queries     int
	scans       int
	batchGets   int
	txCalls     int
	unprocessed int
}

var _ DynamoDBAPI = (*fakeDynamo)(nil)

func newFakeDynamo() *fakeDynamo {
	return &fakeDynamo{items: make(map[string]map[string]types.AttributeValue)}
}

func strAttr(item map[string]types.AttributeValue, name string) string {
	if v, ok := item[name].(*types.AttributeValueMemberS); ok {
		return v.Value
	}
	return ""
}

func numAttr(item map[string]types.AttributeValue, name string) (int64, bool) {
	v, ok := item[name].(*types.AttributeValueMemberN)
	if !ok {
		return 0, false
	}
	n, err := strconv.ParseInt(v.Value, 10, 64)
	return n, err == nil
}

// live applies the TTL filter the way the filter expression would.
func live(item map[string]types.AttributeValue, values map[string]types.AttributeValue) bool {
	ttl, ok := numAttr(item, "ttl")
	if !ok {
		return true
	}
	now, _ := numAttr(values, ":now")
	return ttl > now
}

func (f *fakeDynamo) Query(_ context.Context, in *dynamodb.QueryInput, _ ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.queries++

	key := strAttr(in.ExpressionAttributeValues, ":key")
	out := &dynamodb.QueryOutput{}
	for _, item := range f.items {
		if strAttr(item, "identity_key") == key && live(item, in.ExpressionAttributeValues) {
			out.Items = append(out.Items, item)
		}
	}
	return out, nil
}

func (f *fakeDynamo) Scan(_ context.Context, in *dynamodb.ScanInput, _ ...func(*dynamodb.Options)) (*dynamodb.ScanOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.scans++

	keys := map[string]bool{}
	for name, v := range in.ExpressionAttributeValues {
		if s, ok := v.(*types.AttributeValueMemberS); ok && strings.HasPrefix(name, ":k") {
			keys[s.Value] = true
		}
	}
	out := &dynamodb.ScanOutput{}
	for _, item := range f.items {
		if keys[strAttr(item, "identity_key")] && live(item, in.ExpressionAttributeValues) {
			out.Items = append(out.Items, item)
		}
	}
	return out, nil
}

func (f *fakeDynamo) BatchGetItem(_ context.Context, in *dynamodb.BatchGetItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.BatchGetItemOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.batchGets++

	out := &dynamodb.BatchGetItemOutput{Responses: map[string][]map[string]types.AttributeValue{}}
	for table, req := range in.RequestItems {
		keys := req.Keys
		// Hand back the second half as unprocessed, a single key whole.
		if f.unprocessed > 0 {
			f.unprocessed--
			half := len(keys) / 2
			out.UnprocessedKeys = map[string]types.KeysAndAttributes{
				table: {Keys: keys[half:]},
			}
			keys = keys[:half]
		}
		for _, k := range keys {
			if item, ok := f.items[strAttr(k, "object_id")]; ok {
				out.Responses[table] = append(out.Responses[table], item)
			}
		}
	}
	return out, nil
}

func (f *fakeDynamo) TransactWriteItems(_ context.Context, in *dynamodb.TransactWriteItemsInput, _ ...func(*dynamodb.Options)) (*dynamodb.TransactWriteItemsOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.txCalls++

	reasons := make([]types.CancellationReason, len(in.TransactItems))
	failed := false
	for i, op := range in.TransactItems {
		reasons[i] = types.CancellationReason{Code: aws.String("None")}
		if !f.conditionHolds(op) {
			reasons[i].Code = aws.String("ConditionalCheckFailed")
			failed = true
		}
	}
	if failed {
		return nil, &types.TransactionCanceledException{
			Message:             aws.String("Transaction cancelled"),
			CancellationReasons: reasons,
		}
	}

	for _, op := range in.TransactItems {
		switch {
		case op.Put != nil:
			f.items[strAttr(op.Put.Item, "object_id")] = op.Put.Item
		case op.Update != nil:
			id := strAttr(op.Update.Key, "object_id")
			item := make(map[string]types.AttributeValue, len(f.items[id]))
			for k, v := range f.items[id] {
				item[k] = v
			}
			item["ttl"] = op.Update.ExpressionAttributeValues[":ttl"]
			item["updated_at"] = op.Update.ExpressionAttributeValues[":updated"]
			delete(item, "identity_key")
			f.items[id] = item
		}
	}
	return &dynamodb.TransactWriteItemsOutput{}, nil
}

func (f *fakeDynamo) conditionHolds(op types.TransactWriteItem) bool {
	var id, cond string
	var values map[string]types.AttributeValue
	switch {
	case op.Put != nil:
		id, cond, values = strAttr(op.Put.Item, "object_id"), aws.ToString(op.Put.ConditionExpression), op.Put.ExpressionAttributeValues
	case op.Update != nil:
		id, cond, values = strAttr(op.Update.Key, "object_id"), aws.ToString(op.Update.ConditionExpression), op.Update.ExpressionAttributeValues
	default:
		return true
	}

	existing, exists := f.items[id]
	if strings.HasPrefix(cond, "attribute_not_exists(object_id)") {
		return !exists
	}
	if strings.HasPrefix(cond, "version = :expected") {
		if !exists || !live(existing, values) {
			return false
		}
		have, _ := numAttr(existing, "version")
		want, _ := numAttr(values, ":expected")
		return have == want
	}
	return true
}
