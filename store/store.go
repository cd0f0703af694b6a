package store

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/aws/retry"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/google/uuid"
)

// DynamoDB request limits.
const (
	batchGetLimit = 100
	scanKeysLimit = 100
)

// DynamoDBAPI is the subset of the DynamoDB client used by Store.
type DynamoDBAPI interface {
	Query(ctx context.Context, params *dynamodb.QueryInput, optFns ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error)
	Scan(ctx context.Context, params *dynamodb.ScanInput, optFns ...func(*dynamodb.Options)) (*dynamodb.ScanOutput, error)
	BatchGetItem(ctx context.Context, params *dynamodb.BatchGetItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.BatchGetItemOutput, error)
	TransactWriteItems(ctx context.Context, params *dynamodb.TransactWriteItemsInput, optFns ...func(*dynamodb.Options)) (*dynamodb.TransactWriteItemsOutput, error)
}

// maxLoadBackoff caps the wait between BatchGetItem retries.
const maxLoadBackoff = 5 * time.Second

// Store is a DynamoDB Backend. Every object is one item of a single table.
type Store struct {
	client  DynamoDBAPI
	config  Config
	now     func() time.Time
	backoff retry.BackoffDelayer
}

var _ Backend = (*Store)(nil)

// New creates a new Store instance.
func New(client DynamoDBAPI, config Config) *Store {
	config.validate()
	return &Store{
		client:  client,
		config:  config,
		now:     time.Now,
		backoff: retry.NewExponentialJitterBackoff(maxLoadBackoff),
	}
}

// Config returns the validated configuration.
func (s *Store) Config() Config { return s.config }

// Fetch returns the live items whose identity_key is one of keys.
func (s *Store) Fetch(ctx context.Context, keys []string) ([]*Item, error) {
	if len(keys) == 0 {
		return nil, nil
	}
	if s.config.IdentityIndex == "" {
		return s.scanIdentities(ctx, keys)
	}

	// Fan out one query per key, bounded by FetchConcurrency.
	var mu sync.Mutex
	var items []*Item
	var wg sync.WaitGroup
	errs := make(chan error, len(keys))
	sem := make(chan struct{}, s.config.FetchConcurrency)

	for _, key := range keys {
		wg.Add(1)
		go func(key string) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()

			found, err := s.queryIdentity(ctx, key)
			if err != nil {
				errs <- fmt.Errorf("identity %s: %w", key, err)
				return
			}
			mu.Lock()
			items = append(items, found...)
			mu.Unlock()
		}(key)
	}

	go func() {
		wg.Wait()
		close(errs)
	}()

	for err := range errs {
		if err != nil {
			return nil, err
		}
	}
	return items, nil
}

func (s *Store) queryIdentity(ctx context.Context, key string) ([]*Item, error) {
	paginator := dynamodb.NewQueryPaginator(s.client, &dynamodb.QueryInput{
		TableName:                aws.String(s.config.ObjectTable),
		IndexName:                aws.String(s.config.IdentityIndex),
		KeyConditionExpression:   aws.String("identity_key = :key"),
		FilterExpression:         aws.String(TTLFilterExpr()),
		ExpressionAttributeNames: TTLFilterNames(),
		ExpressionAttributeValues: mergeExprValues(TTLFilterValues(s.now()), map[string]types.AttributeValue{
			":key": &types.AttributeValueMemberS{Value: key},
		}),
	})

	var items []*Item
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, err
		}
		for _, raw := range page.Items {
			item, err := unmarshalItem(raw)
			if err != nil {
				return nil, err
			}
			items = append(items, item)
		}
	}
	return items, nil
}

// scanIdentities is the fallback for tables without an identity index.
func (s *Store) scanIdentities(ctx context.Context, keys []string) ([]*Item, error) {
	var items []*Item
	for start := 0; start < len(keys); start += scanKeysLimit {
		chunk := keys[start:min(start+scanKeysLimit, len(keys))]

		values := TTLFilterValues(s.now())
		placeholders := make([]string, len(chunk))
		for i, key := range chunk {
			p := ":k" + strconv.Itoa(i)
			placeholders[i] = p
			values[p] = &types.AttributeValueMemberS{Value: key}
		}

		paginator := dynamodb.NewScanPaginator(s.client, &dynamodb.ScanInput{
			TableName:                 aws.String(s.config.ObjectTable),
			FilterExpression:          aws.String(fmt.Sprintf("identity_key IN (%s) AND %s", strings.Join(placeholders, ", "), TTLFilterExpr())),
			ExpressionAttributeNames:  TTLFilterNames(),
			ExpressionAttributeValues: values,
		})
		for paginator.HasMorePages() {
			page, err := paginator.NextPage(ctx)
			if err != nil {
				return nil, err
			}
			for _, raw := range page.Items {
				item, err := unmarshalItem(raw)
				if err != nil {
					return nil, err
				}
				items = append(items, item)
			}
		}
	}
	return items, nil
}

// Load returns the live items with the given IDs. Missing and deleted IDs
// are skipped.
func (s *Store) Load(ctx context.Context, ids []uuid.UUID) ([]*Item, error) {
	var items []*Item
	now := s.now()
	for start := 0; start < len(ids); start += batchGetLimit {
		chunk := ids[start:min(start+batchGetLimit, len(ids))]
		keys := make([]map[string]types.AttributeValue, len(chunk))
		for i, id := range chunk {
			keys[i] = map[string]types.AttributeValue{
				"object_id": &types.AttributeValueMemberS{Value: id.String()},
			}
		}

		request := map[string]types.KeysAndAttributes{
			s.config.ObjectTable: {Keys: keys, ConsistentRead: aws.Bool(true)},
		}
		for attempt := 0; len(request) > 0; attempt++ {
			if attempt > 0 {
				if attempt > s.config.MaxLoadRetries {
					return nil, fmt.Errorf("%w: %d keys after %d attempts", ErrUnprocessedKeys, len(request[s.config.ObjectTable].Keys), attempt)
				}
				if err := s.wait(ctx, attempt); err != nil {
					return nil, err
				}
			}
			out, err := s.client.BatchGetItem(ctx, &dynamodb.BatchGetItemInput{RequestItems: request})
			if err != nil {
				return nil, err
			}
			for _, raw := range out.Responses[s.config.ObjectTable] {
				if isDeletedAt(raw, now) {
					continue
				}
				item, err := unmarshalItem(raw)
				if err != nil {
					return nil, err
				}
				items = append(items, item)
			}
			request = out.UnprocessedKeys
		}
	}
	return items, nil
}

// wait sleeps for the backoff of the given retry attempt.
func (s *Store) wait(ctx context.Context, attempt int) error {
	d, err := s.backoff.BackoffDelay(attempt, nil)
	if err != nil {
		return err
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

type writeKind int

const (
	writeInsert writeKind = iota
	writeUpdate
	writeDelete
)

type write struct {
	kind writeKind
	item *Item
	op   types.TransactWriteItem
}

// Save writes a change set. Writes are grouped into transactions of at most
// MaxTransactItems; each transaction is atomic on its own.
func (s *Store) Save(ctx context.Context, changes *ChangeSet) error {
	now := s.now()
	writes := make([]write, 0, len(changes.Inserted)+len(changes.Updated)+len(changes.Deleted))

	for _, item := range changes.Inserted {
		raw, err := marshalItem(item)
		if err != nil {
			return err
		}
		writes = append(writes, write{writeInsert, item, types.TransactWriteItem{
			Put: &types.Put{
				TableName:           aws.String(s.config.ObjectTable),
				Item:                raw,
				ConditionExpression: aws.String("attribute_not_exists(object_id)"),
			},
		}})
	}

	for _, item := range changes.Updated {
		raw, err := marshalItem(item)
		if err != nil {
			return err
		}
		writes = append(writes, write{writeUpdate, item, types.TransactWriteItem{
			Put: &types.Put{
				TableName:                aws.String(s.config.ObjectTable),
				Item:                     raw,
				ConditionExpression:      aws.String("version = :expected AND " + TTLFilterExpr()),
				ExpressionAttributeNames: TTLFilterNames(),
				ExpressionAttributeValues: mergeExprValues(TTLFilterValues(now), map[string]types.AttributeValue{
					":expected": &types.AttributeValueMemberN{Value: strconv.FormatInt(item.Version-1, 10)},
				}),
			},
		}})
	}

	for _, item := range changes.Deleted {
		writes = append(writes, write{writeDelete, item, softDelete(s.config.ObjectTable, item, now)})
	}

	for start := 0; start < len(writes); start += s.config.MaxTransactItems {
		chunk := writes[start:min(start+s.config.MaxTransactItems, len(writes))]
		ops := make([]types.TransactWriteItem, len(chunk))
		for i, w := range chunk {
			ops[i] = w.op
		}
		_, err := s.client.TransactWriteItems(ctx, &dynamodb.TransactWriteItemsInput{
			TransactItems: ops,
		})
		if err := mapTransactionError(err, chunk); err != nil {
			return err
		}
	}
	return nil
}

// mapTransactionError maps the first failed condition of a cancelled
// transaction to the sentinel matching the write at that index.
func mapTransactionError(err error, writes []write) error {
	if err == nil {
		return nil
	}

	var txErr *types.TransactionCanceledException
	if errors.As(err, &txErr) {
		for i, reason := range txErr.CancellationReasons {
			if reason.Code == nil || *reason.Code != "ConditionalCheckFailed" || i >= len(writes) {
				continue
			}
			w := writes[i]
			if w.kind == writeInsert {
				return fmt.Errorf("%w: %s#%s", ErrAlreadyExists, w.item.Entity, w.item.ID)
			}
			return fmt.Errorf("%w: %s#%s", ErrConcurrentModification, w.item.Entity, w.item.ID)
		}
	}

	return err
}
