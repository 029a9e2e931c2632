package idempotency

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"PulseQueue/internal/models"
)

// DynamoAPI is the subset of *dynamodb.Client used here.
type DynamoAPI interface {
	GetItem(ctx context.Context, in *dynamodb.GetItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error)
	PutItem(ctx context.Context, in *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
}

// DynamoStore uses a table keyed by "messageId" with TTL on "expiresAt".
type DynamoStore struct {
	client DynamoAPI
	table  string
	now    func() time.Time
}

func NewDynamoStore(client DynamoAPI, table string) *DynamoStore {
	return &DynamoStore{client: client, table: table, now: time.Now}
}

func (s *DynamoStore) Exists(ctx context.Context, key string) (bool, error) {
	out, err := s.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName:            aws.String(s.table),
		Key:                  map[string]types.AttributeValue{"messageId": &types.AttributeValueMemberS{Value: key}},
		ConsistentRead:       aws.Bool(true),
		ProjectionExpression: aws.String("messageId, expiresAt"),
	})
	if err != nil {
		return false, fmt.Errorf("dynamodb: get %s: %w", key, err)
	}
	if len(out.Item) == 0 {
		return false, nil
	}

	// TTL deletion lags by up to a couple of days.
	var rec models.IdempotencyRecord
	if err := attributevalue.UnmarshalMap(out.Item, &rec); err != nil {
		return false, fmt.Errorf("dynamodb: decode %s: %w", key, err)
	}
	return rec.ExpiresAt == 0 || rec.ExpiresAt > s.now().Unix(), nil
}

func (s *DynamoStore) InsertIfAbsent(ctx context.Context, rec models.IdempotencyRecord) (Outcome, error) {
	item, err := attributevalue.MarshalMap(rec)
	if err != nil {
		return StoreError, fmt.Errorf("dynamodb: encode %s: %w", rec.Key, err)
	}

	_, err = s.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName:           aws.String(s.table),
		Item:                item,
		ConditionExpression: aws.String("attribute_not_exists(messageId) OR expiresAt <= :now"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":now": &types.AttributeValueMemberN{Value: strconv.FormatInt(s.now().Unix(), 10)},
		},
	})
	if err != nil {
		var condErr *types.ConditionalCheckFailedException
		if errors.As(err, &condErr) {
			return AlreadyExists, nil
		}
		return StoreError, fmt.Errorf("dynamodb: put %s: %w", rec.Key, err)
	}
	return Inserted, nil
}
