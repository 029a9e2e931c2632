package idempotency

import (
	"context"
	"errors"
	"strconv"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"PulseQueue/internal/models"
)

type mockDynamo struct {
	mock.Mock
}

func (m *mockDynamo) GetItem(ctx context.Context, in *dynamodb.GetItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error) {
	args := m.Called(ctx, in)
	out, _ := args.Get(0).(*dynamodb.GetItemOutput)
	return out, args.Error(1)
}

func (m *mockDynamo) PutItem(ctx context.Context, in *dynamodb.PutItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error) {
	args := m.Called(ctx, in)
	out, _ := args.Get(0).(*dynamodb.PutItemOutput)
	return out, args.Error(1)
}

func fixedDynamo(client DynamoAPI, now time.Time) *DynamoStore {
	s := NewDynamoStore(client, "email-idempotency")
	s.now = func() time.Time { return now }
	return s
}

func TestDynamoStore_Exists(t *testing.T) {
	now := time.Unix(1_750_000_000, 0)
	item := func(expiresAt int64) map[string]types.AttributeValue {
		return map[string]types.AttributeValue{
			"messageId": &types.AttributeValueMemberS{Value: "k"},
			"expiresAt": &types.AttributeValueMemberN{Value: strconv.FormatInt(expiresAt, 10)},
		}
	}

	cases := []struct {
		name string
		out  *dynamodb.GetItemOutput
		want bool
	}{
		{"missing", &dynamodb.GetItemOutput{}, false},
		{"live", &dynamodb.GetItemOutput{Item: item(now.Unix() + 60)}, true},
		{"expired, not yet collected", &dynamodb.GetItemOutput{Item: item(now.Unix() - 60)}, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			client := new(mockDynamo)
			client.On("GetItem", mock.Anything, mock.MatchedBy(func(in *dynamodb.GetItemInput) bool {
				key, ok := in.Key["messageId"].(*types.AttributeValueMemberS)
				return ok && key.Value == "k" && aws.ToBool(in.ConsistentRead) &&
					aws.ToString(in.TableName) == "email-idempotency"
			})).Return(tc.out, nil)

			got, err := fixedDynamo(client, now).Exists(context.Background(), "k")
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestDynamoStore_ExistsError(t *testing.T) {
	client := new(mockDynamo)
	client.On("GetItem", mock.Anything, mock.Anything).Return(nil, errors.New("boom"))

	_, err := fixedDynamo(client, time.Now()).Exists(context.Background(), "k")
	assert.ErrorContains(t, err, "boom")
}

func TestDynamoStore_InsertIfAbsent(t *testing.T) {
	now := time.Unix(1_750_000_000, 0)
	rec := models.NewIdempotencyRecord("b1::a@s.com", "a@s.com", now)

	t.Run("inserted", func(t *testing.T) {
		client := new(mockDynamo)
		client.On("PutItem", mock.Anything, mock.MatchedBy(func(in *dynamodb.PutItemInput) bool {
			key, _ := in.Item["messageId"].(*types.AttributeValueMemberS)
			to, _ := in.Item["to"].(*types.AttributeValueMemberS)
			exp, _ := in.Item["expiresAt"].(*types.AttributeValueMemberN)
			nowArg, _ := in.ExpressionAttributeValues[":now"].(*types.AttributeValueMemberN)
			return key != nil && key.Value == rec.Key &&
				to != nil && to.Value == "a@s.com" &&
				exp != nil && exp.Value == strconv.FormatInt(now.Add(48*time.Hour).Unix(), 10) &&
				nowArg != nil && nowArg.Value == strconv.FormatInt(now.Unix(), 10) &&
				aws.ToString(in.ConditionExpression) == "attribute_not_exists(messageId) OR expiresAt <= :now"
		})).Return(&dynamodb.PutItemOutput{}, nil)

		out, err := fixedDynamo(client, now).InsertIfAbsent(context.Background(), rec)
		require.NoError(t, err)
		assert.Equal(t, Inserted, out)
		client.AssertExpectations(t)
	})

	t.Run("lost race", func(t *testing.T) {
		client := new(mockDynamo)
		client.On("PutItem", mock.Anything, mock.Anything).
			Return(nil, &types.ConditionalCheckFailedException{Message: aws.String("The conditional request failed")})

		out, err := fixedDynamo(client, now).InsertIfAbsent(context.Background(), rec)
		require.NoError(t, err)
		assert.Equal(t, AlreadyExists, out)
	})

	t.Run("store error", func(t *testing.T) {
		client := new(mockDynamo)
		client.On("PutItem", mock.Anything, mock.Anything).
			Return(nil, &types.ProvisionedThroughputExceededException{Message: aws.String("slow down")})

		out, err := fixedDynamo(client, now).InsertIfAbsent(context.Background(), rec)
		require.Error(t, err)
		assert.Equal(t, StoreError, out)
	})
}
