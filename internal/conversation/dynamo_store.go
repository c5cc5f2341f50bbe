package conversation

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

type dynamoAPI interface {
	PutItem(context.Context, *dynamodb.PutItemInput, ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
	GetItem(context.Context, *dynamodb.GetItemInput, ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error)
}

// stateRecord is one conversation frame. The frame itself is stored as JSON
// so Redis and DynamoDB hold the same document.
type stateRecord struct {
	ConversationID string `dynamodbav:"conversationId"`
	State          string `dynamodbav:"state"`
	UpdatedAt      string `dynamodbav:"updatedAt"`
	ExpiresAt      int64  `dynamodbav:"expiresAt,omitempty"`
}

// DynamoStore keeps frames in a DynamoDB table keyed by conversationId.
// A zero TTL leaves expiresAt unset.
type DynamoStore struct {
	client    dynamoAPI
	tableName string
	ttl       time.Duration
	now       func() time.Time
	tracer    trace.Tracer
}

func NewDynamoStore(client dynamoAPI, tableName string, ttl time.Duration) *DynamoStore {
	if client == nil {
		panic("conversation: dynamodb client cannot be nil")
	}
	if tableName == "" {
		panic("conversation: table name cannot be empty")
	}
	return &DynamoStore{
		client:    client,
		tableName: tableName,
		ttl:       ttl,
		now:       time.Now,
		tracer:    otel.Tracer("cliniccall.internal.conversation.store"),
	}
}

func (s *DynamoStore) GetOrCreate(ctx context.Context, id string) (string, *State, error) {
	ctx, span := s.tracer.Start(ctx, "conversation.load_state")
	defer span.End()

	id = strings.TrimSpace(id)
	if id == "" {
		id = newConversationID()
	} else {
		st, err := s.get(ctx, id)
		if err != nil {
			span.RecordError(err)
			return "", nil, err
		}
		if st != nil {
			span.SetAttributes(attribute.Bool("conversation.existing", true))
			return id, st, nil
		}
	}

	st := NewState()
	item, err := s.marshal(id, st)
	if err != nil {
		return "", nil, err
	}
	_, err = s.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName:           aws.String(s.tableName),
		Item:                item,
		ConditionExpression: aws.String("attribute_not_exists(conversationId) OR expiresAt <= :now"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":now": &types.AttributeValueMemberN{Value: strconv.FormatInt(s.now().Unix(), 10)},
		},
	})
	var exists *types.ConditionalCheckFailedException
	if errors.As(err, &exists) {
		// Another turn created the frame first.
		existing, getErr := s.get(ctx, id)
		if getErr != nil || existing == nil {
			return "", nil, fmt.Errorf("conversation: failed to reload state: %w", getErr)
		}
		return id, existing, nil
	}
	if err != nil {
		span.RecordError(err)
		return "", nil, fmt.Errorf("conversation: failed to create state: %w", err)
	}
	return id, st, nil
}

func (s *DynamoStore) Save(ctx context.Context, id string, state *State) error {
	ctx, span := s.tracer.Start(ctx, "conversation.save_state")
	defer span.End()

	item, err := s.marshal(id, state)
	if err != nil {
		span.RecordError(err)
		return err
	}
	if _, err := s.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(s.tableName),
		Item:      item,
	}); err != nil {
		span.RecordError(err)
		return fmt.Errorf("conversation: failed to persist state: %w", err)
	}
	return nil
}

func (s *DynamoStore) get(ctx context.Context, id string) (*State, error) {
	out, err := s.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName: aws.String(s.tableName),
		Key: map[string]types.AttributeValue{
			"conversationId": &types.AttributeValueMemberS{Value: id},
		},
		ConsistentRead: aws.Bool(true),
	})
	if err != nil {
		return nil, fmt.Errorf("conversation: failed to load state: %w", err)
	}
	if out.Item == nil {
		return nil, nil
	}
	var rec stateRecord
	if err := attributevalue.UnmarshalMap(out.Item, &rec); err != nil {
		return nil, fmt.Errorf("conversation: failed to decode state: %w", err)
	}
	// DynamoDB TTL deletion lags; treat expired frames as absent.
	if rec.ExpiresAt > 0 && s.now().Unix() >= rec.ExpiresAt {
		return nil, nil
	}
	var st State
	if err := json.Unmarshal([]byte(rec.State), &st); err != nil {
		return nil, fmt.Errorf("conversation: failed to decode state: %w", err)
	}
	return &st, nil
}

func (s *DynamoStore) marshal(id string, state *State) (map[string]types.AttributeValue, error) {
	data, err := json.Marshal(state)
	if err != nil {
		return nil, fmt.Errorf("conversation: failed to marshal state: %w", err)
	}
	now := s.now().UTC()
	rec := stateRecord{
		ConversationID: id,
		State:          string(data),
		UpdatedAt:      now.Format(time.RFC3339Nano),
	}
	if s.ttl > 0 {
		rec.ExpiresAt = now.Add(s.ttl).Unix()
	}
	item, err := attributevalue.MarshalMap(rec)
	if err != nil {
		return nil, fmt.Errorf("conversation: failed to marshal state: %w", err)
	}
	return item, nil
}
