package dynamo

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/HummdG/tazaticket-final/internal/config"
	"github.com/HummdG/tazaticket-final/internal/core"
	"github.com/HummdG/tazaticket-final/pkg/log"
	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/aws/smithy-go"
)

// BatchWriteItem accepts at most 25 put requests per call.
const batchLimit = 25

// API is the subset of the DynamoDB client the table needs.
type API interface {
	PutItem(ctx context.Context, in *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
	UpdateItem(ctx context.Context, in *dynamodb.UpdateItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.UpdateItemOutput, error)
	BatchWriteItem(ctx context.Context, in *dynamodb.BatchWriteItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.BatchWriteItemOutput, error)
	Query(ctx context.Context, in *dynamodb.QueryInput, optFns ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error)
}

type record struct {
	ThreadID  string `dynamodbav:"thread_id"`
	Seq       int64  `dynamodbav:"seq"`
	Turn      int64  `dynamodbav:"turn,omitempty"`
	Role      string `dynamodbav:"role,omitempty"`
	Content   string `dynamodbav:"content,omitempty"`
	Timestamp string `dynamodbav:"ts_iso,omitempty"`
	SessionID string `dynamodbav:"session_id,omitempty"`
	NextSeq   int64  `dynamodbav:"next_seq,omitempty"`
	NextTurn  int64  `dynamodbav:"next_turn,omitempty"`
}

type Table struct {
	api   API
	table string
}

func NewTable(api API, table string) *Table {
	return &Table{api: api, table: table}
}

// New builds a Table on the default AWS credential chain. A configured
// endpoint points the client at a local DynamoDB.
func New(ctx context.Context, cfg *config.DynamoConfig) (*Table, error) {
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.Region))
	if err != nil {
		return nil, fmt.Errorf("failed to load aws config: %w", err)
	}

	client := dynamodb.NewFromConfig(awsCfg, func(o *dynamodb.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
	})

	log.FromCtx(ctx).Debug().
		Str("table", cfg.Table).
		Str("region", cfg.Region).
		Str("endpoint", cfg.Endpoint).
		Msg("dynamodb table configured")

	return NewTable(client, cfg.Table), nil
}

func (t *Table) BatchLimit() int {
	return batchLimit
}

func (t *Table) ConditionalPut(ctx context.Context, item core.Item) error {
	av, err := marshal(item)
	if err != nil {
		return err
	}

	_, err = t.api.PutItem(ctx, &dynamodb.PutItemInput{
		TableName:           aws.String(t.table),
		Item:                av,
		ConditionExpression: aws.String("attribute_not_exists(thread_id)"),
	})
	if isConditionFailed(err) {
		return core.ErrAlreadyExists
	}
	if err != nil {
		return wrap("put item", err)
	}
	return nil
}

func (t *Table) AtomicAdd(ctx context.Context, key core.Key, field string, delta int64) (int64, error) {
	if field != core.FieldNextSeq && field != core.FieldNextTurn {
		return 0, fmt.Errorf("unknown counter field %q", field)
	}

	out, err := t.api.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName:                aws.String(t.table),
		Key:                      keyOf(key),
		UpdateExpression:         aws.String("ADD #f :d"),
		ConditionExpression:      aws.String("attribute_exists(thread_id)"),
		ExpressionAttributeNames: map[string]string{"#f": field},
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":d": &types.AttributeValueMemberN{Value: strconv.FormatInt(delta, 10)},
		},
		ReturnValues: types.ReturnValueUpdatedNew,
	})
	if isConditionFailed(err) {
		return 0, core.ErrNotFound
	}
	if err != nil {
		return 0, wrap("update counter", err)
	}

	n, ok := out.Attributes[field].(*types.AttributeValueMemberN)
	if !ok {
		return 0, fmt.Errorf("counter field %s missing from update response", field)
	}
	return strconv.ParseInt(n.Value, 10, 64)
}

// BatchConditionalWrite issues plain put requests: BatchWriteItem has no
// condition expressions, so an existing key is overwritten with identical data.
func (t *Table) BatchConditionalWrite(ctx context.Context, items []core.Item) ([]core.Item, error) {
	if len(items) == 0 {
		return nil, nil
	}
	if len(items) > batchLimit {
		return nil, fmt.Errorf("%w: batch of %d exceeds limit %d", core.ErrInvalidItem, len(items), batchLimit)
	}

	requests := make([]types.WriteRequest, 0, len(items))
	for _, item := range items {
		av, err := marshal(item)
		if err != nil {
			return nil, err
		}
		requests = append(requests, types.WriteRequest{PutRequest: &types.PutRequest{Item: av}})
	}

	out, err := t.api.BatchWriteItem(ctx, &dynamodb.BatchWriteItemInput{
		RequestItems: map[string][]types.WriteRequest{t.table: requests},
	})
	if err != nil {
		return nil, wrap("batch write", err)
	}

	var unprocessed []core.Item
	for _, req := range out.UnprocessedItems[t.table] {
		if req.PutRequest == nil {
			continue
		}
		item, err := unmarshal(req.PutRequest.Item)
		if err != nil {
			return nil, err
		}
		unprocessed = append(unprocessed, item)
	}
	return unprocessed, nil
}

func (t *Table) QueryRange(ctx context.Context, threadID string, desc bool, limit int) ([]core.Item, error) {
	in := &dynamodb.QueryInput{
		TableName:              aws.String(t.table),
		KeyConditionExpression: aws.String("thread_id = :t AND seq > :zero"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":t":    &types.AttributeValueMemberS{Value: threadID},
			":zero": &types.AttributeValueMemberN{Value: strconv.FormatInt(core.CounterSeq, 10)},
		},
		ScanIndexForward: aws.Bool(!desc),
	}

	var items []core.Item
	for {
		if limit > 0 {
			in.Limit = aws.Int32(int32(limit - len(items)))
		}

		out, err := t.api.Query(ctx, in)
		if err != nil {
			return nil, wrap("query history", err)
		}

		for _, av := range out.Items {
			item, err := unmarshal(av)
			if err != nil {
				return nil, err
			}
			items = append(items, item)
		}

		if len(out.LastEvaluatedKey) == 0 || (limit > 0 && len(items) >= limit) {
			break
		}
		in.ExclusiveStartKey = out.LastEvaluatedKey
	}

	return items, nil
}

func keyOf(key core.Key) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		"thread_id": &types.AttributeValueMemberS{Value: key.ThreadID},
		"seq":       &types.AttributeValueMemberN{Value: strconv.FormatInt(key.Seq, 10)},
	}
}

func marshal(item core.Item) (map[string]types.AttributeValue, error) {
	rec := record{
		ThreadID:  item.ThreadID,
		Seq:       item.Seq,
		Turn:      item.Turn,
		Role:      string(item.Role),
		Content:   item.Content,
		SessionID: item.SessionID,
		NextSeq:   item.NextSeq,
		NextTurn:  item.NextTurn,
	}
	if !item.Timestamp.IsZero() {
		rec.Timestamp = item.Timestamp.UTC().Format(time.RFC3339Nano)
	}

	av, err := attributevalue.MarshalMap(rec)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to marshal seq %d: %w", core.ErrInvalidItem, item.Seq, err)
	}
	return av, nil
}

func unmarshal(av map[string]types.AttributeValue) (core.Item, error) {
	var rec record
	if err := attributevalue.UnmarshalMap(av, &rec); err != nil {
		return core.Item{}, fmt.Errorf("failed to unmarshal history item: %w", err)
	}

	item := core.Item{
		Key:       core.Key{ThreadID: rec.ThreadID, Seq: rec.Seq},
		Turn:      rec.Turn,
		Role:      core.Role(rec.Role),
		Content:   rec.Content,
		SessionID: rec.SessionID,
		NextSeq:   rec.NextSeq,
		NextTurn:  rec.NextTurn,
	}
	if rec.Timestamp != "" {
		ts, err := time.Parse(time.RFC3339Nano, rec.Timestamp)
		if err != nil {
			return core.Item{}, fmt.Errorf("bad timestamp on seq %d: %w", rec.Seq, err)
		}
		item.Timestamp = ts
	}
	return item, nil
}

func isConditionFailed(err error) bool {
	var ccf *types.ConditionalCheckFailedException
	return errors.As(err, &ccf)
}

func wrap(op string, err error) error {
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		if apiErr.ErrorCode() == "ValidationException" {
			return fmt.Errorf("%w: dynamodb %s (%s): %w", core.ErrInvalidItem, op, apiErr.ErrorCode(), err)
		}
		return fmt.Errorf("dynamodb %s (%s): %w", op, apiErr.ErrorCode(), err)
	}
	return fmt.Errorf("dynamodb %s: %w", op, err)
}
