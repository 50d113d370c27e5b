package repository

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/google/uuid"

	"profile-assistant/internal/domain"
)

const (
	pkPrefix    = "RECORD#"
	ttlDuration = 30 * 24 * time.Hour // 30-day TTL

	maxPageSize = 1000
)

// dynamodbAPI is the minimal DynamoDB interface required by Client.
// Defined here for testability.
type dynamodbAPI interface {
	PutItem(ctx context.Context, in *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
	Query(ctx context.Context, in *dynamodb.QueryInput, optFns ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error)
}

// Client wraps a DynamoDB table holding tool records.
type Client struct {
	api       dynamodbAPI
	tableName string
}

// New creates a new repository Client.
func New(api dynamodbAPI, tableName string) (*Client, error) {
	if api == nil {
		return nil, errors.New("repository: api must not be nil")
	}
	if strings.TrimSpace(tableName) == "" {
		return nil, errors.New("repository: table name must not be empty")
	}
	return &Client{api: api, tableName: tableName}, nil
}

// recordPK returns the partition key for a record kind.
func recordPK(kind string) string {
	return pkPrefix + kind
}

// recordSK orders records by creation time; the uuid suffix keeps keys unique
// within the same instant.
func recordSK(ts time.Time) string {
	return ts.UTC().Format(time.RFC3339Nano) + "#" + newID()
}

// ttlValue returns a Unix timestamp 30 days in the future.
func ttlValue() int64 {
	return time.Now().Add(ttlDuration).Unix()
}

// SaveRecord persists a record. Keys must be unique.
func (c *Client) SaveRecord(ctx context.Context, rec domain.Record) error {
	if rec.PK == "" || rec.SK == "" {
		return errors.New("repository: SaveRecord: PK and SK are required")
	}

	_, err := c.api.PutItem(ctx, &dynamodb.PutItemInput{
		TableName:           aws.String(c.tableName),
		Item:                recordItem(rec),
		ConditionExpression: aws.String("attribute_not_exists(PK) AND attribute_not_exists(SK)"),
	})
	if err != nil {
		return fmt.Errorf("repository: SaveRecord: %w", err)
	}
	return nil
}

// ListRecords returns up to limit records of one kind, newest first. A limit
// of zero or less returns every record, following LastEvaluatedKey across
// pages.
func (c *Client) ListRecords(ctx context.Context, kind string, limit int) ([]domain.Record, error) {
	in := &dynamodb.QueryInput{
		TableName:              aws.String(c.tableName),
		KeyConditionExpression: aws.String("PK = :pk"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":pk": &types.AttributeValueMemberS{Value: recordPK(kind)},
		},
		ScanIndexForward: aws.Bool(false),
	}
	if limit > 0 {
		in.Limit = aws.Int32(int32(min(limit, maxPageSize)))
	}

	var recs []domain.Record
	pages := dynamodb.NewQueryPaginator(c.api, in)
	for pages.HasMorePages() {
		out, err := pages.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("repository: ListRecords query: %w", err)
		}
		for _, item := range out.Items {
			rec, err := itemToRecord(item)
			if err != nil {
				return nil, fmt.Errorf("repository: ListRecords unmarshal: %w", err)
			}
			recs = append(recs, rec)
			if limit > 0 && len(recs) == limit {
				return recs, nil
			}
		}
	}
	if recs == nil {
		recs = []domain.Record{}
	}
	return recs, nil
}

// NewLeadRecord constructs a contact-details record stamped with the current time.
func NewLeadRecord(email, name, notes string) domain.Record {
	rec := newRecord(domain.RecordKindLead)
	rec.Email = email
	rec.Name = name
	rec.Notes = notes
	return rec
}

// NewQuestionRecord constructs an unanswered-question record.
func NewQuestionRecord(question string) domain.Record {
	rec := newRecord(domain.RecordKindQuestion)
	rec.Question = question
	return rec
}

func newRecord(kind string) domain.Record {
	now := time.Now().UTC()
	return domain.Record{
		PK:        recordPK(kind),
		SK:        recordSK(now),
		Kind:      kind,
		CreatedAt: now.Format(time.RFC3339),
		TTL:       ttlValue(),
	}
}

// itemToRecord converts a DynamoDB attribute map to a Record.
func itemToRecord(item map[string]types.AttributeValue) (domain.Record, error) {
	pk, err := strAttr(item, "PK")
	if err != nil {
		return domain.Record{}, err
	}
	sk, err := strAttr(item, "SK")
	if err != nil {
		return domain.Record{}, err
	}
	kind, err := strAttr(item, "kind")
	if err != nil {
		return domain.Record{}, err
	}
	rec := domain.Record{PK: pk, SK: sk, Kind: kind}
	rec.Email, _ = strAttr(item, "email") // allow empty
	rec.Name, _ = strAttr(item, "name")
	rec.Notes, _ = strAttr(item, "notes")
	rec.Question, _ = strAttr(item, "question")
	rec.CreatedAt, _ = strAttr(item, "createdAt")
	if ttl, err := intAttr(item, "ttl"); err == nil {
		rec.TTL = ttl
	}
	return rec, nil
}

func recordItem(rec domain.Record) map[string]types.AttributeValue {
	item := map[string]types.AttributeValue{
		"PK":        &types.AttributeValueMemberS{Value: rec.PK},
		"SK":        &types.AttributeValueMemberS{Value: rec.SK},
		"kind":      &types.AttributeValueMemberS{Value: rec.Kind},
		"createdAt": &types.AttributeValueMemberS{Value: rec.CreatedAt},
		"ttl":       &types.AttributeValueMemberN{Value: strconv.FormatInt(rec.TTL, 10)},
	}
	optional := map[string]string{
		"email":    rec.Email,
		"name":     rec.Name,
		"notes":    rec.Notes,
		"question": rec.Question,
	}
	for k, v := range optional {
		if v != "" {
			item[k] = &types.AttributeValueMemberS{Value: v}
		}
	}
	return item
}

func strAttr(item map[string]types.AttributeValue, key string) (string, error) {
	v, ok := item[key]
	if !ok {
		return "", fmt.Errorf("repository: missing attribute %q", key)
	}
	s, ok := v.(*types.AttributeValueMemberS)
	if !ok {
		return "", fmt.Errorf("repository: attribute %q is not a string", key)
	}
	return s.Value, nil
}

func intAttr(item map[string]types.AttributeValue, key string) (int64, error) {
	v, ok := item[key]
	if !ok {
		return 0, fmt.Errorf("repository: missing attribute %q", key)
	}
	n, ok := v.(*types.AttributeValueMemberN)
	if !ok {
		return 0, fmt.Errorf("repository: attribute %q is not a number", key)
	}
	parsed, err := strconv.ParseInt(n.Value, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("repository: parse attribute %q: %w", key, err)
	}
	return parsed, nil
}

var newID = func() string {
	return uuid.NewString()
}
