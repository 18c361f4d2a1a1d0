package store

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/rs/zerolog/log"
)

// DynamoDB key constants for the single-table design.
const (
	pkPrefix = "JOB#"
	skMeta   = "META"
)

// JobTTL is how long job items live before DynamoDB expires them.
const JobTTL = 30 * 24 * time.Hour

// DynamoAPI is the subset of the DynamoDB client the store uses.
type DynamoAPI interface {
	PutItem(ctx context.Context, in *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
	GetItem(ctx context.Context, in *dynamodb.GetItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error)
	UpdateItem(ctx context.Context, in *dynamodb.UpdateItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.UpdateItemOutput, error)
	Scan(ctx context.Context, in *dynamodb.ScanInput, optFns ...func(*dynamodb.Options)) (*dynamodb.ScanOutput, error)
}

// DynamoStore implements JobStore on a DynamoDB table with string keys
// PK and SK and a numeric TTL attribute expiresAt.
type DynamoStore struct {
	client    DynamoAPI
	tableName string
}

var _ JobStore = (*DynamoStore)(nil)

// NewDynamoStore creates a DynamoStore for the given table.
func NewDynamoStore(client DynamoAPI, tableName string) *DynamoStore {
	return &DynamoStore{client: client, tableName: tableName}
}

func jobPK(id string) string {
	return pkPrefix + id
}

func expiresAt() int64 {
	return time.Now().Add(JobTTL).Unix()
}

func keyOf(pk, sk string) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		"PK": &types.AttributeValueMemberS{Value: pk},
		"SK": &types.AttributeValueMemberS{Value: sk},
	}
}

// putItem marshals data and writes it with PK, SK, and TTL attributes.
func (s *DynamoStore) putItem(ctx context.Context, pk, sk string, data any) error {
	item, err := attributevalue.MarshalMap(data)
	if err != nil {
		return fmt.Errorf("marshal: %w", err)
	}
	item["PK"] = &types.AttributeValueMemberS{Value: pk}
	item["SK"] = &types.AttributeValueMemberS{Value: sk}
	item["expiresAt"] = &types.AttributeValueMemberN{Value: strconv.FormatInt(expiresAt(), 10)}

	_, err = s.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: &s.tableName,
		Item:      item,
	})
	if err != nil {
		return fmt.Errorf("PutItem PK=%s SK=%s: %w", pk, sk, err)
	}
	return nil
}

// getItem reads one item into out. Returns false if it does not exist.
func (s *DynamoStore) getItem(ctx context.Context, pk, sk string, out any) (bool, error) {
	result, err := s.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName: &s.tableName,
		Key:       keyOf(pk, sk),
	})
	if err != nil {
		return false, fmt.Errorf("GetItem PK=%s SK=%s: %w", pk, sk, err)
	}
	if result.Item == nil {
		return false, nil
	}
	if err := attributevalue.UnmarshalMap(result.Item, out); err != nil {
		return false, fmt.Errorf("unmarshal PK=%s SK=%s: %w", pk, sk, err)
	}
	return true, nil
}

func (s *DynamoStore) PutJob(ctx context.Context, job *Job) error {
	now := time.Now().UTC()
	if job.CreatedAt.IsZero() {
		job.CreatedAt = now
	}
	job.UpdatedAt = now

	if err := s.putItem(ctx, jobPK(job.ID), skMeta, job); err != nil {
		return fmt.Errorf("put job %s: %w", job.ID, err)
	}
	log.Debug().Str("jobId", job.ID).Str("status", job.Status).Msg("Job persisted")
	return nil
}

func (s *DynamoStore) GetJob(ctx context.Context, id string) (*Job, error) {
	var job Job
	found, err := s.getItem(ctx, jobPK(id), skMeta, &job)
	if err != nil {
		return nil, fmt.Errorf("get job %s: %w", id, err)
	}
	if !found {
		return nil, nil
	}
	job.ID = id
	return &job, nil
}

func (s *DynamoStore) UpdateJobStatus(ctx context.Context, id, status, errMsg string) error {
	values := map[string]types.AttributeValue{
		":s": &types.AttributeValueMemberS{Value: status},
		":u": &types.AttributeValueMemberS{Value: time.Now().UTC().Format(time.RFC3339Nano)},
	}
	expr := "SET #s = :s, updatedAt = :u"
	if errMsg != "" {
		expr += ", #e = :e"
		values[":e"] = &types.AttributeValueMemberS{Value: errMsg}
	} else {
		expr += " REMOVE #e"
	}

	_, err := s.client.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName:        &s.tableName,
		Key:              keyOf(jobPK(id), skMeta),
		UpdateExpression: aws.String(expr),
		// "status" and "error" are DynamoDB reserved words
		ExpressionAttributeNames: map[string]string{
			"#s": "status",
			"#e": "error",
		},
		ExpressionAttributeValues: values,
		ConditionExpression:       aws.String("attribute_exists(PK)"),
	})
	if err != nil {
		return fmt.Errorf("update job status %s -> %s: %w", id, status, err)
	}

	log.Debug().Str("jobId", id).Str("status", status).Msg("Job status updated")
	return nil
}

// ListJobs scans the table for job items. The table only holds jobs, so a
// scan stays proportional to the TTL window.
func (s *DynamoStore) ListJobs(ctx context.Context, limit int) ([]*Job, error) {
	if limit <= 0 {
		limit = DefaultListLimit
	}
	input := &dynamodb.ScanInput{
		TableName:        &s.tableName,
		FilterExpression: aws.String("begins_with(PK, :pk) AND SK = :sk"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":pk": &types.AttributeValueMemberS{Value: pkPrefix},
			":sk": &types.AttributeValueMemberS{Value: skMeta},
		},
	}

	var jobs []*Job
	for {
		result, err := s.client.Scan(ctx, input)
		if err != nil {
			return nil, fmt.Errorf("Scan jobs: %w", err)
		}
		for _, item := range result.Items {
			var job Job
			if err := attributevalue.UnmarshalMap(item, &job); err != nil {
				return nil, fmt.Errorf("unmarshal job: %w", err)
			}
			if pk, ok := item["PK"].(*types.AttributeValueMemberS); ok {
				job.ID = strings.TrimPrefix(pk.Value, pkPrefix)
			}
			jobs = append(jobs, &job)
		}
		if result.LastEvaluatedKey == nil {
			break
		}
		input.ExclusiveStartKey = result.LastEvaluatedKey
	}

	sort.Slice(jobs, func(i, j int) bool {
		if !jobs[i].CreatedAt.Equal(jobs[j].CreatedAt) {
			return jobs[i].CreatedAt.After(jobs[j].CreatedAt)
		}
		return jobs[i].ID > jobs[j].ID
	})
	if len(jobs) > limit {
		jobs = jobs[:limit]
	}
	return jobs, nil
}
