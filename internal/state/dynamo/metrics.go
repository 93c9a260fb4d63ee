package dynamo

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	ddbtypes "github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/vitals-systems/siphon/pkg/types"
)

// PutArchiveMetrics persists the metrics record for one archival run. Records
// carry a TTL so old runs age out of the table on their own.
func (s *Store) PutArchiveMetrics(ctx context.Context, m types.ArchiveRunMetrics) error {
	data, err := json.Marshal(m)
	if err != nil {
		return fmt.Errorf("marshaling archive metrics: %w", err)
	}
	_, err = s.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: &s.tableName,
		Item: map[string]ddbtypes.AttributeValue{
			"PK":   &ddbtypes.AttributeValueMemberS{Value: pkArchive},
			"SK":   &ddbtypes.AttributeValueMemberS{Value: archiveRunSK(m.RunID)},
			"data": &ddbtypes.AttributeValueMemberS{Value: string(data)},
			"ttl":  &ddbtypes.AttributeValueMemberN{Value: strconv.FormatInt(ttlEpoch(s.metricsTTL), 10)},
		},
	})
	if err != nil {
		return fmt.Errorf("putting archive metrics %s: %w", m.RunID, err)
	}
	return nil
}

// ListArchiveMetrics returns up to limit archive run records, newest first.
// Run IDs are ULIDs, so lexical SK order is creation order.
func (s *Store) ListArchiveMetrics(ctx context.Context, limit int) ([]types.ArchiveRunMetrics, error) {
	if limit <= 0 {
		limit = 20
	}
	out, err := s.client.Query(ctx, &dynamodb.QueryInput{
		TableName:              &s.tableName,
		KeyConditionExpression: aws.String("PK = :pk AND begins_with(SK, :prefix)"),
		ExpressionAttributeValues: map[string]ddbtypes.AttributeValue{
			":pk":     &ddbtypes.AttributeValueMemberS{Value: pkArchive},
			":prefix": &ddbtypes.AttributeValueMemberS{Value: prefixRun},
		},
		ScanIndexForward: aws.Bool(false),
		Limit:            aws.Int32(int32(limit)),
	})
	if err != nil {
		return nil, fmt.Errorf("listing archive metrics: %w", err)
	}

	runs := make([]types.ArchiveRunMetrics, 0, len(out.Items))
	for _, item := range out.Items {
		// DynamoDB TTL deletion can lag by days; treat expired items as gone.
		if epoch, err := attributeInt(item, "ttl"); err == nil && isExpired(epoch) {
			continue
		}
		data, err := attributeStr(item, "data")
		if err != nil {
			s.logger.Warn("skipping malformed archive metrics item", "error", err)
			continue
		}
		var m types.ArchiveRunMetrics
		if err := json.Unmarshal([]byte(data), &m); err != nil {
			s.logger.Warn("skipping undecodable archive metrics item", "error", err)
			continue
		}
		runs = append(runs, m)
	}
	return runs, nil
}
