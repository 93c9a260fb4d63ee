package dynamo

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	ddbtypes "github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

// lockHolder identifies this process in lock items, so a stuck lock can
// be traced to the worker instance that took it.
func lockHolder() string {
	host, err := os.Hostname()
	if err != nil || host == "" {
		host = "unknown"
	}
	return fmt.Sprintf("%s:%d", host, os.Getpid())
}

// AcquireLock attempts to acquire a distributed run lock with the given key
// and TTL. Uses a conditional PutItem that succeeds only if the lock doesn't
// exist or has expired, so a crashed holder never blocks the next run past
// the TTL. A store error is returned as-is; the caller decides whether to
// fail open.
func (s *Store) AcquireLock(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	now := time.Now()

	_, err := s.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: &s.tableName,
		Item: map[string]ddbtypes.AttributeValue{
			"PK":       &ddbtypes.AttributeValueMemberS{Value: lockPK(key)},
			"SK":       &ddbtypes.AttributeValueMemberS{Value: lockSK()},
			"ttl":      &ddbtypes.AttributeValueMemberN{Value: fmt.Sprintf("%d", ttlEpoch(ttl))},
			"holder":   &ddbtypes.AttributeValueMemberS{Value: lockHolder()},
			"lockedAt": &ddbtypes.AttributeValueMemberS{Value: now.UTC().Format(time.RFC3339)},
		},
		ConditionExpression: aws.String("attribute_not_exists(PK) OR #ttl < :now"),
		ExpressionAttributeNames: map[string]string{
			"#ttl": "ttl",
		},
		ExpressionAttributeValues: map[string]ddbtypes.AttributeValue{
			":now": &ddbtypes.AttributeValueMemberN{Value: fmt.Sprintf("%d", now.Unix())},
		},
	})
	if err != nil {
		if isConditionalCheckFailed(err) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

// ReleaseLock releases a distributed run lock.
func (s *Store) ReleaseLock(ctx context.Context, key string) error {
	_, err := s.client.DeleteItem(ctx, &dynamodb.DeleteItemInput{
		TableName: &s.tableName,
		Key: map[string]ddbtypes.AttributeValue{
			"PK": &ddbtypes.AttributeValueMemberS{Value: lockPK(key)},
			"SK": &ddbtypes.AttributeValueMemberS{Value: lockSK()},
		},
	})
	return err
}
