package dynamo

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	ddbtypes "github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

type rotationCursor struct {
	Position int `json:"position"`
}

// GetRotationCursor returns the round-robin position used for site selection.
// Missing cursor reads as zero.
func (s *Store) GetRotationCursor(ctx context.Context) (int, error) {
	out, err := s.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName:      &s.tableName,
		ConsistentRead: aws.Bool(true),
		Key: map[string]ddbtypes.AttributeValue{
			"PK": &ddbtypes.AttributeValueMemberS{Value: pkRotation},
			"SK": &ddbtypes.AttributeValueMemberS{Value: skCursor},
		},
	})
	if err != nil {
		return 0, fmt.Errorf("getting rotation cursor: %w", err)
	}
	if out.Item == nil {
		return 0, nil
	}

	data, err := attributeStr(out.Item, "data")
	if err != nil {
		return 0, fmt.Errorf("rotation cursor: %w", err)
	}
	var rc rotationCursor
	if err := json.Unmarshal([]byte(data), &rc); err != nil {
		return 0, fmt.Errorf("decoding rotation cursor: %w", err)
	}
	return rc.Position, nil
}

// PutRotationCursor stores the round-robin position.
func (s *Store) PutRotationCursor(ctx context.Context, position int) error {
	data, err := json.Marshal(rotationCursor{Position: position})
	if err != nil {
		return err
	}
	_, err = s.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: &s.tableName,
		Item: map[string]ddbtypes.AttributeValue{
			"PK":   &ddbtypes.AttributeValueMemberS{Value: pkRotation},
			"SK":   &ddbtypes.AttributeValueMemberS{Value: skCursor},
			"data": &ddbtypes.AttributeValueMemberS{Value: string(data)},
		},
	})
	if err != nil {
		return fmt.Errorf("putting rotation cursor: %w", err)
	}
	return nil
}
