package dynamo

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	ddbtypes "github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/vitals-systems/siphon/pkg/types"
)

// GetBackfillState returns the backfill continuation for a site, or nil when
// no backfill was ever started.
func (s *Store) GetBackfillState(ctx context.Context, site string) (*types.BackfillState, error) {
	out, err := s.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName:      &s.tableName,
		ConsistentRead: aws.Bool(true),
		Key: map[string]ddbtypes.AttributeValue{
			"PK": &ddbtypes.AttributeValueMemberS{Value: sitePK(site)},
			"SK": &ddbtypes.AttributeValueMemberS{Value: backfillSK()},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("getting backfill state for %s: %w", site, err)
	}
	if out.Item == nil {
		return nil, nil
	}

	data, err := attributeStr(out.Item, "data")
	if err != nil {
		return nil, fmt.Errorf("backfill state for %s: %w", site, err)
	}
	var st types.BackfillState
	if err := json.Unmarshal([]byte(data), &st); err != nil {
		return nil, fmt.Errorf("decoding backfill state for %s: %w", site, err)
	}
	return &st, nil
}

// PutBackfillState stores the backfill continuation for a site. Called after
// every page write so an interrupted invocation loses at most one page of
// progress, never data.
func (s *Store) PutBackfillState(ctx context.Context, st types.BackfillState) error {
	data, err := json.Marshal(st)
	if err != nil {
		return err
	}
	_, err = s.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: &s.tableName,
		Item: map[string]ddbtypes.AttributeValue{
			"PK":   &ddbtypes.AttributeValueMemberS{Value: sitePK(st.Site)},
			"SK":   &ddbtypes.AttributeValueMemberS{Value: backfillSK()},
			"data": &ddbtypes.AttributeValueMemberS{Value: string(data)},
		},
	})
	if err != nil {
		return fmt.Errorf("putting backfill state for %s: %w", st.Site, err)
	}
	return nil
}

// DeleteBackfillState removes a site's backfill continuation (reset).
func (s *Store) DeleteBackfillState(ctx context.Context, site string) error {
	_, err := s.client.DeleteItem(ctx, &dynamodb.DeleteItemInput{
		TableName: &s.tableName,
		Key: map[string]ddbtypes.AttributeValue{
			"PK": &ddbtypes.AttributeValueMemberS{Value: sitePK(site)},
			"SK": &ddbtypes.AttributeValueMemberS{Value: backfillSK()},
		},
	})
	if err != nil {
		return fmt.Errorf("deleting backfill state for %s: %w", site, err)
	}
	return nil
}
