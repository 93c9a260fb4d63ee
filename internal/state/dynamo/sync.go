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

// GetSyncState returns the sync cursor for a site, or nil when the site has
// never synced. Reads are strongly consistent: the cursor decides the next
// fetch window and a stale read would refetch or skip data.
func (s *Store) GetSyncState(ctx context.Context, site string) (*types.SyncState, error) {
	out, err := s.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName:      &s.tableName,
		ConsistentRead: aws.Bool(true),
		Key: map[string]ddbtypes.AttributeValue{
			"PK": &ddbtypes.AttributeValueMemberS{Value: sitePK(site)},
			"SK": &ddbtypes.AttributeValueMemberS{Value: syncSK()},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("getting sync state for %s: %w", site, err)
	}
	if out.Item == nil {
		return nil, nil
	}

	data, err := attributeStr(out.Item, "data")
	if err != nil {
		return nil, fmt.Errorf("sync state for %s: %w", site, err)
	}
	var st types.SyncState
	if err := json.Unmarshal([]byte(data), &st); err != nil {
		return nil, fmt.Errorf("decoding sync state for %s: %w", site, err)
	}
	return &st, nil
}

// PutSyncState stores the sync cursor for a site.
func (s *Store) PutSyncState(ctx context.Context, st types.SyncState) error {
	data, err := json.Marshal(st)
	if err != nil {
		return err
	}
	_, err = s.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: &s.tableName,
		Item: map[string]ddbtypes.AttributeValue{
			"PK":   &ddbtypes.AttributeValueMemberS{Value: sitePK(st.Site)},
			"SK":   &ddbtypes.AttributeValueMemberS{Value: syncSK()},
			"data": &ddbtypes.AttributeValueMemberS{Value: string(data)},
		},
	})
	if err != nil {
		return fmt.Errorf("putting sync state for %s: %w", st.Site, err)
	}
	return nil
}
