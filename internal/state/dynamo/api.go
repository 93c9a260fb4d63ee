package dynamo

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	ddbtypes "github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

// DDBAPI is the subset of the DynamoDB client used by the store, narrow for
// unit-test mocking.
type DDBAPI interface {
	PutItem(ctx context.Context, input *dynamodb.PutItemInput, opts ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
	GetItem(ctx context.Context, input *dynamodb.GetItemInput, opts ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error)
	Query(ctx context.Context, input *dynamodb.QueryInput, opts ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error)
	DeleteItem(ctx context.Context, input *dynamodb.DeleteItemInput, opts ...func(*dynamodb.Options)) (*dynamodb.DeleteItemOutput, error)
	DescribeTable(ctx context.Context, input *dynamodb.DescribeTableInput, opts ...func(*dynamodb.Options)) (*dynamodb.DescribeTableOutput, error)
	CreateTable(ctx context.Context, input *dynamodb.CreateTableInput, opts ...func(*dynamodb.Options)) (*dynamodb.CreateTableOutput, error)
	UpdateTimeToLive(ctx context.Context, input *dynamodb.UpdateTimeToLiveInput, opts ...func(*dynamodb.Options)) (*dynamodb.UpdateTimeToLiveOutput, error)
}

// attributeStr extracts a string attribute from an item.
func attributeStr(item map[string]ddbtypes.AttributeValue, name string) (string, error) {
	attr, ok := item[name]
	if !ok {
		return "", fmt.Errorf("attribute %q missing", name)
	}
	var s string
	if err := attributevalue.Unmarshal(attr, &s); err != nil {
		return "", fmt.Errorf("unmarshaling %q: %w", name, err)
	}
	return s, nil
}

// attributeInt extracts a numeric attribute from an item.
func attributeInt(item map[string]ddbtypes.AttributeValue, name string) (int64, error) {
	attr, ok := item[name]
	if !ok {
		return 0, fmt.Errorf("attribute %q missing", name)
	}
	var n int64
	if err := attributevalue.Unmarshal(attr, &n); err != nil {
		return 0, fmt.Errorf("unmarshaling %q: %w", name, err)
	}
	return n, nil
}
