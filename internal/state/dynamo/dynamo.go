// Package dynamo implements the state.Store and state.Locker interfaces on a
// single DynamoDB table.
package dynamo

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	ddbtypes "github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/vitals-systems/siphon/internal/state"
	"github.com/vitals-systems/siphon/pkg/types"
)

// Compile-time interface satisfaction checks.
var (
	_ state.Store  = (*Store)(nil)
	_ state.Locker = (*Store)(nil)
)

// defaultMetricsTTL bounds how long archive run metrics are retained.
const defaultMetricsTTL = 30 * 24 * time.Hour

// Store implements the state interfaces backed by one DynamoDB table.
type Store struct {
	client      DDBAPI
	tableName   string
	logger      *slog.Logger
	metricsTTL  time.Duration
	createTable bool
}

// Option customizes a Store.
type Option func(*Store)

// WithLogger sets the store logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Store) { s.logger = logger }
}

// WithCreateTable makes Start create the table when it does not exist. Meant
// for local stacks; production tables come from infrastructure.
func WithCreateTable() Option {
	return func(s *Store) { s.createTable = true }
}

// WithMetricsTTL overrides the archive-metrics retention.
func WithMetricsTTL(ttl time.Duration) Option {
	return func(s *Store) { s.metricsTTL = ttl }
}

// New creates a Store from connection settings.
func New(ctx context.Context, cfg types.StateStoreConfig, opts ...Option) (*Store, error) {
	var loadOpts []func(*awsconfig.LoadOptions) error
	if cfg.Region != "" {
		loadOpts = append(loadOpts, awsconfig.WithRegion(cfg.Region))
	}

	// For DynamoDB Local: use static credentials and a custom endpoint.
	if cfg.Endpoint != "" {
		loadOpts = append(loadOpts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider("local", "local", ""),
		))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, fmt.Errorf("loading AWS config: %w", err)
	}

	var clientOpts []func(*dynamodb.Options)
	if cfg.Endpoint != "" {
		clientOpts = append(clientOpts, func(o *dynamodb.Options) {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		})
	}

	s := &Store{
		client:     dynamodb.NewFromConfig(awsCfg, clientOpts...),
		tableName:  cfg.TableName,
		logger:     slog.Default(),
		metricsTTL: defaultMetricsTTL,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// NewWithClient wraps an existing DynamoDB client, mainly for Lambda workers
// that build their AWS clients once per cold start.
func NewWithClient(client DDBAPI, tableName string, opts ...Option) *Store {
	s := &Store{
		client:     client,
		tableName:  tableName,
		logger:     slog.Default(),
		metricsTTL: defaultMetricsTTL,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Start initializes the store: optionally creates the table, then pings.
func (s *Store) Start(ctx context.Context) error {
	if s.createTable {
		if err := s.ensureTable(ctx); err != nil {
			return err
		}
	}
	return s.Ping(ctx)
}

// Stop is a no-op for DynamoDB (no persistent connections to close).
func (s *Store) Stop(_ context.Context) error {
	return nil
}

// Ping checks connectivity by describing the table.
func (s *Store) Ping(ctx context.Context) error {
	_, err := s.client.DescribeTable(ctx, &dynamodb.DescribeTableInput{
		TableName: &s.tableName,
	})
	if err != nil {
		return fmt.Errorf("dynamodb ping failed: %w", err)
	}
	return nil
}

func (s *Store) ensureTable(ctx context.Context) error {
	_, err := s.client.CreateTable(ctx, &dynamodb.CreateTableInput{
		TableName: &s.tableName,
		KeySchema: []ddbtypes.KeySchemaElement{
			{AttributeName: aws.String("PK"), KeyType: ddbtypes.KeyTypeHash},
			{AttributeName: aws.String("SK"), KeyType: ddbtypes.KeyTypeRange},
		},
		AttributeDefinitions: []ddbtypes.AttributeDefinition{
			{AttributeName: aws.String("PK"), AttributeType: ddbtypes.ScalarAttributeTypeS},
			{AttributeName: aws.String("SK"), AttributeType: ddbtypes.ScalarAttributeTypeS},
		},
		BillingMode: ddbtypes.BillingModePayPerRequest,
	})
	if err != nil {
		var riue *ddbtypes.ResourceInUseException
		if errors.As(err, &riue) {
			return nil // table already exists
		}
		return fmt.Errorf("creating table: %w", err)
	}

	// Enable TTL on the "ttl" attribute.
	_, err = s.client.UpdateTimeToLive(ctx, &dynamodb.UpdateTimeToLiveInput{
		TableName: &s.tableName,
		TimeToLiveSpecification: &ddbtypes.TimeToLiveSpecification{
			Enabled:       aws.Bool(true),
			AttributeName: aws.String("ttl"),
		},
	})
	if err != nil {
		s.logger.Warn("failed to enable TTL (may already be enabled)", "error", err)
	}

	return nil
}

// isConditionalCheckFailed returns true if the error is a DynamoDB ConditionalCheckFailedException.
func isConditionalCheckFailed(err error) bool {
	var ccfe *ddbtypes.ConditionalCheckFailedException
	return errors.As(err, &ccfe)
}
