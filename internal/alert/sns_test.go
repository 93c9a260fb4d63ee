package alert

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/sns"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vitals-systems/siphon/pkg/types"
)

type mockSNS struct {
	published []*sns.PublishInput
}

func (m *mockSNS) Publish(_ context.Context, input *sns.PublishInput, _ ...func(*sns.Options)) (*sns.PublishOutput, error) {
	m.published = append(m.published, input)
	return &sns.PublishOutput{}, nil
}

func TestSNSSink_Send(t *testing.T) {
	mock := &mockSNS{}
	sink, err := NewSNSSink("arn:aws:sns:us-east-1:123456789:alerts", WithSNSClient(mock))
	require.NoError(t, err)

	alert := types.Alert{
		Level:     types.AlertLevelError,
		Category:  "archive_verify_failed",
		Site:      "denver-plant",
		Message:   "cold object missing after upload",
		Timestamp: time.Date(2026, 2, 22, 10, 0, 0, 0, time.UTC),
	}

	err = sink.Send(context.Background(), alert)
	require.NoError(t, err)

	require.Len(t, mock.published, 1)
	pub := mock.published[0]
	assert.Equal(t, "arn:aws:sns:us-east-1:123456789:alerts", *pub.TopicArn)
	assert.Equal(t, "[error] archive_verify_failed denver-plant", *pub.Subject)
	assert.Equal(t, "error", *pub.MessageAttributes["level"].StringValue)
	assert.Equal(t, "denver-plant", *pub.MessageAttributes["site"].StringValue)

	var decoded types.Alert
	require.NoError(t, json.Unmarshal([]byte(*pub.Message), &decoded))
	assert.Equal(t, types.AlertLevelError, decoded.Level)
	assert.Equal(t, "denver-plant", decoded.Site)
	assert.Equal(t, "cold object missing after upload", decoded.Message)
}

func TestSNSSink_Name(t *testing.T) {
	mock := &mockSNS{}
	sink, err := NewSNSSink("arn:aws:sns:us-east-1:123456789:alerts", WithSNSClient(mock))
	require.NoError(t, err)
	assert.Equal(t, "sns", sink.Name())
}

func TestSNSSink_EmptyTopicARN(t *testing.T) {
	_, err := NewSNSSink("")
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "topic ARN required")
}

func TestSNSSink_SubjectTruncation(t *testing.T) {
	mock := &mockSNS{}
	sink, err := NewSNSSink("arn:aws:sns:us-east-1:123456789:alerts", WithSNSClient(mock))
	require.NoError(t, err)

	alert := types.Alert{
		Level:     types.AlertLevelWarning,
		Category:  "freshness",
		Site:      "this-is-a-very-long-site-name-that-exceeds-the-normal-subject-length-limit-for-sns-messages-in-practice",
		Message:   "test",
		Timestamp: time.Now(),
	}

	err = sink.Send(context.Background(), alert)
	require.NoError(t, err)
	assert.LessOrEqual(t, len(*mock.published[0].Subject), 100)
}
