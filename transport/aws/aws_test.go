package aws

import (
	"context"
	"errors"
	"testing"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill-aws/sns"
	"github.com/ThreeDotsLabs/watermill-aws/sqs"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/drblury/shipflow/internal/runtime/logging"
	"github.com/drblury/shipflow/transport"
)

type mockPublisher struct {
	topic string
	count int
}

func (m *mockPublisher) Publish(topic string, msgs ...*message.Message) error {
	m.topic = topic
	m.count += len(msgs)
	return nil
}

func (m *mockPublisher) Close() error { return nil }

func stubLoader(t *testing.T, err error) {
	t.Helper()
	original := DefaultConfigLoader
	t.Cleanup(func() { DefaultConfigLoader = original })
	DefaultConfigLoader = func(ctx context.Context, opts ...func(*awsconfig.LoadOptions) error) (aws.Config, error) {
		if err != nil {
			return aws.Config{}, err
		}
		return aws.Config{Region: "us-east-1"}, nil
	}
}

func stubSNS(t *testing.T, pub message.Publisher, check func(sns.PublisherConfig)) {
	t.Helper()
	originalResolver, originalPub := TopicResolverFactory, SNSPublisherFactory
	t.Cleanup(func() {
		TopicResolverFactory = originalResolver
		SNSPublisherFactory = originalPub
	})
	TopicResolverFactory = func(accountID, region string) (*sns.GenerateArnTopicResolver, error) {
		return &sns.GenerateArnTopicResolver{}, nil
	}
	SNSPublisherFactory = func(cfg sns.PublisherConfig, _ watermill.LoggerAdapter) (message.Publisher, error) {
		if check != nil {
			check(cfg)
		}
		return pub, nil
	}
}

func awsConfig(typ string, settings map[string]any) transport.Config {
	return transport.Config{Type: typ, Settings: settings}
}

func TestRegister(t *testing.T) {
	transport.DefaultRegistry = transport.NewRegistry()
	Register()

	assert.Equal(t, []string{"sns", "sqs"}, transport.DefaultRegistry.Names())
	assert.False(t, transport.DefaultRegistry.GetCapabilities(SNSName).SupportsCompression)
	assert.Equal(t, 256*1024, transport.DefaultRegistry.GetCapabilities(SQSName).MaxPayloadBytes)
}

func TestBuildSNS(t *testing.T) {
	t.Run("publishes buffers to the topic", func(t *testing.T) {
		stubLoader(t, nil)
		pub := &mockPublisher{}
		stubSNS(t, pub, func(cfg sns.PublisherConfig) {
			assert.Equal(t, "eu-west-1", cfg.AWSConfig.Region)
			assert.Len(t, cfg.OptFns, 1)
		})

		tr, err := BuildSNS(context.Background(), awsConfig(SNSName, map[string]any{
			"topic":    "logs",
			"region":   "eu-west-1",
			"endpoint": "http://localhost:4566",
		}), logging.NewDiscardLogger())
		require.NoError(t, err)

		buf, err := tr.NewBuffer()
		require.NoError(t, err)
		require.NoError(t, buf.Add([]byte("x")))
		require.NoError(t, buf.Close())
		require.NoError(t, tr.SendBatch(context.Background(), buf))
		assert.Equal(t, "logs", pub.topic)
		assert.Equal(t, 1, pub.count)
	})

	t.Run("config loader failure", func(t *testing.T) {
		stubLoader(t, errors.New("no credentials"))
		_, err := BuildSNS(context.Background(), awsConfig(SNSName, map[string]any{"topic": "logs"}), logging.NewDiscardLogger())
		assert.ErrorContains(t, err, "no credentials")
	})

	t.Run("topic is required", func(t *testing.T) {
		stubLoader(t, nil)
		_, err := BuildSNS(context.Background(), awsConfig(SNSName, nil), logging.NewDiscardLogger())
		assert.ErrorContains(t, err, "topic is required")
	})

	t.Run("publisher failure", func(t *testing.T) {
		stubLoader(t, nil)
		stubSNS(t, nil, nil)
		SNSPublisherFactory = func(sns.PublisherConfig, watermill.LoggerAdapter) (message.Publisher, error) {
			return nil, errors.New("publisher error")
		}
		_, err := BuildSNS(context.Background(), awsConfig(SNSName, map[string]any{"topic": "logs"}), logging.NewDiscardLogger())
		assert.ErrorContains(t, err, "publisher error")
	})
}

func TestBuildSQS(t *testing.T) {
	stubLoader(t, nil)
	original := SQSPublisherFactory
	t.Cleanup(func() { SQSPublisherFactory = original })

	pub := &mockPublisher{}
	SQSPublisherFactory = func(cfg sqs.PublisherConfig, _ watermill.LoggerAdapter) (message.Publisher, error) {
		assert.Empty(t, cfg.OptFns)
		return pub, nil
	}

	tr, err := BuildSQS(context.Background(), awsConfig(SQSName, map[string]any{"topic": "ingest"}), logging.NewDiscardLogger())
	require.NoError(t, err)

	buf, err := tr.NewBuffer()
	require.NoError(t, err)
	require.NoError(t, buf.Add([]byte("x")))
	require.NoError(t, buf.Close())
	require.NoError(t, tr.SendBatch(context.Background(), buf))
	assert.Equal(t, "ingest", pub.topic)
}

func TestResolveAccountAndRegion(t *testing.T) {
	log := logging.NewDiscardLogger()

	t.Run("uses config values", func(t *testing.T) {
		accountID, region := resolveAccountAndRegion(Settings{AccountID: "123456789012", Region: "us-west-2"}, log, "us-east-1")
		assert.Equal(t, "123456789012", accountID)
		assert.Equal(t, "us-west-2", region)
	})

	t.Run("uses fallback region", func(t *testing.T) {
		_, region := resolveAccountAndRegion(Settings{AccountID: "123456789012"}, log, "us-east-1")
		assert.Equal(t, "us-east-1", region)
	})

	t.Run("localstack default when account is empty", func(t *testing.T) {
		accountID, _ := resolveAccountAndRegion(Settings{Endpoint: "http://localhost:4566"}, log, "us-east-1")
		assert.Equal(t, localstackAccountID, accountID)
	})

	t.Run("localstack default when account is malformed", func(t *testing.T) {
		accountID, _ := resolveAccountAndRegion(Settings{AccountID: "'42'", Endpoint: "http://localhost:4566"}, log, "")
		assert.Equal(t, localstackAccountID, accountID)
	})
}

func TestEndpointURL(t *testing.T) {
	u, err := endpointURL("")
	assert.NoError(t, err)
	assert.Nil(t, u)

	u, err = endpointURL("http://localhost:4566")
	require.NoError(t, err)
	assert.Equal(t, "localhost:4566", u.Host)

	_, err = endpointURL("http://[::1")
	assert.Error(t, err)
}

func TestStaticCredentials(t *testing.T) {
	creds, err := staticCredentialsProvider("id", "secret").Retrieve(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "id", creds.AccessKeyID)
	assert.Equal(t, "secret", creds.SecretAccessKey)
}
