// Package aws provides the SNS and SQS sinks backed by watermill-aws. Both
// accept an endpoint override for LocalStack.
package aws

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill-aws/sns"
	"github.com/ThreeDotsLabs/watermill-aws/sqs"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	amazonsns "github.com/aws/aws-sdk-go-v2/service/sns"
	amazonsqs "github.com/aws/aws-sdk-go-v2/service/sqs"
	smithyendpoints "github.com/aws/smithy-go/endpoints"

	"github.com/drblury/shipflow/internal/runtime/logging"
	"github.com/drblury/shipflow/transport"
	"github.com/drblury/shipflow/transport/pubsub"
)

// Names used to register the sinks.
const (
	SNSName = "sns"
	SQSName = "sqs"
)

const (
	localstackAccountID = "000000000000"
	awsAccountIDLength  = 12
)

// DefaultConfigLoader allows overriding the AWS config loader for testing.
var DefaultConfigLoader = awsconfig.LoadDefaultConfig

// TopicResolverFactory allows overriding the topic resolver creation for testing.
var TopicResolverFactory = sns.NewGenerateArnTopicResolver

// SNSPublisherFactory allows overriding the SNS publisher creation for testing.
var SNSPublisherFactory = func(cfg sns.PublisherConfig, logger watermill.LoggerAdapter) (message.Publisher, error) {
	return sns.NewPublisher(cfg, logger)
}

// SQSPublisherFactory allows overriding the SQS publisher creation for testing.
var SQSPublisherFactory = func(cfg sqs.PublisherConfig, logger watermill.LoggerAdapter) (message.Publisher, error) {
	return sqs.NewPublisher(cfg, logger)
}

// Settings are the AWS specific keys of the sink config. The topic is the
// SNS topic name or the SQS queue name.
type Settings struct {
	pubsub.Settings `mapstructure:",squash"`
	Region          string `mapstructure:"region"`
	AccountID       string `mapstructure:"account_id"`
	AccessKeyID     string `mapstructure:"access_key_id"`
	SecretAccessKey string `mapstructure:"secret_access_key"`
	Endpoint        string `mapstructure:"endpoint"`
}

// Register registers both sinks with the default registry.
func Register() {
	transport.RegisterWithCapabilities(SNSName, BuildSNS, transport.SNSCapabilities)
	transport.RegisterWithCapabilities(SQSName, BuildSQS, transport.SQSCapabilities)
}

// BuildSNS creates a sink that publishes each buffer to an SNS topic.
func BuildSNS(ctx context.Context, cfg transport.Config, logger logging.ServiceLogger) (transport.Transport, error) {
	s, awsCfg, err := load(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}
	wlog := logging.NewWatermillAdapter(logger)

	accountID, region := resolveAccountAndRegion(s, logger, awsCfg.Region)
	logger.Info("Create SNS publisher", logging.LogFields{"accountID": accountID, "region": region})
	resolver, err := TopicResolverFactory(accountID, region)
	if err != nil {
		logger.Error("Failed to create SNS topic resolver", err, logging.LogFields{"accountID": accountID, "region": region})
		return nil, err
	}

	pubCfg := sns.PublisherConfig{
		TopicResolver: resolver,
		AWSConfig:     *awsCfg,
		Marshaler:     sns.DefaultMarshalerUnmarshaler{},
	}
	if endpoint, err := endpointURL(s.Endpoint); err != nil {
		return nil, err
	} else if endpoint != nil {
		pubCfg.OptFns = []func(*amazonsns.Options){
			amazonsns.WithEndpointResolverV2(sns.OverrideEndpointResolver{
				Endpoint: smithyendpoints.Endpoint{URI: *endpoint},
			}),
		}
	}

	publisher, err := SNSPublisherFactory(pubCfg, wlog)
	if err != nil {
		return nil, err
	}
	return pubsub.New(cfg, publisher, s.Settings, logger)
}

// BuildSQS creates a sink that sends each buffer to an SQS queue.
func BuildSQS(ctx context.Context, cfg transport.Config, logger logging.ServiceLogger) (transport.Transport, error) {
	s, awsCfg, err := load(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}

	pubCfg := sqs.PublisherConfig{
		AWSConfig: *awsCfg,
		Marshaler: sqs.DefaultMarshalerUnmarshaler{},
	}
	if endpoint, err := endpointURL(s.Endpoint); err != nil {
		return nil, err
	} else if endpoint != nil {
		pubCfg.OptFns = []func(*amazonsqs.Options){
			amazonsqs.WithEndpointResolverV2(sqs.OverrideEndpointResolver{
				Endpoint: smithyendpoints.Endpoint{URI: *endpoint},
			}),
		}
	}

	publisher, err := SQSPublisherFactory(pubCfg, logging.NewWatermillAdapter(logger))
	if err != nil {
		return nil, err
	}
	return pubsub.New(cfg, publisher, s.Settings, logger)
}

func load(ctx context.Context, cfg transport.Config, logger logging.ServiceLogger) (Settings, *aws.Config, error) {
	var s Settings
	if err := cfg.Decode(&s); err != nil {
		return s, nil, err
	}
	if err := s.Validate(); err != nil {
		return s, nil, fmt.Errorf("%s: %w", cfg.Type, err)
	}
	awsCfg, err := createAWSConfig(ctx, s, logger)
	if err != nil {
		return s, nil, err
	}
	logger.Info("Created AWS config", logging.LogFields{
		"region":          awsCfg.Region,
		"custom_endpoint": s.Endpoint != "",
	})
	return s, awsCfg, nil
}

func createAWSConfig(ctx context.Context, s Settings, logger logging.ServiceLogger) (*aws.Config, error) {
	var opts []func(*awsconfig.LoadOptions) error
	if s.Region != "" {
		opts = append(opts, awsconfig.WithRegion(s.Region))
	}
	if s.AccessKeyID != "" && s.SecretAccessKey != "" {
		logger.Info("Using static AWS credentials from config", nil)
		opts = append(opts, awsconfig.WithCredentialsProvider(staticCredentialsProvider(s.AccessKeyID, s.SecretAccessKey)))
	}

	awsCfg, err := DefaultConfigLoader(ctx, opts...)
	if err != nil {
		logger.Error("Failed to load AWS default config", err, logging.LogFields{"requested_region": s.Region})
		return nil, err
	}
	// Ensure region is set even if the loader ignores options
	if s.Region != "" {
		awsCfg.Region = s.Region
	}
	return &awsCfg, nil
}

func resolveAccountAndRegion(s Settings, logger logging.ServiceLogger, fallbackRegion string) (string, string) {
	accountID := strings.Trim(s.AccountID, "\"' ")
	region := s.Region
	if region == "" {
		region = fallbackRegion
	}
	if s.Endpoint == "" {
		return accountID, region
	}

	if accountID == "" {
		logger.Info("AWS account ID empty; using LocalStack default", logging.LogFields{"accountID": localstackAccountID})
		return localstackAccountID, region
	}
	if len(accountID) != awsAccountIDLength {
		logger.Info("Invalid AWS account ID; falling back to LocalStack default", logging.LogFields{"accountID": accountID})
		return localstackAccountID, region
	}
	return accountID, region
}

func endpointURL(endpoint string) (*url.URL, error) {
	if endpoint == "" {
		return nil, nil
	}
	parsed, err := url.Parse(endpoint)
	if err != nil {
		return nil, fmt.Errorf("failed to parse AWS endpoint: %w", err)
	}
	return parsed, nil
}

func staticCredentialsProvider(accessKeyID, secretAccessKey string) aws.CredentialsProvider {
	return aws.CredentialsProviderFunc(func(ctx context.Context) (aws.Credentials, error) {
		return aws.Credentials{
			AccessKeyID:     accessKeyID,
			SecretAccessKey: secretAccessKey,
		}, nil
	})
}
