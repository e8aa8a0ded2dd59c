// Package s3 provides a partitioned object-store sink backed by minio-go. Each
// buffer becomes one object whose key carries the buffer's partition tuple.
package s3

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
	"strings"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	sferrors "github.com/drblury/shipflow/internal/runtime/errors"
	"github.com/drblury/shipflow/internal/runtime/event"
	"github.com/drblury/shipflow/internal/runtime/ids"
	"github.com/drblury/shipflow/internal/runtime/logging"
	"github.com/drblury/shipflow/transport"
)

// TransportName is the name used to register this transport.
const TransportName = "s3"

const (
	DefaultEndpoint    = "s3.amazonaws.com"
	DefaultContentType = "application/x-ndjson"
	nullPartition      = "null"
)

// Config holds the S3 specific settings.
type Config struct {
	Endpoint        string `mapstructure:"endpoint"`
	Region          string `mapstructure:"region"`
	Bucket          string `mapstructure:"bucket"`
	Prefix          string `mapstructure:"prefix"`
	AccessKeyID     string `mapstructure:"access_key_id"`
	SecretAccessKey string `mapstructure:"secret_access_key"`
	SessionToken    string `mapstructure:"session_token"`
	UseTLS          *bool  `mapstructure:"use_tls"`
	CreateBucket    bool   `mapstructure:"create_bucket"`
	ContentType     string `mapstructure:"content_type"`
}

// ObjectStore is the part of *minio.Client the sink uses.
type ObjectStore interface {
	PutObject(ctx context.Context, bucket, object string, r io.Reader, size int64, opts minio.PutObjectOptions) (minio.UploadInfo, error)
	BucketExists(ctx context.Context, bucket string) (bool, error)
	MakeBucket(ctx context.Context, bucket string, opts minio.MakeBucketOptions) error
}

// ClientFactory allows overriding the client creation for testing.
var ClientFactory = func(c Config) (ObjectStore, error) {
	secure := true
	if c.UseTLS != nil {
		secure = *c.UseTLS
	}
	opts := &minio.Options{Secure: secure, Region: c.Region}
	if c.AccessKeyID != "" {
		opts.Creds = credentials.NewStaticV4(c.AccessKeyID, c.SecretAccessKey, c.SessionToken)
	} else {
		opts.Creds = credentials.NewChainCredentials([]credentials.Provider{
			&credentials.EnvAWS{},
			&credentials.IAM{},
		})
	}
	return minio.New(c.Endpoint, opts)
}

// Sink uploads buffers as objects.
type Sink struct {
	transport.Base
	cfg    Config
	store  ObjectStore
	logger logging.ServiceLogger
}

// Register registers the S3 transport with the default registry.
func Register() {
	transport.RegisterWithCapabilities(TransportName, Build, transport.S3Capabilities)
}

// Build creates the sink and, when asked to, the bucket.
func Build(ctx context.Context, cfg transport.Config, logger logging.ServiceLogger) (transport.Transport, error) {
	var c Config
	if err := cfg.Decode(&c); err != nil {
		return nil, err
	}
	if c.Bucket == "" {
		return nil, errors.New("s3: bucket is required")
	}
	if c.Endpoint == "" {
		c.Endpoint = DefaultEndpoint
	}
	if c.ContentType == "" {
		c.ContentType = DefaultContentType
	}

	store, err := ClientFactory(c)
	if err != nil {
		return nil, fmt.Errorf("s3: %w", err)
	}
	if c.CreateBucket {
		if err := ensureBucket(ctx, store, c); err != nil {
			return nil, err
		}
	}
	return &Sink{Base: transport.NewBase(cfg), cfg: c, store: store, logger: logger}, nil
}

func ensureBucket(ctx context.Context, store ObjectStore, c Config) error {
	exists, err := store.BucketExists(ctx, c.Bucket)
	if err != nil {
		return fmt.Errorf("s3: bucket %s: %w", c.Bucket, err)
	}
	if exists {
		return nil
	}
	if err := store.MakeBucket(ctx, c.Bucket, minio.MakeBucketOptions{Region: c.Region}); err != nil {
		return fmt.Errorf("s3: create bucket %s: %w", c.Bucket, err)
	}
	return nil
}

// Partitioned is always true: the object key is derived from the tuple.
func (s *Sink) Partitioned() bool { return true }

func (s *Sink) SendBatch(ctx context.Context, buf *transport.Buffer) error {
	key := ObjectKey(s.cfg.Prefix, buf.Partitions(), ids.CreateULID()+".json"+buf.Codec().Extension())
	data := buf.Bytes()

	info, err := s.store.PutObject(ctx, s.cfg.Bucket, key, bytes.NewReader(data), int64(len(data)), minio.PutObjectOptions{
		ContentType:     s.cfg.ContentType,
		ContentEncoding: buf.ContentEncoding(),
	})
	if err != nil {
		return sferrors.NewTransportError(TransportName, fmt.Errorf("put %s: %w", key, err))
	}
	s.logger.Debug("Uploaded object", logging.LogFields{
		"bucket":  s.cfg.Bucket,
		"key":     key,
		"size":    info.Size,
		"records": buf.Records(),
	})
	return nil
}

// ObjectKey builds prefix/name=value/.../file. Absent values are written as
// null and values are path escaped.
func ObjectKey(prefix string, partitions event.Partitions, file string) string {
	parts := make([]string, 0, len(partitions)+2)
	if p := strings.Trim(prefix, "/"); p != "" {
		parts = append(parts, p)
	}
	for _, part := range partitions {
		v := nullPartition
		if part.Value != nil {
			v = url.PathEscape(*part.Value)
		}
		parts = append(parts, part.Name+"="+v)
	}
	parts = append(parts, file)
	return strings.Join(parts, "/")
}

// Capabilities returns the capabilities of this transport.
func Capabilities() transport.Capabilities {
	return transport.S3Capabilities
}
