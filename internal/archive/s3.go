// Package archive exports finished trips to S3-compatible object storage.
package archive

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/tripcue/tripcue/internal/metrics"
	"github.com/tripcue/tripcue/pkg/types"
)

// Exporter writes trip artifacts to an S3/MinIO bucket.
type Exporter struct {
	client *s3.Client
	bucket string
	prefix string
	logger *slog.Logger
}

// Config holds S3/MinIO connection configuration.
type Config struct {
	// Endpoint for MinIO (e.g., "minio.internal:9000"); empty for AWS S3
	Endpoint string

	// Bucket name
	Bucket string

	// Region (required for AWS S3, optional for MinIO)
	Region string

	// Credentials; the default AWS chain applies when empty
	AccessKeyID     string
	SecretAccessKey string

	// UseSSL enables HTTPS for custom endpoints
	UseSSL bool

	// Prefix is prepended to all artifact keys
	Prefix string
}

// NewExporter creates an exporter bound to one bucket.
func NewExporter(cfg *Config, logger *slog.Logger) (*Exporter, error) {
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("bucket name is required")
	}
	if logger == nil {
		logger = slog.Default()
	}

	region := cfg.Region
	if region == "" {
		region = "us-east-1"
	}

	var opts []func(*awsconfig.LoadOptions) error
	opts = append(opts, awsconfig.WithRegion(region))

	if cfg.AccessKeyID != "" && cfg.SecretAccessKey != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(
				cfg.AccessKeyID,
				cfg.SecretAccessKey,
				"",
			),
		))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(context.Background(), opts...)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}

	var s3Opts []func(*s3.Options)
	if cfg.Endpoint != "" {
		scheme := "http"
		if cfg.UseSSL {
			scheme = "https"
		}
		endpoint := fmt.Sprintf("%s://%s", scheme, cfg.Endpoint)

		s3Opts = append(s3Opts, func(o *s3.Options) {
			o.BaseEndpoint = aws.String(endpoint)
			o.UsePathStyle = true // required for MinIO
		})
	}

	return &Exporter{
		client: s3.NewFromConfig(awsCfg, s3Opts...),
		bucket: cfg.Bucket,
		prefix: cfg.Prefix,
		logger: logger,
	}, nil
}

// tripArtifact is the JSON document written per exported trip.
type tripArtifact struct {
	TripID     string                 `json:"trip_id"`
	ExportedAt time.Time              `json:"exported_at"`
	Decisions  []*types.PointDecision `json:"decisions"`
}

// ExportDecisions uploads a trip's decisions as a JSON artifact and
// returns the object key. Keys are content-addressed so re-exporting an
// unchanged trip overwrites the same object.
func (e *Exporter) ExportDecisions(ctx context.Context, tripID string, decisions []*types.PointDecision) (string, error) {
	artifact := tripArtifact{
		TripID:     tripID,
		ExportedAt: time.Now().UTC(),
		Decisions:  decisions,
	}

	body, err := json.Marshal(artifact.Decisions)
	if err != nil {
		metrics.ArchiveExportsTotal.WithLabelValues("error").Inc()
		return "", fmt.Errorf("marshal decisions: %w", err)
	}

	hash := sha256.Sum256(body)
	key := e.key(fmt.Sprintf("%s/%s.json", tripID, hex.EncodeToString(hash[:8])))

	full, err := json.Marshal(artifact)
	if err != nil {
		metrics.ArchiveExportsTotal.WithLabelValues("error").Inc()
		return "", fmt.Errorf("marshal artifact: %w", err)
	}

	_, err = e.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(e.bucket),
		Key:           aws.String(key),
		Body:          bytes.NewReader(full),
		ContentType:   aws.String("application/json"),
		ContentLength: aws.Int64(int64(len(full))),
	})
	if err != nil {
		metrics.ArchiveExportsTotal.WithLabelValues("error").Inc()
		return "", fmt.Errorf("put object: %w", err)
	}

	metrics.ArchiveExportsTotal.WithLabelValues("success").Inc()
	e.logger.Info("trip archived",
		slog.String("trip_id", tripID),
		slog.String("bucket", e.bucket),
		slog.String("key", key),
		slog.Int("bytes", len(full)))

	return key, nil
}

// Fetch retrieves a previously exported artifact.
func (e *Exporter) Fetch(ctx context.Context, key string) ([]byte, error) {
	result, err := e.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(e.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return nil, fmt.Errorf("get object: %w", err)
	}
	defer result.Body.Close()

	return io.ReadAll(result.Body)
}

// ListTrips lists exported artifacts for a trip.
func (e *Exporter) ListTrips(ctx context.Context, tripID string) ([]string, error) {
	var keys []string
	paginator := s3.NewListObjectsV2Paginator(e.client, &s3.ListObjectsV2Input{
		Bucket: aws.String(e.bucket),
		Prefix: aws.String(e.key(tripID + "/")),
	})

	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("list objects: %w", err)
		}
		for _, obj := range page.Contents {
			keys = append(keys, *obj.Key)
		}
	}

	return keys, nil
}

func (e *Exporter) key(path string) string {
	if e.prefix == "" {
		return path
	}
	return e.prefix + "/" + path
}
