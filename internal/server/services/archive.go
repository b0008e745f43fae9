package services

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	sc "github.com/elecmate/certsync/internal/server/config"
	"github.com/elecmate/certsync/internal/server/models"
)

// Archiver keeps an immutable copy of a completed report.
type Archiver interface {
	Archive(ctx context.Context, r *models.Report) error
}

var (
	loadDefaultAWSConfig = config.LoadDefaultConfig

	newS3ClientFromConfig = func(cfg aws.Config, optFns ...func(*s3.Options)) *s3.Client {
		return s3.NewFromConfig(cfg, optFns...)
	}

	putObject = func(c *s3.Client, ctx context.Context, in *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
		return c.PutObject(ctx, in, optFns...)
	}
)

// S3Archiver writes completed reports as JSON objects to an S3 compatible
// bucket, one object per version.
type S3Archiver struct {
	config *sc.Config
	client *s3.Client
}

func NewS3Archiver(ctx context.Context, c *sc.Config) (*S3Archiver, error) {
	cfg, err := loadDefaultAWSConfig(ctx,
		config.WithRegion(c.S3Region),
		config.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
			c.S3RootUser,
			c.S3RootPassword,
			"",
		)))
	if err != nil {
		return nil, fmt.Errorf("load s3 config: %w", err)
	}

	client := newS3ClientFromConfig(cfg, func(o *s3.Options) {
		o.BaseEndpoint = aws.String(c.S3BaseEndpoint)
		o.UsePathStyle = true
	})

	return &S3Archiver{config: c, client: client}, nil
}

// ArchiveKey is the object key of one archived report version.
func ArchiveKey(r *models.Report) string {
	return fmt.Sprintf("reports/%s/%s/v%06d.json", r.UserID, r.ID, r.Version)
}

type archivedReport struct {
	ReportID          string          `json:"report_id"`
	ReportType        string          `json:"report_type"`
	CustomerID        string          `json:"customer_id,omitempty"`
	CertificateNumber string          `json:"certificate_number"`
	Status            string          `json:"status"`
	Version           int64           `json:"version"`
	Payload           json.RawMessage `json:"payload"`
	UpdatedAt         time.Time       `json:"updated_at"`
	ArchivedAt        time.Time       `json:"archived_at"`
}

func (a *S3Archiver) Archive(ctx context.Context, r *models.Report) error {
	body, err := json.Marshal(archivedReport{
		ReportID:          r.ID,
		ReportType:        r.ReportType,
		CustomerID:        r.CustomerID,
		CertificateNumber: r.CertificateNumber,
		Status:            r.Status,
		Version:           r.Version,
		Payload:           json.RawMessage(r.Payload),
		UpdatedAt:         r.UpdatedAt,
		ArchivedAt:        time.Now().UTC(),
	})
	if err != nil {
		return fmt.Errorf("encode archive: %w", err)
	}

	bucket := a.config.S3Bucket
	key := ArchiveKey(r)
	_, err = putObject(a.client, ctx, &s3.PutObjectInput{
		Bucket:      &bucket,
		Key:         &key,
		Body:        bytes.NewReader(body),
		ContentType: aws.String("application/json"),
	})
	if err != nil {
		return fmt.Errorf("put %s: %w", key, err)
	}
	return nil
}
