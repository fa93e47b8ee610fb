// Package services contains server-side business logic: user registration,
// the key registry, secret versioning with recipient fan-out, the
// access-control ledger, and the operation audit log.
package services

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/dmitrijs2005/secretvault/internal/dbx"
	"github.com/dmitrijs2005/secretvault/internal/logging"
	"github.com/dmitrijs2005/secretvault/internal/netx"
	sc "github.com/dmitrijs2005/secretvault/internal/server/config"
	"github.com/dmitrijs2005/secretvault/internal/server/models"
	"github.com/dmitrijs2005/secretvault/internal/server/repositories/repomanager"
	"github.com/google/uuid"

	"github.com/aws/aws-sdk-go-v2/aws"
	v4 "github.com/aws/aws-sdk-go-v2/aws/signer/v4"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// seams for testing the AWS presign flow without a live endpoint
var (
	loadDefaultAWSConfig = awsconfig.LoadDefaultConfig

	newS3ClientFromConfig = func(cfg aws.Config, optFns ...func(*s3.Options)) *s3.Client {
		return s3.NewFromConfig(cfg, optFns...)
	}

	newS3PresignClient = func(c *s3.Client) *s3.PresignClient {
		return s3.NewPresignClient(c)
	}

	presignPutObject = func(pc *s3.PresignClient, ctx context.Context, in *s3.PutObjectInput, optFns ...func(*s3.PresignOptions)) (*v4.PresignedHTTPRequest, error) {
		return pc.PresignPutObject(ctx, in, optFns...)
	}
	presignGetObject = func(pc *s3.PresignClient, ctx context.Context, in *s3.GetObjectInput, optFns ...func(*s3.PresignOptions)) (*v4.PresignedHTTPRequest, error) {
		return pc.PresignGetObject(ctx, in, optFns...)
	}
	uploadArchive = netx.UploadToS3PresignedURL
)

// AuditService records and serves the append-only operation log.
type AuditService struct {
	db          *sql.DB
	repomanager repomanager.RepositoryManager
	config      *sc.Config
	logger      logging.Logger
}

func NewAuditService(db *sql.DB, m repomanager.RepositoryManager, cfg *sc.Config, l logging.Logger) *AuditService {
	return &AuditService{db: db, repomanager: m, config: cfg, logger: l.With("module", "audit")}
}

// Record appends one operation within the caller's transaction, so the audit
// row commits or rolls back together with the state change it describes.
func (s *AuditService) Record(ctx context.Context, tx dbx.DBTX, op *models.Operation) (*models.Operation, error) {
	return s.repomanager.Operations(tx).Create(ctx, op)
}

// ListForSecret returns the audit trail of one secret. Visibility of the
// secret itself must already be established by the caller.
func (s *AuditService) ListForSecret(ctx context.Context, secretID int64) ([]*models.Operation, error) {
	return s.repomanager.Operations(s.db).ListBySecret(ctx, secretID)
}

// Export marshals the full operation log to JSON lines, uploads it to the
// configured S3 bucket through a presigned PUT, and returns a presigned GET
// URL for the archive object.
func (s *AuditService) Export(ctx context.Context) (string, error) {
	ops, err := s.repomanager.Operations(s.db).ListAll(ctx)
	if err != nil {
		return "", err
	}

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	for _, op := range ops {
		if err := enc.Encode(op); err != nil {
			return "", fmt.Errorf("encode operation: %w", err)
		}
	}

	presignClient, err := s.getPresignClient(ctx)
	if err != nil {
		return "", err
	}

	bucket := s.config.S3Bucket
	key := archiveStorageKey()

	putReq, err := presignPutObject(presignClient, ctx, &s3.PutObjectInput{
		Bucket: &bucket,
		Key:    &key,
	}, s3.WithPresignExpires(15*time.Minute))
	if err != nil {
		return "", err
	}

	if err := uploadArchive(putReq.URL, buf.Bytes()); err != nil {
		return "", err
	}

	getReq, err := presignGetObject(presignClient, ctx, &s3.GetObjectInput{
		Bucket: &bucket,
		Key:    &key,
	}, s3.WithPresignExpires(15*time.Minute))
	if err != nil {
		return "", err
	}

	s.logger.Info(ctx, "exported operation log", "key", key, "operations", len(ops))
	return getReq.URL, nil
}

func archiveStorageKey() string {
	d := time.Now()
	return fmt.Sprintf("operations/%d/%02d/%02d/%v.jsonl", d.Year(), d.Month(), d.Day(), uuid.New())
}

func (s *AuditService) getPresignClient(ctx context.Context) (*s3.PresignClient, error) {
	cfg, err := loadDefaultAWSConfig(ctx,
		awsconfig.WithRegion(s.config.S3Region),
		awsconfig.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
			s.config.S3RootUser,
			s.config.S3RootPassword,
			"",
		)))
	if err != nil {
		return nil, err
	}

	client := newS3ClientFromConfig(cfg, func(o *s3.Options) {
		o.BaseEndpoint = aws.String(s.config.S3BaseEndpoint)
		o.UsePathStyle = true
	})

	return newS3PresignClient(client), nil
}
