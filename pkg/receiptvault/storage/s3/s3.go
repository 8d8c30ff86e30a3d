package s3

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"
	"github.com/tendant/receipt-vault/pkg/receiptvault"
)

// Config options for the S3 vault backend
type Config struct {
	Region          string // AWS region
	Bucket          string // S3 bucket name; must have versioning and Object Lock enabled
	AccessKeyID     string // AWS access key ID
	SecretAccessKey string // AWS secret access key
	Endpoint        string // Optional custom endpoint for S3-compatible services
	UsePathStyle    bool   // Use path-style addressing (default: false)

	// Retention lock mode. COMPLIANCE (the default) cannot be shortened or
	// removed even by the bucket owner; GOVERNANCE allows privileged
	// override and is only suitable for testing.
	LockMode string

	// Server-side encryption options
	EnableSSE    bool   // Enable server-side encryption
	SSEAlgorithm string // SSE algorithm (AES256 or aws:kms)
	SSEKMSKeyID  string // Optional KMS key ID for aws:kms algorithm

	// MinIO/S3-compatible service options
	CreateBucketIfNotExist bool // Create an Object Lock enabled bucket if it doesn't exist
}

// Backend is an S3 Object Lock implementation of receiptvault.VaultStore.
//
// Write-once enforcement lives in the bucket itself: Put requests a
// COMPLIANCE retention lock and refuses to land on an occupied key via a
// conditional write, and the legal hold flag is the S3 object-level hold.
// Nothing in this backend can delete or overwrite a stored artifact.
type Backend struct {
	client        *s3.Client
	bucket        string
	presignClient *s3.PresignClient
	lockMode      types.ObjectLockMode
	config        Config
}

// New creates a new S3 vault backend
func New(config Config) (*Backend, error) {
	if config.Bucket == "" {
		return nil, errors.New("bucket name is required")
	}

	if config.Region == "" {
		config.Region = "us-east-1"
	}

	lockMode := types.ObjectLockModeCompliance
	if strings.EqualFold(config.LockMode, "GOVERNANCE") {
		lockMode = types.ObjectLockModeGovernance
	}

	// Set up AWS config
	var awsCfg aws.Config
	var err error

	if config.AccessKeyID != "" && config.SecretAccessKey != "" {
		// Use provided credentials
		awsCfg, err = awsconfig.LoadDefaultConfig(context.Background(),
			awsconfig.WithRegion(config.Region),
			awsconfig.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
				config.AccessKeyID,
				config.SecretAccessKey,
				"",
			)),
		)
	} else {
		// Use default credential chain
		awsCfg, err = awsconfig.LoadDefaultConfig(context.Background(),
			awsconfig.WithRegion(config.Region),
		)
	}

	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	// Configure S3 client options
	var s3Options []func(*s3.Options)

	// Custom endpoint for S3-compatible services (MinIO, etc.)
	if config.Endpoint != "" {
		s3Options = append(s3Options, func(o *s3.Options) {
			o.BaseEndpoint = aws.String(config.Endpoint)
			o.UsePathStyle = config.UsePathStyle
		})
	}

	client := s3.NewFromConfig(awsCfg, s3Options...)

	backend := &Backend{
		client:        client,
		bucket:        config.Bucket,
		presignClient: s3.NewPresignClient(client),
		lockMode:      lockMode,
		config:        config,
	}

	if config.CreateBucketIfNotExist {
		if err := backend.createBucketIfNotExists(context.Background()); err != nil {
			return nil, fmt.Errorf("failed to create bucket: %w", err)
		}
	}

	return backend, nil
}

// createBucketIfNotExists creates the bucket with Object Lock enabled if it
// doesn't exist. Object Lock can only be turned on at bucket creation.
func (b *Backend) createBucketIfNotExists(ctx context.Context) error {
	_, err := b.client.HeadBucket(ctx, &s3.HeadBucketInput{
		Bucket: aws.String(b.bucket),
	})

	if err == nil {
		// Bucket exists
		return nil
	}

	var notFound *types.NotFound
	var noSuchBucket *types.NoSuchBucket

	if !errors.As(err, &notFound) && !errors.As(err, &noSuchBucket) &&
		!strings.Contains(err.Error(), "BadRequest") &&
		!strings.Contains(err.Error(), "NoSuchBucket") {
		return fmt.Errorf("failed to check bucket: %w", err)
	}

	createInput := &s3.CreateBucketInput{
		Bucket:                     aws.String(b.bucket),
		ObjectLockEnabledForBucket: aws.Bool(true),
	}

	// Add location constraint for regions other than us-east-1
	if b.config.Region != "us-east-1" {
		createInput.CreateBucketConfiguration = &types.CreateBucketConfiguration{
			LocationConstraint: types.BucketLocationConstraint(b.config.Region),
		}
	}

	_, err = b.client.CreateBucket(ctx, createInput)
	if err != nil {
		if strings.Contains(err.Error(), "BucketAlreadyExists") ||
			strings.Contains(err.Error(), "BucketAlreadyOwnedByYou") {
			return nil
		}
		return fmt.Errorf("failed to create bucket: %w", err)
	}

	return nil
}

// Put stores the artifact under a retention lock. The conditional write
// (If-None-Match: *) makes replays of the same key surface as
// ErrObjectExists instead of stacking a second revision.
func (b *Backend) Put(ctx context.Context, req receiptvault.PutRequest) (*receiptvault.PutResult, error) {
	uploader := manager.NewUploader(b.client)

	input := &s3.PutObjectInput{
		Bucket:                    aws.String(b.bucket),
		Key:                       aws.String(req.ObjectKey),
		Body:                      req.Body,
		ContentType:               aws.String(req.ContentType),
		IfNoneMatch:               aws.String("*"),
		ObjectLockMode:            b.lockMode,
		ObjectLockRetainUntilDate: aws.Time(req.RetainUntil),
	}

	if len(req.Tags) > 0 {
		input.Tagging = aws.String(encodeTags(req.Tags))
	}

	// Add server-side encryption if enabled
	if b.config.EnableSSE {
		switch b.config.SSEAlgorithm {
		case "AES256":
			input.ServerSideEncryption = types.ServerSideEncryptionAes256
		case "aws:kms":
			input.ServerSideEncryption = types.ServerSideEncryptionAwsKms
			if b.config.SSEKMSKeyID != "" {
				input.SSEKMSKeyId = aws.String(b.config.SSEKMSKeyID)
			}
		}
	}

	result, err := uploader.Upload(ctx, input)
	if err != nil {
		if isPreconditionFailed(err) {
			return nil, receiptvault.ErrObjectExists
		}
		return nil, fmt.Errorf("failed to upload to S3: %w", err)
	}

	res := &receiptvault.PutResult{ObjectKey: req.ObjectKey}
	if result.VersionID != nil {
		res.VersionID = *result.VersionID
	}
	if result.ETag != nil {
		res.ETag = strings.Trim(*result.ETag, "\"")
	}
	return res, nil
}

// Head retrieves the vault-enforced state of a stored artifact.
func (b *Backend) Head(ctx context.Context, objectKey string) (*receiptvault.VaultObjectInfo, error) {
	result, err := b.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(b.bucket),
		Key:    aws.String(objectKey),
	})
	if err != nil {
		var notFound *types.NotFound
		if errors.As(err, &notFound) {
			return nil, fmt.Errorf("object not found: %s", objectKey)
		}
		return nil, fmt.Errorf("failed to get object metadata: %w", err)
	}

	info := &receiptvault.VaultObjectInfo{
		ObjectKey: objectKey,
		LegalHold: result.ObjectLockLegalHoldStatus == types.ObjectLockLegalHoldStatusOn,
	}
	if result.VersionId != nil {
		info.VersionID = *result.VersionId
	}
	if result.ETag != nil {
		info.ETag = strings.Trim(*result.ETag, "\"")
	}
	if result.ContentLength != nil {
		info.Size = *result.ContentLength
	}
	if result.ObjectLockRetainUntilDate != nil {
		info.RetainUntil = *result.ObjectLockRetainUntilDate
	}
	if result.LastModified != nil {
		info.UpdatedAt = *result.LastModified
	}

	tags, err := b.client.GetObjectTagging(ctx, &s3.GetObjectTaggingInput{
		Bucket: aws.String(b.bucket),
		Key:    aws.String(objectKey),
	})
	if err == nil {
		info.Tags = make(map[string]string, len(tags.TagSet))
		for _, tag := range tags.TagSet {
			if tag.Key != nil && tag.Value != nil {
				info.Tags[*tag.Key] = *tag.Value
			}
		}
	}

	return info, nil
}

// Download retrieves the artifact bytes for one revision.
func (b *Backend) Download(ctx context.Context, objectKey, versionID string) (io.ReadCloser, error) {
	input := &s3.GetObjectInput{
		Bucket: aws.String(b.bucket),
		Key:    aws.String(objectKey),
	}
	if versionID != "" {
		input.VersionId = aws.String(versionID)
	}

	result, err := b.client.GetObject(ctx, input)
	if err != nil {
		var noSuchKey *types.NoSuchKey
		if errors.As(err, &noSuchKey) {
			return nil, fmt.Errorf("object not found: %s", objectKey)
		}
		return nil, fmt.Errorf("failed to download from S3: %w", err)
	}

	return result.Body, nil
}

// SetLegalHold toggles the S3 object-level legal hold flag.
func (b *Backend) SetLegalHold(ctx context.Context, objectKey, versionID string, held bool) error {
	status := types.ObjectLockLegalHoldStatusOff
	if held {
		status = types.ObjectLockLegalHoldStatusOn
	}

	input := &s3.PutObjectLegalHoldInput{
		Bucket:    aws.String(b.bucket),
		Key:       aws.String(objectKey),
		LegalHold: &types.ObjectLockLegalHold{Status: status},
	}
	if versionID != "" {
		input.VersionId = aws.String(versionID)
	}

	if _, err := b.client.PutObjectLegalHold(ctx, input); err != nil {
		return fmt.Errorf("failed to set legal hold: %w", err)
	}
	return nil
}

// ExtendRetention moves the retention date forward. S3 itself refuses to
// shorten a COMPLIANCE lock; the explicit check here turns that refusal
// into the domain error before a doomed round trip.
func (b *Backend) ExtendRetention(ctx context.Context, objectKey, versionID string, retainUntil time.Time) error {
	current, err := b.Head(ctx, objectKey)
	if err != nil {
		return err
	}
	if retainUntil.Before(current.RetainUntil) {
		return receiptvault.ErrRetentionShortened
	}

	input := &s3.PutObjectRetentionInput{
		Bucket: aws.String(b.bucket),
		Key:    aws.String(objectKey),
		Retention: &types.ObjectLockRetention{
			Mode:            types.ObjectLockRetentionMode(b.lockMode),
			RetainUntilDate: aws.Time(retainUntil),
		},
	}
	if versionID != "" {
		input.VersionId = aws.String(versionID)
	}

	if _, err := b.client.PutObjectRetention(ctx, input); err != nil {
		if strings.Contains(err.Error(), "AccessDenied") {
			return receiptvault.ErrRetentionShortened
		}
		return fmt.Errorf("failed to extend retention: %w", err)
	}
	return nil
}

// PresignDownload returns a presigned URL scoped to exactly one revision.
func (b *Backend) PresignDownload(ctx context.Context, objectKey, versionID, downloadFilename string, expiry time.Duration) (string, error) {
	input := &s3.GetObjectInput{
		Bucket: aws.String(b.bucket),
		Key:    aws.String(objectKey),
	}
	if versionID != "" {
		input.VersionId = aws.String(versionID)
	}
	if downloadFilename != "" {
		input.ResponseContentDisposition = aws.String(fmt.Sprintf("attachment; filename=\"%s\"", downloadFilename))
	}

	result, err := b.presignClient.PresignGetObject(ctx, input, func(opts *s3.PresignOptions) {
		opts.Expires = expiry
	})
	if err != nil {
		return "", fmt.Errorf("failed to generate presigned download URL: %w", err)
	}

	return result.URL, nil
}

func isPreconditionFailed(err error) bool {
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		return apiErr.ErrorCode() == "PreconditionFailed"
	}
	return false
}

func encodeTags(tags map[string]string) string {
	values := url.Values{}
	for k, v := range tags {
		values.Set(k, v)
	}
	return values.Encode()
}
