// Package s3util stores analysed images in S3 and hands out presigned URLs
// for them.
package s3util

import (
	"bytes"
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	v4 "github.com/aws/aws-sdk-go-v2/aws/signer/v4"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/rs/zerolog/log"
)

// imagePrefix is the key prefix for every uploaded image.
const imagePrefix = "images"

// DefaultURLExpiry is how long a presigned image URL stays valid.
const DefaultURLExpiry = time.Hour

// PutObjectAPI is the part of *s3.Client used for uploads.
type PutObjectAPI interface {
	PutObject(ctx context.Context, in *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// PresignAPI is the part of *s3.PresignClient used for image URLs.
type PresignAPI interface {
	PresignGetObject(ctx context.Context, in *s3.GetObjectInput, optFns ...func(*s3.PresignOptions)) (*v4.PresignedHTTPRequest, error)
}

// ImageKey builds the object key for a record's image:
// images/{owner}/{recordID}{ext}. The extension comes from fileName and is
// lowercased; an empty owner becomes "anonymous".
func ImageKey(owner, recordID, fileName string) string {
	if owner == "" {
		owner = "anonymous"
	}
	ext := strings.ToLower(filepath.Ext(fileName))
	return fmt.Sprintf("%s/%s/%s%s", imagePrefix, owner, recordID, ext)
}

// UploadImage writes data to bucket/key with the given content type and the
// project tag.
func UploadImage(ctx context.Context, client PutObjectAPI, bucket, key string, data []byte, contentType string) error {
	log.Debug().
		Str("bucket", bucket).
		Str("key", key).
		Int("bytes", len(data)).
		Msg("Uploading image to S3")

	_, err := client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      &bucket,
		Key:         &key,
		Body:        bytes.NewReader(data),
		ContentType: &contentType,
		Tagging:     ProjectTagging(),
	})
	if err != nil {
		return fmt.Errorf("S3 PutObject %s: %w", key, err)
	}

	log.Info().Str("key", key).Msg("Image uploaded to S3")
	return nil
}

// GeneratePresignedURL creates a pre-signed GET URL for an S3 object.
func GeneratePresignedURL(ctx context.Context, presignClient PresignAPI, bucket, key string, expiry time.Duration) (string, error) {
	result, err := presignClient.PresignGetObject(ctx, &s3.GetObjectInput{
		Bucket: &bucket, Key: &key,
	}, func(opts *s3.PresignOptions) {
		opts.Expires = expiry
	})
	if err != nil {
		return "", fmt.Errorf("presign GetObject: %w", err)
	}
	return result.URL, nil
}

// ImageBucket stores images in one bucket.
type ImageBucket struct {
	Client    PutObjectAPI
	Presigner PresignAPI
	Bucket    string
	Expiry    time.Duration // zero means DefaultURLExpiry
}

// Put uploads an image under key.
func (b *ImageBucket) Put(ctx context.Context, key string, data []byte, contentType string) error {
	return UploadImage(ctx, b.Client, b.Bucket, key, data, contentType)
}

// URL returns a presigned GET URL for key.
func (b *ImageBucket) URL(ctx context.Context, key string) (string, error) {
	expiry := b.Expiry
	if expiry == 0 {
		expiry = DefaultURLExpiry
	}
	return GeneratePresignedURL(ctx, b.Presigner, b.Bucket, key, expiry)
}
