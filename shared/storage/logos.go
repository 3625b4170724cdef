// Package storage keeps tenant logos in S3 and hands out presigned URLs so the
// browser uploads and downloads directly.
package storage

import (
	"errors"
	"fmt"
	"path"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/s3"
	"github.com/google/uuid"
)

const (
	logoPrefix = "tenants/"
	UploadTTL  = 15 * time.Minute
	ViewTTL    = time.Hour
	// MaxLogoBytes is the largest logo accepted by the upload URL
	MaxLogoBytes = 2 << 20
)

var ErrUnsupportedType = errors.New("unsupported logo type")

var logoTypes = map[string]string{
	".png":  "image/png",
	".jpg":  "image/jpeg",
	".jpeg": "image/jpeg",
	".svg":  "image/svg+xml",
	".webp": "image/webp",
}

// Upload is a presigned PUT the browser uses once
type Upload struct {
	Key         string    `json:"key"`
	URL         string    `json:"url"`
	ContentType string    `json:"content_type"`
	ExpiresAt   time.Time `json:"expires_at"`
}

// LogoStore presigns logo uploads and downloads
type LogoStore struct {
	client *s3.S3
	bucket string
}

// NewLogoStore creates a store for bucket using the default AWS credential chain
func NewLogoStore(region, bucket string) (*LogoStore, error) {
	sess, err := session.NewSession(&aws.Config{
		Region: aws.String(region),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create AWS session: %w", err)
	}
	return NewLogoStoreFromSession(sess, bucket), nil
}

func NewLogoStoreFromSession(sess *session.Session, bucket string) *LogoStore {
	return &LogoStore{client: s3.New(sess), bucket: bucket}
}

// IsObjectKey reports whether a logo reference points into the bucket
// (as opposed to an external URL)
func IsObjectKey(ref string) bool {
	return strings.HasPrefix(ref, logoPrefix)
}

// KeyTenant returns the tenant a logo key belongs to
func KeyTenant(key string) string {
	if !IsObjectKey(key) {
		return ""
	}
	rest := strings.TrimPrefix(key, logoPrefix)
	if i := strings.Index(rest, "/"); i > 0 {
		return rest[:i]
	}
	return ""
}

// PresignUpload returns a PUT URL for a new logo of tenantID
func (s *LogoStore) PresignUpload(tenantID, filename string) (*Upload, error) {
	ext := strings.ToLower(path.Ext(filename))
	contentType, ok := logoTypes[ext]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedType, ext)
	}

	key := logoPrefix + tenantID + "/logo/" + uuid.New().String() + ext
	req, _ := s.client.PutObjectRequest(&s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(key),
		ContentType: aws.String(contentType),
	})
	url, err := req.Presign(UploadTTL)
	if err != nil {
		return nil, fmt.Errorf("failed to presign logo upload: %w", err)
	}

	return &Upload{
		Key:         key,
		URL:         url,
		ContentType: contentType,
		ExpiresAt:   time.Now().Add(UploadTTL),
	}, nil
}

// PresignDownload returns a GET URL for a stored logo
func (s *LogoStore) PresignDownload(key string) (string, error) {
	req, _ := s.client.GetObjectRequest(&s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	url, err := req.Presign(ViewTTL)
	if err != nil {
		return "", fmt.Errorf("failed to presign logo download: %w", err)
	}
	return url, nil
}

// ResolveLogo turns a tenant's logo reference into something an <img> can load.
// External URLs pass through; bucket keys are presigned; anything else resolves to "".
func (s *LogoStore) ResolveLogo(ref string) string {
	if strings.HasPrefix(ref, "https://") || strings.HasPrefix(ref, "http://") {
		return ref
	}
	if s == nil || !IsObjectKey(ref) {
		return ""
	}
	url, err := s.PresignDownload(ref)
	if err != nil {
		return ""
	}
	return url
}
