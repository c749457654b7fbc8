package services

import (
	"context"
	"fmt"
	"io"
	"mime"
	"path"
	"slices"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	v4 "github.com/aws/aws-sdk-go-v2/aws/signer/v4"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/dmitrijs2005/gophchat/internal/common"
	sc "github.com/dmitrijs2005/gophchat/internal/server/config"
	"github.com/dmitrijs2005/gophchat/internal/server/models"
	"github.com/google/uuid"
)

var (
	loadDefaultAWSConfig = config.LoadDefaultConfig

	newS3ClientFromConfig = func(cfg aws.Config, optFns ...func(*s3.Options)) *s3.Client {
		return s3.NewFromConfig(cfg, optFns...)
	}

	newS3PresignClient = func(c *s3.Client) *s3.PresignClient {
		return s3.NewPresignClient(c)
	}

	putObject = func(c *s3.Client, ctx context.Context, in *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
		return c.PutObject(ctx, in, optFns...)
	}
	presignGetObject = func(pc *s3.PresignClient, ctx context.Context, in *s3.GetObjectInput, optFns ...func(*s3.PresignOptions)) (*v4.PresignedHTTPRequest, error) {
		return pc.PresignGetObject(ctx, in, optFns...)
	}
)

const (
	MediaURLPrefix  = "/api/media/"
	mediaKeyPrefix  = "media/"
	presignValidity = 15 * time.Minute
)

// allowedMedia maps accepted file extensions to the MIME types accepted
// for them.
var allowedMedia = map[string][]string{
	".jpeg": {"image/jpeg"},
	".jpg":  {"image/jpeg"},
	".png":  {"image/png"},
	".gif":  {"image/gif"},
	".mp4":  {"video/mp4"},
	".webm": {"video/webm"},
	".mp3":  {"audio/mpeg"},
	".wav":  {"audio/wav"},
	".pdf":  {"application/pdf"},
	".doc":  {"application/msword"},
	".docx": {"application/vnd.openxmlformats-officedocument.wordprocessingml.document"},
}

// MediaService stores chat attachments in S3-compatible object storage and
// hands out short-lived download links.
type MediaService struct {
	config *sc.Config
}

func NewMediaService(config *sc.Config) *MediaService {
	return &MediaService{config: config}
}

// NewStorageKey returns a fresh object key keeping ext.
func NewStorageKey(ext string) string {
	d := time.Now().UTC()
	return fmt.Sprintf("%s%d/%02d/%02d/%v%s", mediaKeyPrefix, d.Year(), d.Month(), d.Day(), uuid.New(), ext)
}

// CheckMedia validates the name and declared content type of an upload.
// Both the extension and the MIME type must be on the allow list and agree
// with each other.
func CheckMedia(filename, contentType string, size, maxSize int64) (string, error) {
	if size > maxSize {
		return "", fmt.Errorf("%w: %d bytes, limit %d", common.ErrMediaTooLarge, size, maxSize)
	}

	ext := strings.ToLower(path.Ext(filename))
	mimes, ok := allowedMedia[ext]
	if !ok {
		return "", fmt.Errorf("%w: extension %q", common.ErrUnsupportedMedia, ext)
	}

	mt, _, err := mime.ParseMediaType(contentType)
	if err != nil || !slices.Contains(mimes, mt) {
		return "", fmt.Errorf("%w: content type %q", common.ErrUnsupportedMedia, contentType)
	}
	return ext, nil
}

func (s *MediaService) getClient(ctx context.Context) (*s3.Client, error) {
	cfg, err := loadDefaultAWSConfig(ctx,
		config.WithRegion(s.config.S3Region),
		config.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
			s.config.S3RootUser,
			s.config.S3RootPassword,
			"",
		)))
	if err != nil {
		return nil, err
	}

	return newS3ClientFromConfig(cfg, func(o *s3.Options) {
		o.BaseEndpoint = aws.String(s.config.S3BaseEndpoint)
		o.UsePathStyle = true
	}), nil
}

// Upload validates and stores body, returning where clients can fetch it.
func (s *MediaService) Upload(ctx context.Context, filename, contentType string, size int64, body io.Reader) (*models.Media, error) {
	ext, err := CheckMedia(filename, contentType, size, s.config.MaxUploadSize)
	if err != nil {
		return nil, err
	}

	client, err := s.getClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("error creating s3 client: %w", err)
	}

	mt, _, _ := mime.ParseMediaType(contentType)
	key := NewStorageKey(ext)
	_, err = putObject(client, ctx, &s3.PutObjectInput{
		Bucket:        aws.String(s.config.S3Bucket),
		Key:           aws.String(key),
		Body:          body,
		ContentLength: aws.Int64(size),
		ContentType:   aws.String(mt),
	})
	if err != nil {
		return nil, fmt.Errorf("error uploading media: %w", err)
	}

	return &models.Media{
		URL:      MediaURLPrefix + key,
		Type:     mt,
		FileName: path.Base(key),
	}, nil
}

// PresignedGetURL returns a short-lived download URL for key. Only keys
// created by Upload are served.
func (s *MediaService) PresignedGetURL(ctx context.Context, key string) (string, error) {
	key = strings.TrimPrefix(key, "/")
	if !strings.HasPrefix(key, mediaKeyPrefix) || strings.Contains(key, "..") {
		return "", common.ErrorNotFound
	}

	client, err := s.getClient(ctx)
	if err != nil {
		return "", fmt.Errorf("error creating s3 client: %w", err)
	}

	req, err := presignGetObject(newS3PresignClient(client), ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.config.S3Bucket),
		Key:    aws.String(key),
	}, s3.WithPresignExpires(presignValidity))
	if err != nil {
		return "", err
	}

	return req.URL, nil
}
