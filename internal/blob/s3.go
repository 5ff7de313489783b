// Package blob сохраняет фотографии отчётов в S3-совместимом хранилище.
package blob

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// ErrUnknownKind возвращается для неизвестного вида фотографии.
var ErrUnknownKind = errors.New("unknown photo kind")

// Kind вид фотографии, определяет каталог в бакете.
type Kind string

const (
	KindOutlet       Kind = "outlet"
	KindDistribution Kind = "distribution"
)

// ParseKind разбирает вид фотографии.
func ParseKind(s string) (Kind, error) {
	switch Kind(s) {
	case KindOutlet, KindDistribution:
		return Kind(s), nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownKind, s)
}

var (
	loadDefaultAWSConfig = config.LoadDefaultConfig

	newS3ClientFromConfig = func(cfg aws.Config, optFns ...func(*s3.Options)) putter {
		return s3.NewFromConfig(cfg, optFns...)
	}
)

type putter interface {
	PutObject(ctx context.Context, in *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// Config параметры подключения к хранилищу.
type Config struct {
	Endpoint  string
	Region    string
	Bucket    string
	AccessKey string
	SecretKey string
	// PublicURL базовый адрес для публичных ссылок. По умолчанию Endpoint/Bucket.
	PublicURL string
}

// Store загружает объекты в один бакет.
type Store struct {
	client    putter
	bucket    string
	publicURL string
}

// NewStore создаёт клиент S3 со статическими учётными данными.
func NewStore(ctx context.Context, cfg Config) (*Store, error) {
	awsCfg, err := loadDefaultAWSConfig(ctx,
		config.WithRegion(cfg.Region),
		config.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
			cfg.AccessKey,
			cfg.SecretKey,
			"",
		)))
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}

	client := newS3ClientFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
			o.UsePathStyle = true
		}
	})

	publicURL := cfg.PublicURL
	if publicURL == "" {
		publicURL = strings.TrimRight(cfg.Endpoint, "/") + "/" + cfg.Bucket
	}

	return &Store{
		client:    client,
		bucket:    cfg.Bucket,
		publicURL: strings.TrimRight(publicURL, "/"),
	}, nil
}

// Upload сохраняет объект по ключу key и возвращает его публичный адрес.
func (s *Store) Upload(ctx context.Context, key string, body io.Reader, size int64, contentType string) (string, error) {
	in := &s3.PutObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
		Body:   body,
	}
	if size > 0 {
		in.ContentLength = aws.Int64(size)
	}
	if contentType != "" {
		in.ContentType = aws.String(contentType)
	}

	if _, err := s.client.PutObject(ctx, in); err != nil {
		return "", fmt.Errorf("put object %s: %w", key, err)
	}

	return s.PublicURL(key), nil
}

// PublicURL возвращает публичный адрес объекта.
func (s *Store) PublicURL(key string) string {
	return s.publicURL + "/" + strings.TrimLeft(key, "/")
}

// PhotoKey строит ключ объекта вида "outlet-photos/1714556400000.jpg".
// Расширение берётся из исходного имени файла, по умолчанию jpg.
func PhotoKey(kind Kind, filename string, now time.Time) string {
	ext := strings.TrimPrefix(strings.ToLower(path.Ext(filename)), ".")
	if ext == "" {
		ext = "jpg"
	}
	return fmt.Sprintf("%s-photos/%d.%s", kind, now.UnixMilli(), ext)
}
