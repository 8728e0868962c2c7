package services

import (
	"bytes"
	"context"
	"fmt"
	"mime"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// Archiver keeps a copy of each matched CV and returns where it can be fetched.
type Archiver interface {
	Archive(ctx context.Context, docID, filename string, content []byte) (string, error)
}

var unsafeName = regexp.MustCompile(`[^A-Za-z0-9._-]+`)

// ArchiveName is the stored name of a matched document: a short content prefix
// plus the sanitised original name, so equal uploads land on the same name.
func ArchiveName(docID, filename string) string {
	base := unsafeName.ReplaceAllString(filepath.Base(filename), "_")
	base = strings.Trim(base, "._")
	if base == "" {
		base = "cv"
	}
	prefix := docID
	if len(prefix) > 12 {
		prefix = prefix[:12]
	}
	return prefix + "_" + base
}

// LocalArchiver writes into a directory that the API serves under URLPrefix.
type LocalArchiver struct {
	dir       string
	urlPrefix string
}

func NewLocalArchiver(dir, urlPrefix string) (*LocalArchiver, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create matched directory: %w", err)
	}
	return &LocalArchiver{dir: dir, urlPrefix: strings.TrimRight(urlPrefix, "/")}, nil
}

func (a *LocalArchiver) Dir() string { return a.dir }

func (a *LocalArchiver) Archive(_ context.Context, docID, filename string, content []byte) (string, error) {
	name := ArchiveName(docID, filename)
	if err := os.WriteFile(filepath.Join(a.dir, name), content, 0644); err != nil {
		return "", fmt.Errorf("failed to copy matched file: %w", err)
	}
	return a.urlPrefix + "/" + name, nil
}

type S3ArchiverConfig struct {
	Bucket    string
	Region    string
	Endpoint  string
	AccessKey string
	SecretKey string
	Prefix    string
}

// S3Archiver uploads matched CVs to an S3-compatible bucket.
type S3Archiver struct {
	client *s3.Client
	bucket string
	prefix string
}

func NewS3Archiver(ctx context.Context, cfg S3ArchiverConfig) (*S3Archiver, error) {
	var opts []func(*awsconfig.LoadOptions) error
	opts = append(opts, awsconfig.WithRegion(cfg.Region))

	if cfg.AccessKey != "" && cfg.SecretKey != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, ""),
		))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("loading aws config: %w", err)
	}

	var s3Opts []func(*s3.Options)
	if cfg.Endpoint != "" {
		s3Opts = append(s3Opts, func(o *s3.Options) {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
			o.UsePathStyle = true
		})
	}

	prefix := cfg.Prefix
	if prefix == "" {
		prefix = "matched/"
	}

	return &S3Archiver{
		client: s3.NewFromConfig(awsCfg, s3Opts...),
		bucket: cfg.Bucket,
		prefix: prefix,
	}, nil
}

func (a *S3Archiver) Archive(ctx context.Context, docID, filename string, content []byte) (string, error) {
	key := a.prefix + ArchiveName(docID, filename)

	contentType := mime.TypeByExtension(NormalizeExt(filename))
	if contentType == "" {
		contentType = "application/octet-stream"
	}

	_, err := a.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(a.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(content),
		ContentType: aws.String(contentType),
	})
	if err != nil {
		return "", fmt.Errorf("s3 upload: %w", err)
	}
	return fmt.Sprintf("s3://%s/%s", a.bucket, key), nil
}
