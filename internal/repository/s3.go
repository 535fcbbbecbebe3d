package repository

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"slices"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/inkwell-app/inkwell/internal/model"
)

// ArchiveEntry describes one exported manuscript stored in the archive
// bucket. Filename is the key with the novel prefix stripped; it is what
// the download and delete endpoints address entries by.
type ArchiveEntry struct {
	Key          string
	Filename     string
	Size         int64
	LastModified time.Time
}

// S3ArchiveStore keeps exported manuscripts (EPUB and markdown bundles) in
// an S3-compatible bucket. Keys are namespaced by novel so exports of one
// novel can be listed together.
type S3ArchiveStore struct {
	client *s3.Client
	bucket string
}

func NewS3ArchiveStore(accessKeyID, accessKeySecret, baseEndpoint, bucket string) *S3ArchiveStore {
	cfg, err := awsconfig.LoadDefaultConfig(context.TODO(),
		awsconfig.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(accessKeyID, accessKeySecret, "")),
		awsconfig.WithRegion("auto"),
	)
	if err != nil {
		repoLogger.Fatal().Err(err).Msg("Error initializing S3 client")
	}

	client := s3.NewFromConfig(cfg, func(o *s3.Options) {
		o.BaseEndpoint = aws.String(baseEndpoint)
	})

	return &S3ArchiveStore{
		client: client,
		bucket: bucket,
	}
}

func archiveKey(novelID model.NovelID, filename string) string {
	return fmt.Sprintf("exports/%s/%s", novelID, filename)
}

// Put uploads an exported manuscript and returns its object key.
func (s *S3ArchiveStore) Put(ctx context.Context, novelID model.NovelID, filename, contentType string, body []byte) (string, error) {
	key := archiveKey(novelID, filename)

	_, err := s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(body),
		ContentType: aws.String(contentType),
	})
	if err != nil {
		return "", fmt.Errorf("error uploading archive object %s: %w", key, err)
	}

	repoLogger.Info().
		Str("key", key).
		Int("size", len(body)).
		Msg("Manuscript archived")

	return key, nil
}

// Get downloads a previously archived export and reports the content type
// it was stored with.
func (s *S3ArchiveStore) Get(ctx context.Context, novelID model.NovelID, filename string) ([]byte, string, error) {
	key := archiveKey(novelID, filename)

	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return nil, "", fmt.Errorf("error fetching archive object %s: %w", key, err)
	}
	defer out.Body.Close()

	body, err := io.ReadAll(out.Body)
	if err != nil {
		return nil, "", fmt.Errorf("error reading archive object %s: %w", key, err)
	}
	return body, aws.ToString(out.ContentType), nil
}

// List returns the archived exports for a novel, newest first.
func (s *S3ArchiveStore) List(ctx context.Context, novelID model.NovelID) ([]ArchiveEntry, error) {
	prefix := archiveKey(novelID, "")

	var entries []ArchiveEntry
	paginator := s3.NewListObjectsV2Paginator(s.client, &s3.ListObjectsV2Input{
		Bucket: aws.String(s.bucket),
		Prefix: aws.String(prefix),
	})
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("error listing archive objects: %w", err)
		}
		for _, obj := range page.Contents {
			entry := ArchiveEntry{Key: aws.ToString(obj.Key)}
			entry.Filename = strings.TrimPrefix(entry.Key, prefix)
			if obj.Size != nil {
				entry.Size = *obj.Size
			}
			if obj.LastModified != nil {
				entry.LastModified = *obj.LastModified
			}
			entries = append(entries, entry)
		}
	}

	slices.SortStableFunc(entries, func(a, b ArchiveEntry) int {
		return -a.LastModified.Compare(b.LastModified)
	})

	return entries, nil
}

// Delete removes an archived export.
func (s *S3ArchiveStore) Delete(ctx context.Context, novelID model.NovelID, filename string) error {
	key := archiveKey(novelID, filename)

	_, err := s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return fmt.Errorf("error deleting archive object %s: %w", key, err)
	}

	repoLogger.Info().Str("key", key).Msg("Archived export deleted")
	return nil
}
