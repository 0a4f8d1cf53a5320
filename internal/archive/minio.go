package archive

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"path"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/lucaslui/minermonitor/internal/model"
)

// MinIO stores each record as a JSON object at {collection}/{id}.json.
type MinIO struct {
	mc     *minio.Client
	bucket string
}

func NewMinIO(endpoint, access, secret string, useTLS bool, bucket string) (*MinIO, error) {
	mc, err := minio.New(endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(access, secret, ""),
		Secure: useTLS,
	})
	if err != nil {
		return nil, err
	}
	return &MinIO{mc: mc, bucket: bucket}, nil
}

func (c *MinIO) EnsureBucket(ctx context.Context) error {
	exists, err := c.mc.BucketExists(ctx, c.bucket)
	if err != nil {
		return err
	}
	if !exists {
		return c.mc.MakeBucket(ctx, c.bucket, minio.MakeBucketOptions{})
	}
	return nil
}

// Upload puts an arbitrary object into the archive bucket (daily exports).
func (c *MinIO) Upload(ctx context.Context, objectName string, r io.Reader, size int64, contentType string) error {
	_, err := c.mc.PutObject(ctx, c.bucket, objectName, r, size, minio.PutObjectOptions{
		ContentType: contentType,
	})
	return err
}

func (c *MinIO) Append(ctx context.Context, collection string, rec model.HistoryRecord) (string, error) {
	rec.ID = uuid.NewString()
	b, err := json.Marshal(rec)
	if err != nil {
		return "", err
	}
	name := objectName(collection, rec.ID)
	if err := c.Upload(ctx, name, bytes.NewReader(b), int64(len(b)), "application/json"); err != nil {
		return "", fmt.Errorf("put %s: %w", name, err)
	}
	return rec.ID, nil
}

func (c *MinIO) Query(ctx context.Context, collection string, filters []Filter, orderBy string) ([]model.HistoryRecord, error) {
	if err := validate(filters, orderBy); err != nil {
		return nil, err
	}
	prefix := strings.Trim(collection, "/") + "/"

	var recs []model.HistoryRecord
	for obj := range c.mc.ListObjects(ctx, c.bucket, minio.ListObjectsOptions{Prefix: prefix, Recursive: false}) {
		if obj.Err != nil {
			return nil, obj.Err
		}
		if !strings.HasSuffix(obj.Key, ".json") {
			continue
		}
		rec, err := c.read(ctx, obj.Key)
		if err != nil {
			return nil, err
		}
		recs = append(recs, rec)
	}
	return filterAndSort(recs, filters, orderBy), nil
}

func (c *MinIO) read(ctx context.Context, key string) (model.HistoryRecord, error) {
	var rec model.HistoryRecord
	obj, err := c.mc.GetObject(ctx, c.bucket, key, minio.GetObjectOptions{})
	if err != nil {
		return rec, fmt.Errorf("get %s: %w", key, err)
	}
	defer obj.Close()
	if err := json.NewDecoder(obj).Decode(&rec); err != nil {
		return rec, fmt.Errorf("decode %s: %w", key, err)
	}
	if rec.ID == "" {
		rec.ID = strings.TrimSuffix(path.Base(key), ".json")
	}
	return rec, nil
}

func objectName(collection, id string) string {
	return strings.Trim(collection, "/") + "/" + id + ".json"
}

// BuildObjectPath lays export files out by UTC day.
func BuildObjectPath(basePath string, t time.Time, file string) string {
	return fmt.Sprintf("%s/year=%04d/month=%02d/day=%02d/%s",
		basePath, t.UTC().Year(), t.UTC().Month(), t.UTC().Day(), file)
}
