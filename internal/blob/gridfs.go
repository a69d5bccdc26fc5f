package blob

import (
	"bytes"
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"net/url"
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/gridfs"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const BucketName = "menuImages"

var ErrNotFound = errors.New("blob not found")

// Store keeps images in a GridFS bucket keyed by path (the GridFS filename).
// Bucket deadlines are per bucket, so every call opens its own.
type Store struct {
	client  *mongo.Client
	db      *mongo.Database
	baseURL string
}

func Connect(ctx context.Context, uri, database, publicBaseURL string) (*Store, error) {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("mongo connect: %w", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("mongo ping: %w", err)
	}
	return &Store{client: client, db: client.Database(database), baseURL: strings.TrimRight(publicBaseURL, "/")}, nil
}

func (s *Store) bucket() (*gridfs.Bucket, error) {
	b, err := gridfs.NewBucket(s.db, options.GridFSBucket().SetName(BucketName))
	if err != nil {
		return nil, fmt.Errorf("open bucket: %w", err)
	}
	return b, nil
}

func (s *Store) Close(ctx context.Context) error {
	return s.client.Disconnect(ctx)
}

// GridFS streams take deadlines instead of contexts.
func deadline(ctx context.Context) time.Time {
	if d, ok := ctx.Deadline(); ok {
		return d
	}
	return time.Now().Add(30 * time.Second)
}

func (s *Store) Upload(ctx context.Context, path string, data []byte, contentType string) error {
	if path == "" {
		return fmt.Errorf("empty blob path")
	}
	b, err := s.bucket()
	if err != nil {
		return err
	}
	if err := b.SetWriteDeadline(deadline(ctx)); err != nil {
		return err
	}
	opts := options.GridFSUpload().SetMetadata(bson.D{{Key: "contentType", Value: contentType}})
	if _, err := b.UploadFromStream(path, bytes.NewReader(data), opts); err != nil {
		return fmt.Errorf("upload %s: %w", path, err)
	}
	return nil
}

func (s *Store) UploadBase64(ctx context.Context, path, data, contentType string) error {
	b, err := DecodeBase64(data)
	if err != nil {
		return err
	}
	return s.Upload(ctx, path, b, contentType)
}

func (s *Store) PublicURL(path string) string {
	return s.baseURL + "/images/" + (&url.URL{Path: path}).EscapedPath()
}

// Delete removes every revision stored under path.
func (s *Store) Delete(ctx context.Context, path string) error {
	b, err := s.bucket()
	if err != nil {
		return err
	}
	if err := b.SetWriteDeadline(deadline(ctx)); err != nil {
		return err
	}
	cur, err := b.Find(bson.M{"filename": path})
	if err != nil {
		return fmt.Errorf("find %s: %w", path, err)
	}
	defer cur.Close(ctx)

	var files []struct {
		ID primitive.ObjectID `bson:"_id"`
	}
	if err := cur.All(ctx, &files); err != nil {
		return err
	}
	if len(files) == 0 {
		return ErrNotFound
	}
	for _, f := range files {
		if err := b.Delete(f.ID); err != nil && !errors.Is(err, gridfs.ErrFileNotFound) {
			return fmt.Errorf("delete %s: %w", path, err)
		}
	}
	return nil
}

// Open streams the latest revision of path along with its content type.
func (s *Store) Open(ctx context.Context, path string) (io.ReadCloser, string, error) {
	b, err := s.bucket()
	if err != nil {
		return nil, "", err
	}
	if err := b.SetReadDeadline(deadline(ctx)); err != nil {
		return nil, "", err
	}
	ds, err := b.OpenDownloadStreamByName(path)
	if errors.Is(err, gridfs.ErrFileNotFound) {
		return nil, "", ErrNotFound
	}
	if err != nil {
		return nil, "", fmt.Errorf("open %s: %w", path, err)
	}
	ct := "application/octet-stream"
	if f := ds.GetFile(); f != nil && f.Metadata != nil {
		if v, ok := f.Metadata.Lookup("contentType").StringValueOK(); ok && v != "" {
			ct = v
		}
	}
	return ds, ct, nil
}

// DecodeBase64 accepts plain base64 or a data URI.
func DecodeBase64(data string) ([]byte, error) {
	if i := strings.Index(data, ","); i >= 0 && strings.HasPrefix(data, "data:") {
		data = data[i+1:]
	}
	b, err := base64.StdEncoding.DecodeString(strings.TrimSpace(data))
	if err != nil {
		return nil, fmt.Errorf("decode base64 image: %w", err)
	}
	return b, nil
}
