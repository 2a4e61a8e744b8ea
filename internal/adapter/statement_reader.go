package adapter

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"cloud.google.com/go/storage"
)

const gcsScheme = "gs://"

// ObjectOpener opens a GCS object for reading
type ObjectOpener func(ctx context.Context, bucket, object string) (io.ReadCloser, error)

// StatementReader loads raw statement documents from a local path or a
// gs://bucket/object URI.
type StatementReader struct {
	open ObjectOpener
}

// NewStatementReader creates a reader that opens GCS objects with
// Application Default Credentials.
func NewStatementReader() *StatementReader {
	return &StatementReader{open: openGCSObject}
}

// NewStatementReaderWithOpener creates a reader with a custom object opener
func NewStatementReaderWithOpener(open ObjectOpener) *StatementReader {
	return &StatementReader{open: open}
}

// Read returns the contents at location
func (r *StatementReader) Read(ctx context.Context, location string) ([]byte, error) {
	if !strings.HasPrefix(location, gcsScheme) {
		data, err := os.ReadFile(location)
		if err != nil {
			return nil, fmt.Errorf("read statement %q: %w", location, err)
		}
		return data, nil
	}

	bucket, object, err := ParseGCSURI(location)
	if err != nil {
		return nil, err
	}

	rc, err := r.open(ctx, bucket, object)
	if err != nil {
		return nil, fmt.Errorf("open GCS object reader: %w", err)
	}
	defer rc.Close()

	data, err := io.ReadAll(rc)
	if err != nil {
		return nil, fmt.Errorf("read GCS object: %w", err)
	}
	return data, nil
}

// ParseGCSURI splits gs://bucket/path/to/object into bucket and object
func ParseGCSURI(uri string) (bucket, object string, err error) {
	if !strings.HasPrefix(uri, gcsScheme) {
		return "", "", fmt.Errorf("not a GCS URI: %q", uri)
	}
	bucket, object, ok := strings.Cut(strings.TrimPrefix(uri, gcsScheme), "/")
	if !ok || bucket == "" || object == "" {
		return "", "", fmt.Errorf("GCS URI must be gs://bucket/object: %q", uri)
	}
	return bucket, object, nil
}

type gcsObjectReader struct {
	*storage.Reader
	client *storage.Client
}

func (r gcsObjectReader) Close() error {
	err := r.Reader.Close()
	if cerr := r.client.Close(); err == nil {
		err = cerr
	}
	return err
}

func openGCSObject(ctx context.Context, bucket, object string) (io.ReadCloser, error) {
	client, err := storage.NewClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("create storage client: %w", err)
	}

	r, err := client.Bucket(bucket).Object(object).NewReader(ctx)
	if err != nil {
		_ = client.Close()
		return nil, err
	}
	return gcsObjectReader{Reader: r, client: client}, nil
}
