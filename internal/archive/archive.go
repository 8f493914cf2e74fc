// Package archive stores synthesized audio in a NATS JetStream object store.
package archive

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"

	"github.com/ekisa-team/ttsd/internal/audio"
)

const (
	connectTimeout = 5 * time.Second
	keySuffix      = ".wav"
)

// Store uploads and downloads archived audio.
type Store interface {
	Upload(ctx context.Context, key string, data []byte) error
	Download(ctx context.Context, key string) ([]byte, error)
}

// NewKey returns a fresh object key for a WAV file.
func NewKey() string {
	return uuid.NewString() + keySuffix
}

// NatsObjectStore implements Store using NATS JetStream.
type NatsObjectStore struct {
	conn   *nats.Conn
	bucket string
	store  nats.ObjectStore
}

var _ Store = (*NatsObjectStore)(nil)

// Connect dials url and opens the bucket. The returned store owns the connection.
func Connect(url, bucket string) (*NatsObjectStore, error) {
	conn, err := nats.Connect(url,
		nats.Name("ttsd"),
		nats.Timeout(connectTimeout),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				slog.Warn("Archive disconnected", "error", err)
			}
		}),
		nats.ReconnectHandler(func(c *nats.Conn) {
			slog.Info("Archive reconnected", "url", c.ConnectedUrl())
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to nats at %s: %w", url, err)
	}

	js, err := conn.JetStream()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to open jetstream context: %w", err)
	}

	s, err := New(js, bucket)
	if err != nil {
		conn.Close()
		return nil, err
	}
	s.conn = conn

	return s, nil
}

// New creates the bucket, or binds to it if it already exists.
func New(js nats.JetStreamContext, bucketName string) (*NatsObjectStore, error) {
	store, err := js.CreateObjectStore(&nats.ObjectStoreConfig{
		Bucket:      bucketName,
		Description: fmt.Sprintf("Synthesized audio for the %s bucket.", bucketName),
		Storage:     nats.FileStorage,
		Replicas:    1,
	})
	if err != nil {
		if !errors.Is(err, jetstream.ErrBucketExists) && !errors.Is(err, nats.ErrStreamNameAlreadyInUse) {
			return nil, fmt.Errorf("failed to create object store bucket '%s': %w", bucketName, err)
		}

		store, err = js.ObjectStore(bucketName)
		if err != nil {
			return nil, fmt.Errorf("failed to bind to existing object store bucket '%s': %w", bucketName, err)
		}
	}

	return &NatsObjectStore{
		bucket: bucketName,
		store:  store,
	}, nil
}

// Bucket returns the bucket name.
func (n *NatsObjectStore) Bucket() string {
	return n.bucket
}

// Download retrieves an object from the store.
func (n *NatsObjectStore) Download(ctx context.Context, key string) ([]byte, error) {
	obj, err := n.store.Get(key, nats.Context(ctx))
	if err != nil {
		return nil, fmt.Errorf("failed to get object '%s' from bucket '%s': %w", key, n.bucket, err)
	}

	data, readErr := io.ReadAll(obj)
	closeErr := obj.Close()

	if readErr != nil {
		return nil, fmt.Errorf("failed to read object '%s': %w", key, readErr)
	}

	if closeErr != nil {
		return data, fmt.Errorf("failed to close object '%s': %w", key, closeErr)
	}

	return data, nil
}

// Upload saves a WAV object to the store.
func (n *NatsObjectStore) Upload(ctx context.Context, key string, data []byte) error {
	_, err := n.store.Put(&nats.ObjectMeta{
		Name:    key,
		Headers: nats.Header{"Content-Type": []string{audio.ContentTypeWAV}},
	}, bytes.NewReader(data), nats.Context(ctx))
	if err != nil {
		return fmt.Errorf("failed to put object '%s' to bucket '%s': %w", key, n.bucket, err)
	}

	return nil
}

// Close drains the connection if the store owns one.
func (n *NatsObjectStore) Close() error {
	if n.conn == nil {
		return nil
	}
	return n.conn.Drain()
}
