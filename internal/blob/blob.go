// Package blob stores uploaded document bytes. Keys are opaque slash-separated paths.
package blob

import (
	"context"
	"fmt"
	"log/slog"
	"path"
	"strings"

	"github.com/joseph-ayodele/compliance-tracker/internal/common"
)

type Store interface {
	Put(ctx context.Context, key string, data []byte, contentType string) error
	Get(ctx context.Context, key string) ([]byte, error)
	Delete(ctx context.Context, key string) error
}

// New builds the backend selected by cfg.Backend.
func New(ctx context.Context, cfg common.StorageConfig, logger *slog.Logger) (Store, error) {
	switch cfg.Backend {
	case "", "local":
		return NewLocal(cfg.LocalPath, logger)
	case "minio":
		return NewMinio(ctx, MinioConfig{
			Endpoint:  cfg.MinioEndpoint,
			AccessKey: cfg.MinioAccessKey,
			SecretKey: cfg.MinioSecretKey,
			Bucket:    cfg.MinioBucket,
			UseSSL:    cfg.MinioUseSSL,
		}, logger)
	default:
		return nil, common.InvalidInputf("unknown storage backend %q", cfg.Backend)
	}
}

// cleanKey rejects keys that would escape the store root.
func cleanKey(key string) (string, error) {
	k := path.Clean("/" + strings.ReplaceAll(key, "\\", "/"))
	k = strings.TrimPrefix(k, "/")
	if k == "" || k == "." || strings.Contains(key, "..") {
		return "", common.InvalidInputf("invalid blob key %q", key)
	}
	return k, nil
}

// DocumentKey lays out document blobs per account.
func DocumentKey(accountID, documentID, ext string) string {
	return fmt.Sprintf("accounts/%s/documents/%s%s", accountID, documentID, ext)
}
