// Package bucket opens the object storage that serve mode fetches job inputs
// from and stores reports to.
package bucket

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/cenkalti/backoff/v4"
	"github.com/thanos-io/objstore"
	"github.com/thanos-io/objstore/providers/filesystem"
	"github.com/thanos-io/objstore/providers/s3"
	"github.com/vinceanalytics/keywords/internal/config"
)

// Open builds a bucket from the store configuration. name overrides the
// configured bucket for providers that have one; the filesystem provider
// treats it as a directory under the configured root.
func Open(cfg *config.Store, name string) (objstore.Bucket, error) {
	switch cfg.Provider {
	case "", config.ProviderFS:
		dir := cfg.Directory
		if name != "" {
			dir = filepath.Join(dir, name)
		}
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, err
		}
		return filesystem.NewBucket(dir)
	case config.ProviderS3:
		sc := s3.Config{
			Bucket:    cfg.S3.Bucket,
			Endpoint:  cfg.S3.Endpoint,
			Region:    cfg.S3.Region,
			AccessKey: cfg.S3.AccessKey,
			SecretKey: cfg.S3.SecretKey,
			Insecure:  cfg.S3.Insecure,
		}
		if name != "" {
			sc.Bucket = name
		}
		return s3.NewBucketWithConfig(nil, sc, "keywords")
	default:
		panic("unreachable")
	}
}

// Retry wraps bucket round trips with exponential backoff. Remote fetch and
// store are the only operations that retry; the passes themselves are pure
// and never do. Each operation gets its own backoff, so one Retry serves any
// number of concurrent jobs.
type Retry struct {
	newBackOff func() backoff.BackOff
}

func NewRetry() *Retry {
	return &Retry{newBackOff: func() backoff.BackOff {
		return backoff.NewExponentialBackOff()
	}}
}

// Fetch downloads an object into dir and returns the local path.
func (r *Retry) Fetch(ctx context.Context, b objstore.Bucket, key, dir string) (string, error) {
	dst := filepath.Join(dir, filepath.Base(key))
	err := backoff.Retry(func() error {
		rc, err := b.Get(ctx, key)
		if err != nil {
			if b.IsObjNotFoundErr(err) {
				return backoff.Permanent(err)
			}
			return err
		}
		defer rc.Close()
		f, err := os.Create(dst)
		if err != nil {
			return backoff.Permanent(err)
		}
		_, err = io.Copy(f, rc)
		if cerr := f.Close(); err == nil {
			err = cerr
		}
		return err
	}, backoff.WithContext(r.newBackOff(), ctx))
	if err != nil {
		return "", fmt.Errorf("bucket: fetching %s: %w", key, err)
	}
	return dst, nil
}

// Store uploads a local file under key.
func (r *Retry) Store(ctx context.Context, b objstore.Bucket, key, path string) error {
	err := backoff.Retry(func() error {
		f, err := os.Open(path)
		if err != nil {
			return backoff.Permanent(err)
		}
		defer f.Close()
		return b.Upload(ctx, key, f)
	}, backoff.WithContext(r.newBackOff(), ctx))
	if err != nil {
		return fmt.Errorf("bucket: storing %s: %w", key, err)
	}
	return nil
}
