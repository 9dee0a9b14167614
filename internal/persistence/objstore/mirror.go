package objstore

import (
	"context"
	"fmt"
	"io/fs"
	"path"
	"path/filepath"
	"strings"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
)

// Putter uploads one local file. *Client implements it.
type Putter interface {
	PutFile(ctx context.Context, objectKey, localPath string) error
}

type Stats struct {
	Files    int   `json:"files"`
	Uploaded int   `json:"uploaded"`
	Retries  int   `json:"retries"`
	Bytes    int64 `json:"bytes"`
}

// Mirror copies directory trees into the bucket with bounded concurrency.
type Mirror struct {
	put      Putter
	prefix   string
	workers  int
	attempts int
	backoff  time.Duration
	log      zerolog.Logger
}

func NewMirror(put Putter, prefix string, workers int, log zerolog.Logger) *Mirror {
	if workers <= 0 {
		workers = 4
	}
	return &Mirror{
		put:      put,
		prefix:   strings.Trim(strings.ReplaceAll(prefix, "\\", "/"), "/"),
		workers:  workers,
		attempts: 4,
		backoff:  200 * time.Millisecond,
		log:      log,
	}
}

// UploadDir uploads every regular file under dir to <prefix>/<name>/<rel>.
// The first file that still fails after retries aborts the upload.
func (m *Mirror) UploadDir(ctx context.Context, dir, name string) (Stats, error) {
	type job struct {
		key, path string
		size      int64
	}
	var jobs []job
	err := filepath.WalkDir(dir, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.Type().IsRegular() {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return err
		}
		key, err := m.objectKey(dir, name, p)
		if err != nil {
			return err
		}
		jobs = append(jobs, job{key: key, path: p, size: info.Size()})
		return nil
	})
	if err != nil {
		return Stats{}, fmt.Errorf("objstore: scan %s: %w", dir, err)
	}

	var (
		uploaded, retries atomic.Int64
		bytes             atomic.Int64
	)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(m.workers)
	for _, j := range jobs {
		g.Go(func() error {
			n, err := m.uploadWithRetry(gctx, j.key, j.path)
			retries.Add(int64(n))
			if err != nil {
				m.log.Error().Err(err).Str("key", j.key).Msg("mirror upload failed")
				return err
			}
			uploaded.Add(1)
			bytes.Add(j.size)
			m.log.Debug().Str("key", j.key).Int64("bytes", j.size).Msg("mirror uploaded")
			return nil
		})
	}
	err = g.Wait()
	st := Stats{
		Files:    len(jobs),
		Uploaded: int(uploaded.Load()),
		Retries:  int(retries.Load()),
		Bytes:    bytes.Load(),
	}
	return st, err
}

// uploadWithRetry returns the number of retries it needed.
func (m *Mirror) uploadWithRetry(ctx context.Context, key, localPath string) (int, error) {
	var lastErr error
	for attempt := 1; attempt <= m.attempts; attempt++ {
		err := m.put.PutFile(ctx, key, localPath)
		if err == nil {
			return attempt - 1, nil
		}
		lastErr = err
		if attempt == m.attempts {
			break
		}
		m.log.Warn().Err(err).Str("key", key).Int("attempt", attempt).Msg("mirror upload retry")
		select {
		case <-ctx.Done():
			return attempt - 1, ctx.Err()
		case <-time.After(time.Duration(attempt*attempt) * m.backoff):
		}
	}
	return m.attempts - 1, lastErr
}

func (m *Mirror) objectKey(base, name, localPath string) (string, error) {
	rel, err := filepath.Rel(base, localPath)
	if err != nil {
		return "", err
	}
	rel = filepath.ToSlash(rel)
	if rel == "." || strings.HasPrefix(rel, "../") {
		return "", fmt.Errorf("path %s is outside %s", localPath, base)
	}
	return path.Join(m.prefix, name, rel), nil
}
