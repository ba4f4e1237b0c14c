package importer

import (
	"context"
	"crypto/sha1"
	"crypto/sha512"
	"encoding/hex"
	"fmt"
	"hash"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"sync"

	"github.com/hashicorp/go-retryablehttp"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/Shiroiame-Kusu/ModPackUpdater/internal/logging"
	"github.com/Shiroiame-Kusu/ModPackUpdater/internal/metrics"
)

const (
	minDownloadWorkers = 2
	maxDownloadWorkers = 8
)

// resolveRemote downloads the externally hosted files with bounded
// concurrency. Failures are reported per file and never abort siblings.
func (imp *Importer) resolveRemote(ctx context.Context, dest string, files []RemoteFile, workers int, res *Result) {
	if workers < 1 {
		workers = runtime.GOMAXPROCS(0)
	}
	if workers < minDownloadWorkers {
		workers = minDownloadWorkers
	}
	if workers > maxDownloadWorkers {
		workers = maxDownloadWorkers
	}

	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for _, rf := range files {
		g.Go(func() error {
			outcome, err := imp.fetchFile(gctx, dest, rf)
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err != nil:
				res.Failed = append(res.Failed, rf.Path)
				warn(res, fmt.Sprintf("resolve %s: %v", rf.Path, err))
				metrics.RecordRemoteDownload("failed")
			case outcome == outcomeSkipped:
				res.Skipped++
				metrics.RecordRemoteDownload("skipped")
			default:
				res.Resolved++
				metrics.RecordRemoteDownload("ok")
			}
			return nil
		})
	}
	g.Wait()
}

type outcome int

const (
	outcomeDownloaded outcome = iota
	outcomeSkipped
)

// fetchFile downloads one remote file, trying each mirror in turn. Files
// inapplicable to servers are skipped, as are files already present with a
// matching hash. The download lands in a temporary file, is verified
// against the strongest known hash and then atomically moved into place.
func (imp *Importer) fetchFile(ctx context.Context, dest string, rf RemoteFile) (outcome, error) {
	if rf.ServerUnsupported {
		return outcomeSkipped, nil
	}
	if !safeRelPath(rf.Path) {
		return 0, fmt.Errorf("unsafe remote file path %q", rf.Path)
	}
	target := filepath.Join(dest, filepath.FromSlash(rf.Path))
	if !within(dest, target) {
		return 0, fmt.Errorf("remote file path escapes pack: %q", rf.Path)
	}

	algo, want := strongestHash(rf)
	if want != "" {
		if existing, err := hashLocal(target, algo); err == nil && strings.EqualFold(existing, want) {
			return outcomeSkipped, nil
		}
	}

	if len(rf.URLs) == 0 {
		return 0, fmt.Errorf("no download URLs")
	}
	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return 0, err
	}

	var lastErr error
	for _, url := range rf.URLs {
		if err := ctx.Err(); err != nil {
			return 0, err
		}
		if err := imp.downloadVerified(ctx, url, target, algo, want); err != nil {
			lastErr = err
			logging.Debug("mirror failed", zap.String("url", url), zap.Error(err))
			continue
		}
		return outcomeDownloaded, nil
	}
	return 0, fmt.Errorf("all mirrors exhausted: %w", lastErr)
}

// downloadVerified fetches one URL (the client retries transient failures
// with backoff), writes to a temporary path, verifies the hash and renames
// into place.
func (imp *Importer) downloadVerified(ctx context.Context, url, target, algo, want string) error {
	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}
	resp, err := imp.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unexpected status %s", resp.Status)
	}

	tmp, err := os.CreateTemp(filepath.Dir(target), filepath.Base(target)+".*.tmp")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())

	h := newHasher(algo)
	var w io.Writer = tmp
	if h != nil {
		w = io.MultiWriter(tmp, h)
	}
	if _, err := io.Copy(w, resp.Body); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}

	if h != nil {
		if got := hex.EncodeToString(h.Sum(nil)); !strings.EqualFold(got, want) {
			return fmt.Errorf("hash mismatch: got %s want %s", got, want)
		}
	}
	return os.Rename(tmp.Name(), target)
}

// strongestHash picks the strongest advertised hash for verification.
func strongestHash(rf RemoteFile) (algo, value string) {
	if rf.SHA512 != "" {
		return "sha512", rf.SHA512
	}
	if rf.SHA1 != "" {
		return "sha1", rf.SHA1
	}
	return "", ""
}

func newHasher(algo string) hash.Hash {
	switch algo {
	case "sha512":
		return sha512.New()
	case "sha1":
		return sha1.New()
	}
	return nil
}

// hashLocal hashes an existing file with the given algorithm.
func hashLocal(path, algo string) (string, error) {
	h := newHasher(algo)
	if h == nil {
		return "", fmt.Errorf("no hash algorithm")
	}
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()
	if _, err := io.Copy(h, f); err != nil {
		return "", err
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}
