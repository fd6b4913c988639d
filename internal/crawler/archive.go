package crawler

import (
	"context"
	"fmt"
	"path"
	"strings"

	"go.uber.org/zap"

	"github.com/sarcastic555/politylink-crawler/internal/metrics"
)

// ArchivingFetcher stores every successful response body in a BlobStore
// under a content-addressed key. Archive failures never fail the fetch.
type ArchivingFetcher struct {
	next   Fetcher
	blobs  BlobStore
	hasher Hasher
	logger *zap.Logger
}

// NewArchivingFetcher wraps next.
func NewArchivingFetcher(next Fetcher, blobs BlobStore, hasher Hasher, logger *zap.Logger) *ArchivingFetcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ArchivingFetcher{next: next, blobs: blobs, hasher: hasher, logger: logger.Named("archive")}
}

// Fetch delegates to the wrapped fetcher and archives the body.
func (f *ArchivingFetcher) Fetch(ctx context.Context, req FetchRequest) (FetchResponse, error) {
	resp, err := f.next.Fetch(ctx, req)
	if err != nil {
		return resp, err
	}
	if len(resp.Body) == 0 {
		return resp, nil
	}
	key, err := f.archiveKey(req, resp)
	if err != nil {
		f.logger.Warn("archive key failed", zap.String("url", resp.URL), zap.Error(err))
		return resp, nil
	}
	uri, err := f.blobs.PutObject(ctx, key, resp.ContentType(), resp.Body)
	if err != nil {
		f.logger.Warn("archive write failed", zap.String("url", resp.URL), zap.Error(err))
		return resp, nil
	}
	resp.ArchiveURI = uri
	return resp, nil
}

// archiveKey is "<source>/<host>/<sha256><ext>".
func (f *ArchivingFetcher) archiveKey(req FetchRequest, resp FetchResponse) (string, error) {
	digest, err := f.hasher.Hash(resp.Body)
	if err != nil {
		return "", fmt.Errorf("hash body: %w", err)
	}
	source := req.Source
	if source == "" {
		source = "unknown"
	}
	host := metrics.SanitizeSite(resp.URL)
	return path.Join(source, host, digest+extension(resp.ContentType())), nil
}

func extension(contentType string) string {
	switch {
	case strings.Contains(contentType, "json"):
		return ".json"
	case strings.Contains(contentType, "xml"):
		return ".xml"
	case strings.Contains(contentType, "pdf"):
		return ".pdf"
	default:
		return ".html"
	}
}
