package s3blob

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/alanyoungcy/arbdiscovery/internal/domain"
)

const (
	historyPrefix   = "archive/history"
	recordingPrefix = "recordings"
	recordingPart   = 16 * 1024 * 1024
)

// HistoryArchiver copies persisted opportunity history to the object store
// as JSONL. It implements domain.Archiver.
type HistoryArchiver struct {
	store  domain.HistoryStore
	writer domain.BlobWriter
}

func NewHistoryArchiver(store domain.HistoryStore, writer domain.BlobWriter) *HistoryArchiver {
	return &HistoryArchiver{store: store, writer: writer}
}

// ArchiveHistory uploads the rows persisted in [since, until) as one file and
// returns how many went out. An empty window uploads nothing.
func (a *HistoryArchiver) ArchiveHistory(ctx context.Context, since, until time.Time) (int64, error) {
	entries, err := a.store.ListPersisted(ctx, since, until)
	if err != nil {
		return 0, fmt.Errorf("s3blob: archive history query: %w", err)
	}
	if len(entries) == 0 {
		return 0, nil
	}

	buf, err := marshalJSONL(entries)
	if err != nil {
		return 0, fmt.Errorf("s3blob: archive history marshal: %w", err)
	}
	key := archivePath(since, until)
	if err := a.writer.Put(ctx, key, bytes.NewReader(buf), "application/x-ndjson"); err != nil {
		return 0, fmt.Errorf("s3blob: archive history upload: %w", err)
	}
	return int64(len(entries)), nil
}

// archivePath partitions archive files by the UTC day of the window start:
//
//	archive/history/2025-01-31/1738281600-1738285200.jsonl
func archivePath(since, until time.Time) string {
	return fmt.Sprintf("%s/%s/%d-%d.jsonl",
		historyPrefix, since.UTC().Format("2006-01-02"), since.Unix(), until.Unix())
}

// marshalJSONL encodes one compact JSON document per line.
func marshalJSONL[T any](records []T) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	for i, rec := range records {
		if err := enc.Encode(rec); err != nil {
			return nil, fmt.Errorf("jsonl encode record %d: %w", i, err)
		}
	}
	return buf.Bytes(), nil
}

// RecordingUploader pushes recorded feed sessions ({dir}/{feed}/{name}.txt)
// to recordings/{feed}/{name}.txt so that a later replay can read them by
// s3:// URL.
type RecordingUploader struct {
	reader domain.BlobReader
	writer domain.BlobWriter
	logger *slog.Logger
}

func NewRecordingUploader(reader domain.BlobReader, writer domain.BlobWriter, logger *slog.Logger) *RecordingUploader {
	return &RecordingUploader{reader: reader, writer: writer, logger: logger.With(slog.String("component", "recording_uploader"))}
}

// Upload sends every recording under dir that is not in the bucket yet and
// returns the number uploaded. A failed file is logged and skipped.
func (u *RecordingUploader) Upload(ctx context.Context, dir string) (int, error) {
	files, err := recordings(dir)
	if err != nil {
		return 0, err
	}
	uploaded := 0
	for _, rel := range files {
		if err := ctx.Err(); err != nil {
			return uploaded, err
		}
		key := recordingKey(rel)
		ok, err := u.reader.Exists(ctx, key)
		if err != nil {
			u.logger.Warn("recording lookup failed", slog.String("key", key), slog.String("error", err.Error()))
			continue
		}
		if ok {
			continue
		}
		if err := u.put(ctx, filepath.Join(dir, rel), key); err != nil {
			u.logger.Warn("recording upload failed", slog.String("key", key), slog.String("error", err.Error()))
			continue
		}
		u.logger.Info("recording uploaded", slog.String("key", key))
		uploaded++
	}
	return uploaded, nil
}

func (u *RecordingUploader) put(ctx context.Context, file, key string) error {
	f, err := os.Open(file)
	if err != nil {
		return err
	}
	defer f.Close()
	return u.writer.PutMultipart(ctx, key, f, recordingPart)
}

// recordings lists .txt files under dir relative to it. A missing dir is
// not an error.
func recordings(dir string) ([]string, error) {
	var out []string
	err := filepath.WalkDir(dir, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			if p == dir && os.IsNotExist(err) {
				return fs.SkipDir
			}
			return err
		}
		if d.IsDir() || !strings.HasSuffix(d.Name(), ".txt") {
			return nil
		}
		rel, err := filepath.Rel(dir, p)
		if err != nil {
			return err
		}
		out = append(out, rel)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("s3blob: scan recordings: %w", err)
	}
	return out, nil
}

func recordingKey(rel string) string {
	return path.Join(recordingPrefix, filepath.ToSlash(rel))
}
