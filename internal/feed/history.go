package feed

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/alanyoungcy/arbdiscovery/internal/domain"
)

// historyLayout stamps each recorded packet in HK time.
const historyLayout = "2006-01-02 15:04:05.000000"

// historySep separates the timestamp from the packet.
const historySep = "  "

// Recorder appends every packet of a feed session to a history file that a
// ReplaySession can play back.
type Recorder struct {
	mu  sync.Mutex
	f   *os.File
	w   *bufio.Writer
	now func() time.Time
}

// NewRecorder creates dir/{feed}/{start time}.txt.
func NewRecorder(dir string, feed domain.FeedSource, now func() time.Time) (*Recorder, error) {
	if now == nil {
		now = time.Now
	}
	path := filepath.Join(dir, string(feed))
	if err := os.MkdirAll(path, 0o755); err != nil {
		return nil, fmt.Errorf("feed: recorder: %w", err)
	}
	name := now().In(domain.HKZone).Format("2006-01-02 150405") + ".txt"
	f, err := os.Create(filepath.Join(path, name))
	if err != nil {
		return nil, fmt.Errorf("feed: recorder: %w", err)
	}
	return &Recorder{f: f, w: bufio.NewWriter(f), now: now}, nil
}

// Path is the file being written.
func (r *Recorder) Path() string { return r.f.Name() }

// Record appends one packet.
func (r *Recorder) Record(packet []string) error {
	data, err := json.Marshal(packet)
	if err != nil {
		return fmt.Errorf("feed: record packet: %w", err)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, err := fmt.Fprintf(r.w, "%s%s%s\n", r.now().In(domain.HKZone).Format(historyLayout), historySep, data); err != nil {
		return fmt.Errorf("feed: record packet: %w", err)
	}
	return nil
}

// Close flushes and closes the file.
func (r *Recorder) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.w.Flush(); err != nil {
		r.f.Close()
		return err
	}
	return r.f.Close()
}

// ReplaySession plays back a recorded history, sleeping the recorded gap
// between packets divided by speed. A speed of zero replays without delay.
type ReplaySession struct {
	src     io.ReadCloser
	scanner *bufio.Scanner
	speed   float64
	prev    time.Time
	sleep   func(ctx context.Context, d time.Duration) error
}

// NewReplaySession reads history lines from src.
func NewReplaySession(src io.ReadCloser, speed float64) *ReplaySession {
	sc := bufio.NewScanner(src)
	sc.Buffer(make([]byte, 64*1024), 64*1024*1024)
	return &ReplaySession{src: src, scanner: sc, speed: speed, sleep: sleepCtx}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// Login always succeeds.
func (s *ReplaySession) Login(context.Context) error { return nil }

// Next returns the next recorded packet, or io.EOF at the end.
func (s *ReplaySession) Next(ctx context.Context) ([]string, error) {
	for s.scanner.Scan() {
		line := s.scanner.Text()
		if strings.TrimSpace(line) == "" {
			continue
		}
		ts, packet, err := parseHistoryLine(line)
		if err != nil {
			return nil, err
		}
		if s.speed > 0 && !s.prev.IsZero() {
			if gap := ts.Sub(s.prev); gap > 0 {
				if err := s.sleep(ctx, time.Duration(float64(gap)/s.speed)); err != nil {
					return nil, err
				}
			}
		}
		s.prev = ts
		return packet, nil
	}
	if err := s.scanner.Err(); err != nil {
		return nil, fmt.Errorf("feed: replay: %w", err)
	}
	return nil, io.EOF
}

// Close closes the source.
func (s *ReplaySession) Close() error { return s.src.Close() }

func parseHistoryLine(line string) (time.Time, []string, error) {
	stamp, body, ok := strings.Cut(line, historySep)
	if !ok {
		return time.Time{}, nil, fmt.Errorf("%w: history line without timestamp", domain.ErrMalformedRecord)
	}
	ts, err := time.ParseInLocation(historyLayout, stamp, domain.HKZone)
	if err != nil {
		return time.Time{}, nil, fmt.Errorf("%w: history timestamp %q", domain.ErrMalformedRecord, stamp)
	}
	var packet []string
	if err := json.Unmarshal([]byte(body), &packet); err != nil {
		return time.Time{}, nil, fmt.Errorf("%w: history packet: %v", domain.ErrMalformedRecord, err)
	}
	return ts, packet, nil
}

// OpenReplay opens a history from a local path or, for s3://bucket/key
// paths, from blob storage.
func OpenReplay(ctx context.Context, path string, blobs domain.BlobReader) (io.ReadCloser, error) {
	if key, ok := strings.CutPrefix(path, "s3://"); ok {
		if blobs == nil {
			return nil, fmt.Errorf("feed: replay %s: blob storage not configured", path)
		}
		// the bucket is fixed by the blob client
		if _, k, found := strings.Cut(key, "/"); found {
			key = k
		}
		return blobs.Get(ctx, key)
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("feed: replay: %w", err)
	}
	return f, nil
}
