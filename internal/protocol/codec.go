// Package protocol implements the length-prefixed gzip frame shared by the
// market-data feeds and the execution channel:
//
//	[4-byte little-endian N][N bytes gzip payload]["[END]"]
//
// Payloads are GBK text, one record per line.
package protocol

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
	"strings"

	"github.com/klauspost/compress/gzip"
	"golang.org/x/text/encoding/simplifiedchinese"

	"github.com/alanyoungcy/arbdiscovery/internal/domain"
)

const (
	// ReadBlockSize bounds each body read.
	ReadBlockSize = 4096
	// EndMarker trails every frame and is not counted in N.
	EndMarker  = "[END]"
	headerSize = 4
)

// ErrCorruptFrame is returned when a frame arrived intact but its payload
// could not be decompressed or decoded.
var ErrCorruptFrame = fmt.Errorf("%w: corrupt frame payload", domain.ErrConnection)

// EncodePayload gzips raw and wraps it in a frame.
func EncodePayload(raw []byte) ([]byte, error) {
	var zbuf bytes.Buffer
	zw := gzip.NewWriter(&zbuf)
	if _, err := zw.Write(raw); err != nil {
		return nil, fmt.Errorf("protocol: gzip: %w", err)
	}
	if err := zw.Close(); err != nil {
		return nil, fmt.Errorf("protocol: gzip: %w", err)
	}
	if uint64(zbuf.Len()) > math.MaxUint32 {
		return nil, domain.ErrFrameTooLarge
	}

	out := make([]byte, headerSize, headerSize+zbuf.Len()+len(EndMarker))
	binary.LittleEndian.PutUint32(out, uint32(zbuf.Len()))
	out = append(out, zbuf.Bytes()...)
	out = append(out, EndMarker...)
	return out, nil
}

// EncodeText GBK-encodes text and frames it.
func EncodeText(text string) ([]byte, error) {
	raw, err := simplifiedchinese.GBK.NewEncoder().String(text)
	if err != nil {
		return nil, fmt.Errorf("protocol: gbk encode: %w", err)
	}
	return EncodePayload([]byte(raw))
}

// EncodeLines joins lines with newlines and frames them.
func EncodeLines(lines []string) ([]byte, error) {
	return EncodeText(strings.Join(lines, "\n"))
}

// WriteText frames text and writes it to w in one call.
func WriteText(w io.Writer, text string) error {
	frame, err := EncodeText(text)
	if err != nil {
		return err
	}
	if _, err := w.Write(frame); err != nil {
		return fmt.Errorf("%w: write: %v", domain.ErrConnection, err)
	}
	return nil
}

// Reader decodes frames from a stream.
type Reader struct {
	r     io.Reader
	block int
}

// NewReader wraps r. Reads are issued in blocks of at most ReadBlockSize.
func NewReader(r io.Reader) *Reader {
	return &Reader{r: r, block: ReadBlockSize}
}

// ReadPayload reads one frame and returns its decompressed payload. A zero
// length frame yields a nil payload. Socket failures wrap domain.ErrConnection;
// an undecodable body returns ErrCorruptFrame.
func (fr *Reader) ReadPayload() ([]byte, error) {
	var head [headerSize]byte
	if _, err := io.ReadFull(fr.r, head[:]); err != nil {
		return nil, fmt.Errorf("%w: read header: %v", domain.ErrConnection, err)
	}
	size := int(binary.LittleEndian.Uint32(head[:]))
	if size == 0 {
		if err := fr.readTrailer(); err != nil {
			return nil, err
		}
		return nil, nil
	}

	body := make([]byte, 0, size)
	chunk := make([]byte, fr.block)
	for remaining := size; remaining > 0; {
		n := min(remaining, fr.block)
		if _, err := io.ReadFull(fr.r, chunk[:n]); err != nil {
			return nil, fmt.Errorf("%w: read body: %v", domain.ErrConnection, err)
		}
		body = append(body, chunk[:n]...)
		remaining -= n
	}
	if err := fr.readTrailer(); err != nil {
		return nil, err
	}

	zr, err := gzip.NewReader(bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorruptFrame, err)
	}
	defer zr.Close()
	raw, err := io.ReadAll(zr)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorruptFrame, err)
	}
	return raw, nil
}

// ReadLines reads one frame and splits its GBK text into trimmed lines. A
// zero length frame yields an empty list.
func (fr *Reader) ReadLines() ([]string, error) {
	raw, err := fr.ReadPayload()
	if err != nil || raw == nil {
		return nil, err
	}
	return DecodeLines(raw)
}

// DecodeLines turns a decompressed payload into its records.
func DecodeLines(raw []byte) ([]string, error) {
	text, err := simplifiedchinese.GBK.NewDecoder().Bytes(raw)
	if err != nil {
		return nil, fmt.Errorf("%w: gbk decode: %v", ErrCorruptFrame, err)
	}
	trimmed := strings.TrimSpace(string(text))
	if trimmed == "" {
		return []string{}, nil
	}
	return strings.Split(trimmed, "\n"), nil
}

func (fr *Reader) readTrailer() error {
	var tail [len(EndMarker)]byte
	if _, err := io.ReadFull(fr.r, tail[:]); err != nil {
		return fmt.Errorf("%w: read trailer: %v", domain.ErrConnection, err)
	}
	if string(tail[:]) != EndMarker {
		return fmt.Errorf("%w: bad trailer %q", domain.ErrConnection, tail[:])
	}
	return nil
}

// IsCorrupt reports whether err came from an undecodable payload rather than
// a broken stream.
func IsCorrupt(err error) bool { return errors.Is(err, ErrCorruptFrame) }
