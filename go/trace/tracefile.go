package trace

import (
	"io"
	"strings"
	"sync"

	"github.com/golang/snappy"
	"github.com/lunixbochs/struc"
	"github.com/pkg/errors"
)

var TRACE_MAGIC = "EXTR"

const TRACE_VERSION = 1

type TraceHeader struct {
	// MAGIC ("EXTR")
	Magic   string `struc:"[4]byte"`
	Version uint32
	// kernel boot id, a uuid string
	BootID string `struc:"[36]byte"`
	NEnv   uint32
	NPages uint32
}

// TraceWriter streams ops into a snappy-compressed body after a raw header.
// It is safe for concurrent use.
type TraceWriter struct {
	mu    sync.Mutex
	w     io.WriteCloser
	zw    *snappy.Writer
	count int
}

func NewWriter(w io.WriteCloser, header TraceHeader) (*TraceWriter, error) {
	header.Magic = TRACE_MAGIC
	header.Version = TRACE_VERSION
	if err := struc.PackWithOrder(w, &header, order); err != nil {
		return nil, errors.Wrap(err, "failed to pack header")
	}
	return &TraceWriter{w: w, zw: snappy.NewBufferedWriter(w)}, nil
}

func (t *TraceWriter) Pack(op Op) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.count++
	return Pack(t.zw, op)
}

func (t *TraceWriter) Count() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.count
}

func (t *TraceWriter) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if err := t.zw.Close(); err != nil {
		t.w.Close()
		return errors.Wrap(err, "flushing trace")
	}
	return t.w.Close()
}

type TraceReader struct {
	r      io.ReadCloser
	zr     *snappy.Reader
	Header TraceHeader
}

func NewReader(r io.ReadCloser) (*TraceReader, error) {
	t := &TraceReader{r: r}
	if err := struc.UnpackWithOrder(r, &t.Header, order); err != nil {
		return nil, errors.Wrap(err, "failed to unpack header")
	}
	if t.Header.Magic != TRACE_MAGIC {
		return nil, errors.New("invalid trace file magic")
	}
	if t.Header.Version != TRACE_VERSION {
		return nil, errors.Errorf("unsupported trace version %d", t.Header.Version)
	}
	t.Header.BootID = strings.TrimRight(t.Header.BootID, "\x00")
	t.zr = snappy.NewReader(r)
	return t, nil
}

// Next returns io.EOF after the last op.
func (t *TraceReader) Next() (Op, error) {
	return Unpack(t.zr)
}

func (t *TraceReader) Close() {
	t.zr.Reset(nil)
	t.r.Close()
}
