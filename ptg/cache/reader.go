package cache

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/fxamacker/cbor/v2"
	"github.com/klauspost/compress/gzip"
)

// ErrShortCache reports an epoch file that ran out of records before the
// caller-declared length was served; the caller mis-declared the length.
var ErrShortCache = errors.New("cache file exhausted before declared length")

// Replay reads one epoch file back sequentially. The declared length must
// match what the generator wrote (the manifest records it); skipRecords
// entries are discarded up front to resume mid-epoch.
type Replay struct {
	file   *os.File
	gz     *gzip.Reader
	dec    *cbor.Decoder
	length int
	served int
}

// NewReplay opens path and discards the first skipRecords entries.
func NewReplay(path string, length, skipRecords int) (*Replay, error) {
	if length < 0 {
		return nil, fmt.Errorf("replay length must be non-negative, got %d", length)
	}
	if skipRecords < 0 || skipRecords > length {
		return nil, fmt.Errorf("skip %d out of range for length %d", skipRecords, length)
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open cache %s: %w", path, err)
	}
	r := &Replay{file: f, length: length - skipRecords}
	var src io.Reader = f
	if strings.HasSuffix(path, ".gz") {
		if r.gz, err = gzip.NewReader(f); err != nil {
			f.Close()
			return nil, fmt.Errorf("open gzip cache %s: %w", path, err)
		}
		src = r.gz
	}
	r.dec = cbor.NewDecoder(src)
	for i := 0; i < skipRecords; i++ {
		var rec Record
		if err := r.dec.Decode(&rec); err != nil {
			r.Close()
			return nil, fmt.Errorf("skip record %d: %w", i, errShortOrIO(err))
		}
	}
	return r, nil
}

// Len reports the number of records remaining to serve.
func (r *Replay) Len() int { return r.length }

// Next returns the next record. io.EOF signals the declared length has
// been served; running dry before that is ErrShortCache.
func (r *Replay) Next() (Record, error) {
	if r.served >= r.length {
		return Record{}, io.EOF
	}
	var rec Record
	if err := r.dec.Decode(&rec); err != nil {
		return Record{}, fmt.Errorf("record %d: %w", r.served, errShortOrIO(err))
	}
	r.served++
	return rec, nil
}

// Close releases the underlying file.
func (r *Replay) Close() error {
	if r.gz != nil {
		r.gz.Close()
	}
	return r.file.Close()
}

func errShortOrIO(err error) error {
	if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
		return ErrShortCache
	}
	return err
}
