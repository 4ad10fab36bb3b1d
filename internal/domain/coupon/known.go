package coupon

import (
	"bufio"
	"io"
	"os"
	"strings"

	"github.com/bits-and-blooms/bloom/v3"
	"github.com/go-faster/errors"
)

// NormalizeCode is the form codes are stored in the known-code filter.
func NormalizeCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

// NewKnownCodes builds a filter sized for capacity codes at the given false
// positive rate.
func NewKnownCodes(capacity uint, fpr float64, codes ...string) *bloom.BloomFilter {
	f := bloom.NewWithEstimates(max(capacity, 1), fpr)
	for _, c := range codes {
		f.AddString(NormalizeCode(c))
	}
	return f
}

// WriteKnownCodes serializes the filter.
func WriteKnownCodes(w io.Writer, f *bloom.BloomFilter) error {
	bw := bufio.NewWriter(w)
	if _, err := f.WriteTo(bw); err != nil {
		return errors.Wrap(err, "write filter")
	}
	return bw.Flush()
}

// ReadKnownCodes deserializes a filter written by WriteKnownCodes.
func ReadKnownCodes(r io.Reader) (*bloom.BloomFilter, error) {
	f := &bloom.BloomFilter{}
	if _, err := f.ReadFrom(bufio.NewReader(r)); err != nil {
		return nil, errors.Wrap(err, "read filter")
	}
	return f, nil
}

// LoadKnownCodes reads a filter file.
func LoadKnownCodes(path string) (*bloom.BloomFilter, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrapf(err, "open %s", path)
	}
	defer func() { _ = file.Close() }()
	return ReadKnownCodes(file)
}
