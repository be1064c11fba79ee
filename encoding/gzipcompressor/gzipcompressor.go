// Package gzipcompressor registers the "gzip" compressor in the encoding
// registry; gzip comes from the standard library. corerpc's call path does
// not compress messages or negotiate an encoding with the peer.
package gzipcompressor

import (
	"compress/gzip"
	"io"

	"github.com/corerpc/corerpc/encoding"
)

const Name = "gzip"

type compressor struct{}

func (compressor) Name() string { return Name }

func (compressor) Compress(w io.Writer) (io.WriteCloser, error) {
	return gzip.NewWriter(w), nil
}

func (compressor) Decompress(r io.Reader) (io.Reader, error) {
	return gzip.NewReader(r)
}

func init() {
	encoding.RegisterCompressor(compressor{})
}
