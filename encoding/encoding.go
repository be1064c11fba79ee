// Package encoding defines the Codec and Compressor interfaces corerpc uses
// to (de)serialize messages and negotiate wire compression, and a registry
// for each.
package encoding

import (
	"io"
	"strings"
)

// Identity is the name used for the no-op compression algorithm.
const Identity = "identity"

// Compressor compresses and decompresses message bodies.
type Compressor interface {
	// Compress writes data written to the returned WriteCloser to w, compressed.
	Compress(w io.Writer) (io.WriteCloser, error)
	// Decompress returns a reader yielding the decompressed contents of r.
	Decompress(r io.Reader) (io.Reader, error)
	// Name is the wire name of the algorithm, e.g. "gzip". Must be static.
	Name() string
}

var registeredCompressors = make(map[string]Compressor)

// RegisterCompressor registers c under c.Name(). Not safe to call outside
// of init(); the last registration for a given name wins.
func RegisterCompressor(c Compressor) {
	registeredCompressors[c.Name()] = c
}

// GetCompressor returns the Compressor registered under name, or nil.
func GetCompressor(name string) Compressor {
	return registeredCompressors[name]
}

// SupportedCompressors lists every registered compressor name. No code in
// corerpc sends it as a grpc-accept-encoding header.
func SupportedCompressors() []string {
	names := make([]string, 0, len(registeredCompressors))
	for name := range registeredCompressors {
		names = append(names, name)
	}
	return names
}

// Codec (de)serializes a message to/from the wire.
type Codec interface {
	Marshal(v interface{}) ([]byte, error)
	Unmarshal(data []byte, v interface{}) error
	// Name returns the codec's content-subtype, e.g. "proto" or "json".
	Name() string
}

var registeredCodecs = make(map[string]Codec)

// RegisterCodec registers codec under the lower-cased form of its Name().
// It panics if codec is nil or its Name() is empty.
func RegisterCodec(codec Codec) {
	if codec == nil {
		panic("encoding: cannot register a nil Codec")
	}
	name := strings.ToLower(codec.Name())
	if name == "" {
		panic("encoding: cannot register a Codec with an empty Name()")
	}
	registeredCodecs[name] = codec
}

// GetCodec returns the Codec registered for contentSubtype (expected
// lower-case), or nil if none is registered.
func GetCodec(contentSubtype string) Codec {
	return registeredCodecs[strings.ToLower(contentSubtype)]
}
