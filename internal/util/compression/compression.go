// Package compression provides pluggable byte-level compression for stored
// chapter and version content.
package compression

type Compressor interface {
	Compress(data []byte) ([]byte, error)
	Decompress(data []byte) ([]byte, error)
}

// New returns the Compressor for a configured algorithm name. Unknown names
// fall back to zstd. Note that rows written with one algorithm cannot be
// read back with another, so this is effectively fixed once a database has
// content.
func New(algorithm string) Compressor {
	switch algorithm {
	case "gzip":
		return GzipCompressor{}
	default:
		return ZstdCompressor{}
	}
}
