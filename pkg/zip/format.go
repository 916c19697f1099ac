// Package zip reads individual files out of ZIP archives stored on remote
// servers, fetching only the byte ranges it needs: the end of central
// directory record, the central directory, and per file the local header
// plus compressed payload.
//
// ZIP64 extensions, multi-disk archives, encrypted entries and archives with
// a trailing end-of-central-directory comment are not supported.
package zip

import (
	"encoding/binary"
	"errors"
	"fmt"
)

// Record signatures. All begin with the two byte marker 0x4b50 ("PK").
const (
	localFileSignature        uint32 = 0x04034b50
	centralDirectorySignature uint32 = 0x02014b50
	endOfCentralDirSignature  uint32 = 0x06054b50
)

// Compression methods.
const (
	MethodStore   uint16 = 0
	MethodDeflate uint16 = 8
)

// Fixed record sizes, excluding variable-length trailers.
const (
	endOfCentralDirSize = 22
	centralHeaderSize   = 46
	localHeaderSize     = 30
)

// Error definitions
var (
	ErrTransport              = errors.New("transport error")
	ErrMetadata               = errors.New("resource length unavailable")
	ErrInvalidSignature       = errors.New("invalid signature")
	ErrFileNotFound           = errors.New("file not found in archive")
	ErrUnsupportedCompression = errors.New("compression method not supported")
	ErrTruncatedRecord        = errors.New("truncated record")
	ErrChecksumMismatch       = errors.New("crc32 mismatch")
)

// endOfCentralDir is the fixed 22-byte record at the tail of the archive.
// Parsed once per Open and discarded.
type endOfCentralDir struct {
	entryCount uint16 // total central directory records
	dirSize    uint32 // central directory size in bytes
	dirOffset  uint32 // central directory offset from archive start
}

func parseEndOfCentralDir(buf []byte) (endOfCentralDir, error) {
	if len(buf) < endOfCentralDirSize {
		return endOfCentralDir{}, fmt.Errorf("%w: end of central directory is %d bytes, need %d",
			ErrTruncatedRecord, len(buf), endOfCentralDirSize)
	}
	if sig := binary.LittleEndian.Uint32(buf[0:4]); sig != endOfCentralDirSignature {
		return endOfCentralDir{}, fmt.Errorf("%w: end of central directory has 0x%08x",
			ErrInvalidSignature, sig)
	}
	return endOfCentralDir{
		entryCount: binary.LittleEndian.Uint16(buf[10:12]),
		dirSize:    binary.LittleEndian.Uint32(buf[12:16]),
		dirOffset:  binary.LittleEndian.Uint32(buf[16:20]),
	}, nil
}
