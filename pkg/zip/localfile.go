package zip

import (
	"encoding/binary"
	"fmt"
)

// LocalFile is a parsed local file header plus a view over its compressed
// payload. Data is a window into the buffer given to ParseLocalFile and is
// only valid for that buffer's lifetime; it is nil when the buffer does not
// reach the end of the payload (e.g. a 30-byte probe fetch).
type LocalFile struct {
	VersionNeeded    uint16
	Flags            uint16
	Method           uint16
	CRC32            uint32
	CompressedSize   uint32
	UncompressedSize uint32
	NameLen          uint16
	ExtraLen         uint16
	Data             []byte
}

// DataOffset returns the payload offset relative to the header start.
func (f *LocalFile) DataOffset() int64 {
	return localHeaderSize + int64(f.NameLen) + int64(f.ExtraLen)
}

// TotalSize returns the full record size: fixed header, name, extra field
// and compressed payload.
func (f *LocalFile) TotalSize() int64 {
	return f.DataOffset() + int64(f.CompressedSize)
}

// ParseLocalFile decodes a local file header from buf. The first 4 bytes
// must be the local file header signature and buf must cover the fixed
// 30-byte header.
func ParseLocalFile(buf []byte) (*LocalFile, error) {
	if len(buf) < 4 {
		return nil, fmt.Errorf("%w: local file header is %d bytes, need %d",
			ErrTruncatedRecord, len(buf), localHeaderSize)
	}
	if sig := binary.LittleEndian.Uint32(buf[0:4]); sig != localFileSignature {
		return nil, fmt.Errorf("%w: local file header has 0x%08x", ErrInvalidSignature, sig)
	}
	if len(buf) < localHeaderSize {
		return nil, fmt.Errorf("%w: local file header is %d bytes, need %d",
			ErrTruncatedRecord, len(buf), localHeaderSize)
	}

	f := &LocalFile{
		VersionNeeded:    binary.LittleEndian.Uint16(buf[4:6]),
		Flags:            binary.LittleEndian.Uint16(buf[6:8]),
		Method:           binary.LittleEndian.Uint16(buf[8:10]),
		// bytes 10-13 hold the modification time and date, unused here
		CRC32:            binary.LittleEndian.Uint32(buf[14:18]),
		CompressedSize:   binary.LittleEndian.Uint32(buf[18:22]),
		UncompressedSize: binary.LittleEndian.Uint32(buf[22:26]),
		NameLen:          binary.LittleEndian.Uint16(buf[26:28]),
		ExtraLen:         binary.LittleEndian.Uint16(buf[28:30]),
	}

	dataStart := f.DataOffset()
	dataEnd := f.TotalSize()
	if dataEnd <= int64(len(buf)) {
		f.Data = buf[dataStart:dataEnd]
	}
	return f, nil
}
