// Package testutil builds synthetic ZIP archives and range-capable test
// servers for use in tests.
package testutil

import (
	"bytes"
	"encoding/binary"
	"hash/crc32"
	"net/http"
	"net/http/httptest"
	"strconv"
	"time"

	"github.com/klauspost/compress/flate"
)

// FileSpec describes one archive entry to build. Data is the uncompressed
// content. Payload, when set, overrides the stored bytes (for corrupt or
// pre-compressed fixtures). CRC, when set, overrides the computed checksum.
type FileSpec struct {
	Name    string
	Method  uint16
	Data    []byte
	Payload []byte
	Extra   []byte
	Comment []byte
	CRC     *uint32
}

const (
	methodStore   uint16 = 0
	methodDeflate uint16 = 8
)

// Deflate compresses data with raw deflate, as stored in ZIP entries.
func Deflate(data []byte) []byte {
	var buf bytes.Buffer
	fw, err := flate.NewWriter(&buf, flate.DefaultCompression)
	if err != nil {
		panic(err)
	}
	if _, err := fw.Write(data); err != nil {
		panic(err)
	}
	if err := fw.Close(); err != nil {
		panic(err)
	}
	return buf.Bytes()
}

func (s FileSpec) payload() []byte {
	if s.Payload != nil {
		return s.Payload
	}
	if s.Method == methodDeflate {
		return Deflate(s.Data)
	}
	return s.Data
}

func (s FileSpec) crc() uint32 {
	if s.CRC != nil {
		return *s.CRC
	}
	return crc32.ChecksumIEEE(s.Data)
}

// BuildArchive assembles a complete single-disk ZIP archive: local records,
// central directory, end of central directory record.
func BuildArchive(specs ...FileSpec) []byte {
	var out bytes.Buffer
	offsets := make([]uint32, len(specs))

	for i, spec := range specs {
		offsets[i] = uint32(out.Len())
		payload := spec.payload()

		hdr := make([]byte, 30)
		binary.LittleEndian.PutUint32(hdr[0:4], 0x04034b50)
		binary.LittleEndian.PutUint16(hdr[4:6], 20) // version needed
		binary.LittleEndian.PutUint16(hdr[8:10], spec.Method)
		binary.LittleEndian.PutUint32(hdr[14:18], spec.crc())
		binary.LittleEndian.PutUint32(hdr[18:22], uint32(len(payload)))
		binary.LittleEndian.PutUint32(hdr[22:26], uint32(len(spec.Data)))
		binary.LittleEndian.PutUint16(hdr[26:28], uint16(len(spec.Name)))
		binary.LittleEndian.PutUint16(hdr[28:30], uint16(len(spec.Extra)))
		out.Write(hdr)
		out.WriteString(spec.Name)
		out.Write(spec.Extra)
		out.Write(payload)
	}

	dirOffset := uint32(out.Len())
	for i, spec := range specs {
		payload := spec.payload()

		hdr := make([]byte, 46)
		binary.LittleEndian.PutUint32(hdr[0:4], 0x02014b50)
		binary.LittleEndian.PutUint16(hdr[4:6], 20) // version made by
		binary.LittleEndian.PutUint16(hdr[6:8], 20) // version needed
		binary.LittleEndian.PutUint16(hdr[10:12], spec.Method)
		binary.LittleEndian.PutUint32(hdr[16:20], spec.crc())
		binary.LittleEndian.PutUint32(hdr[20:24], uint32(len(payload)))
		binary.LittleEndian.PutUint32(hdr[24:28], uint32(len(spec.Data)))
		binary.LittleEndian.PutUint16(hdr[28:30], uint16(len(spec.Name)))
		binary.LittleEndian.PutUint16(hdr[30:32], uint16(len(spec.Extra)))
		binary.LittleEndian.PutUint16(hdr[32:34], uint16(len(spec.Comment)))
		binary.LittleEndian.PutUint32(hdr[42:46], offsets[i])
		out.Write(hdr)
		out.WriteString(spec.Name)
		out.Write(spec.Extra)
		out.Write(spec.Comment)
	}
	dirSize := uint32(out.Len()) - dirOffset

	eocd := make([]byte, 22)
	binary.LittleEndian.PutUint32(eocd[0:4], 0x06054b50)
	binary.LittleEndian.PutUint16(eocd[8:10], uint16(len(specs)))
	binary.LittleEndian.PutUint16(eocd[10:12], uint16(len(specs)))
	binary.LittleEndian.PutUint32(eocd[12:16], dirSize)
	binary.LittleEndian.PutUint32(eocd[16:20], dirOffset)
	out.Write(eocd)

	return out.Bytes()
}

// Serve returns a test server that serves data with range request support.
func Serve(data []byte) *httptest.Server {
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.ServeContent(w, r, "archive.zip", time.Unix(0, 0), bytes.NewReader(data))
	}))
}

// ServeWithoutRanges returns a test server that ignores Range headers and
// always responds 200 with the full resource.
func ServeWithoutRanges(data []byte) *httptest.Server {
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Length", strconv.Itoa(len(data)))
		if r.Method == http.MethodHead {
			return
		}
		_, _ = w.Write(data)
	}))
}
