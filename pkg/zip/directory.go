package zip

import (
	"encoding/binary"
	"fmt"
)

// Entry is one central directory record. Immutable once parsed.
type Entry struct {
	Name             string `json:"name"`
	Method           uint16 `json:"method"`
	CRC32            uint32 `json:"crc32"`
	CompressedSize   uint32 `json:"compressed_size"`
	UncompressedSize uint32 `json:"uncompressed_size"`
	Offset           uint32 `json:"offset"` // local file header offset from archive start
}

// Directory maps entry names to central directory records. Lookup is by
// name; iteration follows directory order. Read-only after parsing.
type Directory struct {
	entries map[string]Entry
	names   []string
	records int // raw record count, including duplicate names
}

func (d *Directory) Len() int {
	return len(d.names)
}

func (d *Directory) Get(name string) (Entry, bool) {
	e, ok := d.entries[name]
	return e, ok
}

// Names returns entry names in directory order.
func (d *Directory) Names() []string {
	names := make([]string, len(d.names))
	copy(names, d.names)
	return names
}

// Entries returns all entries in directory order.
func (d *Directory) Entries() []Entry {
	entries := make([]Entry, 0, len(d.names))
	for _, name := range d.names {
		entries = append(entries, d.entries[name])
	}
	return entries
}

// ParseCentralDirectory scans buf sequentially from offset 0, decoding one
// entry per central directory record. The first position whose 4-byte
// signature is not a central directory record ends the scan; that is the
// end-of-directory sentinel, not an error. A record whose signature matches
// but which extends past the buffer fails with ErrTruncatedRecord.
//
// Duplicate names keep the last record.
func ParseCentralDirectory(buf []byte) (*Directory, error) {
	dir := &Directory{entries: make(map[string]Entry)}

	pos := 0
	for pos+4 <= len(buf) {
		if binary.LittleEndian.Uint32(buf[pos:pos+4]) != centralDirectorySignature {
			break
		}
		if pos+centralHeaderSize > len(buf) {
			return nil, fmt.Errorf("%w: central directory entry at offset %d", ErrTruncatedRecord, pos)
		}

		rec := buf[pos:]
		nameLen := int(binary.LittleEndian.Uint16(rec[28:30]))
		extraLen := int(binary.LittleEndian.Uint16(rec[30:32]))
		commentLen := int(binary.LittleEndian.Uint16(rec[32:34]))
		recordLen := centralHeaderSize + nameLen + extraLen + commentLen
		if pos+recordLen > len(buf) {
			return nil, fmt.Errorf("%w: central directory entry at offset %d", ErrTruncatedRecord, pos)
		}

		entry := Entry{
			Name:             string(rec[centralHeaderSize : centralHeaderSize+nameLen]),
			Method:           binary.LittleEndian.Uint16(rec[10:12]),
			CRC32:            binary.LittleEndian.Uint32(rec[16:20]),
			CompressedSize:   binary.LittleEndian.Uint32(rec[20:24]),
			UncompressedSize: binary.LittleEndian.Uint32(rec[24:28]),
			Offset:           binary.LittleEndian.Uint32(rec[42:46]),
		}
		if _, seen := dir.entries[entry.Name]; !seen {
			dir.names = append(dir.names, entry.Name)
		}
		dir.entries[entry.Name] = entry
		dir.records++
		pos += recordLen
	}

	return dir, nil
}
