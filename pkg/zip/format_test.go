package zip

import (
	"encoding/binary"
	"errors"
	"testing"
)

func buildEOCD(count uint16, dirSize, dirOffset uint32) []byte {
	buf := make([]byte, endOfCentralDirSize)
	binary.LittleEndian.PutUint32(buf[0:4], endOfCentralDirSignature)
	binary.LittleEndian.PutUint16(buf[8:10], count)
	binary.LittleEndian.PutUint16(buf[10:12], count)
	binary.LittleEndian.PutUint32(buf[12:16], dirSize)
	binary.LittleEndian.PutUint32(buf[16:20], dirOffset)
	return buf
}

func TestParseEndOfCentralDir(t *testing.T) {
	eocd, err := parseEndOfCentralDir(buildEOCD(3, 178, 800))
	if err != nil {
		t.Fatalf("parseEndOfCentralDir failed: %v", err)
	}
	if eocd.entryCount != 3 {
		t.Errorf("Expected entry count 3, got %d", eocd.entryCount)
	}
	if eocd.dirSize != 178 {
		t.Errorf("Expected directory size 178, got %d", eocd.dirSize)
	}
	if eocd.dirOffset != 800 {
		t.Errorf("Expected directory offset 800, got %d", eocd.dirOffset)
	}
}

func TestParseEndOfCentralDir_BadSignature(t *testing.T) {
	buf := buildEOCD(1, 10, 0)
	binary.LittleEndian.PutUint32(buf[0:4], 0xdeadbeef)

	_, err := parseEndOfCentralDir(buf)
	if !errors.Is(err, ErrInvalidSignature) {
		t.Fatalf("Expected ErrInvalidSignature, got %v", err)
	}
}

func TestParseEndOfCentralDir_Short(t *testing.T) {
	_, err := parseEndOfCentralDir(buildEOCD(1, 10, 0)[:21])
	if !errors.Is(err, ErrTruncatedRecord) {
		t.Fatalf("Expected ErrTruncatedRecord, got %v", err)
	}
}
