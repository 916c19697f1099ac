package zip

import (
	"bytes"
	"context"
	"fmt"
	"hash/crc32"

	"github.com/rs/zerolog"
	"github.com/sirrobot01/zipfetch/internal/request"
)

// Archive provides random-access reads of files inside a remote ZIP archive.
// The central directory is fetched once at Open; each ReadFile issues its own
// independent fetches. An open archive is immutable, so concurrent ReadFile
// calls are safe.
type Archive struct {
	url       string
	size      int64
	fetcher   Fetcher
	codec     Codec
	client    *request.Client
	dir       *Directory
	verifyCRC bool
	logger    zerolog.Logger
}

type Option func(*Archive)

// WithFetcher replaces the default HTTP range fetcher.
func WithFetcher(f Fetcher) Option {
	return func(a *Archive) {
		a.fetcher = f
	}
}

// WithCodec replaces the default deflate codec.
func WithCodec(c Codec) Option {
	return func(a *Archive) {
		a.codec = c
	}
}

// WithClient sets the HTTP client used by the default fetcher.
func WithClient(c *request.Client) Option {
	return func(a *Archive) {
		a.client = c
	}
}

func WithLogger(logger zerolog.Logger) Option {
	return func(a *Archive) {
		a.logger = logger
	}
}

// WithoutChecksum disables CRC-32 verification of decompressed entries.
func WithoutChecksum() Option {
	return func(a *Archive) {
		a.verifyCRC = false
	}
}

// Open determines the archive length, fetches the end of central directory
// record from the last 22 bytes, then fetches and parses the central
// directory. Archives with a trailing comment or ZIP64 records fail here,
// usually with ErrInvalidSignature.
func Open(ctx context.Context, url string, opts ...Option) (*Archive, error) {
	a := &Archive{
		url:       url,
		codec:     FlateCodec{},
		verifyCRC: true,
		logger:    zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(a)
	}
	if a.fetcher == nil {
		a.fetcher = NewHTTPFetcher(url, a.client, a.logger)
	}

	size, err := a.fetcher.Size(ctx)
	if err != nil {
		return nil, err
	}
	if size < endOfCentralDirSize {
		return nil, fmt.Errorf("%w: archive is %d bytes, need at least %d",
			ErrTruncatedRecord, size, endOfCentralDirSize)
	}
	a.size = size

	tail, err := a.fetcher.FetchRange(ctx, size-endOfCentralDirSize, size-1)
	if err != nil {
		return nil, err
	}
	eocd, err := parseEndOfCentralDir(tail)
	if err != nil {
		return nil, err
	}

	if eocd.dirSize == 0 {
		// A zero-length directory can't hold the records the tail claims.
		if eocd.entryCount > 0 {
			return nil, fmt.Errorf("%w: central directory has 0 of %d entries",
				ErrTruncatedRecord, eocd.entryCount)
		}
		a.dir = &Directory{entries: make(map[string]Entry)}
		return a, nil
	}

	buf, err := a.fetcher.FetchRange(ctx, int64(eocd.dirOffset), int64(eocd.dirOffset)+int64(eocd.dirSize)-1)
	if err != nil {
		return nil, err
	}
	dir, err := ParseCentralDirectory(buf)
	if err != nil {
		return nil, err
	}
	// The record count from the end of central directory record
	// distinguishes a legitimately short directory from a truncated one.
	if dir.records < int(eocd.entryCount) {
		return nil, fmt.Errorf("%w: central directory has %d of %d entries",
			ErrTruncatedRecord, dir.records, eocd.entryCount)
	}
	a.dir = dir

	a.logger.Debug().Str("url", url).Int("entries", dir.Len()).Int64("size", size).Msg("Opened remote archive")
	return a, nil
}

// URL returns the archive's source URL.
func (a *Archive) URL() string {
	return a.url
}

// Size returns the total archive length in bytes.
func (a *Archive) Size() int64 {
	return a.size
}

// Entries returns central directory entries in directory order.
func (a *Archive) Entries() []Entry {
	return a.dir.Entries()
}

// Entry looks up a single entry by name.
func (a *Archive) Entry(name string) (Entry, bool) {
	return a.dir.Get(name)
}

// ReadFile fetches and decompresses one file. It issues two fetches: a
// 30-byte probe to learn the local header's variable lengths, then the full
// record. Missing names fail with ErrFileNotFound before any fetch.
func (a *Archive) ReadFile(ctx context.Context, name string) ([]byte, error) {
	entry, ok := a.dir.Get(name)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrFileNotFound, name)
	}

	probe, err := a.fetcher.FetchRange(ctx, int64(entry.Offset), int64(entry.Offset)+localHeaderSize-1)
	if err != nil {
		return nil, err
	}
	hdr, err := ParseLocalFile(probe)
	if err != nil {
		return nil, err
	}

	// The probe only tells us the name and extra field lengths; the payload
	// size comes from the central directory entry.
	total := localHeaderSize + int64(hdr.NameLen) + int64(hdr.ExtraLen) + int64(entry.CompressedSize)
	full, err := a.fetcher.FetchRange(ctx, int64(entry.Offset), int64(entry.Offset)+total-1)
	if err != nil {
		return nil, err
	}
	file, err := ParseLocalFile(full)
	if err != nil {
		return nil, err
	}
	// Streamed entries defer sizes to a trailing data descriptor and leave
	// the local header's compressed size zero, so the payload window is cut
	// with the central directory size rather than file.Data.
	data := full[file.DataOffset():]

	var out []byte
	if file.Method == MethodStore {
		// The fetched buffer dies with this call, so hand back a copy.
		out = bytes.Clone(data)
	} else {
		out, err = a.codec.Decompress(data, file.Method, int(entry.UncompressedSize))
		if err != nil {
			return nil, err
		}
	}

	if a.verifyCRC {
		// The central directory CRC is authoritative; streamed entries
		// leave the local header's CRC zero.
		if sum := crc32.ChecksumIEEE(out); sum != entry.CRC32 {
			return nil, fmt.Errorf("%w: %s: got %08x, want %08x", ErrChecksumMismatch, name, sum, entry.CRC32)
		}
	}
	return out, nil
}
