package zip

import (
	"bytes"
	"fmt"
	"io"

	"github.com/klauspost/compress/flate"
)

// Codec decompresses entry payloads. sizeHint is the expected output size
// and is only an allocation hint, never a correctness check. Unsupported
// methods must fail with an error wrapping ErrUnsupportedCompression.
type Codec interface {
	Decompress(data []byte, method uint16, sizeHint int) ([]byte, error)
}

// FlateCodec inflates deflate-compressed payloads.
type FlateCodec struct{}

func (FlateCodec) Decompress(data []byte, method uint16, sizeHint int) ([]byte, error) {
	if method != MethodDeflate {
		return nil, fmt.Errorf("%w: method %d", ErrUnsupportedCompression, method)
	}

	fr := flate.NewReader(bytes.NewReader(data))
	defer fr.Close()

	out := bytes.NewBuffer(make([]byte, 0, sizeHint))
	if _, err := io.Copy(out, fr); err != nil {
		return nil, fmt.Errorf("inflate: %w", err)
	}
	return out.Bytes(), nil
}
