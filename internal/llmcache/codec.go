package llmcache

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/klauspost/compress/zlib"
)

// Stored payload format markers. A stored value is one marker byte followed by
// the body.
const (
	markerPlain byte = 0x01
	markerZlib  byte = 0x02
)

const (
	DefaultCompressThreshold = 1024
	DefaultMaxDecodedBytes   = 32 << 20
)

// Codec converts provider results to and from their stored form.
type Codec struct {
	compressThreshold int
	maxDecodedBytes   int64
}

type CodecOptions struct {
	// CompressThreshold is the body size in bytes above which results are
	// zlib-compressed. Zero uses DefaultCompressThreshold; negative disables
	// compression.
	CompressThreshold int
	// MaxDecodedBytes bounds the inflated size of a stored entry.
	MaxDecodedBytes int64
}

func NewCodec(opts CodecOptions) *Codec {
	if opts.CompressThreshold == 0 {
		opts.CompressThreshold = DefaultCompressThreshold
	}
	if opts.MaxDecodedBytes <= 0 {
		opts.MaxDecodedBytes = DefaultMaxDecodedBytes
	}
	return &Codec{
		compressThreshold: opts.CompressThreshold,
		maxDecodedBytes:   opts.MaxDecodedBytes,
	}
}

// Encode serializes a result for storage. The result must be a JSON document;
// its bytes are preserved exactly.
func (c *Codec) Encode(result json.RawMessage) ([]byte, error) {
	if !json.Valid(result) {
		return nil, errors.New("llmcache: provider result is not valid JSON")
	}
	if c.compressThreshold < 0 || len(result) <= c.compressThreshold {
		out := make([]byte, 0, len(result)+1)
		out = append(out, markerPlain)
		return append(out, result...), nil
	}

	var buf bytes.Buffer
	buf.WriteByte(markerZlib)
	zw, err := zlib.NewWriterLevel(&buf, zlib.DefaultCompression)
	if err != nil {
		return nil, fmt.Errorf("llmcache: create zlib writer: %w", err)
	}
	if _, err := zw.Write(result); err != nil {
		return nil, fmt.Errorf("llmcache: compress result: %w", err)
	}
	if err := zw.Close(); err != nil {
		return nil, fmt.Errorf("llmcache: compress result: %w", err)
	}
	return buf.Bytes(), nil
}

// Decode reverses Encode. It also accepts entries written before format
// markers existed: bare zlib streams and bare JSON documents. Any other
// leading byte is a DecodeError.
func (c *Codec) Decode(data []byte) (json.RawMessage, error) {
	if len(data) == 0 {
		return nil, &DecodeError{Reason: "empty payload"}
	}

	var body []byte
	var err error
	switch first := data[0]; {
	case first == markerPlain:
		body = bytes.Clone(data[1:])
	case first == markerZlib:
		body, err = c.inflate(data[1:])
	case isZlibHeader(data):
		body, err = c.inflate(data)
	case first == '{' || first == '[' || first == '"':
		body = bytes.Clone(data)
	default:
		return nil, &DecodeError{Reason: fmt.Sprintf("unknown format marker 0x%02x", first)}
	}
	if err != nil {
		return nil, err
	}
	if !json.Valid(body) {
		return nil, &DecodeError{Reason: "body is not valid JSON"}
	}
	return json.RawMessage(body), nil
}

func (c *Codec) inflate(data []byte) ([]byte, error) {
	zr, err := zlib.NewReader(bytes.NewReader(data))
	if err != nil {
		return nil, &DecodeError{Reason: "corrupt zlib header", Err: err}
	}
	defer zr.Close()

	body, err := io.ReadAll(io.LimitReader(zr, c.maxDecodedBytes+1))
	if err != nil {
		return nil, &DecodeError{Reason: "corrupt zlib body", Err: err}
	}
	if int64(len(body)) > c.maxDecodedBytes {
		return nil, &DecodeError{Reason: fmt.Sprintf("inflated payload exceeds %d bytes", c.maxDecodedBytes)}
	}
	return body, nil
}

// isZlibHeader reports whether data starts with a deflate zlib header
// (RFC 1950): CM=8, a window size CINFO of at most 7, and a valid FCHECK.
func isZlibHeader(data []byte) bool {
	if len(data) < 2 {
		return false
	}
	cmf, flg := data[0], data[1]
	if cmf&0x0f != 8 || cmf>>4 > 7 {
		return false
	}
	return (uint16(cmf)<<8|uint16(flg))%31 == 0
}
