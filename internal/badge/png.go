package badge

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"hash/crc32"
	"io"

	"github.com/klauspost/compress/zlib"
)

var pngSignature = []byte{0x89, 'P', 'N', 'G', '\r', '\n', 0x1a, '\n'}

const (
	chunkIHDR = "IHDR"
	chunkIEND = "IEND"
	chunkITXt = "iTXt"
	chunkTEXt = "tEXt"
	chunkZTXt = "zTXt"

	// PNG limits chunk lengths to 2^31-1.
	maxChunkLength = 1<<31 - 1
)

// chunk is one PNG chunk. raw holds its exact bytes, length through CRC.
type chunk struct {
	typ  string
	data []byte
	raw  []byte
}

func (c chunk) crcValid() bool {
	want := binary.BigEndian.Uint32(c.raw[len(c.raw)-4:])
	return want == chunkCRC(c.typ, c.data)
}

func chunkCRC(typ string, data []byte) uint32 {
	h := crc32.NewIEEE()
	_, _ = h.Write([]byte(typ))
	_, _ = h.Write(data)
	return h.Sum32()
}

func encodeChunk(typ string, data []byte) []byte {
	out := make([]byte, 0, 12+len(data))
	out = binary.BigEndian.AppendUint32(out, uint32(len(data)))
	out = append(out, typ...)
	out = append(out, data...)
	return binary.BigEndian.AppendUint32(out, chunkCRC(typ, data))
}

// parseChunks splits a PNG into chunks up to and including IEND. Any bytes
// after IEND are returned as trailer.
func parseChunks(img []byte) ([]chunk, []byte, error) {
	if !bytes.HasPrefix(img, pngSignature) {
		return nil, nil, fmt.Errorf("%w: missing PNG signature", ErrMalformedImage)
	}
	rest := img[len(pngSignature):]

	var chunks []chunk
	for {
		if len(rest) < 12 {
			return nil, nil, fmt.Errorf("%w: truncated chunk stream", ErrMalformedImage)
		}
		length := binary.BigEndian.Uint32(rest[:4])
		if length > maxChunkLength || int(length) > len(rest)-12 {
			return nil, nil, fmt.Errorf("%w: chunk length %d exceeds data", ErrMalformedImage, length)
		}
		end := 12 + int(length)
		c := chunk{
			typ:  string(rest[4:8]),
			data: rest[8 : 8+length],
			raw:  rest[:end],
		}
		if len(chunks) == 0 && c.typ != chunkIHDR {
			return nil, nil, fmt.Errorf("%w: first chunk is %q, want IHDR", ErrMalformedImage, c.typ)
		}
		chunks = append(chunks, c)
		rest = rest[end:]
		if c.typ == chunkIEND {
			return chunks, rest, nil
		}
	}
}

// textKeyword returns the keyword of a tEXt, zTXt or iTXt chunk.
func textKeyword(c chunk) (string, bool) {
	switch c.typ {
	case chunkTEXt, chunkZTXt, chunkITXt:
	default:
		return "", false
	}
	i := bytes.IndexByte(c.data, 0)
	if i < 0 {
		return "", false
	}
	return string(c.data[:i]), true
}

func isPayloadChunk(c chunk) bool {
	kw, ok := textKeyword(c)
	return ok && kw == Keyword
}

// PNGOption configures PNG baking.
type PNGOption func(*pngOptions)

type pngOptions struct {
	compress bool
}

// WithCompression stores the payload zlib-compressed in the iTXt chunk.
func WithCompression() PNGOption {
	return func(o *pngOptions) {
		o.compress = true
	}
}

// BakePNG inserts an iTXt chunk carrying payload immediately before IEND.
// Existing openbadges text chunks are dropped; every other chunk is copied
// byte for byte.
func BakePNG(img, payload []byte, opts ...PNGOption) ([]byte, error) {
	if !bytes.HasPrefix(img, pngSignature) {
		return nil, ErrUnsupportedImage
	}
	if err := validPayload(payload); err != nil {
		return nil, err
	}
	var o pngOptions
	for _, opt := range opts {
		opt(&o)
	}

	chunks, trailer, err := parseChunks(img)
	if err != nil {
		return nil, err
	}
	text, err := encodeITXt(payload, o.compress)
	if err != nil {
		return nil, err
	}

	out := make([]byte, 0, len(img)+len(text)+12)
	out = append(out, pngSignature...)
	for _, c := range chunks {
		if isPayloadChunk(c) {
			continue
		}
		if c.typ == chunkIEND {
			out = append(out, encodeChunk(chunkITXt, text)...)
		}
		out = append(out, c.raw...)
	}
	return append(out, trailer...), nil
}

// encodeITXt lays out keyword, compression flag and method, empty language
// tag and translated keyword, then the text.
func encodeITXt(payload []byte, compress bool) ([]byte, error) {
	var b bytes.Buffer
	b.WriteString(Keyword)
	b.WriteByte(0)
	if !compress {
		b.Write([]byte{0, 0, 0, 0})
		b.Write(payload)
		return b.Bytes(), nil
	}
	b.Write([]byte{1, 0, 0, 0})
	zw := zlib.NewWriter(&b)
	if _, err := zw.Write(payload); err != nil {
		return nil, fmt.Errorf("compressing payload: %w", err)
	}
	if err := zw.Close(); err != nil {
		return nil, fmt.Errorf("compressing payload: %w", err)
	}
	return b.Bytes(), nil
}

// ExtractPNG returns the payload of the first openbadges text chunk. The
// chunk CRC is checked before the payload is trusted.
func ExtractPNG(img []byte) ([]byte, error) {
	if !bytes.HasPrefix(img, pngSignature) {
		return nil, ErrUnsupportedImage
	}
	chunks, _, err := parseChunks(img)
	if err != nil {
		return nil, err
	}
	for _, c := range chunks {
		if !isPayloadChunk(c) {
			continue
		}
		if !c.crcValid() {
			return nil, fmt.Errorf("%w: CRC mismatch in %s chunk", ErrMalformedImage, c.typ)
		}
		payload, err := decodeText(c)
		if err != nil {
			return nil, err
		}
		payload = bytes.TrimSpace(payload)
		if err := validPayload(payload); err != nil {
			return nil, err
		}
		return payload, nil
	}
	return nil, ErrNotFound
}

func decodeText(c chunk) ([]byte, error) {
	body := c.data[len(Keyword)+1:]
	switch c.typ {
	case chunkTEXt:
		return body, nil
	case chunkZTXt:
		if len(body) < 1 || body[0] != 0 {
			return nil, fmt.Errorf("%w: unknown zTXt compression method", ErrMalformedImage)
		}
		return inflate(body[1:])
	}

	if len(body) < 2 {
		return nil, fmt.Errorf("%w: short iTXt chunk", ErrMalformedImage)
	}
	compressed, method := body[0], body[1]
	body = body[2:]
	// language tag, then translated keyword
	for range 2 {
		i := bytes.IndexByte(body, 0)
		if i < 0 {
			return nil, fmt.Errorf("%w: unterminated iTXt header", ErrMalformedImage)
		}
		body = body[i+1:]
	}
	switch {
	case compressed == 0:
		return body, nil
	case compressed == 1 && method == 0:
		return inflate(body)
	default:
		return nil, fmt.Errorf("%w: unknown iTXt compression", ErrMalformedImage)
	}
}

func inflate(data []byte) ([]byte, error) {
	zr, err := zlib.NewReader(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedImage, err)
	}
	defer zr.Close()
	out, err := io.ReadAll(zr)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedImage, err)
	}
	return out, nil
}
