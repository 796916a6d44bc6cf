// Package badge embeds credential JSON in PNG and SVG images and reads it
// back out. Baking never touches image content other than the payload
// container; extraction distinguishes a missing payload from a broken image.
package badge

import (
	"bytes"
	"encoding/json"
	"encoding/xml"
	"errors"
	"log/slog"

	"openbadges/internal/platform/metrics"
	dErrors "openbadges/pkg/domain-errors"
)

// Keyword names the PNG text chunk carrying the payload.
const Keyword = "openbadges"

// Namespace is the XML namespace of the SVG assertion element.
const Namespace = "http://openbadges.org"

var (
	// ErrNotFound means the image is well formed but carries no payload.
	ErrNotFound = errors.New("no embedded badge payload")
	// ErrUnsupportedImage means the bytes are neither PNG nor SVG.
	ErrUnsupportedImage = errors.New("image is neither PNG nor SVG")
	// ErrMalformedImage means the image is of a known kind but cannot be parsed.
	ErrMalformedImage = errors.New("malformed image")
	// ErrInvalidPayload means the payload is not a JSON document.
	ErrInvalidPayload = errors.New("badge payload is not valid JSON")
)

// Kind is the detected container format.
type Kind int

const (
	KindUnknown Kind = iota
	KindPNG
	KindSVG
)

func (k Kind) String() string {
	switch k {
	case KindPNG:
		return "png"
	case KindSVG:
		return "svg"
	default:
		return "unknown"
	}
}

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// Sniff detects the container format. It dispatches; it does not validate.
func Sniff(data []byte) Kind {
	if bytes.HasPrefix(data, pngSignature) {
		return KindPNG
	}
	if IsSVG(data) {
		return KindSVG
	}
	return KindUnknown
}

// IsSVG reports whether data is markup whose root element is svg, with or
// without a namespace prefix. Only the prolog and the root start tag are
// read.
func IsSVG(data []byte) bool {
	head := bytes.TrimPrefix(data, utf8BOM)
	head = bytes.TrimLeft(head, " \t\r\n")
	if len(head) == 0 || head[0] != '<' {
		return false
	}
	d := newSVGDecoder(head)
	for {
		tok, err := d.RawToken()
		if err != nil {
			return false
		}
		switch t := tok.(type) {
		case xml.StartElement:
			return t.Name.Local == "svg"
		case xml.CharData:
			if len(bytes.TrimSpace(t)) > 0 {
				return false
			}
		}
	}
}

func validPayload(payload []byte) error {
	if len(bytes.TrimSpace(payload)) == 0 || !json.Valid(payload) {
		return ErrInvalidPayload
	}
	return nil
}

// Bake embeds payload in img, replacing any payload already present.
func Bake(img, payload []byte) ([]byte, error) {
	switch Sniff(img) {
	case KindPNG:
		return BakePNG(img, payload)
	case KindSVG:
		return BakeSVG(img, payload)
	default:
		return nil, ErrUnsupportedImage
	}
}

// Extract returns the embedded payload of img.
func Extract(img []byte) ([]byte, error) {
	switch Sniff(img) {
	case KindPNG:
		return ExtractPNG(img)
	case KindSVG:
		return ExtractSVG(img)
	default:
		return nil, ErrUnsupportedImage
	}
}

// Codec wraps Bake and Extract with domain errors, logging and metrics.
type Codec struct {
	logger  *slog.Logger
	metrics *metrics.Metrics
}

// Option configures a Codec.
type Option func(*Codec)

// WithLogger sets the codec logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Codec) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithMetrics sets the codec metrics.
func WithMetrics(m *metrics.Metrics) Option {
	return func(c *Codec) {
		c.metrics = m
	}
}

// NewCodec creates a Codec.
func NewCodec(opts ...Option) *Codec {
	c := &Codec{logger: slog.New(slog.DiscardHandler)}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Bake embeds payload in img.
func (c *Codec) Bake(img, payload []byte) ([]byte, error) {
	kind := Sniff(img)
	out, err := Bake(img, payload)
	c.record("bake", kind, err)
	if err != nil {
		return nil, codecError(err, "bake")
	}
	c.logger.Debug("badge baked", "kind", kind.String(), "payload_bytes", len(payload), "image_bytes", len(out))
	return out, nil
}

// Extract reads the payload of img. A missing payload is a CodeNotFound
// error that still matches ErrNotFound.
func (c *Codec) Extract(img []byte) ([]byte, error) {
	kind := Sniff(img)
	payload, err := Extract(img)
	c.record("extract", kind, err)
	if err != nil {
		return nil, codecError(err, "extract")
	}
	return payload, nil
}

func (c *Codec) record(operation string, kind Kind, err error) {
	result := "ok"
	switch {
	case err == nil:
	case errors.Is(err, ErrNotFound):
		result = "not_found"
	default:
		result = "error"
	}
	c.metrics.IncrementBadgeOperation(operation, kind.String(), result)
}

func codecError(err error, operation string) error {
	switch {
	case errors.Is(err, ErrNotFound):
		return dErrors.Wrap(err, dErrors.CodeNotFound, "image carries no badge")
	case errors.Is(err, ErrUnsupportedImage):
		return dErrors.Wrap(err, dErrors.CodeUnsupportedMedia, "image must be PNG or SVG")
	case errors.Is(err, ErrMalformedImage), errors.Is(err, ErrInvalidPayload):
		return dErrors.Wrap(err, dErrors.CodeInvalidInput, operation+" failed")
	default:
		return dErrors.Wrap(err, dErrors.CodeInternal, operation+" failed")
	}
}
