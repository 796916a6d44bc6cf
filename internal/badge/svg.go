package badge

import (
	"bytes"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
)

const (
	defaultPrefix = "openbadges"
	assertionTag  = "assertion"
)

// span is a half-open byte range of the source document.
type span struct{ start, end int }

// svgLayout is what baking needs to know about a document.
type svgLayout struct {
	rootTag     span   // root start tag, '<' through '>'
	selfClosing bool   // root is <svg .../>
	rootClose   int    // offset of the root end tag
	prefix      string // prefix bound to Namespace on the root, if any
	prefixTaken bool   // defaultPrefix is bound to another namespace
	assertions  []span // existing assertion children of the root
}

func newSVGDecoder(doc []byte) *xml.Decoder {
	d := xml.NewDecoder(bytes.NewReader(doc))
	d.Entity = xml.HTMLEntity
	return d
}

func scanSVG(doc []byte) (*svgLayout, error) {
	d := newSVGDecoder(doc)
	layout := &svgLayout{}
	depth := 0
	var open *span

	for {
		start := int(d.InputOffset())
		tok, err := d.Token()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrMalformedImage, err)
		}
		end := int(d.InputOffset())

		switch t := tok.(type) {
		case xml.StartElement:
			depth++
			if depth == 1 {
				if t.Name.Local != "svg" {
					return nil, fmt.Errorf("%w: root element is <%s>", ErrUnsupportedImage, t.Name.Local)
				}
				layout.rootTag = span{start, end}
				layout.selfClosing = bytes.HasSuffix(doc[start:end], []byte("/>"))
				for _, a := range t.Attr {
					if a.Name.Space != "xmlns" {
						continue
					}
					if a.Value == Namespace {
						layout.prefix = a.Name.Local
					} else if a.Name.Local == defaultPrefix {
						layout.prefixTaken = true
					}
				}
			}
			if depth == 2 && isAssertion(t.Name) {
				open = &span{start: start}
			}
		case xml.EndElement:
			if depth == 2 && open != nil {
				open.end = end
				layout.assertions = append(layout.assertions, *open)
				open = nil
			}
			if depth == 1 {
				layout.rootClose = start
			}
			depth--
		}
	}
	if layout.rootTag.end == 0 {
		return nil, fmt.Errorf("%w: no root element", ErrMalformedImage)
	}
	return layout, nil
}

func isAssertion(name xml.Name) bool {
	return name.Space == Namespace && name.Local == assertionTag
}

// cdata wraps payload in CDATA, splitting any "]]>" it contains across two
// sections so the text content is unchanged.
func cdata(payload []byte) []byte {
	var b bytes.Buffer
	b.WriteString("<![CDATA[")
	b.Write(bytes.ReplaceAll(payload, []byte("]]>"), []byte("]]]]><![CDATA[>")))
	b.WriteString("]]>")
	return b.Bytes()
}

// BakeSVG declares the openbadges namespace on the root element unless it is
// already declared, drops any existing assertion element and appends
// <openbadges:assertion> with payload in CDATA as the root's last child.
func BakeSVG(doc, payload []byte) ([]byte, error) {
	if !IsSVG(doc) {
		return nil, ErrUnsupportedImage
	}
	if err := validPayload(payload); err != nil {
		return nil, err
	}
	layout, err := scanSVG(doc)
	if err != nil {
		return nil, err
	}

	prefix := layout.prefix
	var nsAttr string
	if prefix == "" {
		if layout.prefixTaken {
			return nil, fmt.Errorf("%w: prefix %q bound to another namespace", ErrMalformedImage, defaultPrefix)
		}
		prefix = defaultPrefix
		nsAttr = fmt.Sprintf(` xmlns:%s="%s"`, prefix, Namespace)
	}

	element := make([]byte, 0, len(payload)+64)
	element = append(element, "<"+prefix+":"+assertionTag+">"...)
	element = append(element, cdata(payload)...)
	element = append(element, "</"+prefix+":"+assertionTag+">"...)

	var out bytes.Buffer
	out.Grow(len(doc) + len(element) + len(nsAttr))
	tagEnd := layout.rootTag.end

	if layout.selfClosing {
		// <svg .../> becomes <svg ...>element</svg>
		body := bytes.TrimRight(doc[layout.rootTag.start:tagEnd-2], " \t\r\n")
		out.Write(doc[:layout.rootTag.start])
		out.Write(body)
		out.WriteString(nsAttr)
		out.WriteByte('>')
		out.Write(element)
		out.WriteString("</" + rootName(body) + ">")
		out.Write(doc[tagEnd:])
		return out.Bytes(), nil
	}

	out.Write(doc[:tagEnd-1])
	out.WriteString(nsAttr)
	out.WriteByte('>')
	pos := tagEnd
	for _, a := range layout.assertions {
		out.Write(doc[pos:a.start])
		pos = a.end
	}
	out.Write(doc[pos:layout.rootClose])
	out.Write(element)
	out.Write(doc[layout.rootClose:])
	return out.Bytes(), nil
}

// rootName returns the qualified element name of a start tag, e.g. "svg"
// or "svg:svg".
func rootName(tag []byte) string {
	name := bytes.TrimPrefix(tag, []byte("<"))
	if i := bytes.IndexAny(name, " \t\r\n/>"); i >= 0 {
		name = name[:i]
	}
	return string(name)
}

// ExtractSVG returns the text content of the first openbadges assertion
// element anywhere in the document.
func ExtractSVG(doc []byte) ([]byte, error) {
	if !IsSVG(doc) {
		return nil, ErrUnsupportedImage
	}
	d := newSVGDecoder(doc)

	var (
		inside  int
		payload bytes.Buffer
		found   bool
	)
	for {
		tok, err := d.Token()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrMalformedImage, err)
		}
		switch t := tok.(type) {
		case xml.StartElement:
			if inside > 0 {
				inside++
			} else if !found && isAssertion(t.Name) {
				inside = 1
				found = true
			}
		case xml.EndElement:
			if inside > 0 {
				inside--
			}
		case xml.CharData:
			if inside > 0 {
				payload.Write(t)
			}
		}
	}
	if !found {
		return nil, ErrNotFound
	}
	out := bytes.TrimSpace(payload.Bytes())
	if len(out) == 0 {
		return nil, ErrNotFound
	}
	if err := validPayload(out); err != nil {
		return nil, err
	}
	return out, nil
}
