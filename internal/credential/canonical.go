package credential

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"slices"
)

// Top-level member names in canonical order.
const (
	fieldContext           = "@context"
	fieldID                = "id"
	fieldType              = "type"
	fieldIssuer            = "issuer"
	fieldIssuanceDate      = "issuanceDate"
	fieldExpirationDate    = "expirationDate"
	fieldCredentialSubject = "credentialSubject"
	fieldCredentialStatus  = "credentialStatus"
	fieldCredentialSchema  = "credentialSchema"
	fieldProof             = "proof"
)

var (
	// ErrCanonicalization reports a credential whose values cannot be
	// serialized, such as cyclic maps.
	ErrCanonicalization = errors.New("credential cannot be canonicalized")
	// ErrMalformed reports input that is not a credential JSON object.
	ErrMalformed = errors.New("malformed credential")
	// ErrMultipleProofs reports a proof array with more than one entry.
	ErrMultipleProofs = errors.New("credential carries more than one proof")
)

// Canonicalize returns the bytes a proof signs: compact JSON in canonical
// member order with the proof removed. Nested object keys are sorted,
// numbers keep their original text and HTML characters are not escaped.
func Canonicalize(c *Credential) ([]byte, error) {
	return c.encode(false)
}

// MarshalJSON renders the credential, proof included, in canonical order.
func (c *Credential) MarshalJSON() ([]byte, error) {
	return c.encode(true)
}

// Parse decodes a credential document. Numbers are kept as json.Number so
// re-serialization reproduces them exactly.
func Parse(data []byte) (*Credential, error) {
	var c Credential
	if err := c.UnmarshalJSON(data); err != nil {
		return nil, err
	}
	return &c, nil
}

// Clone returns a deep copy of c. It fails for credentials that cannot be
// serialized.
func (c *Credential) Clone() (*Credential, error) {
	data, err := c.MarshalJSON()
	if err != nil {
		return nil, err
	}
	return Parse(data)
}

func (c *Credential) encode(withProof bool) ([]byte, error) {
	w := &objectWriter{}
	w.open()
	if len(c.Context) > 0 {
		w.member(fieldContext, c.Context)
	}
	if c.ID != "" {
		w.member(fieldID, c.ID)
	}
	if len(c.Type) > 0 {
		w.member(fieldType, c.Type)
	}
	if c.Issuer != nil {
		w.member(fieldIssuer, c.Issuer)
	}
	if c.IssuanceDate != "" {
		w.member(fieldIssuanceDate, c.IssuanceDate)
	}
	if c.ExpirationDate != "" {
		w.member(fieldExpirationDate, c.ExpirationDate)
	}
	if c.CredentialSubject != nil {
		w.member(fieldCredentialSubject, c.CredentialSubject)
	}
	if c.CredentialStatus != nil {
		w.member(fieldCredentialStatus, c.CredentialStatus)
	}
	if c.CredentialSchema != nil {
		w.member(fieldCredentialSchema, c.CredentialSchema)
	}
	if withProof && c.Proof != nil {
		w.member(fieldProof, c.Proof)
	}

	keys := make([]string, 0, len(c.Extensions))
	for k := range c.Extensions {
		if isKnownField(k) {
			continue
		}
		keys = append(keys, k)
	}
	slices.Sort(keys)
	for _, k := range keys {
		w.member(k, c.Extensions[k])
	}
	w.close()

	if w.err != nil {
		return nil, fmt.Errorf("%w: %w", ErrCanonicalization, w.err)
	}
	return w.buf.Bytes(), nil
}

func (c *Credential) UnmarshalJSON(data []byte) error {
	raw, err := decodeObject(data)
	if err != nil {
		return err
	}

	var out Credential
	for key, value := range raw {
		switch key {
		case fieldContext:
			out.Context, err = decodeList[any](value)
		case fieldID:
			err = decodeInto(value, &out.ID)
		case fieldType:
			out.Type, err = decodeList[string](value)
		case fieldIssuer:
			out.Issuer, err = decodeAny(value)
		case fieldIssuanceDate:
			err = decodeInto(value, &out.IssuanceDate)
		case fieldExpirationDate:
			err = decodeInto(value, &out.ExpirationDate)
		case fieldCredentialSubject:
			err = decodeInto(value, &out.CredentialSubject)
		case fieldCredentialStatus:
			err = decodeInto(value, &out.CredentialStatus)
		case fieldCredentialSchema:
			out.CredentialSchema, err = decodeAny(value)
		case fieldProof:
			out.Proof, err = decodeProof(value)
		default:
			var v any
			if v, err = decodeAny(value); err == nil {
				out.SetExtension(key, v)
			}
		}
		if err != nil {
			if errors.Is(err, ErrMultipleProofs) {
				return err
			}
			return fmt.Errorf("%w: %s: %w", ErrMalformed, key, err)
		}
	}
	*c = out
	return nil
}

func isKnownField(k string) bool {
	switch k {
	case fieldContext, fieldID, fieldType, fieldIssuer, fieldIssuanceDate, fieldExpirationDate,
		fieldCredentialSubject, fieldCredentialStatus, fieldCredentialSchema, fieldProof:
		return true
	}
	return false
}

// objectWriter emits one JSON object member by member and remembers the
// first failure.
type objectWriter struct {
	buf   bytes.Buffer
	count int
	err   error
}

func (w *objectWriter) open()  { w.buf.WriteByte('{') }
func (w *objectWriter) close() { w.buf.WriteByte('}') }

func (w *objectWriter) member(key string, value any) {
	if w.err != nil {
		return
	}
	k, err := encodeValue(key)
	if err != nil {
		w.err = err
		return
	}
	v, err := encodeValue(value)
	if err != nil {
		w.err = err
		return
	}
	if w.count > 0 {
		w.buf.WriteByte(',')
	}
	w.buf.Write(k)
	w.buf.WriteByte(':')
	w.buf.Write(v)
	w.count++
}

func encodeValue(v any) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return nil, err
	}
	return bytes.TrimSuffix(buf.Bytes(), []byte{'\n'}), nil
}

func newDecoder(data []byte) *json.Decoder {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	return dec
}

func decodeInto(data []byte, v any) error {
	dec := newDecoder(data)
	if err := dec.Decode(v); err != nil {
		return err
	}
	if _, err := dec.Token(); !errors.Is(err, io.EOF) {
		return errors.New("trailing data")
	}
	return nil
}

func decodeObject(data []byte) (map[string]json.RawMessage, error) {
	var raw map[string]json.RawMessage
	if err := decodeInto(data, &raw); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrMalformed, err)
	}
	if raw == nil {
		return nil, fmt.Errorf("%w: not a JSON object", ErrMalformed)
	}
	return raw, nil
}

func decodeAny(data []byte) (any, error) {
	var v any
	err := decodeInto(data, &v)
	return v, err
}

// decodeList accepts either a single value or an array of values.
func decodeList[T any](data []byte) ([]T, error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) > 0 && trimmed[0] == '[' {
		var out []T
		err := decodeInto(trimmed, &out)
		return out, err
	}
	var single T
	if err := decodeInto(trimmed, &single); err != nil {
		return nil, err
	}
	return []T{single}, nil
}

func decodeProof(data []byte) (*Proof, error) {
	trimmed := bytes.TrimSpace(data)
	if bytes.Equal(trimmed, []byte("null")) {
		return nil, nil
	}
	proofs, err := decodeList[Proof](trimmed)
	if err != nil {
		return nil, err
	}
	switch len(proofs) {
	case 0:
		return nil, nil
	case 1:
		return &proofs[0], nil
	default:
		return nil, ErrMultipleProofs
	}
}
