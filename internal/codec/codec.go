// Package codec encodes the records exchanged on the broker. JSON is the
// default; CBOR trades readability for size on busy notification topics.
package codec

import (
	"encoding/json"
	"fmt"

	"github.com/fxamacker/cbor/v2"
)

// Header is the message header carrying the codec content type.
const Header = "content-type"

// Codec marshals broker record keys and values.
type Codec interface {
	Marshal(v any) ([]byte, error)
	Unmarshal(data []byte, v any) error
	ContentType() string
}

// JSON is the default codec.
type JSON struct{}

func (JSON) Marshal(v any) ([]byte, error) {
	return json.Marshal(v)
}

func (JSON) Unmarshal(data []byte, v any) error {
	return json.Unmarshal(data, v)
}

func (JSON) ContentType() string {
	return "application/json"
}

// CBOR encodes records with canonical CBOR so equal keys hash to the same
// partition.
type CBOR struct {
	enc cbor.EncMode
}

// NewCBOR builds a CBOR codec with core deterministic encoding.
func NewCBOR() (CBOR, error) {
	enc, err := cbor.CoreDetEncOptions().EncMode()
	if err != nil {
		return CBOR{}, fmt.Errorf("cbor encoder: %w", err)
	}
	return CBOR{enc: enc}, nil
}

func (c CBOR) Marshal(v any) ([]byte, error) {
	return c.enc.Marshal(v)
}

func (CBOR) Unmarshal(data []byte, v any) error {
	return cbor.Unmarshal(data, v)
}

func (CBOR) ContentType() string {
	return "application/cbor"
}

// ByName returns the codec configured as name.
func ByName(name string) (Codec, error) {
	switch name {
	case "", "json":
		return JSON{}, nil
	case "cbor":
		c, err := NewCBOR()
		if err != nil {
			return nil, err
		}
		return c, nil
	default:
		return nil, fmt.Errorf("unknown codec %q", name)
	}
}
