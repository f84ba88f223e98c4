package jdfs

import (
	"encoding/base64"
	"fmt"
	"strings"
)

const stdAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789"

// Codec is a Base64 codec whose pad character and symbols 62 and 63 are
// substituted, so that encoded values are safe inside object keys.
type Codec struct {
	enc      *base64.Encoding
	pad      byte
	c62, c63 byte
	replacer *strings.Replacer
}

// KeyCodec renders master keys and encrypted filenames.
var KeyCodec = NewCodec('_', '[', ']')

// NewCodec creates a codec. It panics if the substitutes collide with the
// alphanumeric alphabet or each other, like base64.NewEncoding.
func NewCodec(pad, c62, c63 byte) *Codec {
	if pad == c62 || pad == c63 || c62 == c63 {
		panic("jdfs: codec characters must be distinct")
	}
	for _, c := range []byte{pad, c62, c63} {
		if strings.IndexByte(stdAlphabet, c) >= 0 {
			panic(fmt.Sprintf("jdfs: codec character %q is alphanumeric", c))
		}
	}
	alphabet := stdAlphabet + string([]byte{c62, c63})
	return &Codec{
		enc: base64.NewEncoding(alphabet).WithPadding(rune(pad)),
		pad: pad,
		c62: c62,
		c63: c63,
		// Decoding also accepts the standard symbols.
		replacer: strings.NewReplacer("+", string(c62), "/", string(c63), "=", string(pad)),
	}
}

// Encode renders data, always padded to a multiple of four characters.
func (c *Codec) Encode(data []byte) string {
	return c.enc.EncodeToString(data)
}

// Decode parses s. Inputs shorter than one quantum decode to nothing.
func (c *Codec) Decode(s string) ([]byte, error) {
	if len(s) < 4 {
		return []byte{}, nil
	}
	data, err := c.enc.DecodeString(c.replacer.Replace(s))
	if err != nil {
		return nil, fmt.Errorf("decode base64: %w", err)
	}
	return data, nil
}
