package sync

import (
	"bytes"
	"database/sql/driver"
	"encoding/base64"
	"encoding/json"
	"fmt"
)

// Content is a binary column (blob content, embedding vector) that travels
// base64 encoded and is stored either as bytes or as text.
type Content struct {
	data    []byte
	text    string
	isText  bool
	encoded bool
	valid   bool
}

// BinaryContent wraps raw bytes.
func BinaryContent(b []byte) Content {
	return Content{data: b, valid: true}
}

// TextContent wraps a string stored as TEXT.
func TextContent(s string) Content {
	return Content{text: s, isText: true, valid: true}
}

// Base64Content wraps undecoded wire text.
func Base64Content(s string) Content {
	return Content{text: s, isText: true, encoded: true, valid: true}
}

// Valid reports whether the content is non-NULL.
func (c Content) Valid() bool { return c.valid }

// Encoded reports whether the content still holds base64 wire text.
func (c Content) Encoded() bool { return c.encoded }

// IsText reports whether the content is stored as a string.
func (c Content) IsText() bool { return c.isText }

// Bytes returns the stored bytes. For encoded content this is the base64 text.
func (c Content) Bytes() []byte {
	if c.isText {
		return []byte(c.text)
	}
	return c.data
}

// Decode converts base64 wire text into binary content. An empty result
// becomes empty text: an empty buffer is otherwise persisted as NULL by the
// driver and later reported as an inconsistency.
func (c Content) Decode() (Content, error) {
	if !c.valid || !c.encoded {
		return c, nil
	}
	b, err := base64.StdEncoding.DecodeString(c.text)
	if err != nil {
		return Content{}, fmt.Errorf("%w: %v", ErrDecode, err)
	}
	if len(b) == 0 {
		return TextContent(""), nil
	}
	return BinaryContent(b), nil
}

// Value implements driver.Valuer.
func (c Content) Value() (driver.Value, error) {
	switch {
	case !c.valid:
		return nil, nil
	case c.isText:
		return c.text, nil
	case len(c.data) == 0:
		return "", nil
	default:
		return c.data, nil
	}
}

// Scan implements sql.Scanner.
func (c *Content) Scan(src any) error {
	switch v := src.(type) {
	case nil:
		*c = Content{}
	case []byte:
		*c = BinaryContent(bytes.Clone(v))
	case string:
		*c = TextContent(v)
	default:
		return fmt.Errorf("scan content: unsupported type %T", src)
	}
	return nil
}

// MarshalJSON encodes the content as base64, or null.
func (c Content) MarshalJSON() ([]byte, error) {
	if !c.valid {
		return []byte("null"), nil
	}
	if c.encoded {
		return json.Marshal(c.text)
	}
	return json.Marshal(base64.StdEncoding.EncodeToString(c.Bytes()))
}

// UnmarshalJSON keeps the base64 text undecoded; PreprocessContent decodes it.
func (c *Content) UnmarshalJSON(b []byte) error {
	if bytes.Equal(bytes.TrimSpace(b), []byte("null")) {
		*c = Content{}
		return nil
	}
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return fmt.Errorf("content must be a base64 string: %w", err)
	}
	*c = Base64Content(s)
	return nil
}

// PreprocessContent normalizes row before it is written. Only blob rows with
// non-null content change: base64 text is decoded to binary. The input row
// is not modified.
func PreprocessContent(row Row) (Row, error) {
	blob, ok := row.(*BlobRow)
	if !ok || !blob.Content.Valid() {
		return row, nil
	}

	decoded, err := blob.Content.Decode()
	if err != nil {
		return nil, fmt.Errorf("blob %s: %w", blob.BlobID, err)
	}

	out := *blob
	out.Content = decoded
	return &out, nil
}

// DecodeEmbedding returns a copy of row with its vector decoded from base64.
func DecodeEmbedding(row *NoteEmbeddingRow) (*NoteEmbeddingRow, error) {
	decoded, err := row.Embedding.Decode()
	if err != nil {
		return nil, fmt.Errorf("embedding %s: %w", row.EmbedID, err)
	}
	out := *row
	out.Embedding = decoded
	return &out, nil
}
