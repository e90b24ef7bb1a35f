package sync

import (
	"encoding/base64"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPreprocessContent_DecodesBlobBase64(t *testing.T) {
	original := []byte{0x00, 0x01, 0xfe, 0xff, 'h', 'i'}
	row := &BlobRow{
		BlobID:  "blob1",
		Content: Base64Content(base64.StdEncoding.EncodeToString(original)),
	}

	out, err := PreprocessContent(row)
	require.NoError(t, err)

	blob := out.(*BlobRow)
	assert.False(t, blob.Content.Encoded())
	assert.False(t, blob.Content.IsText())
	assert.Equal(t, original, blob.Content.Bytes())

	v, err := blob.Content.Value()
	require.NoError(t, err)
	assert.Equal(t, original, v)

	// input row untouched
	assert.True(t, row.Content.Encoded())
}

func TestPreprocessContent_EmptyBufferBecomesEmptyString(t *testing.T) {
	row := &BlobRow{BlobID: "blob1", Content: Base64Content("")}

	out, err := PreprocessContent(row)
	require.NoError(t, err)

	blob := out.(*BlobRow)
	assert.True(t, blob.Content.IsText())
	v, err := blob.Content.Value()
	require.NoError(t, err)
	assert.Equal(t, "", v)

	// a second pass is a no-op
	again, err := PreprocessContent(blob)
	require.NoError(t, err)
	v, err = again.(*BlobRow).Content.Value()
	require.NoError(t, err)
	assert.Equal(t, "", v)
}

func TestPreprocessContent_NullContentUntouched(t *testing.T) {
	row := &BlobRow{BlobID: "blob1"}

	out, err := PreprocessContent(row)
	require.NoError(t, err)
	assert.Same(t, row, out)

	v, err := out.(*BlobRow).Content.Value()
	require.NoError(t, err)
	assert.Nil(t, v)
}

func TestPreprocessContent_MalformedBase64(t *testing.T) {
	row := &BlobRow{BlobID: "blob1", Content: Base64Content("not base64!!")}

	_, err := PreprocessContent(row)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrDecode))
}

func TestPreprocessContent_OtherKindsPassThrough(t *testing.T) {
	note := &NoteRow{NoteID: "n1", Title: "aGVsbG8="}

	out, err := PreprocessContent(note)
	require.NoError(t, err)
	assert.Same(t, note, out)
}

func TestContent_JSONRoundTrip(t *testing.T) {
	original := []byte("binary\x00payload")
	c := BinaryContent(original)

	b, err := c.MarshalJSON()
	require.NoError(t, err)

	var decoded Content
	require.NoError(t, decoded.UnmarshalJSON(b))
	require.True(t, decoded.Encoded())

	plain, err := decoded.Decode()
	require.NoError(t, err)
	assert.Equal(t, original, plain.Bytes())
}

func TestContent_Scan(t *testing.T) {
	var c Content

	require.NoError(t, c.Scan([]byte{1, 2, 3}))
	assert.Equal(t, []byte{1, 2, 3}, c.Bytes())
	assert.False(t, c.IsText())

	require.NoError(t, c.Scan("text note"))
	assert.True(t, c.IsText())
	assert.Equal(t, []byte("text note"), c.Bytes())

	require.NoError(t, c.Scan(nil))
	assert.False(t, c.Valid())

	assert.Error(t, c.Scan(42))
}

func TestDecodeEmbedding(t *testing.T) {
	vector := []byte{0, 0, 128, 63}
	row := &NoteEmbeddingRow{
		EmbedID:   "e1",
		Embedding: Base64Content(base64.StdEncoding.EncodeToString(vector)),
	}

	out, err := DecodeEmbedding(row)
	require.NoError(t, err)
	assert.Equal(t, vector, out.Embedding.Bytes())
	assert.True(t, row.Embedding.Encoded())
}
