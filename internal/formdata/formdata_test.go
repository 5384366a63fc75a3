package formdata

import (
	"bytes"
	"io"
	"mime/multipart"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func buildBody(t *testing.T, build func(w *multipart.Writer)) (string, *bytes.Buffer) {
	t.Helper()
	body := &bytes.Buffer{}
	w := multipart.NewWriter(body)
	build(w)
	require.NoError(t, w.Close())
	return w.FormDataContentType(), body
}

func TestBoundary(t *testing.T) {
	tests := []struct {
		name        string
		contentType string
		want        string
		wantErr     bool
	}{
		{name: "plain", contentType: "multipart/form-data; boundary=abc", want: "abc"},
		{name: "quoted", contentType: `multipart/form-data; boundary="a b"`, want: "a b"},
		{name: "empty header", contentType: "", wantErr: true},
		{name: "no boundary", contentType: "multipart/form-data", wantErr: true},
		{name: "not multipart", contentType: "application/json; boundary=abc", wantErr: true},
		{name: "unparsable", contentType: "multipart/form-data; boundary", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Boundary(tt.contentType)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrMalformedRequest)
				return
			}
			assert.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestReader_Next(t *testing.T) {
	ct, body := buildBody(t, func(w *multipart.Writer) {
		require.NoError(t, w.WriteField("Name", "Widget"))
		fw, err := w.CreateFormFile("ProductImage", "w.png")
		require.NoError(t, err)
		_, _ = fw.Write([]byte{0x01, 0x02})
		require.NoError(t, w.WriteField("Description", "A widget"))
	})

	r, err := NewReader(ct, body)
	require.NoError(t, err)

	p, err := r.Next()
	require.NoError(t, err)
	assert.Equal(t, "Name", p.Name)
	assert.False(t, p.IsFile())
	v, err := ReadValue(p)
	require.NoError(t, err)
	assert.Equal(t, "Widget", v)

	p, err = r.Next()
	require.NoError(t, err)
	assert.Equal(t, "ProductImage", p.Name)
	assert.Equal(t, "w.png", p.FileName)
	assert.True(t, p.IsFile())
	data, err := io.ReadAll(p.Body)
	require.NoError(t, err)
	assert.Equal(t, []byte{0x01, 0x02}, data)

	p, err = r.Next()
	require.NoError(t, err)
	assert.Equal(t, "Description", p.Name)

	_, err = r.Next()
	assert.Equal(t, io.EOF, err)
}

func TestReader_SkipsUnreadBodies(t *testing.T) {
	ct, body := buildBody(t, func(w *multipart.Writer) {
		fw, err := w.CreateFormFile("OrderImage", "big.bin")
		require.NoError(t, err)
		_, _ = fw.Write(bytes.Repeat([]byte{0xff}, 4096))
		require.NoError(t, w.WriteField("Name", "Box"))
	})

	r, err := NewReader(ct, body)
	require.NoError(t, err)

	_, err = r.Next()
	require.NoError(t, err)

	p, err := r.Next()
	require.NoError(t, err)
	v, err := ReadValue(p)
	require.NoError(t, err)
	assert.Equal(t, "Box", v)
}

func TestReader_Malformed(t *testing.T) {
	t.Run("missing boundary", func(t *testing.T) {
		_, err := NewReader("multipart/form-data", strings.NewReader("x"))
		assert.ErrorIs(t, err, ErrMalformedRequest)
	})

	t.Run("nil body", func(t *testing.T) {
		_, err := NewReader("multipart/form-data; boundary=abc", nil)
		assert.ErrorIs(t, err, ErrMalformedRequest)
	})

	t.Run("body without framing", func(t *testing.T) {
		r, err := NewReader("multipart/form-data; boundary=abc", strings.NewReader("just some text"))
		require.NoError(t, err)
		_, err = r.Next()
		assert.ErrorIs(t, err, ErrMalformedRequest)
	})

	t.Run("truncated body", func(t *testing.T) {
		raw := "--abc\r\nContent-Disposition: form-data; name=\"Name\"\r\n\r\nWidget"
		r, err := NewReader("multipart/form-data; boundary=abc", strings.NewReader(raw))
		require.NoError(t, err)
		p, err := r.Next()
		require.NoError(t, err)
		_, err = ReadValue(p)
		assert.ErrorIs(t, err, ErrMalformedRequest)
	})
}

func TestReadValue_TooLarge(t *testing.T) {
	ct, body := buildBody(t, func(w *multipart.Writer) {
		require.NoError(t, w.WriteField("Description", strings.Repeat("a", MaxValueBytes+1)))
	})

	r, err := NewReader(ct, body)
	require.NoError(t, err)
	p, err := r.Next()
	require.NoError(t, err)

	_, err = ReadValue(p)
	assert.ErrorIs(t, err, ErrMalformedRequest)
}

func TestReader_SkipsUnnamedParts(t *testing.T) {
	raw := "--abc\r\nContent-Type: text/plain\r\n\r\norphan\r\n" +
		"--abc\r\nContent-Disposition: form-data; name=\"Name\"\r\n\r\nWidget\r\n--abc--\r\n"
	r, err := NewReader("multipart/form-data; boundary=abc", strings.NewReader(raw))
	require.NoError(t, err)

	p, err := r.Next()
	require.NoError(t, err)
	assert.Equal(t, "Name", p.Name)
}
