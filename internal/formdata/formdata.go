// Package formdata reads multipart/form-data bodies as a forward-only stream of parts.
//
// Parts are produced lazily from the underlying body; nothing is buffered beyond
// what the caller reads, so file parts can be streamed straight to object storage.
package formdata

import (
	"errors"
	"fmt"
	"io"
	"mime"
	"mime/multipart"
	"strings"
)

// MaxValueBytes bounds the size of a scalar (non-file) part.
const MaxValueBytes = 64 << 10

// ErrMalformedRequest reports a missing boundary or a body that does not follow multipart framing.
var ErrMalformedRequest = errors.New("malformed multipart request")

// Part is one named section of a multipart body.
// Body is only valid until the next call to Reader.Next.
type Part struct {
	Name        string
	FileName    string
	ContentType string
	Body        io.Reader
}

// IsFile reports whether the part declared a filename.
func (p *Part) IsFile() bool { return p.FileName != "" }

// Reader iterates over the parts of a multipart body. It is single-pass and not restartable.
type Reader struct {
	mr *multipart.Reader
}

// Boundary extracts the multipart boundary from a Content-Type header value.
func Boundary(contentType string) (string, error) {
	if strings.TrimSpace(contentType) == "" {
		return "", fmt.Errorf("%w: missing content type", ErrMalformedRequest)
	}
	mediaType, params, err := mime.ParseMediaType(contentType)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrMalformedRequest, err)
	}
	if !strings.HasPrefix(mediaType, "multipart/") {
		return "", fmt.Errorf("%w: unexpected media type %q", ErrMalformedRequest, mediaType)
	}
	boundary := params["boundary"]
	if boundary == "" {
		return "", fmt.Errorf("%w: missing boundary", ErrMalformedRequest)
	}
	return boundary, nil
}

// NewReader validates the Content-Type and prepares a part reader over body.
func NewReader(contentType string, body io.Reader) (*Reader, error) {
	boundary, err := Boundary(contentType)
	if err != nil {
		return nil, err
	}
	if body == nil {
		return nil, fmt.Errorf("%w: empty body", ErrMalformedRequest)
	}
	return &Reader{mr: multipart.NewReader(body, boundary)}, nil
}

// Next returns the next named part, skipping parts without a form name.
// It returns io.EOF once the closing boundary has been read.
func (r *Reader) Next() (*Part, error) {
	for {
		p, err := r.mr.NextPart()
		if err == io.EOF {
			return nil, io.EOF
		}
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrMalformedRequest, err)
		}
		name := p.FormName()
		if name == "" {
			continue
		}
		return &Part{
			Name:        name,
			FileName:    p.FileName(),
			ContentType: p.Header.Get("Content-Type"),
			Body:        p,
		}, nil
	}
}

// ReadValue reads a scalar part as text, rejecting bodies over MaxValueBytes.
func ReadValue(p *Part) (string, error) {
	b, err := io.ReadAll(io.LimitReader(p.Body, MaxValueBytes+1))
	if err != nil {
		return "", fmt.Errorf("%w: read %s: %v", ErrMalformedRequest, p.Name, err)
	}
	if len(b) > MaxValueBytes {
		return "", fmt.Errorf("%w: field %s exceeds %d bytes", ErrMalformedRequest, p.Name, MaxValueBytes)
	}
	return string(b), nil
}
