package backend

import (
	"context"
	"fmt"
	"net/textproto"
	"strings"
)

// Destination is where phase two of an upload sends the bytes.
type Destination struct {
	URL         string `json:"url"`
	S3ObjectKey string `json:"s3ObjectKey"`
	Key         string `json:"key"`
	UseLocal    bool   `json:"useLocal"`
}

// ObjectKey returns the key to upload under. The local fallback prefers key,
// direct storage uploads prefer s3ObjectKey, and either falls back to the
// other when only one is set.
func (d Destination) ObjectKey() string {
	if d.UseLocal && d.Key != "" {
		return d.Key
	}
	if d.S3ObjectKey != "" {
		return d.S3ObjectKey
	}
	return d.Key
}

// LocalUpload is the data returned by the local fallback endpoint.
type LocalUpload struct {
	URL string `json:"url"`
}

type uploadURLRequest struct {
	FileName    string `json:"fileName"`
	ContentType string `json:"contentType"`
}

// RequestUpload asks the backend for an upload destination.
func (c *Client) RequestUpload(ctx context.Context, fileName, contentType string) (Destination, error) {
	var dst Destination
	err := c.Post(ctx, UploadURLPath, uploadURLRequest{FileName: fileName, ContentType: contentType}, &dst)
	if err != nil {
		return Destination{}, err
	}
	if dst.URL == "" {
		return Destination{}, fmt.Errorf("upload destination for %q has no url", fileName)
	}
	return dst, nil
}

var quoteEscaper = strings.NewReplacer("\\", "\\\\", `"`, "\\\"")

func filePartHeader(field, fileName, contentType string) textproto.MIMEHeader {
	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", fmt.Sprintf(`form-data; name="%s"; filename="%s"`,
		quoteEscaper.Replace(field), quoteEscaper.Replace(fileName)))
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	h.Set("Content-Type", contentType)
	return h
}
