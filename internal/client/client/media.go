package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"os"
	"path/filepath"
	"strings"

	"github.com/dmitrijs2005/gophchat/internal/common"
)

// Media describes an uploaded attachment as returned by the server.
type Media struct {
	URL      string `json:"url"`
	Type     string `json:"type"`
	FileName string `json:"filename"`
}

// MessageType maps the attachment MIME type to the chat message type.
func (m *Media) MessageType() string {
	switch {
	case strings.HasPrefix(m.Type, "image/"):
		return "image"
	case strings.HasPrefix(m.Type, "audio/"):
		return "audio"
	}
	return "file"
}

// UploadFile sends the file at path to the server's media endpoint.
func (c *ChatClient) UploadFile(ctx context.Context, path string) (*Media, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return c.UploadMedia(ctx, filepath.Base(path), data)
}

// UploadMedia posts data as a multipart form. The part's content type is
// derived from the file extension.
func (c *ChatClient) UploadMedia(ctx context.Context, filename string, data []byte) (*Media, error) {
	if c.token == "" {
		return nil, ErrUnauthorized
	}

	contentType := mime.TypeByExtension(strings.ToLower(filepath.Ext(filename)))
	if contentType == "" {
		contentType = "application/octet-stream"
	}

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", fmt.Sprintf(`form-data; name="file"; filename=%q`, filename))
	h.Set("Content-Type", contentType)
	part, err := mw.CreatePart(h)
	if err != nil {
		return nil, err
	}
	if _, err := part.Write(data); err != nil {
		return nil, err
	}
	if err := mw.Close(); err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL.String()+"/api/upload", &body)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.Header.Set(common.AuthorizationHeader, common.BearerPrefix+c.token)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusUnauthorized {
		return nil, ErrUnauthorized
	}
	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("upload failed: %s; body: %s", resp.Status, string(b))
	}

	var m Media
	if err := json.NewDecoder(resp.Body).Decode(&m); err != nil {
		return nil, err
	}
	return &m, nil
}
