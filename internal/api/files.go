package api

import (
	"context"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"

	"medius/internal/domain"
)

// Upload streams an attachment to the deal. The resulting chat entry is
// broadcast by the server over the realtime channel.
func (c *Client) Upload(ctx context.Context, dealID, filename string, r io.Reader) error {
	pr, pw := io.Pipe()
	mw := multipart.NewWriter(pw)

	go func() {
		part, err := mw.CreateFormFile("file", filename)
		if err != nil {
			pw.CloseWithError(err)
			return
		}
		if _, err := io.Copy(part, r); err != nil {
			pw.CloseWithError(fmt.Errorf("read attachment: %w", err))
			return
		}
		pw.CloseWithError(mw.Close())
	}()

	path := "/deals/" + url.PathEscape(dealID) + "/upload"
	err := c.do(ctx, http.MethodPost, path, pr, mw.FormDataContentType(), nil)
	// unblock the writer if the request ended before the body was drained
	pr.CloseWithError(io.ErrClosedPipe)
	return err
}

// SignedURL exchanges a stored file key for a short-lived download URL.
func (c *Client) SignedURL(ctx context.Context, key string) (string, error) {
	var out struct {
		SignedURL string `json:"signedUrl"`
	}
	if err := c.do(ctx, http.MethodGet, "/files/signed-url?key="+url.QueryEscape(key), nil, "", &out); err != nil {
		return "", err
	}
	if out.SignedURL == "" {
		return "", domain.ErrInvalidSignedLink
	}
	return out.SignedURL, nil
}
