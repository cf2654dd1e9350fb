package sdk

import (
	"bytes"
	"context"
	"strings"

	"github.com/cloudwego/hertz/pkg/protocol/consts"
)

// UploadAttachment stores data and returns the handle a send can reference
func (c *Client) UploadAttachment(ctx context.Context, fileName string, data []byte) (*AttachmentMeta, error) {
	req := c.newRequest(consts.MethodPost, "/attachment/upload", nil)
	req.SetFileReader("file", fileName, bytes.NewReader(data))

	var result AttachmentMeta
	if err := c.do(ctx, req, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// DownloadAttachment fetches the bytes behind handle
func (c *Client) DownloadAttachment(ctx context.Context, handle string) ([]byte, string, error) {
	req := c.newRequest(consts.MethodGet, "/attachment/"+handle, nil)
	resp, err := c.send(ctx, req)
	if err != nil {
		return nil, "", err
	}

	mimeType := string(resp.Header.ContentType())
	if strings.HasPrefix(mimeType, "application/json") || resp.StatusCode() != consts.StatusOK {
		if err := decodeEnvelope(resp.StatusCode(), resp.Body(), nil); err != nil {
			return nil, "", err
		}
	}
	body := make([]byte, len(resp.Body()))
	copy(body, resp.Body())
	return body, mimeType, nil
}
