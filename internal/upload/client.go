package upload

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"time"

	"commerce-core/internal/models"
	"commerce-core/internal/util"

	"go.uber.org/zap"
)

// ErrUploadFailed aggregates any failure while uploading personalization
// assets. Order creation aborts on it before any database write.
var ErrUploadFailed = errors.New("custom asset upload failed")

// FileRef is one file in the structured upload contract: the client sends an
// explicit color grouping instead of encoding it in field names.
type FileRef struct {
	Filename    string `json:"filename" binding:"required"`
	ContentType string `json:"content_type"`
	Data        string `json:"data" binding:"required"` // base64
}

// ImageGroup groups uploaded files under a color.
type ImageGroup struct {
	Color    string    `json:"color" binding:"required"`
	FileRefs []FileRef `json:"file_refs" binding:"required,min=1,dive"`
}

// Client talks to the asset-upload service.
type Client struct {
	baseURL string
	apiKey  string
	client  *http.Client
	logger  *zap.Logger
}

func NewClient(baseURL, apiKey string, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	return &Client{
		baseURL: baseURL,
		apiKey:  apiKey,
		client:  httpClient,
		logger:  util.NamedLogger("upload-client"),
	}
}

type uploadResponse struct {
	URL string `json:"url"`
	Key string `json:"key"`
}

// UploadMany uploads every file of every group to durable storage and
// returns the CustomImage records to attach to the order. The first failure
// aborts the whole batch.
func (c *Client) UploadMany(ctx context.Context, groups []ImageGroup, destinationHint string) ([]models.CustomImage, error) {
	var images []models.CustomImage

	for _, group := range groups {
		for _, ref := range group.FileRefs {
			data, err := base64.StdEncoding.DecodeString(ref.Data)
			if err != nil {
				return nil, fmt.Errorf("%w: decode %s: %v", ErrUploadFailed, ref.Filename, err)
			}

			resp, err := c.uploadOne(ctx, ref.Filename, ref.ContentType, data, destinationHint)
			if err != nil {
				return nil, fmt.Errorf("%w: %s: %v", ErrUploadFailed, ref.Filename, err)
			}

			images = append(images, models.CustomImage{
				Color: group.Color,
				URL:   resp.URL,
				Key:   resp.Key,
			})
		}
	}

	c.logger.Info("Custom assets uploaded", zap.Int("count", len(images)))
	return images, nil
}

func (c *Client) uploadOne(ctx context.Context, filename, contentType string, data []byte, hint string) (*uploadResponse, error) {
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)

	if err := mw.WriteField("destination", hint); err != nil {
		return nil, err
	}
	part, err := mw.CreateFormFile("file", filename)
	if err != nil {
		return nil, err
	}
	if _, err := part.Write(data); err != nil {
		return nil, err
	}
	if err := mw.Close(); err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/uploads", &body)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}
	_ = contentType // the storage service sniffs content type server-side

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("status %d: %s", resp.StatusCode, raw)
	}

	var out uploadResponse
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, err
	}
	return &out, nil
}
