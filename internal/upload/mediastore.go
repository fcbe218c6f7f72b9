package upload

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/rs/zerolog"

	"github.com/caretalk/caretalk/internal/models"
)

// MediaStore pushes attachment bytes to the external media service and
// returns the retrievable reference the service assigns. The routing core
// never stores file bytes itself.
type MediaStore struct {
	baseURL string
	client  *http.Client
	logger  zerolog.Logger
}

// NewMediaStore creates a client for the media service at baseURL.
func NewMediaStore(baseURL string, logger zerolog.Logger) *MediaStore {
	return &MediaStore{
		baseURL: baseURL,
		client:  &http.Client{Timeout: 30 * time.Second},
		logger:  logger,
	}
}

// Put streams the upload body to the media service and returns the
// reference from its acknowledgement.
func (m *MediaStore) Put(ctx context.Context, meta models.FileMeta, body io.Reader) (models.AttachmentReference, error) {
	endpoint := fmt.Sprintf("%s/media?filename=%s", m.baseURL, url.QueryEscape(meta.Filename))
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, body)
	if err != nil {
		return "", fmt.Errorf("build media request: %w", err)
	}
	req.Header.Set("Content-Type", meta.ContentType)
	if meta.Size > 0 {
		req.ContentLength = meta.Size
	}

	resp, err := m.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("media store unreachable: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		return "", fmt.Errorf("media store rejected upload: status %d", resp.StatusCode)
	}

	var ack struct {
		URL string `json:"url"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&ack); err != nil {
		return "", fmt.Errorf("decode media ack: %w", err)
	}
	if ack.URL == "" {
		return "", fmt.Errorf("media store ack missing url")
	}

	m.logger.Debug().
		Str("filename", meta.Filename).
		Int64("size", meta.Size).
		Msg("media stored")
	return models.AttachmentReference(ack.URL), nil
}
