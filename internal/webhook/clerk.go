package webhook

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/iliyamo/taskflow/internal/model"
)

// ClerkClient pushes role claims to the auth provider's backend API.
type ClerkClient struct {
	base   string
	secret string
	http   *http.Client
}

// NewClerkClient returns nil when no secret key is configured, which
// turns role pushes off.
func NewClerkClient(baseURL, secretKey string) *ClerkClient {
	if secretKey == "" {
		return nil
	}
	return &ClerkClient{
		base:   strings.TrimRight(baseURL, "/"),
		secret: secretKey,
		http:   &http.Client{Timeout: 10 * time.Second},
	}
}

// PushRole merges {"role": role} into the user's public metadata.  A nil
// client does nothing.
func (c *ClerkClient) PushRole(ctx context.Context, externalID string, role model.Role) error {
	if c == nil {
		return nil
	}
	body, err := json.Marshal(map[string]any{"public_metadata": map[string]string{"role": string(role)}})
	if err != nil {
		return err
	}
	endpoint := fmt.Sprintf("%s/users/%s/metadata", c.base, url.PathEscape(externalID))
	req, err := http.NewRequestWithContext(ctx, http.MethodPatch, endpoint, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+c.secret)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode/100 != 2 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("push role for %s: %s: %s", externalID, resp.Status, bytes.TrimSpace(msg))
	}
	return nil
}
