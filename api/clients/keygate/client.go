package keygate

import (
	"bytes"
	"context"
	"crypto/rsa"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"keygate/internal/domain"
	"keygate/pkg/keysig"
)

type Fingerprint struct {
	CanvasHash          string `json:"canvasHash"`
	DeviceMemory        string `json:"deviceMemory"`
	HardwareConcurrency int    `json:"hardwareConcurrency"`
	Lang                string `json:"lang"`
	Platform            string `json:"platform"`
	TZ                  int    `json:"tz"`
	UA                  string `json:"ua"`
	WebGLHash           string `json:"webGLHash"`
}

type Record struct {
	ClientID    string      `json:"client_id"`
	Fingerprint Fingerprint `json:"fingerprint"`
	PublicKey   string      `json:"public_key"`
	UniqueID    string      `json:"unique_id"`
}

type RegisterInput struct {
	ClientID    string
	UniqueID    string
	PublicKey   string
	Fingerprint Fingerprint
}

// APIError is a non-2xx response. Code is the server's error code when the
// body carried one.
type APIError struct {
	Status  int
	Code    string
	Message string
}

func (e *APIError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("keygate: status %d %s: %s", e.Status, e.Code, e.Message)
	}
	return fmt.Sprintf("keygate: status %d", e.Status)
}

// Denied reports whether err is a 401 or 403 from the gate.
func Denied(err error) bool {
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		return false
	}
	return apiErr.Status == http.StatusUnauthorized || apiErr.Status == http.StatusForbidden
}

type Client struct {
	BaseURL    string
	HTTPClient *http.Client

	// Identity and Key sign privileged requests.
	Identity string
	Key      *rsa.PrivateKey
	Now      func() time.Time
}

type Option func(*Client)

func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) {
		c.HTTPClient = client
	}
}

func WithSigner(identity string, key *rsa.PrivateKey) Option {
	return func(c *Client) {
		c.Identity = identity
		c.Key = key
	}
}

func WithClock(now func() time.Time) Option {
	return func(c *Client) {
		c.Now = now
	}
}

func NewClient(baseURL string, opts ...Option) *Client {
	client := &Client{
		BaseURL: strings.TrimRight(baseURL, "/"),
		HTTPClient: &http.Client{
			Timeout: 10 * time.Second,
		},
		Now: time.Now,
	}
	for _, opt := range opts {
		opt(client)
	}
	return client
}

func (c *Client) Register(ctx context.Context, input RegisterInput) error {
	if input.ClientID == "" || input.UniqueID == "" || input.PublicKey == "" {
		return fmt.Errorf("client_id, unique_id and public_key are required")
	}
	body := map[string]any{
		"client_id":   input.ClientID,
		"public_key":  input.PublicKey,
		"fingerprint": input.Fingerprint,
		"unique_id":   input.UniqueID,
	}
	return c.do(ctx, http.MethodPost, "/register", "", body, nil)
}

func (c *Client) CheckKey(ctx context.Context, uniqueID, publicKeyPEM string) (bool, error) {
	var out struct {
		Exists bool `json:"exists"`
	}
	body := map[string]string{"unique_id": uniqueID, "public_key": publicKeyPEM}
	if err := c.do(ctx, http.MethodPost, "/check-key", "", body, &out); err != nil {
		return false, err
	}
	return out.Exists, nil
}

func (c *Client) ListKeys(ctx context.Context) ([]Record, error) {
	auth, err := c.sign(domain.ListKeysOperation())
	if err != nil {
		return nil, err
	}
	var out struct {
		Records []Record `json:"records"`
	}
	if err := c.do(ctx, http.MethodGet, "/keys", auth, nil, &out); err != nil {
		return nil, err
	}
	return out.Records, nil
}

// RevokeKey deletes the record registered as clientID and reports whether
// one existed.
func (c *Client) RevokeKey(ctx context.Context, clientID string) (bool, error) {
	auth, err := c.sign(domain.RevokeKeyOperation(clientID))
	if err != nil {
		return false, err
	}
	var out struct {
		Revoked bool `json:"revoked"`
	}
	if err := c.do(ctx, http.MethodPost, "/revoke-key", auth, map[string]string{"client_id": clientID}, &out); err != nil {
		return false, err
	}
	return out.Revoked, nil
}

// EncryptMessage asks the server to encrypt message under the signer's own
// registered key and returns the base64 ciphertext.
func (c *Client) EncryptMessage(ctx context.Context, message string) (string, error) {
	auth, err := c.sign(domain.EncryptMessageOperation(message))
	if err != nil {
		return "", err
	}
	var out struct {
		EncryptedMessage string `json:"encrypted_message"`
	}
	body := map[string]string{"message": message, "unique_id": c.Identity}
	if err := c.do(ctx, http.MethodPost, "/encrypt-message", auth, body, &out); err != nil {
		return "", err
	}
	return out.EncryptedMessage, nil
}

func (c *Client) sign(op domain.Operation) (string, error) {
	if c.Key == nil || c.Identity == "" {
		return "", fmt.Errorf("signer identity and key are required for %s", op.Kind)
	}
	now := c.Now
	if now == nil {
		now = time.Now
	}
	return keysig.AuthorizationHeader(c.Key, op, keysig.Timestamp(now()), c.Identity)
}

func (c *Client) do(ctx context.Context, method, path, auth string, in, out any) error {
	if c == nil {
		return fmt.Errorf("keygate client is nil")
	}
	if c.BaseURL == "" {
		return fmt.Errorf("keygate base URL is required")
	}
	var reader io.Reader
	if in != nil {
		body, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.BaseURL+path, reader)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if auth != "" {
		req.Header.Set("Authorization", auth)
	}

	httpClient := c.HTTPClient
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	resp, err := httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()
	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		apiErr := &APIError{Status: resp.StatusCode}
		var body struct {
			Code    string `json:"code"`
			Message string `json:"message"`
		}
		if json.Unmarshal(raw, &body) == nil {
			apiErr.Code, apiErr.Message = body.Code, body.Message
		}
		return apiErr
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
