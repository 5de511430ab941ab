package cloud

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/nerrad567/mysa-core/internal/auth"
	"github.com/nerrad567/mysa-core/internal/device"
)

// Defaults.
const (
	DefaultTimeout   = 15 * time.Second
	DefaultUserAgent = "okhttp/4.11.0"

	// maxErrorBody caps how much of an error response is kept.
	maxErrorBody = 512
)

// Authenticator supplies the Authorization header and renews on demand.
// *auth.Session implements it.
type Authenticator interface {
	AuthHeader(ctx context.Context) (string, error)
	ForceRenew(ctx context.Context) error
}

// Config holds REST client settings.
type Config struct {
	BaseURL   string
	UserAgent string
	Timeout   time.Duration

	// HTTPClient overrides the transport. Its own Timeout is left alone.
	HTTPClient *http.Client
}

// Client is a typed client for the vendor REST API.
//
// Every call is bounded by the configured timeout. A 401 or 403 triggers
// one ForceRenew and a single retry; a second rejection is returned as
// auth.ErrAuthentication.
//
// Thread Safety: safe for concurrent use.
type Client struct {
	baseURL    string
	userAgent  string
	timeout    time.Duration
	auth       Authenticator
	httpClient *http.Client
}

// NewClient creates a REST client.
func NewClient(authn Authenticator, cfg Config) *Client {
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = DefaultUserAgent
	}
	hc := cfg.HTTPClient
	if hc == nil {
		hc = &http.Client{Timeout: cfg.Timeout}
	}
	return &Client{
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		userAgent:  cfg.UserAgent,
		timeout:    cfg.Timeout,
		auth:       authn,
		httpClient: hc,
	}
}

// User returns the account record. Its ID addresses the account channel
// and is the source of outbound commands.
func (c *Client) User(ctx context.Context) (User, error) {
	var resp struct {
		User User `json:"User"`
	}
	if err := c.do(ctx, http.MethodGet, "/users", nil, &resp); err != nil {
		return User{}, err
	}
	if resp.User.ID == "" {
		return User{}, fmt.Errorf("%w: /users has no User.Id", ErrProtocol)
	}
	return resp.User, nil
}

// Homes returns every home with its zones.
func (c *Client) Homes(ctx context.Context) ([]Home, error) {
	var resp struct {
		Homes      []Home `json:"Homes"`
		HomesLower []Home `json:"homes"`
	}
	if err := c.do(ctx, http.MethodGet, "/homes", nil, &resp); err != nil {
		return nil, err
	}
	if resp.Homes == nil {
		return resp.HomesLower, nil
	}
	return resp.Homes, nil
}

// Devices returns device settings objects keyed by device ID.
func (c *Client) Devices(ctx context.Context) (map[string]RawDevice, error) {
	var resp map[string]json.RawMessage
	if err := c.do(ctx, http.MethodGet, "/devices", nil, &resp); err != nil {
		return nil, err
	}
	return keyedField(resp, "DevicesObj", "Devices")
}

// DeviceStates returns live device state objects keyed by device ID.
func (c *Client) DeviceStates(ctx context.Context) (map[string]RawDevice, error) {
	var resp map[string]json.RawMessage
	if err := c.do(ctx, http.MethodGet, "/devices/state", nil, &resp); err != nil {
		return nil, err
	}
	return keyedField(resp, "DeviceStatesObj", "DeviceStates")
}

// Device returns one device object.
func (c *Client) Device(ctx context.Context, id string) (RawDevice, error) {
	var resp RawDevice
	if err := c.do(ctx, http.MethodGet, "/devices/"+url.PathEscape(id), nil, &resp); err != nil {
		return nil, err
	}
	if inner, ok := resp["Device"].(map[string]any); ok {
		return RawDevice(inner), nil
	}
	return resp, nil
}

// PatchDevice posts a partial settings object for a device, for example
// {"SensorMode": 1} or {"Model": "BB-V2-0"}. The device only picks the
// change up after a settings-changed notification.
func (c *Client) PatchDevice(ctx context.Context, id string, settings map[string]any) error {
	return c.do(ctx, http.MethodPost, "/devices/"+url.PathEscape(id), settings, nil)
}

// FirmwareInfo reports the installed and allowed firmware for a device.
func (c *Client) FirmwareInfo(ctx context.Context, id string) (device.FirmwareInfo, error) {
	var info device.FirmwareInfo
	err := c.do(ctx, http.MethodGet, "/devices/update_available/"+url.PathEscape(id), nil, &info)
	return info, err
}

// do performs a request, retrying once after a forced renewal when the
// cloud rejects the credential.
func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	err := c.attempt(ctx, method, path, body, out)

	var se *StatusError
	if !errors.As(err, &se) || !isAuthStatus(se.StatusCode) {
		return err
	}

	if rerr := c.auth.ForceRenew(ctx); rerr != nil {
		return fmt.Errorf("%s %s: %w", method, path, rerr)
	}
	return c.attempt(ctx, method, path, body, out)
}

func (c *Client) attempt(ctx context.Context, method, path string, body, out any) error {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	header, err := c.auth.AuthHeader(ctx)
	if err != nil {
		return err
	}

	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encoding %s %s body: %w", method, path, err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("building %s %s: %w", method, path, err)
	}
	req.Header.Set("Authorization", header)
	req.Header.Set("User-Agent", c.userAgent)
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %s %s: %w", ErrTransient, method, path, err)
	}
	defer resp.Body.Close() //nolint:errcheck // read-only body

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody)) //nolint:errcheck // best-effort detail
		return &StatusError{
			Method:     method,
			Path:       path,
			StatusCode: resp.StatusCode,
			Body:       strings.TrimSpace(string(msg)),
		}
	}

	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body) //nolint:errcheck // drain for connection reuse
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return fmt.Errorf("%w: reading %s %s: %w", ErrTransient, method, path, err)
		}
		return fmt.Errorf("%w: decoding %s %s: %w", ErrProtocol, method, path, err)
	}
	return nil
}

// keyedField decodes the first present key as a list-or-map of objects.
func keyedField(resp map[string]json.RawMessage, keys ...string) (map[string]RawDevice, error) {
	for _, k := range keys {
		raw, ok := resp[k]
		if !ok {
			continue
		}
		out, err := keyedObjects(raw)
		if err != nil {
			return nil, fmt.Errorf("%w: decoding %s: %w", ErrProtocol, k, err)
		}
		return out, nil
	}
	return map[string]RawDevice{}, nil
}

// ensure *auth.Session satisfies Authenticator.
var _ Authenticator = (*auth.Session)(nil)
