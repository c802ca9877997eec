package recognize

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"golang.org/x/net/proxy"
)

// DefaultRemoteTimeout bounds each request to the remote OCR service.
const DefaultRemoteTimeout = 10 * time.Second

// maxResponseSize caps how much of an OCR service response is read.
const maxResponseSize = 1 << 20

// ErrRemoteAuth is returned when the token endpoint does not issue a token.
var ErrRemoteAuth = errors.New("remote recognizer authentication failed")

// Remote recognizes captcha images through an HTTP OCR service.
//
// The service uses the client-credentials flow: an access token is obtained
// from TokenURL with the API key and secret, then each image is posted
// base64-encoded as a form field together with the token. The recognized
// text is the first entry of words_result.
type Remote struct {
	url       string
	tokenURL  string
	apiKey    string
	secretKey string
	client    *http.Client
	logger    *slog.Logger

	mu    sync.Mutex
	token string
}

// RemoteOption configures a Remote recognizer.
type RemoteOption func(*Remote)

// WithHTTPClient replaces the HTTP client.
func WithHTTPClient(c *http.Client) RemoteOption {
	return func(r *Remote) {
		r.client = c
	}
}

// WithRemoteLogger sets the logger.
func WithRemoteLogger(logger *slog.Logger) RemoteOption {
	return func(r *Remote) {
		r.logger = logger
	}
}

// NewRemote creates a Remote recognizer. If cfg.Proxy is set, requests are
// sent through that SOCKS5 proxy.
func NewRemote(cfg Config, opts ...RemoteOption) (*Remote, error) {
	if cfg.URL == "" {
		return nil, errors.New("remote recognizer requires a service URL")
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = DefaultRemoteTimeout
	}

	r := &Remote{
		url:       cfg.URL,
		tokenURL:  cfg.TokenURL,
		apiKey:    cfg.APIKey,
		secretKey: cfg.SecretKey,
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.logger == nil {
		r.logger = slog.Default()
	}
	if r.client == nil {
		transport := http.DefaultTransport.(*http.Transport).Clone()
		if cfg.Proxy != "" {
			dialer, err := proxy.SOCKS5("tcp", cfg.Proxy, nil, proxy.Direct)
			if err != nil {
				return nil, fmt.Errorf("failed to create SOCKS5 dialer: %w", err)
			}
			transport.Proxy = nil
			transport.DialContext = func(_ context.Context, network, addr string) (net.Conn, error) {
				return dialer.Dial(network, addr)
			}
		}
		r.client = &http.Client{Transport: transport, Timeout: timeout}
	}
	return r, nil
}

// Name returns "remote".
func (r *Remote) Name() string {
	return EngineRemote
}

type tokenResponse struct {
	AccessToken string `json:"access_token"`
	Error       string `json:"error"`
	Description string `json:"error_description"`
}

type wordsResponse struct {
	WordsResult []struct {
		Words string `json:"words"`
	} `json:"words_result"`
	ErrorCode int    `json:"error_code"`
	ErrorMsg  string `json:"error_msg"`
}

// Recognize posts the image to the OCR service and returns the first line
// of recognized text with whitespace removed.
func (r *Remote) Recognize(ctx context.Context, image []byte) (string, error) {
	token, err := r.accessToken(ctx)
	if err != nil {
		return "", err
	}

	form := url.Values{}
	form.Set("image", base64.StdEncoding.EncodeToString(image))
	form.Set("access_token", token)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.url, strings.NewReader(form.Encode()))
	if err != nil {
		return "", fmt.Errorf("build recognition request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	var body wordsResponse
	if err := r.do(req, &body); err != nil {
		return "", fmt.Errorf("%w: %w", ErrRecognitionFailed, err)
	}
	if body.ErrorCode != 0 {
		// Expired tokens are refreshed on the next attempt.
		r.resetToken()
		return "", fmt.Errorf("%w: service error %d: %s", ErrRecognitionFailed, body.ErrorCode, body.ErrorMsg)
	}
	if len(body.WordsResult) == 0 {
		return "", fmt.Errorf("%w: service returned no words", ErrRecognitionFailed)
	}

	return strings.Join(strings.Fields(body.WordsResult[0].Words), ""), nil
}

// accessToken returns the cached token, fetching one if needed.
func (r *Remote) accessToken(ctx context.Context) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.token != "" || r.tokenURL == "" {
		return r.token, nil
	}

	q := url.Values{}
	q.Set("grant_type", "client_credentials")
	q.Set("client_id", r.apiKey)
	q.Set("client_secret", r.secretKey)

	endpoint := r.tokenURL
	if strings.Contains(endpoint, "?") {
		endpoint += "&" + q.Encode()
	} else {
		endpoint += "?" + q.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, nil)
	if err != nil {
		return "", fmt.Errorf("build token request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json; charset=UTF-8")

	var body tokenResponse
	if err := r.do(req, &body); err != nil {
		return "", fmt.Errorf("%w: %w", ErrRemoteAuth, err)
	}
	if body.AccessToken == "" {
		return "", fmt.Errorf("%w: %s %s", ErrRemoteAuth, body.Error, body.Description)
	}

	r.logger.Debug("remote recognizer token issued", "access_token", body.AccessToken)
	r.token = body.AccessToken
	return r.token, nil
}

func (r *Remote) resetToken() {
	r.mu.Lock()
	r.token = ""
	r.mu.Unlock()
}

// do sends req and decodes a JSON response into v.
func (r *Remote) do(req *http.Request, v any) error {
	resp, err := r.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unexpected status %d", resp.StatusCode)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
