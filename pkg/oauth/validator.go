// Package oauth validates third-party access tokens by fetching the holder's profile
// from the issuing provider.
package oauth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"sort"
	"time"

	"github.com/morezero/marketplace-gateway/pkg/apperrors"
)

const logPrefix = "oauth:validator"

// Supported providers.
const (
	ProviderGoogle    = "google"
	ProviderGitHub    = "github"
	ProviderMicrosoft = "microsoft"
)

// CodeUnsupportedProvider is the text code for a provider outside the supported set.
const CodeUnsupportedProvider = "OAUTH_PROVIDER_UNSUPPORTED"

// DefaultTimeout bounds one profile request.
const DefaultTimeout = 10 * time.Second

const maxProfileBytes = 1 << 20

// DefaultEndpoints maps each provider to its profile endpoint.
var DefaultEndpoints = map[string]string{
	ProviderGoogle:    "https://www.googleapis.com/oauth2/v2/userinfo",
	ProviderGitHub:    "https://api.github.com/user",
	ProviderMicrosoft: "https://graph.microsoft.com/v1.0/me",
}

// HTTPDoer is the subset of *http.Client the validator needs.
type HTTPDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

// Validator checks bearer tokens against provider profile endpoints.
type Validator struct {
	client    HTTPDoer
	endpoints map[string]string
	timeout   time.Duration
	userAgent string
}

// Option configures a Validator.
type Option func(*Validator)

// WithHTTPClient sets the HTTP client.
func WithHTTPClient(c HTTPDoer) Option {
	return func(v *Validator) {
		if c != nil {
			v.client = c
		}
	}
}

// WithTimeout sets the per-request timeout. Non-positive values keep the default.
func WithTimeout(d time.Duration) Option {
	return func(v *Validator) {
		if d > 0 {
			v.timeout = d
		}
	}
}

// WithEndpoint overrides the profile endpoint of a supported provider. Unknown providers
// are ignored so the provider set stays closed.
func WithEndpoint(provider, url string) Option {
	return func(v *Validator) {
		if _, ok := v.endpoints[provider]; ok && url != "" {
			v.endpoints[provider] = url
		}
	}
}

// WithUserAgent sets the User-Agent header sent to providers.
func WithUserAgent(ua string) Option {
	return func(v *Validator) {
		if ua != "" {
			v.userAgent = ua
		}
	}
}

// NewValidator creates a Validator with the default endpoints.
func NewValidator(opts ...Option) *Validator {
	v := &Validator{
		client:    http.DefaultClient,
		endpoints: make(map[string]string, len(DefaultEndpoints)),
		timeout:   DefaultTimeout,
		userAgent: "marketplace-gateway",
	}
	for k, u := range DefaultEndpoints {
		v.endpoints[k] = u
	}
	for _, opt := range opts {
		opt(v)
	}
	return v
}

// Providers returns the supported provider names, sorted.
func (v *Validator) Providers() []string {
	out := make([]string, 0, len(v.endpoints))
	for k := range v.endpoints {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// Validate fetches the profile for token from provider and returns the raw JSON body.
func (v *Validator) Validate(ctx context.Context, provider, token string) (json.RawMessage, error) {
	endpoint, ok := v.endpoints[provider]
	if !ok {
		return nil, apperrors.Validation("Unsupported provider").WithTextCode(CodeUnsupportedProvider)
	}

	ctx, cancel := context.WithTimeout(ctx, v.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, apperrors.Internal(fmt.Sprintf("Request error: %v", err), err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", v.userAgent)

	start := time.Now()
	resp, err := v.client.Do(req)
	if err != nil {
		if isTimeout(err) {
			slog.Warn(fmt.Sprintf("%s - %s profile request timed out after %s", logPrefix, provider, time.Since(start)))
			return nil, apperrors.UpstreamTimeout(fmt.Sprintf("Request timed out: %s", provider), err)
		}
		slog.Warn(fmt.Sprintf("%s - %s profile request failed: %v", logPrefix, provider, err))
		return nil, apperrors.Upstream(fmt.Sprintf("Request error: %v", err), err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxProfileBytes))
		slog.Debug(fmt.Sprintf("%s - %s rejected token with status %d", logPrefix, provider, resp.StatusCode))
		return nil, apperrors.Unauthorized(fmt.Sprintf("Token validation failed with status: %s", statusText(resp)))
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxProfileBytes))
	if err != nil {
		if isTimeout(err) {
			return nil, apperrors.UpstreamTimeout(fmt.Sprintf("Request timed out: %s", provider), err)
		}
		return nil, apperrors.Upstream(fmt.Sprintf("Request error: %v", err), err)
	}
	if !json.Valid(body) {
		return nil, apperrors.Upstream("Failed to parse response: invalid JSON", errors.New("invalid JSON profile"))
	}
	return json.RawMessage(body), nil
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}

// statusText renders the status the way providers report it, e.g. "401 Unauthorized".
func statusText(resp *http.Response) string {
	if resp.Status != "" {
		return resp.Status
	}
	return fmt.Sprintf("%d %s", resp.StatusCode, http.StatusText(resp.StatusCode))
}
