// internal/common/auth/gateway.go
package auth

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"crm-intake-workers/internal/common/errors"
	httpclient "crm-intake-workers/internal/common/http"
)

// tokenPath is the gateway's self-app token endpoint.
const tokenPath = "/open-auth/selfAppAuth/base/v1/getAccessToken"

// expirySafetyMargin is subtracted from the reported token lifetime so a
// token is never used right at its expiry boundary.
const expirySafetyMargin = 60 * time.Second

// TokenService fetches and caches access tokens for the CRM gateway. Requests
// are authenticated with an HMAC-SHA256 signature over the app key and a
// millisecond timestamp.
type TokenService struct {
	tokenURL   string
	appKey     string
	appSecret  string
	httpClient *httpclient.Client

	mu          sync.Mutex
	accessToken string
	tokenExpiry time.Time
}

type tokenEnvelope struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Data    struct {
		AccessToken string      `json:"access_token"`
		Expire      json.Number `json:"expire"`
	} `json:"data"`
}

// NewTokenService creates a token service against the given auth base URL.
func NewTokenService(tokenURL, appKey, appSecret string, client *httpclient.Client) *TokenService {
	return &TokenService{
		tokenURL:   strings.TrimSuffix(tokenURL, "/"),
		appKey:     appKey,
		appSecret:  appSecret,
		httpClient: client,
	}
}

// Token returns the cached access token, fetching a fresh one when the cache
// is empty or expired.
func (s *TokenService) Token(ctx context.Context) (string, error) {
	return s.token(ctx, false)
}

// Refresh discards the cached token and fetches a fresh one.
func (s *TokenService) Refresh(ctx context.Context) (string, error) {
	return s.token(ctx, true)
}

func (s *TokenService) token(ctx context.Context, force bool) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !force && s.accessToken != "" && s.tokenExpiry.After(time.Now()) {
		return s.accessToken, nil
	}

	token, lifetime, err := s.fetchToken(ctx)
	if err != nil {
		return "", err
	}

	usable := lifetime - expirySafetyMargin
	if usable < expirySafetyMargin {
		usable = expirySafetyMargin
	}
	s.accessToken = token
	s.tokenExpiry = time.Now().Add(usable)

	return token, nil
}

func (s *TokenService) fetchToken(ctx context.Context) (string, time.Duration, error) {
	timestamp := strconv.FormatInt(time.Now().UnixMilli(), 10)

	params := url.Values{}
	params.Set("appKey", s.appKey)
	params.Set("timestamp", timestamp)
	params.Set("signature", Sign(s.appKey, s.appSecret, timestamp))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.tokenURL+tokenPath+"?"+params.Encode(), nil)
	if err != nil {
		return "", 0, errors.NewExternalServiceError("gateway-auth", err)
	}

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return "", 0, errors.NewExternalServiceError("gateway-auth", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", 0, errors.NewExternalServiceError("gateway-auth", err)
	}

	if resp.StatusCode != http.StatusOK {
		return "", 0, errors.NewExternalServiceError("gateway-auth",
			fmt.Errorf("token request failed with status %d: %s", resp.StatusCode, string(body)))
	}

	var envelope tokenEnvelope
	if err := json.Unmarshal(body, &envelope); err != nil {
		return "", 0, errors.NewGatewayAuthError("malformed token response: " + err.Error())
	}
	if envelope.Code != "00000" {
		return "", 0, errors.NewGatewayAuthError(
			fmt.Sprintf("token request rejected with code %s: %s", envelope.Code, envelope.Message))
	}
	if envelope.Data.AccessToken == "" {
		return "", 0, errors.NewGatewayAuthError("access token missing in response")
	}

	lifetime := 7200 * time.Second
	if seconds, err := envelope.Data.Expire.Int64(); err == nil && seconds > 0 {
		lifetime = time.Duration(seconds) * time.Second
	}

	return envelope.Data.AccessToken, lifetime, nil
}

// Sign computes the gateway request signature: the base64-encoded HMAC-SHA256
// digest of "appKey{key}timestamp{millis}" under the app secret.
func Sign(appKey, appSecret, timestamp string) string {
	mac := hmac.New(sha256.New, []byte(appSecret))
	mac.Write([]byte("appKey" + appKey + "timestamp" + timestamp))
	return base64.StdEncoding.EncodeToString(mac.Sum(nil))
}
