package drive

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// driveScope is the OAuth scope the pipeline needs: full file access on the
// shared drive.
const driveScope = "https://www.googleapis.com/auth/drive"

// tokenExpirySkew is subtracted from the token lifetime so a token is
// refreshed before the API starts rejecting it.
const tokenExpirySkew = time.Minute

// TokenSource yields a bearer token for API requests. The production
// implementation exchanges a signed service-account assertion; tests inject
// a static one.
type TokenSource interface {
	Token(ctx context.Context) (string, error)
}

// ServiceAccount is the subset of a service-account key file the client
// needs to authenticate.
type ServiceAccount struct {
	ClientEmail string `json:"client_email"`
	PrivateKey  string `json:"private_key"`
	TokenURI    string `json:"token_uri"`
}

// LoadServiceAccount reads and validates a service-account JSON key file.
func LoadServiceAccount(path string) (*ServiceAccount, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("drive: failed to read credentials file: %w", err)
	}

	var sa ServiceAccount
	if err := json.Unmarshal(data, &sa); err != nil {
		return nil, fmt.Errorf("drive: failed to parse credentials file: %w", err)
	}
	if sa.ClientEmail == "" || sa.PrivateKey == "" {
		return nil, fmt.Errorf("drive: credentials file is missing client_email or private_key")
	}
	if sa.TokenURI == "" {
		sa.TokenURI = "https://oauth2.googleapis.com/token"
	}
	return &sa, nil
}

// serviceAccountTokenSource exchanges an RS256-signed JWT assertion for a
// bearer token and caches it until shortly before expiry.
type serviceAccountTokenSource struct {
	account *ServiceAccount
	http    *http.Client

	mu     sync.Mutex
	token  string
	expiry time.Time
}

// NewServiceAccountTokenSource creates a TokenSource for the given account.
func NewServiceAccountTokenSource(account *ServiceAccount, httpClient *http.Client) TokenSource {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	return &serviceAccountTokenSource{account: account, http: httpClient}
}

func (s *serviceAccountTokenSource) Token(ctx context.Context) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.token != "" && time.Now().Before(s.expiry) {
		return s.token, nil
	}

	token, expiry, err := s.exchange(ctx)
	if err != nil {
		return "", err
	}
	s.token = token
	s.expiry = expiry
	return token, nil
}

// exchange signs the assertion and posts it to the token endpoint.
// Must be called with s.mu held.
func (s *serviceAccountTokenSource) exchange(ctx context.Context) (string, time.Time, error) {
	key, err := jwt.ParseRSAPrivateKeyFromPEM([]byte(s.account.PrivateKey))
	if err != nil {
		return "", time.Time{}, fmt.Errorf("drive: failed to parse private key: %w", err)
	}

	now := time.Now()
	claims := jwt.MapClaims{
		"iss":   s.account.ClientEmail,
		"scope": driveScope,
		"aud":   s.account.TokenURI,
		"iat":   now.Unix(),
		"exp":   now.Add(time.Hour).Unix(),
	}
	assertion, err := jwt.NewWithClaims(jwt.SigningMethodRS256, claims).SignedString(key)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("drive: failed to sign assertion: %w", err)
	}

	form := url.Values{
		"grant_type": {"urn:ietf:params:oauth:grant-type:jwt-bearer"},
		"assertion":  {assertion},
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.account.TokenURI, strings.NewReader(form.Encode()))
	if err != nil {
		return "", time.Time{}, err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := s.http.Do(req)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("drive: token exchange failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return "", time.Time{}, fmt.Errorf("drive: token endpoint returned %d", resp.StatusCode)
	}

	var body struct {
		AccessToken string `json:"access_token"`
		ExpiresIn   int    `json:"expires_in"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return "", time.Time{}, fmt.Errorf("drive: failed to decode token response: %w", err)
	}
	if body.AccessToken == "" {
		return "", time.Time{}, fmt.Errorf("drive: token endpoint returned no access token")
	}

	lifetime := time.Duration(body.ExpiresIn) * time.Second
	if lifetime <= tokenExpirySkew {
		lifetime = tokenExpirySkew + time.Second
	}
	return body.AccessToken, now.Add(lifetime - tokenExpirySkew), nil
}

// StaticTokenSource returns a TokenSource that always yields the given
// token. Used by tests and by deployments with externally managed tokens.
func StaticTokenSource(token string) TokenSource {
	return staticTokenSource(token)
}

type staticTokenSource string

func (s staticTokenSource) Token(context.Context) (string, error) {
	return string(s), nil
}
