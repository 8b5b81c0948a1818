package firebase

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/go-resty/resty/v2"
	"github.com/rs/zerolog/log"
)

const (
	identityToolkitBaseURL = "https://identitytoolkit.googleapis.com/v1"
	secureTokenBaseURL     = "https://securetoken.googleapis.com/v1"
)

// Credentials is what the auth backend hands back after a successful sign-in,
// sign-up or token refresh.
type Credentials struct {
	UserID       string
	Email        string
	IDToken      string
	RefreshToken string
}

// AuthClient is the auth collaborator: sign-in, sign-up, token refresh,
// password reset and account deletion against the identity backend.
type AuthClient interface {
	SignIn(ctx context.Context, email, password string) (*Credentials, error)
	SignUp(ctx context.Context, email, password string) (*Credentials, error)
	Refresh(ctx context.Context, refreshToken string) (*Credentials, error)
	SendPasswordReset(ctx context.Context, email string) error
	DeleteAccount(ctx context.Context, idToken string) error
}

type AuthClientOpts struct {
	APIKey string
	// BaseURL and TokenBaseURL override the production endpoints, used in tests.
	BaseURL      string
	TokenBaseURL string
}

// RESTAuthClient implements AuthClient against the Firebase Auth REST API.
type RESTAuthClient struct {
	httpClient   *resty.Client
	apiKey       string
	baseURL      string
	tokenBaseURL string
}

func NewAuthClient(opts AuthClientOpts) *RESTAuthClient {
	c := RESTAuthClient{
		apiKey:       opts.APIKey,
		baseURL:      identityToolkitBaseURL,
		tokenBaseURL: secureTokenBaseURL,
	}
	if opts.BaseURL != "" {
		c.baseURL = opts.BaseURL
	}
	if opts.TokenBaseURL != "" {
		c.tokenBaseURL = opts.TokenBaseURL
	}
	c.httpClient = resty.New().
		SetHeader("Content-Type", "application/json")
	return &c
}

type authResponse struct {
	LocalID      string `json:"localId"`
	Email        string `json:"email"`
	IDToken      string `json:"idToken"`
	RefreshToken string `json:"refreshToken"`
}

type refreshResponse struct {
	UserID       string `json:"user_id"`
	IDToken      string `json:"id_token"`
	RefreshToken string `json:"refresh_token"`
}

type authErrorResponse struct {
	Error struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

func (c *RESTAuthClient) SignIn(ctx context.Context, email, password string) (*Credentials, error) {
	result := &authResponse{}
	res, err := c.httpClient.NewRequest().
		SetContext(ctx).
		SetQueryParam("key", c.apiKey).
		SetBody(map[string]any{
			"email":             email,
			"password":          password,
			"returnSecureToken": true,
		}).
		SetResult(result).
		Post(c.baseURL + "/accounts:signInWithPassword")
	if err := c.handleAuthError(res, err); err != nil {
		return nil, fmt.Errorf("sign in failed: %w", err)
	}
	return &Credentials{
		UserID:       result.LocalID,
		Email:        result.Email,
		IDToken:      result.IDToken,
		RefreshToken: result.RefreshToken,
	}, nil
}

func (c *RESTAuthClient) SignUp(ctx context.Context, email, password string) (*Credentials, error) {
	result := &authResponse{}
	res, err := c.httpClient.NewRequest().
		SetContext(ctx).
		SetQueryParam("key", c.apiKey).
		SetBody(map[string]any{
			"email":             email,
			"password":          password,
			"returnSecureToken": true,
		}).
		SetResult(result).
		Post(c.baseURL + "/accounts:signUp")
	if err := c.handleAuthError(res, err); err != nil {
		return nil, fmt.Errorf("sign up failed: %w", err)
	}
	return &Credentials{
		UserID:       result.LocalID,
		Email:        result.Email,
		IDToken:      result.IDToken,
		RefreshToken: result.RefreshToken,
	}, nil
}

// Refresh exchanges a refresh token for a fresh id token. The token endpoint
// lives on a different host than the other auth operations and speaks
// form-encoded requests with snake_case response fields.
func (c *RESTAuthClient) Refresh(ctx context.Context, refreshToken string) (*Credentials, error) {
	result := &refreshResponse{}
	res, err := c.httpClient.NewRequest().
		SetContext(ctx).
		SetQueryParam("key", c.apiKey).
		SetHeader("Content-Type", "application/x-www-form-urlencoded").
		SetFormData(map[string]string{
			"grant_type":    "refresh_token",
			"refresh_token": refreshToken,
		}).
		SetResult(result).
		Post(c.tokenBaseURL + "/token")
	if err := c.handleAuthError(res, err); err != nil {
		return nil, fmt.Errorf("token refresh failed: %w", err)
	}
	return &Credentials{
		UserID:       result.UserID,
		IDToken:      result.IDToken,
		RefreshToken: result.RefreshToken,
	}, nil
}

func (c *RESTAuthClient) SendPasswordReset(ctx context.Context, email string) error {
	res, err := c.httpClient.NewRequest().
		SetContext(ctx).
		SetQueryParam("key", c.apiKey).
		SetBody(map[string]any{
			"requestType": "PASSWORD_RESET",
			"email":       email,
		}).
		Post(c.baseURL + "/accounts:sendOobCode")
	if err := c.handleAuthError(res, err); err != nil {
		return fmt.Errorf("password reset failed: %w", err)
	}
	return nil
}

func (c *RESTAuthClient) DeleteAccount(ctx context.Context, idToken string) error {
	res, err := c.httpClient.NewRequest().
		SetContext(ctx).
		SetQueryParam("key", c.apiKey).
		SetBody(map[string]any{"idToken": idToken}).
		Post(c.baseURL + "/accounts:delete")
	if err := c.handleAuthError(res, err); err != nil {
		return fmt.Errorf("account deletion failed: %w", err)
	}
	return nil
}

// handleAuthError converts a failing auth response into a tagged *Error.
// The backend reports failures as 400s with an error message code; the code
// is preserved so it can be mapped to a user-facing message.
func (c *RESTAuthClient) handleAuthError(res *resty.Response, err error) error {
	if err != nil {
		return &Error{Kind: KindNetwork, Err: err}
	}
	if !res.IsError() {
		return nil
	}
	code := parseAuthErrorCode(res.Body())
	kind := KindUnknown
	switch {
	case code == "INVALID_ID_TOKEN" || code == "TOKEN_EXPIRED" || code == "INVALID_REFRESH_TOKEN" || code == "CREDENTIAL_TOO_OLD_LOGIN_AGAIN":
		kind = KindUnauthenticated
	case res.StatusCode() == 401 || res.StatusCode() == 403:
		kind = KindPermissionDenied
	}
	log.Debug().Int("status", res.StatusCode()).Str("code", code).Msg("auth request failed")
	return &Error{Kind: kind, Code: code, Status: res.StatusCode()}
}

// parseAuthErrorCode extracts the backend error code from an error body.
// Codes sometimes carry a suffix ("WEAK_PASSWORD : Password should be...");
// only the identifier part is kept.
func parseAuthErrorCode(body []byte) string {
	var parsed authErrorResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return ""
	}
	code := parsed.Error.Message
	if i := strings.IndexAny(code, " :"); i > 0 {
		code = code[:i]
	}
	return code
}
