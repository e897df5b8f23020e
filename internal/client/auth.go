package client

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"resumatch/internal/common"
	"resumatch/internal/errors"
	"resumatch/internal/session"
	"resumatch/internal/types"
)

// OAuthProviders lists the supported social sign-in providers
var OAuthProviders = []string{"google", "linkedin"}

// Login exchanges credentials for an access token and stores it
func (c *Client) Login(ctx context.Context, email, password string) (*types.AuthResponse, error) {
	email = strings.TrimSpace(email)
	if err := common.ValidateEmail(email); err != nil {
		return nil, err
	}
	if password == "" {
		return nil, errors.NewValidationError(errors.ErrCodeInvalidRequest, "password is required", nil)
	}

	var auth types.AuthResponse
	body := map[string]string{"email": email, "password": password}
	if err := c.doJSON(ctx, http.MethodPost, "/api/auth/login", nil, body, &auth, false); err != nil {
		return nil, err
	}

	if err := c.storeSession(&auth, email); err != nil {
		return nil, err
	}
	c.logger.Info("Signed in", "email", email)
	return &auth, nil
}

// Register creates an account. Password rules are checked before any request.
func (c *Client) Register(ctx context.Context, in types.RegisterInput) (*types.AuthResponse, error) {
	in.Email = strings.TrimSpace(in.Email)
	in.FullName = strings.TrimSpace(in.FullName)
	if err := common.ValidateEmail(in.Email); err != nil {
		return nil, err
	}
	if err := common.CheckPassword(in.Password); err != nil {
		return nil, err
	}

	var auth types.AuthResponse
	if err := c.doJSON(ctx, http.MethodPost, "/api/auth/register", nil, in, &auth, false); err != nil {
		return nil, err
	}

	// Some deployments require e-mail confirmation and return no token
	if auth.AccessToken != "" {
		if err := c.storeSession(&auth, in.Email); err != nil {
			return nil, err
		}
	}
	c.logger.Info("Account registered", "email", in.Email, "signed_in", auth.AccessToken != "")
	return &auth, nil
}

func (c *Client) storeSession(auth *types.AuthResponse, email string) error {
	if auth.AccessToken == "" {
		return errors.NewAuthError(errors.ErrCodeUnauthorized, "backend returned no access token", nil)
	}
	if auth.User != nil && auth.User.Email != "" {
		email = auth.User.Email
	}
	if err := session.Store(c.session, session.Session{Token: auth.AccessToken, Email: email}); err != nil {
		return fmt.Errorf("failed to save session: %w", err)
	}
	return nil
}

// Me returns the signed-in user
func (c *Client) Me(ctx context.Context) (*types.User, error) {
	var user types.User
	if err := c.doJSON(ctx, http.MethodGet, "/api/auth/me", nil, nil, &user, true); err != nil {
		return nil, err
	}
	return &user, nil
}

// Logout revokes the token on the backend, best effort, and clears the local session
func (c *Client) Logout(ctx context.Context) error {
	if _, err := c.session.Token(); err == nil {
		if err := c.doJSON(ctx, http.MethodPost, "/api/auth/logout", nil, nil, nil, true); err != nil {
			c.logger.Warn("Backend logout failed, clearing local session anyway", "error", err)
		}
	}
	return c.session.ClearToken()
}

// OAuthURL returns the URL that starts social sign-in with provider
func (c *Client) OAuthURL(ctx context.Context, provider string) (string, error) {
	provider = strings.ToLower(strings.TrimSpace(provider))
	supported := false
	for _, p := range OAuthProviders {
		if p == provider {
			supported = true
			break
		}
	}
	if !supported {
		return "", errors.NewValidationError(errors.ErrCodeInvalidRequest,
			fmt.Sprintf("unsupported OAuth provider %q (supported: %s)", provider, strings.Join(OAuthProviders, ", ")), nil)
	}

	var out struct {
		URL string `json:"url"`
	}
	if err := c.doJSON(ctx, http.MethodGet, "/api/auth/oauth/"+provider, nil, nil, &out, false); err != nil {
		return "", err
	}
	if out.URL == "" {
		return "", errors.NewNetworkError(errors.ErrCodeInvalidFormat, "backend returned no OAuth URL", nil)
	}
	return out.URL, nil
}
