package auth

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"golang.org/x/oauth2"

	"github.com/mnehpets/rpcdispatch/jsonrpc"
)

// maxUserInfoBytes bounds the userinfo response we are willing to read.
const maxUserInfoBytes = 64 << 10

// UserInfoVerifier accepts opaque OAuth2 access tokens by presenting them to
// a userinfo endpoint. A 401 or 403 from the endpoint rejects the token; any
// other failure means the endpoint is unavailable.
type UserInfoVerifier struct {
	URL string
	// LevelClaim names the member holding the access level. Defaults to "acl".
	LevelClaim string
	// Client is the base HTTP client. Defaults to http.DefaultClient.
	Client *http.Client
}

// Verify implements Verifier.
func (v *UserInfoVerifier) Verify(ctx context.Context, token string) (Credential, error) {
	if v.Client != nil {
		ctx = context.WithValue(ctx, oauth2.HTTPClient, v.Client)
	}
	client := oauth2.NewClient(ctx, oauth2.StaticTokenSource(&oauth2.Token{
		AccessToken: token,
		TokenType:   "Bearer",
	}))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, v.URL, nil)
	if err != nil {
		return Credential{}, fmt.Errorf("auth: userinfo request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	resp, err := client.Do(req)
	if err != nil {
		return Credential{}, fmt.Errorf("auth: userinfo: %w", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusUnauthorized, resp.StatusCode == http.StatusForbidden:
		return Credential{}, invalidToken("userinfo rejected token: %s", resp.Status)
	case resp.StatusCode != http.StatusOK:
		return Credential{}, fmt.Errorf("auth: userinfo: unexpected status %s", resp.Status)
	}

	var claims map[string]any
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxUserInfoBytes)).Decode(&claims); err != nil {
		return Credential{}, fmt.Errorf("auth: userinfo: decode: %w", err)
	}
	levelClaim := v.LevelClaim
	if levelClaim == "" {
		levelClaim = "acl"
	}
	cred := Credential{}
	if sub, ok := claims["sub"].(string); ok {
		cred.Subject = sub
	}
	if level, ok := claims[levelClaim].(string); ok {
		cred.Level = jsonrpc.Level(level)
	}
	return cred, nil
}
