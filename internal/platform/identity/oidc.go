package identity

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
)

// Endpoints holds the OpenID Connect endpoints discovered from a realm's
// .well-known/openid-configuration document.
type Endpoints struct {
	Issuer                string `json:"issuer"`
	AuthorizationEndpoint string `json:"authorization_endpoint"`
	TokenEndpoint         string `json:"token_endpoint"`
	UserinfoEndpoint      string `json:"userinfo_endpoint"`
	EndSessionEndpoint    string `json:"end_session_endpoint"`
	JWKSURI               string `json:"jwks_uri"`
}

// DiscoverRealm fetches and parses the OpenID Connect discovery document for
// a Keycloak realm. The well-known URL is {base}/realms/{realm}/.well-known/
// openid-configuration; any OIDC-compliant provider exposing that layout
// works.
func DiscoverRealm(ctx context.Context, client *http.Client, baseURL, realm string) (*Endpoints, error) {
	issuer := strings.TrimRight(baseURL, "/") + "/realms/" + realm
	discoveryURL := issuer + "/.well-known/openid-configuration"

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, discoveryURL, nil)
	if err != nil {
		return nil, err
	}

	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetching OIDC discovery document: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("OIDC discovery endpoint returned status %d", resp.StatusCode)
	}

	var endpoints Endpoints
	if err := json.NewDecoder(resp.Body).Decode(&endpoints); err != nil {
		return nil, fmt.Errorf("decoding OIDC discovery document: %w", err)
	}

	if endpoints.TokenEndpoint == "" {
		return nil, fmt.Errorf("OIDC discovery document missing token_endpoint")
	}
	if endpoints.AuthorizationEndpoint == "" {
		return nil, fmt.Errorf("OIDC discovery document missing authorization_endpoint")
	}

	return &endpoints, nil
}
