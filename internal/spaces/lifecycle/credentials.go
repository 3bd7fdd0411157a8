package lifecycle

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"net/url"
	"strings"
)

// generatePassword produces a random credential for GUI space types.
func generatePassword() (string, error) {
	buf := make([]byte, 12)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("failed to generate password: %w", err)
	}
	return hex.EncodeToString(buf), nil
}

// GenerateToken produces an opaque bearer token for user sessions.
func GenerateToken() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("failed to generate token: %w", err)
	}
	return hex.EncodeToString(buf), nil
}

// URLComposer builds the externally reachable URL for a space. BaseURL is
// the deployment's public origin, e.g. "http://spaces.example.com". In port
// mode each space is reached on its own host port; in path mode a fronting
// proxy routes by space ID.
type URLComposer struct {
	BaseURL  string
	PathMode bool
}

// Compose returns the access URL for a space. GUI types carry their
// generated credential in the userinfo part so the browser authenticates
// without a login form.
func (c URLComposer) Compose(spaceID string, port int, gui bool, credential string) (string, error) {
	base, err := url.Parse(c.BaseURL)
	if err != nil {
		return "", fmt.Errorf("invalid base url %q: %w", c.BaseURL, err)
	}
	if c.PathMode {
		base.Path = strings.TrimRight(base.Path, "/") + "/spaces/" + spaceID + "/"
	} else {
		base.Host = fmt.Sprintf("%s:%d", base.Hostname(), port)
	}
	if gui && credential != "" {
		base.User = url.UserPassword("abc", credential)
	}
	return base.String(), nil
}
