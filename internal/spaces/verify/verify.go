// Package verify implements email ownership checks with short-lived
// six-digit codes.
package verify

import (
	"bytes"
	"context"
	"crypto/rand"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"net/http"
	"sync"
	"time"
)

const (
	codeDigits = 6
	// codeTTL matches how long a code stays redeemable.
	codeTTL = 5 * time.Minute
)

// ErrInvalidCode covers expired, wrong, and never-issued codes alike, so a
// caller cannot probe which one it was.
var ErrInvalidCode = errors.New("verify: invalid or expired code")

// Sender delivers a code to an address.
type Sender interface {
	SendCode(ctx context.Context, email, code string) error
}

// Verifier issues and redeems codes. Codes are single use and expire after
// five minutes; issuing a new code for an address invalidates the old one.
type Verifier struct {
	sender Sender
	log    *slog.Logger

	mu    sync.Mutex
	codes map[string]issuedCode
	now   func() time.Time
}

type issuedCode struct {
	code    string
	expires time.Time
}

// New wires a Verifier.
func New(sender Sender, log *slog.Logger) *Verifier {
	if log == nil {
		log = slog.Default()
	}
	return &Verifier{
		sender: sender,
		log:    log,
		codes:  make(map[string]issuedCode),
		now:    time.Now,
	}
}

// Issue generates a code for the address and sends it. The code is only
// armed once the send succeeded.
func (v *Verifier) Issue(ctx context.Context, email string) error {
	code, err := generateCode()
	if err != nil {
		return fmt.Errorf("generate code: %w", err)
	}
	if err := v.sender.SendCode(ctx, email, code); err != nil {
		return fmt.Errorf("send code: %w", err)
	}

	v.mu.Lock()
	v.codes[email] = issuedCode{code: code, expires: v.now().Add(codeTTL)}
	v.mu.Unlock()

	v.log.Info("verification code issued", "email", email)
	return nil
}

// Redeem checks a code and consumes it.
func (v *Verifier) Redeem(email, code string) error {
	v.mu.Lock()
	defer v.mu.Unlock()

	issued, ok := v.codes[email]
	if !ok || v.now().After(issued.expires) {
		delete(v.codes, email)
		return ErrInvalidCode
	}
	if subtle.ConstantTimeCompare([]byte(issued.code), []byte(code)) != 1 {
		return ErrInvalidCode
	}
	delete(v.codes, email)
	return nil
}

func generateCode() (string, error) {
	max := big.NewInt(1_000_000)
	n, err := rand.Int(rand.Reader, max)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%0*d", codeDigits, n), nil
}

// HTTPSender posts codes to an external mail relay.
type HTTPSender struct {
	Endpoint string
	APIKey   string
	Client   *http.Client
}

// NewHTTPSender builds a sender with a bounded default timeout.
func NewHTTPSender(endpoint, apiKey string) *HTTPSender {
	return &HTTPSender{
		Endpoint: endpoint,
		APIKey:   apiKey,
		Client:   &http.Client{Timeout: 10 * time.Second},
	}
}

func (s *HTTPSender) SendCode(ctx context.Context, email, code string) error {
	payload, err := json.Marshal(map[string]string{"email": email, "code": code})
	if err != nil {
		return fmt.Errorf("encode payload: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.Endpoint, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if s.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+s.APIKey)
	}

	resp, err := s.Client.Do(req)
	if err != nil {
		return fmt.Errorf("send mail: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return fmt.Errorf("mail relay returned %d", resp.StatusCode)
	}
	return nil
}
