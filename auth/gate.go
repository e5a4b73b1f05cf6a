// Package auth implements the authentication gate that guards stream
// establishment: one identity-verification call against the external
// identity service, retried on transient unavailability, terminal on an
// invalid credential.
package auth

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/Manu-world/flight-tracking-service/errors"
	"github.com/Manu-world/flight-tracking-service/pkg/retry"
)

// Identity is the verified subject of a stream.
type Identity struct {
	ID    string `json:"id"`
	Email string `json:"email,omitempty"`
	Name  string `json:"name,omitempty"`
}

// Gate validates bearer credentials against the identity service.
type Gate struct {
	verifyURL string
	http      *http.Client
	retryCfg  retry.Config
	logger    *slog.Logger
}

// Config configures a Gate.
type Config struct {
	VerifyURL  string
	HTTPClient *http.Client
	RetryCfg   *retry.Config
	Logger     *slog.Logger
}

// NewGate creates an authentication gate.
func NewGate(cfg Config) *Gate {
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 10 * time.Second}
	}
	retryCfg := retry.Identity()
	if cfg.RetryCfg != nil {
		retryCfg = *cfg.RetryCfg
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Gate{
		verifyURL: cfg.VerifyURL,
		http:      httpClient,
		retryCfg:  retryCfg,
		logger:    logger,
	}
}

// Verify checks the credential with the identity service. An unauthorized
// response is terminal and never retried; connection failures and other
// non-2xx statuses are retried within the fixed attempt budget, after which
// the gate reports the service unavailable.
func (g *Gate) Verify(ctx context.Context, token string) (Identity, error) {
	if token == "" {
		return Identity{}, errors.WrapAuthInvalid(
			errors.ErrMissingToken, "Gate", "Verify", "credential check")
	}

	identity, err := retry.DoWithResult(ctx, g.retryCfg, func() (Identity, error) {
		return g.verifyOnce(ctx, token)
	})
	if err != nil {
		if errors.ClassifyKind(err) == errors.KindAuthInvalid {
			return Identity{}, err
		}
		g.logger.Warn("identity service unavailable", "component", "auth", "error", err)
		return Identity{}, errors.WrapTransient(
			errors.ErrAuthUnavailable, "Gate", "Verify", "identity service call")
	}
	return identity, nil
}

func (g *Gate) verifyOnce(ctx context.Context, token string) (Identity, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, g.verifyURL, nil)
	if err != nil {
		return Identity{}, errors.WrapFatal(err, "Gate", "verifyOnce", "build request")
	}
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := g.http.Do(req)
	if err != nil {
		return Identity{}, errors.WrapTransient(err, "Gate", "verifyOnce", "call identity service")
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusUnauthorized:
		return Identity{}, errors.WrapAuthInvalid(
			errors.ErrInvalidToken, "Gate", "verifyOnce", "credential check")
	case resp.StatusCode != http.StatusOK:
		return Identity{}, errors.WrapTransient(
			fmt.Errorf("status %d", resp.StatusCode), "Gate", "verifyOnce", "verify token")
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return Identity{}, errors.WrapTransient(err, "Gate", "verifyOnce", "read response")
	}

	var envelope struct {
		Data *Identity `json:"data"`
	}
	if err := json.Unmarshal(body, &envelope); err != nil {
		return Identity{}, errors.WrapMalformed(err, "Gate", "verifyOnce", "decode verify response")
	}
	if envelope.Data == nil || envelope.Data.ID == "" {
		return Identity{}, errors.WrapMalformed(
			errors.New("no user data in response"), "Gate", "verifyOnce", "decode verify response")
	}
	return *envelope.Data, nil
}

// TokenFromHeader extracts the bearer token from an Authorization header.
func TokenFromHeader(h http.Header) string {
	raw := h.Get("Authorization")
	if raw == "" {
		return ""
	}
	parts := strings.SplitN(raw, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return ""
	}
	return strings.TrimSpace(parts[1])
}

// TokenFromQuery extracts the socket credential from the connection
// establishment parameters. Extraction failure is rejected before any retry
// logic runs.
func TokenFromQuery(q url.Values) (string, error) {
	token := q.Get("token")
	if token == "" {
		return "", errors.WrapAuthInvalid(
			errors.ErrMissingToken, "Gate", "TokenFromQuery", "extract connection credential")
	}
	return token, nil
}
