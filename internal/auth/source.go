// ABOUTME: Client-side bearer token source backed by config or a token file
// ABOUTME: Fails fast on expired JWTs and warns once when one is close to expiry

package auth

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"
)

// DefaultExpiryWarning is how close to expiry a token triggers a warning
const DefaultExpiryWarning = 10 * time.Minute

// Source supplies bearer tokens. A static token wins over the file; the file
// is re-read on every call so rotated tokens are picked up.
type Source struct {
	static string
	file   string
	warnIn time.Duration
	logger *slog.Logger
	now    func() time.Time

	mu     sync.Mutex
	warned string
}

// NewSource creates a token source. Both token and file may be empty, in
// which case requests are sent without Authorization.
func NewSource(token, file string, logger *slog.Logger) *Source {
	if logger == nil {
		logger = slog.Default()
	}
	return &Source{
		static: strings.TrimSpace(token),
		file:   expandHome(file),
		warnIn: DefaultExpiryWarning,
		logger: logger.With("component", "auth"),
		now:    time.Now,
	}
}

// Token returns the current token, or "" when none is configured.
func (s *Source) Token() (string, error) {
	token := s.static
	if token == "" && s.file != "" {
		data, err := os.ReadFile(s.file)
		if err != nil {
			return "", fmt.Errorf("reading token file: %w", err)
		}
		token = strings.TrimSpace(string(data))
	}
	if token == "" {
		return "", nil
	}

	exp, ok := ExpiresAt(token)
	if !ok {
		return token, nil
	}

	now := s.now()
	if !now.Before(exp) {
		return "", fmt.Errorf("%w at %s", ErrExpiredToken, exp.Format(time.RFC3339))
	}
	if exp.Sub(now) < s.warnIn {
		s.warnOnce(token, exp)
	}
	return token, nil
}

func (s *Source) warnOnce(token string, exp time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.warned == token {
		return
	}
	s.warned = token
	s.logger.Warn("bearer token expires soon", "expires_at", exp.Format(time.RFC3339))
}

func expandHome(path string) string {
	if path == "~" || strings.HasPrefix(path, "~/") {
		if home, err := os.UserHomeDir(); err == nil {
			return filepath.Join(home, strings.TrimPrefix(path, "~"))
		}
	}
	return path
}
