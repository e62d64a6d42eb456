package identity

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/lhdbsbz/berrychat/internal/config"
)

// ErrNoToken means the identity collaborator had nothing to hand out.
var ErrNoToken = errors.New("no bearer token available")

// Source hands out the opaque bearer token for the backend connection.
// Acquisition and refresh live outside berrychat.
type Source interface {
	Token(ctx context.Context) (string, error)
}

// Func adapts a plain function to Source.
type Func func(ctx context.Context) (string, error)

func (f Func) Token(ctx context.Context) (string, error) { return f(ctx) }

// Static always returns the same token.
type Static string

func (s Static) Token(ctx context.Context) (string, error) {
	if s == "" {
		return "", ErrNoToken
	}
	return string(s), nil
}

// File reads the token from a file on every call, so an external refresher can rewrite it.
type File struct {
	Path string
}

func (f File) Token(ctx context.Context) (string, error) {
	data, err := os.ReadFile(f.Path)
	if err != nil {
		return "", fmt.Errorf("read token file: %w", err)
	}
	token := strings.TrimSpace(string(data))
	if token == "" {
		return "", fmt.Errorf("token file %s: %w", f.Path, ErrNoToken)
	}
	return token, nil
}

// Anonymous is for backends that accept connections without a token.
type Anonymous struct{}

func (Anonymous) Token(ctx context.Context) (string, error) { return "", nil }

// ConfigSource follows the hot-reloaded config: identity.tokenFile wins over identity.token.
type ConfigSource struct{}

func (ConfigSource) Token(ctx context.Context) (string, error) {
	cfg := config.Get()
	if cfg == nil {
		return "", fmt.Errorf("config not loaded: %w", ErrNoToken)
	}
	if cfg.Identity.Anonymous {
		return Anonymous{}.Token(ctx)
	}
	if cfg.Identity.TokenFile != "" {
		return File{Path: cfg.Identity.TokenFile}.Token(ctx)
	}
	return Static(cfg.Identity.Token).Token(ctx)
}
