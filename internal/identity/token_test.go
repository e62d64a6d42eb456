package identity

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lhdbsbz/berrychat/internal/config"
)

func TestStatic(t *testing.T) {
	tok, err := Static("abc").Token(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "abc", tok)

	_, err = Static("").Token(context.Background())
	assert.ErrorIs(t, err, ErrNoToken)
}

func TestFile_RereadsEveryCall(t *testing.T) {
	path := filepath.Join(t.TempDir(), "token")
	src := File{Path: path}

	_, err := src.Token(context.Background())
	assert.ErrorIs(t, err, os.ErrNotExist)

	require.NoError(t, os.WriteFile(path, []byte("first\n"), 0600))
	tok, err := src.Token(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "first", tok)

	require.NoError(t, os.WriteFile(path, []byte("second"), 0600))
	tok, err = src.Token(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "second", tok)

	require.NoError(t, os.WriteFile(path, []byte("  \n"), 0600))
	_, err = src.Token(context.Background())
	assert.ErrorIs(t, err, ErrNoToken)
}

func TestConfigSource(t *testing.T) {
	prev := config.Get()
	t.Cleanup(func() { config.Set(prev) })
	ctx := context.Background()

	cfg := config.DefaultConfig()
	cfg.Identity.Token = "from-config"
	config.Set(cfg)
	tok, err := ConfigSource{}.Token(ctx)
	require.NoError(t, err)
	assert.Equal(t, "from-config", tok)

	path := filepath.Join(t.TempDir(), "token")
	require.NoError(t, os.WriteFile(path, []byte("from-file"), 0600))
	next := config.DefaultConfig()
	next.Identity.Token = "from-config"
	next.Identity.TokenFile = path
	config.Set(next)
	tok, err = ConfigSource{}.Token(ctx)
	require.NoError(t, err)
	assert.Equal(t, "from-file", tok)

	anon := config.DefaultConfig()
	anon.Identity.Anonymous = true
	config.Set(anon)
	tok, err = ConfigSource{}.Token(ctx)
	require.NoError(t, err)
	assert.Empty(t, tok)

	config.Set(config.DefaultConfig())
	_, err = ConfigSource{}.Token(ctx)
	assert.ErrorIs(t, err, ErrNoToken)
}
