package tokencache

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"farmfield/pkg/oauth"
)

func newTestCache(t *testing.T) *Cache {
	t.Helper()
	c, err := New(Config{Dir: filepath.Join(t.TempDir(), "tokens")})
	require.NoError(t, err)
	return c
}

func testToken(access string) *oauth.Token {
	return &oauth.Token{
		AccessToken:  access,
		TokenType:    "Bearer",
		ExpiresAt:    time.Date(2030, 1, 2, 3, 4, 5, 0, time.UTC),
		Scope:        []string{"org1", "ag1"},
		RefreshToken: "refresh-" + access,
	}
}

func TestCache_PutAndGet(t *testing.T) {
	c := newTestCache(t)

	require.NoError(t, c.Put(oauth.KindUser, testToken("user-access")))

	got, ok := c.Get(oauth.KindUser)
	require.True(t, ok)
	assert.Equal(t, oauth.KindUser, got.Kind)
	assert.Equal(t, "user-access", got.AccessToken)
	assert.Equal(t, "refresh-user-access", got.RefreshToken)
	assert.Equal(t, []string{"ag1", "org1"}, got.Scope)
	assert.True(t, got.ExpiresAt.Equal(time.Date(2030, 1, 2, 3, 4, 5, 0, time.UTC)))

	_, ok = c.Get(oauth.KindClientCredentials)
	assert.False(t, ok, "kinds must not share entries")
}

func TestCache_OneTokenPerKind(t *testing.T) {
	c := newTestCache(t)

	require.NoError(t, c.Put(oauth.KindClientCredentials, testToken("first")))
	require.NoError(t, c.Put(oauth.KindClientCredentials, testToken("second")))

	got, ok := c.Get(oauth.KindClientCredentials)
	require.True(t, ok)
	assert.Equal(t, "second", got.AccessToken)
}

func TestCache_FileFormatAndPermissions(t *testing.T) {
	c := newTestCache(t)
	require.NoError(t, c.Put(oauth.KindUser, testToken("abc")))

	path := c.Path(oauth.KindUser)
	assert.Equal(t, "user_token.json", filepath.Base(path))

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())

	data, err := os.ReadFile(path)
	require.NoError(t, err)

	var raw map[string]any
	require.NoError(t, json.Unmarshal(data, &raw))
	for _, key := range []string{"access_token", "token_type", "expires_at", "scope", "refresh_token"} {
		assert.Contains(t, raw, key)
	}
}

func TestCache_ClearThenGetIsMiss(t *testing.T) {
	c := newTestCache(t)

	for _, kind := range oauth.Kinds() {
		require.NoError(t, c.Put(kind, testToken(string(kind))))
		require.NoError(t, c.Clear(kind))

		_, ok := c.Get(kind)
		assert.False(t, ok, "kind %s", kind)

		// Idempotent.
		assert.NoError(t, c.Clear(kind))
	}
}

func TestCache_ClearAll(t *testing.T) {
	c := newTestCache(t)
	require.NoError(t, c.Put(oauth.KindUser, testToken("u")))
	require.NoError(t, c.Put(oauth.KindClientCredentials, testToken("c")))

	require.NoError(t, c.ClearAll())

	for _, kind := range oauth.Kinds() {
		_, ok := c.Get(kind)
		assert.False(t, ok)
	}
	assert.NoError(t, c.ClearAll())
}

func TestCache_MalformedEntryIsMiss(t *testing.T) {
	c := newTestCache(t)

	tests := map[string]string{
		"truncated json":  `{"access_token": "abc", "token_`,
		"not json":        "garbage",
		"no access token": `{"token_type": "Bearer"}`,
	}

	for name, content := range tests {
		t.Run(name, func(t *testing.T) {
			require.NoError(t, os.WriteFile(c.Path(oauth.KindUser), []byte(content), 0o600))

			got, ok := c.Get(oauth.KindUser)
			assert.False(t, ok)
			assert.Nil(t, got)
		})
	}

	// Self-healing on the next successful write.
	require.NoError(t, c.Put(oauth.KindUser, testToken("healed")))
	got, ok := c.Get(oauth.KindUser)
	require.True(t, ok)
	assert.Equal(t, "healed", got.AccessToken)
}

func TestCache_UnknownKind(t *testing.T) {
	c := newTestCache(t)

	_, ok := c.Get(oauth.Kind("robot"))
	assert.False(t, ok)
	assert.Error(t, c.Put(oauth.Kind("robot"), testToken("x")))
	assert.Error(t, c.Clear(oauth.Kind("robot")))
}

func TestCache_RejectsEmptyToken(t *testing.T) {
	c := newTestCache(t)
	assert.Error(t, c.Put(oauth.KindUser, nil))
	assert.Error(t, c.Put(oauth.KindUser, &oauth.Token{}))
}

func TestCache_NoTempFilesLeftBehind(t *testing.T) {
	c := newTestCache(t)
	for i := 0; i < 5; i++ {
		require.NoError(t, c.Put(oauth.KindUser, testToken("t")))
	}

	entries, err := os.ReadDir(c.Dir())
	require.NoError(t, err)
	for _, e := range entries {
		assert.NotContains(t, e.Name(), ".tmp")
	}
}

func TestCache_ConcurrentReadersNeverSeePartialRecords(t *testing.T) {
	c := newTestCache(t)
	require.NoError(t, c.Put(oauth.KindUser, testToken("seed")))

	var wg sync.WaitGroup
	stop := make(chan struct{})

	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := 0; i < 50; i++ {
			_ = c.Put(oauth.KindUser, testToken("writer"))
		}
		close(stop)
	}()

	for r := 0; r < 4; r++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				select {
				case <-stop:
					return
				default:
				}
				got, ok := c.Get(oauth.KindUser)
				if assert.True(t, ok) {
					assert.Contains(t, []string{"seed", "writer"}, got.AccessToken)
				}
			}
		}()
	}

	wg.Wait()
}

func TestCache_SharedDirectoryAcrossInstances(t *testing.T) {
	dir := t.TempDir()
	a, err := New(Config{Dir: dir})
	require.NoError(t, err)
	b, err := New(Config{Dir: dir})
	require.NoError(t, err)

	require.NoError(t, a.Put(oauth.KindClientCredentials, testToken("shared")))

	got, ok := b.Get(oauth.KindClientCredentials)
	require.True(t, ok)
	assert.Equal(t, "shared", got.AccessToken)
}

func TestCache_DirectoryPermissions(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "nested", "tokens")
	_, err := New(Config{Dir: dir})
	require.NoError(t, err)

	info, err := os.Stat(dir)
	require.NoError(t, err)
	assert.True(t, info.IsDir())
	assert.Equal(t, os.FileMode(0o700), info.Mode().Perm())
}
