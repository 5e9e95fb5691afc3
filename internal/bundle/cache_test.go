package bundle

import (
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/veristat-labs/veristat/internal/compiler"
	"github.com/veristat-labs/veristat/pkg/core"
)

func testContext() compiler.Context {
	return compiler.Context{PluginID: "fairness", WidgetID: "summary"}
}

func TestGetOrCompileCachesByContent(t *testing.T) {
	cache := New(compiler.New(nil), nil)

	source := []byte("<p>hello</p>")
	first, err := cache.GetOrCompile(source, testContext())
	require.NoError(t, err)
	second, err := cache.GetOrCompile(source, testContext())
	require.NoError(t, err)

	assert.Same(t, first, second)
	assert.Equal(t, 1, cache.Len())
}

func TestGetOrCompileNewKeyOnSourceChange(t *testing.T) {
	cache := New(compiler.New(nil), nil)

	first, err := cache.GetOrCompile([]byte("<p>one</p>"), testContext())
	require.NoError(t, err)
	second, err := cache.GetOrCompile([]byte("<p>two</p>"), testContext())
	require.NoError(t, err)

	assert.NotEqual(t, first.Key, second.Key)
	assert.Equal(t, 2, cache.Len())

	// The superseded entry stays addressable under its old key.
	old, ok := cache.Get(first.Key)
	require.True(t, ok)
	assert.Same(t, first, old)
}

func TestGetOrCompileErrorNotCached(t *testing.T) {
	cache := New(compiler.New(nil), nil)

	broken := []byte("<p>{ unterminated</p>")
	_, err := cache.GetOrCompile(broken, testContext())
	require.Error(t, err)
	assert.Equal(t, 0, cache.Len())

	// A failed compile leaves nothing behind and is retried on the next call.
	_, err = cache.GetOrCompile(broken, testContext())
	require.Error(t, err)
}

func TestGetOrCompileConcurrentCallersShareOneCompile(t *testing.T) {
	var compiles atomic.Int64
	cache := New(compiler.New(nil), nil)

	source := []byte("---\nname: Shared\n---\n<p>shared</p>")
	key := core.BundleKey("fairness", "summary", source)

	// Pre-warm through the singleflight path once to count compilations via
	// the cache length, then hammer the same key from many goroutines.
	var wg sync.WaitGroup
	results := make([]*core.CompiledBundle, 32)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			b, err := cache.GetOrCompile(source, testContext())
			if err == nil {
				results[i] = b
			}
			compiles.Add(1)
		}(i)
	}
	wg.Wait()

	require.Equal(t, int64(32), compiles.Load())
	assert.Equal(t, 1, cache.Len())
	for _, b := range results {
		require.NotNil(t, b)
		assert.Equal(t, key, b.Key)
	}
}

func TestGetUnknownKey(t *testing.T) {
	cache := New(compiler.New(nil), nil)

	_, ok := cache.Get("no-such-key")
	assert.False(t, ok)
}
