//go:build integration

package browser_test

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sitecheck/internal/browser"
)

const shopPage = `<html><body>
<h1 class="product-title">Scooter</h1>
<input name="quantity" value="1">
<button name="plus" onclick="document.querySelector('[name=quantity]').value = '2'">+</button>
<button name="broken" onclick="null.length">Broken</button>
<button name="logs" onclick="console.error('checkout handler crashed')">Logs</button>
<button name="add" disabled>Add to Cart</button>
<div style="display:none" class="hidden">hidden</div>
</body></html>`

type collector struct {
	mu   sync.Mutex
	msgs []string
}

func (c *collector) add(m string) {
	c.mu.Lock()
	c.msgs = append(c.msgs, m)
	c.mu.Unlock()
}

func (c *collector) len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.msgs)
}

func TestManager_ProductPage_Integration(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprintln(w, shopPage)
	}))
	defer ts.Close()

	cfg := browser.DefaultConfig()
	cfg.NavigationTimeoutMs = 10000
	m := browser.NewManager(cfg)
	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
	defer cancel()
	defer func() {
		if err := m.Shutdown(context.Background()); err != nil {
			t.Logf("Shutdown error: %v", err)
		}
	}()

	page, err := m.NewPage(ctx)
	require.NoError(t, err)
	require.Len(t, m.List(), 1)
	assert.True(t, m.IsConnected())
	assert.NotEmpty(t, m.ControlURL())

	var runtimeErrs, consoleErrs collector
	page.SubscribeRuntimeError(runtimeErrs.add)
	page.SubscribeConsoleError(consoleErrs.add)

	require.NoError(t, page.Navigate(ctx, ts.URL+"/products/scooter"))
	u, err := page.URL(ctx)
	require.NoError(t, err)
	assert.Contains(t, u, "/products/scooter")

	title, err := page.Resolve(ctx, ".product-title")
	require.NoError(t, err)
	require.NotNil(t, title)
	text, err := title.Text(ctx)
	require.NoError(t, err)
	assert.Equal(t, "Scooter", text)

	missing, err := page.Resolve(ctx, ".does-not-exist")
	require.NoError(t, err)
	assert.Nil(t, missing)

	add, err := page.Resolve(ctx, `button:has-text("Add to Cart")`)
	require.NoError(t, err)
	require.NotNil(t, add)
	state, err := add.Inspect(ctx)
	require.NoError(t, err)
	assert.True(t, state.Visible)
	assert.False(t, state.Enabled)

	hidden, err := page.Resolve(ctx, ".hidden")
	require.NoError(t, err)
	state, err = hidden.Inspect(ctx)
	require.NoError(t, err)
	assert.False(t, state.Visible)

	plus, err := page.Resolve(ctx, "button[name='plus']")
	require.NoError(t, err)
	require.NoError(t, plus.Click(ctx, 5*time.Second))
	qty, err := page.Resolve(ctx, "input[name='quantity']")
	require.NoError(t, err)
	v, err := qty.Value(ctx)
	require.NoError(t, err)
	assert.Equal(t, "2", v)

	broken, err := page.Resolve(ctx, "button[name='broken']")
	require.NoError(t, err)
	require.NoError(t, broken.Click(ctx, 5*time.Second))
	logs, err := page.Resolve(ctx, "button[name='logs']")
	require.NoError(t, err)
	require.NoError(t, logs.Click(ctx, 5*time.Second))

	require.Eventually(t, func() bool {
		return runtimeErrs.len() == 1 && consoleErrs.len() == 1
	}, 5*time.Second, 50*time.Millisecond)

	require.NoError(t, page.Close())
	assert.Empty(t, m.List())
}
