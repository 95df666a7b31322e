package templates_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/mailroom/pkg/templates"
)

func TestRegistry(t *testing.T) {
	t.Parallel()

	newRenderer := func(t *testing.T) templates.Renderer {
		t.Helper()
		r, err := templates.NewHTMLTemplate("<p>{{.name}}</p>", "{{.name}}", "name")
		require.NoError(t, err)
		return r
	}

	t.Run("register and get", func(t *testing.T) {
		t.Parallel()

		reg := templates.NewRegistry()
		require.NoError(t, reg.Register("greeting", newRenderer(t)))

		r, err := reg.Get("greeting")
		require.NoError(t, err)
		assert.NotNil(t, r)
		assert.True(t, reg.Has("greeting"))
	})

	t.Run("unknown id fails fast", func(t *testing.T) {
		t.Parallel()

		reg := templates.NewRegistry()
		_, err := reg.Get("nope")
		assert.ErrorIs(t, err, templates.ErrUnknownTemplate)
		assert.False(t, reg.Has("nope"))
	})

	t.Run("duplicate id rejected", func(t *testing.T) {
		t.Parallel()

		reg := templates.NewRegistry()
		require.NoError(t, reg.Register("x", newRenderer(t)))
		err := reg.Register("x", newRenderer(t))
		assert.ErrorIs(t, err, templates.ErrDuplicateTemplate)
	})

	t.Run("empty id rejected", func(t *testing.T) {
		t.Parallel()

		reg := templates.NewRegistry()
		assert.ErrorIs(t, reg.Register("", newRenderer(t)), templates.ErrTemplateIDRequired)
	})

	t.Run("nil renderer rejected", func(t *testing.T) {
		t.Parallel()

		reg := templates.NewRegistry()
		assert.ErrorIs(t, reg.Register("x", nil), templates.ErrRendererRequired)
	})

	t.Run("ids sorted", func(t *testing.T) {
		t.Parallel()

		reg := templates.NewRegistry()
		require.NoError(t, reg.Register("b", newRenderer(t)))
		require.NoError(t, reg.Register("a", newRenderer(t)))
		assert.Equal(t, []string{"a", "b"}, reg.IDs())
	})
}

func TestHTMLTemplate(t *testing.T) {
	t.Parallel()

	t.Run("render both bodies", func(t *testing.T) {
		t.Parallel()

		tpl, err := templates.NewHTMLTemplate(
			"<h1>Hi {{.name}}</h1>", "Hi {{.name}}", "name",
		)
		require.NoError(t, err)

		html, text, err := tpl.Render(map[string]any{"name": "Ali"})
		require.NoError(t, err)
		assert.Equal(t, "<h1>Hi Ali</h1>", html)
		assert.Equal(t, "Hi Ali", text)
	})

	t.Run("missing required field", func(t *testing.T) {
		t.Parallel()

		tpl, err := templates.NewHTMLTemplate("{{.name}}", "{{.name}}", "name")
		require.NoError(t, err)

		err = tpl.Validate(map[string]any{})
		assert.ErrorIs(t, err, templates.ErrInvalidData)

		_, _, err = tpl.Render(map[string]any{})
		assert.ErrorIs(t, err, templates.ErrInvalidData)
	})

	t.Run("empty string field rejected", func(t *testing.T) {
		t.Parallel()

		tpl, err := templates.NewHTMLTemplate("{{.name}}", "{{.name}}", "name")
		require.NoError(t, err)

		assert.ErrorIs(t, tpl.Validate(map[string]any{"name": "  "}), templates.ErrInvalidData)
	})

	t.Run("html is escaped", func(t *testing.T) {
		t.Parallel()

		tpl, err := templates.NewHTMLTemplate("<p>{{.name}}</p>", "{{.name}}", "name")
		require.NoError(t, err)

		html, _, err := tpl.Render(map[string]any{"name": "<script>"})
		require.NoError(t, err)
		assert.NotContains(t, html, "<script>")
	})

	t.Run("invalid template source", func(t *testing.T) {
		t.Parallel()

		_, err := templates.NewHTMLTemplate("{{.name", "ok")
		assert.ErrorIs(t, err, templates.ErrRenderFailed)
	})
}

func TestDefaultRegistry(t *testing.T) {
	t.Parallel()

	reg, err := templates.DefaultRegistry()
	require.NoError(t, err)
	assert.Equal(t, []string{"notification", "password-reset", "welcome"}, reg.IDs())

	t.Run("welcome renders", func(t *testing.T) {
		t.Parallel()

		r, err := reg.Get("welcome")
		require.NoError(t, err)

		html, text, err := r.Render(map[string]any{
			"userName":     "Ali",
			"dashboardUrl": "https://x/dash",
		})
		require.NoError(t, err)
		assert.Contains(t, html, "Welcome, Ali!")
		assert.Contains(t, text, "https://x/dash")
	})

	t.Run("notification optional action url", func(t *testing.T) {
		t.Parallel()

		r, err := reg.Get("notification")
		require.NoError(t, err)

		html, _, err := r.Render(map[string]any{
			"title":   "Heads up",
			"message": "Something happened",
		})
		require.NoError(t, err)
		assert.NotContains(t, html, "View details")

		html, _, err = r.Render(map[string]any{
			"title":     "Heads up",
			"message":   "Something happened",
			"actionUrl": "https://x/details",
		})
		require.NoError(t, err)
		assert.Contains(t, html, "https://x/details")
	})
}
