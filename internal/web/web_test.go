package web

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTemplatesRender(t *testing.T) {
	tmpl := Templates()

	var buf bytes.Buffer
	require.NoError(t, tmpl.ExecuteTemplate(&buf, "login.tmpl", map[string]any{
		"RedirectedFrom": "/dashboard/news",
		"Error":          "bad <credentials>",
	}))
	assert.Contains(t, buf.String(), `value="/dashboard/news"`)
	assert.Contains(t, buf.String(), "bad &lt;credentials&gt;")

	buf.Reset()
	require.NoError(t, tmpl.ExecuteTemplate(&buf, "dashboard.tmpl", map[string]any{"CSRFToken": "tok"}))
	assert.Contains(t, buf.String(), `name="csrf_token" value="tok"`)
}
