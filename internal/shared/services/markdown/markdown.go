// Package markdown renders notification bodies written in Markdown to
// sanitized HTML.
package markdown

import (
	"bytes"
	"fmt"

	"github.com/microcosm-cc/bluemonday"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
	"github.com/yuin/goldmark/renderer/html"
)

type Renderer interface {
	ToHTMLSanitized(markdown string) (string, error)
}

type renderer struct {
	md     goldmark.Markdown
	policy *bluemonday.Policy
}

// NewRenderer returns a renderer that allows links and basic formatting.
// Tenant names end up in the source, so the output is always sanitized.
func NewRenderer() Renderer {
	md := goldmark.New(
		goldmark.WithExtensions(extension.GFM, extension.Linkify),
		goldmark.WithRendererOptions(
			html.WithHardWraps(),
			html.WithXHTML(),
		),
	)

	policy := bluemonday.UGCPolicy()
	policy.RequireNoFollowOnLinks(false)

	return &renderer{md: md, policy: policy}
}

func (r *renderer) ToHTMLSanitized(markdown string) (string, error) {
	var buf bytes.Buffer
	if err := r.md.Convert([]byte(markdown), &buf); err != nil {
		return "", fmt.Errorf("failed to convert markdown to HTML: %w", err)
	}
	return r.policy.Sanitize(buf.String()), nil
}
