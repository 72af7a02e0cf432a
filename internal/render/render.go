// Package render turns agent conversation content into sanitized HTML.
// Agent replies arrive as markdown; project files arrive as raw source.
// Both end up in exported transcripts, so everything passes through one
// sanitization policy.
package render

import (
	"bytes"
	"fmt"
	"html"
	"path/filepath"
	"strings"

	"github.com/microcosm-cc/bluemonday"
	"github.com/yuin/goldmark"
	highlighting "github.com/yuin/goldmark-highlighting/v2"
	"github.com/yuin/goldmark/extension"
	"github.com/yuin/goldmark/parser"
	htmlrenderer "github.com/yuin/goldmark/renderer/html"

	"github.com/stitionai/devika-go/internal/store"
)

// Renderer converts markdown agent output to sanitized HTML.
type Renderer struct {
	md        goldmark.Markdown
	sanitizer *bluemonday.Policy
	style     string
}

// Option configures a Renderer.
type Option func(*Renderer)

// WithStyle selects the syntax highlighting style.
func WithStyle(style string) Option {
	return func(r *Renderer) { r.style = style }
}

// WithPolicy overrides the sanitization policy. A nil policy disables
// sanitization entirely; callers embedding output in a page should keep
// the default.
func WithPolicy(policy *bluemonday.Policy) Option {
	return func(r *Renderer) { r.sanitizer = policy }
}

// New creates a renderer. The defaults match what agent replies need:
// GFM tables and strikethrough, fenced code highlighting, hard wraps
// for the line-oriented output agents tend to produce.
func New(opts ...Option) *Renderer {
	r := &Renderer{
		style:     "monokai",
		sanitizer: transcriptPolicy(),
	}
	for _, opt := range opts {
		opt(r)
	}

	r.md = goldmark.New(
		goldmark.WithExtensions(
			extension.GFM,
			highlighting.NewHighlighting(
				highlighting.WithStyle(r.style),
			),
		),
		goldmark.WithParserOptions(
			parser.WithAutoHeadingID(),
		),
		goldmark.WithRendererOptions(
			htmlrenderer.WithHardWraps(),
			htmlrenderer.WithXHTML(),
		),
	)
	return r
}

// transcriptPolicy allows the HTML that markdown rendering and the
// syntax highlighter emit, and nothing an agent could smuggle through a
// reply.
func transcriptPolicy() *bluemonday.Policy {
	p := bluemonday.UGCPolicy()
	p.AllowAttrs("class").Matching(bluemonday.SpaceSeparatedTokens).
		OnElements("code", "pre", "span", "div")
	p.AllowAttrs("style").OnElements("span", "pre")
	p.AllowAttrs("id").Matching(bluemonday.Paragraph).
		OnElements("h1", "h2", "h3", "h4", "h5", "h6")
	return p
}

// Markdown renders one markdown fragment to sanitized HTML.
func (r *Renderer) Markdown(src string) (string, error) {
	var buf bytes.Buffer
	if err := r.md.Convert([]byte(src), &buf); err != nil {
		return "", fmt.Errorf("render markdown: %w", err)
	}
	out := buf.String()
	if r.sanitizer != nil {
		out = r.sanitizer.Sanitize(out)
	}
	return out, nil
}

// SafeMarkdown renders markdown, falling back to an escaped <pre> block
// when the source does not parse. Agent output is untrusted input; a
// broken reply must not break the transcript.
func (r *Renderer) SafeMarkdown(src string) string {
	out, err := r.Markdown(src)
	if err != nil {
		return "<pre>" + html.EscapeString(src) + "</pre>"
	}
	return out
}

// Code renders a source file as a highlighted block, inferring the
// fence language from the filename.
func (r *Renderer) Code(filename, code string) string {
	lang := languageFor(filename)
	fenced := "```" + lang + "\n" + strings.TrimRight(code, "\n") + "\n```\n"
	return r.SafeMarkdown(fenced)
}

// languageFor maps a filename to a fence language tag. Unknown
// extensions render unhighlighted, which is fine.
func languageFor(filename string) string {
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".go":
		return "go"
	case ".py":
		return "python"
	case ".js", ".mjs":
		return "javascript"
	case ".ts":
		return "typescript"
	case ".rs":
		return "rust"
	case ".rb":
		return "ruby"
	case ".java":
		return "java"
	case ".c", ".h":
		return "c"
	case ".cpp", ".cc", ".hpp":
		return "cpp"
	case ".sh":
		return "bash"
	case ".html":
		return "html"
	case ".css":
		return "css"
	case ".json":
		return "json"
	case ".yaml", ".yml":
		return "yaml"
	case ".md":
		return "markdown"
	case ".sql":
		return "sql"
	default:
		return ""
	}
}

// Transcript renders a whole conversation as a standalone HTML page.
// User prompts render as escaped text; agent replies render as
// markdown.
func (r *Renderer) Transcript(project string, msgs []store.Message) string {
	var b strings.Builder
	b.WriteString("<!DOCTYPE html>\n<html>\n<head>\n")
	b.WriteString("<meta charset=\"utf-8\"/>\n")
	b.WriteString("<title>" + html.EscapeString(project) + "</title>\n")
	b.WriteString("</head>\n<body>\n")
	b.WriteString("<h1>" + html.EscapeString(project) + "</h1>\n")

	for _, msg := range msgs {
		if msg.FromDevika {
			b.WriteString("<div class=\"agent-message\">\n")
			b.WriteString(r.SafeMarkdown(msg.Message))
		} else {
			b.WriteString("<div class=\"user-message\">\n")
			b.WriteString("<p>" + html.EscapeString(msg.Message) + "</p>\n")
		}
		if msg.Timestamp != "" {
			b.WriteString("<small>" + html.EscapeString(msg.Timestamp) + "</small>\n")
		}
		b.WriteString("</div>\n")
	}

	b.WriteString("</body>\n</html>\n")
	return b.String()
}
