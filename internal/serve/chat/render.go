package chat

import (
	"bytes"
	"html"
	"strings"
	"sync"

	"github.com/alecthomas/chroma/v2"
	chromahtml "github.com/alecthomas/chroma/v2/formatters/html"
	"github.com/alecthomas/chroma/v2/lexers"
	"github.com/alecthomas/chroma/v2/styles"
	"github.com/samsaffron/gemchat/internal/conversation"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/extension"
	"github.com/yuin/goldmark/renderer"
	"github.com/yuin/goldmark/util"
)

// Renderer turns model markdown into HTML for the browser client.
// Raw HTML in the source is omitted, never passed through.
type Renderer struct {
	md goldmark.Markdown
}

func NewRenderer() *Renderer {
	md := goldmark.New(
		goldmark.WithExtensions(extension.GFM),
		goldmark.WithRendererOptions(
			renderer.WithNodeRenderers(util.Prioritized(&codeBlockRenderer{}, 100)),
		),
	)
	return &Renderer{md: md}
}

// Render returns HTML for source. On failure the text is returned escaped.
func (r *Renderer) Render(source string) string {
	if source == "" {
		return ""
	}
	var buf bytes.Buffer
	if err := r.md.Convert([]byte(source), &buf); err != nil {
		return "<p>" + html.EscapeString(source) + "</p>"
	}
	return buf.String()
}

// htmlCache keeps the last rendering of each settled model entry, so every
// client shares one render per reply.
type htmlCache struct {
	render func(string) string

	mu      sync.Mutex
	entries map[string]cachedHTML
}

type cachedHTML struct {
	text string
	html string
}

func newHTMLCache(render func(string) string) *htmlCache {
	return &htmlCache{render: render, entries: make(map[string]cachedHTML)}
}

// fill sets e.HTML for model entries that are neither streaming nor failed.
func (c *htmlCache) fill(e *WireEntry) {
	if e.Role != string(conversation.RoleModel) || e.Streaming || e.Failed || e.HTML != "" {
		return
	}
	c.mu.Lock()
	hit, ok := c.entries[e.ID]
	c.mu.Unlock()
	if ok && hit.text == e.Text {
		e.HTML = hit.html
		return
	}

	out := c.render(e.Text)
	c.mu.Lock()
	c.entries[e.ID] = cachedHTML{text: e.Text, html: out}
	c.mu.Unlock()
	e.HTML = out
}

func (c *htmlCache) reset() {
	c.mu.Lock()
	c.entries = make(map[string]cachedHTML)
	c.mu.Unlock()
}

// codeBlockRenderer highlights fenced code with chroma.
type codeBlockRenderer struct{}

func (c *codeBlockRenderer) RegisterFuncs(reg renderer.NodeRendererFuncRegisterer) {
	reg.Register(ast.KindFencedCodeBlock, c.renderFencedCodeBlock)
}

var (
	codeFormatter = chromahtml.New(chromahtml.WithClasses(false), chromahtml.TabWidth(4))
	codeStyle     = sync.OnceValue(func() *chroma.Style {
		style := styles.Get("monokai")
		if style == nil {
			style = styles.Fallback
		}
		return style
	})
)

func (c *codeBlockRenderer) renderFencedCodeBlock(w util.BufWriter, source []byte, node ast.Node, entering bool) (ast.WalkStatus, error) {
	if !entering {
		return ast.WalkContinue, nil
	}
	n := node.(*ast.FencedCodeBlock)

	var code strings.Builder
	lines := n.Lines()
	for i := 0; i < lines.Len(); i++ {
		line := lines.At(i)
		code.Write(line.Value(source))
	}

	lang := string(n.Language(source))
	var lexer chroma.Lexer
	if lang != "" {
		lexer = lexers.Get(lang)
	}
	if lexer == nil {
		lexer = lexers.Analyse(code.String())
	}
	if lexer == nil {
		lexer = lexers.Fallback
	}
	lexer = chroma.Coalesce(lexer)

	iterator, err := lexer.Tokenise(nil, code.String())
	if err == nil {
		var out bytes.Buffer
		if err = codeFormatter.Format(&out, codeStyle(), iterator); err == nil {
			_, _ = w.Write(out.Bytes())
			return ast.WalkSkipChildren, nil
		}
	}

	_, _ = w.WriteString("<pre><code>")
	_, _ = w.WriteString(html.EscapeString(code.String()))
	_, _ = w.WriteString("</code></pre>\n")
	return ast.WalkSkipChildren, nil
}
