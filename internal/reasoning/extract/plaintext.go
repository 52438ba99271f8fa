package extract

import (
	"regexp"
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/text"
)

var blankLines = regexp.MustCompile(`\n{3,}`)

// PlainText flattens a markdown reply into display text: emphasis, links and
// headings lose their markup, block boundaries become line breaks.
func PlainText(markdown string) string {
	source := []byte(markdown)
	doc := goldmark.New().Parser().Parse(text.NewReader(source))

	var buf strings.Builder
	_ = ast.Walk(doc, func(n ast.Node, entering bool) (ast.WalkStatus, error) {
		if entering {
			switch node := n.(type) {
			case *ast.Text:
				buf.Write(node.Segment.Value(source))
				switch {
				case node.HardLineBreak():
					buf.WriteByte('\n')
				case node.SoftLineBreak():
					buf.WriteByte(' ')
				}
			case *ast.String:
				buf.Write(node.Value)
			case *ast.CodeBlock, *ast.FencedCodeBlock:
				lines := n.Lines()
				for i := 0; i < lines.Len(); i++ {
					seg := lines.At(i)
					buf.Write(seg.Value(source))
				}
				return ast.WalkSkipChildren, nil
			}
			return ast.WalkContinue, nil
		}

		if n.Type() == ast.TypeBlock && buf.Len() > 0 && !strings.HasSuffix(buf.String(), "\n") {
			buf.WriteByte('\n')
		}
		return ast.WalkContinue, nil
	})

	return strings.TrimSpace(blankLines.ReplaceAllString(buf.String(), "\n\n"))
}
