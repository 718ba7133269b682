package report

import (
	"strconv"

	"github.com/go-pdf/fpdf"
	"github.com/yuin/goldmark/ast"
	extast "github.com/yuin/goldmark/extension/ast"
	"github.com/yuin/goldmark/text"
)

const (
	bodyFont   = "Helvetica"
	monoFont   = "Courier"
	bodySize   = 10.0
	lineHeight = 5.0
	pageMargin = 15.0
	// A4 width minus both margins
	contentWidth = 210.0 - 2*pageMargin
)

var headingSizes = map[int]float64{1: 16, 2: 13, 3: 11.5}

// pdfWriter walks the goldmark AST and writes it with fpdf
type pdfWriter struct {
	doc       *fpdf.Fpdf
	source    []byte
	translate func(string) string
	size      float64
	bold      bool
	italic    bool
	link      string
	lists     []*listState
	quoted    bool
}

type listState struct {
	ordered bool
	next    int
}

func (w *pdfWriter) render(root ast.Node) error {
	return ast.Walk(root, w.visit)
}

func (w *pdfWriter) applyFont() {
	style := ""
	if w.bold {
		style += "B"
	}
	if w.italic {
		style += "I"
	}
	if w.link != "" {
		style += "U"
	}
	w.doc.SetFont(bodyFont, style, w.size)
}

func (w *pdfWriter) write(s string) {
	if w.link != "" {
		w.doc.SetTextColor(20, 80, 160)
		w.doc.WriteLinkString(lineHeight, w.translate(s), w.link)
		w.doc.SetTextColor(0, 0, 0)
		return
	}
	w.doc.Write(lineHeight, w.translate(s))
}

func (w *pdfWriter) visit(n ast.Node, entering bool) (ast.WalkStatus, error) {
	switch node := n.(type) {
	case *ast.Heading:
		if entering {
			w.doc.Ln(4)
			w.size = headingSizes[node.Level]
			if w.size == 0 {
				w.size = 10.5
			}
			w.bold = true
		} else {
			w.size, w.bold = bodySize, false
			w.doc.Ln(lineHeight + 2)
		}
		w.applyFont()

	case *ast.Paragraph:
		if !entering && len(w.lists) == 0 {
			w.doc.Ln(lineHeight + 2)
		}

	case *ast.TextBlock:
		// tight list items

	case *ast.Text:
		if entering {
			w.write(string(node.Segment.Value(w.source)))
			if node.SoftLineBreak() {
				w.write(" ")
			}
			if node.HardLineBreak() {
				w.doc.Ln(lineHeight)
			}
		}

	case *ast.String:
		if entering {
			w.write(string(node.Value))
		}

	case *ast.Emphasis:
		if node.Level == 2 {
			w.bold = entering
		} else {
			w.italic = entering
		}
		w.applyFont()

	case *extast.Strikethrough:
		// fpdf has no strike style; keep the text

	case *ast.Link:
		if entering {
			w.link = string(node.Destination)
		} else {
			w.link = ""
		}
		w.applyFont()

	case *ast.AutoLink:
		if entering {
			w.link = string(node.URL(w.source))
			w.applyFont()
			w.write(string(node.Label(w.source)))
			w.link = ""
			w.applyFont()
		}
		return ast.WalkSkipChildren, nil

	case *ast.CodeSpan:
		if entering {
			w.doc.SetFont(monoFont, "", w.size-1)
			w.write(string(node.Text(w.source)))
			w.applyFont()
		}
		return ast.WalkSkipChildren, nil

	case *ast.FencedCodeBlock:
		if entering {
			w.codeBlock(node.Lines())
		}
		return ast.WalkSkipChildren, nil

	case *ast.CodeBlock:
		if entering {
			w.codeBlock(node.Lines())
		}
		return ast.WalkSkipChildren, nil

	case *ast.Blockquote:
		w.quoted = entering
		if entering {
			w.doc.SetLeftMargin(pageMargin + 6)
			w.doc.SetX(pageMargin + 6)
			w.italic = true
		} else {
			w.doc.SetLeftMargin(pageMargin)
			w.italic = false
		}
		w.applyFont()

	case *ast.List:
		if entering {
			w.lists = append(w.lists, &listState{ordered: node.IsOrdered(), next: node.Start})
		} else {
			w.lists = w.lists[:len(w.lists)-1]
			w.doc.SetLeftMargin(pageMargin + float64(len(w.lists))*6)
			if len(w.lists) == 0 {
				w.doc.Ln(2)
			}
		}

	case *ast.ListItem:
		if entering {
			w.listItem()
		} else {
			w.doc.Ln(lineHeight)
		}

	case *ast.ThematicBreak:
		if entering {
			w.doc.Ln(2)
			y := w.doc.GetY()
			w.doc.SetDrawColor(180, 180, 180)
			w.doc.Line(pageMargin, y, pageMargin+contentWidth, y)
			w.doc.SetDrawColor(0, 0, 0)
			w.doc.Ln(4)
		}

	case *extast.Table:
		if entering {
			w.table(node)
		}
		return ast.WalkSkipChildren, nil
	}

	return ast.WalkContinue, nil
}

func (w *pdfWriter) listItem() {
	depth := len(w.lists)
	if depth == 0 {
		return
	}
	state := w.lists[depth-1]

	indent := pageMargin + float64(depth-1)*6
	w.doc.SetLeftMargin(indent)
	w.doc.SetX(indent)

	marker := "- "
	if state.ordered {
		marker = strconv.Itoa(state.next) + ". "
		state.next++
	}
	w.doc.Write(lineHeight, marker)
	w.doc.SetLeftMargin(indent + w.doc.GetStringWidth(marker))
}

func (w *pdfWriter) codeBlock(lines *text.Segments) {
	w.doc.Ln(1)
	w.doc.SetFont(monoFont, "", 8.5)
	w.doc.SetFillColor(244, 244, 244)
	for i := 0; i < lines.Len(); i++ {
		seg := lines.At(i)
		line := string(seg.Value(w.source))
		for len(line) > 0 && (line[len(line)-1] == '\n' || line[len(line)-1] == '\r') {
			line = line[:len(line)-1]
		}
		w.doc.CellFormat(contentWidth, 4.2, w.translate(line), "", 1, "L", true, 0, "")
	}
	w.doc.SetFillColor(255, 255, 255)
	w.applyFont()
	w.doc.Ln(3)
}
