package report

import (
	"github.com/yuin/goldmark/ast"
	extast "github.com/yuin/goldmark/extension/ast"
)

const (
	tableFontSize   = 8.0
	tableLineHeight = 4.0
	minColumnWidth  = 14.0
	maxCellLines    = 10
)

func (w *pdfWriter) table(node *extast.Table) {
	var rows [][]string
	for child := node.FirstChild(); child != nil; child = child.NextSibling() {
		switch row := child.(type) {
		case *extast.TableHeader:
			rows = append(rows, w.cells(row))
		case *extast.TableRow:
			rows = append(rows, w.cells(row))
		}
	}
	if len(rows) == 0 || len(rows[0]) == 0 {
		return
	}

	widths := w.columnWidths(rows)
	w.doc.Ln(2)

	for i, row := range rows {
		header := i == 0
		style := ""
		if header {
			style = "B"
		}
		w.doc.SetFont(bodyFont, style, tableFontSize)

		wrapped := make([][]string, len(widths))
		lines := 1
		for j := range widths {
			cell := ""
			if j < len(row) {
				cell = row[j]
			}
			wrapped[j] = w.doc.SplitText(w.translate(cell), widths[j]-2)
			if len(wrapped[j]) > maxCellLines {
				wrapped[j] = append(wrapped[j][:maxCellLines-1], "...")
			}
			if len(wrapped[j]) > lines {
				lines = len(wrapped[j])
			}
		}

		height := float64(lines)*tableLineHeight + 2
		_, pageHeight := w.doc.GetPageSize()
		_, _, _, bottom := w.doc.GetMargins()
		if w.doc.GetY()+height > pageHeight-bottom {
			w.doc.AddPage()
			w.doc.SetFont(bodyFont, style, tableFontSize)
		}

		x, y := pageMargin, w.doc.GetY()
		for j, width := range widths {
			fill := "D"
			if header {
				w.doc.SetFillColor(228, 233, 240)
				fill = "FD"
			}
			w.doc.Rect(x, y, width, height, fill)
			for k, line := range wrapped[j] {
				w.doc.SetXY(x+1, y+1+float64(k)*tableLineHeight)
				w.doc.CellFormat(width-2, tableLineHeight, line, "", 0, "L", false, 0, "")
			}
			x += width
		}
		w.doc.SetXY(pageMargin, y+height)
	}

	w.doc.SetFillColor(255, 255, 255)
	w.doc.Ln(4)
	w.applyFont()
}

func (w *pdfWriter) cells(row ast.Node) []string {
	var out []string
	for cell := row.FirstChild(); cell != nil; cell = cell.NextSibling() {
		out = append(out, plainText(string(cell.Text(w.source))))
	}
	return out
}

// columnWidths sizes columns by their widest cell, then scales the set to the content width
func (w *pdfWriter) columnWidths(rows [][]string) []float64 {
	cols := len(rows[0])
	widths := make([]float64, cols)

	w.doc.SetFont(bodyFont, "B", tableFontSize)
	for _, row := range rows {
		for j := 0; j < cols && j < len(row); j++ {
			if width := w.doc.GetStringWidth(w.translate(row[j])) + 4; width > widths[j] {
				widths[j] = width
			}
		}
	}

	total := 0.0
	for j := range widths {
		if widths[j] < minColumnWidth {
			widths[j] = minColumnWidth
		}
		if widths[j] > contentWidth/2 {
			widths[j] = contentWidth / 2
		}
		total += widths[j]
	}

	scale := contentWidth / total
	if total < contentWidth && scale > 1.4 {
		scale = 1.4
	}
	for j := range widths {
		widths[j] *= scale
	}
	return widths
}
