package layout

import (
	"fmt"
	"html"
	"io"
	"strings"
)

// RenderSVG writes d as a standalone SVG document
func RenderSVG(w io.Writer, d Diagram) error {
	var svg strings.Builder

	svg.WriteString(`<?xml version="1.0" encoding="UTF-8"?>`)
	svg.WriteString(fmt.Sprintf(`<svg xmlns="http://www.w3.org/2000/svg" width="%s" height="%s" viewBox="0 0 %s %s">`,
		num(d.Width), num(d.Height), num(d.Width), num(d.Height)))
	svg.WriteString(`<defs><style>`)
	svg.WriteString(`.card { fill: #ffffff; stroke: #d1d5db; stroke-width: 2; }`)
	svg.WriteString(`.provider { stroke: #3b82f6; }`)
	svg.WriteString(`.selected { stroke: #60a5fa; }`)
	svg.WriteString(`.resource_group { fill: #f9fafb; }`)
	svg.WriteString(`.connector { stroke: #0078d4; stroke-width: 2; fill: none; }`)
	svg.WriteString(`.title { font-family: Arial, sans-serif; font-size: 14px; font-weight: bold; fill: #1f2937; }`)
	svg.WriteString(`.subtitle { font-family: Arial, sans-serif; font-size: 11px; fill: #6b7280; }`)
	svg.WriteString(`</style></defs>`)

	// connectors first so cards draw over their ends
	for i, e := range d.Edges {
		svg.WriteString(fmt.Sprintf(`<path id="%s" class="connector" d="%s"/>`, elementID("edge", i, e.ID), e.Path.D()))
	}

	for i, c := range d.Cards {
		class := "card " + string(c.Kind)
		if c.Selected {
			class += " selected"
		}
		b := c.Bounds
		svg.WriteString(fmt.Sprintf(`<g id="%s">`, elementID("card", i, c.ID)))
		svg.WriteString(fmt.Sprintf(`<rect x="%s" y="%s" width="%s" height="%s" rx="8" class="%s"/>`,
			num(b.X), num(b.Y), num(b.W), num(b.H), class))
		svg.WriteString(fmt.Sprintf(`<text x="%s" y="%s" class="title">%s</text>`,
			num(b.X+16), num(b.Y+28), text(truncate(xmlSafe(c.Title), 32))))
		if c.Subtitle != "" {
			svg.WriteString(fmt.Sprintf(`<text x="%s" y="%s" class="subtitle">%s</text>`,
				num(b.X+16), num(b.Y+48), text(truncate(xmlSafe(c.Subtitle), 40))))
		}
		svg.WriteString(`</g>`)
	}

	svg.WriteString(`</svg>`)

	_, err := io.WriteString(w, svg.String())
	return err
}

// elementID makes an id attribute unique within the document; project ids
// are not guaranteed to be
func elementID(kind string, i int, id string) string {
	return text(fmt.Sprintf("%s-%d-%s", kind, i, xmlSafe(id)))
}

func text(s string) string {
	return html.EscapeString(s)
}

// xmlSafe replaces invalid UTF-8 and drops the characters XML 1.0 does not
// allow
func xmlSafe(s string) string {
	s = strings.ToValidUTF8(s, "\uFFFD")
	return strings.Map(func(r rune) rune {
		switch {
		case r == '\t' || r == '\n' || r == '\r':
			return r
		case r < 0x20, r == 0xFFFE, r == 0xFFFF:
			return -1
		}
		return r
	}, s)
}

func truncate(s string, max int) string {
	r := []rune(s)
	if len(r) <= max {
		return s
	}
	return string(r[:max-1]) + "…"
}
