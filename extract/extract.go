// Package extract turns downloaded files into plain text for the model.
//
// The format is chosen by file extension: .txt, .csv (rendered as a markdown
// table), .html/.htm (scripts and styles stripped) and .pdf. Anything else is
// decoded as text. Byte order marks and UTF-16 input are honored; invalid
// UTF-8 sequences are dropped.
package extract

import (
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"path"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/ledongthuc/pdf"
	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"
)

// ErrEmpty is returned when a file yields no text.
var ErrEmpty = errors.New("extract: no text content")

// Text extracts the text of data, using filename to select the format.
func Text(data []byte, filename string) (string, error) {
	var (
		out string
		err error
	)
	switch Ext(filename) {
	case ".pdf":
		out, err = PDF(data)
	case ".csv":
		out, err = CSV(data)
	case ".html", ".htm":
		out, err = HTML(data)
	default:
		out = Decode(data)
	}
	if err != nil {
		return "", fmt.Errorf("extract %s: %w", filename, err)
	}
	if strings.TrimSpace(out) == "" {
		return "", ErrEmpty
	}
	return out, nil
}

// Ext returns the lower-cased extension of a file name or URL path.
func Ext(filename string) string {
	if i := strings.IndexAny(filename, "?#"); i >= 0 {
		filename = filename[:i]
	}
	return strings.ToLower(path.Ext(filename))
}

// Decode converts data to a UTF-8 string. A UTF-8 or UTF-16 byte order mark
// selects the encoding; without one the input is read as UTF-8.
func Decode(data []byte) string {
	dec := unicode.BOMOverride(unicode.UTF8.NewDecoder())
	out, _, err := transform.Bytes(dec, data)
	if err != nil {
		out = data
	}
	return strings.ToValidUTF8(string(out), "")
}

// CSV renders comma separated data as a markdown table. The first record is
// the header; short rows are padded.
func CSV(data []byte) (string, error) {
	r := csv.NewReader(strings.NewReader(Decode(data)))
	r.FieldsPerRecord = -1
	r.LazyQuotes = true
	records, err := r.ReadAll()
	if err != nil {
		return "", err
	}
	if len(records) == 0 {
		return "", nil
	}
	width := 0
	for _, rec := range records {
		width = max(width, len(rec))
	}

	var b strings.Builder
	writeRow := func(cells []string) {
		b.WriteString("|")
		for i := 0; i < width; i++ {
			cell := ""
			if i < len(cells) {
				cell = strings.ReplaceAll(strings.TrimSpace(cells[i]), "|", `\|`)
				cell = strings.ReplaceAll(cell, "\n", " ")
			}
			b.WriteString(" " + cell + " |")
		}
		b.WriteString("\n")
	}
	writeRow(records[0])
	b.WriteString("|")
	for i := 0; i < width; i++ {
		b.WriteString(" --- |")
	}
	b.WriteString("\n")
	for _, rec := range records[1:] {
		writeRow(rec)
	}
	return strings.TrimSuffix(b.String(), "\n"), nil
}

// HTML returns the visible text of an HTML document, one trimmed text node
// per line, with script and style elements removed.
func HTML(data []byte) (string, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(Decode(data)))
	if err != nil {
		return "", err
	}
	doc.Find("script, style, noscript").Remove()

	var lines []string
	var walk func(*goquery.Selection)
	walk = func(sel *goquery.Selection) {
		sel.Contents().Each(func(_ int, s *goquery.Selection) {
			if goquery.NodeName(s) == "#text" {
				if t := strings.TrimSpace(s.Text()); t != "" {
					lines = append(lines, t)
				}
				return
			}
			walk(s)
		})
	}
	walk(doc.Selection)
	return strings.Join(lines, "\n"), nil
}

// PDF returns the plain text of every page, pages separated by newlines.
func PDF(data []byte) (text string, err error) {
	// The PDF parser panics on some malformed inputs.
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("malformed pdf: %v", r)
		}
	}()
	r, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", err
	}
	pages := make([]string, 0, r.NumPage())
	for i := 1; i <= r.NumPage(); i++ {
		p := r.Page(i)
		if p.V.IsNull() {
			pages = append(pages, "")
			continue
		}
		content, err := p.GetPlainText(nil)
		if err != nil {
			return "", fmt.Errorf("page %d: %w", i, err)
		}
		pages = append(pages, content)
	}
	return strings.Join(pages, "\n"), nil
}

// Reader extracts text from r; see Text.
func Reader(r io.Reader, filename string) (string, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return "", err
	}
	return Text(data, filename)
}
