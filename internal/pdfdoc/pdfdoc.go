// Package pdfdoc reads PDF structure through MuPDF (go-fitz): page count,
// bookmark outline and per-page text.
package pdfdoc

import (
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/gen2brain/go-fitz"

	"github.com/YunYun501/Lazy-Learn-V2/internal/domain"
)

// Document is an open PDF. MuPDF contexts are not safe for concurrent use,
// so every call is serialized.
type Document struct {
	mu  sync.Mutex
	doc *fitz.Document
}

// Open opens a PDF file.
func Open(path string) (*Document, error) {
	doc, err := fitz.New(path)
	if err != nil {
		return nil, fmt.Errorf("open pdf %s: %w", path, err)
	}
	return &Document{doc: doc}, nil
}

// OpenBytes opens a PDF held in memory.
func OpenBytes(data []byte) (*Document, error) {
	doc, err := fitz.NewFromMemory(data)
	if err != nil {
		return nil, fmt.Errorf("open pdf from memory: %w", err)
	}
	return &Document{doc: doc}, nil
}

// NumPages returns the page count.
func (d *Document) NumPages() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.doc.NumPage()
}

// Outline returns the bookmark tree flattened in document order, with
// 1-based page numbers. Entries that do not point into the document are
// skipped.
func (d *Document) Outline() ([]domain.OutlineEntry, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	toc, err := d.doc.ToC()
	if errors.Is(err, fitz.ErrLoadOutline) {
		// no outline at all
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read outline: %w", err)
	}

	pages := d.doc.NumPage()
	entries := make([]domain.OutlineEntry, 0, len(toc))
	for _, item := range toc {
		page := item.Page + 1
		title := strings.TrimSpace(item.Title)
		if page < 1 || page > pages || title == "" {
			continue
		}
		entries = append(entries, domain.OutlineEntry{Level: item.Level, Title: title, Page: page})
	}
	return entries, nil
}

// PageText returns the plain text of a 1-based page.
func (d *Document) PageText(page int) (string, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if page < 1 || page > d.doc.NumPage() {
		return "", fmt.Errorf("page %d out of range 1-%d", page, d.doc.NumPage())
	}
	text, err := d.doc.Text(page - 1)
	if err != nil {
		return "", fmt.Errorf("extract text of page %d: %w", page, err)
	}
	return text, nil
}

// LeadingText concatenates the text of the first maxPages pages, stopping
// at maxChars characters.
func (d *Document) LeadingText(maxPages, maxChars int) (string, error) {
	n := d.NumPages()
	if maxPages > n {
		maxPages = n
	}

	var b strings.Builder
	for page := 1; page <= maxPages; page++ {
		text, err := d.PageText(page)
		if err != nil {
			return "", err
		}
		fmt.Fprintf(&b, "--- Page %d ---\n%s\n", page, text)
		if maxChars > 0 && b.Len() >= maxChars {
			break
		}
	}

	out := b.String()
	if maxChars > 0 && len(out) > maxChars {
		out = strings.ToValidUTF8(out[:maxChars], "")
	}
	return out, nil
}

// Close releases MuPDF resources.
func (d *Document) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.doc.Close()
}
