// Package pdftest builds small PDF files for tests.
package pdftest

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

// Bookmark is an outline entry pointing at a 1-based page.
type Bookmark struct {
	Title    string
	Page     int
	Children []Bookmark
}

type object struct {
	num  int
	body string
}

// Build returns a PDF with one page per entry of pages, each showing its
// text, and the given bookmark tree.
func Build(pages []string, bookmarks []Bookmark) []byte {
	const (
		catalogNum  = 1
		pagesNum    = 2
		fontNum     = 3
		outlinesNum = 4
	)
	next := 5
	pageNums := make([]int, len(pages))
	contentNums := make([]int, len(pages))
	for i := range pages {
		pageNums[i] = next
		contentNums[i] = next + 1
		next += 2
	}

	var objects []object
	kids := make([]string, len(pages))
	for i, text := range pages {
		kids[i] = fmt.Sprintf("%d 0 R", pageNums[i])
		stream := fmt.Sprintf("BT /F1 12 Tf 72 720 Td (%s) Tj ET", escape(text))
		objects = append(objects,
			object{pageNums[i], fmt.Sprintf("<< /Type /Page /Parent %d 0 R /MediaBox [0 0 612 792] "+
				"/Resources << /Font << /F1 %d 0 R >> >> /Contents %d 0 R >>", pagesNum, fontNum, contentNums[i])},
			object{contentNums[i], fmt.Sprintf("<< /Length %d >>\nstream\n%s\nendstream", len(stream), stream)},
		)
	}

	first, last, count := outlineObjects(bookmarks, outlinesNum, pageNums, &next, &objects)
	outlines := fmt.Sprintf("<< /Type /Outlines /Count %d >>", count)
	if first > 0 {
		outlines = fmt.Sprintf("<< /Type /Outlines /First %d 0 R /Last %d 0 R /Count %d >>", first, last, count)
	}

	objects = append(objects,
		object{catalogNum, fmt.Sprintf("<< /Type /Catalog /Pages %d 0 R /Outlines %d 0 R >>", pagesNum, outlinesNum)},
		object{pagesNum, fmt.Sprintf("<< /Type /Pages /Kids [%s] /Count %d >>", strings.Join(kids, " "), len(pages))},
		object{fontNum, "<< /Type /Font /Subtype /Type1 /BaseFont /Helvetica >>"},
		object{outlinesNum, outlines},
	)

	byNum := make(map[int]string, len(objects))
	for _, o := range objects {
		byNum[o.num] = o.body
	}

	var buf bytes.Buffer
	buf.WriteString("%PDF-1.4\n")
	offsets := make([]int, next)
	for num := 1; num < next; num++ {
		offsets[num] = buf.Len()
		fmt.Fprintf(&buf, "%d 0 obj\n%s\nendobj\n", num, byNum[num])
	}
	xref := buf.Len()
	fmt.Fprintf(&buf, "xref\n0 %d\n0000000000 65535 f \n", next)
	for num := 1; num < next; num++ {
		fmt.Fprintf(&buf, "%010d 00000 n \n", offsets[num])
	}
	fmt.Fprintf(&buf, "trailer\n<< /Size %d /Root %d 0 R >>\nstartxref\n%d\n%%%%EOF\n", next, catalogNum, xref)
	return buf.Bytes()
}

func outlineObjects(items []Bookmark, parent int, pageNums []int, next *int, objects *[]object) (first, last, count int) {
	if len(items) == 0 {
		return 0, 0, 0
	}
	nums := make([]int, len(items))
	for i := range items {
		nums[i] = *next
		*next++
	}
	for i, item := range items {
		body := fmt.Sprintf("<< /Title (%s) /Parent %d 0 R /Dest [%d 0 R /Fit]",
			escape(item.Title), parent, pageNums[item.Page-1])
		if i > 0 {
			body += fmt.Sprintf(" /Prev %d 0 R", nums[i-1])
		}
		if i < len(items)-1 {
			body += fmt.Sprintf(" /Next %d 0 R", nums[i+1])
		}
		cf, cl, cc := outlineObjects(item.Children, nums[i], pageNums, next, objects)
		if cf > 0 {
			body += fmt.Sprintf(" /First %d 0 R /Last %d 0 R /Count %d", cf, cl, cc)
		}
		body += " >>"
		*objects = append(*objects, object{nums[i], body})
		count += 1 + cc
	}
	return nums[0], nums[len(nums)-1], count
}

func escape(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `(`, `\(`, `)`, `\)`)
	return r.Replace(s)
}

// WriteFile writes a built PDF into the test's temp dir and returns its path.
func WriteFile(t testing.TB, name string, pages []string, bookmarks []Bookmark) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, Build(pages, bookmarks), 0o644); err != nil {
		t.Fatalf("write pdf: %v", err)
	}
	return path
}
