package ingest

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/ledongthuc/pdf"
	"github.com/nguyenthenguyen/docx"
)

var (
	// ErrUnsupported marks file types the extractor cannot handle.
	ErrUnsupported = errors.New("unsupported document type")
	// ErrNoText marks documents that parsed fine but contain nothing
	// indexable, e.g. a scanned PDF with no text layer.
	ErrNoText = errors.New("document contains no extractable text")
)

// ExtractText pulls plain text from a document on disk. The doc type
// is taken from the file extension.
func ExtractText(path string) (string, error) {
	ext := strings.ToLower(filepath.Ext(path))
	switch ext {
	case ".pdf":
		return extractPDF(path)
	case ".docx":
		return extractDOCX(path)
	case ".txt", ".md":
		return extractPlain(path)
	default:
		return "", fmt.Errorf("%w: %s", ErrUnsupported, ext)
	}
}

func extractPDF(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	stat, err := f.Stat()
	if err != nil {
		return "", err
	}

	reader, err := pdf.NewReader(f, stat.Size())
	if err != nil {
		return "", fmt.Errorf("parsing pdf: %w", err)
	}

	var sb strings.Builder
	numPages := reader.NumPage()
	for i := 1; i <= numPages; i++ {
		page := reader.Page(i)
		if page.V.IsNull() {
			continue
		}
		pageText, err := page.GetPlainText(nil)
		if err != nil {
			// A single broken page should not sink the document.
			continue
		}
		sb.WriteString(pageText)
		sb.WriteString("\n")
	}

	return cleanText(sb.String())
}

func extractDOCX(path string) (string, error) {
	r, err := docx.ReadDocxFile(path)
	if err != nil {
		return "", fmt.Errorf("parsing docx: %w", err)
	}
	defer r.Close()

	content := r.Editable().GetContent()
	return cleanText(stripTags(content))
}

func extractPlain(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	return cleanText(string(data))
}

// cleanText collapses runs of whitespace and rejects documents that
// end up empty.
func cleanText(text string) (string, error) {
	cleaned := strings.Join(strings.Fields(text), " ")
	if cleaned == "" {
		return "", ErrNoText
	}
	return cleaned, nil
}

// stripTags drops the word-processing XML markup, keeping paragraph
// boundaries as spaces.
func stripTags(content string) string {
	var sb strings.Builder
	inTag := false
	for _, r := range content {
		switch {
		case r == '<':
			inTag = true
			sb.WriteRune(' ')
		case r == '>':
			inTag = false
		case !inTag:
			sb.WriteRune(r)
		}
	}
	return sb.String()
}

// ImageExtensions are the upload formats routed through the image
// pipeline instead of text extraction.
var ImageExtensions = map[string]bool{
	".png":  true,
	".jpg":  true,
	".jpeg": true,
	".gif":  true,
	".webp": true,
}

// IsImage reports whether the filename carries a supported image
// extension.
func IsImage(filename string) bool {
	return ImageExtensions[strings.ToLower(filepath.Ext(filename))]
}

// ReadFile loads a stored upload. Kept thin so the worker can treat
// disk reads uniformly with extraction errors.
func ReadFile(path string) ([]byte, error) {
	f, err := os.Open(filepath.Clean(path))
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return io.ReadAll(f)
}
