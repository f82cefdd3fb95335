// Package docs extracts plain text from uploaded documents (PDF, DOCX,
// TXT, MD) for indexing. The analysis core consumes the result as opaque
// text plus metadata.
package docs

import (
	"archive/zip"
	"encoding/xml"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/ledongthuc/pdf"

	. "github.com/documind/cadalyst/internal/logging"
)

// Document is one extracted document ready for chunking and indexing.
type Document struct {
	Text     string
	Metadata map[string]string
}

// Load extracts a document based on its file extension.
func Load(path string) (*Document, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".pdf":
		return loadPDF(path)
	case ".docx":
		return loadDOCX(path)
	case ".txt", ".md":
		return loadText(path)
	default:
		return nil, fmt.Errorf("unsupported file type: %s", filepath.Ext(path))
	}
}

func baseMetadata(path, fileType string) map[string]string {
	return map[string]string{
		"file_path": path,
		"file_name": filepath.Base(path),
		"file_type": fileType,
	}
}

// loadPDF extracts text page by page, tagging each page with a marker so
// retrieval hits can be traced back to a page.
func loadPDF(path string) (*Document, error) {
	L_info("docs: loading pdf", "path", path)

	f, r, err := pdf.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open pdf: %w", err)
	}
	defer f.Close()

	var pages []string
	for i := 1; i <= r.NumPage(); i++ {
		page := r.Page(i)
		if page.V.IsNull() {
			continue
		}
		text, err := page.GetPlainText(nil)
		if err != nil {
			L_warn("docs: failed to extract page", "page", i, "error", err)
			continue
		}
		if strings.TrimSpace(text) == "" {
			continue
		}
		pages = append(pages, fmt.Sprintf("--- Page %d ---\n%s", i, text))
	}

	full := strings.Join(pages, "\n\n")
	if strings.TrimSpace(full) == "" {
		return nil, fmt.Errorf("no text could be extracted from PDF")
	}

	L_info("docs: pdf loaded", "path", path, "pages", len(pages), "chars", len(full))

	md := baseMetadata(path, "pdf")
	md["num_pages"] = fmt.Sprintf("%d", len(pages))
	return &Document{Text: full, Metadata: md}, nil
}

// loadDOCX reads word/document.xml out of the zip container and joins the
// paragraph runs. There is no maintained DOCX library to lean on; the
// format is just zipped XML, so the token walk below is the whole parser.
func loadDOCX(path string) (*Document, error) {
	L_info("docs: loading docx", "path", path)

	zr, err := zip.OpenReader(path)
	if err != nil {
		return nil, fmt.Errorf("open docx: %w", err)
	}
	defer zr.Close()

	var docXML io.ReadCloser
	for _, f := range zr.File {
		if f.Name == "word/document.xml" {
			docXML, err = f.Open()
			if err != nil {
				return nil, fmt.Errorf("open document.xml: %w", err)
			}
			break
		}
	}
	if docXML == nil {
		return nil, fmt.Errorf("not a DOCX file: word/document.xml missing")
	}
	defer docXML.Close()

	paragraphs, err := extractParagraphs(docXML)
	if err != nil {
		return nil, fmt.Errorf("parse document.xml: %w", err)
	}

	text := strings.Join(paragraphs, "\n\n")
	if strings.TrimSpace(text) == "" {
		return nil, fmt.Errorf("no text could be extracted from DOCX")
	}

	L_info("docs: docx loaded", "path", path, "paragraphs", len(paragraphs), "chars", len(text))

	return &Document{Text: text, Metadata: baseMetadata(path, "docx")}, nil
}

// extractParagraphs walks WordprocessingML, collecting the character data
// of w:t runs grouped by their enclosing w:p paragraph.
func extractParagraphs(r io.Reader) ([]string, error) {
	dec := xml.NewDecoder(r)

	var paragraphs []string
	var current strings.Builder
	inText := false

	for {
		tok, err := dec.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}

		switch el := tok.(type) {
		case xml.StartElement:
			if el.Name.Local == "t" {
				inText = true
			}
		case xml.EndElement:
			switch el.Name.Local {
			case "t":
				inText = false
			case "p":
				if s := strings.TrimSpace(current.String()); s != "" {
					paragraphs = append(paragraphs, s)
				}
				current.Reset()
			}
		case xml.CharData:
			if inText {
				current.Write(el)
			}
		}
	}

	// Trailing runs outside a closed paragraph
	if s := strings.TrimSpace(current.String()); s != "" {
		paragraphs = append(paragraphs, s)
	}

	return paragraphs, nil
}

func loadText(path string) (*Document, error) {
	L_info("docs: loading text", "path", path)

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read file: %w", err)
	}
	if strings.TrimSpace(string(data)) == "" {
		return nil, fmt.Errorf("no text could be extracted from file")
	}

	fileType := strings.TrimPrefix(strings.ToLower(filepath.Ext(path)), ".")
	return &Document{Text: string(data), Metadata: baseMetadata(path, fileType)}, nil
}
