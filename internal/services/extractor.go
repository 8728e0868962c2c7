package services

import (
	"archive/zip"
	"bytes"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/ledongthuc/pdf"
)

// Extractor converts PDF and DOCX payloads into plain text. It never touches
// the file the payload came from.
type Extractor interface {
	Extract(content []byte, ext string) (string, error)
}

type extractor struct{}

func NewExtractor() Extractor {
	return &extractor{}
}

// NormalizeExt returns the lower-cased extension of a filename or a bare extension.
func NormalizeExt(name string) string {
	ext := filepath.Ext(name)
	if ext == "" && !strings.Contains(name, ".") {
		ext = "." + name
	}
	return strings.ToLower(ext)
}

// Extract implements Extractor.
func (e *extractor) Extract(content []byte, ext string) (string, error) {
	switch NormalizeExt(ext) {
	case ".pdf":
		return extractPDF(content)
	case ".docx":
		return extractDOCX(content)
	default:
		return "", fmt.Errorf("%w: %q", ErrUnsupportedFormat, ext)
	}
}

func extractPDF(content []byte) (text string, err error) {
	if len(content) == 0 {
		return "", &ExtractionError{Format: "pdf", Err: errors.New("empty file")}
	}

	// The pdf reader panics on some malformed cross-reference tables.
	defer func() {
		if r := recover(); r != nil {
			text = ""
			err = &ExtractionError{Format: "pdf", Err: fmt.Errorf("malformed document: %v", r)}
		}
	}()

	r, err := pdf.NewReader(bytes.NewReader(content), int64(len(content)))
	if err != nil {
		return "", &ExtractionError{Format: "pdf", Err: err}
	}

	totalPage := r.NumPage()
	pages := make([]string, 0, totalPage)

	for pageIndex := 1; pageIndex <= totalPage; pageIndex++ {
		page := r.Page(pageIndex)
		if page.V.IsNull() {
			pages = append(pages, "")
			continue
		}

		pageText, err := page.GetPlainText(nil)
		if err != nil {
			// Image-only and unreadable pages contribute nothing.
			pages = append(pages, "")
			continue
		}
		pages = append(pages, pageText)
	}

	return strings.Join(pages, "\n"), nil
}

const docxBody = "word/document.xml"

func extractDOCX(content []byte) (string, error) {
	zr, err := zip.NewReader(bytes.NewReader(content), int64(len(content)))
	if err != nil {
		return "", &ExtractionError{Format: "docx", Err: err}
	}

	var body *zip.File
	for _, f := range zr.File {
		if f.Name == docxBody {
			body = f
			break
		}
	}
	if body == nil {
		return "", &ExtractionError{Format: "docx", Err: fmt.Errorf("missing %s", docxBody)}
	}

	rc, err := body.Open()
	if err != nil {
		return "", &ExtractionError{Format: "docx", Err: err}
	}
	defer rc.Close()

	paragraphs, err := docxParagraphs(rc)
	if err != nil {
		return "", &ExtractionError{Format: "docx", Err: err}
	}

	return strings.Join(paragraphs, "\n"), nil
}

// docxParagraphs walks WordprocessingML and returns the text of every w:p in
// document order. Runs are concatenated, w:tab becomes a tab and w:br a newline.
func docxParagraphs(r io.Reader) ([]string, error) {
	dec := xml.NewDecoder(r)

	var (
		paragraphs []string
		current    strings.Builder
		inPara     int
		inText     bool
	)

	for {
		tok, err := dec.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to decode %s: %w", docxBody, err)
		}

		switch t := tok.(type) {
		case xml.StartElement:
			switch t.Name.Local {
			case "p":
				if inPara == 0 {
					current.Reset()
				}
				inPara++
			case "t":
				inText = true
			case "tab":
				if inPara > 0 {
					current.WriteByte('\t')
				}
			case "br", "cr":
				if inPara > 0 {
					current.WriteByte('\n')
				}
			}
		case xml.EndElement:
			switch t.Name.Local {
			case "p":
				inPara--
				if inPara == 0 {
					paragraphs = append(paragraphs, current.String())
				}
			case "t":
				inText = false
			}
		case xml.CharData:
			if inText && inPara > 0 {
				current.Write(t)
			}
		}
	}

	return paragraphs, nil
}
