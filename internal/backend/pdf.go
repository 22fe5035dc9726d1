package backend

import (
	"bytes"
	"fmt"
	"sync"

	"github.com/gabriel-vasile/mimetype"
	pdfapi "github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
)

const pdfMIME = "application/pdf"

var disableConfigDir sync.Once

// DocumentInfo describes a verified PDF
type DocumentInfo struct {
	MIME  string `json:"mime"`
	Pages int    `json:"pages"`
	Size  int    `json:"size_bytes"`
}

// VerifyPDF checks that data is a structurally valid PDF and counts its pages
func VerifyPDF(data []byte) (*DocumentInfo, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("renderer returned an empty document")
	}

	mime := mimetype.Detect(data)
	if !mime.Is(pdfMIME) {
		return nil, fmt.Errorf("renderer returned %s, want %s", mime.String(), pdfMIME)
	}

	disableConfigDir.Do(pdfapi.DisableConfigDir)
	conf := model.NewDefaultConfiguration()

	if err := pdfapi.Validate(bytes.NewReader(data), conf); err != nil {
		return nil, fmt.Errorf("renderer returned an invalid PDF: %w", err)
	}

	pages, err := pdfapi.PageCount(bytes.NewReader(data), conf)
	if err != nil {
		return nil, fmt.Errorf("failed to count PDF pages: %w", err)
	}
	if pages == 0 {
		return nil, fmt.Errorf("renderer returned a PDF without pages")
	}

	return &DocumentInfo{
		MIME:  pdfMIME,
		Pages: pages,
		Size:  len(data),
	}, nil
}
