package registration

import (
	"bytes"
	"fmt"
	"io"
	"net/http"

	"github.com/gabriel-vasile/mimetype"
	pdfapi "github.com/pdfcpu/pdfcpu/pkg/api"

	"github.com/yourusername/club-portal/internal/apierror"
)

const pdfMIME = "application/pdf"

// DocumentValidator はアップロードされた書類がページ数上限内のPDFであることを確認します。
type DocumentValidator struct {
	maxSize  int64
	maxPages int
	// countPages はテストで差し替えられるようにフィールドにしています。
	countPages func(rs io.ReadSeeker) (int, error)
}

// NewDocumentValidator は DocumentValidator を作成します。
func NewDocumentValidator(maxSize int64, maxPages int) *DocumentValidator {
	return &DocumentValidator{
		maxSize:  maxSize,
		maxPages: maxPages,
		countPages: func(rs io.ReadSeeker) (int, error) {
			return pdfapi.PageCount(rs, nil)
		},
	}
}

// Read は r を最大サイズまで読み込み、検証済みの内容とページ数を返します。
func (v *DocumentValidator) Read(r io.Reader) ([]byte, int, error) {
	data, err := io.ReadAll(io.LimitReader(r, v.maxSize+1))
	if err != nil {
		return nil, 0, fmt.Errorf("read document: %w", err)
	}
	if int64(len(data)) > v.maxSize {
		return nil, 0, errDocumentTooLarge
	}
	if len(data) == 0 {
		return nil, 0, apierror.InvalidInput("空のファイルはアップロードできません")
	}
	if !mimetype.Detect(data).Is(pdfMIME) {
		return nil, 0, errUnsupportedDocument
	}

	pages, err := v.countPages(bytes.NewReader(data))
	if err != nil {
		return nil, 0, apierror.Wrap(http.StatusUnprocessableEntity, "INVALID_PDF", "PDFファイルを読み込めませんでした", err)
	}
	if v.maxPages > 0 && pages > v.maxPages {
		return nil, 0, apierror.New(http.StatusUnprocessableEntity, "TOO_MANY_PAGES",
			fmt.Sprintf("ページ数は %d ページまでです", v.maxPages))
	}
	return data, pages, nil
}
