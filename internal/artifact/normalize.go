package artifact

import (
	"fmt"
	"log/slog"
	"strings"

	"github.com/gen2brain/go-fitz"
)

const defaultMaxPDFPages = 5

// acceptedMIMEs maps declared MIME types to the artifact kind they
// normalize into. Anything else is rejected up front.
var acceptedMIMEs = map[string]Kind{
	"image/jpeg": KindImage,
	"image/jpg":  KindImage,
	"image/png":  KindImage,
	"image/gif":  KindImage,
	"image/heic": KindImage,
	"image/heif": KindImage,
	"application/pdf": KindPDF,
	"application/vnd.openxmlformats-officedocument.wordprocessingml.document": KindDocx,
	"text/plain": KindText,
}

// KindFromMIME resolves a declared MIME type to an artifact kind,
// or ErrUnsupportedFormat. An empty MIME type defaults to JPEG, which
// is what chat transports usually hand us for photos.
func KindFromMIME(mimeType string) (Kind, error) {
	mimeType = strings.ToLower(strings.TrimSpace(mimeType))
	if mimeType == "" {
		mimeType = "image/jpeg"
	}
	// strip parameters like "; charset=utf-8"
	if i := strings.Index(mimeType, ";"); i >= 0 {
		mimeType = strings.TrimSpace(mimeType[:i])
	}
	kind, ok := acceptedMIMEs[mimeType]
	if !ok {
		return 0, fmt.Errorf("%w: %s", ErrUnsupportedFormat, mimeType)
	}
	return kind, nil
}

// Normalizer turns an Artifact into the ordered candidate sequence the
// extraction engine consumes.
type Normalizer struct {
	maxPDFPages int
}

// NewNormalizer creates a Normalizer. maxPDFPages caps how many PDF
// pages get rendered; zero or negative selects the default of 5.
func NewNormalizer(maxPDFPages int) *Normalizer {
	if maxPDFPages <= 0 {
		maxPDFPages = defaultMaxPDFPages
	}
	return &Normalizer{maxPDFPages: maxPDFPages}
}

// Normalize produces a non-empty ordered candidate sequence, or fails
// with ErrUnsupportedFormat, ErrOversizeArtifact, or ErrNoContent.
func (n *Normalizer) Normalize(a Artifact) ([]Candidate, error) {
	switch a.Kind {
	case KindText:
		text := strings.TrimSpace(a.Text)
		if text == "" {
			return nil, ErrNoContent
		}
		return []Candidate{{ArtifactID: a.ID, Index: 0, Text: text}}, nil
	case KindImage:
		if len(a.Data) > MaxImageBytes {
			return nil, fmt.Errorf("%w: image is %d bytes", ErrOversizeArtifact, len(a.Data))
		}
		pngData, err := toPNG(a.Data, a.MIME)
		if err != nil {
			return nil, err
		}
		return []Candidate{{ArtifactID: a.ID, Index: 0, Image: pngData}}, nil
	case KindPDF:
		if len(a.Data) > MaxDocumentBytes {
			return nil, fmt.Errorf("%w: document is %d bytes", ErrOversizeArtifact, len(a.Data))
		}
		return n.normalizePDF(a)
	case KindDocx:
		if len(a.Data) > MaxDocumentBytes {
			return nil, fmt.Errorf("%w: document is %d bytes", ErrOversizeArtifact, len(a.Data))
		}
		return n.normalizeDocx(a)
	}
	return nil, ErrUnsupportedFormat
}

// normalizePDF renders the first pages of the PDF into PNG candidates.
// When no page renders, the extractable text layer is the fallback.
func (n *Normalizer) normalizePDF(a Artifact) ([]Candidate, error) {
	doc, err := fitz.NewFromMemory(a.Data)
	if err != nil {
		return nil, fmt.Errorf("%w: opening PDF: %v", ErrUnsupportedFormat, err)
	}
	defer doc.Close()

	pages := doc.NumPage()
	if pages > n.maxPDFPages {
		pages = n.maxPDFPages
	}

	var candidates []Candidate
	for i := 0; i < pages; i++ {
		img, err := doc.Image(i)
		if err != nil {
			slog.Warn("Failed to render PDF page", "artifact", a.ID, "page", i, "error", err)
			continue
		}
		pngData, err := encodePNG(img)
		if err != nil {
			slog.Warn("Failed to encode PDF page", "artifact", a.ID, "page", i, "error", err)
			continue
		}
		candidates = append(candidates, Candidate{ArtifactID: a.ID, Index: i, Image: pngData})
	}
	if len(candidates) > 0 {
		return candidates, nil
	}

	// No renderable page: emit the text layer instead.
	var sb strings.Builder
	for i := 0; i < pages; i++ {
		text, err := doc.Text(i)
		if err != nil {
			continue
		}
		sb.WriteString(text)
		sb.WriteString("\n")
	}
	text := strings.TrimSpace(sb.String())
	if text == "" {
		return nil, fmt.Errorf("%w: PDF has no renderable pages and no text layer", ErrNoContent)
	}
	return []Candidate{{ArtifactID: a.ID, Index: 0, Text: text}}, nil
}

// normalizeDocx extracts embedded images in document order, falling back
// to the document's plain text when it contains no images.
func (n *Normalizer) normalizeDocx(a Artifact) ([]Candidate, error) {
	images, err := docxImages(a.Data)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnsupportedFormat, err)
	}

	var candidates []Candidate
	for i, img := range images {
		pngData, err := toPNG(img, "")
		if err != nil {
			slog.Warn("Failed to convert embedded image", "artifact", a.ID, "index", i, "error", err)
			continue
		}
		candidates = append(candidates, Candidate{ArtifactID: a.ID, Index: i, Image: pngData})
	}
	if len(candidates) > 0 {
		return candidates, nil
	}

	text, err := docxText(a.Data)
	if err != nil || text == "" {
		return nil, fmt.Errorf("%w: document has no images and no text", ErrNoContent)
	}
	return []Candidate{{ArtifactID: a.ID, Index: 0, Text: text}}, nil
}
