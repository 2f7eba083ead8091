package artifact

import "errors"

// Size limits for submitted artifacts.
const (
	MaxImageBytes    = 10 << 20
	MaxDocumentBytes = 20 << 20
)

var (
	// ErrUnsupportedFormat means the declared MIME type is not in the accepted set.
	ErrUnsupportedFormat = errors.New("unsupported artifact format")
	// ErrOversizeArtifact means the artifact exceeds the size limit for its kind.
	ErrOversizeArtifact = errors.New("artifact exceeds size limit")
	// ErrNoContent means the artifact yielded no usable image or text.
	ErrNoContent = errors.New("no extractable content in artifact")
)

// Kind identifies what sort of artifact was submitted.
type Kind int

const (
	KindImage Kind = iota
	KindPDF
	KindDocx
	KindText
)

func (k Kind) String() string {
	switch k {
	case KindImage:
		return "image"
	case KindPDF:
		return "pdf"
	case KindDocx:
		return "docx"
	case KindText:
		return "text"
	}
	return "unknown"
}

// Artifact is the raw user submission. It lives only for the duration of
// one pipeline invocation; persisting the original bytes is the chat
// layer's concern.
type Artifact struct {
	ID   string
	Kind Kind
	MIME string
	Data []byte
	Text string // set only for KindText
}

// Candidate is one extractable unit derived from an Artifact: either a
// PNG image or a block of plain text. Index preserves the order within
// the artifact (PDF page number, position of the image in a document).
type Candidate struct {
	ArtifactID string
	Index      int
	Image      []byte
	Text       string
}

// IsText reports whether the candidate carries text rather than an image.
func (c Candidate) IsText() bool {
	return c.Image == nil
}
