package artifact

import (
	"archive/zip"
	"bytes"
	"image"
	"image/jpeg"
	"image/png"
	"io"
	"log/slog"
	"testing"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

func TestArtifact(t *testing.T) {
	// Disable logging during tests
	slog.SetDefault(slog.New(slog.NewTextHandler(io.Discard, nil)))

	RegisterFailHandler(Fail)
	RunSpecs(t, "Artifact Suite")
}

var pngMagic = []byte{0x89, 'P', 'N', 'G'}

func jpegBytes() []byte {
	var buf bytes.Buffer
	err := jpeg.Encode(&buf, image.NewRGBA(image.Rect(0, 0, 8, 8)), nil)
	Expect(err).NotTo(HaveOccurred())
	return buf.Bytes()
}

func pngBytes() []byte {
	var buf bytes.Buffer
	err := png.Encode(&buf, image.NewRGBA(image.Rect(0, 0, 8, 8)))
	Expect(err).NotTo(HaveOccurred())
	return buf.Bytes()
}

// zipEntry is one file inside a synthetic docx container.
type zipEntry struct {
	name string
	data []byte
}

func docxBytes(entries ...zipEntry) []byte {
	var buf bytes.Buffer
	w := zip.NewWriter(&buf)
	for _, e := range entries {
		fw, err := w.Create(e.name)
		Expect(err).NotTo(HaveOccurred())
		_, err = fw.Write(e.data)
		Expect(err).NotTo(HaveOccurred())
	}
	Expect(w.Close()).NotTo(HaveOccurred())
	return buf.Bytes()
}

var _ = Describe("KindFromMIME", func() {
	var (
		mimeType string
		kind     Kind
		err      error
	)

	JustBeforeEach(func() {
		kind, err = KindFromMIME(mimeType)
	})

	When("the MIME type is empty", func() {
		BeforeEach(func() {
			mimeType = ""
		})

		It("should default to an image", func() {
			Expect(err).NotTo(HaveOccurred())
			Expect(kind).To(Equal(KindImage))
		})
	})

	When("the MIME type carries parameters and odd casing", func() {
		BeforeEach(func() {
			mimeType = " Application/PDF; charset=binary "
		})

		It("should normalize and resolve it", func() {
			Expect(err).NotTo(HaveOccurred())
			Expect(kind).To(Equal(KindPDF))
		})
	})

	When("the MIME type is a Word document", func() {
		BeforeEach(func() {
			mimeType = "application/vnd.openxmlformats-officedocument.wordprocessingml.document"
		})

		It("should resolve to docx", func() {
			Expect(err).NotTo(HaveOccurred())
			Expect(kind).To(Equal(KindDocx))
		})
	})

	When("the MIME type is unsupported", func() {
		BeforeEach(func() {
			mimeType = "video/mp4"
		})

		It("should fail with ErrUnsupportedFormat", func() {
			Expect(err).To(MatchError(ErrUnsupportedFormat))
		})
	})
})

var _ = Describe("Normalizer", func() {
	var (
		normalizer *Normalizer
		input      Artifact
		candidates []Candidate
		err        error
	)

	BeforeEach(func() {
		normalizer = NewNormalizer(5)
	})

	JustBeforeEach(func() {
		candidates, err = normalizer.Normalize(input)
	})

	When("normalizing free text", func() {
		BeforeEach(func() {
			input = Artifact{ID: "a1", Kind: KindText, Text: "  2500 обед  "}
		})

		It("should not return an error", func() {
			Expect(err).NotTo(HaveOccurred())
		})

		It("should emit a single trimmed text candidate", func() {
			Expect(candidates).To(HaveLen(1))
			Expect(candidates[0].Text).To(Equal("2500 обед"))
			Expect(candidates[0].IsText()).To(BeTrue())
		})
	})

	When("the text is blank", func() {
		BeforeEach(func() {
			input = Artifact{ID: "a1", Kind: KindText, Text: "   "}
		})

		It("should fail with ErrNoContent", func() {
			Expect(err).To(MatchError(ErrNoContent))
		})
	})

	When("normalizing a JPEG image", func() {
		BeforeEach(func() {
			input = Artifact{ID: "a1", Kind: KindImage, MIME: "image/jpeg", Data: jpegBytes()}
		})

		It("should not return an error", func() {
			Expect(err).NotTo(HaveOccurred())
		})

		It("should emit a single PNG candidate", func() {
			Expect(candidates).To(HaveLen(1))
			Expect(candidates[0].Image[:4]).To(Equal(pngMagic))
		})
	})

	When("the image exceeds the size cap", func() {
		BeforeEach(func() {
			input = Artifact{ID: "a1", Kind: KindImage, Data: make([]byte, MaxImageBytes+1)}
		})

		It("should fail with ErrOversizeArtifact", func() {
			Expect(err).To(MatchError(ErrOversizeArtifact))
		})
	})

	When("the image data is not decodable", func() {
		BeforeEach(func() {
			input = Artifact{ID: "a1", Kind: KindImage, Data: []byte("definitely not an image")}
		})

		It("should return an error", func() {
			Expect(err).To(HaveOccurred())
		})
	})

	When("a PDF exceeds the document size cap", func() {
		BeforeEach(func() {
			input = Artifact{ID: "a1", Kind: KindPDF, Data: make([]byte, MaxDocumentBytes+1)}
		})

		It("should fail with ErrOversizeArtifact", func() {
			Expect(err).To(MatchError(ErrOversizeArtifact))
		})
	})

	When("the PDF data is not a PDF", func() {
		BeforeEach(func() {
			input = Artifact{ID: "a1", Kind: KindPDF, Data: []byte("not a pdf")}
		})

		It("should fail with ErrUnsupportedFormat", func() {
			Expect(err).To(MatchError(ErrUnsupportedFormat))
		})
	})

	When("a docx contains embedded images", func() {
		BeforeEach(func() {
			input = Artifact{ID: "a1", Kind: KindDocx, Data: docxBytes(
				zipEntry{name: "word/document.xml", data: []byte(`<w:document><w:body><w:p><w:r><w:t>ignored</w:t></w:r></w:p></w:body></w:document>`)},
				zipEntry{name: "word/media/image2.png", data: pngBytes()},
				zipEntry{name: "word/media/image1.png", data: pngBytes()},
			)}
		})

		It("should not return an error", func() {
			Expect(err).NotTo(HaveOccurred())
		})

		It("should emit one PNG candidate per image, in name order", func() {
			Expect(candidates).To(HaveLen(2))
			Expect(candidates[0].Index).To(Equal(0))
			Expect(candidates[0].Image[:4]).To(Equal(pngMagic))
			Expect(candidates[1].Index).To(Equal(1))
		})
	})

	When("a docx has no images but has text", func() {
		BeforeEach(func() {
			input = Artifact{ID: "a1", Kind: KindDocx, Data: docxBytes(
				zipEntry{name: "word/document.xml", data: []byte(`<w:document><w:body><w:p><w:r><w:t>Итого 670</w:t></w:r></w:p><w:p><w:r><w:t>Магнум</w:t></w:r></w:p></w:body></w:document>`)},
			)}
		})

		It("should emit the document text as one candidate", func() {
			Expect(err).NotTo(HaveOccurred())
			Expect(candidates).To(HaveLen(1))
			Expect(candidates[0].Text).To(Equal("Итого 670\nМагнум"))
		})
	})

	When("a docx has neither images nor text", func() {
		BeforeEach(func() {
			input = Artifact{ID: "a1", Kind: KindDocx, Data: docxBytes(
				zipEntry{name: "word/document.xml", data: []byte(`<w:document><w:body></w:body></w:document>`)},
			)}
		})

		It("should fail with ErrNoContent", func() {
			Expect(err).To(MatchError(ErrNoContent))
		})
	})

	When("the docx container is corrupt", func() {
		BeforeEach(func() {
			input = Artifact{ID: "a1", Kind: KindDocx, Data: []byte("not a zip")}
		})

		It("should fail with ErrUnsupportedFormat", func() {
			Expect(err).To(MatchError(ErrUnsupportedFormat))
		})
	})
})

var _ = Describe("isHEIC", func() {
	It("recognizes the heic ftyp brand", func() {
		data := append([]byte{0, 0, 0, 24}, []byte("ftypheic")...)
		data = append(data, make([]byte, 8)...)
		Expect(isHEIC(data)).To(BeTrue())
	})

	It("rejects short or unrelated data", func() {
		Expect(isHEIC([]byte("tiny"))).To(BeFalse())
		Expect(isHEIC(pngBytes())).To(BeFalse())
	})
})
