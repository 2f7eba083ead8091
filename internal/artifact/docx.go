package artifact

import (
	"archive/zip"
	"bytes"
	"encoding/xml"
	"fmt"
	"io"
	"sort"
	"strings"
)

// docxImages pulls embedded images out of a Word document. A .docx file
// is a zip container; pictures live under word/media/ and their file
// names (image1.png, image2.jpeg, ...) follow insertion order.
func docxImages(data []byte) ([][]byte, error) {
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, fmt.Errorf("opening docx container: %w", err)
	}

	var names []string
	files := make(map[string]*zip.File)
	for _, f := range zr.File {
		if !strings.HasPrefix(f.Name, "word/media/") {
			continue
		}
		switch {
		case strings.HasSuffix(f.Name, ".png"),
			strings.HasSuffix(f.Name, ".jpg"),
			strings.HasSuffix(f.Name, ".jpeg"),
			strings.HasSuffix(f.Name, ".gif"),
			strings.HasSuffix(f.Name, ".bmp"):
			names = append(names, f.Name)
			files[f.Name] = f
		}
	}
	sort.Strings(names)

	var images [][]byte
	for _, name := range names {
		rc, err := files[name].Open()
		if err != nil {
			return nil, fmt.Errorf("opening %s: %w", name, err)
		}
		img, err := io.ReadAll(rc)
		rc.Close()
		if err != nil {
			return nil, fmt.Errorf("reading %s: %w", name, err)
		}
		images = append(images, img)
	}
	return images, nil
}

// docxText extracts the plain text of a Word document by walking the
// <w:t> runs of word/document.xml. Paragraph boundaries become newlines.
func docxText(data []byte) (string, error) {
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", fmt.Errorf("opening docx container: %w", err)
	}

	var doc *zip.File
	for _, f := range zr.File {
		if f.Name == "word/document.xml" {
			doc = f
			break
		}
	}
	if doc == nil {
		return "", fmt.Errorf("docx has no word/document.xml")
	}

	rc, err := doc.Open()
	if err != nil {
		return "", fmt.Errorf("opening document.xml: %w", err)
	}
	defer rc.Close()

	var sb strings.Builder
	decoder := xml.NewDecoder(rc)
	inText := false
	for {
		tok, err := decoder.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			return "", fmt.Errorf("parsing document.xml: %w", err)
		}
		switch t := tok.(type) {
		case xml.StartElement:
			if t.Name.Local == "t" {
				inText = true
			}
		case xml.EndElement:
			switch t.Name.Local {
			case "t":
				inText = false
			case "p":
				sb.WriteString("\n")
			}
		case xml.CharData:
			if inText {
				sb.Write(t)
			}
		}
	}
	return strings.TrimSpace(sb.String()), nil
}
