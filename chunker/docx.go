package chunker

import (
	"archive/zip"
	"bytes"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
)

var errMissingDocumentXML = errors.New("word/document.xml not found")

// extractDocx streams word/document.xml, emitting one line per paragraph and
// one table-cell line per non-empty cell.
func extractDocx(data []byte) ([]line, error) {
	reader, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, fmt.Errorf("not a docx archive: %w", err)
	}

	var docFile *zip.File
	for _, f := range reader.File {
		if strings.EqualFold(f.Name, "word/document.xml") {
			docFile = f
			break
		}
	}
	if docFile == nil {
		return nil, errMissingDocumentXML
	}

	rc, err := docFile.Open()
	if err != nil {
		return nil, err
	}
	defer rc.Close()
	return parseDocumentXML(rc)
}

func parseDocumentXML(r io.Reader) ([]line, error) {
	dec := xml.NewDecoder(r)
	var (
		lines     []line
		para      strings.Builder
		cell      strings.Builder
		style     string
		cellDepth int
	)

	for {
		tok, err := dec.Token()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("malformed document.xml: %w", err)
		}

		switch t := tok.(type) {
		case xml.StartElement:
			switch t.Name.Local {
			case "p":
				para.Reset()
				style = ""
			case "pStyle":
				style = attr(t, "val")
			case "t", "instrText":
				var text string
				if err := dec.DecodeElement(&text, &t); err != nil {
					return nil, fmt.Errorf("malformed text run: %w", err)
				}
				para.WriteString(text)
			case "tab":
				para.WriteByte('\t')
			case "br", "cr":
				para.WriteByte(' ')
			case "tc":
				if cellDepth == 0 {
					cell.Reset()
				}
				cellDepth++
			}
		case xml.EndElement:
			switch t.Name.Local {
			case "p":
				text := strings.TrimSpace(para.String())
				if text == "" {
					continue
				}
				if cellDepth > 0 {
					if cell.Len() > 0 {
						cell.WriteByte(' ')
					}
					cell.WriteString(text)
					continue
				}
				lines = append(lines, line{text: text, headingLevel: styleHeadingLevel(style)})
			case "tc":
				cellDepth--
				if cellDepth == 0 && strings.TrimSpace(cell.String()) != "" {
					lines = append(lines, line{text: strings.TrimSpace(cell.String()), tableCell: true})
				}
			}
		}
	}
	return lines, nil
}

func attr(el xml.StartElement, local string) string {
	for _, a := range el.Attr {
		if a.Name.Local == local {
			return a.Value
		}
	}
	return ""
}

// styleHeadingLevel maps Word paragraph styles such as "Heading2" or "heading 2"
// onto a heading level. Non-heading styles return 0.
func styleHeadingLevel(style string) int {
	s := strings.ToLower(strings.ReplaceAll(style, " ", ""))
	if s == "title" {
		return 1
	}
	if !strings.HasPrefix(s, "heading") {
		return 0
	}
	n, err := strconv.Atoi(strings.TrimPrefix(s, "heading"))
	if err != nil || n < 1 {
		return 0
	}
	return min(n, 3)
}
