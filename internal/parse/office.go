package parse

import (
	"archive/zip"
	"bytes"
	"encoding/xml"
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"

	askerr "github.com/askdoc/askdoc/internal/errors"
)

// OOXML documents are zip archives of XML parts. The extractors below
// walk the relevant parts directly rather than modeling the full
// schemas; only text content is needed.

func openArchive(data []byte) (*zip.Reader, error) {
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, askerr.ParseError("not a valid office document", err)
	}
	return zr, nil
}

func readArchiveFile(zr *zip.Reader, name string) ([]byte, error) {
	for _, f := range zr.File {
		if f.Name != name {
			continue
		}
		rc, err := f.Open()
		if err != nil {
			return nil, askerr.ParseError(fmt.Sprintf("failed to open %s", name), err)
		}
		defer func() { _ = rc.Close() }()
		return io.ReadAll(rc)
	}
	return nil, askerr.ParseError(fmt.Sprintf("missing archive part %s", name), nil)
}

// paragraphLines walks an XML part collecting the character data of
// every <t> element, grouped into one line per enclosing <p> element.
// Namespace prefixes differ between formats (w: for docx, a: for
// pptx) but the local names are the same.
func paragraphLines(part []byte) ([]string, error) {
	dec := xml.NewDecoder(bytes.NewReader(part))

	var lines []string
	var sb strings.Builder
	paraDepth := 0
	inText := false

	for {
		tok, err := dec.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, askerr.ParseError("malformed document xml", err)
		}

		switch t := tok.(type) {
		case xml.StartElement:
			switch t.Name.Local {
			case "p":
				paraDepth++
				if paraDepth == 1 {
					sb.Reset()
				}
			case "t":
				inText = paraDepth > 0
			}
		case xml.EndElement:
			switch t.Name.Local {
			case "p":
				if paraDepth == 1 {
					if line := strings.TrimSpace(sb.String()); line != "" {
						lines = append(lines, line)
					}
				}
				if paraDepth > 0 {
					paraDepth--
				}
			case "t":
				inText = false
			}
		case xml.CharData:
			if inText {
				sb.Write(t)
			}
		}
	}
	return lines, nil
}

// extractDocx returns one line per non-empty paragraph.
func extractDocx(data []byte) (string, error) {
	zr, err := openArchive(data)
	if err != nil {
		return "", err
	}
	part, err := readArchiveFile(zr, "word/document.xml")
	if err != nil {
		return "", err
	}
	lines, err := paragraphLines(part)
	if err != nil {
		return "", err
	}
	return strings.Join(lines, "\n"), nil
}

// extractPptx returns one line per non-empty text paragraph, slides
// in presentation order.
func extractPptx(data []byte) (string, error) {
	zr, err := openArchive(data)
	if err != nil {
		return "", err
	}

	var slides []string
	for _, f := range zr.File {
		if strings.HasPrefix(f.Name, "ppt/slides/slide") && strings.HasSuffix(f.Name, ".xml") {
			slides = append(slides, f.Name)
		}
	}
	sort.Slice(slides, func(i, j int) bool {
		return slideNumber(slides[i]) < slideNumber(slides[j])
	})

	var lines []string
	for _, name := range slides {
		part, err := readArchiveFile(zr, name)
		if err != nil {
			return "", err
		}
		slideLines, err := paragraphLines(part)
		if err != nil {
			return "", err
		}
		lines = append(lines, slideLines...)
	}
	return strings.Join(lines, "\n"), nil
}

func slideNumber(name string) int {
	digits := strings.TrimSuffix(strings.TrimPrefix(name, "ppt/slides/slide"), ".xml")
	n, err := strconv.Atoi(digits)
	if err != nil {
		return 0
	}
	return n
}

// xlsx part shapes, just enough for text extraction.

type sharedStringsXML struct {
	Items []struct {
		Text string `xml:"t"`
		Runs []struct {
			Text string `xml:"t"`
		} `xml:"r"`
	} `xml:"si"`
}

type workbookXML struct {
	Sheets []struct {
		Name  string `xml:"name,attr"`
		RelID string `xml:"id,attr"`
	} `xml:"sheets>sheet"`
}

type relationshipsXML struct {
	Rels []struct {
		ID     string `xml:"Id,attr"`
		Target string `xml:"Target,attr"`
	} `xml:"Relationship"`
}

type worksheetXML struct {
	Rows []struct {
		Cells []struct {
			Type   string `xml:"t,attr"`
			Value  string `xml:"v"`
			Inline struct {
				Text string `xml:"t"`
			} `xml:"is"`
		} `xml:"c"`
	} `xml:"sheetData>row"`
}

// extractXlsx renders each sheet as a "--- Sheet: <name> ---" header
// followed by its non-empty rows, cells joined with " | ".
func extractXlsx(data []byte) (string, error) {
	zr, err := openArchive(data)
	if err != nil {
		return "", err
	}

	shared, err := loadSharedStrings(zr)
	if err != nil {
		return "", err
	}

	var workbook workbookXML
	part, err := readArchiveFile(zr, "xl/workbook.xml")
	if err != nil {
		return "", err
	}
	if err := xml.Unmarshal(part, &workbook); err != nil {
		return "", askerr.ParseError("malformed workbook xml", err)
	}

	targets, err := loadSheetTargets(zr)
	if err != nil {
		return "", err
	}

	var sections []string
	for _, sheet := range workbook.Sheets {
		target, ok := targets[sheet.RelID]
		if !ok {
			continue
		}
		rows, err := sheetRows(zr, target, shared)
		if err != nil {
			return "", err
		}
		if len(rows) == 0 {
			continue
		}
		sections = append(sections, fmt.Sprintf("--- Sheet: %s ---", sheet.Name))
		sections = append(sections, rows...)
	}
	return strings.Join(sections, "\n"), nil
}

func loadSharedStrings(zr *zip.Reader) ([]string, error) {
	part, err := readArchiveFile(zr, "xl/sharedStrings.xml")
	if err != nil {
		// Workbooks with only numeric cells have no shared strings.
		return nil, nil
	}
	var sst sharedStringsXML
	if err := xml.Unmarshal(part, &sst); err != nil {
		return nil, askerr.ParseError("malformed shared strings xml", err)
	}
	strs := make([]string, len(sst.Items))
	for i, item := range sst.Items {
		if len(item.Runs) > 0 {
			var sb strings.Builder
			for _, r := range item.Runs {
				sb.WriteString(r.Text)
			}
			strs[i] = sb.String()
		} else {
			strs[i] = item.Text
		}
	}
	return strs, nil
}

func loadSheetTargets(zr *zip.Reader) (map[string]string, error) {
	part, err := readArchiveFile(zr, "xl/_rels/workbook.xml.rels")
	if err != nil {
		return nil, err
	}
	var rels relationshipsXML
	if err := xml.Unmarshal(part, &rels); err != nil {
		return nil, askerr.ParseError("malformed workbook relationships", err)
	}
	targets := make(map[string]string, len(rels.Rels))
	for _, rel := range rels.Rels {
		target := strings.TrimPrefix(rel.Target, "/")
		if !strings.HasPrefix(target, "xl/") {
			target = "xl/" + target
		}
		targets[rel.ID] = target
	}
	return targets, nil
}

func sheetRows(zr *zip.Reader, target string, shared []string) ([]string, error) {
	part, err := readArchiveFile(zr, target)
	if err != nil {
		return nil, err
	}
	var ws worksheetXML
	if err := xml.Unmarshal(part, &ws); err != nil {
		return nil, askerr.ParseError("malformed worksheet xml", err)
	}

	var rows []string
	for _, row := range ws.Rows {
		var cells []string
		for _, cell := range row.Cells {
			var value string
			switch cell.Type {
			case "s":
				idx, err := strconv.Atoi(cell.Value)
				if err == nil && idx >= 0 && idx < len(shared) {
					value = shared[idx]
				}
			case "inlineStr":
				value = cell.Inline.Text
			default:
				value = cell.Value
			}
			if value != "" {
				cells = append(cells, value)
			}
		}
		if line := strings.TrimSpace(strings.Join(cells, " | ")); line != "" {
			rows = append(rows, line)
		}
	}
	return rows, nil
}
