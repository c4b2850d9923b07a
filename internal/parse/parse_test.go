package parse

import (
	"archive/zip"
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	askerr "github.com/askdoc/askdoc/internal/errors"
)

func buildArchive(t *testing.T, files map[string]string) []byte {
	t.Helper()
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	for name, content := range files {
		w, err := zw.Create(name)
		require.NoError(t, err)
		_, err = w.Write([]byte(content))
		require.NoError(t, err)
	}
	require.NoError(t, zw.Close())
	return buf.Bytes()
}

func TestExtract_PlainTextPassthrough(t *testing.T) {
	text, err := Extract("notes.md", []byte("# Title\n\nBody."))
	require.NoError(t, err)
	assert.Equal(t, "# Title\n\nBody.", text)

	text, err = Extract("notes.TXT", []byte("plain"))
	require.NoError(t, err)
	assert.Equal(t, "plain", text)
}

func TestExtract_UnsupportedFormat(t *testing.T) {
	_, err := Extract("image.png", []byte{0x89})
	require.Error(t, err)
	assert.Equal(t, askerr.ErrCodeUnsupportedFormat, askerr.GetCode(err))
}

func TestExtract_CorruptPDF(t *testing.T) {
	_, err := Extract("broken.pdf", []byte("not a pdf"))
	require.Error(t, err)
	assert.Equal(t, askerr.ErrCodeParseFailed, askerr.GetCode(err))
}

func TestSupported(t *testing.T) {
	assert.True(t, Supported("report.pdf"))
	assert.True(t, Supported("deck.PPTX"))
	assert.False(t, Supported("archive.tar.gz"))
	assert.False(t, Supported("noextension"))
}

func TestExtract_Docx(t *testing.T) {
	document := `<?xml version="1.0"?>
<w:document xmlns:w="http://schemas.openxmlformats.org/wordprocessingml/2006/main">
  <w:body>
    <w:p><w:r><w:t>First paragraph.</w:t></w:r></w:p>
    <w:p><w:r><w:t>Second </w:t></w:r><w:r><w:t>paragraph.</w:t></w:r></w:p>
    <w:p><w:r><w:t>   </w:t></w:r></w:p>
  </w:body>
</w:document>`
	data := buildArchive(t, map[string]string{"word/document.xml": document})

	text, err := Extract("doc.docx", data)
	require.NoError(t, err)
	assert.Equal(t, "First paragraph.\nSecond paragraph.", text)
}

func TestExtract_Pptx(t *testing.T) {
	slide := func(line string) string {
		return `<?xml version="1.0"?>
<p:sld xmlns:a="http://schemas.openxmlformats.org/drawingml/2006/main"
       xmlns:p="http://schemas.openxmlformats.org/presentationml/2006/main">
  <p:cSld><p:spTree><p:sp><p:txBody>
    <a:p><a:r><a:t>` + line + `</a:t></a:r></a:p>
  </p:txBody></p:sp></p:spTree></p:cSld>
</p:sld>`
	}
	data := buildArchive(t, map[string]string{
		"ppt/slides/slide2.xml": slide("Slide two"),
		"ppt/slides/slide1.xml": slide("Slide one"),
	})

	text, err := Extract("deck.pptx", data)
	require.NoError(t, err)
	assert.Equal(t, "Slide one\nSlide two", text)
}

func TestExtract_Xlsx(t *testing.T) {
	data := buildArchive(t, map[string]string{
		"xl/sharedStrings.xml": `<?xml version="1.0"?>
<sst xmlns="http://schemas.openxmlformats.org/spreadsheetml/2006/main">
  <si><t>Name</t></si>
  <si><t>Alice</t></si>
  <si><r><t>Bo</t></r><r><t>b</t></r></si>
</sst>`,
		"xl/workbook.xml": `<?xml version="1.0"?>
<workbook xmlns="http://schemas.openxmlformats.org/spreadsheetml/2006/main"
          xmlns:r="http://schemas.openxmlformats.org/officeDocument/2006/relationships">
  <sheets><sheet name="People" sheetId="1" r:id="rId1"/></sheets>
</workbook>`,
		"xl/_rels/workbook.xml.rels": `<?xml version="1.0"?>
<Relationships xmlns="http://schemas.openxmlformats.org/package/2006/relationships">
  <Relationship Id="rId1" Target="worksheets/sheet1.xml"/>
</Relationships>`,
		"xl/worksheets/sheet1.xml": `<?xml version="1.0"?>
<worksheet xmlns="http://schemas.openxmlformats.org/spreadsheetml/2006/main">
  <sheetData>
    <row><c t="s"><v>0</v></c><c><v>42</v></c></row>
    <row><c t="s"><v>1</v></c><c t="s"><v>2</v></c></row>
    <row></row>
  </sheetData>
</worksheet>`,
	})

	text, err := Extract("sheet.xlsx", data)
	require.NoError(t, err)
	assert.Equal(t, "--- Sheet: People ---\nName | 42\nAlice | Bob", text)
}

func TestExtract_DocxMissingPart(t *testing.T) {
	data := buildArchive(t, map[string]string{"other.xml": "<x/>"})
	_, err := Extract("doc.docx", data)
	require.Error(t, err)
	assert.Equal(t, askerr.ErrCodeParseFailed, askerr.GetCode(err))
}
