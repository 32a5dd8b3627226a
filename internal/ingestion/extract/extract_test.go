package extract

import (
	"archive/zip"
	"bytes"
	"strings"
	"testing"
)

func buildZip(t *testing.T, files map[string]string) []byte {
	t.Helper()
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	for name, content := range files {
		w, err := zw.Create(name)
		if err != nil {
			t.Fatalf("zip create %s: %v", name, err)
		}
		if _, err := w.Write([]byte(content)); err != nil {
			t.Fatalf("zip write %s: %v", name, err)
		}
	}
	if err := zw.Close(); err != nil {
		t.Fatalf("zip close: %v", err)
	}
	return buf.Bytes()
}

func TestPlaintextKeepsParagraphBreaks(t *testing.T) {
	data := []byte("第一段内容。\r\n\r\n  第二段内容。  \n\n\n\n第三段内容。")
	got, err := Text("notes.txt", "text/plain", data)
	if err != nil {
		t.Fatalf("Text: %v", err)
	}
	want := "第一段内容。\n\n第二段内容。\n\n第三段内容。"
	if got != want {
		t.Fatalf("want=%q got=%q", want, got)
	}
}

func TestEmptyFile(t *testing.T) {
	if _, err := Text("empty.txt", "text/plain", nil); err == nil {
		t.Fatalf("want error for empty file")
	}
}

func TestHTMLStripsTagsAndKeepsBlocks(t *testing.T) {
	html := `<!DOCTYPE html><html><body><p>First paragraph.</p><p>Second &amp; last.</p></body></html>`
	got, err := Text("page.html", "text/html", []byte(html))
	if err != nil {
		t.Fatalf("Text: %v", err)
	}
	if strings.Contains(got, "<") {
		t.Fatalf("tags survived: %q", got)
	}
	if !strings.Contains(got, "First paragraph.") || !strings.Contains(got, "Second & last.") {
		t.Fatalf("text lost: %q", got)
	}
	if !strings.Contains(got, "\n\n") {
		t.Fatalf("block boundary lost: %q", got)
	}
}

func TestDOCXParagraphs(t *testing.T) {
	doc := `<?xml version="1.0"?>
<w:document xmlns:w="http://schemas.openxmlformats.org/wordprocessingml/2006/main">
  <w:body>
    <w:p><w:r><w:t>课程简介</w:t></w:r><w:r><w:t>第一章。</w:t></w:r></w:p>
    <w:p><w:r><w:t>第二章内容。</w:t></w:r></w:p>
  </w:body>
</w:document>`
	data := buildZip(t, map[string]string{"word/document.xml": doc})

	got, err := Text("syllabus.docx", "", data)
	if err != nil {
		t.Fatalf("Text: %v", err)
	}
	want := "课程简介第一章。\n\n第二章内容。"
	if got != want {
		t.Fatalf("want=%q got=%q", want, got)
	}
}

func TestPPTXSlidesBecomeParagraphs(t *testing.T) {
	slide := func(text string) string {
		return `<?xml version="1.0"?>
<p:sld xmlns:a="http://schemas.openxmlformats.org/drawingml/2006/main"
       xmlns:p="http://schemas.openxmlformats.org/presentationml/2006/main">
  <a:t>` + text + `</a:t>
</p:sld>`
	}
	data := buildZip(t, map[string]string{
		"ppt/slides/slide1.xml": slide("幻灯片一"),
		"ppt/slides/slide2.xml": slide("幻灯片二"),
	})

	got, err := Text("deck.pptx", "", data)
	if err != nil {
		t.Fatalf("Text: %v", err)
	}
	if !strings.Contains(got, "幻灯片一") || !strings.Contains(got, "幻灯片二") {
		t.Fatalf("slide text lost: %q", got)
	}
	if !strings.Contains(got, "\n\n") {
		t.Fatalf("slides should be separate paragraphs: %q", got)
	}
}

func TestZipThatIsNeitherDocxNorPptx(t *testing.T) {
	data := buildZip(t, map[string]string{"random.txt": "hello"})
	if _, err := Text("archive.zip", "application/zip", data); err == nil {
		t.Fatalf("want error for unrecognized zip")
	}
}

func TestClaimedPDFWithoutHeader(t *testing.T) {
	data := []byte{0x00, 0x01, 0x02, 0x03, 0x04}
	if _, err := Text("fake.pdf", "application/pdf", data); err == nil {
		t.Fatalf("want error for fake pdf")
	}
}

func TestUnknownBinary(t *testing.T) {
	data := bytes.Repeat([]byte{0x00, 0xff}, 64)
	if _, err := Text("blob.bin", "application/octet-stream", data); err == nil {
		t.Fatalf("want error for unknown binary")
	}
}
