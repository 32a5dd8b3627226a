package extract

import (
	"archive/zip"
	"bytes"
	"encoding/xml"
	"fmt"
	"io"
	"path/filepath"
	"regexp"
	"strings"

	pdf "github.com/ledongthuc/pdf"
)

// Text determines the true file type from bytes (sniffing, not trusting
// the declared mime type) and extracts plain text with paragraph breaks
// preserved so downstream chunking can split on them.
// Supported: PDF, DOCX, PPTX, TXT/MD, HTML (strip tags).
func Text(originalName string, mimeType string, data []byte) (string, error) {
	ext := strings.ToLower(filepath.Ext(originalName))
	mt := strings.ToLower(strings.TrimSpace(mimeType))

	if len(data) == 0 {
		return "", fmt.Errorf("empty file: name=%s mime=%s", originalName, mimeType)
	}

	if isPDF(data) {
		return extractPDF(data)
	}
	if isZip(data) {
		kind, err := detectOpenXMLKind(data)
		if err != nil {
			return "", fmt.Errorf("zip/openxml detect failed: %w", err)
		}
		switch kind {
		case "docx":
			return extractDOCX(data)
		case "pptx":
			return extractPPTX(data)
		default:
			return "", fmt.Errorf("unsupported zip/openxml kind=%s name=%s mime=%s", kind, originalName, mimeType)
		}
	}

	if looksLikeHTML(data) || mt == "text/html" || ext == ".html" || ext == ".htm" {
		return extractHTML(string(data)), nil
	}

	if isProbablyText(data) || mt == "text/plain" || ext == ".txt" || ext == ".md" || ext == ".markdown" {
		return normalizeText(string(data)), nil
	}

	// Mime/ext may still claim a supported type; if the magic bytes did not
	// agree, the container is corrupted and a blind parse would only produce
	// a worse error.
	if mt == "application/pdf" || ext == ".pdf" {
		return "", fmt.Errorf("file claims pdf but missing %%PDF header: name=%s mime=%s head=%s", originalName, mimeType, firstBytesHex(data, 16))
	}
	if mt == "application/vnd.openxmlformats-officedocument.wordprocessingml.document" || ext == ".docx" {
		return "", fmt.Errorf("file claims docx but is not a valid zip container: name=%s mime=%s", originalName, mimeType)
	}
	if mt == "application/vnd.openxmlformats-officedocument.presentationml.presentation" || ext == ".pptx" {
		return "", fmt.Errorf("file claims pptx but is not a valid zip container: name=%s mime=%s", originalName, mimeType)
	}

	return "", fmt.Errorf("unsupported file type: name=%s ext=%s mime=%s head=%s", originalName, ext, mimeType, firstBytesHex(data, 16))
}

func isPDF(b []byte) bool {
	return len(b) >= 5 && string(b[:5]) == "%PDF-"
}

func isZip(b []byte) bool {
	return len(b) >= 4 && b[0] == 'P' && b[1] == 'K' && b[2] == 3 && b[3] == 4
}

func looksLikeHTML(b []byte) bool {
	s := strings.ToLower(string(b[:min(len(b), 2048)]))
	trimmed := strings.TrimSpace(s)
	if strings.HasPrefix(trimmed, "<!doctype") || strings.HasPrefix(trimmed, "<html") {
		return true
	}
	return strings.Contains(s, "<html") && strings.Contains(s, "</html>")
}

func isProbablyText(b []byte) bool {
	sample := b[:min(len(b), 4096)]
	good := 0
	for _, c := range sample {
		if c == 0x00 {
			return false
		}
		if c == '\n' || c == '\r' || c == '\t' || (c >= 0x20 && c <= 0x7E) || c >= 0x80 {
			good++
		}
	}
	return float64(good)/float64(len(sample)) > 0.9
}

func firstBytesHex(b []byte, n int) string {
	n = min(len(b), n)
	const hexdigits = "0123456789abcdef"
	out := make([]byte, 0, n*2)
	for i := 0; i < n; i++ {
		out = append(out, hexdigits[b[i]>>4], hexdigits[b[i]&0x0f])
	}
	return string(out)
}

func extractPDF(data []byte) (string, error) {
	r, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", fmt.Errorf("pdf reader: %w", err)
	}
	plain, err := r.GetPlainText()
	if err != nil {
		return "", fmt.Errorf("pdf plaintext: %w", err)
	}
	b, err := io.ReadAll(plain)
	if err != nil {
		return "", fmt.Errorf("pdf read: %w", err)
	}
	return normalizeText(string(b)), nil
}

func detectOpenXMLKind(zipBytes []byte) (string, error) {
	zr, err := zip.NewReader(bytes.NewReader(zipBytes), int64(len(zipBytes)))
	if err != nil {
		return "", err
	}
	hasWord := false
	hasPpt := false
	for _, f := range zr.File {
		if strings.HasPrefix(f.Name, "word/") {
			hasWord = true
		}
		if strings.HasPrefix(f.Name, "ppt/") {
			hasPpt = true
		}
	}
	switch {
	case hasWord && !hasPpt:
		return "docx", nil
	case hasPpt && !hasWord:
		return "pptx", nil
	case hasWord && hasPpt:
		return "unknown", fmt.Errorf("zip contains both word/ and ppt/ parts")
	default:
		return "unknown", fmt.Errorf("zip does not look like docx or pptx")
	}
}

// extractDOCX reads word/document.xml. Text runs (<w:t>) concatenate
// within their paragraph (<w:p>); paragraph ends become blank lines.
func extractDOCX(zipBytes []byte) (string, error) {
	zr, err := zip.NewReader(bytes.NewReader(zipBytes), int64(len(zipBytes)))
	if err != nil {
		return "", err
	}
	f := findZipFile(zr, "word/document.xml")
	if f == nil {
		return "", fmt.Errorf("docx has no word/document.xml")
	}
	raw, err := readZipFile(f)
	if err != nil {
		return "", err
	}
	s := normalizeText(xmlParagraphText(raw, "p"))
	if s == "" {
		return "", fmt.Errorf("no text extracted from docx")
	}
	return s, nil
}

// extractPPTX scans ppt/slides/*.xml; each slide becomes one paragraph of
// its <a:t> runs.
func extractPPTX(zipBytes []byte) (string, error) {
	zr, err := zip.NewReader(bytes.NewReader(zipBytes), int64(len(zipBytes)))
	if err != nil {
		return "", err
	}
	var out strings.Builder
	for _, f := range zr.File {
		if !strings.HasPrefix(f.Name, "ppt/slides/") || !strings.HasSuffix(f.Name, ".xml") {
			continue
		}
		raw, err := readZipFile(f)
		if err != nil {
			return "", err
		}
		slide := collapseSpaces(xmlRunText(raw))
		if slide == "" {
			continue
		}
		out.WriteString(slide)
		out.WriteString("\n\n")
	}
	s := normalizeText(out.String())
	if s == "" {
		return "", fmt.Errorf("no text extracted from pptx")
	}
	return s, nil
}

func findZipFile(zr *zip.Reader, name string) *zip.File {
	for _, f := range zr.File {
		if f.Name == name {
			return f
		}
	}
	return nil
}

func readZipFile(f *zip.File) ([]byte, error) {
	rc, err := f.Open()
	if err != nil {
		return nil, err
	}
	defer rc.Close()
	return io.ReadAll(rc)
}

// xmlParagraphText collects the text of every <t> element, emitting a
// paragraph break whenever an element with the given local name closes.
func xmlParagraphText(xmlBytes []byte, paragraphLocal string) string {
	dec := xml.NewDecoder(bytes.NewReader(xmlBytes))
	var out strings.Builder
	for {
		tok, err := dec.Token()
		if err != nil {
			break
		}
		switch t := tok.(type) {
		case xml.StartElement:
			if t.Name.Local != "t" {
				continue
			}
			var v string
			if err := dec.DecodeElement(&v, &t); err == nil && v != "" {
				out.WriteString(v)
			}
		case xml.EndElement:
			if t.Name.Local == paragraphLocal {
				out.WriteString("\n\n")
			}
		}
	}
	return out.String()
}

func xmlRunText(xmlBytes []byte) string {
	dec := xml.NewDecoder(bytes.NewReader(xmlBytes))
	var out strings.Builder
	for {
		tok, err := dec.Token()
		if err != nil {
			break
		}
		se, ok := tok.(xml.StartElement)
		if !ok || se.Name.Local != "t" {
			continue
		}
		var v string
		if err := dec.DecodeElement(&v, &se); err == nil && v != "" {
			out.WriteString(v)
			out.WriteString(" ")
		}
	}
	return out.String()
}

var (
	htmlTag     = regexp.MustCompile(`(?s)<[^>]*>`)
	blockEnd    = regexp.MustCompile(`(?is)</(p|div|h[1-6]|li|tr|section|article)>|<br\s*/?>`)
	spaceRuns   = regexp.MustCompile(`[ \t\x{00a0}]+`)
	newlineRuns = regexp.MustCompile(`\n{3,}`)
)

func extractHTML(s string) string {
	s = blockEnd.ReplaceAllString(s, "\n\n")
	s = htmlTag.ReplaceAllString(s, " ")
	s = strings.ReplaceAll(s, "&nbsp;", " ")
	s = strings.ReplaceAll(s, "&amp;", "&")
	s = strings.ReplaceAll(s, "&lt;", "<")
	s = strings.ReplaceAll(s, "&gt;", ">")
	return normalizeText(s)
}

// normalizeText collapses horizontal whitespace and trims each line while
// keeping blank lines, so paragraph structure survives for the chunker.
func normalizeText(s string) string {
	s = strings.ReplaceAll(s, "\r\n", "\n")
	s = strings.ReplaceAll(s, "\r", "\n")
	lines := strings.Split(s, "\n")
	for i, line := range lines {
		lines[i] = strings.TrimSpace(spaceRuns.ReplaceAllString(line, " "))
	}
	s = strings.Join(lines, "\n")
	s = newlineRuns.ReplaceAllString(s, "\n\n")
	return strings.TrimSpace(s)
}

func collapseSpaces(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

func min(a, b int) int {
	if a < b {
		return a
	}
	return b
}
