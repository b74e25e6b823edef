package export

import (
	"archive/zip"
	"bytes"
	"encoding/xml"
	"fmt"
	"path/filepath"
	"strings"
)

type Mode string

const (
	ModeText Mode = ".txt"
	ModeDocx Mode = ".docx"
)

// ParseMode accepts "txt", ".txt", "docx" and ".docx" in any case.
func ParseMode(s string) (Mode, error) {
	v := strings.ToLower(strings.TrimSpace(s))
	if v != "" && !strings.HasPrefix(v, ".") {
		v = "." + v
	}
	switch Mode(v) {
	case ModeText, ModeDocx:
		return Mode(v), nil
	case "":
		return ModeText, nil
	default:
		return "", fmt.Errorf("未対応の保存形式です：%s", s)
	}
}

// DefaultName is used when neither base nor fallback leaves a usable stem.
const DefaultName = "newspaper"

// FileName joins base and the mode extension, dropping any extension base
// already had. A base that is only an extension falls back to fallback.
func FileName(base, fallback string, mode Mode) string {
	stem := fileStem(base)
	if stem == "" {
		stem = fileStem(fallback)
	}
	if stem == "" {
		stem = DefaultName
	}
	return stem + string(mode)
}

func fileStem(name string) string {
	name = strings.TrimSpace(name)
	return strings.TrimSpace(strings.TrimSuffix(name, filepath.Ext(name)))
}

// Render encodes text for writing in the given mode.
func Render(text string, mode Mode) ([]byte, error) {
	switch mode {
	case ModeText:
		return []byte(text), nil
	case ModeDocx:
		return renderDocx(text)
	default:
		return nil, fmt.Errorf("未対応の保存形式です：%s", mode)
	}
}

const (
	contentTypesXML = `<?xml version="1.0" encoding="UTF-8" standalone="yes"?>
<Types xmlns="http://schemas.openxmlformats.org/package/2006/content-types"><Default Extension="rels" ContentType="application/vnd.openxmlformats-package.relationships+xml"/><Default Extension="xml" ContentType="application/xml"/><Override PartName="/word/document.xml" ContentType="application/vnd.openxmlformats-officedocument.wordprocessingml.document.main+xml"/></Types>`
	relsXML = `<?xml version="1.0" encoding="UTF-8" standalone="yes"?>
<Relationships xmlns="http://schemas.openxmlformats.org/package/2006/relationships"><Relationship Id="rId1" Type="http://schemas.openxmlformats.org/officeDocument/2006/relationships/officeDocument" Target="word/document.xml"/></Relationships>`
	documentHead = `<?xml version="1.0" encoding="UTF-8" standalone="yes"?>
<w:document xmlns:w="http://schemas.openxmlformats.org/wordprocessingml/2006/main"><w:body><w:p><w:r><w:t xml:space="preserve">`
	documentTail = `</w:t></w:r></w:p></w:body></w:document>`
)

// renderDocx writes a single-paragraph WordprocessingML package.
func renderDocx(text string) ([]byte, error) {
	var body bytes.Buffer
	body.WriteString(documentHead)
	if err := xml.EscapeText(&body, []byte(text)); err != nil {
		return nil, err
	}
	body.WriteString(documentTail)

	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	parts := []struct {
		name string
		data []byte
	}{
		{"[Content_Types].xml", []byte(contentTypesXML)},
		{"_rels/.rels", []byte(relsXML)},
		{"word/document.xml", body.Bytes()},
	}
	for _, p := range parts {
		w, err := zw.Create(p.name)
		if err != nil {
			return nil, err
		}
		if _, err := w.Write(p.data); err != nil {
			return nil, err
		}
	}
	if err := zw.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
