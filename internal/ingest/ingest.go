package ingest

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"kotoba/internal/textnorm"
)

type Origin string

const (
	OriginTyped Origin = "typed"
	OriginFile  Origin = "file"
)

// Document is the raw material handed to the generation pipeline.
type Document struct {
	Text   string
	Origin Origin
	Name   string
}

// Error reports a file that could not be turned into text.
type Error struct {
	Path string
	Err  error
}

func (e *Error) Error() string {
	return fmt.Sprintf("ファイルを読み込めませんでした（%s）：%v", e.Path, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

var ErrUnsupported = errors.New("未対応のファイル形式です")

// Extensions lists the file types FromFile understands.
var Extensions = []string{".txt", ".docx", ".md"}

// Supported reports whether path has an extension FromFile can read.
func Supported(path string) bool {
	ext := strings.ToLower(filepath.Ext(path))
	for _, e := range Extensions {
		if e == ext {
			return true
		}
	}
	return false
}

// FromText wraps typed input. Whitespace runs are collapsed.
func FromText(text string) Document {
	return Document{Text: textnorm.CollapseSpaces(text), Origin: OriginTyped}
}

func FromFile(path string) (Document, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Document{}, &Error{Path: path, Err: err}
	}
	return FromBytes(path, data)
}

// FromBytes decodes data according to the extension of name.
func FromBytes(name string, data []byte) (Document, error) {
	var (
		text string
		err  error
	)
	switch strings.ToLower(filepath.Ext(name)) {
	case ".txt":
		text = decodeText(data)
	case ".docx":
		text, err = decodeDocx(data)
	case ".md":
		text = decodeMarkdown(data)
	default:
		err = ErrUnsupported
	}
	if err != nil {
		return Document{}, &Error{Path: name, Err: err}
	}
	return Document{Text: text, Origin: OriginFile, Name: filepath.Base(name)}, nil
}

func decodeText(data []byte) string {
	s := strings.TrimPrefix(string(data), "\ufeff")
	return strings.ToValidUTF8(s, "\uFFFD")
}
