package output

import (
	"crypto/rand"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

const alphabet = "0123456789abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ"

const suffixLen = 6

func EnsureDir(dir string) error {
	if dir == "" {
		return fmt.Errorf("出力先ディレクトリが空です")
	}
	return os.MkdirAll(dir, 0o755)
}

// WriteNew writes data to dir/name. When that file already exists a random
// suffix is added before the extension; an existing file is never replaced.
func WriteNew(dir, name string, data []byte, randSrc io.Reader) (string, error) {
	if err := EnsureDir(dir); err != nil {
		return "", err
	}
	if randSrc == nil {
		randSrc = rand.Reader
	}
	ext := filepath.Ext(name)
	stem := strings.TrimSuffix(name, ext)
	candidate := filepath.Join(dir, name)
	for i := 0; i < 1000; i++ {
		err := writeExclusive(candidate, data)
		if err == nil {
			return candidate, nil
		}
		if !errors.Is(err, fs.ErrExist) {
			return "", fmt.Errorf("ファイルを書き込めません（%s）：%w", candidate, err)
		}
		id, err := randomID(suffixLen, randSrc)
		if err != nil {
			return "", err
		}
		candidate = filepath.Join(dir, fmt.Sprintf("%s_%s%s", stem, id, ext))
	}
	return "", fmt.Errorf("重複しないファイル名を作れませんでした")
}

var createExclusive = func(path string) (io.WriteCloser, error) {
	return os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
}

// writeExclusive creates path and writes data; a failed write removes the
// partial file.
func writeExclusive(path string, data []byte) error {
	f, err := createExclusive(path)
	if err != nil {
		return err
	}
	if _, err := f.Write(data); err != nil {
		_ = f.Close()
		_ = os.Remove(path)
		return err
	}
	if err := f.Close(); err != nil {
		_ = os.Remove(path)
		return err
	}
	return nil
}

func randomID(n int, randSrc io.Reader) (string, error) {
	buf := make([]byte, n)
	if _, err := io.ReadFull(randSrc, buf); err != nil {
		return "", fmt.Errorf("乱数を読み込めません：%w", err)
	}
	out := make([]byte, n)
	for i, b := range buf {
		out[i] = alphabet[int(b)%len(alphabet)]
	}
	return string(out), nil
}
