package discovery

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"kotoba/internal/ingest"
)

type Result struct {
	Files    []string
	Warnings []string
}

// Discover expands the given files and directories into the list of source
// documents to process. Directories are walked recursively, skipping hidden ones.
func Discover(inputs []string) (Result, error) {
	if len(inputs) == 0 {
		return Result{}, fmt.Errorf("入力ファイルが指定されていません")
	}
	set := map[string]struct{}{}
	warnings := []string{}

	for _, in := range inputs {
		if strings.TrimSpace(in) == "" {
			continue
		}
		st, err := os.Stat(in)
		if err != nil {
			return Result{}, fmt.Errorf("入力パスが無効です（%s）：%w", in, err)
		}
		if st.IsDir() {
			files, warns, err := scanDir(in)
			if err != nil {
				return Result{}, err
			}
			warnings = append(warnings, warns...)
			for _, p := range files {
				set[p] = struct{}{}
			}
			continue
		}
		if !ingest.Supported(in) {
			return Result{}, fmt.Errorf("未対応のファイル形式です（%s）：%s のみ読み込めます", in, strings.Join(ingest.Extensions, " / "))
		}
		set[in] = struct{}{}
	}

	files := make([]string, 0, len(set))
	for p := range set {
		files = append(files, p)
	}
	sort.Strings(files)
	if len(files) == 0 {
		return Result{}, fmt.Errorf("読み込める原稿ファイルが見つかりません")
	}
	return Result{Files: files, Warnings: warnings}, nil
}

func scanDir(root string) ([]string, []string, error) {
	out := []string{}
	warnings := []string{}

	err := filepath.WalkDir(root, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if strings.HasPrefix(d.Name(), ".") && path != root {
				return filepath.SkipDir
			}
			return nil
		}
		if !ingest.Supported(path) || strings.HasPrefix(d.Name(), "~$") {
			return nil
		}
		info, infoErr := d.Info()
		if infoErr != nil {
			warnings = append(warnings, fmt.Sprintf("読み込めないため飛ばしました：%s", path))
			return nil
		}
		if info.Size() == 0 {
			warnings = append(warnings, fmt.Sprintf("空のファイルを飛ばしました：%s", path))
			return nil
		}
		out = append(out, path)
		return nil
	})
	if err != nil {
		return nil, nil, fmt.Errorf("ディレクトリを走査できません（%s）：%w", root, err)
	}
	return out, warnings, nil
}
