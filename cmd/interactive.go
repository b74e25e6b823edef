package cmd

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"kotoba/internal/app"
)

func newInteractiveCmd(stdout, stderr io.Writer, flags *genFlags) *cobra.Command {
	return &cobra.Command{
		Use:           "interactive",
		Aliases:       []string{"i"},
		Short:         "対話モードで生成・編集・保存を繰り返す",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			cwd, err := os.Getwd()
			if err != nil {
				return fmt.Errorf("カレントディレクトリを取得できません：%w", err)
			}
			return app.Interactive(cmd.Context(), flags.options(stdout, stderr, cwd))
		},
	}
}
