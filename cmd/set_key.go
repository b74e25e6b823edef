package cmd

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"kotoba/internal/config"
)

func newSetCmd(stdout io.Writer, flags *genFlags) *cobra.Command {
	setCmd := &cobra.Command{
		Use:           "set",
		Short:         "設定を変更",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	keyCmd := &cobra.Command{
		Use:           "key <api_key>",
		Short:         "API キーを ~/.kotoba/.env に保存",
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			key := strings.TrimSpace(args[0])
			if key == "" {
				return fmt.Errorf("API キーが空です")
			}
			cwd, err := os.Getwd()
			if err != nil {
				return fmt.Errorf("カレントディレクトリを取得できません：%w", err)
			}
			cfg, paths, err := config.Load(flags.configArg, cwd)
			if err != nil {
				return err
			}
			if p := strings.TrimSpace(flags.providerArg); p != "" {
				cfg.Provider = strings.ToLower(p)
				if err := cfg.Validate(); err != nil {
					return err
				}
			}
			name := cfg.KeyEnv()
			if err := config.UpsertEnvVar(paths.EnvPath, name, key); err != nil {
				return err
			}
			fmt.Fprintf(stdout, "%s を保存しました：%s\n", name, paths.EnvPath)
			return nil
		},
	}
	setCmd.AddCommand(keyCmd)
	return setCmd
}
