package app

import (
	"fmt"

	"github.com/kart-io/version"
	"github.com/spf13/cobra"

	"github.com/kart-io/megaservice/pkg/utils/json"
)

// GetVersion returns the version string.
func GetVersion() string {
	return version.Get().GitVersion
}

// newVersionCommand 返回打印构建信息的 version 子命令。
func newVersionCommand() *cobra.Command {
	var short bool
	cmd := &cobra.Command{
		Use:   "version",
		Short: "Print the version information",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			info := version.Get()
			if short {
				fmt.Fprintln(cmd.OutOrStdout(), info.GitVersion)
				return nil
			}
			out, err := json.MarshalIndent(info, "", "  ")
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), string(out))
			return nil
		},
	}
	cmd.Flags().BoolVar(&short, "short", false, "Print just the version number")
	return cmd
}
