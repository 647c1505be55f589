package cmd

import (
	"fmt"
	"os"
	"path"
	"strings"

	"github.com/spf13/cobra"
	"github.com/tanq16/parcel/internal/output"
	"github.com/tanq16/parcel/internal/storage"
	"github.com/tanq16/parcel/internal/utils"
	"github.com/tanq16/parcel/internal/validate"
)

func newCleanCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "clean [path]",
		Short: "Clean up temporary segment files",
		Long: `Remove leftover segment files. With a file path only that file's segments
are removed; with a directory (or nothing) every temporary file in it goes.`,
		Args: cobra.MaximumNArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			root, err := storage.NewOS(cfg.Root)
			if err != nil {
				output.PrintError(err.Error())
				os.Exit(1)
			}
			dir, base := "", ""
			if len(args) == 1 && args[0] != "." {
				cleaned, err := validate.SanitizePath(args[0])
				if err != nil {
					output.PrintError(err.Error())
					os.Exit(1)
				}
				if strings.HasSuffix(args[0], "/") {
					dir = cleaned
				} else {
					dir, base = path.Dir(cleaned), path.Base(cleaned)
				}
			}
			removed, err := root.CleanTemp(dir, base)
			if err != nil {
				output.PrintError(fmt.Sprintf("Error cleaning up temporary files: %v", err))
				os.Exit(1)
			}
			output.PrintSuccess(fmt.Sprintf("Removed %d temporary files from %s", removed, root.LocalPath(path.Join(dir, utils.TempDirName))))
		},
	}
}
