package cmd

import (
	"os"

	"github.com/spf13/cobra"
	"github.com/tanq16/parcel/internal/output"
)

func newGetCmd() *cobra.Command {
	var outputPath string

	cmd := &cobra.Command{
		Use:   "get [URL] [--output OUTPUT_PATH]",
		Short: "Download a file via HTTP/HTTPS",
		Long: `Download a single file. Large files on servers that accept byte ranges are
fetched over several connections and reassembled.

Examples:
  parcel get https://example.com/image.iso
  parcel get example.com/archive.tar.gz -o archives/
  parcel get https://example.com/data.bin -o data/latest.bin -s 8`,
		Args: cobra.ExactArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			jobs, err := resolveLink(cmd.Context(), args[0], outputPath)
			if err != nil {
				output.PrintError(err.Error())
				os.Exit(1)
			}
			if err := runJobs(cmd.Context(), jobs); err != nil {
				os.Exit(1)
			}
		},
	}

	cmd.Flags().StringVarP(&outputPath, "output", "o", "", "Output file path, or directory ending in '/' (name inferred if not provided)")
	return cmd
}
