package cmd

import (
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/jmylchreest/loopcast/internal/service"
	"github.com/jmylchreest/loopcast/pkg/format"
)

var mediaCmd = &cobra.Command{
	Use:   "media [dir]",
	Short: "List video files that can be streamed",
	Long: `List the .mp4, .avi and .mkv files under dir, or under
streaming.media_dir when no dir is given.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runMedia,
}

func init() {
	rootCmd.AddCommand(mediaCmd)
}

func runMedia(cmd *cobra.Command, args []string) error {
	dir := cfg.Streaming.MediaDir
	if len(args) == 1 {
		dir = args[0]
	}

	files, err := service.NewMediaService(dir).List(cmd.Context())
	if err != nil {
		return err
	}

	now := time.Now()
	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "PATH\tSIZE\tMODIFIED")
	for _, f := range files {
		fmt.Fprintf(w, "%s\t%s\t%s\n", f.Path, format.Bytes(f.Size), format.Relative(f.ModTime, now))
	}
	return w.Flush()
}
