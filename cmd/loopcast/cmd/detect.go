package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/jmylchreest/loopcast/internal/ffmpeg"
)

var detectCmd = &cobra.Command{
	Use:   "detect",
	Short: "Locate ffmpeg and print its version",
	Long: `Locate the ffmpeg binary the way the server does (ffmpeg.binary_path,
then LOOPCAST_FFMPEG_BINARY, then PATH) and print what was found as JSON.`,
	RunE: runDetect,
}

func init() {
	rootCmd.AddCommand(detectCmd)
	detectCmd.Flags().Duration("timeout", 10*time.Second, "detection timeout")
}

func runDetect(cmd *cobra.Command, _ []string) error {
	timeout, _ := cmd.Flags().GetDuration("timeout")
	ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
	defer cancel()

	info, err := ffmpeg.Detect(ctx, cfg.FFmpeg.BinaryPath)
	if err != nil {
		return err
	}
	data, err := json.MarshalIndent(info, "", "  ")
	if err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), string(data))
	return nil
}
