package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/fpang/videointel/internal/cli"
)

var doctorCmd = &cobra.Command{
	Use:   "doctor",
	Short: "Check that ffmpeg, ffprobe, and the configured backends are available",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		fmt.Println("videointel", version)
		checks := cli.NewDoctor().Run(cmd.Context(), cfg)
		if !cli.PrintChecks(os.Stdout, checks) {
			return errors.New("some checks failed")
		}
		return nil
	},
}
