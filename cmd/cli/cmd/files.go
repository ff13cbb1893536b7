package cmd

import (
	"context"
	"encoding/base64"
	"fmt"
	"os"
	"path"
	"time"

	"github.com/spf13/cobra"
)

var listCmd = &cobra.Command{
	Use:   "list <session-id>",
	Short: "List files in a session's data directory",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		result, err := newClient().List(ctx, args[0])
		if err != nil {
			return fmt.Errorf("list failed: %w", err)
		}

		for _, a := range result.Artifacts {
			fmt.Printf("%-40s %10d  %s\n", a.Filename, a.SizeBytes, a.MimeType)
		}
		return nil
	},
}

var readCmd = &cobra.Command{
	Use:   "read <session-id> <path>",
	Short: "Print an artifact's contents to stdout",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := context.WithTimeout(context.Background(), 120*time.Second)
		defer cancel()

		result, err := newClient().Read(ctx, args[0], args[1])
		if err != nil {
			return fmt.Errorf("read failed: %w", err)
		}
		data, err := base64.StdEncoding.DecodeString(result.ContentBase64)
		if err != nil {
			return fmt.Errorf("failed to decode %s: %w", result.Filename, err)
		}
		_, err = cmd.OutOrStdout().Write(data)
		return err
	},
}

var downloadOutput string

var downloadCmd = &cobra.Command{
	Use:   "download <session-id> <filename>",
	Short: "Download an artifact from a session",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := context.WithTimeout(context.Background(), 120*time.Second)
		defer cancel()

		data, err := newClient().Download(ctx, args[0], args[1])
		if err != nil {
			return fmt.Errorf("download failed: %w", err)
		}

		out := downloadOutput
		if out == "" {
			out = path.Base(args[1])
		}
		if err := os.WriteFile(out, data, 0o644); err != nil {
			return fmt.Errorf("failed to write %s: %w", out, err)
		}
		fmt.Printf("wrote %s (%d bytes)\n", out, len(data))
		return nil
	},
}

var closeCmd = &cobra.Command{
	Use:   "close <session-id>",
	Short: "Destroy a session and its container",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		result, err := newClient().Close(ctx, args[0])
		if err != nil {
			return fmt.Errorf("close failed: %w", err)
		}
		fmt.Println(result.Status)
		return nil
	},
}

func init() {
	downloadCmd.Flags().StringVarP(&downloadOutput, "output", "o", "", "Local output path")
	rootCmd.AddCommand(listCmd, readCmd, downloadCmd, closeCmd)
}
