package cmd

import (
	"context"
	"encoding/base64"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"github.com/mcpsandbox/mcpsandbox/pkg/types"
)

var (
	uploadSession   string
	uploadName      string
	uploadOverwrite bool
)

var uploadCmd = &cobra.Command{
	Use:   "upload <file>",
	Short: "Upload a data file into a session",
	Long: `Upload a local file to /mnt/data/ inside a sandbox session.
Omit --session to create a new session.
Example: sbx upload sales.csv --session sess_abc123def456`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		data, err := os.ReadFile(args[0])
		if err != nil {
			return fmt.Errorf("failed to read %s: %w", args[0], err)
		}

		name := uploadName
		if name == "" {
			name = filepath.Base(args[0])
		}

		ctx, cancel := context.WithTimeout(context.Background(), 120*time.Second)
		defer cancel()

		result, err := newClient().Upload(ctx, types.UploadRequest{
			Filename:      name,
			ContentBase64: base64.StdEncoding.EncodeToString(data),
			SessionID:     uploadSession,
			Overwrite:     uploadOverwrite,
		})
		if err != nil {
			return fmt.Errorf("upload failed: %w", err)
		}

		fmt.Printf("session: %s\npath:    %s\n", result.SessionID, result.Path)
		return nil
	},
}

func init() {
	uploadCmd.Flags().StringVar(&uploadSession, "session", "", "Reuse an existing session")
	uploadCmd.Flags().StringVar(&uploadName, "name", "", "Filename inside the sandbox (defaults to the local basename)")
	uploadCmd.Flags().BoolVar(&uploadOverwrite, "overwrite", false, "Replace an existing file with the same name")
	rootCmd.AddCommand(uploadCmd)
}
