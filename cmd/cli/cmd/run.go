package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/mcpsandbox/mcpsandbox/pkg/types"
)

var (
	runSession string
	runFile    string
	runJSON    bool
)

var runCmd = &cobra.Command{
	Use:   "run [code]",
	Short: "Execute code in a session",
	Long: `Execute code in a sandbox session and print the output.
Pass the code inline or via --file. Omit --session to create a new session.
Example: sbx run 'print("hello")' --session sess_abc123def456`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		var code string
		switch {
		case runFile != "":
			data, err := os.ReadFile(runFile)
			if err != nil {
				return fmt.Errorf("failed to read %s: %w", runFile, err)
			}
			code = string(data)
		case len(args) == 1:
			code = args[0]
		default:
			return fmt.Errorf("provide code inline or via --file")
		}

		ctx, cancel := context.WithTimeout(context.Background(), 180*time.Second)
		defer cancel()

		result, err := newClient().Execute(ctx, types.ExecuteRequest{
			Code:      code,
			SessionID: runSession,
		})
		if err != nil {
			return fmt.Errorf("execute failed: %w", err)
		}

		if runJSON {
			data, _ := json.MarshalIndent(result, "", "  ")
			fmt.Println(string(data))
			return nil
		}

		if result.Stdout != "" {
			fmt.Print(result.Stdout)
		}
		if result.Stderr != "" {
			fmt.Fprint(cmd.ErrOrStderr(), result.Stderr)
		}
		for _, a := range result.Artifacts {
			fmt.Fprintf(cmd.ErrOrStderr(), "artifact: %s (%d bytes)\n", a.Filename, a.SizeBytes)
		}
		if result.ExitCode != 0 {
			return fmt.Errorf("run %s in session %s exited with code %d",
				result.RunID, result.SessionID, result.ExitCode)
		}
		fmt.Fprintf(cmd.ErrOrStderr(), "session: %s\n", result.SessionID)
		return nil
	},
}

func init() {
	runCmd.Flags().StringVar(&runSession, "session", "", "Reuse an existing session")
	runCmd.Flags().StringVar(&runFile, "file", "", "Read code from a file")
	runCmd.Flags().BoolVar(&runJSON, "json", false, "Print the full result as JSON")
	rootCmd.AddCommand(runCmd)
}
