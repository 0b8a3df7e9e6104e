package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

var detectCmd = &cobra.Command{
	Use:   "detect <file>",
	Short: "Upload a media file for deepfake analysis",
	Long: `Uploads the file for analysis. On success the result is stored for
the 'results' command to display, so it is not recomputed (and the file
not re-uploaded) merely to view it again.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		a, err := newApp(ctx, true)
		if err != nil {
			return err
		}
		defer a.Close()

		if err := a.requireSession(); err != nil {
			return err
		}

		result, err := a.client.Detect(ctx, args[0])
		if err != nil {
			return err
		}
		fmt.Printf("Verdict: %s (%.1f%% confidence)\n", result.Verdict, result.ConfidenceScore)
		fmt.Println("Run 'shieldctl results' for details.")
		return nil
	},
}

var resultsCmd = &cobra.Command{
	Use:   "results",
	Short: "Show the pending analysis result",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		a, err := newApp(ctx, true)
		if err != nil {
			return err
		}
		defer a.Close()

		if err := a.requireSession(); err != nil {
			return err
		}

		result, ok, err := a.client.Results(ctx)
		if err != nil {
			return err
		}
		if !ok {
			fmt.Println("No analysis is pending. Run 'shieldctl detect <file>' first.")
			return nil
		}

		fmt.Printf("File:       %s (%d bytes, %s)\n",
			result.OriginalFile.Name, result.OriginalFile.ByteSize, result.OriginalFile.MimeType)
		fmt.Printf("Verdict:    %s\n", result.Verdict)
		fmt.Printf("Confidence: %.1f%%\n", result.ConfidenceScore)
		if result.TransientHandle == nil {
			// The original media handle did not survive into this process;
			// the descriptor above is all that can be shown.
			fmt.Println("(original file no longer attached; preview unavailable)")
		}
		return nil
	},
}

var anotherCmd = &cobra.Command{
	Use:   "another",
	Short: "Clear the pending result to analyze another file",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		a, err := newApp(ctx, true)
		if err != nil {
			return err
		}
		defer a.Close()

		if err := a.requireSession(); err != nil {
			return err
		}

		if err := a.client.AnalyzeAnother(ctx); err != nil {
			return err
		}
		fmt.Println("Pending result cleared.")
		return nil
	},
}

func init() {
	rootCmd.AddCommand(detectCmd)
	rootCmd.AddCommand(resultsCmd)
	rootCmd.AddCommand(anotherCmd)
}
