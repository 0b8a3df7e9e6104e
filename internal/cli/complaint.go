package cli

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/Abhayjain-py/deepshield/internal/domain"
)

var (
	complaintText      string
	complaintImpact    string
	complaintSource    string
	complaintIncident  string
	complaintFromDraft bool
)

var complainCmd = &cobra.Command{
	Use:   "complain",
	Short: "File a complaint about detected abuse",
	Long: `Submits a complaint for classification and review. Use --from-draft
to submit the saved draft. A successful submission does not clear the
draft; use 'shieldctl draft clear' for that.`,
	Args: cobra.NoArgs,
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

		var draft domain.ComplaintDraft
		if complaintFromDraft {
			loaded, ok, err := a.client.Drafts().Load(ctx)
			if err != nil {
				return err
			}
			if !ok {
				return fmt.Errorf("no saved draft to submit")
			}
			draft = loaded
		} else {
			draft, err = draftFromFlags()
			if err != nil {
				return err
			}
		}

		receipt, err := a.client.SubmitComplaint(ctx, draft)
		if err != nil {
			return err
		}
		fmt.Printf("Complaint filed. Case number: %s\n", receipt.CaseNumber)
		fmt.Printf("Classified as %s (%.1f%% confidence)\n",
			receipt.Classification.Category, receipt.Classification.Confidence)
		return nil
	},
}

var draftCmd = &cobra.Command{
	Use:   "draft",
	Short: "Manage the saved complaint draft",
}

var draftSaveCmd = &cobra.Command{
	Use:   "save",
	Short: "Save or overwrite the complaint draft",
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

		draft, err := draftFromFlags()
		if err != nil {
			return err
		}
		if err := a.client.Drafts().Save(ctx, draft); err != nil {
			return err
		}
		fmt.Println("Draft saved.")
		return nil
	},
}

var draftShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show the saved complaint draft",
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

		draft, ok, err := a.client.Drafts().Load(ctx)
		if err != nil {
			return err
		}
		if !ok {
			fmt.Println("No draft saved.")
			return nil
		}
		fmt.Printf("Saved %s\n", draft.SavedAt.Local().Format("2006-01-02 15:04:05"))
		fmt.Println(draft.Text)
		if draft.SourceURL != "" {
			fmt.Println("Source:", draft.SourceURL)
		}
		if draft.ImpactLevel != "" {
			fmt.Println("Impact:", draft.ImpactLevel)
		}
		if draft.IncidentDate != nil {
			fmt.Println("Incident date:", draft.IncidentDate.Format("2006-01-02"))
		}
		return nil
	},
}

var draftClearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Delete the saved complaint draft",
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

		if err := a.client.Drafts().Clear(ctx); err != nil {
			return err
		}
		fmt.Println("Draft cleared.")
		return nil
	},
}

func draftFromFlags() (domain.ComplaintDraft, error) {
	if complaintText == "" {
		return domain.ComplaintDraft{}, fmt.Errorf("--text is required")
	}
	draft := domain.ComplaintDraft{
		Text:        complaintText,
		SourceURL:   complaintSource,
		ImpactLevel: domain.ImpactLevel(complaintImpact),
	}
	if complaintIncident != "" {
		parsed, err := time.Parse("2006-01-02", complaintIncident)
		if err != nil {
			return domain.ComplaintDraft{}, fmt.Errorf("--incident-date must be YYYY-MM-DD")
		}
		draft.IncidentDate = &parsed
	}
	return draft, nil
}

func init() {
	for _, cmd := range []*cobra.Command{complainCmd, draftSaveCmd} {
		cmd.Flags().StringVar(&complaintText, "text", "", "complaint text")
		cmd.Flags().StringVar(&complaintImpact, "impact", "", "impact level (low|medium|high|critical)")
		cmd.Flags().StringVar(&complaintSource, "source-url", "", "where the content was found")
		cmd.Flags().StringVar(&complaintIncident, "incident-date", "", "when the incident happened (YYYY-MM-DD)")
	}
	complainCmd.Flags().BoolVar(&complaintFromDraft, "from-draft", false, "submit the saved draft")

	draftCmd.AddCommand(draftSaveCmd)
	draftCmd.AddCommand(draftShowCmd)
	draftCmd.AddCommand(draftClearCmd)
	rootCmd.AddCommand(complainCmd)
	rootCmd.AddCommand(draftCmd)
}
