package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

var dashboardCmd = &cobra.Command{
	Use:   "dashboard",
	Short: "Show your protection dashboard",
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

		dash, err := a.client.Dashboard(ctx)
		if err != nil {
			return err
		}

		fmt.Printf("Dashboard for %s\n", dash.Email)
		fmt.Printf("  Protection score: %d\n", dash.Stats.ProtectionScore)
		fmt.Printf("  Uploads: %d (%d flagged as deepfakes)\n",
			dash.Stats.TotalUploads, dash.Stats.DeepfakeCount)
		fmt.Printf("  Complaints: %d\n", dash.Stats.ComplaintCount)

		if len(dash.Uploads) > 0 {
			fmt.Println("\nRecent analyses:")
			for _, u := range dash.Uploads {
				fmt.Printf("  %s  %s  %s (%.1f%%)\n",
					u.CreatedAt.Local().Format("2006-01-02 15:04"),
					u.Filename, u.Verdict, u.ConfidenceScore)
			}
		}
		if len(dash.Complaints) > 0 {
			fmt.Println("\nRecent complaints:")
			for _, c := range dash.Complaints {
				fmt.Printf("  %s  %s  %s  %s\n",
					c.CreatedAt.Local().Format("2006-01-02 15:04"),
					c.CaseNumber, c.Category, c.Status)
			}
		}
		return nil
	},
}

var profileCmd = &cobra.Command{
	Use:   "profile",
	Short: "Show your account information",
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

		profile, err := a.client.Profile(ctx)
		if err != nil {
			return err
		}
		fmt.Println("Email:", profile.Email)
		fmt.Println("Member since:", profile.MemberSince.Local().Format("2006-01-02"))
		if profile.LastLogin != nil {
			fmt.Println("Last login:", profile.LastLogin.Local().Format("2006-01-02 15:04:05"))
		}
		fmt.Println("Logins:", profile.LoginCount)
		return nil
	},
}

var healthCmd = &cobra.Command{
	Use:   "health",
	Short: "Check whether the backend is reachable",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		a, err := newApp(ctx, false)
		if err != nil {
			return err
		}
		defer a.Close()

		if err := a.client.Health(ctx); err != nil {
			return err
		}
		fmt.Println("Backend is healthy.")
		return nil
	},
}

func init() {
	rootCmd.AddCommand(dashboardCmd)
	rootCmd.AddCommand(profileCmd)
	rootCmd.AddCommand(healthCmd)
}
