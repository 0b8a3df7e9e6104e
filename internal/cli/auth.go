package cli

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
)

var loginCmd = &cobra.Command{
	Use:   "login [email]",
	Short: "Sign in with a one-time passcode",
	Long: `Requests a one-time passcode for the address, then prompts for the
code to complete sign-in. The challenge is scoped to this invocation;
the resulting session is shared with every shieldctl process.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		a, err := newApp(ctx, false)
		if err != nil {
			return err
		}
		defer a.Close()

		reader := bufio.NewReader(os.Stdin)

		var identifier string
		if len(args) == 1 {
			identifier = args[0]
		} else {
			fmt.Print("Email address: ")
			line, err := reader.ReadString('\n')
			if err != nil {
				return err
			}
			identifier = strings.TrimSpace(line)
		}

		if err := a.client.Login(ctx, identifier); err != nil {
			return err
		}
		fmt.Println("A one-time passcode has been sent to", identifier)

		fmt.Print("Passcode: ")
		line, err := reader.ReadString('\n')
		if err != nil {
			return err
		}
		passcode := strings.TrimSpace(line)

		sess, err := a.client.Verify(ctx, identifier, passcode)
		if err != nil {
			return err
		}
		fmt.Printf("Signed in as %s (session valid until %s)\n",
			sess.SubjectIdentifier, sess.ExpiresAt.Local().Format("15:04:05"))
		return nil
	},
}

var logoutCmd = &cobra.Command{
	Use:   "logout",
	Short: "End the session everywhere",
	Long: `Clears the session, any pending analysis result and any saved
complaint draft. Other running shieldctl processes observe the logout
at their next poll.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		a, err := newApp(ctx, false)
		if err != nil {
			return err
		}
		defer a.Close()

		if err := a.client.Logout(ctx); err != nil {
			return err
		}
		fmt.Println("Signed out.")
		return nil
	},
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the current session",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd.Context(), false)
		if err != nil {
			return err
		}
		defer a.Close()

		sessions := a.client.Sessions()
		sess, ok := sessions.Current()
		if !ok {
			fmt.Println("Not signed in.")
			return nil
		}
		if !sessions.IsValid() {
			fmt.Printf("Session for %s has expired.\n", sess.SubjectIdentifier)
			return nil
		}
		fmt.Printf("Signed in as %s (valid until %s)\n",
			sess.SubjectIdentifier, sess.ExpiresAt.Local().Format("2006-01-02 15:04:05"))
		return nil
	},
}

func init() {
	rootCmd.AddCommand(loginCmd)
	rootCmd.AddCommand(logoutCmd)
	rootCmd.AddCommand(statusCmd)
}
