package auth

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/crucial707/hci-auth/cmd/cli/client"
	"github.com/crucial707/hci-auth/cmd/cli/config"
	"github.com/crucial707/hci-auth/cmd/cli/output"
	"github.com/spf13/cobra"
	"golang.org/x/term"
)

// Test seams for the terminal.
var (
	readPassword = term.ReadPassword
	isTerminal   = term.IsTerminal
)

// InitAuth registers auth-related CLI commands on the root command.
func InitAuth(rootCmd *cobra.Command) {
	rootCmd.AddCommand(
		registerCmd(),
		loginCmd(),
		logoutCmd(),
		profileCmd(),
		revokeCmd(),
	)
}

type credentials struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type loginResponse struct {
	AccessToken string    `json:"access_token"`
	TokenType   string    `json:"token_type"`
	ExpiresAt   time.Time `json:"expires_at"`
}

type profileResponse struct {
	ID       int    `json:"id"`
	Username string `json:"username"`
}

// ==========================
// Register
// ==========================
func registerCmd() *cobra.Command {
	var username string

	cmd := &cobra.Command{
		Use:   "register",
		Short: "Register a new user",
		RunE: func(cmd *cobra.Command, args []string) error {
			creds, err := promptCredentials(cmd, username)
			if err != nil {
				return err
			}

			var out struct {
				ID       int    `json:"id"`
				Username string `json:"username"`
			}
			if err := client.Do("POST", "/auth/register", "", creds, &out); err != nil {
				return fmt.Errorf("failed to register user: %w", err)
			}

			fmt.Fprintf(cmd.OutOrStdout(), "User %q registered (id %d). You can now login.\n", out.Username, out.ID)
			return nil
		},
	}

	cmd.Flags().StringVar(&username, "username", "", "Username to register")
	return cmd
}

// ==========================
// Login
// ==========================
func loginCmd() *cobra.Command {
	var username string
	var register bool

	cmd := &cobra.Command{
		Use:   "login",
		Short: "Log in to the HCI Auth API",
		Long:  "Authenticate with the HCI Auth API and store the access token for subsequent CLI commands.",
		RunE: func(cmd *cobra.Command, args []string) error {
			creds, err := promptCredentials(cmd, username)
			if err != nil {
				return err
			}

			// Optionally register the user first
			if register {
				if err := client.Do("POST", "/auth/register", "", creds, nil); err != nil {
					return fmt.Errorf("failed to register user: %w", err)
				}
			}

			var resp loginResponse
			if err := client.Do("POST", "/auth/login", "", creds, &resp); err != nil {
				return fmt.Errorf("failed to login: %w", err)
			}
			if resp.AccessToken == "" {
				return errors.New("login succeeded but no token returned")
			}

			if err := config.SaveToken(resp.AccessToken); err != nil {
				return fmt.Errorf("failed to save token: %w", err)
			}

			fmt.Fprintf(cmd.OutOrStdout(), "Login successful. Token stored locally (expires %s).\n",
				resp.ExpiresAt.Local().Format(time.RFC3339))
			return nil
		},
	}

	cmd.Flags().StringVar(&username, "username", "", "Username to authenticate as")
	cmd.Flags().BoolVar(&register, "register", false, "Register the user before logging in")
	return cmd
}

// ==========================
// Logout
// ==========================
func logoutCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Remove the locally stored token",
		RunE: func(cmd *cobra.Command, args []string) error {
			removed, err := config.RemoveToken()
			if err != nil {
				return err
			}
			if !removed {
				fmt.Fprintln(cmd.OutOrStdout(), "No user logged in.")
				return nil
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Logged out successfully.")
			return nil
		},
	}
}

// ==========================
// Profile
// ==========================
func profileCmd() *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "profile",
		Short: "Show the logged-in user",
		RunE: func(cmd *cobra.Command, args []string) error {
			token, err := config.LoadToken()
			if err != nil {
				return loginFirst(err)
			}

			var p profileResponse
			if err := client.Do("GET", "/profile", token, nil, &p); err != nil {
				return err
			}

			if asJSON {
				return output.RenderJSON(cmd.OutOrStdout(), p)
			}
			output.RenderTable(cmd.OutOrStdout(), []string{"ID", "Username"}, [][]interface{}{{p.ID, p.Username}})
			return nil
		},
	}

	cmd.Flags().BoolVar(&asJSON, "json", false, "Output as JSON")
	return cmd
}

// ==========================
// Revoke
// ==========================
func revokeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "revoke",
		Short: "Revoke every outstanding token for the logged-in user",
		RunE: func(cmd *cobra.Command, args []string) error {
			token, err := config.LoadToken()
			if err != nil {
				return loginFirst(err)
			}

			var out struct {
				TokenVersion int `json:"token_version"`
			}
			if err := client.Do("POST", "/auth/revoke", token, nil, &out); err != nil {
				return err
			}
			// The stored token is now stale.
			if _, err := config.RemoveToken(); err != nil {
				return err
			}

			fmt.Fprintf(cmd.OutOrStdout(), "All tokens revoked (token version %d). Please login again.\n", out.TokenVersion)
			return nil
		},
	}
}

func loginFirst(err error) error {
	if errors.Is(err, config.ErrNoToken) {
		return errors.New("please login first")
	}
	return err
}

// promptCredentials asks for whatever was not given on the command line.
// The password is read without echo when stdin is a terminal.
func promptCredentials(cmd *cobra.Command, username string) (credentials, error) {
	in := bufio.NewReader(cmd.InOrStdin())
	w := cmd.ErrOrStderr()

	if username == "" {
		fmt.Fprint(w, "Username: ")
		line, err := readLine(in)
		if err != nil {
			return credentials{}, err
		}
		username = line
	}
	if username == "" {
		return credentials{}, errors.New("username is required")
	}

	fmt.Fprint(w, "Password: ")
	var pw string
	if f, ok := cmd.InOrStdin().(*os.File); ok && isTerminal(int(f.Fd())) {
		b, err := readPassword(int(f.Fd()))
		fmt.Fprintln(w)
		if err != nil {
			return credentials{}, err
		}
		pw = string(b)
	} else {
		line, err := readLine(in)
		if err != nil {
			return credentials{}, err
		}
		pw = line
	}
	if pw == "" {
		return credentials{}, errors.New("password is required")
	}

	return credentials{Username: username, Password: pw}, nil
}

func readLine(r *bufio.Reader) (string, error) {
	line, err := r.ReadString('\n')
	if err != nil && !(errors.Is(err, io.EOF) && line != "") {
		return "", err
	}
	return strings.TrimRight(line, "\r\n"), nil
}
