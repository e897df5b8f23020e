package cli

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"resumatch/internal/client"
	"resumatch/internal/common"
	"resumatch/internal/types"

	"github.com/spf13/cobra"
	"golang.org/x/term"
)

var loginEmail string

var loginCmd = &cobra.Command{
	Use:   "login",
	Short: "Sign in to the backend",
	Long: `Sign in with e-mail and password. The password is read from standard
input when it is piped, otherwise it is prompted for without echo.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		email, err := promptValue(cmd, "E-mail", loginEmail)
		if err != nil {
			return err
		}
		password, err := readSecret(cmd, "Password")
		if err != nil {
			return err
		}

		c, err := newAPIClient(cmd.Context())
		if err != nil {
			return err
		}
		auth, err := c.Login(cmd.Context(), email, password)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Signed in as %s\n", signedInName(auth, email))
		return nil
	},
}

var registerInput types.RegisterInput

var registerCmd = &cobra.Command{
	Use:   "register",
	Short: "Create an account",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		email, err := promptValue(cmd, "E-mail", registerInput.Email)
		if err != nil {
			return err
		}
		password, err := readSecret(cmd, "Password")
		if err != nil {
			return err
		}
		if unmet := common.ValidatePassword(password); len(unmet) > 0 {
			return fmt.Errorf("password needs %s", strings.Join(unmet, ", "))
		}

		c, err := newAPIClient(cmd.Context())
		if err != nil {
			return err
		}
		auth, err := c.Register(cmd.Context(), types.RegisterInput{
			Email:    email,
			Password: password,
			FullName: registerInput.FullName,
		})
		if err != nil {
			return err
		}

		if auth.AccessToken == "" {
			fmt.Fprintln(cmd.OutOrStdout(), "Account created. Confirm your e-mail, then run 'resumatch login'.")
			return nil
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Account created. Signed in as %s\n", signedInName(auth, email))
		return nil
	},
}

var logoutCmd = &cobra.Command{
	Use:   "logout",
	Short: "Sign out and forget the stored token",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := newAPIClient(cmd.Context())
		if err != nil {
			return err
		}
		if err := c.Logout(cmd.Context()); err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), "Signed out")
		return nil
	},
}

var whoamiCmd = fetchCommand("whoami", "Show the signed-in account", cobra.NoArgs,
	func(cmd *cobra.Command, c *client.Client, args []string) (*types.User, error) {
		return c.Me(cmd.Context())
	})

var oauthCmd = &cobra.Command{
	Use:       "oauth [provider]",
	Short:     "Print the URL that starts social sign-in",
	Args:      cobra.ExactArgs(1),
	ValidArgs: client.OAuthProviders,
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := newAPIClient(cmd.Context())
		if err != nil {
			return err
		}
		url, err := c.OAuthURL(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), "Open this URL in a browser to continue:")
		fmt.Fprintln(cmd.OutOrStdout(), url)
		return nil
	},
}

func init() {
	loginCmd.Flags().StringVar(&loginEmail, "email", "", "Account e-mail")
	registerCmd.Flags().StringVar(&registerInput.Email, "email", "", "Account e-mail")
	registerCmd.Flags().StringVar(&registerInput.FullName, "name", "", "Full name")
}

func signedInName(auth *types.AuthResponse, fallback string) string {
	if auth.User != nil && auth.User.Email != "" {
		return auth.User.Email
	}
	return fallback
}

// promptValue returns value, or asks for it on stderr when it is empty
func promptValue(cmd *cobra.Command, label, value string) (string, error) {
	if value != "" {
		return value, nil
	}
	fmt.Fprintf(cmd.ErrOrStderr(), "%s: ", label)
	line, err := readLine(cmd.InOrStdin())
	if err != nil {
		return "", fmt.Errorf("reading %s: %w", strings.ToLower(label), err)
	}
	return strings.TrimSpace(line), nil
}

// readSecret reads the first line of piped input, or prompts without echo
// when standard input is a terminal
func readSecret(cmd *cobra.Command, label string) (string, error) {
	in := cmd.InOrStdin()
	if f, ok := in.(*os.File); ok && term.IsTerminal(int(f.Fd())) {
		fmt.Fprintf(cmd.ErrOrStderr(), "%s: ", label)
		secret, err := term.ReadPassword(int(f.Fd()))
		fmt.Fprintln(cmd.ErrOrStderr()) // newline after hidden input
		if err != nil {
			return "", fmt.Errorf("reading %s: %w", strings.ToLower(label), err)
		}
		return string(secret), nil
	}

	line, err := readLine(in)
	if err != nil {
		return "", fmt.Errorf("reading %s: %w", strings.ToLower(label), err)
	}
	return strings.TrimRight(line, "\r\n"), nil
}

// stdinReaders keeps one buffered reader per input so consecutive prompts
// do not lose buffered bytes
var stdinReaders = map[io.Reader]*bufio.Reader{}

func readLine(r io.Reader) (string, error) {
	br, ok := stdinReaders[r]
	if !ok {
		br = bufio.NewReader(r)
		stdinReaders[r] = br
	}
	line, err := br.ReadString('\n')
	if errors.Is(err, io.EOF) && line != "" {
		return line, nil
	}
	if errors.Is(err, io.EOF) {
		return "", errors.New("no input received")
	}
	return line, err
}
