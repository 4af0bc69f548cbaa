package commands

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/catherinevee/cloudboard/internal/models"
)

var loginCmd = &cobra.Command{
	Use:   "login",
	Short: "Log in and store the session token",
	Args:  cobra.NoArgs,
	RunE:  runLogin,
}

var registerCmd = &cobra.Command{
	Use:   "register",
	Short: "Create a new account",
	Args:  cobra.NoArgs,
	RunE:  runRegister,
}

var logoutCmd = &cobra.Command{
	Use:   "logout",
	Short: "Forget the stored session token",
	Args:  cobra.NoArgs,
	RunE:  runLogout,
}

var whoamiCmd = &cobra.Command{
	Use:   "whoami",
	Short: "Show the logged in user",
	Args:  cobra.NoArgs,
	RunE:  runWhoami,
}

var (
	authEmail string
	authName  string
)

func init() {
	loginCmd.Flags().StringVarP(&authEmail, "email", "e", "", "Account email (prompted when empty)")
	registerCmd.Flags().StringVarP(&authEmail, "email", "e", "", "Account email (prompted when empty)")
	registerCmd.Flags().StringVarP(&authName, "name", "n", "", "Display name (prompted when empty)")
}

func promptIfEmpty(value *string, label string) error {
	if *value != "" {
		return nil
	}
	v, err := env.prompt.Input(label, "")
	if err != nil {
		return fmt.Errorf("failed to read %s: %w", label, err)
	}
	*value = v
	return nil
}

func runLogin(cmd *cobra.Command, _ []string) error {
	email := authEmail
	if err := promptIfEmpty(&email, "Email"); err != nil {
		return err
	}
	password, err := env.prompt.Password("Password")
	if err != nil {
		return fmt.Errorf("failed to read password: %w", err)
	}

	sess, err := env.client.Login(cmd.Context(), models.LoginRequest{Email: email, Password: password})
	if err != nil {
		return fmt.Errorf("login failed: %w", err)
	}
	if err := env.store.Set(sess.Token); err != nil {
		return fmt.Errorf("failed to store session: %w", err)
	}

	env.log.Info().Str("email", sess.User.Email).Msg("logged in")
	env.out.Success("Logged in as %s (%s)", sess.User.Name, sess.User.Email)
	return nil
}

func runRegister(cmd *cobra.Command, _ []string) error {
	name, email := authName, authEmail
	if err := promptIfEmpty(&name, "Name"); err != nil {
		return err
	}
	if err := promptIfEmpty(&email, "Email"); err != nil {
		return err
	}
	password, err := env.prompt.Password("Password")
	if err != nil {
		return fmt.Errorf("failed to read password: %w", err)
	}
	confirm, err := env.prompt.Password("Confirm password")
	if err != nil {
		return fmt.Errorf("failed to read password: %w", err)
	}
	if password != confirm {
		return errors.New("passwords do not match")
	}

	user, err := env.client.Register(cmd.Context(), models.RegisterRequest{Name: name, Email: email, Password: password})
	if err != nil {
		return fmt.Errorf("registration failed: %w", err)
	}

	env.out.Success("Registered %s. Run 'cloudboard login' to start a session.", user.Email)
	return nil
}

func runLogout(_ *cobra.Command, _ []string) error {
	if err := env.store.Clear(); err != nil {
		return fmt.Errorf("failed to clear session: %w", err)
	}
	env.out.Success("Logged out")
	return nil
}

func runWhoami(cmd *cobra.Command, _ []string) error {
	token, err := requireToken()
	if err != nil {
		return err
	}
	user, err := env.client.Me(cmd.Context(), token)
	if err != nil {
		return sessionError(err)
	}

	if handled, err := env.out.Structured(user); handled {
		return err
	}

	status := "Inactive"
	if user.IsActive {
		status = "Active"
	}
	env.out.KeyValue([]string{"Name", "Email", "Role", "Status", "User ID"}, map[string]string{
		"Name":    user.Name,
		"Email":   user.Email,
		"Role":    user.Role,
		"Status":  status,
		"User ID": user.ID,
	})
	return nil
}
