package commands

import (
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/catherinevee/cloudboard/internal/cli"
	"github.com/catherinevee/cloudboard/internal/models"
	cbsync "github.com/catherinevee/cloudboard/internal/sync"
)

var credentialsCmd = &cobra.Command{
	Use:     "credentials",
	Aliases: []string{"creds"},
	Short:   "Manage stored cloud credentials",
}

var listCredentialsCmd = &cobra.Command{
	Use:   "list",
	Short: "List stored credentials",
	Args:  cobra.NoArgs,
	RunE:  runListCredentials,
}

var addCredentialsCmd = &cobra.Command{
	Use:   "add",
	Short: "Store a credential",
	Long: `Store a cloud credential with the inventory service.

Azure credentials are validated first; the subscriptions they can see are
saved as projects. AWS and GCP credentials are stored as given.

With --from-env the values are read from the provider's usual environment
variables (AZURE_TENANT_ID, AWS_ACCESS_KEY_ID, GOOGLE_APPLICATION_CREDENTIALS, ...).
Without --provider the provider is detected from the environment, and you are
asked to choose when more than one is configured.`,
	Example: `  cloudboard credentials add --provider azure --cloud-id <tenant> --client-id <app>
  cloudboard credentials add --provider aws --from-env
  cloudboard credentials add --from-env`,
	Args: cobra.NoArgs,
	RunE: runAddCredentials,
}

var deleteCredentialsCmd = &cobra.Command{
	Use:   "delete <credential-id>",
	Short: "Delete a stored credential",
	Args:  cobra.ExactArgs(1),
	RunE:  runDeleteCredentials,
}

var (
	credProvider       string
	credCloudID        string
	credClientID       string
	credClientSecret   string
	credSubscriptionID string
	credFromEnv        bool
	credYes            bool
)

func init() {
	credentialsCmd.AddCommand(listCredentialsCmd, addCredentialsCmd, deleteCredentialsCmd)

	addCredentialsCmd.Flags().StringVarP(&credProvider, "provider", "p", "", "Cloud provider (azure, aws, gcp)")
	addCredentialsCmd.Flags().StringVar(&credCloudID, "cloud-id", "", "Tenant, account or project id")
	addCredentialsCmd.Flags().StringVar(&credClientID, "client-id", "", "Client or access key id")
	addCredentialsCmd.Flags().StringVar(&credClientSecret, "client-secret", "", "Client secret (prompted when empty)")
	addCredentialsCmd.Flags().StringVar(&credSubscriptionID, "subscription-id", "", "Azure subscription to scope the credential to")
	addCredentialsCmd.Flags().BoolVar(&credFromEnv, "from-env", false, "Read the credential from environment variables")

	deleteCredentialsCmd.Flags().BoolVarP(&credYes, "yes", "y", false, "Do not ask for confirmation")
}

// credentialView is what gets printed for a stored credential; the secret
// never leaves the inventory service through the CLI
type credentialView struct {
	ID             string               `json:"id" yaml:"id"`
	Provider       models.CloudProvider `json:"provider" yaml:"provider"`
	CloudID        string               `json:"cloud_id" yaml:"cloud_id"`
	ClientID       string               `json:"client_id" yaml:"client_id"`
	SubscriptionID string               `json:"subscription_id,omitempty" yaml:"subscription_id,omitempty"`
	AppName        string               `json:"app_name,omitempty" yaml:"app_name,omitempty"`
	CreatedAt      time.Time            `json:"created_at" yaml:"created_at"`
}

func newCredentialView(inv models.Inventory) credentialView {
	return credentialView{
		ID:             inv.ID,
		Provider:       inv.CloudProvider,
		CloudID:        inv.CloudID,
		ClientID:       inv.ClientID,
		SubscriptionID: inv.SubscriptionID,
		AppName:        inv.AppName,
		CreatedAt:      inv.CreatedAt,
	}
}

func runListCredentials(cmd *cobra.Command, _ []string) error {
	token, err := requireToken()
	if err != nil {
		return err
	}
	listing, err := env.client.ListInventory(cmd.Context(), token)
	if err != nil {
		return sessionError(err)
	}

	var views []credentialView
	for _, p := range models.Providers {
		for _, inv := range listing.Inventories.For(p) {
			views = append(views, newCredentialView(inv))
		}
	}
	if handled, err := env.out.Structured(views); handled {
		return err
	}

	if len(views) == 0 {
		env.out.Warning("No credentials stored")
		env.out.Muted("Add one with 'cloudboard credentials add --provider azure'")
		return nil
	}

	rows := make([][]string, 0, len(views))
	for _, v := range views {
		name := v.AppName
		if name == "" {
			name = "-"
		}
		rows = append(rows, []string{v.ID, v.Provider.DisplayName(), v.CloudID, v.ClientID, name})
	}
	env.out.Table([]string{"ID", "Provider", "Cloud ID", "Client ID", "App Name"}, rows)
	return nil
}

func credentialRequest() (*models.CreateInventoryRequest, error) {
	if credProvider == "" {
		if !credFromEnv {
			return nil, errors.New("--provider is required unless --from-env is set")
		}
		provider, err := detectProvider()
		if err != nil {
			return nil, err
		}
		return env.loader.Load(provider)
	}

	provider, err := models.ParseProvider(credProvider)
	if err != nil {
		return nil, err
	}
	if credFromEnv {
		return env.loader.Load(provider)
	}

	req := &models.CreateInventoryRequest{
		CloudProvider:  provider,
		CloudID:        credCloudID,
		ClientID:       credClientID,
		ClientSecret:   credClientSecret,
		SubscriptionID: credSubscriptionID,
	}
	if err := promptIfEmpty(&req.CloudID, provider.CloudIDLabel()); err != nil {
		return nil, err
	}
	if err := promptIfEmpty(&req.ClientID, "Client ID"); err != nil {
		return nil, err
	}
	if req.ClientSecret == "" {
		secret, err := env.prompt.Password("Client secret")
		if err != nil {
			return nil, fmt.Errorf("failed to read client secret: %w", err)
		}
		req.ClientSecret = secret
	}
	return req, nil
}

// detectProvider picks the provider configured in the environment, asking
// the user when there are several
func detectProvider() (models.CloudProvider, error) {
	found := env.loader.Detect()
	switch len(found) {
	case 0:
		return "", errors.New("no complete cloud credentials found in the environment")
	case 1:
		return found[0], nil
	}

	options := make([]string, len(found))
	for i, p := range found {
		options[i] = p.DisplayName()
	}
	choice, err := env.prompt.Select("Credentials for several providers were found in the environment:", options)
	if err != nil {
		return "", err
	}
	return found[choice], nil
}

func runAddCredentials(cmd *cobra.Command, _ []string) error {
	token, err := requireToken()
	if err != nil {
		return err
	}
	req, err := credentialRequest()
	if err != nil {
		return err
	}

	if req.CloudProvider != models.ProviderAzure {
		inv, err := env.client.CreateInventory(cmd.Context(), token, *req)
		if err != nil {
			return fmt.Errorf("failed to save credentials: %w", sessionError(err))
		}
		if handled, err := env.out.Structured(newCredentialView(*inv)); handled {
			return err
		}
		env.out.Success("%s credentials saved successfully!", req.CloudProvider.DisplayName())
		return nil
	}

	spinner := cli.NewSpinner(env.out.Writer(), "Validating Azure credentials")
	reg, err := env.syncer.RegisterAzureCredentials(cmd.Context(), token, *req)
	spinner.Complete()
	if err != nil {
		if errors.Is(err, cbsync.ErrInvalidCredentials) {
			return fmt.Errorf("invalid credentials. Please check your Azure credentials and try again: %w", err)
		}
		return fmt.Errorf("failed to save credentials: %w", sessionError(err))
	}

	if handled, err := env.out.Structured(reg.Projects.Projects); handled {
		return err
	}
	if reg.SubscriptionCount == 0 {
		env.out.Warning("Azure credentials saved but no subscriptions found. Please check your service principal permissions.")
		return nil
	}
	env.out.Success("Azure credentials saved successfully! Found %d subscription(s).", reg.SubscriptionCount)
	if reg.AppName != "" {
		env.out.Info("App registration: %s", reg.AppName)
	}
	if len(reg.Projects.Projects) > 0 {
		printProjects(reg.Projects.Projects)
	}
	if err := reg.Projects.Err(); err != nil {
		env.out.Warning("%d subscription(s) could not be saved", len(reg.Projects.Failures))
	}
	return nil
}

func runDeleteCredentials(cmd *cobra.Command, args []string) error {
	token, err := requireToken()
	if err != nil {
		return err
	}
	id := args[0]

	if !credYes && !env.prompt.Confirm(fmt.Sprintf("Delete credential %s?", id), false) {
		env.out.Info("Cancelled")
		return nil
	}

	if err := env.client.DeleteInventory(cmd.Context(), token, id); err != nil {
		return fmt.Errorf("failed to delete credentials: %w", sessionError(err))
	}
	env.out.Success("Credentials deleted")
	return nil
}
