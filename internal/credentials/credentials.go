// Package credentials builds credential payloads from the environment.
package credentials

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/catherinevee/cloudboard/internal/models"
)

// Loader reads provider credentials from environment variables
type Loader struct {
	getenv   func(string) string
	readFile func(string) ([]byte, error)
}

// NewLoader reads the process environment
func NewLoader() *Loader {
	return &Loader{getenv: os.Getenv, readFile: os.ReadFile}
}

// NewLoaderFrom reads from env instead of the process environment
func NewLoaderFrom(env map[string]string, readFile func(string) ([]byte, error)) *Loader {
	if readFile == nil {
		readFile = os.ReadFile
	}
	return &Loader{
		getenv:   func(k string) string { return env[k] },
		readFile: readFile,
	}
}

// serviceAccount is the subset of a GCP service account key file we use
type serviceAccount struct {
	ProjectID   string `json:"project_id"`
	ClientEmail string `json:"client_email"`
	PrivateKey  string `json:"private_key"`
}

// Load builds a create request for provider from its environment variables:
//
//	azure: AZURE_TENANT_ID, AZURE_CLIENT_ID, AZURE_CLIENT_SECRET, AZURE_SUBSCRIPTION_ID (optional)
//	aws:   AWS_ACCOUNT_ID, AWS_ACCESS_KEY_ID, AWS_SECRET_ACCESS_KEY
//	gcp:   GOOGLE_CLOUD_PROJECT or GCP_PROJECT_ID, plus GCP_CLIENT_ID and GCP_CLIENT_SECRET
//	       or a GOOGLE_APPLICATION_CREDENTIALS service account key file
func (l *Loader) Load(provider models.CloudProvider) (*models.CreateInventoryRequest, error) {
	req := &models.CreateInventoryRequest{CloudProvider: provider}

	switch provider {
	case models.ProviderAzure:
		req.CloudID = l.get("AZURE_TENANT_ID")
		req.ClientID = l.get("AZURE_CLIENT_ID")
		req.ClientSecret = l.get("AZURE_CLIENT_SECRET")
		req.SubscriptionID = l.get("AZURE_SUBSCRIPTION_ID")

	case models.ProviderAWS:
		req.CloudID = l.get("AWS_ACCOUNT_ID")
		req.ClientID = l.get("AWS_ACCESS_KEY_ID")
		req.ClientSecret = l.get("AWS_SECRET_ACCESS_KEY")

	case models.ProviderGCP:
		req.CloudID = l.get("GOOGLE_CLOUD_PROJECT")
		if req.CloudID == "" {
			req.CloudID = l.get("GCP_PROJECT_ID")
		}
		req.ClientID = l.get("GCP_CLIENT_ID")
		req.ClientSecret = l.get("GCP_CLIENT_SECRET")

		if path := l.get("GOOGLE_APPLICATION_CREDENTIALS"); path != "" && (req.ClientID == "" || req.ClientSecret == "") {
			sa, err := l.serviceAccount(path)
			if err != nil {
				return nil, err
			}
			if req.CloudID == "" {
				req.CloudID = sa.ProjectID
			}
			req.ClientID = sa.ClientEmail
			req.ClientSecret = sa.PrivateKey
		}

	default:
		return nil, fmt.Errorf("provider %s not supported", provider)
	}

	if missing := missingFields(req); len(missing) > 0 {
		return nil, fmt.Errorf("%s credentials incomplete in environment: missing %s",
			provider, strings.Join(missing, ", "))
	}
	return req, nil
}

// Detect returns the providers whose environment holds a complete credential
func (l *Loader) Detect() []models.CloudProvider {
	var found []models.CloudProvider
	for _, p := range models.Providers {
		if _, err := l.Load(p); err == nil {
			found = append(found, p)
		}
	}
	return found
}

func (l *Loader) get(key string) string {
	return strings.TrimSpace(l.getenv(key))
}

func (l *Loader) serviceAccount(path string) (*serviceAccount, error) {
	data, err := l.readFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read GCP credentials file: %w", err)
	}
	var sa serviceAccount
	if err := json.Unmarshal(data, &sa); err != nil {
		return nil, fmt.Errorf("failed to parse GCP credentials file: %w", err)
	}
	return &sa, nil
}

func missingFields(req *models.CreateInventoryRequest) []string {
	var missing []string
	if req.CloudID == "" {
		missing = append(missing, req.CloudProvider.CloudIDLabel())
	}
	if req.ClientID == "" {
		missing = append(missing, "client id")
	}
	if req.ClientSecret == "" {
		missing = append(missing, "client secret")
	}
	return missing
}
