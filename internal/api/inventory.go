package api

import (
	"context"
	"net/http"
	"net/url"

	"github.com/catherinevee/cloudboard/internal/models"
	apierrors "github.com/catherinevee/cloudboard/internal/shared/errors"
)

var (
	opListInventory       = operation{name: "list_inventory", fallback: "Failed to fetch inventory"}
	opCreateInventory     = operation{name: "create_inventory", fallback: "Failed to create inventory"}
	opDeleteInventory     = operation{name: "delete_inventory", fallback: "Failed to delete inventory"}
	opValidateCredentials = operation{name: "validate_credentials", fallback: "Failed to validate credentials"}
	opListSubscriptions   = operation{name: "list_azure_subscriptions", fallback: "Failed to fetch Azure subscriptions"}
	opAppRegistrationName = operation{name: "app_registration_name", fallback: "Failed to fetch app registration name"}
	opListProjects        = operation{name: "list_projects", fallback: "Failed to fetch projects"}
	opCreateProject       = operation{name: "create_project", fallback: "Failed to create project"}
	opUpdateProject       = operation{name: "update_project", fallback: "Failed to update project"}
	opFetchResourceGroups = operation{name: "fetch_azure_resource_groups", fallback: "Failed to fetch resource groups"}
	opListResourceGroups  = operation{name: "list_resource_groups", fallback: "Failed to fetch resource groups"}
	opCreateResourceGroup = operation{name: "create_resource_group", fallback: "Failed to create resource group"}
)

type inventoryData struct {
	Inventory models.Inventory `json:"inventory"`
}

type azureData struct {
	Azure []models.AzureInventoryResult `json:"azure"`
}

type appNameData struct {
	AppName string `json:"app_name"`
}

type projectData struct {
	Project models.Project `json:"project"`
}

type resourceGroupData struct {
	ResourceGroup models.ResourceGroup `json:"resourceGroup"`
}

type subscriptionQuery struct {
	SubscriptionID string `json:"subscription_id"`
}

// ListInventory returns the stored credentials grouped by provider
func (c *Client) ListInventory(ctx context.Context, token string) (*models.InventoryListing, error) {
	if err := requireToken(opListInventory, token); err != nil {
		return nil, err
	}
	return call[models.InventoryListing](ctx, c, opListInventory, http.MethodGet, c.inventoryURL+"/me/cloud-credentials", token, nil)
}

// CreateInventory stores a credential. The server does not validate it.
func (c *Client) CreateInventory(ctx context.Context, token string, req models.CreateInventoryRequest) (*models.Inventory, error) {
	if err := requireToken(opCreateInventory, token); err != nil {
		return nil, err
	}
	data, err := call[inventoryData](ctx, c, opCreateInventory, http.MethodPost, c.inventoryURL+"/me/cloud-credentials", token, &req)
	if err != nil {
		return nil, err
	}
	return &data.Inventory, nil
}

// DeleteInventory removes a stored credential
func (c *Client) DeleteInventory(ctx context.Context, token, id string) error {
	if err := requireToken(opDeleteInventory, token); err != nil {
		return err
	}
	return callNoData(ctx, c, opDeleteInventory, http.MethodDelete,
		c.inventoryURL+"/me/cloud-credentials/"+url.PathEscape(id), token, nil)
}

// ValidateAzureCredentials asks the inventory service to try the credential
// against Azure. A rejection by the server is reported as an invalid result
// rather than an error; only transport failures return an error.
func (c *Client) ValidateAzureCredentials(ctx context.Context, token string, req models.ValidateCredentialsRequest) (*models.ValidationResult, error) {
	if err := requireToken(opValidateCredentials, token); err != nil {
		return nil, err
	}
	result, err := call[models.ValidationResult](ctx, c, opValidateCredentials, http.MethodPost, c.inventoryURL+"/me/azure/validate", token, &req)
	if err != nil {
		if apierrors.IsType(err, apierrors.ErrorTypeHTTP) {
			return &models.ValidationResult{Valid: false, Error: apierrors.UserMessage(err)}, nil
		}
		return nil, err
	}
	return result, nil
}

// ListAzureSubscriptions returns the live subscriptions visible to each
// stored Azure credential
func (c *Client) ListAzureSubscriptions(ctx context.Context, token string) ([]models.AzureInventoryResult, error) {
	if err := requireToken(opListSubscriptions, token); err != nil {
		return nil, err
	}
	data, err := call[azureData](ctx, c, opListSubscriptions, http.MethodGet, c.inventoryURL+"/me/azure/subscriptions", token, nil)
	if err != nil {
		return nil, err
	}
	return data.Azure, nil
}

// FetchAppRegistrationName asks the server to resolve and store the display
// name of the app registration behind the user's Azure credentials
func (c *Client) FetchAppRegistrationName(ctx context.Context, token string) (string, error) {
	if err := requireToken(opAppRegistrationName, token); err != nil {
		return "", err
	}
	data, err := call[appNameData](ctx, c, opAppRegistrationName, http.MethodPost, c.inventoryURL+"/me/azure/app-name", token, nil)
	if err != nil {
		return "", err
	}
	return data.AppName, nil
}

// ListProjects returns the persisted projects grouped by provider
func (c *Client) ListProjects(ctx context.Context, token string) (*models.ProjectListing, error) {
	if err := requireToken(opListProjects, token); err != nil {
		return nil, err
	}
	return call[models.ProjectListing](ctx, c, opListProjects, http.MethodGet, c.inventoryURL+"/me/projects", token, nil)
}

// CreateProject persists a project
func (c *Client) CreateProject(ctx context.Context, token string, req models.CreateProjectRequest) (*models.Project, error) {
	if err := requireToken(opCreateProject, token); err != nil {
		return nil, err
	}
	data, err := call[projectData](ctx, c, opCreateProject, http.MethodPost, c.inventoryURL+"/me/projects", token, &req)
	if err != nil {
		return nil, err
	}
	return &data.Project, nil
}

// UpdateProject changes the non-nil fields of a persisted project
func (c *Client) UpdateProject(ctx context.Context, token, id string, req models.UpdateProjectRequest) (*models.Project, error) {
	if err := requireToken(opUpdateProject, token); err != nil {
		return nil, err
	}
	data, err := call[projectData](ctx, c, opUpdateProject, http.MethodPatch,
		c.inventoryURL+"/me/projects/"+url.PathEscape(id), token, &req)
	if err != nil {
		return nil, err
	}
	return &data.Project, nil
}

// FetchAzureResourceGroups lists the live resource groups of a subscription
func (c *Client) FetchAzureResourceGroups(ctx context.Context, token, subscriptionID string) (*models.LiveResourceGroupListing, error) {
	if err := requireToken(opFetchResourceGroups, token); err != nil {
		return nil, err
	}
	if subscriptionID == "" {
		return nil, apierrors.NewValidationError("subscription", "subscription id is required")
	}
	return call[models.LiveResourceGroupListing](ctx, c, opFetchResourceGroups, http.MethodPost,
		c.inventoryURL+"/me/azure/resource-groups", token, subscriptionQuery{SubscriptionID: subscriptionID})
}

// ListResourceGroups returns the persisted resource groups, optionally
// filtered to one subscription
func (c *Client) ListResourceGroups(ctx context.Context, token, subscriptionID string) (*models.ResourceGroupListing, error) {
	if err := requireToken(opListResourceGroups, token); err != nil {
		return nil, err
	}
	endpoint := c.inventoryURL + "/me/resource-groups"
	if subscriptionID != "" {
		endpoint += "?" + url.Values{"subscription_id": {subscriptionID}}.Encode()
	}
	return call[models.ResourceGroupListing](ctx, c, opListResourceGroups, http.MethodGet, endpoint, token, nil)
}

// CreateResourceGroup persists a resource group
func (c *Client) CreateResourceGroup(ctx context.Context, token string, req models.CreateResourceGroupRequest) (*models.ResourceGroup, error) {
	if err := requireToken(opCreateResourceGroup, token); err != nil {
		return nil, err
	}
	data, err := call[resourceGroupData](ctx, c, opCreateResourceGroup, http.MethodPost, c.inventoryURL+"/me/resource-groups", token, &req)
	if err != nil {
		return nil, err
	}
	return &data.ResourceGroup, nil
}
