package models

import (
	"time"
)

// User is the account returned by the identity service
type User struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Email    string `json:"email"`
	Role     string `json:"role"`
	IsActive bool   `json:"isActive"`
}

// Inventory is a stored cloud credential record
type Inventory struct {
	ID             string        `json:"_id"`
	CloudProvider  CloudProvider `json:"cloud_provider"`
	CloudID        string        `json:"cloud_id"`
	ClientID       string        `json:"client_id"`
	ClientSecret   string        `json:"client_secret"`
	SubscriptionID string        `json:"subscription_id,omitempty"`
	AppName        string        `json:"app_name,omitempty"`
	CreatedAt      time.Time     `json:"createdAt"`
	UpdatedAt      time.Time     `json:"updatedAt"`
}

// ValidationRequest returns the payload used to re-validate this credential
func (i Inventory) ValidationRequest() ValidateCredentialsRequest {
	return ValidateCredentialsRequest{
		CloudID:      i.CloudID,
		ClientID:     i.ClientID,
		ClientSecret: i.ClientSecret,
	}
}

// Project mirrors a discovered cloud subscription or account
type Project struct {
	ID            string        `json:"_id"`
	CloudProvider CloudProvider `json:"cloud_provider"`
	ProjectID     string        `json:"project_id"`
	Name          string        `json:"name"`
	State         string        `json:"state"`
	UserID        string        `json:"userId"`
	InventoryID   string        `json:"inventory_id,omitempty"`
	IsNew         bool          `json:"isNew,omitempty"`
	CreatedAt     time.Time     `json:"createdAt"`
	UpdatedAt     time.Time     `json:"updatedAt"`
}

// ResourceGroup is a persisted resource group under a subscription
type ResourceGroup struct {
	ID             string            `json:"_id"`
	Name           string            `json:"name"`
	Location       string            `json:"location"`
	Type           string            `json:"type"`
	Tags           map[string]string `json:"tags"`
	SubscriptionID string            `json:"subscription_id"`
	UserID         string            `json:"userId"`
	CreatedAt      time.Time         `json:"createdAt"`
	UpdatedAt      time.Time         `json:"updatedAt"`
}

// Subscription is a live cloud subscription as reported by the provider
type Subscription struct {
	SubscriptionID string `json:"subscriptionId"`
	DisplayName    string `json:"displayName"`
	State          string `json:"state"`
	TenantID       string `json:"tenantId,omitempty"`
}

// LiveResourceGroup is a resource group as reported by the provider, not yet persisted
type LiveResourceGroup struct {
	Name     string            `json:"name"`
	Location string            `json:"location"`
	Type     string            `json:"type"`
	Tags     map[string]string `json:"tags"`
}

// ValidationResult is the outcome of validating a cloud credential
type ValidationResult struct {
	Valid             bool           `json:"valid"`
	Error             string         `json:"error,omitempty"`
	SubscriptionCount int            `json:"subscriptionCount,omitempty"`
	Subscriptions     []Subscription `json:"subscriptions,omitempty"`
}

// AzureInventoryResult lists the subscriptions visible to one stored credential
type AzureInventoryResult struct {
	InventoryID   string         `json:"inventoryId"`
	CloudID       string         `json:"cloud_id"`
	Subscriptions []Subscription `json:"subscriptions"`
	Error         string         `json:"error,omitempty"`
}

// InventoryListing is the grouped response of GET /me/cloud-credentials
type InventoryListing struct {
	Inventories ByProvider[Inventory] `json:"inventories"`
	Summary     Summary               `json:"summary"`
}

// ProjectListing is the grouped response of GET /me/projects
type ProjectListing struct {
	Projects ByProvider[Project] `json:"projects"`
	Summary  Summary             `json:"summary"`
}

// ResourceGroupListing is the response of GET /me/resource-groups
type ResourceGroupListing struct {
	SubscriptionID string          `json:"subscription_id"`
	ResourceGroups []ResourceGroup `json:"resourceGroups"`
	Count          int             `json:"count"`
}

// LiveResourceGroupListing is the response of POST /me/azure/resource-groups
type LiveResourceGroupListing struct {
	SubscriptionID string              `json:"subscription_id"`
	ResourceGroups []LiveResourceGroup `json:"resourceGroups"`
	Count          int                 `json:"count"`
}

// Session is what a successful login returns
type Session struct {
	User  User   `json:"user"`
	Token string `json:"token"`
}
