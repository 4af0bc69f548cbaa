package models

import (
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
)

var validate = validator.New()

// LoginRequest is the payload of POST /login
type LoginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

// Validate checks the request fields
func (r *LoginRequest) Validate() error {
	return validationError(validate.Struct(r))
}

// RegisterRequest is the payload of POST /users
type RegisterRequest struct {
	Name     string `json:"name" validate:"required"`
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required,min=6"`
}

// Validate checks the request fields
func (r *RegisterRequest) Validate() error {
	return validationError(validate.Struct(r))
}

// CreateInventoryRequest is the payload of POST /me/cloud-credentials
type CreateInventoryRequest struct {
	CloudProvider  CloudProvider `json:"cloud_provider" validate:"required,oneof=azure aws gcp"`
	CloudID        string        `json:"cloud_id" validate:"required"`
	ClientID       string        `json:"client_id" validate:"required"`
	ClientSecret   string        `json:"client_secret" validate:"required"`
	SubscriptionID string        `json:"subscription_id,omitempty"`
}

// Validate checks the request fields
func (r *CreateInventoryRequest) Validate() error {
	return validationError(validate.Struct(r))
}

// ValidationRequest returns the subset sent to the validate endpoint
func (r CreateInventoryRequest) ValidationRequest() ValidateCredentialsRequest {
	return ValidateCredentialsRequest{
		CloudID:      r.CloudID,
		ClientID:     r.ClientID,
		ClientSecret: r.ClientSecret,
	}
}

// ValidateCredentialsRequest is the payload of POST /me/azure/validate
type ValidateCredentialsRequest struct {
	CloudID      string `json:"cloud_id" validate:"required"`
	ClientID     string `json:"client_id" validate:"required"`
	ClientSecret string `json:"client_secret" validate:"required"`
}

// Validate checks the request fields
func (r *ValidateCredentialsRequest) Validate() error {
	return validationError(validate.Struct(r))
}

// CreateProjectRequest is the payload of POST /me/projects
type CreateProjectRequest struct {
	CloudProvider CloudProvider `json:"cloud_provider" validate:"required,oneof=azure aws gcp"`
	ProjectID     string        `json:"project_id" validate:"required"`
	Name          string        `json:"name" validate:"required"`
	State         string        `json:"state"`
	InventoryID   string        `json:"inventory_id,omitempty"`
	IsNew         bool          `json:"isNew,omitempty"`
}

// Validate checks the request fields
func (r *CreateProjectRequest) Validate() error {
	return validationError(validate.Struct(r))
}

// UpdateProjectRequest is the payload of PATCH /me/projects/{id}. Nil
// fields are left untouched by the server.
type UpdateProjectRequest struct {
	Name        *string `json:"name,omitempty" validate:"omitempty,min=1"`
	State       *string `json:"state,omitempty"`
	InventoryID *string `json:"inventory_id,omitempty" validate:"omitempty,min=1"`
}

// Validate checks the request fields
func (r *UpdateProjectRequest) Validate() error {
	if r.Name == nil && r.State == nil && r.InventoryID == nil {
		return fmt.Errorf("update request has no fields to change")
	}
	return validationError(validate.Struct(r))
}

// CreateResourceGroupRequest is the payload of POST /me/resource-groups
type CreateResourceGroupRequest struct {
	Name           string            `json:"name" validate:"required"`
	Location       string            `json:"location"`
	Type           string            `json:"type"`
	Tags           map[string]string `json:"tags"`
	SubscriptionID string            `json:"subscription_id" validate:"required"`
}

// Validate checks the request fields
func (r *CreateResourceGroupRequest) Validate() error {
	return validationError(validate.Struct(r))
}

// validationError flattens validator output into one readable message
func validationError(err error) error {
	if err == nil {
		return nil
	}
	verrs, ok := err.(validator.ValidationErrors)
	if !ok {
		return err
	}
	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		msgs = append(msgs, fmt.Sprintf("%s failed on '%s'", strings.ToLower(fe.Field()), fe.Tag()))
	}
	return fmt.Errorf("invalid request: %s", strings.Join(msgs, ", "))
}
