package models

import (
	"fmt"
	"strings"
)

// CloudProvider identifies the cloud a credential or project belongs to
type CloudProvider string

const (
	ProviderAzure CloudProvider = "azure"
	ProviderAWS   CloudProvider = "aws"
	ProviderGCP   CloudProvider = "gcp"
)

// Providers lists the supported providers in display order
var Providers = []CloudProvider{ProviderAzure, ProviderAWS, ProviderGCP}

// ParseProvider converts user input to a CloudProvider
func ParseProvider(s string) (CloudProvider, error) {
	p := CloudProvider(strings.ToLower(strings.TrimSpace(s)))
	for _, known := range Providers {
		if p == known {
			return p, nil
		}
	}
	return "", fmt.Errorf("unknown cloud provider: %q (expected azure, aws or gcp)", s)
}

// DisplayName returns the upper-case label used on cards and tables
func (p CloudProvider) DisplayName() string {
	return strings.ToUpper(string(p))
}

// CloudIDLabel names what cloud_id means for the provider
func (p CloudProvider) CloudIDLabel() string {
	switch p {
	case ProviderAzure:
		return "Tenant ID"
	case ProviderAWS:
		return "Account ID"
	case ProviderGCP:
		return "Project ID"
	default:
		return "Cloud ID"
	}
}

// ByProvider groups records per provider the way both listing endpoints do
type ByProvider[T any] struct {
	Azure []T `json:"azure"`
	AWS   []T `json:"aws"`
	GCP   []T `json:"gcp"`
}

// For returns the slice for one provider
func (b ByProvider[T]) For(p CloudProvider) []T {
	switch p {
	case ProviderAzure:
		return b.Azure
	case ProviderAWS:
		return b.AWS
	case ProviderGCP:
		return b.GCP
	default:
		return nil
	}
}

// ProviderCounts is the per-provider part of a listing summary
type ProviderCounts struct {
	Azure int `json:"azure"`
	AWS   int `json:"aws"`
	GCP   int `json:"gcp"`
}

// Summary accompanies grouped listings
type Summary struct {
	Total      int            `json:"total"`
	ByProvider ProviderCounts `json:"byProvider"`
}
