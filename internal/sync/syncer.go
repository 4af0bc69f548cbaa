// Package sync reconciles what the cloud reports through the inventory
// service with the projects and resource groups persisted for the user.
package sync

import (
	"context"
	"errors"

	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"

	"github.com/catherinevee/cloudboard/internal/metrics"
	"github.com/catherinevee/cloudboard/internal/models"
	apierrors "github.com/catherinevee/cloudboard/internal/shared/errors"
	"github.com/catherinevee/cloudboard/internal/shared/logger"
)

var (
	// ErrNoCredentials is returned when a refresh finds no Azure credential
	ErrNoCredentials = errors.New("no Azure credentials found")

	// ErrInvalidCredentials wraps the reason the cloud rejected a credential
	ErrInvalidCredentials = errors.New("invalid cloud credentials")
)

// Metric kinds
const (
	kindProject       = "project"
	kindResourceGroup = "resource_group"
)

// Backend is the subset of the inventory API the workflows use
type Backend interface {
	ListInventory(ctx context.Context, token string) (*models.InventoryListing, error)
	CreateInventory(ctx context.Context, token string, req models.CreateInventoryRequest) (*models.Inventory, error)
	ValidateAzureCredentials(ctx context.Context, token string, req models.ValidateCredentialsRequest) (*models.ValidationResult, error)
	FetchAppRegistrationName(ctx context.Context, token string) (string, error)
	ListProjects(ctx context.Context, token string) (*models.ProjectListing, error)
	CreateProject(ctx context.Context, token string, req models.CreateProjectRequest) (*models.Project, error)
	UpdateProject(ctx context.Context, token, id string, req models.UpdateProjectRequest) (*models.Project, error)
	FetchAzureResourceGroups(ctx context.Context, token, subscriptionID string) (*models.LiveResourceGroupListing, error)
	ListResourceGroups(ctx context.Context, token, subscriptionID string) (*models.ResourceGroupListing, error)
	CreateResourceGroup(ctx context.Context, token string, req models.CreateResourceGroupRequest) (*models.ResourceGroup, error)
}

// Result summarises a project sync
type Result struct {
	Created   int
	Updated   int
	Unchanged int

	// Projects holds the records created or updated by the run
	Projects []models.Project
	Failures []apierrors.ItemFailure
}

// ResourceGroupResult summarises a resource group sync
type ResourceGroupResult struct {
	SubscriptionID string
	Saved          int
	Total          int
	Skipped        int
	Failures       []apierrors.ItemFailure
}

// Err reports the item failures of the run as one partial error, or nil
func (r *Result) Err() error {
	return apierrors.PartialError("sync projects", r.Failures)
}

// Err reports the item failures of the run as one partial error, or nil
func (r *ResourceGroupResult) Err() error {
	return apierrors.PartialError("sync resource groups", r.Failures)
}

// Syncer runs the sync workflows against a Backend. Items are processed one
// at a time; a failed item is recorded and the loop moves on.
type Syncer struct {
	backend Backend
	metrics *metrics.Collector
	log     zerolog.Logger
	group   singleflight.Group
}

// Option configures a Syncer
type Option func(*Syncer)

// WithMetrics records sync outcomes on the collector
func WithMetrics(m *metrics.Collector) Option {
	return func(s *Syncer) {
		s.metrics = m
	}
}

// WithLogger sets the logger
func WithLogger(l zerolog.Logger) Option {
	return func(s *Syncer) {
		s.log = l
	}
}

// NewSyncer creates a Syncer
func NewSyncer(backend Backend, opts ...Option) *Syncer {
	s := &Syncer{
		backend: backend,
		log:     logger.WithComponent("sync"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// shared runs fn once for concurrent callers of key. The run is detached
// from the caller's cancellation so one caller giving up does not fail the
// others, while each caller still returns as soon as its own ctx is done.
func (s *Syncer) shared(ctx context.Context, key string, fn func(context.Context) (*Result, error)) (*Result, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	runCtx := context.WithoutCancel(ctx)
	ch := s.group.DoChan(key, func() (interface{}, error) {
		return fn(runCtx)
	})

	select {
	case r := <-ch:
		if r.Shared {
			s.log.Debug().Str("run", key).Msg("joined in-flight run")
		}
		res, _ := r.Val.(*Result)
		return res, r.Err
	case <-ctx.Done():
		s.log.Debug().Str("run", key).Msg("caller left in-flight run")
		return nil, ctx.Err()
	}
}
