package sync

import (
	"context"
	"fmt"

	"github.com/catherinevee/cloudboard/internal/metrics"
	"github.com/catherinevee/cloudboard/internal/models"
	apierrors "github.com/catherinevee/cloudboard/internal/shared/errors"
)

// Registration is the outcome of saving a new Azure credential
type Registration struct {
	Inventory         models.Inventory
	AppName           string
	SubscriptionCount int
	Projects          Result
}

// SyncCredential validates one stored credential and reconciles the
// subscriptions it can see against existing. An invalid credential returns
// an error wrapping ErrInvalidCredentials and nothing is written.
func (s *Syncer) SyncCredential(ctx context.Context, token string, cred models.Inventory, existing []models.Project) (*Result, error) {
	subs, err := s.validate(ctx, token, cred.ValidationRequest())
	if err != nil {
		return nil, err
	}
	diff := ReconcileProjects(subs, existing, cred.ID)
	return s.applyProjectDiff(ctx, token, diff), ctx.Err()
}

// RefreshSubscriptions syncs every stored Azure credential in turn. A
// credential that fails validation or cannot be reached is recorded as a
// failure and skipped. Projects created for one credential are visible to
// the next, and a subscription already handled in this run is left to the
// credential that saw it first. Concurrent refreshes for one token share a
// single run.
func (s *Syncer) RefreshSubscriptions(ctx context.Context, token string) (*Result, error) {
	return s.shared(ctx, "refresh:"+token, func(ctx context.Context) (*Result, error) {
		res, err := s.refreshSubscriptions(ctx, token)
		s.metrics.ObserveSyncRun("refresh_subscriptions", err)
		return res, err
	})
}

func (s *Syncer) refreshSubscriptions(ctx context.Context, token string) (*Result, error) {
	listing, err := s.backend.ListInventory(ctx, token)
	if err != nil {
		return nil, err
	}
	creds := listing.Inventories.Azure
	if len(creds) == 0 {
		return nil, ErrNoCredentials
	}

	projects, err := s.backend.ListProjects(ctx, token)
	if err != nil {
		return nil, err
	}
	existing := append([]models.Project(nil), projects.Projects.Azure...)

	total := &Result{}
	claimed := make(map[string]bool)

	for _, cred := range creds {
		if err := ctx.Err(); err != nil {
			return total, err
		}

		log := s.log.With().Str("inventory_id", cred.ID).Logger()

		subs, err := s.validate(ctx, token, cred.ValidationRequest())
		if err != nil {
			if ctx.Err() != nil {
				return total, ctx.Err()
			}
			log.Warn().Err(err).Msg("skipping credential")
			total.Failures = append(total.Failures, apierrors.ItemFailure{
				Item: cred.ID, Operation: "validate_credentials", Err: err,
			})
			continue
		}

		var unclaimed []models.Subscription
		for _, sub := range subs {
			if !claimed[sub.SubscriptionID] {
				unclaimed = append(unclaimed, sub)
			}
		}

		res := s.applyProjectDiff(ctx, token, ReconcileProjects(unclaimed, existing, cred.ID))
		failed := make(map[string]bool, len(res.Failures))
		for _, f := range res.Failures {
			failed[f.Item] = true
		}
		for _, sub := range unclaimed {
			// a failed write leaves the subscription to later credentials
			if !failed[sub.SubscriptionID] {
				claimed[sub.SubscriptionID] = true
			}
		}
		existing = mergeProjects(existing, res.Projects)
		total.add(res)

		log.Info().
			Int("created", res.Created).
			Int("updated", res.Updated).
			Int("unchanged", res.Unchanged).
			Msg("credential synced")
	}

	return total, ctx.Err()
}

// SyncResourceGroups persists the live resource groups of a subscription
// that are not stored yet
func (s *Syncer) SyncResourceGroups(ctx context.Context, token, subscriptionID string) (*ResourceGroupResult, error) {
	res, err := s.syncResourceGroups(ctx, token, subscriptionID)
	s.metrics.ObserveSyncRun("sync_resource_groups", err)
	return res, err
}

func (s *Syncer) syncResourceGroups(ctx context.Context, token, subscriptionID string) (*ResourceGroupResult, error) {
	live, err := s.backend.FetchAzureResourceGroups(ctx, token, subscriptionID)
	if err != nil {
		return nil, err
	}
	stored, err := s.backend.ListResourceGroups(ctx, token, subscriptionID)
	if err != nil {
		return nil, err
	}

	create := ReconcileResourceGroups(subscriptionID, live.ResourceGroups, stored.ResourceGroups)
	res := &ResourceGroupResult{
		SubscriptionID: subscriptionID,
		Total:          len(live.ResourceGroups),
		Skipped:        len(live.ResourceGroups) - len(create),
	}

	for _, req := range create {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		if _, err := s.backend.CreateResourceGroup(ctx, token, req); err != nil {
			s.log.Warn().Err(err).Str("resource_group", req.Name).Str("subscription_id", subscriptionID).
				Msg("failed to save resource group")
			res.Failures = append(res.Failures, apierrors.ItemFailure{
				Item: req.Name, Operation: "create_resource_group", Err: err,
			})
			s.metrics.ObserveSyncOperation(kindResourceGroup, metrics.OutcomeFailed)
			continue
		}
		res.Saved++
		s.metrics.ObserveSyncOperation(kindResourceGroup, metrics.OutcomeCreated)
	}
	for i := 0; i < res.Skipped; i++ {
		s.metrics.ObserveSyncOperation(kindResourceGroup, metrics.OutcomeUnchanged)
	}

	s.log.Info().
		Str("subscription_id", subscriptionID).
		Int("saved", res.Saved).
		Int("total", res.Total).
		Int("skipped", res.Skipped).
		Msg("resource groups synced")

	return res, nil
}

// RegisterAzureCredentials validates and stores a new Azure credential,
// resolves its app registration name, then creates a project for each
// subscription it can see that is not persisted yet. Nothing is stored when
// validation fails. The app name lookup and individual project creates may
// fail without failing the registration.
func (s *Syncer) RegisterAzureCredentials(ctx context.Context, token string, req models.CreateInventoryRequest) (*Registration, error) {
	if req.CloudProvider == "" {
		req.CloudProvider = models.ProviderAzure
	}
	if req.CloudProvider != models.ProviderAzure {
		return nil, apierrors.NewValidationError("inventory", fmt.Sprintf("expected an azure credential, got %s", req.CloudProvider))
	}
	if err := req.Validate(); err != nil {
		return nil, apierrors.NewValidationError("inventory", err.Error())
	}

	subs, err := s.validate(ctx, token, req.ValidationRequest())
	if err != nil {
		return nil, err
	}

	inv, err := s.backend.CreateInventory(ctx, token, req)
	if err != nil {
		return nil, err
	}
	reg := &Registration{Inventory: *inv, SubscriptionCount: len(subs)}

	name, err := s.backend.FetchAppRegistrationName(ctx, token)
	if err != nil {
		s.log.Warn().Err(err).Str("inventory_id", inv.ID).Msg("could not fetch app registration name")
	} else {
		reg.AppName = name
		reg.Inventory.AppName = name
	}

	var existing []models.Project
	if projects, err := s.backend.ListProjects(ctx, token); err != nil {
		s.log.Warn().Err(err).Msg("could not list projects, creating every subscription")
	} else {
		existing = projects.Projects.Azure
	}

	diff := ReconcileProjects(subs, existing, inv.ID)
	// a new credential does not take over projects another one owns
	diff.Unchanged = append(diff.Unchanged, updatedProjects(diff.Update)...)
	diff.Update = nil

	reg.Projects = *s.applyProjectDiff(ctx, token, diff)
	s.metrics.ObserveSyncRun("register_credentials", nil)
	return reg, ctx.Err()
}

// BackfillInventoryIDs tags Azure projects that predate inventory_id with
// the credential that can see their subscription. Failures are logged and
// recorded; the run itself only fails when the initial listings do.
func (s *Syncer) BackfillInventoryIDs(ctx context.Context, token string) (*Result, error) {
	return s.shared(ctx, "backfill:"+token, func(ctx context.Context) (*Result, error) {
		res, err := s.backfillInventoryIDs(ctx, token)
		s.metrics.ObserveSyncRun("backfill_inventory_ids", err)
		return res, err
	})
}

func (s *Syncer) backfillInventoryIDs(ctx context.Context, token string) (*Result, error) {
	projects, err := s.backend.ListProjects(ctx, token)
	if err != nil {
		return nil, err
	}

	var legacy []models.Project
	for _, p := range projects.Projects.Azure {
		if p.InventoryID == "" {
			legacy = append(legacy, p)
		}
	}

	res := &Result{}
	if len(legacy) == 0 {
		return res, nil
	}

	listing, err := s.backend.ListInventory(ctx, token)
	if err != nil {
		return nil, err
	}

	owner := make(map[string]string)
	for _, cred := range listing.Inventories.Azure {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		subs, err := s.validate(ctx, token, cred.ValidationRequest())
		if err != nil {
			s.log.Debug().Err(err).Str("inventory_id", cred.ID).Msg("credential skipped during backfill")
			continue
		}
		for _, sub := range subs {
			if _, ok := owner[sub.SubscriptionID]; !ok {
				owner[sub.SubscriptionID] = cred.ID
			}
		}
	}

	for _, p := range legacy {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		invID, ok := owner[p.ProjectID]
		if !ok {
			res.Unchanged++
			continue
		}
		updated, err := s.backend.UpdateProject(ctx, token, p.ID, models.UpdateProjectRequest{InventoryID: &invID})
		if err != nil {
			s.log.Debug().Err(err).Str("project_id", p.ProjectID).Msg("backfill update failed")
			res.Failures = append(res.Failures, apierrors.ItemFailure{
				Item: p.ProjectID, Operation: "update_project", Err: err,
			})
			s.metrics.ObserveSyncOperation(kindProject, metrics.OutcomeFailed)
			continue
		}
		res.Updated++
		res.Projects = append(res.Projects, *updated)
		s.metrics.ObserveSyncOperation(kindProject, metrics.OutcomeUpdated)
	}

	if res.Updated > 0 {
		s.log.Info().Int("updated", res.Updated).Msg("backfilled inventory ids")
	}
	return res, nil
}

// validate returns the subscriptions visible to a credential, or an error
// wrapping ErrInvalidCredentials when the cloud rejects it
func (s *Syncer) validate(ctx context.Context, token string, req models.ValidateCredentialsRequest) ([]models.Subscription, error) {
	result, err := s.backend.ValidateAzureCredentials(ctx, token, req)
	if err != nil {
		return nil, err
	}
	if !result.Valid {
		reason := result.Error
		if reason == "" {
			reason = "credentials were rejected"
		}
		return nil, apierrors.NewError(apierrors.ErrorTypeValidation, reason).
			WithOperation("validate_credentials").
			WithProvider(string(models.ProviderAzure)).
			WithWrapped(ErrInvalidCredentials).
			Build()
	}
	return result.Subscriptions, nil
}

// applyProjectDiff performs the creates then the updates of diff, one at a
// time, stopping early only when ctx is done
func (s *Syncer) applyProjectDiff(ctx context.Context, token string, diff ProjectDiff) *Result {
	res := &Result{Unchanged: len(diff.Unchanged)}
	for range diff.Unchanged {
		s.metrics.ObserveSyncOperation(kindProject, metrics.OutcomeUnchanged)
	}

	for _, req := range diff.Create {
		if ctx.Err() != nil {
			return res
		}
		p, err := s.backend.CreateProject(ctx, token, req)
		if err != nil {
			s.log.Warn().Err(err).Str("project_id", req.ProjectID).Msg("failed to create project")
			res.Failures = append(res.Failures, apierrors.ItemFailure{
				Item: req.ProjectID, Operation: "create_project", Err: err,
			})
			s.metrics.ObserveSyncOperation(kindProject, metrics.OutcomeFailed)
			continue
		}
		res.Created++
		res.Projects = append(res.Projects, *p)
		s.metrics.ObserveSyncOperation(kindProject, metrics.OutcomeCreated)
	}

	for _, u := range diff.Update {
		if ctx.Err() != nil {
			return res
		}
		p, err := s.backend.UpdateProject(ctx, token, u.Project.ID, u.Request)
		if err != nil {
			s.log.Warn().Err(err).Str("project_id", u.Project.ProjectID).Msg("failed to update project")
			res.Failures = append(res.Failures, apierrors.ItemFailure{
				Item: u.Project.ProjectID, Operation: "update_project", Err: err,
			})
			s.metrics.ObserveSyncOperation(kindProject, metrics.OutcomeFailed)
			continue
		}
		res.Updated++
		res.Projects = append(res.Projects, *p)
		s.metrics.ObserveSyncOperation(kindProject, metrics.OutcomeUpdated)
	}

	return res
}

func (r *Result) add(other *Result) {
	r.Created += other.Created
	r.Updated += other.Updated
	r.Unchanged += other.Unchanged
	r.Projects = append(r.Projects, other.Projects...)
	r.Failures = append(r.Failures, other.Failures...)
}

// mergeProjects replaces or appends changed projects by project_id
func mergeProjects(existing, changed []models.Project) []models.Project {
	index := make(map[string]int, len(existing))
	for i, p := range existing {
		index[p.ProjectID] = i
	}
	for _, p := range changed {
		if i, ok := index[p.ProjectID]; ok {
			existing[i] = p
			continue
		}
		index[p.ProjectID] = len(existing)
		existing = append(existing, p)
	}
	return existing
}

func updatedProjects(updates []ProjectUpdate) []models.Project {
	out := make([]models.Project, 0, len(updates))
	for _, u := range updates {
		out = append(out, u.Project)
	}
	return out
}
