package sync

import (
	"github.com/catherinevee/cloudboard/internal/models"
)

// ProjectUpdate pairs a persisted project with the fields that changed
type ProjectUpdate struct {
	Project models.Project
	Request models.UpdateProjectRequest
}

// ProjectDiff is the outcome of comparing live subscriptions with projects
type ProjectDiff struct {
	Create    []models.CreateProjectRequest
	Update    []ProjectUpdate
	Unchanged []models.Project
}

// ReconcileProjects compares the subscriptions a credential can see with the
// persisted Azure projects. A subscription matches the project whose
// project_id equals its subscription id. Unmatched subscriptions are created
// and marked new; matched ones are updated when name or state differ, or
// when inventoryID is set and differs from the project's owning credential.
// Repeated subscription ids are considered once.
func ReconcileProjects(remote []models.Subscription, local []models.Project, inventoryID string) ProjectDiff {
	byID := make(map[string]models.Project, len(local))
	for _, p := range local {
		if _, dup := byID[p.ProjectID]; !dup {
			byID[p.ProjectID] = p
		}
	}

	var diff ProjectDiff
	seen := make(map[string]bool, len(remote))

	for _, sub := range remote {
		if sub.SubscriptionID == "" || seen[sub.SubscriptionID] {
			continue
		}
		seen[sub.SubscriptionID] = true

		existing, ok := byID[sub.SubscriptionID]
		if !ok {
			diff.Create = append(diff.Create, models.CreateProjectRequest{
				CloudProvider: models.ProviderAzure,
				ProjectID:     sub.SubscriptionID,
				Name:          sub.DisplayName,
				State:         sub.State,
				InventoryID:   inventoryID,
				IsNew:         true,
			})
			continue
		}

		var req models.UpdateProjectRequest
		changed := false
		if existing.Name != sub.DisplayName {
			name := sub.DisplayName
			req.Name = &name
			changed = true
		}
		if existing.State != sub.State {
			state := sub.State
			req.State = &state
			changed = true
		}
		if inventoryID != "" && existing.InventoryID != inventoryID {
			inv := inventoryID
			req.InventoryID = &inv
			changed = true
		}

		if changed {
			diff.Update = append(diff.Update, ProjectUpdate{Project: existing, Request: req})
		} else {
			diff.Unchanged = append(diff.Unchanged, existing)
		}
	}

	return diff
}

// ReconcileResourceGroups returns the create requests for live groups whose
// name is not yet persisted under subscriptionID. Names repeated in the live
// list are created once.
func ReconcileResourceGroups(subscriptionID string, remote []models.LiveResourceGroup, local []models.ResourceGroup) []models.CreateResourceGroupRequest {
	present := make(map[string]bool, len(local))
	for _, rg := range local {
		if rg.SubscriptionID == "" || rg.SubscriptionID == subscriptionID {
			present[rg.Name] = true
		}
	}

	var create []models.CreateResourceGroupRequest
	for _, rg := range remote {
		if rg.Name == "" || present[rg.Name] {
			continue
		}
		present[rg.Name] = true
		create = append(create, models.CreateResourceGroupRequest{
			Name:           rg.Name,
			Location:       rg.Location,
			Type:           rg.Type,
			Tags:           rg.Tags,
			SubscriptionID: subscriptionID,
		})
	}
	return create
}
