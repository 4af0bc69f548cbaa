package commands

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/catherinevee/cloudboard/internal/cli"
	apierrors "github.com/catherinevee/cloudboard/internal/shared/errors"
	cbsync "github.com/catherinevee/cloudboard/internal/sync"
)

var resourceGroupsCmd = &cobra.Command{
	Use:     "resource-groups",
	Aliases: []string{"rg"},
	Short:   "Browse and sync the resource groups of a subscription",
}

var listResourceGroupsCmd = &cobra.Command{
	Use:   "list <subscription-id>",
	Short: "List saved resource groups",
	Args:  cobra.ExactArgs(1),
	RunE:  runListResourceGroups,
}

var syncResourceGroupsCmd = &cobra.Command{
	Use:   "sync [subscription-id]",
	Short: "Save the live resource groups that are not stored yet",
	Long: `Fetch the live resource groups of a subscription from Azure and save the
ones that are not stored yet. With --all every saved Azure subscription is
synced in turn.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runSyncResourceGroups,
}

var rgAll bool

func init() {
	resourceGroupsCmd.AddCommand(listResourceGroupsCmd, syncResourceGroupsCmd)

	syncResourceGroupsCmd.Flags().BoolVar(&rgAll, "all", false, "Sync every saved Azure subscription")
}

func runListResourceGroups(cmd *cobra.Command, args []string) error {
	token, err := requireToken()
	if err != nil {
		return err
	}
	listing, err := env.client.ListResourceGroups(cmd.Context(), token, args[0])
	if err != nil {
		return sessionError(err)
	}

	if handled, err := env.out.Structured(listing.ResourceGroups); handled {
		return err
	}
	if len(listing.ResourceGroups) == 0 {
		env.out.Warning("No resource groups saved yet")
		env.out.Muted("Run 'cloudboard resource-groups sync %s' to fetch them", args[0])
		return nil
	}

	rows := make([][]string, 0, len(listing.ResourceGroups))
	for _, rg := range listing.ResourceGroups {
		rows = append(rows, []string{rg.Name, rg.Location, rg.Type})
	}
	env.out.Table([]string{"Name", "Location", "Type"}, rows)
	return nil
}

func syncTargets(cmd *cobra.Command, token string, args []string) ([]string, error) {
	switch {
	case rgAll && len(args) > 0:
		return nil, errors.New("pass a subscription id or --all, not both")
	case len(args) == 1:
		return args, nil
	case !rgAll:
		return nil, errors.New("a subscription id is required (or use --all)")
	}

	listing, err := env.client.ListProjects(cmd.Context(), token)
	if err != nil {
		return nil, sessionError(err)
	}
	ids := make([]string, 0, len(listing.Projects.Azure))
	for _, p := range listing.Projects.Azure {
		ids = append(ids, p.ProjectID)
	}
	return ids, nil
}

func runSyncResourceGroups(cmd *cobra.Command, args []string) error {
	token, err := requireToken()
	if err != nil {
		return err
	}
	targets, err := syncTargets(cmd, token, args)
	if err != nil {
		return err
	}
	if len(targets) == 0 {
		env.out.Warning("No Azure subscriptions found")
		return nil
	}

	bar := cli.NewProgressIndicator(env.out.Writer(), len(targets), "Syncing resource groups")
	results := make([]*cbsync.ResourceGroupResult, 0, len(targets))
	var failed []apierrors.ItemFailure
	for _, id := range targets {
		bar.SetMessage(id)
		res, err := env.syncer.SyncResourceGroups(cmd.Context(), token, id)
		bar.Increment()
		if err != nil {
			if cmd.Context().Err() != nil {
				bar.Complete()
				return cmd.Context().Err()
			}
			if len(targets) == 1 {
				bar.Complete()
				return fmt.Errorf("failed to fetch resource groups: %w", sessionError(err))
			}
			failed = append(failed, apierrors.ItemFailure{Item: id, Operation: "sync_resource_groups", Err: err})
			continue
		}
		results = append(results, res)
	}
	bar.Complete()

	if handled, err := env.out.Structured(results); handled {
		return err
	}
	for _, res := range results {
		env.out.Success("%s: saved %d of %d resource group(s)", res.SubscriptionID, res.Saved, res.Total)
		for _, f := range res.Failures {
			env.out.Warning("  %s: %s", f.Item, apierrors.UserMessage(f.Err))
		}
	}
	for _, f := range failed {
		env.out.Error("%s: %s", f.Item, apierrors.UserMessage(f.Err))
	}
	return apierrors.PartialError("sync resource groups", failed)
}
