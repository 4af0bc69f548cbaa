package commands

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/catherinevee/cloudboard/internal/cli"
	"github.com/catherinevee/cloudboard/internal/models"
	cbsync "github.com/catherinevee/cloudboard/internal/sync"
)

var subscriptionsCmd = &cobra.Command{
	Use:     "subscriptions",
	Aliases: []string{"subs", "projects"},
	Short:   "Browse and refresh the subscriptions mirrored as projects",
}

var listSubscriptionsCmd = &cobra.Command{
	Use:   "list",
	Short: "List saved subscriptions",
	Args:  cobra.NoArgs,
	RunE:  runListSubscriptions,
}

var refreshSubscriptionsCmd = &cobra.Command{
	Use:   "refresh",
	Short: "Save subscriptions newly visible to the stored Azure credentials",
	Args:  cobra.NoArgs,
	RunE:  runRefreshSubscriptions,
}

var backfillSubscriptionsCmd = &cobra.Command{
	Use:   "backfill",
	Short: "Link subscriptions saved without a credential to the credential that sees them",
	Args:  cobra.NoArgs,
	RunE:  runBackfillSubscriptions,
}

var subsProvider string

func init() {
	subscriptionsCmd.AddCommand(listSubscriptionsCmd, refreshSubscriptionsCmd, backfillSubscriptionsCmd)

	listSubscriptionsCmd.Flags().StringVarP(&subsProvider, "provider", "p", "", "Only list one provider (azure, aws, gcp)")
}

func printProjects(projects []models.Project) {
	rows := make([][]string, 0, len(projects))
	for _, p := range projects {
		cred := p.InventoryID
		if cred == "" {
			cred = "-"
		}
		rows = append(rows, []string{p.CloudProvider.DisplayName(), p.ProjectID, p.Name, p.State, cred})
	}
	env.out.Table([]string{"Provider", "Subscription ID", "Name", "State", "Credential"}, rows)
}

func runListSubscriptions(cmd *cobra.Command, _ []string) error {
	providers := models.Providers
	if subsProvider != "" {
		p, err := models.ParseProvider(subsProvider)
		if err != nil {
			return err
		}
		providers = []models.CloudProvider{p}
	}

	token, err := requireToken()
	if err != nil {
		return err
	}
	listing, err := env.client.ListProjects(cmd.Context(), token)
	if err != nil {
		return sessionError(err)
	}

	var projects []models.Project
	for _, p := range providers {
		projects = append(projects, listing.Projects.For(p)...)
	}
	if handled, err := env.out.Structured(projects); handled {
		return err
	}

	if len(projects) == 0 {
		env.out.Warning("No subscriptions found")
		env.out.Muted("Run 'cloudboard subscriptions refresh' after adding Azure credentials")
		return nil
	}
	printProjects(projects)
	return nil
}

func runRefreshSubscriptions(cmd *cobra.Command, _ []string) error {
	token, err := requireToken()
	if err != nil {
		return err
	}

	spinner := cli.NewSpinner(env.out.Writer(), "Refreshing subscriptions")
	res, err := env.syncer.RefreshSubscriptions(cmd.Context(), token)
	spinner.Complete()
	if errors.Is(err, cbsync.ErrNoCredentials) {
		return errors.New("no Azure credentials found. Please add Azure credentials first")
	}
	if err != nil {
		return fmt.Errorf("failed to refresh subscriptions: %w", sessionError(err))
	}

	if handled, err := env.out.Structured(res); handled {
		return err
	}
	if res.Created > 0 {
		env.out.Success("Added %d new subscription(s)", res.Created)
	} else {
		env.out.Info("No new subscriptions found")
	}
	if res.Updated > 0 {
		env.out.Info("Updated %d subscription(s)", res.Updated)
	}
	for _, f := range res.Failures {
		env.out.Warning("Skipped credential %s: %v", f.Item, f.Err)
	}
	return nil
}

func runBackfillSubscriptions(cmd *cobra.Command, _ []string) error {
	token, err := requireToken()
	if err != nil {
		return err
	}

	res, err := env.syncer.BackfillInventoryIDs(cmd.Context(), token)
	if err != nil {
		return fmt.Errorf("failed to backfill subscriptions: %w", sessionError(err))
	}

	if handled, err := env.out.Structured(res); handled {
		return err
	}
	switch {
	case res.Updated > 0:
		env.out.Success("Linked %d subscription(s) to their credential", res.Updated)
	case res.Unchanged > 0:
		env.out.Warning("%d subscription(s) are not visible to any stored credential", res.Unchanged)
	default:
		env.out.Info("Every subscription is already linked to a credential")
	}
	for _, f := range res.Failures {
		env.out.Warning("Could not update %s: %v", f.Item, f.Err)
	}
	return nil
}
