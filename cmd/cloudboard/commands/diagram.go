package commands

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/catherinevee/cloudboard/internal/layout"
	"github.com/catherinevee/cloudboard/internal/models"
)

var diagramCmd = &cobra.Command{
	Use:   "diagram",
	Short: "Draw the Azure subscriptions and resource groups as an SVG",
	Example: `  cloudboard diagram > azure.svg
  cloudboard diagram --selected <subscription-id> --file azure.svg`,
	Args: cobra.NoArgs,
	RunE: runDiagram,
}

var (
	diagramFile     string
	diagramSelected string
)

func init() {
	diagramCmd.Flags().StringVarP(&diagramFile, "file", "f", "", "Write the SVG to a file instead of stdout")
	diagramCmd.Flags().StringVarP(&diagramSelected, "selected", "s", "", "Subscription whose resource groups are drawn")
}

func runDiagram(cmd *cobra.Command, _ []string) error {
	token, err := requireToken()
	if err != nil {
		return err
	}
	listing, err := env.client.ListProjects(cmd.Context(), token)
	if err != nil {
		return sessionError(err)
	}

	var groups []models.ResourceGroup
	if diagramSelected != "" {
		rgs, err := env.client.ListResourceGroups(cmd.Context(), token, diagramSelected)
		if err != nil {
			return sessionError(err)
		}
		groups = rgs.ResourceGroups
	}

	d := layout.Arrange(models.ProviderAzure, listing.Projects.Azure, diagramSelected, groups)

	var w io.Writer = cmd.OutOrStdout()
	if diagramFile != "" {
		f, err := os.Create(diagramFile)
		if err != nil {
			return fmt.Errorf("failed to create %s: %w", diagramFile, err)
		}
		defer f.Close()
		w = f
	}
	if err := layout.RenderSVG(w, d); err != nil {
		return fmt.Errorf("failed to render diagram: %w", err)
	}
	if diagramFile != "" {
		env.out.Success("Diagram written to %s", diagramFile)
	}
	return nil
}
