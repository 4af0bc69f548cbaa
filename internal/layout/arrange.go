package layout

import (
	"github.com/catherinevee/cloudboard/internal/models"
)

// Column positions and card sizes
const (
	ProviderX = 50
	ProviderY = 100

	SubscriptionX       = 450
	SubscriptionTop     = 50
	SubscriptionSpacing = 120

	ResourceGroupX       = 850
	ResourceGroupSpacing = 80

	ProviderWidth       = 300
	ProviderHeight      = 200
	SubscriptionWidth   = 300
	SubscriptionHeight  = 90
	ResourceGroupWidth  = 260
	ResourceGroupHeight = 64

	margin = 50
)

// CardKind identifies what a card shows
type CardKind string

const (
	KindProvider      CardKind = "provider"
	KindSubscription  CardKind = "subscription"
	KindResourceGroup CardKind = "resource_group"
)

// Card is a positioned box on the diagram
type Card struct {
	ID       string
	Kind     CardKind
	Title    string
	Subtitle string
	Selected bool
	Bounds   Rect
}

// Edge connects two cards
type Edge struct {
	ID   string
	From string
	To   string
	Path Path
}

// Diagram is a fully positioned set of cards and connectors
type Diagram struct {
	Cards  []Card
	Edges  []Edge
	Width  float64
	Height float64
}

// Card returns the card with the given id
func (d Diagram) Card(id string) (Card, bool) {
	for _, c := range d.Cards {
		if c.ID == id {
			return c, true
		}
	}
	return Card{}, false
}

// Arrange lays out the provider card, one card per subscription, and the
// resource groups of the selected subscription. Resource group cards stack
// downwards from the top of the selected subscription's card. An empty
// selected shows no resource groups.
func Arrange(provider models.CloudProvider, subscriptions []models.Project, selected string, resourceGroups []models.ResourceGroup) Diagram {
	var d Diagram

	providerCard := Card{
		ID:       "provider-" + string(provider),
		Kind:     KindProvider,
		Title:    provider.DisplayName(),
		Subtitle: "Cloud Provider",
		Bounds:   Rect{X: ProviderX, Y: ProviderY, W: ProviderWidth, H: ProviderHeight},
	}
	d.Cards = append(d.Cards, providerCard)

	var selectedCard *Card
	for i, p := range subscriptions {
		card := Card{
			ID:       p.ProjectID,
			Kind:     KindSubscription,
			Title:    p.Name,
			Subtitle: p.ProjectID,
			Selected: p.ProjectID == selected,
			Bounds: Rect{
				X: SubscriptionX,
				Y: float64(i*SubscriptionSpacing + SubscriptionTop),
				W: SubscriptionWidth,
				H: SubscriptionHeight,
			},
		}
		d.Cards = append(d.Cards, card)
		d.Edges = append(d.Edges, Edge{
			ID:   "e-" + providerCard.ID + "-" + card.ID,
			From: providerCard.ID,
			To:   card.ID,
			Path: Connector(providerCard.Bounds, card.Bounds),
		})
		if card.Selected && selectedCard == nil {
			c := card
			selectedCard = &c
		}
	}

	if selectedCard != nil {
		for i, rg := range resourceGroups {
			card := Card{
				ID:       selectedCard.ID + "/" + rg.Name,
				Kind:     KindResourceGroup,
				Title:    rg.Name,
				Subtitle: rg.Location,
				Bounds: Rect{
					X: ResourceGroupX,
					Y: selectedCard.Bounds.Y + float64(i*ResourceGroupSpacing),
					W: ResourceGroupWidth,
					H: ResourceGroupHeight,
				},
			}
			d.Cards = append(d.Cards, card)
			d.Edges = append(d.Edges, Edge{
				ID:   "e-" + selectedCard.ID + "-" + rg.Name,
				From: selectedCard.ID,
				To:   card.ID,
				Path: Connector(selectedCard.Bounds, card.Bounds),
			})
		}
	}

	for _, c := range d.Cards {
		if c.Bounds.Right()+margin > d.Width {
			d.Width = c.Bounds.Right() + margin
		}
		if c.Bounds.Bottom()+margin > d.Height {
			d.Height = c.Bounds.Bottom() + margin
		}
	}

	return d
}
