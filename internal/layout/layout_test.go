package layout

import (
	"bytes"
	"encoding/xml"
	"fmt"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/catherinevee/cloudboard/internal/models"
)

func TestRect_Midpoints(t *testing.T) {
	r := Rect{X: 10, Y: 20, W: 100, H: 40}
	assert.Equal(t, Point{X: 110, Y: 40}, r.RightMid())
	assert.Equal(t, Point{X: 10, Y: 40}, r.LeftMid())
}

func TestConnector(t *testing.T) {
	from := Rect{X: 0, Y: 0, W: 100, H: 50}
	to := Rect{X: 300, Y: 100, W: 100, H: 50}

	p := Connector(from, to)
	assert.Equal(t, Point{X: 100, Y: 25}, p.Start)
	assert.Equal(t, Point{X: 200, Y: 25}, p.C1)
	assert.Equal(t, Point{X: 200, Y: 125}, p.C2)
	assert.Equal(t, Point{X: 300, Y: 125}, p.End)
	assert.Equal(t, "M 100 25 C 200 25, 200 125, 300 125", p.D())
}

func TestConnector_FractionalCoordinates(t *testing.T) {
	p := Connector(Rect{W: 1, H: 1}, Rect{X: 4, Y: 0, W: 1, H: 1})
	assert.Equal(t, "M 1 0.5 C 2.5 0.5, 2.5 0.5, 4 0.5", p.D())
}

func subs(n int) []models.Project {
	out := make([]models.Project, n)
	for i := range out {
		out[i] = models.Project{ProjectID: fmt.Sprintf("s%d", i), Name: fmt.Sprintf("Sub %d", i)}
	}
	return out
}

func TestArrange_Columns(t *testing.T) {
	d := Arrange(models.ProviderAzure, subs(3), "", nil)

	require.Len(t, d.Cards, 4)
	require.Len(t, d.Edges, 3)

	provider := d.Cards[0]
	assert.Equal(t, KindProvider, provider.Kind)
	assert.Equal(t, "AZURE", provider.Title)
	assert.Equal(t, Rect{X: 50, Y: 100, W: ProviderWidth, H: ProviderHeight}, provider.Bounds)

	for i, c := range d.Cards[1:] {
		assert.Equal(t, KindSubscription, c.Kind)
		assert.Equal(t, float64(450), c.Bounds.X)
		assert.Equal(t, float64(i*120+50), c.Bounds.Y)
		assert.Equal(t, provider.ID, d.Edges[i].From)
		assert.Equal(t, c.ID, d.Edges[i].To)
		assert.Equal(t, provider.Bounds.RightMid(), d.Edges[i].Path.Start)
		assert.Equal(t, c.Bounds.LeftMid(), d.Edges[i].Path.End)
	}
}

func TestArrange_SelectedResourceGroups(t *testing.T) {
	groups := []models.ResourceGroup{{Name: "rg-a", Location: "eastus"}, {Name: "rg-b", Location: "westus"}}
	d := Arrange(models.ProviderAzure, subs(3), "s1", groups)

	require.Len(t, d.Cards, 6)
	require.Len(t, d.Edges, 5)

	sel, ok := d.Card("s1")
	require.True(t, ok)
	assert.True(t, sel.Selected)

	rgA, ok := d.Card("s1/rg-a")
	require.True(t, ok)
	assert.Equal(t, float64(ResourceGroupX), rgA.Bounds.X)
	assert.Equal(t, sel.Bounds.Y, rgA.Bounds.Y)

	rgB, ok := d.Card("s1/rg-b")
	require.True(t, ok)
	assert.Equal(t, sel.Bounds.Y+ResourceGroupSpacing, rgB.Bounds.Y)

	last := d.Edges[4]
	assert.Equal(t, "s1", last.From)
	assert.Equal(t, sel.Bounds.RightMid(), last.Path.Start)
	assert.Equal(t, rgB.Bounds.LeftMid(), last.Path.End)

	assert.Equal(t, rgB.Bounds.Right()+margin, d.Width)
}

func TestArrange_UnknownSelectionIgnoresGroups(t *testing.T) {
	d := Arrange(models.ProviderAzure, subs(1), "missing", []models.ResourceGroup{{Name: "rg"}})
	assert.Len(t, d.Cards, 2)
	assert.Len(t, d.Edges, 1)
}

func TestArrange_Empty(t *testing.T) {
	d := Arrange(models.ProviderAzure, nil, "", nil)
	assert.Len(t, d.Cards, 1)
	assert.Empty(t, d.Edges)
	assert.Equal(t, float64(ProviderX+ProviderWidth+margin), d.Width)
}

func TestRenderSVG(t *testing.T) {
	projects := subs(2)
	projects[0].Name = `Prod & "Main" <eu>`
	d := Arrange(models.ProviderAzure, projects, "s0", []models.ResourceGroup{{Name: "rg-a"}})

	var buf bytes.Buffer
	require.NoError(t, RenderSVG(&buf, d))
	out := buf.String()

	assert.True(t, strings.HasPrefix(out, `<?xml`))
	assert.Equal(t, len(d.Edges), strings.Count(out, `class="connector"`))
	assert.Equal(t, len(d.Cards), strings.Count(out, `<rect `))
	assert.Contains(t, out, d.Edges[0].Path.D())
	assert.Contains(t, out, "Prod &amp; &#34;Main&#34; &lt;eu&gt;")

	// well-formed XML
	dec := xml.NewDecoder(strings.NewReader(out))
	for {
		_, err := dec.Token()
		if err != nil {
			assert.Equal(t, "EOF", err.Error())
			break
		}
	}
}

func TestRenderSVG_UntrustedNames(t *testing.T) {
	projects := []models.Project{
		{ProjectID: "dup", Name: "bad \xff\xfe name\x01"},
		{ProjectID: "dup", Name: "second"},
	}
	d := Arrange(models.ProviderAzure, projects, "", nil)

	var buf bytes.Buffer
	require.NoError(t, RenderSVG(&buf, d))
	out := buf.String()

	assert.True(t, utf8.ValidString(out))
	assert.NotContains(t, out, "\x01")

	ids := map[string]int{}
	dec := xml.NewDecoder(strings.NewReader(out))
	for {
		tok, err := dec.Token()
		if err != nil {
			assert.Equal(t, "EOF", err.Error())
			break
		}
		if el, ok := tok.(xml.StartElement); ok {
			for _, a := range el.Attr {
				if a.Name.Local == "id" {
					ids[a.Value]++
				}
			}
		}
	}
	require.NotEmpty(t, ids)
	for id, n := range ids {
		assert.Equal(t, 1, n, id)
	}
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "short", truncate("short", 10))
	assert.Equal(t, "abcd…", truncate("abcdefgh", 5))
}
