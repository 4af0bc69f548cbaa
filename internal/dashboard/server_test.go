package dashboard

import (
	"context"
	"encoding/base64"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/catherinevee/cloudboard/internal/api"
	"github.com/catherinevee/cloudboard/internal/api/apitest"
	"github.com/catherinevee/cloudboard/internal/models"
)

const (
	testEmail    = "ada@example.com"
	testPassword = "correct-horse"
)

type harness struct {
	backend *apitest.Server
	dash    *Server
	token   string
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	backend := apitest.NewServer()
	t.Cleanup(backend.Close)
	token := backend.AddUser("Ada", testEmail, testPassword)

	dash, err := NewServer(Options{
		Client: api.NewClient(backend.URL, backend.URL),
		Logger: zerolog.Nop(),
	})
	require.NoError(t, err)
	return &harness{backend: backend, dash: dash, token: token}
}

const testCSRF = "csrf-test-token"

// do sends a request the way the dashboard's own forms would, echoing the
// CSRF cookie on unsafe methods
func (h *harness) do(method, target string, form url.Values, token string) *httptest.ResponseRecorder {
	if method != http.MethodGet {
		if form == nil {
			form = url.Values{}
		}
		form.Set(csrfField, testCSRF)
	}
	return h.send(method, target, form, token, testCSRF)
}

func (h *harness) send(method, target string, form url.Values, token, csrf string) *httptest.ResponseRecorder {
	var req *http.Request
	if form != nil {
		req = httptest.NewRequest(method, target, strings.NewReader(form.Encode()))
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	} else {
		req = httptest.NewRequest(method, target, nil)
	}
	if token != "" {
		req.AddCookie(&http.Cookie{Name: tokenCookie, Value: token})
	}
	if csrf != "" {
		req.AddCookie(&http.Cookie{Name: csrfCookie, Value: csrf})
	}
	rec := httptest.NewRecorder()
	h.dash.Handler().ServeHTTP(rec, req)
	return rec
}

func responseCookie(rec *httptest.ResponseRecorder, name string) *http.Cookie {
	for _, c := range rec.Result().Cookies() {
		if c.Name == name {
			return c
		}
	}
	return nil
}

func flashOf(t *testing.T, rec *httptest.ResponseRecorder) flash {
	t.Helper()
	c := responseCookie(rec, flashCookie)
	require.NotNil(t, c, "expected a flash cookie")
	kind, encoded, ok := strings.Cut(c.Value, ".")
	require.True(t, ok)
	msg, err := base64.RawURLEncoding.DecodeString(encoded)
	require.NoError(t, err)
	return flash{Kind: flashKind(kind), Message: string(msg)}
}

func (h *harness) seedAzure(tenant string, subs ...models.Subscription) models.Inventory {
	h.backend.SetTenantSubscriptions(tenant, subs...)
	return h.backend.SeedInventory(testEmail, models.Inventory{
		CloudProvider: models.ProviderAzure,
		CloudID:       tenant,
		ClientID:      "client-" + tenant,
		ClientSecret:  "secret",
	})
}

func TestProtectedPagesRedirectToLogin(t *testing.T) {
	h := newHarness(t)
	expired := h.backend.ExpiredToken(testEmail)

	for _, path := range []string{"/", "/profile", "/credentials/new", "/diagram.svg"} {
		for name, token := range map[string]string{"no token": "", "expired token": expired} {
			t.Run(path+" "+name, func(t *testing.T) {
				rec := h.do(http.MethodGet, path, nil, token)
				assert.Equal(t, http.StatusSeeOther, rec.Code)
				assert.Equal(t, "/login", rec.Header().Get("Location"))
			})
		}
	}
}

func TestLogin(t *testing.T) {
	h := newHarness(t)

	rec := h.do(http.MethodPost, "/login", url.Values{"email": {testEmail}, "password": {testPassword}}, "")
	require.Equal(t, http.StatusSeeOther, rec.Code)
	assert.Equal(t, "/", rec.Header().Get("Location"))

	c := responseCookie(rec, tokenCookie)
	require.NotNil(t, c)
	assert.NotEmpty(t, c.Value)
	assert.True(t, c.HttpOnly)

	rec = h.do(http.MethodGet, "/login", nil, c.Value)
	assert.Equal(t, http.StatusSeeOther, rec.Code, "logged in users skip the login form")
}

func TestLogin_WrongPassword(t *testing.T) {
	h := newHarness(t)

	rec := h.do(http.MethodPost, "/login", url.Values{"email": {testEmail}, "password": {"nope"}}, "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Contains(t, rec.Body.String(), "Login failed: Invalid email or password")
	assert.Contains(t, rec.Body.String(), testEmail)
	assert.Nil(t, responseCookie(rec, tokenCookie))
}

func TestRegister(t *testing.T) {
	h := newHarness(t)

	rec := h.do(http.MethodPost, "/register", url.Values{
		"name": {"Grace"}, "email": {"grace@example.com"}, "password": {"hopper1"},
	}, "")
	require.Equal(t, http.StatusSeeOther, rec.Code)
	assert.Equal(t, "/login", rec.Header().Get("Location"))
	assert.Equal(t, flash{Kind: flashSuccess, Message: msgRegistered}, flashOf(t, rec))

	rec = h.do(http.MethodPost, "/register", url.Values{
		"name": {"Grace"}, "email": {"grace@example.com"}, "password": {"hopper1"},
	}, "")
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Contains(t, rec.Body.String(), "Registration failed: User already exists")
}

func TestLogout(t *testing.T) {
	h := newHarness(t)

	rec := h.do(http.MethodPost, "/logout", nil, h.token)
	assert.Equal(t, http.StatusSeeOther, rec.Code)
	assert.Equal(t, "/login", rec.Header().Get("Location"))
	c := responseCookie(rec, tokenCookie)
	require.NotNil(t, c)
	assert.Empty(t, c.Value)
	assert.Less(t, c.MaxAge, 0)
}

func TestHome_EmptyState(t *testing.T) {
	h := newHarness(t)

	rec := h.do(http.MethodGet, "/", nil, h.token)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "Welcome to cloudboard")
	assert.Contains(t, rec.Body.String(), "No providers yet")
}

func TestHome_SubscriptionsAndExpandedGroups(t *testing.T) {
	h := newHarness(t)
	inv := h.seedAzure("tenant-1")
	h.backend.SeedProject(testEmail, models.Project{
		CloudProvider: models.ProviderAzure, ProjectID: "sub-1", Name: "Production", InventoryID: inv.ID,
	})
	h.backend.SeedProject(testEmail, models.Project{
		CloudProvider: models.ProviderAzure, ProjectID: "sub-2", Name: "Staging", InventoryID: inv.ID,
	})
	h.backend.SeedResourceGroup(testEmail, models.ResourceGroup{Name: "rg-web", Location: "eastus", SubscriptionID: "sub-1"})

	rec := h.do(http.MethodGet, "/?expand=sub-1", nil, h.token)
	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()

	assert.Contains(t, body, "Production")
	assert.Contains(t, body, "Staging")
	assert.Contains(t, body, "rg-web")
	assert.Contains(t, body, "/diagram.svg?selected=sub-1")
	assert.Contains(t, body, "expand=sub-2")
	assert.Contains(t, body, "AZURE")
}

func TestHome_LoadsAreCached(t *testing.T) {
	h := newHarness(t)
	h.seedAzure("tenant-1")

	for i := 0; i < 3; i++ {
		require.Equal(t, http.StatusOK, h.do(http.MethodGet, "/", nil, h.token).Code)
	}
	assert.Equal(t, 1, h.backend.Calls(http.MethodGet, "/me/projects"))
	assert.Equal(t, 1, h.backend.Calls(http.MethodGet, "/me/cloud-credentials"))
}

func TestCachedLoadOutlivesCancelledRequest(t *testing.T) {
	h := newHarness(t)
	h.backend.SeedProject(testEmail, models.Project{CloudProvider: models.ProviderAzure, ProjectID: "sub-1", Name: "Production"})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	listing, err := h.dash.loadProjects(ctx, h.token)
	require.NoError(t, err)
	require.Len(t, listing.Projects.Azure, 1)

	listing, err = h.dash.loadProjects(context.Background(), h.token)
	require.NoError(t, err)
	assert.Len(t, listing.Projects.Azure, 1)
	assert.Equal(t, 1, h.backend.Calls(http.MethodGet, "/me/projects"))
}

func TestHome_BackfillsLegacyProjects(t *testing.T) {
	h := newHarness(t)
	inv := h.seedAzure("tenant-1", models.Subscription{SubscriptionID: "sub-1", DisplayName: "Production"})
	h.backend.SeedProject(testEmail, models.Project{CloudProvider: models.ProviderAzure, ProjectID: "sub-1", Name: "Production"})

	require.Equal(t, http.StatusOK, h.do(http.MethodGet, "/", nil, h.token).Code)

	projects := h.backend.Projects(testEmail)
	require.Len(t, projects, 1)
	assert.Equal(t, inv.ID, projects[0].InventoryID)
}

func TestHome_RejectedTokenEndsSession(t *testing.T) {
	h := newHarness(t)
	h.backend.Fail(http.MethodGet, "/me/cloud-credentials", "", http.StatusUnauthorized, "Invalid or expired token")

	rec := h.do(http.MethodGet, "/", nil, h.token)
	assert.Equal(t, http.StatusSeeOther, rec.Code)
	assert.Equal(t, "/login", rec.Header().Get("Location"))
	assert.Equal(t, msgSessionExpired, flashOf(t, rec).Message)
}

func TestProfile(t *testing.T) {
	h := newHarness(t)

	rec := h.do(http.MethodGet, "/profile", nil, h.token)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), testEmail)
	assert.Contains(t, rec.Body.String(), "Active")
}

func TestSaveAzureCredential(t *testing.T) {
	h := newHarness(t)
	h.backend.SetTenantSubscriptions("tenant-1",
		models.Subscription{SubscriptionID: "sub-1", DisplayName: "Production", State: "Enabled"},
		models.Subscription{SubscriptionID: "sub-2", DisplayName: "Staging", State: "Enabled"},
	)

	rec := h.do(http.MethodPost, "/credentials/azure", url.Values{
		"cloud_id": {"tenant-1"}, "client_id": {"client"}, "client_secret": {"secret"},
	}, h.token)
	require.Equal(t, http.StatusSeeOther, rec.Code)
	assert.Equal(t, "Azure credentials saved successfully! Found 2 subscription(s).", flashOf(t, rec).Message)

	invs := h.backend.Inventories(testEmail)
	require.Len(t, invs, 1)
	projects := h.backend.Projects(testEmail)
	require.Len(t, projects, 2)
	for _, p := range projects {
		assert.Equal(t, invs[0].ID, p.InventoryID)
		assert.True(t, p.IsNew)
	}
}

func TestSaveAzureCredential_NoSubscriptions(t *testing.T) {
	h := newHarness(t)

	rec := h.do(http.MethodPost, "/credentials/azure", url.Values{
		"cloud_id": {"empty-tenant"}, "client_id": {"client"}, "client_secret": {"secret"},
	}, h.token)
	require.Equal(t, http.StatusSeeOther, rec.Code)
	assert.Equal(t, msgNoSubscriptions, flashOf(t, rec).Message)
}

func TestSaveAzureCredential_Invalid(t *testing.T) {
	h := newHarness(t)
	h.backend.RejectClient("bad-client", "AADSTS7000215: Invalid client secret provided")

	rec := h.do(http.MethodPost, "/credentials/azure", url.Values{
		"cloud_id": {"tenant-1"}, "client_id": {"bad-client"}, "client_secret": {"wrong"},
	}, h.token)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), msgInvalidCredentials)
	assert.Contains(t, rec.Body.String(), `value="bad-client"`)
	assert.NotContains(t, rec.Body.String(), "wrong", "secrets are never echoed back")

	assert.Zero(t, h.backend.Calls(http.MethodPost, "/me/cloud-credentials"))
	assert.Zero(t, h.backend.Calls(http.MethodPost, "/me/projects"))
}

func TestSaveAzureCredential_ValidationUnavailable(t *testing.T) {
	h := newHarness(t)
	h.backend.Fail(http.MethodPost, "/me/azure/validate", "", http.StatusServiceUnavailable, "upstream unavailable")

	rec := h.do(http.MethodPost, "/credentials/azure", url.Values{
		"cloud_id": {"tenant-1"}, "client_id": {"client"}, "client_secret": {"secret"},
	}, h.token)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), msgInvalidCredentials)
	assert.Zero(t, h.backend.Calls(http.MethodPost, "/me/cloud-credentials"))
}

func TestSaveAzureCredential_StoreFails(t *testing.T) {
	h := newHarness(t)
	h.backend.Fail(http.MethodPost, "/me/cloud-credentials", "", http.StatusInternalServerError, "database offline")

	rec := h.do(http.MethodPost, "/credentials/azure", url.Values{
		"cloud_id": {"tenant-1"}, "client_id": {"client"}, "client_secret": {"secret"},
	}, h.token)
	assert.Equal(t, http.StatusBadGateway, rec.Code)
	assert.Contains(t, rec.Body.String(), msgValidationFailed)
	assert.Zero(t, h.backend.Calls(http.MethodPost, "/me/projects"))
}

func TestSaveGenericCredential(t *testing.T) {
	h := newHarness(t)

	rec := h.do(http.MethodPost, "/credentials/aws", url.Values{
		"cloud_id": {"123456789012"}, "client_id": {"AKIA"}, "client_secret": {"secret"},
	}, h.token)
	require.Equal(t, http.StatusSeeOther, rec.Code)
	assert.Equal(t, "AWS credentials saved successfully!", flashOf(t, rec).Message)
	assert.Zero(t, h.backend.Calls(http.MethodPost, "/me/azure/validate"))

	invs := h.backend.Inventories(testEmail)
	require.Len(t, invs, 1)
	assert.Equal(t, models.ProviderAWS, invs[0].CloudProvider)
}

func TestCredentialForms(t *testing.T) {
	h := newHarness(t)

	rec := h.do(http.MethodGet, "/credentials/gcp", nil, h.token)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "Project ID")

	rec = h.do(http.MethodGet, "/credentials/digitalocean", nil, h.token)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = h.do(http.MethodGet, "/credentials/new", nil, h.token)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "No credentials stored")
}

func TestDeleteCredential(t *testing.T) {
	h := newHarness(t)
	inv := h.seedAzure("tenant-1")

	rec := h.do(http.MethodGet, "/credentials/new", nil, h.token)
	require.Contains(t, rec.Body.String(), "tenant-1")

	rec = h.do(http.MethodPost, "/credentials/"+inv.ID+"/delete", nil, h.token)
	require.Equal(t, http.StatusSeeOther, rec.Code)
	assert.Equal(t, flashSuccess, flashOf(t, rec).Kind)
	assert.Empty(t, h.backend.Inventories(testEmail))

	rec = h.do(http.MethodGet, "/credentials/new", nil, h.token)
	assert.Contains(t, rec.Body.String(), "No credentials stored", "the inventory key is invalidated")
}

func TestRefreshSubscriptions(t *testing.T) {
	h := newHarness(t)
	h.seedAzure("tenant-1",
		models.Subscription{SubscriptionID: "sub-1", DisplayName: "Production"},
		models.Subscription{SubscriptionID: "sub-2", DisplayName: "Staging"},
	)

	rec := h.do(http.MethodGet, "/", nil, h.token)
	require.NotContains(t, rec.Body.String(), "Production")

	rec = h.do(http.MethodPost, "/subscriptions/refresh", nil, h.token)
	require.Equal(t, http.StatusSeeOther, rec.Code)
	assert.Equal(t, flash{Kind: flashSuccess, Message: "Added 2 new subscription(s)"}, flashOf(t, rec))

	rec = h.do(http.MethodGet, "/", nil, h.token)
	assert.Contains(t, rec.Body.String(), "Production", "the projects key is invalidated")

	rec = h.do(http.MethodPost, "/subscriptions/refresh", nil, h.token)
	assert.Equal(t, msgNoNewSubscriptions, flashOf(t, rec).Message)
}

func TestRefreshSubscriptions_NoCredentials(t *testing.T) {
	h := newHarness(t)

	rec := h.do(http.MethodPost, "/subscriptions/refresh", nil, h.token)
	require.Equal(t, http.StatusSeeOther, rec.Code)
	f := flashOf(t, rec)
	assert.Equal(t, flashError, f.Kind)
	assert.Equal(t, "Failed to refresh subscriptions: no Azure credentials found", f.Message)
}

func TestSyncResourceGroups(t *testing.T) {
	h := newHarness(t)
	h.backend.SeedResourceGroup(testEmail, models.ResourceGroup{Name: "rg1", SubscriptionID: "sub-1"})
	h.backend.SetLiveResourceGroups("sub-1",
		models.LiveResourceGroup{Name: "rg1", Location: "eastus"},
		models.LiveResourceGroup{Name: "rg2", Location: "westus"},
	)

	rec := h.do(http.MethodPost, "/subscriptions/sub-1/resource-groups", nil, h.token)
	require.Equal(t, http.StatusSeeOther, rec.Code)
	assert.Equal(t, "/?expand=sub-1", rec.Header().Get("Location"))
	assert.Equal(t, "Saved 1 of 2 resource group(s)", flashOf(t, rec).Message)
	assert.Len(t, h.backend.ResourceGroups(testEmail), 2)
}

func TestSyncResourceGroups_Failure(t *testing.T) {
	h := newHarness(t)
	h.backend.Fail(http.MethodPost, "/me/azure/resource-groups", "", http.StatusBadGateway, "Azure unreachable")

	rec := h.do(http.MethodPost, "/subscriptions/sub-1/resource-groups", nil, h.token)
	require.Equal(t, http.StatusSeeOther, rec.Code)
	assert.Equal(t, "Failed to fetch resource groups: Azure unreachable", flashOf(t, rec).Message)
}

func TestDiagram(t *testing.T) {
	h := newHarness(t)
	h.backend.SeedProject(testEmail, models.Project{CloudProvider: models.ProviderAzure, ProjectID: "sub-1", Name: "Production", InventoryID: "inv"})
	h.backend.SeedResourceGroup(testEmail, models.ResourceGroup{Name: "rg-web", SubscriptionID: "sub-1"})

	rec := h.do(http.MethodGet, "/diagram.svg?selected=sub-1", nil, h.token)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "image/svg+xml", rec.Header().Get("Content-Type"))
	body := rec.Body.String()
	assert.Contains(t, body, "<svg")
	assert.Contains(t, body, "Production")
	assert.Contains(t, body, "rg-web")
	assert.Equal(t, 2, strings.Count(body, `class="connector"`))
}

func TestHealthAndMetrics(t *testing.T) {
	h := newHarness(t)

	rec := h.do(http.MethodGet, "/health", nil, "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"status":"healthy"`)
	assert.NotEmpty(t, rec.Header().Get(api.RequestIDHeader))

	h.do(http.MethodGet, "/", nil, h.token)
	rec = h.do(http.MethodGet, "/metrics", nil, "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "cloudboard_cache_lookups_total")
}

func TestCORS(t *testing.T) {
	backend := apitest.NewServer()
	defer backend.Close()

	dash, err := NewServer(Options{
		Client:         api.NewClient(backend.URL, backend.URL),
		Logger:         zerolog.Nop(),
		AllowedOrigins: []string{"https://console.example.com"},
	})
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set("Origin", "https://console.example.com")
	rec := httptest.NewRecorder()
	dash.Handler().ServeHTTP(rec, req)
	assert.Equal(t, "https://console.example.com", rec.Header().Get("Access-Control-Allow-Origin"))

	req = httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set("Origin", "https://evil.example.com")
	rec = httptest.NewRecorder()
	dash.Handler().ServeHTTP(rec, req)
	assert.Empty(t, rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestToggleURL(t *testing.T) {
	tests := []struct {
		name     string
		expanded []string
		id       string
		want     string
	}{
		{"expand first", nil, "a", "/?expand=a"},
		{"collapse only", []string{"a"}, "a", "/"},
		{"expand another", []string{"a"}, "b", "/?expand=a&expand=b"},
		{"collapse one of two", []string{"a", "b"}, "a", "/?expand=b"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, toggleURL(tt.expanded, tt.id))
		})
	}
}

func TestCSRFProtection(t *testing.T) {
	h := newHarness(t)
	h.seedAzure("tenant-1", models.Subscription{SubscriptionID: "sub-1", DisplayName: "Production", State: "Enabled"})

	tests := []struct {
		name   string
		form   url.Values
		cookie string
		want   int
	}{
		{"no cookie", url.Values{csrfField: {testCSRF}}, "", http.StatusForbidden},
		{"no field", url.Values{}, testCSRF, http.StatusForbidden},
		{"mismatch", url.Values{csrfField: {"forged"}}, testCSRF, http.StatusForbidden},
		{"match", url.Values{csrfField: {testCSRF}}, testCSRF, http.StatusSeeOther},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := h.send(http.MethodPost, "/subscriptions/refresh", tt.form, h.token, tt.cookie)
			assert.Equal(t, tt.want, rec.Code)
		})
	}
	assert.Equal(t, 1, h.backend.Calls(http.MethodPost, "/me/azure/validate"))
}

func TestCSRFTokenIssuedWithForms(t *testing.T) {
	h := newHarness(t)

	rec := h.send(http.MethodGet, "/login", nil, "", "")
	require.Equal(t, http.StatusOK, rec.Code)
	c := responseCookie(rec, csrfCookie)
	require.NotNil(t, c)
	assert.True(t, c.HttpOnly)
	assert.Contains(t, rec.Body.String(), `name="csrf_token" value="`+c.Value+`"`)

	rec = h.send(http.MethodGet, "/login", nil, "", testCSRF)
	assert.Nil(t, responseCookie(rec, csrfCookie))
	assert.Contains(t, rec.Body.String(), `value="`+testCSRF+`"`)
}
