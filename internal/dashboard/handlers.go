package dashboard

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/gorilla/mux"

	"github.com/catherinevee/cloudboard/internal/cache"
	"github.com/catherinevee/cloudboard/internal/layout"
	"github.com/catherinevee/cloudboard/internal/models"
	"github.com/catherinevee/cloudboard/internal/session"
	apierrors "github.com/catherinevee/cloudboard/internal/shared/errors"
	"github.com/catherinevee/cloudboard/internal/shared/logger"
	cbsync "github.com/catherinevee/cloudboard/internal/sync"
)

// Messages shown after form submissions and sync actions
const (
	msgInvalidCredentials = "Unable to get subscription ID. Please check your credentials."
	msgValidationFailed   = "Unable to validate credentials. Please check your credentials and try again."
	msgNoSubscriptions    = "Azure credentials saved successfully! No subscriptions found. Please check the instructions on the home page."
	msgRegistered         = "Registration successful! Please log in."
	msgSessionExpired     = "Your session has expired. Please log in again."
	msgNoNewSubscriptions = "No new subscriptions found"
)

// backfillKey marks that legacy projects were migrated for this session
const backfillKey = "backfill"

type authedHandler func(w http.ResponseWriter, r *http.Request, token string)

// authed redirects to /login unless the request carries a usable token
func (s *Server) authed(h authedHandler) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		store := requestSession(r)
		if !session.IsAuthenticated(store) {
			s.clearToken(w)
			http.Redirect(w, r, "/login", http.StatusSeeOther)
			return
		}
		token, _ := store.Get()
		h(w, r, token)
	}
}

// fail handles an upstream error on a page load. A rejected token ends the
// session.
func (s *Server) fail(w http.ResponseWriter, r *http.Request, token string, err error) {
	if apierrors.StatusCode(err) == http.StatusUnauthorized {
		s.cache.Scope(token).Apply(cache.Event{Type: cache.LoggedOut})
		s.clearToken(w)
		s.setFlash(w, flashError, msgSessionExpired)
		http.Redirect(w, r, "/login", http.StatusSeeOther)
		return
	}
	reqLog := logger.FromContext(r.Context())
	reqLog.Error().Err(err).Str("path", r.URL.Path).Msg("request failed")
	http.Error(w, apierrors.UserMessage(err), statusFor(err))
}

// redirectWithFlash ends a mutation. A rejected token ends the session
// instead.
func (s *Server) redirectWithFlash(w http.ResponseWriter, r *http.Request, token, to string, kind flashKind, msg string, err error) {
	if err != nil && apierrors.StatusCode(err) == http.StatusUnauthorized {
		s.fail(w, r, token, err)
		return
	}
	s.setFlash(w, kind, msg)
	http.Redirect(w, r, to, http.StatusSeeOther)
}

func statusFor(err error) int {
	switch {
	case apierrors.IsType(err, apierrors.ErrorTypeValidation):
		return http.StatusBadRequest
	case apierrors.IsType(err, apierrors.ErrorTypeAuth):
		return http.StatusUnauthorized
	}
	if code := apierrors.StatusCode(err); code >= 400 && code < 500 {
		return code
	}
	return http.StatusBadGateway
}

// Loads go through the per-token query cache. Concurrent requests share one
// load, so loaders run detached from the cancellation of whichever request
// started them.

func (s *Server) loadInventory(ctx context.Context, token string) (*models.InventoryListing, error) {
	return cache.Load(s.cache.Scope(token), cache.KeyInventory, func() (*models.InventoryListing, error) {
		return s.client.ListInventory(context.WithoutCancel(ctx), token)
	})
}

func (s *Server) loadProjects(ctx context.Context, token string) (*models.ProjectListing, error) {
	return cache.Load(s.cache.Scope(token), cache.KeyProjects, func() (*models.ProjectListing, error) {
		return s.client.ListProjects(context.WithoutCancel(ctx), token)
	})
}

func (s *Server) loadResourceGroups(ctx context.Context, token, subscriptionID string) (*models.ResourceGroupListing, error) {
	return cache.Load(s.cache.Scope(token), cache.ResourceGroupsKey(subscriptionID), func() (*models.ResourceGroupListing, error) {
		return s.client.ListResourceGroups(context.WithoutCancel(ctx), token, subscriptionID)
	})
}

func (s *Server) loadMe(ctx context.Context, token string) (*models.User, error) {
	return cache.Load(s.cache.Scope(token), cache.KeyMe, func() (*models.User, error) {
		return s.client.Me(context.WithoutCancel(ctx), token)
	})
}

// backfillLegacyProjects tags projects without an inventory id, at most
// once per cache lifetime. It reports whether any project changed.
func (s *Server) backfillLegacyProjects(ctx context.Context, token string, projects []models.Project) bool {
	legacy := false
	for _, p := range projects {
		if p.InventoryID == "" {
			legacy = true
			break
		}
	}
	if !legacy {
		return false
	}

	scope := s.cache.Scope(token)
	updated, err := cache.Load(scope, backfillKey, func() (int, error) {
		res, err := s.syncer.BackfillInventoryIDs(context.WithoutCancel(ctx), token)
		if err != nil {
			return 0, err
		}
		if res.Updated > 0 {
			scope.Apply(cache.Event{Type: cache.ProjectsChanged})
		}
		return res.Updated, nil
	})
	if err != nil {
		reqLog := logger.FromContext(ctx)
		reqLog.Debug().Err(err).Msg("inventory id backfill skipped")
		return false
	}
	return updated > 0
}

// sidebar lists the providers that have at least one stored credential
func sidebar(inv *models.InventoryListing) []models.CloudProvider {
	var out []models.CloudProvider
	for _, p := range models.Providers {
		if len(inv.Inventories.For(p)) > 0 {
			out = append(out, p)
		}
	}
	return out
}

func (s *Server) sidebarFor(ctx context.Context, token string) []models.CloudProvider {
	inv, err := s.loadInventory(ctx, token)
	if err != nil {
		reqLog := logger.FromContext(ctx)
		reqLog.Warn().Err(err).Msg("could not load inventory for sidebar")
		return nil
	}
	return sidebar(inv)
}

func (s *Server) loginPage(w http.ResponseWriter, r *http.Request) {
	if session.IsAuthenticated(requestSession(r)) {
		http.Redirect(w, r, "/", http.StatusSeeOther)
		return
	}
	s.render(w, r, http.StatusOK, "login", pageData{Title: "Log in", Page: loginView{}})
}

func (s *Server) loginSubmit(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, "invalid form", http.StatusBadRequest)
		return
	}
	req := models.LoginRequest{
		Email:    strings.TrimSpace(r.PostFormValue("email")),
		Password: r.PostFormValue("password"),
	}

	sess, err := s.client.Login(r.Context(), req)
	if err != nil {
		s.render(w, r, statusFor(err), "login", pageData{
			Title: "Log in",
			Flash: &flash{Kind: flashError, Message: "Login failed: " + apierrors.UserMessage(err)},
			Page:  loginView{Email: req.Email},
		})
		return
	}

	s.setToken(w, sess.Token)
	reqLog := logger.FromContext(r.Context())
	reqLog.Info().Str("user_id", sess.User.ID).Msg("user logged in")
	http.Redirect(w, r, "/", http.StatusSeeOther)
}

func (s *Server) registerPage(w http.ResponseWriter, r *http.Request) {
	s.render(w, r, http.StatusOK, "register", pageData{Title: "Register", Page: registerView{}})
}

func (s *Server) registerSubmit(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, "invalid form", http.StatusBadRequest)
		return
	}
	req := models.RegisterRequest{
		Name:     strings.TrimSpace(r.PostFormValue("name")),
		Email:    strings.TrimSpace(r.PostFormValue("email")),
		Password: r.PostFormValue("password"),
	}

	if _, err := s.client.Register(r.Context(), req); err != nil {
		s.render(w, r, statusFor(err), "register", pageData{
			Title: "Register",
			Flash: &flash{Kind: flashError, Message: "Registration failed: " + apierrors.UserMessage(err)},
			Page:  registerView{Name: req.Name, Email: req.Email},
		})
		return
	}

	s.setFlash(w, flashSuccess, msgRegistered)
	http.Redirect(w, r, "/login", http.StatusSeeOther)
}

func (s *Server) logout(w http.ResponseWriter, r *http.Request) {
	if token, _ := requestSession(r).Get(); token != "" {
		s.cache.Scope(token).Apply(cache.Event{Type: cache.LoggedOut})
	}
	s.clearToken(w)
	http.Redirect(w, r, "/login", http.StatusSeeOther)
}

func (s *Server) homePage(w http.ResponseWriter, r *http.Request, token string) {
	ctx := r.Context()

	inv, err := s.loadInventory(ctx, token)
	if err != nil {
		s.fail(w, r, token, err)
		return
	}
	projects, err := s.loadProjects(ctx, token)
	if err != nil {
		s.fail(w, r, token, err)
		return
	}
	if s.backfillLegacyProjects(ctx, token, projects.Projects.Azure) {
		if projects, err = s.loadProjects(ctx, token); err != nil {
			s.fail(w, r, token, err)
			return
		}
	}

	expanded := r.URL.Query()["expand"]
	isExpanded := make(map[string]bool, len(expanded))
	for _, id := range expanded {
		isExpanded[id] = true
	}

	azure := projects.Projects.Azure
	view := homeView{
		HasCredentials: len(sidebar(inv)) > 0 || len(azure) > 0,
		DiagramURL:     "/diagram.svg",
	}
	for _, p := range azure {
		sv := subscriptionView{
			Project:   p,
			Expanded:  isExpanded[p.ProjectID],
			ToggleURL: toggleURL(expanded, p.ProjectID),
		}
		if sv.Expanded {
			groups, err := s.loadResourceGroups(ctx, token, p.ProjectID)
			if err != nil {
				reqLog := logger.FromContext(ctx)
				reqLog.Warn().Err(err).Str("subscription_id", p.ProjectID).Msg("could not load resource groups")
			} else {
				sv.ResourceGroups = groups.ResourceGroups
			}
		}
		view.Subscriptions = append(view.Subscriptions, sv)
	}
	if len(expanded) > 0 {
		view.DiagramURL += "?selected=" + url.QueryEscape(expanded[0])
	}

	s.render(w, r, http.StatusOK, "home", pageData{
		Title:         "Home",
		Authenticated: true,
		Sidebar:       sidebar(inv),
		Page:          view,
	})
}

// toggleURL returns the home URL with id added to or removed from the
// expanded set
func toggleURL(expanded []string, id string) string {
	q := url.Values{}
	found := false
	for _, e := range expanded {
		if e == id {
			found = true
			continue
		}
		q.Add("expand", e)
	}
	if !found {
		q.Add("expand", id)
	}
	if len(q) == 0 {
		return "/"
	}
	return "/?" + q.Encode()
}

func (s *Server) profilePage(w http.ResponseWriter, r *http.Request, token string) {
	user, err := s.loadMe(r.Context(), token)
	if err != nil {
		s.fail(w, r, token, err)
		return
	}
	s.render(w, r, http.StatusOK, "profile", pageData{
		Title:         "Profile",
		Authenticated: true,
		Sidebar:       s.sidebarFor(r.Context(), token),
		Page:          profileView{User: user},
	})
}

func (s *Server) diagram(w http.ResponseWriter, r *http.Request, token string) {
	ctx := r.Context()
	projects, err := s.loadProjects(ctx, token)
	if err != nil {
		s.fail(w, r, token, err)
		return
	}

	selected := r.URL.Query().Get("selected")
	var groups []models.ResourceGroup
	if selected != "" {
		listing, err := s.loadResourceGroups(ctx, token, selected)
		if err != nil {
			reqLog := logger.FromContext(ctx)
			reqLog.Warn().Err(err).Str("subscription_id", selected).Msg("diagram drawn without resource groups")
		} else {
			groups = listing.ResourceGroups
		}
	}

	d := layout.Arrange(models.ProviderAzure, projects.Projects.Azure, selected, groups)
	w.Header().Set("Content-Type", "image/svg+xml")
	w.Header().Set("Cache-Control", "no-store")
	if err := layout.RenderSVG(w, d); err != nil {
		reqLog := logger.FromContext(ctx)
		reqLog.Warn().Err(err).Msg("failed to write diagram")
	}
}

func (s *Server) credentialsChooser(w http.ResponseWriter, r *http.Request, token string) {
	inv, err := s.loadInventory(r.Context(), token)
	if err != nil {
		s.fail(w, r, token, err)
		return
	}
	var stored []models.Inventory
	for _, p := range models.Providers {
		stored = append(stored, inv.Inventories.For(p)...)
	}
	s.render(w, r, http.StatusOK, "credentials", pageData{
		Title:         "Add credentials",
		Authenticated: true,
		Sidebar:       sidebar(inv),
		Page:          credentialsView{Providers: models.Providers, Inventories: stored},
	})
}

func (s *Server) credentialForm(w http.ResponseWriter, r *http.Request, token string) {
	provider, err := models.ParseProvider(mux.Vars(r)["provider"])
	if err != nil {
		http.NotFound(w, r)
		return
	}
	s.renderCredentialForm(w, r, token, http.StatusOK, credentialFormView{Provider: provider})
}

func (s *Server) renderCredentialForm(w http.ResponseWriter, r *http.Request, token string, status int, view credentialFormView) {
	s.render(w, r, status, "credentialForm", pageData{
		Title:         view.Provider.DisplayName() + " credentials",
		Authenticated: true,
		Sidebar:       s.sidebarFor(r.Context(), token),
		Page:          view,
	})
}

func credentialRequest(r *http.Request, provider models.CloudProvider) models.CreateInventoryRequest {
	return models.CreateInventoryRequest{
		CloudProvider: provider,
		CloudID:       strings.TrimSpace(r.PostFormValue("cloud_id")),
		ClientID:      strings.TrimSpace(r.PostFormValue("client_id")),
		ClientSecret:  strings.TrimSpace(r.PostFormValue("client_secret")),
	}
}

// saveAzureCredential runs the validate, store, name, projects chain
func (s *Server) saveAzureCredential(w http.ResponseWriter, r *http.Request, token string) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, "invalid form", http.StatusBadRequest)
		return
	}
	req := credentialRequest(r, models.ProviderAzure)
	view := credentialFormView{Provider: models.ProviderAzure, CloudID: req.CloudID, ClientID: req.ClientID}

	reg, err := s.syncer.RegisterAzureCredentials(r.Context(), token, req)
	if err != nil {
		if apierrors.StatusCode(err) == http.StatusUnauthorized {
			s.fail(w, r, token, err)
			return
		}
		switch {
		case errors.Is(err, cbsync.ErrInvalidCredentials):
			view.Error = msgInvalidCredentials
		case apierrors.IsType(err, apierrors.ErrorTypeValidation):
			view.Error = apierrors.UserMessage(err)
		default:
			reqLog := logger.FromContext(r.Context())
			reqLog.Error().Err(err).Msg("azure credential registration failed")
			view.Error = msgValidationFailed
		}
		s.renderCredentialForm(w, r, token, statusFor(err), view)
		return
	}

	s.cache.Scope(token).Apply(cache.Event{Type: cache.InventoryChanged})

	msg := msgNoSubscriptions
	if reg.SubscriptionCount > 0 {
		msg = fmt.Sprintf("Azure credentials saved successfully! Found %d subscription(s).", reg.SubscriptionCount)
	}
	s.setFlash(w, flashSuccess, msg)
	http.Redirect(w, r, "/", http.StatusSeeOther)
}

// saveCredential stores an AWS or GCP credential without validation
func (s *Server) saveCredential(w http.ResponseWriter, r *http.Request, token string) {
	provider, err := models.ParseProvider(mux.Vars(r)["provider"])
	if err != nil {
		http.NotFound(w, r)
		return
	}
	if err := r.ParseForm(); err != nil {
		http.Error(w, "invalid form", http.StatusBadRequest)
		return
	}
	req := credentialRequest(r, provider)

	if _, err := s.client.CreateInventory(r.Context(), token, req); err != nil {
		if apierrors.StatusCode(err) == http.StatusUnauthorized {
			s.fail(w, r, token, err)
			return
		}
		s.renderCredentialForm(w, r, token, statusFor(err), credentialFormView{
			Provider: provider,
			CloudID:  req.CloudID,
			ClientID: req.ClientID,
			Error:    "Failed to save credentials: " + apierrors.UserMessage(err),
		})
		return
	}

	s.cache.Scope(token).Apply(cache.Event{Type: cache.InventoryChanged})
	s.setFlash(w, flashSuccess, provider.DisplayName()+" credentials saved successfully!")
	http.Redirect(w, r, "/", http.StatusSeeOther)
}

func (s *Server) deleteCredential(w http.ResponseWriter, r *http.Request, token string) {
	id := mux.Vars(r)["id"]
	if err := s.client.DeleteInventory(r.Context(), token, id); err != nil {
		s.redirectWithFlash(w, r, token, "/credentials/new", flashError,
			"Failed to delete credentials: "+apierrors.UserMessage(err), err)
		return
	}
	s.cache.Scope(token).Apply(cache.Event{Type: cache.InventoryChanged})
	s.redirectWithFlash(w, r, token, "/credentials/new", flashSuccess, "Credentials deleted", nil)
}

func (s *Server) refreshSubscriptions(w http.ResponseWriter, r *http.Request, token string) {
	res, err := s.syncer.RefreshSubscriptions(r.Context(), token)
	// a caller that left early may have missed writes of the shared run
	if res == nil || res.Created+res.Updated > 0 {
		s.cache.Scope(token).Apply(cache.Event{Type: cache.ProjectsChanged})
	}
	if err != nil {
		s.redirectWithFlash(w, r, token, "/", flashError,
			"Failed to refresh subscriptions: "+apierrors.UserMessage(err), err)
		return
	}

	msg := msgNoNewSubscriptions
	if res.Created > 0 {
		msg = fmt.Sprintf("Added %d new subscription(s)", res.Created)
	}
	s.redirectWithFlash(w, r, token, "/", flashSuccess, msg, nil)
}

func (s *Server) syncResourceGroups(w http.ResponseWriter, r *http.Request, token string) {
	subscriptionID := mux.Vars(r)["id"]
	to := "/?expand=" + url.QueryEscape(subscriptionID)

	res, err := s.syncer.SyncResourceGroups(r.Context(), token, subscriptionID)
	if res != nil && res.Saved > 0 {
		s.cache.Scope(token).Apply(cache.Event{Type: cache.ResourceGroupsChanged, SubscriptionID: subscriptionID})
	}
	if err != nil {
		s.redirectWithFlash(w, r, token, "/", flashError,
			"Failed to fetch resource groups: "+apierrors.UserMessage(err), err)
		return
	}

	s.redirectWithFlash(w, r, token, to, flashSuccess,
		fmt.Sprintf("Saved %d of %d resource group(s)", res.Saved, res.Total), nil)
}
