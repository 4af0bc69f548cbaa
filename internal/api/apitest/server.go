// Package apitest provides an in-memory identity and inventory service for
// tests. Both services are served from one httptest.Server since their
// routes do not overlap.
package apitest

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/gorilla/mux"

	"github.com/catherinevee/cloudboard/internal/models"
)

const signingKey = "apitest-signing-key"

// Server is a fake backend with mutable state
type Server struct {
	*httptest.Server

	mu             sync.Mutex
	users          map[string]*account
	inventories    map[string][]models.Inventory
	projects       map[string][]models.Project
	resourceGroups map[string][]models.ResourceGroup
	tenantSubs     map[string][]models.Subscription
	liveGroups     map[string][]models.LiveResourceGroup
	rejected       map[string]string
	failures       []failure
	calls          map[string]int
	appName        string
}

type account struct {
	user     models.User
	password string
}

type failure struct {
	method  string
	path    string
	match   string
	status  int
	message string
}

// NewServer starts a fake backend. Call Close when done.
func NewServer() *Server {
	s := &Server{
		users:          make(map[string]*account),
		inventories:    make(map[string][]models.Inventory),
		projects:       make(map[string][]models.Project),
		resourceGroups: make(map[string][]models.ResourceGroup),
		tenantSubs:     make(map[string][]models.Subscription),
		liveGroups:     make(map[string][]models.LiveResourceGroup),
		rejected:       make(map[string]string),
		calls:          make(map[string]int),
		appName:        "cloudboard-reader",
	}

	r := mux.NewRouter()
	r.Use(s.record)
	r.Use(s.inject)

	r.HandleFunc("/login", s.handleLogin).Methods(http.MethodPost)
	r.HandleFunc("/users", s.handleRegister).Methods(http.MethodPost)
	r.HandleFunc("/me", s.authed(s.handleMe)).Methods(http.MethodGet)

	r.HandleFunc("/me/cloud-credentials", s.authed(s.handleListInventory)).Methods(http.MethodGet)
	r.HandleFunc("/me/cloud-credentials", s.authed(s.handleCreateInventory)).Methods(http.MethodPost)
	r.HandleFunc("/me/cloud-credentials/{id}", s.authed(s.handleDeleteInventory)).Methods(http.MethodDelete)
	r.HandleFunc("/me/azure/validate", s.authed(s.handleValidate)).Methods(http.MethodPost)
	r.HandleFunc("/me/azure/subscriptions", s.authed(s.handleSubscriptions)).Methods(http.MethodGet)
	r.HandleFunc("/me/azure/app-name", s.authed(s.handleAppName)).Methods(http.MethodPost)
	r.HandleFunc("/me/azure/resource-groups", s.authed(s.handleLiveGroups)).Methods(http.MethodPost)
	r.HandleFunc("/me/projects", s.authed(s.handleListProjects)).Methods(http.MethodGet)
	r.HandleFunc("/me/projects", s.authed(s.handleCreateProject)).Methods(http.MethodPost)
	r.HandleFunc("/me/projects/{id}", s.authed(s.handleUpdateProject)).Methods(http.MethodPatch)
	r.HandleFunc("/me/resource-groups", s.authed(s.handleListResourceGroups)).Methods(http.MethodGet)
	r.HandleFunc("/me/resource-groups", s.authed(s.handleCreateResourceGroup)).Methods(http.MethodPost)

	s.Server = httptest.NewServer(r)
	return s
}

// AddUser registers an account and returns a valid token for it
func (s *Server) AddUser(name, email, password string) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	acct := s.addUserLocked(name, email, password)
	token, err := issueToken(acct.user.ID, time.Hour)
	if err != nil {
		panic(err)
	}
	return token
}

// ExpiredToken returns a token for an existing user whose exp is in the past
func (s *Server) ExpiredToken(email string) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	acct, ok := s.users[email]
	if !ok {
		panic("apitest: unknown user " + email)
	}
	token, err := issueToken(acct.user.ID, -time.Hour)
	if err != nil {
		panic(err)
	}
	return token
}

// SetTenantSubscriptions sets the subscriptions visible to credentials of a tenant
func (s *Server) SetTenantSubscriptions(tenantID string, subs ...models.Subscription) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tenantSubs[tenantID] = subs
}

// SetLiveResourceGroups sets what the provider reports for a subscription
func (s *Server) SetLiveResourceGroups(subscriptionID string, groups ...models.LiveResourceGroup) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.liveGroups[subscriptionID] = groups
}

// RejectClient makes validation fail for a client id with the given message
func (s *Server) RejectClient(clientID, message string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rejected[clientID] = message
}

// Fail makes requests to method+path whose body contains match fail with
// status and message. An empty match fails every such request.
func (s *Server) Fail(method, path, match string, status int, message string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failures = append(s.failures, failure{method: method, path: path, match: match, status: status, message: message})
}

// Calls returns how many requests were made to method+path
func (s *Server) Calls(method, path string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls[method+" "+path]
}

// SeedInventory stores a credential for a user directly
func (s *Server) SeedInventory(email string, inv models.Inventory) models.Inventory {
	s.mu.Lock()
	defer s.mu.Unlock()
	uid := s.users[email].user.ID
	if inv.ID == "" {
		inv.ID = newID()
	}
	inv.CreatedAt = time.Now().UTC()
	inv.UpdatedAt = inv.CreatedAt
	s.inventories[uid] = append(s.inventories[uid], inv)
	return inv
}

// SeedProject stores a project for a user directly
func (s *Server) SeedProject(email string, p models.Project) models.Project {
	s.mu.Lock()
	defer s.mu.Unlock()
	uid := s.users[email].user.ID
	if p.ID == "" {
		p.ID = newID()
	}
	p.UserID = uid
	s.projects[uid] = append(s.projects[uid], p)
	return p
}

// SeedResourceGroup stores a resource group for a user directly
func (s *Server) SeedResourceGroup(email string, rg models.ResourceGroup) models.ResourceGroup {
	s.mu.Lock()
	defer s.mu.Unlock()
	uid := s.users[email].user.ID
	if rg.ID == "" {
		rg.ID = newID()
	}
	rg.UserID = uid
	s.resourceGroups[uid] = append(s.resourceGroups[uid], rg)
	return rg
}

// Projects returns a copy of a user's stored projects
func (s *Server) Projects(email string) []models.Project {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]models.Project(nil), s.projects[s.users[email].user.ID]...)
}

// ResourceGroups returns a copy of a user's stored resource groups
func (s *Server) ResourceGroups(email string) []models.ResourceGroup {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]models.ResourceGroup(nil), s.resourceGroups[s.users[email].user.ID]...)
}

// Inventories returns a copy of a user's stored credentials
func (s *Server) Inventories(email string) []models.Inventory {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]models.Inventory(nil), s.inventories[s.users[email].user.ID]...)
}

func (s *Server) addUserLocked(name, email, password string) *account {
	acct := &account{
		user: models.User{
			ID:       newID(),
			Name:     name,
			Email:    email,
			Role:     "user",
			IsActive: true,
		},
		password: password,
	}
	s.users[email] = acct
	return acct
}

func (s *Server) record(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.mu.Lock()
		s.calls[r.Method+" "+r.URL.Path]++
		s.mu.Unlock()
		next.ServeHTTP(w, r)
	})
}

func (s *Server) inject(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		r.Body = io.NopCloser(strings.NewReader(string(body)))

		s.mu.Lock()
		var hit *failure
		for i := range s.failures {
			f := s.failures[i]
			if f.method == r.Method && f.path == r.URL.Path && strings.Contains(string(body), f.match) {
				hit = &f
				break
			}
		}
		s.mu.Unlock()

		if hit != nil {
			writeError(w, hit.status, hit.message)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) authed(h func(http.ResponseWriter, *http.Request, string)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		raw := strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
		claims := &jwt.RegisteredClaims{}
		_, err := jwt.ParseWithClaims(raw, claims, func(t *jwt.Token) (interface{}, error) {
			if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
			}
			return []byte(signingKey), nil
		})
		if err != nil {
			writeError(w, http.StatusUnauthorized, "Invalid or expired token")
			return
		}
		h(w, r, claims.Subject)
	}
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req models.LoginRequest
	if !decode(w, r, &req) {
		return
	}

	s.mu.Lock()
	acct, ok := s.users[req.Email]
	s.mu.Unlock()
	if !ok || acct.password != req.Password {
		writeError(w, http.StatusUnauthorized, "Invalid email or password")
		return
	}

	token, err := issueToken(acct.user.ID, time.Hour)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeData(w, http.StatusOK, models.Session{User: acct.user, Token: token})
}

func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req models.RegisterRequest
	if !decode(w, r, &req) {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.users[req.Email]; exists {
		writeError(w, http.StatusConflict, "User already exists")
		return
	}
	acct := s.addUserLocked(req.Name, req.Email, req.Password)
	writeData(w, http.StatusCreated, map[string]interface{}{"user": acct.user})
}

func (s *Server) handleMe(w http.ResponseWriter, _ *http.Request, uid string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, acct := range s.users {
		if acct.user.ID == uid {
			writeData(w, http.StatusOK, map[string]interface{}{"user": acct.user})
			return
		}
	}
	writeError(w, http.StatusNotFound, "User not found")
}

func (s *Server) handleListInventory(w http.ResponseWriter, _ *http.Request, uid string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var listing models.InventoryListing
	listing.Inventories = models.ByProvider[models.Inventory]{
		Azure: []models.Inventory{}, AWS: []models.Inventory{}, GCP: []models.Inventory{},
	}
	for _, inv := range s.inventories[uid] {
		switch inv.CloudProvider {
		case models.ProviderAzure:
			listing.Inventories.Azure = append(listing.Inventories.Azure, inv)
			listing.Summary.ByProvider.Azure++
		case models.ProviderAWS:
			listing.Inventories.AWS = append(listing.Inventories.AWS, inv)
			listing.Summary.ByProvider.AWS++
		case models.ProviderGCP:
			listing.Inventories.GCP = append(listing.Inventories.GCP, inv)
			listing.Summary.ByProvider.GCP++
		}
		listing.Summary.Total++
	}
	writeData(w, http.StatusOK, listing)
}

func (s *Server) handleCreateInventory(w http.ResponseWriter, r *http.Request, uid string) {
	var req models.CreateInventoryRequest
	if !decode(w, r, &req) {
		return
	}

	now := time.Now().UTC()
	inv := models.Inventory{
		ID:             newID(),
		CloudProvider:  req.CloudProvider,
		CloudID:        req.CloudID,
		ClientID:       req.ClientID,
		ClientSecret:   req.ClientSecret,
		SubscriptionID: req.SubscriptionID,
		CreatedAt:      now,
		UpdatedAt:      now,
	}

	s.mu.Lock()
	s.inventories[uid] = append(s.inventories[uid], inv)
	s.mu.Unlock()

	writeData(w, http.StatusCreated, map[string]interface{}{"inventory": inv})
}

func (s *Server) handleDeleteInventory(w http.ResponseWriter, r *http.Request, uid string) {
	id := mux.Vars(r)["id"]

	s.mu.Lock()
	defer s.mu.Unlock()
	invs := s.inventories[uid]
	for i, inv := range invs {
		if inv.ID == id {
			s.inventories[uid] = append(invs[:i], invs[i+1:]...)
			writeJSON(w, http.StatusOK, map[string]interface{}{"success": true, "message": "Inventory deleted"})
			return
		}
	}
	writeError(w, http.StatusNotFound, "Inventory not found")
}

func (s *Server) handleValidate(w http.ResponseWriter, r *http.Request, _ string) {
	var req models.ValidateCredentialsRequest
	if !decode(w, r, &req) {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if msg, ok := s.rejected[req.ClientID]; ok {
		writeError(w, http.StatusBadRequest, msg)
		return
	}
	subs := s.tenantSubs[req.CloudID]
	writeData(w, http.StatusOK, models.ValidationResult{
		Valid:             true,
		SubscriptionCount: len(subs),
		Subscriptions:     subs,
	})
}

func (s *Server) handleSubscriptions(w http.ResponseWriter, _ *http.Request, uid string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	results := []models.AzureInventoryResult{}
	for _, inv := range s.inventories[uid] {
		if inv.CloudProvider != models.ProviderAzure {
			continue
		}
		result := models.AzureInventoryResult{InventoryID: inv.ID, CloudID: inv.CloudID}
		if msg, ok := s.rejected[inv.ClientID]; ok {
			result.Error = msg
		} else {
			result.Subscriptions = s.tenantSubs[inv.CloudID]
		}
		results = append(results, result)
	}
	writeData(w, http.StatusOK, map[string]interface{}{"azure": results})
}

func (s *Server) handleAppName(w http.ResponseWriter, _ *http.Request, uid string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.inventories[uid] {
		if s.inventories[uid][i].CloudProvider == models.ProviderAzure {
			s.inventories[uid][i].AppName = s.appName
		}
	}
	writeData(w, http.StatusOK, map[string]interface{}{"app_name": s.appName})
}

func (s *Server) handleLiveGroups(w http.ResponseWriter, r *http.Request, _ string) {
	var req struct {
		SubscriptionID string `json:"subscription_id"`
	}
	if !decode(w, r, &req) {
		return
	}
	if req.SubscriptionID == "" {
		writeError(w, http.StatusBadRequest, "subscription_id is required")
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	groups := s.liveGroups[req.SubscriptionID]
	if groups == nil {
		groups = []models.LiveResourceGroup{}
	}
	writeData(w, http.StatusOK, models.LiveResourceGroupListing{
		SubscriptionID: req.SubscriptionID,
		ResourceGroups: groups,
		Count:          len(groups),
	})
}

func (s *Server) handleListProjects(w http.ResponseWriter, _ *http.Request, uid string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var listing models.ProjectListing
	listing.Projects = models.ByProvider[models.Project]{
		Azure: []models.Project{}, AWS: []models.Project{}, GCP: []models.Project{},
	}
	for _, p := range s.projects[uid] {
		switch p.CloudProvider {
		case models.ProviderAzure:
			listing.Projects.Azure = append(listing.Projects.Azure, p)
			listing.Summary.ByProvider.Azure++
		case models.ProviderAWS:
			listing.Projects.AWS = append(listing.Projects.AWS, p)
			listing.Summary.ByProvider.AWS++
		case models.ProviderGCP:
			listing.Projects.GCP = append(listing.Projects.GCP, p)
			listing.Summary.ByProvider.GCP++
		}
		listing.Summary.Total++
	}
	writeData(w, http.StatusOK, listing)
}

func (s *Server) handleCreateProject(w http.ResponseWriter, r *http.Request, uid string) {
	var req models.CreateProjectRequest
	if !decode(w, r, &req) {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for _, p := range s.projects[uid] {
		if p.ProjectID == req.ProjectID {
			writeError(w, http.StatusConflict, "Project already exists")
			return
		}
	}

	now := time.Now().UTC()
	p := models.Project{
		ID:            newID(),
		CloudProvider: req.CloudProvider,
		ProjectID:     req.ProjectID,
		Name:          req.Name,
		State:         req.State,
		UserID:        uid,
		InventoryID:   req.InventoryID,
		IsNew:         req.IsNew,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	s.projects[uid] = append(s.projects[uid], p)
	writeData(w, http.StatusCreated, map[string]interface{}{"project": p})
}

func (s *Server) handleUpdateProject(w http.ResponseWriter, r *http.Request, uid string) {
	var req models.UpdateProjectRequest
	if !decode(w, r, &req) {
		return
	}
	id := mux.Vars(r)["id"]

	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.projects[uid] {
		p := &s.projects[uid][i]
		if p.ID != id {
			continue
		}
		if req.Name != nil {
			p.Name = *req.Name
		}
		if req.State != nil {
			p.State = *req.State
		}
		if req.InventoryID != nil {
			p.InventoryID = *req.InventoryID
		}
		p.UpdatedAt = time.Now().UTC()
		writeData(w, http.StatusOK, map[string]interface{}{"project": *p})
		return
	}
	writeError(w, http.StatusNotFound, "Project not found")
}

func (s *Server) handleListResourceGroups(w http.ResponseWriter, r *http.Request, uid string) {
	sub := r.URL.Query().Get("subscription_id")

	s.mu.Lock()
	defer s.mu.Unlock()
	groups := []models.ResourceGroup{}
	for _, rg := range s.resourceGroups[uid] {
		if sub == "" || rg.SubscriptionID == sub {
			groups = append(groups, rg)
		}
	}
	writeData(w, http.StatusOK, models.ResourceGroupListing{
		SubscriptionID: sub,
		ResourceGroups: groups,
		Count:          len(groups),
	})
}

func (s *Server) handleCreateResourceGroup(w http.ResponseWriter, r *http.Request, uid string) {
	var req models.CreateResourceGroupRequest
	if !decode(w, r, &req) {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for _, rg := range s.resourceGroups[uid] {
		if rg.SubscriptionID == req.SubscriptionID && rg.Name == req.Name {
			writeError(w, http.StatusConflict, "Resource group already exists")
			return
		}
	}

	now := time.Now().UTC()
	rg := models.ResourceGroup{
		ID:             newID(),
		Name:           req.Name,
		Location:       req.Location,
		Type:           req.Type,
		Tags:           req.Tags,
		SubscriptionID: req.SubscriptionID,
		UserID:         uid,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	s.resourceGroups[uid] = append(s.resourceGroups[uid], rg)
	writeData(w, http.StatusCreated, map[string]interface{}{"resourceGroup": rg})
}

func issueToken(userID string, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := jwt.RegisteredClaims{
		Subject:   userID,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(signingKey))
}

func newID() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")[:24]
}

func decode(w http.ResponseWriter, r *http.Request, v interface{}) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return false
	}
	return true
}

func writeData(w http.ResponseWriter, status int, data interface{}) {
	writeJSON(w, status, map[string]interface{}{"success": true, "data": data})
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]interface{}{"success": false, "error": message})
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
