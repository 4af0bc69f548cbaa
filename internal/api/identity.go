package api

import (
	"context"
	"net/http"

	"github.com/catherinevee/cloudboard/internal/models"
)

var (
	opLogin    = operation{name: "login", fallback: "Login failed"}
	opRegister = operation{name: "register", fallback: "Registration failed"}
	opMe       = operation{name: "me", fallback: "Failed to fetch user"}
)

type userData struct {
	User models.User `json:"user"`
}

// Login exchanges credentials for a user and bearer token
func (c *Client) Login(ctx context.Context, req models.LoginRequest) (*models.Session, error) {
	return call[models.Session](ctx, c, opLogin, http.MethodPost, c.identityURL+"/login", "", &req)
}

// Register creates an account. It does not log the user in.
func (c *Client) Register(ctx context.Context, req models.RegisterRequest) (*models.User, error) {
	data, err := call[userData](ctx, c, opRegister, http.MethodPost, c.identityURL+"/users", "", &req)
	if err != nil {
		return nil, err
	}
	return &data.User, nil
}

// Me returns the user the token belongs to
func (c *Client) Me(ctx context.Context, token string) (*models.User, error) {
	if err := requireToken(opMe, token); err != nil {
		return nil, err
	}
	data, err := call[userData](ctx, c, opMe, http.MethodGet, c.identityURL+"/me", token, nil)
	if err != nil {
		return nil, err
	}
	return &data.User, nil
}
