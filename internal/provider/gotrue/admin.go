package gotrue

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/luxclinic/sessiond/internal/domain"
)

// AdminUser is an account created through the admin API.
type AdminUser struct {
	ID    string
	Email string
}

// AdminCreateUser provisions a confirmed account with the service-role
// key. It never touches the client's own session.
func (c *Client) AdminCreateUser(ctx context.Context, email, password string) (*AdminUser, error) {
	if c.config.ServiceKey == "" {
		return nil, fmt.Errorf("admin create user: service key not configured")
	}
	var tr tokenResponse
	err := c.do(ctx, http.MethodPost, "/admin/users", map[string]any{
		"email":         email,
		"password":      password,
		"email_confirm": true,
	}, c.config.ServiceKey, &tr)
	if err != nil {
		return nil, err
	}

	id, mail := tr.ID, tr.Email
	if id == "" {
		id, mail = tr.User.ID, tr.User.Email
	}
	if id == "" {
		return nil, fmt.Errorf("admin create user: response carried no user id")
	}
	return &AdminUser{ID: id, Email: mail}, nil
}

// AdminDeleteUser removes an account. Used to roll back provisioning
// when a later step fails.
func (c *Client) AdminDeleteUser(ctx context.Context, id string) error {
	if c.config.ServiceKey == "" {
		return fmt.Errorf("admin delete user: service key not configured")
	}
	err := c.do(ctx, http.MethodDelete, "/admin/users/"+id, nil, c.config.ServiceKey, nil)
	if err != nil {
		var apiErr *apiError
		if errors.As(err, &apiErr) && apiErr.Status == http.StatusNotFound {
			return domain.ErrNotFound
		}
		return err
	}
	return nil
}
