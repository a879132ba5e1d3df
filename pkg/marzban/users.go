package marzban

import (
	"context"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"resellerhq/warden/pkg/panels"
)

type usersResponse struct {
	Users []panels.RemoteUser `json:"users"`
	Total int64               `json:"total"`
}

// ListUsers returns every user owned by admin, following pagination until
// a short page is returned.
func (c *Client) ListUsers(ctx context.Context, admin string) ([]panels.RemoteUser, error) {
	var all []panels.RemoteUser
	for offset := 0; ; offset += c.cfg.PageSize {
		q := url.Values{}
		q.Set("admin", admin)
		q.Set("offset", strconv.Itoa(offset))
		q.Set("limit", strconv.Itoa(c.cfg.PageSize))

		var page usersResponse
		if err := c.call(ctx, "list_users", admin, http.MethodGet, "/api/users", q, nil, &page); err != nil {
			return nil, err
		}
		all = append(all, page.Users...)
		if len(page.Users) < c.cfg.PageSize {
			break
		}
	}
	return all, nil
}

// GetStats summarises the users owned by admin.
func (c *Client) GetStats(ctx context.Context, admin string) (panels.Stats, error) {
	users, err := c.ListUsers(ctx, admin)
	if err != nil {
		return panels.Stats{}, err
	}
	return Summarize(users), nil
}

// Summarize computes usage stats from a user listing.
func Summarize(users []panels.RemoteUser) panels.Stats {
	s := panels.Stats{TotalUsers: int64(len(users))}
	for _, u := range users {
		if u.Status == panels.UserActive {
			s.ActiveUsers++
		}
		s.TrafficUsed += u.UsedTraffic
	}
	return s
}

// ExpiredUsers filters users whose expiry is at or before now.
func ExpiredUsers(users []panels.RemoteUser, now time.Time) []panels.RemoteUser {
	var out []panels.RemoteUser
	for _, u := range users {
		if u.Expired(now) {
			out = append(out, u)
		}
	}
	return out
}

type adminModify struct {
	Password string `json:"password"`
	IsSudo   bool   `json:"is_sudo"`
}

// RotatePassword sets a new password on the delegated admin account.
func (c *Client) RotatePassword(ctx context.Context, admin, password string) error {
	body := adminModify{Password: password, IsSudo: false}
	return c.call(ctx, "rotate_password", admin, http.MethodPut, "/api/admin/"+url.PathEscape(admin), nil, body, nil)
}

type userModify struct {
	Status panels.UserStatus `json:"status"`
}

// SetUserStatus enables or disables a delegated user.
func (c *Client) SetUserStatus(ctx context.Context, username string, status panels.UserStatus) error {
	return c.call(ctx, "set_user_status", username, http.MethodPut, "/api/user/"+url.PathEscape(username), nil, userModify{Status: status}, nil)
}

// DeleteUser removes a delegated user.
func (c *Client) DeleteUser(ctx context.Context, username string) error {
	return c.call(ctx, "delete_user", username, http.MethodDelete, "/api/user/"+url.PathEscape(username), nil, nil, nil)
}

var _ panels.Client = (*Client)(nil)
