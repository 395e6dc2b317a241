// Package identity предоставляет клиент REST API провайдера идентификации.
package identity

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/zaptasks/zaptasks-api/internal/model"
)

// ErrUserNotFound возвращается, если провайдер не знает пользователя.
var ErrUserNotFound = errors.New("identity user not found")

// Client запрашивает профили пользователей у провайдера идентификации.
type Client struct {
	http *resty.Client
}

type emailAddress struct {
	ID    string `json:"id"`
	Email string `json:"email_address"`
}

type userResponse struct {
	ID                    string         `json:"id"`
	FirstName             string         `json:"first_name"`
	LastName              string         `json:"last_name"`
	PrimaryEmailAddressID string         `json:"primary_email_address_id"`
	EmailAddresses        []emailAddress `json:"email_addresses"`
}

// NewClient создаёт клиент провайдера по адресу API и секретному ключу.
func NewClient(baseURL, secretKey string) *Client {
	base := strings.TrimRight(baseURL, "/")
	if base != "" && !strings.HasPrefix(base, "http://") && !strings.HasPrefix(base, "https://") {
		base = "https://" + base
	}

	return &Client{
		http: resty.New().
			SetBaseURL(base).
			SetAuthToken(secretKey).
			SetTimeout(5 * time.Second).
			SetHeader("Accept", "application/json"),
	}
}

// GetUser возвращает основной email и полное имя пользователя.
func (c *Client) GetUser(ctx context.Context, userID string) (*model.Identity, error) {
	if c == nil || c.http.BaseURL == "" {
		return nil, fmt.Errorf("identity client not configured")
	}

	var user userResponse
	resp, err := c.http.R().
		SetContext(ctx).
		SetPathParam("id", userID).
		SetResult(&user).
		Get("/v1/users/{id}")
	if err != nil {
		return nil, fmt.Errorf("get user %s: %w", userID, err)
	}

	switch {
	case resp.StatusCode() == http.StatusNotFound:
		return nil, fmt.Errorf("%w: %s", ErrUserNotFound, userID)
	case resp.IsError():
		return nil, fmt.Errorf("get user %s: unexpected status: %d", userID, resp.StatusCode())
	}

	return &model.Identity{
		UserID: user.ID,
		Email:  user.primaryEmail(),
		Name:   strings.TrimSpace(user.FirstName + " " + user.LastName),
	}, nil
}

func (u *userResponse) primaryEmail() string {
	for _, e := range u.EmailAddresses {
		if e.ID == u.PrimaryEmailAddressID {
			return e.Email
		}
	}
	if len(u.EmailAddresses) > 0 {
		return u.EmailAddresses[0].Email
	}
	return ""
}
