// internal/plex/client.go
package plex

import (
	"context"
	"encoding/xml"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	apperrors "media-reconciler/internal/common/errors"
	"media-reconciler/internal/common/logger"
	"media-reconciler/internal/common/retry"
	"media-reconciler/internal/models"
	"media-reconciler/internal/normalize"
)

const defaultAccountURL = "https://plex.tv"

// Client talks to the media platform for one server: the server itself for
// connectivity checks, the account API for sharing state. All methods are
// request-response calls with bounded timeouts.
type Client struct {
	baseURL    string
	accountURL string
	token      string
	httpClient *http.Client
	retryAfter retry.Policy
	logger     logger.Logger
}

type Option func(*Client)

// WithAccountURL overrides the account API base (tests).
func WithAccountURL(u string) Option {
	return func(c *Client) { c.accountURL = u }
}

// WithRetryPolicy overrides the transient-failure retry policy.
func WithRetryPolicy(p retry.Policy) Option {
	return func(c *Client) { c.retryAfter = p }
}

func NewClient(baseURL, token string, timeout time.Duration, log logger.Logger, opts ...Option) *Client {
	c := &Client{
		baseURL:    strings.TrimSuffix(baseURL, "/"),
		accountURL: defaultAccountURL,
		token:      token,
		httpClient: &http.Client{Timeout: timeout},
		retryAfter: retry.DefaultPolicy(),
		logger:     log,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Wire types for the account API's shared-user listing.
type userContainer struct {
	XMLName xml.Name   `xml:"MediaContainer"`
	Users   []userNode `xml:"User"`
}

type userNode struct {
	ID       string       `xml:"id,attr"`
	Title    string       `xml:"title,attr"`
	Username string       `xml:"username,attr"`
	Email    string       `xml:"email,attr"`
	Servers  []serverNode `xml:"Server"`
}

type serverNode struct {
	Name         string `xml:"name,attr"`
	NumLibraries int    `xml:"numLibraries,attr"`
}

// ListUsers returns the access grants for users actually shared on the named
// server, with the extended-tier flag derived from shared-section counts.
// Users without a resolvable email are dropped and returned as skipped
// events (likely local/managed accounts), not errors.
func (c *Client) ListUsers(ctx context.Context, serverName string, standardLibraries, optionalLibraries []string) ([]models.AccessGrant, []models.UserEvent, error) {
	container, err := c.fetchUsers(ctx)
	if err != nil {
		return nil, nil, err
	}

	serverKey := normalize.ServerKey(serverName)
	stdCount := len(standardLibraries)
	optCount := len(optionalLibraries)

	var grants []models.AccessGrant
	var skipped []models.UserEvent

	for _, user := range container.Users {
		var srv *serverNode
		for i := range user.Servers {
			if normalize.ServerKey(user.Servers[i].Name) == serverKey {
				srv = &user.Servers[i]
				break
			}
		}
		if srv == nil {
			continue
		}

		email, ok := normalize.Email(user.Email)
		if !ok {
			c.logger.WithError(apperrors.NewNonActionableRecordError("no stored email; likely a local/managed account")).
				Debug("skipping shared user", map[string]interface{}{
					"username": user.Title,
					"server":   serverKey,
				})
			skipped = append(skipped, models.UserEvent{
				UserID:        user.ID,
				Username:      user.Title,
				Server:        serverKey,
				SkippedReason: models.SkipNoEmail,
			})
			continue
		}

		grants = append(grants, models.AccessGrant{
			UserID:       user.ID,
			Username:     user.Title,
			Email:        email,
			Server:       serverKey,
			LibraryCount: srv.NumLibraries,
			FourK:        c.deriveFourK(email, user.Title, serverKey, srv.NumLibraries, stdCount, optCount),
		})
	}

	c.logger.Info("assembled shared users after filters", map[string]interface{}{
		"server":  serverKey,
		"grants":  len(grants),
		"skipped": len(skipped),
	})
	return grants, skipped, nil
}

// deriveFourK compares the shared-section count against the configured
// standard/optional counts. Exact standard match means the base tier; a
// count covering the optional sections means the extended tier. Anything
// off the grid is classified toward the safer side and flagged for review.
func (c *Client) deriveFourK(email, username, server string, shared, stdCount, optCount int) bool {
	switch {
	case optCount == 0:
		return false
	case shared == stdCount+optCount:
		return true
	case shared == stdCount:
		return false
	case shared > stdCount+optCount:
		c.logger.Warn("user has extra libraries shared; investigate", map[string]interface{}{
			"email": email, "username": username, "server": server, "shared": shared,
		})
		return true
	default:
		c.logger.Warn("user has not enough libraries shared; investigate", map[string]interface{}{
			"email": email, "username": username, "server": server, "shared": shared,
		})
		return false
	}
}

// RemoveFriend revokes the sharing relationship for the email. Returns
// false with no error when the relationship did not exist; "already gone"
// is success.
func (c *Client) RemoveFriend(ctx context.Context, email string) (bool, error) {
	normEmail, ok := normalize.Email(email)
	if !ok {
		return false, fmt.Errorf("cannot revoke access for empty email")
	}

	container, err := c.fetchUsers(ctx)
	if err != nil {
		return false, err
	}

	var friendID string
	for _, user := range container.Users {
		if e, ok := normalize.Email(user.Email); ok && e == normEmail {
			friendID = user.ID
			break
		}
	}
	if friendID == "" {
		c.logger.Warn("friendship not found and thus not removed", map[string]interface{}{
			"email": normEmail,
		})
		return false, nil
	}

	url := fmt.Sprintf("%s/api/v2/friends/%s", c.accountURL, friendID)
	err = c.retryAfter.Do(ctx, func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodDelete, url, nil)
		if err != nil {
			return err
		}
		req.Header.Set("X-Plex-Token", c.token)

		resp, err := c.httpClient.Do(req)
		if err != nil {
			return err
		}
		defer resp.Body.Close()

		if resp.StatusCode == http.StatusNotFound {
			// Raced with another removal; treat as already gone.
			return nil
		}
		if resp.StatusCode >= 300 {
			body, _ := io.ReadAll(resp.Body)
			return &retry.StatusError{Status: resp.StatusCode, Err: fmt.Errorf("remove friend: %s", string(body))}
		}
		return nil
	}, nil)
	if err != nil {
		return false, fmt.Errorf("failed to remove friend %s: %w", normEmail, err)
	}
	return true, nil
}

// Validate probes the server's identity endpoint with the configured token.
func (c *Client) Validate(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/identity", nil)
	if err != nil {
		return err
	}
	req.Header.Set("X-Plex-Token", c.token)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("probe %s: %w", c.baseURL, err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("probe %s: status %d", c.baseURL, resp.StatusCode)
	}
	return nil
}

func (c *Client) fetchUsers(ctx context.Context) (*userContainer, error) {
	url := fmt.Sprintf("%s/api/users", c.accountURL)

	var container userContainer
	err := c.retryAfter.Do(ctx, func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			return err
		}
		req.Header.Set("X-Plex-Token", c.token)
		req.Header.Set("Accept", "application/xml")

		resp, err := c.httpClient.Do(req)
		if err != nil {
			return err
		}
		defer resp.Body.Close()

		body, err := io.ReadAll(resp.Body)
		if err != nil {
			return fmt.Errorf("read response body: %w", err)
		}
		if resp.StatusCode != http.StatusOK {
			return &retry.StatusError{Status: resp.StatusCode, Err: fmt.Errorf("list users: %s", string(body))}
		}

		container = userContainer{}
		if err := xml.Unmarshal(body, &container); err != nil {
			return fmt.Errorf("unmarshal user listing: %w", err)
		}
		return nil
	}, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to list shared users: %w", err)
	}
	return &container, nil
}
