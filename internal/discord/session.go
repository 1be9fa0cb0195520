// internal/discord/session.go
package discord

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"media-reconciler/internal/common/config"
	apperrors "media-reconciler/internal/common/errors"
	"media-reconciler/internal/common/logger"
	"media-reconciler/internal/common/retry"
	"media-reconciler/internal/models"
)

const defaultAPIBase = "https://discord.com/api/v10"

// dmsClosedCode is the platform's error code for recipients that do not
// accept direct messages from the bot.
const dmsClosedCode = 50007

// Session is a run-scoped REST client for the chat platform. Create one per
// reconciliation run and discard it; the guild role listing is cached for
// the session's lifetime.
type Session struct {
	apiBase    string
	token      string
	guildID    string
	httpClient *http.Client
	retryAfter retry.Policy
	logger     logger.Logger

	rolesByName map[string]string // lowercased role name -> role id
}

type Option func(*Session)

// WithRetryPolicy overrides the transient-failure retry policy.
func WithRetryPolicy(p retry.Policy) Option {
	return func(s *Session) { s.retryAfter = p }
}

func NewSession(cfg config.DiscordConfig, log logger.Logger, opts ...Option) *Session {
	base := strings.TrimSuffix(cfg.APIBase, "/")
	if base == "" {
		base = defaultAPIBase
	}
	timeout := time.Duration(cfg.Timeout) * time.Millisecond
	if timeout == 0 {
		timeout = 10 * time.Second
	}
	s := &Session{
		apiBase:    base,
		token:      cfg.Token,
		guildID:    cfg.GuildID,
		httpClient: &http.Client{Timeout: timeout},
		retryAfter: retry.DefaultPolicy(),
		logger:     log,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

type roleNode struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

type memberNode struct {
	Roles []string `json:"roles"`
}

type apiError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// roleID resolves a role name case-insensitively against the guild's roles,
// fetching and caching the listing on first use. Returns "" when the guild
// has no such role.
func (s *Session) roleID(ctx context.Context, roleName string) (string, error) {
	if s.rolesByName == nil {
		var roles []roleNode
		path := fmt.Sprintf("/guilds/%s/roles", s.guildID)
		if err := s.get(ctx, path, &roles); err != nil {
			return "", fmt.Errorf("list guild roles: %w", err)
		}
		s.rolesByName = make(map[string]string, len(roles))
		for _, r := range roles {
			s.rolesByName[strings.ToLower(r.Name)] = r.ID
		}
	}
	return s.rolesByName[strings.ToLower(roleName)], nil
}

// MembersWithRole returns which of the candidate member ids currently hold
// the named role. A role missing from the guild yields an empty set and a
// warning, not an error; members unknown to the guild are simply absent.
func (s *Session) MembersWithRole(ctx context.Context, roleName string, candidateIDs []string) (models.RoleMembership, error) {
	holders := make(models.RoleMembership)

	rid, err := s.roleID(ctx, roleName)
	if err != nil {
		return nil, err
	}
	if rid == "" {
		s.logger.Warn("role not found in guild", map[string]interface{}{
			"role": roleName, "guild": s.guildID,
		})
		return holders, nil
	}

	seen := make(map[string]bool, len(candidateIDs))
	for _, id := range candidateIDs {
		if id == "" || seen[id] {
			continue
		}
		seen[id] = true

		var member memberNode
		path := fmt.Sprintf("/guilds/%s/members/%s", s.guildID, id)
		err := s.get(ctx, path, &member)
		if err != nil {
			if isNotFound(err) {
				continue // not in the guild at all
			}
			return nil, fmt.Errorf("fetch member %s: %w", id, err)
		}
		for _, r := range member.Roles {
			if r == rid {
				holders[id] = struct{}{}
				break
			}
		}
	}
	return holders, nil
}

// RemoveRole strips the named role from a member. Returns false with no
// error when the member or the role assignment is already gone.
func (s *Session) RemoveRole(ctx context.Context, memberID, roleName string) (bool, error) {
	rid, err := s.roleID(ctx, roleName)
	if err != nil {
		return false, err
	}
	if rid == "" {
		return false, nil
	}

	path := fmt.Sprintf("/guilds/%s/members/%s/roles/%s", s.guildID, memberID, rid)
	err = s.do(ctx, http.MethodDelete, path, nil, nil)
	if err != nil {
		if isNotFound(err) {
			s.logger.Warn("role assignment already gone", map[string]interface{}{
				"member": memberID, "role": roleName,
			})
			return false, nil
		}
		return false, fmt.Errorf("remove role from %s: %w", memberID, err)
	}
	return true, nil
}

// SendDM opens (or reuses) the DM channel with the user and posts the
// message. Recipients with closed DMs surface as ErrRecipientUnreachable.
func (s *Session) SendDM(ctx context.Context, userID, content string) error {
	var channel struct {
		ID string `json:"id"`
	}
	err := s.do(ctx, http.MethodPost, "/users/@me/channels",
		map[string]string{"recipient_id": userID}, &channel)
	if err != nil {
		if isDMsClosed(err) {
			return fmt.Errorf("open dm channel with %s: %w", userID, apperrors.ErrRecipientUnreachable)
		}
		return fmt.Errorf("open dm channel with %s: %w", userID, err)
	}

	err = s.do(ctx, http.MethodPost, fmt.Sprintf("/channels/%s/messages", channel.ID),
		map[string]string{"content": content}, nil)
	if err != nil {
		if isDMsClosed(err) {
			return fmt.Errorf("dm %s: %w", userID, apperrors.ErrRecipientUnreachable)
		}
		return fmt.Errorf("dm %s: %w", userID, err)
	}
	return nil
}

// Validate probes the token by fetching the guild's role listing.
func (s *Session) Validate(ctx context.Context) error {
	_, err := s.roleID(ctx, "")
	return err
}

func (s *Session) get(ctx context.Context, path string, out interface{}) error {
	return s.do(ctx, http.MethodGet, path, nil, out)
}

// requestError carries status and decoded platform error for classification.
type requestError struct {
	Status int
	API    apiError
	Body   string
}

func (e *requestError) Error() string {
	return fmt.Sprintf("status %d (code %d): %s", e.Status, e.API.Code, e.Body)
}

func isNotFound(err error) bool {
	var re *requestError
	return errors.As(err, &re) && re.Status == http.StatusNotFound
}

func isDMsClosed(err error) bool {
	var re *requestError
	if !errors.As(err, &re) {
		return false
	}
	return re.API.Code == dmsClosedCode || re.Status == http.StatusForbidden
}

func (s *Session) do(ctx context.Context, method, path string, payload, out interface{}) error {
	url := s.apiBase + path

	return s.retryAfter.Do(ctx, func() error {
		var body io.Reader
		if payload != nil {
			data, err := json.Marshal(payload)
			if err != nil {
				return fmt.Errorf("marshal payload: %w", err)
			}
			body = bytes.NewReader(data)
		}

		req, err := http.NewRequestWithContext(ctx, method, url, body)
		if err != nil {
			return err
		}
		req.Header.Set("Authorization", "Bot "+s.token)
		if payload != nil {
			req.Header.Set("Content-Type", "application/json")
		}

		resp, err := s.httpClient.Do(req)
		if err != nil {
			return err
		}
		defer resp.Body.Close()

		raw, err := io.ReadAll(resp.Body)
		if err != nil {
			return fmt.Errorf("read response body: %w", err)
		}

		if resp.StatusCode >= 300 {
			re := &requestError{Status: resp.StatusCode, Body: strings.TrimSpace(string(raw))}
			json.Unmarshal(raw, &re.API)
			if retry.IsTransientStatus(resp.StatusCode) {
				return &retry.StatusError{Status: resp.StatusCode, Err: re}
			}
			return re
		}

		if out != nil && len(raw) > 0 {
			if err := json.Unmarshal(raw, out); err != nil {
				return fmt.Errorf("unmarshal response: %w", err)
			}
		}
		return nil
	}, nil)
}
