package discord

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"media-reconciler/internal/common/config"
	apperrors "media-reconciler/internal/common/errors"
	"media-reconciler/internal/common/logger"
	"media-reconciler/internal/common/retry"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestSession(t *testing.T, handler http.Handler) *Session {
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	return NewSession(config.DiscordConfig{
		Token:   "bot-token",
		GuildID: "guild-1",
		APIBase: srv.URL,
		Timeout: 5000,
	}, logger.NewTestLogger(t),
		WithRetryPolicy(retry.Policy{Attempts: 2, BaseDelay: time.Millisecond, MaxDelay: time.Millisecond}))
}

func guildHandler(t *testing.T, memberRoles map[string][]string) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/guilds/guild-1/roles", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bot bot-token", r.Header.Get("Authorization"))
		json.NewEncoder(w).Encode([]roleNode{
			{ID: "r-plex", Name: "Plex1"},
			{ID: "r-other", Name: "Moderator"},
		})
	})
	mux.HandleFunc("/guilds/guild-1/members/", func(w http.ResponseWriter, r *http.Request) {
		id := r.URL.Path[len("/guilds/guild-1/members/"):]
		roles, ok := memberRoles[id]
		if !ok {
			w.WriteHeader(http.StatusNotFound)
			json.NewEncoder(w).Encode(apiError{Code: 10007, Message: "Unknown Member"})
			return
		}
		json.NewEncoder(w).Encode(memberNode{Roles: roles})
	})
	return mux
}

func TestSession_MembersWithRole(t *testing.T) {
	s := newTestSession(t, guildHandler(t, map[string][]string{
		"1001": {"r-plex", "r-other"},
		"1002": {"r-other"},
	}))

	// 1003 is not in the guild; duplicates and empties are ignored.
	holders, err := s.MembersWithRole(context.Background(), "plex1",
		[]string{"1001", "1002", "1003", "1001", ""})
	require.NoError(t, err)

	assert.True(t, holders.Has("1001"))
	assert.False(t, holders.Has("1002"))
	assert.False(t, holders.Has("1003"))
	assert.Len(t, holders, 1)
}

func TestSession_MembersWithRole_MissingRoleIsEmptySet(t *testing.T) {
	s := newTestSession(t, guildHandler(t, nil))

	holders, err := s.MembersWithRole(context.Background(), "NoSuchRole", []string{"1001"})
	require.NoError(t, err)
	assert.Empty(t, holders)
}

func TestSession_RemoveRole(t *testing.T) {
	var deleted string
	mux := http.NewServeMux()
	mux.HandleFunc("/guilds/guild-1/roles", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode([]roleNode{{ID: "r-plex", Name: "Plex1"}})
	})
	mux.HandleFunc("/guilds/guild-1/members/1001/roles/r-plex", func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodDelete, r.Method)
		deleted = r.URL.Path
		w.WriteHeader(http.StatusNoContent)
	})

	s := newTestSession(t, mux)
	removed, err := s.RemoveRole(context.Background(), "1001", "Plex1")
	require.NoError(t, err)
	assert.True(t, removed)
	assert.Equal(t, "/guilds/guild-1/members/1001/roles/r-plex", deleted)
}

func TestSession_RemoveRole_AlreadyGone(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/guilds/guild-1/roles", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode([]roleNode{{ID: "r-plex", Name: "Plex1"}})
	})
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		json.NewEncoder(w).Encode(apiError{Code: 10011, Message: "Unknown Role"})
	})

	s := newTestSession(t, mux)
	removed, err := s.RemoveRole(context.Background(), "1001", "Plex1")
	require.NoError(t, err)
	assert.False(t, removed)
}

func TestSession_SendDM(t *testing.T) {
	var content string
	mux := http.NewServeMux()
	mux.HandleFunc("/users/@me/channels", func(w http.ResponseWriter, r *http.Request) {
		var body map[string]string
		json.NewDecoder(r.Body).Decode(&body)
		assert.Equal(t, "1001", body["recipient_id"])
		json.NewEncoder(w).Encode(map[string]string{"id": "chan-9"})
	})
	mux.HandleFunc("/channels/chan-9/messages", func(w http.ResponseWriter, r *http.Request) {
		var body map[string]string
		json.NewDecoder(r.Body).Decode(&body)
		content = body["content"]
		w.WriteHeader(http.StatusOK)
	})

	s := newTestSession(t, mux)
	require.NoError(t, s.SendDM(context.Background(), "1001", "your access expires soon"))
	assert.Equal(t, "your access expires soon", content)
}

func TestSession_SendDM_ClosedDMsAreRecipientUnreachable(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/users/@me/channels", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]string{"id": "chan-9"})
	})
	mux.HandleFunc("/channels/chan-9/messages", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
		json.NewEncoder(w).Encode(apiError{Code: 50007, Message: "Cannot send messages to this user"})
	})

	s := newTestSession(t, mux)
	err := s.SendDM(context.Background(), "1001", "hello")
	require.Error(t, err)
	assert.ErrorIs(t, err, apperrors.ErrRecipientUnreachable)
}

func TestSession_RoleListingIsCachedPerSession(t *testing.T) {
	var roleCalls int
	mux := http.NewServeMux()
	mux.HandleFunc("/guilds/guild-1/roles", func(w http.ResponseWriter, r *http.Request) {
		roleCalls++
		json.NewEncoder(w).Encode([]roleNode{{ID: "r-plex", Name: "Plex1"}})
	})
	mux.HandleFunc("/guilds/guild-1/members/1001/roles/r-plex", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})

	s := newTestSession(t, mux)
	_, err := s.MembersWithRole(context.Background(), "Plex1", nil)
	require.NoError(t, err)
	_, err = s.RemoveRole(context.Background(), "1001", "Plex1")
	require.NoError(t, err)
	assert.Equal(t, 1, roleCalls)
}
