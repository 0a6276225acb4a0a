package platform

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/libops/fleetctl/internal/config"
)

// testClient spins up a fake platform API and returns a client against it.
func testClient(t *testing.T, handler http.Handler) *Client {
	t.Helper()

	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	return NewClient(&config.Config{
		APIBaseURL:      srv.URL,
		MachineToken:    "test-token",
		HTTPTimeout:     5 * time.Second,
		PollInterval:    10 * time.Millisecond,
		WorkflowTimeout: 250 * time.Millisecond,
		RateLimit:       1000,
		RateBurst:       1000,
	})
}

func TestCurrentUser(t *testing.T) {
	client := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/users/me", r.URL.Path)
		assert.Equal(t, "Bearer test-token", r.Header.Get("Authorization"))

		_ = json.NewEncoder(w).Encode(User{ID: "u-1", Email: "ops@example.com"})
	}))

	user, err := client.CurrentUser(context.Background())

	require.NoError(t, err)
	assert.Equal(t, "u-1", user.ID)
	assert.Equal(t, "ops@example.com", user.Email)
}

func TestListSites(t *testing.T) {
	client := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/sites", r.URL.Path)

		_ = json.NewEncoder(w).Encode([]Site{
			{ID: "s-1", Name: "ctools-site", Framework: FrameworkDrupal8},
			{ID: "s-2", Name: "views-site", Framework: FrameworkDrupal},
		})
	}))

	sites, err := client.ListSites(context.Background())

	require.NoError(t, err)
	require.Len(t, sites, 2)
	assert.Equal(t, "ctools-site", sites[0].Name)
}

func TestCreateEnvironment(t *testing.T) {
	client := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/sites/s-1/environments", r.URL.Path)

		var payload map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&payload))
		assert.Equal(t, "mcu", payload["id"])
		assert.Equal(t, "dev", payload["source"])

		_ = json.NewEncoder(w).Encode(Workflow{ID: "wf-1", Status: WorkflowStatusRunning, Active: true})
	}))

	wf, err := client.CreateEnvironment(context.Background(), "s-1", "mcu", "dev")

	require.NoError(t, err)
	assert.Equal(t, "wf-1", wf.ID)
	assert.False(t, wf.Terminal())
}

func TestAPIError(t *testing.T) {
	client := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		_ = json.NewEncoder(w).Encode(map[string]string{"message": "resource not found"})
	}))

	_, err := client.ListSites(context.Background())

	require.Error(t, err)
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusNotFound, apiErr.StatusCode)
	assert.Contains(t, apiErr.Message, "not found")
}

func TestSiteMembershipHelpers(t *testing.T) {
	site := Site{
		Memberships: []Membership{
			{ID: "org-a", Type: MembershipTypeOrganization},
			{ID: "team-1", Type: MembershipTypeTeam},
		},
	}

	assert.True(t, site.IsTeamSite())
	assert.True(t, site.InOrganization("org-a"))
	assert.True(t, site.InOrganization("all"))
	assert.False(t, site.InOrganization("org-b"))
	assert.False(t, Site{}.IsTeamSite())
	assert.False(t, Site{}.InOrganization("all"))
}

func TestSupportsContribUpdates(t *testing.T) {
	assert.True(t, Site{Framework: FrameworkDrupal}.SupportsContribUpdates())
	assert.True(t, Site{Framework: FrameworkDrupal8}.SupportsContribUpdates())
	assert.True(t, Site{Framework: FrameworkBackdrop}.SupportsContribUpdates())
	assert.False(t, Site{Framework: "wordpress"}.SupportsContribUpdates())
}
