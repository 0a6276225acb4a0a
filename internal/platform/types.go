// Package platform is a client for the site-management API. It covers the
// slice of the API surface a mass update run needs: site enumeration,
// environment CRUD, backups, connection-mode changes, commits, and
// workflow polling.
package platform

// Membership types a site can carry.
const (
	MembershipTypeTeam         = "team"
	MembershipTypeOrganization = "organization"
)

// Code frameworks the platform hosts.
const (
	FrameworkDrupal   = "drupal"
	FrameworkDrupal8  = "drupal8"
	FrameworkBackdrop = "backdrop"
)

// Core environment names that exist on every site.
var coreEnvironments = map[string]bool{
	"dev":  true,
	"test": true,
	"live": true,
}

// Membership tags a site as belonging to a team or an organization.
type Membership struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	Type string `json:"type"`
}

// Site is a hosted site. Read-only for the duration of a run.
type Site struct {
	ID           string       `json:"id"`
	Name         string       `json:"name"`
	Label        string       `json:"label"`
	OwnerID      string       `json:"owner_id"`
	Framework    string       `json:"framework"`
	Frozen       bool         `json:"frozen"`
	Memberships  []Membership `json:"memberships"`
	Capabilities []string     `json:"capabilities"`
}

// HasCapability reports whether the site has the named platform capability
// (e.g. "multidev").
func (s Site) HasCapability(name string) bool {
	for _, c := range s.Capabilities {
		if c == name {
			return true
		}
	}
	return false
}

// IsTeamSite reports whether any membership entry tags the site as a team site.
func (s Site) IsTeamSite() bool {
	for _, m := range s.Memberships {
		if m.Type == MembershipTypeTeam {
			return true
		}
	}
	return false
}

// InOrganization reports whether the site belongs to the given organization.
// The wildcard "all" matches any site with at least one organization membership.
func (s Site) InOrganization(orgID string) bool {
	for _, m := range s.Memberships {
		if m.Type != MembershipTypeOrganization {
			continue
		}
		if orgID == "all" || m.ID == orgID {
			return true
		}
	}
	return false
}

// SupportsContribUpdates reports whether the site's framework can receive
// contrib-module updates via the update tool.
func (s Site) SupportsContribUpdates() bool {
	switch s.Framework {
	case FrameworkDrupal, FrameworkDrupal8, FrameworkBackdrop:
		return true
	default:
		return false
	}
}

// Connection modes for an environment.
const (
	ConnectionModeGit  = "git"
	ConnectionModeSFTP = "sftp"
)

// Environment is one environment of a site (dev/test/live or a preview clone).
type Environment struct {
	ID             string `json:"id"`
	ConnectionMode string `json:"connection_mode"`
	Initialized    bool   `json:"initialized"`
}

// IsCore reports whether the environment is one of dev/test/live, which can
// never be deleted.
func (e Environment) IsCore() bool {
	return coreEnvironments[e.ID]
}

// IsCoreEnvironment reports whether the name is one of dev/test/live.
func IsCoreEnvironment(name string) bool {
	return coreEnvironments[name]
}

// Workflow statuses reported by the platform.
const (
	WorkflowStatusRunning   = "running"
	WorkflowStatusSucceeded = "succeeded"
	WorkflowStatusFailed    = "failed"
)

// Workflow is an asynchronous operation handle returned by every
// environment-mutating call.
type Workflow struct {
	ID          string `json:"id"`
	Status      string `json:"status"`
	Active      bool   `json:"active"`
	Description string `json:"description"`
	Result      string `json:"result"`
}

// Terminal reports whether the workflow has finished, successfully or not.
func (w Workflow) Terminal() bool {
	return !w.Active && w.Status != WorkflowStatusRunning
}

// Succeeded reports whether the workflow finished successfully.
func (w Workflow) Succeeded() bool {
	return w.Status == WorkflowStatusSucceeded
}

// DiffStat summarizes uncommitted changes on an environment.
type DiffStat struct {
	Files []string `json:"files"`
}

// HasChanges reports whether the environment has uncommitted changes.
func (d DiffStat) HasChanges() bool {
	return len(d.Files) > 0
}

// User is the authenticated identity behind the machine token.
type User struct {
	ID    string `json:"id"`
	Email string `json:"email"`
}
