// Package filter narrows a fleet's site list down to the sites a run should
// touch. Filters are conjunctive, order-independent, and idempotent.
package filter

import (
	"fmt"
	"regexp"

	"github.com/google/uuid"

	"github.com/libops/fleetctl/internal/platform"
)

// ByTeam keeps sites with at least one team membership.
func ByTeam(sites []platform.Site) []platform.Site {
	var out []platform.Site
	for _, s := range sites {
		if s.IsTeamSite() {
			out = append(out, s)
		}
	}
	return out
}

// ByOrganization keeps sites belonging to the given organization. The
// wildcard "all" keeps any site with at least one organization membership.
func ByOrganization(sites []platform.Site, orgID string) []platform.Site {
	var out []platform.Site
	for _, s := range sites {
		if s.InOrganization(orgID) {
			out = append(out, s)
		}
	}
	return out
}

// ByName keeps sites whose name matches the expression. The match is
// unanchored, so "ctools" matches "ctools-site".
func ByName(sites []platform.Site, expr string) ([]platform.Site, error) {
	re, err := regexp.Compile(expr)
	if err != nil {
		return nil, fmt.Errorf("invalid name filter %q: %w", expr, err)
	}

	var out []platform.Site
	for _, s := range sites {
		if re.MatchString(s.Name) {
			out = append(out, s)
		}
	}
	return out, nil
}

// ByOwner keeps sites owned by the given user UUID. The caller is
// responsible for resolving the literal "me" to the session user before
// filtering.
func ByOwner(sites []platform.Site, ownerID string) ([]platform.Site, error) {
	if _, err := uuid.Parse(ownerID); err != nil {
		return nil, fmt.Errorf("invalid owner %q: %w", ownerID, err)
	}

	var out []platform.Site
	for _, s := range sites {
		if s.OwnerID == ownerID {
			out = append(out, s)
		}
	}
	return out, nil
}

// Options carries the filter flags of one run.
type Options struct {
	Team  bool
	Org   string
	Name  string
	Owner string // already resolved; never the literal "me"
}

// Apply runs every requested filter in sequence. Absent flags are no-ops.
func Apply(sites []platform.Site, opts Options) ([]platform.Site, error) {
	if opts.Team {
		sites = ByTeam(sites)
	}
	if opts.Org != "" {
		sites = ByOrganization(sites, opts.Org)
	}
	if opts.Name != "" {
		var err error
		sites, err = ByName(sites, opts.Name)
		if err != nil {
			return nil, err
		}
	}
	if opts.Owner != "" {
		var err error
		sites, err = ByOwner(sites, opts.Owner)
		if err != nil {
			return nil, err
		}
	}
	return sites, nil
}
