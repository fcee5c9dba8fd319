package registry

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/twinmcp/gateway/ratelimit"
)

func searchFixture(t *testing.T) *Registry {
	t.Helper()
	reg := New()

	email := testTool("email-send", CategoryCommunication)
	email.Name = "Email Sender"
	email.Description = "sends transactional email"
	email.Tags = []string{"email", "notify"}
	email.Caps.Async = true
	require.NoError(t, reg.Register(email))

	sheet := testTool("sheet-calc", CategoryProductivity)
	sheet.Name = "Sheet Calculator"
	sheet.Description = "evaluates spreadsheet formulas"
	sheet.Tags = []string{"math"}
	sheet.RateLimit = &ratelimit.Policy{Requests: 5, Period: time.Minute, Strategy: ratelimit.StrategySliding}
	require.NoError(t, reg.Register(sheet))

	deploy := testTool("deploy", CategoryDevelopment)
	deploy.Name = "Deployer"
	deploy.Description = "ships releases"
	deploy.Tags = []string{"ci", "email-report"}
	deploy.Cache = &CachePolicy{Enabled: true, TTL: 30}
	require.NoError(t, reg.Register(deploy))

	return reg
}

func TestSearch_QueryMatchesNameDescriptionTags(t *testing.T) {
	reg := searchFixture(t)

	byName := reg.Search("EMAIL SEND", nil)
	require.Len(t, byName, 1)
	require.Equal(t, "email-send", byName[0].Id)

	byDescription := reg.Search("spreadsheet", nil)
	require.Len(t, byDescription, 1)
	require.Equal(t, "sheet-calc", byDescription[0].Id)

	byTag := reg.Search("email", nil)
	require.Len(t, byTag, 2, "matches name on one tool and tag on another")
}

func TestSearch_EmptyQueryReturnsAll(t *testing.T) {
	reg := searchFixture(t)
	require.Len(t, reg.Search("", nil), 3)
}

func TestSearch_CategoryAndTagFilters(t *testing.T) {
	reg := searchFixture(t)

	comm := reg.Search("", &SearchFilter{Category: CategoryCommunication})
	require.Len(t, comm, 1)
	require.Equal(t, "email-send", comm[0].Id)

	tagged := reg.Search("", &SearchFilter{Tags: []string{"math", "ci"}})
	require.Len(t, tagged, 2, "any-tag intersection")
}

func TestSearch_CapabilityFilterIsExact(t *testing.T) {
	reg := searchFixture(t)

	asyncOnly := reg.Search("", &SearchFilter{Caps: Capabilities{Async: true}, CapsSet: []string{"async"}})
	require.Len(t, asyncOnly, 1)
	require.Equal(t, "email-send", asyncOnly[0].Id)

	nonAsync := reg.Search("", &SearchFilter{Caps: Capabilities{Async: false}, CapsSet: []string{"async"}})
	require.Len(t, nonAsync, 2)
}

func TestSearch_PresenceFilters(t *testing.T) {
	reg := searchFixture(t)
	yes := true
	no := false

	limited := reg.Search("", &SearchFilter{HasRateLimit: &yes})
	require.Len(t, limited, 1)
	require.Equal(t, "sheet-calc", limited[0].Id)

	uncached := reg.Search("", &SearchFilter{HasCache: &no})
	require.Len(t, uncached, 2)
}

func TestSearch_QueryAndFilterCombine(t *testing.T) {
	reg := searchFixture(t)
	hits := reg.Search("email", &SearchFilter{Category: CategoryDevelopment})
	require.Len(t, hits, 1)
	require.Equal(t, "deploy", hits[0].Id)
}
