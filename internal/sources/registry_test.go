package sources

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jennfreelancing-alt/primcechances-v1-sub000/internal/domain"
)

func TestLoad_Builtin(t *testing.T) {
	reg, err := Load("")
	require.NoError(t, err)
	require.Greater(t, reg.Len(), 3)

	un, ok := reg.Get("un-careers")
	require.True(t, ok)
	assert.Equal(t, "United Nations", un.OrganizationName())
	assert.Equal(t, 2*time.Second, un.RequestConfig.Delay)
	assert.Contains(t, un.Filters.ExcludeKeywords, "expired")

	desk, ok := reg.Get("opportunity-desk")
	require.True(t, ok)
	assert.Equal(t, 1500*time.Millisecond, desk.RequestConfig.Delay)
	assert.Equal(t, "scholarships", desk.CategoryMapping.Keywords["scholarship"])
	assert.Equal(t, domain.PaginationURL, desk.Pagination.Type)

	dice, ok := reg.Get("dice")
	require.True(t, ok)
	assert.Equal(t, "https://www.dice.com/jobs?q=remote&page=2&pageSize=20", dice.ListingURL(2))
}

func TestLoad_OverrideFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sources.yaml")
	body := `
sources:
  - id: un-careers
    name: UN Careers (mirror)
    base_url: https://mirror.example.org
    selectors:
      container: ".row"
      title: "h3"
      description: "p"
      link: "a"
  - id: local-board
    name: Local Board
    base_url: https://board.example.com
`
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))

	reg, err := Load(path)
	require.NoError(t, err)

	un, _ := reg.Get("un-careers")
	assert.Equal(t, "https://mirror.example.org", un.BaseURL)

	all := reg.All()
	assert.Equal(t, "un-careers", all[0].ID, "override keeps position")
	assert.Equal(t, "local-board", all[len(all)-1].ID)
}

func TestNew_RejectsInvalid(t *testing.T) {
	_, err := New(domain.SourceConfig{ID: "x", Name: "X", BaseURL: "not a url"})
	assert.Error(t, err)

	_, err = New(
		domain.SourceConfig{ID: "x", Name: "X", BaseURL: "https://x.example"},
		domain.SourceConfig{ID: "x", Name: "X2", BaseURL: "https://x2.example"},
	)
	assert.Error(t, err)

	_, err = New(domain.SourceConfig{
		ID: "x", Name: "X", BaseURL: "https://x.example",
		Pagination: domain.Pagination{Type: "infinite"},
	})
	assert.Error(t, err)
}

func TestDetailSelectors(t *testing.T) {
	assert.Equal(t, ".job-description", DetailSelectors("un-careers")[0])
	assert.Equal(t, ".description", DetailSelectors("unknown")[0])
	assert.Contains(t, DetailSelectors("unknown"), "main")
}
