package sources

// genericDetailSelectors are tried in order on detail pages of sources
// without a bespoke list.
var genericDetailSelectors = []string{
	".description",
	"[itemprop=\"description\"]",
	".job-description",
	"#job-description",
	".markdown",
	".entry-content",
	".post-content",
	".content",
	"article",
	"main",
}

// detailSelectors are the bespoke detail-page lists, keyed by source id.
var detailSelectors = map[string][]string{
	"un-careers": {
		".job-description",
		"#jobDescription",
		".jd-content",
		"[id*=\"JobDescription\"]",
		".description",
		"main",
	},
	"remoteok": {
		".description[itemprop=\"description\"]",
		".markdown",
		"td.description",
		".expandContents",
		".description",
	},
	"dice": {
		"[data-cy=\"jobDescription\"]",
		"#jobDescription",
		".job-description",
		".job-details",
	},
}

// DetailSelectors returns the ranked selector list for sourceID's detail
// pages. The result must not be modified.
func DetailSelectors(sourceID string) []string {
	if list, ok := detailSelectors[sourceID]; ok {
		return list
	}
	return genericDetailSelectors
}
