package scraper

import (
	"strings"

	md "github.com/JohannesKaufmann/html-to-markdown"
	"github.com/PuerkitoBio/goquery"
)

const boilerplate = "script, style, noscript, template, iframe, svg, form, nav, header, footer, aside, " +
	"[role='navigation'], [role='banner'], [role='contentinfo'], .cookie, .cookies, .newsletter, .sidebar"

// mainRegions are tried in order to isolate the page's main content
var mainRegions = []string{
	"main",
	"[role='main']",
	"#main-content",
	"#content",
	"#main",
	".main-content",
	".content",
	".container",
}

// PreprocessForModel reduces a page to the compact text a model sees:
// boilerplate stripped, main region isolated, converted to markdown and
// cut to maxChars.
func PreprocessForModel(rawHTML, baseURL string, maxChars int) string {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(rawHTML))
	if err != nil {
		return ""
	}
	doc.Find(boilerplate).Remove()

	region := doc.Find("body")
	for _, sel := range mainRegions {
		if candidate := doc.Find(sel).First(); candidate.Length() > 0 && runeLen(inlineText(candidate)) > 200 {
			region = candidate
			break
		}
	}
	if region.Length() == 0 {
		region = doc.Selection
	}

	text := ""
	if fragment, err := goquery.OuterHtml(region); err == nil {
		converter := md.NewConverter(baseURL, true, nil)
		if converted, err := converter.ConvertString(fragment); err == nil {
			text = CleanText(converted)
		}
	}
	if text == "" {
		text = blockText(region)
	}

	return Truncate(text, maxChars)
}
