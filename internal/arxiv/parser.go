package arxiv

import (
	"encoding/xml"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/JakeFAU/arxiv-crawler/internal/crawler"
)

// feed mirrors the subset of the arXiv Atom response the crawler consumes.
type feed struct {
	XMLName      xml.Name `xml:"feed"`
	TotalResults int      `xml:"totalResults"`
	StartIndex   int      `xml:"startIndex"`
	Entries      []entry  `xml:"entry"`
}

type entry struct {
	ID              string       `xml:"id"`
	Title           string       `xml:"title"`
	Summary         string       `xml:"summary"`
	Published       string       `xml:"published"`
	Updated         string       `xml:"updated"`
	Authors         []author     `xml:"author"`
	PrimaryCategory categoryEl   `xml:"primary_category"`
	Categories      []categoryEl `xml:"category"`
	Links           []link       `xml:"link"`
}

type author struct {
	Name string `xml:"name"`
}

type categoryEl struct {
	Term string `xml:"term,attr"`
}

type link struct {
	Href  string `xml:"href,attr"`
	Rel   string `xml:"rel,attr"`
	Title string `xml:"title,attr"`
}

var versionSuffix = regexp.MustCompile(`v\d+$`)

// arxivID extracts the bare identifier ("2403.00001") from an Atom entry id
// URL, dropping any version suffix.
func arxivID(rawID string) string {
	id := rawID
	if i := strings.LastIndex(id, "/abs/"); i >= 0 {
		id = id[i+len("/abs/"):]
	}
	return versionSuffix.ReplaceAllString(id, "")
}

// parseFeed decodes an Atom response into papers. Entries missing an
// identifier or title are skipped rather than failing the page; the count of
// skipped entries is returned for logging.
func parseFeed(data []byte) ([]crawler.Paper, int, error) {
	var f feed
	if err := xml.Unmarshal(data, &f); err != nil {
		return nil, 0, fmt.Errorf("decode atom feed: %w", err)
	}

	papers := make([]crawler.Paper, 0, len(f.Entries))
	skipped := 0
	for _, e := range f.Entries {
		p, ok := paperFromEntry(e)
		if !ok {
			skipped++
			continue
		}
		papers = append(papers, p)
	}
	if len(papers) == 0 {
		return nil, skipped, nil
	}
	return papers, skipped, nil
}

func paperFromEntry(e entry) (crawler.Paper, bool) {
	id := arxivID(strings.TrimSpace(e.ID))
	title := collapseWhitespace(e.Title)
	if id == "" || title == "" {
		return crawler.Paper{}, false
	}

	p := crawler.Paper{
		ArxivID:         id,
		Title:           title,
		Abstract:        collapseWhitespace(e.Summary),
		PrimaryCategory: e.PrimaryCategory.Term,
	}
	for _, a := range e.Authors {
		if name := strings.TrimSpace(a.Name); name != "" {
			p.Authors = append(p.Authors, name)
		}
	}
	for _, c := range e.Categories {
		if c.Term != "" {
			p.Categories = append(p.Categories, c.Term)
		}
	}
	if p.PrimaryCategory == "" && len(p.Categories) > 0 {
		p.PrimaryCategory = p.Categories[0]
	}
	for _, l := range e.Links {
		switch {
		case l.Title == "pdf":
			p.PDFURL = l.Href
		case l.Rel == "alternate":
			p.AbsURL = l.Href
		}
	}
	if p.AbsURL == "" {
		p.AbsURL = strings.TrimSpace(e.ID)
	}
	if t, err := time.Parse(time.RFC3339, e.Published); err == nil {
		p.PublishedAt = t.UTC()
	}
	if t, err := time.Parse(time.RFC3339, e.Updated); err == nil {
		p.UpdatedAt = t.UTC()
	}
	return p, true
}

// collapseWhitespace flattens the newline-continued text arXiv emits inside
// titles and abstracts.
func collapseWhitespace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
