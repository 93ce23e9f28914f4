package crawler

import "time"

// DateLayout is the wire format for crawl dates. All dates are calendar days
// in UTC; times of day are never significant for traversal.
const DateLayout = "2006-01-02"

// Paper is the metadata record discovered for a single arXiv entry. ArxivID is
// the dedup key: storage guarantees at most one row per ArxivID.
type Paper struct {
	ArxivID         string    `json:"arxiv_id"`
	Title           string    `json:"title"`
	Abstract        string    `json:"abstract"`
	Authors         []string  `json:"authors"`
	PrimaryCategory string    `json:"primary_category"`
	Categories      []string  `json:"categories"`
	AbsURL          string    `json:"url_abs"`
	PDFURL          string    `json:"url_pdf,omitempty"`
	PublishedAt     time.Time `json:"published_at"`
	UpdatedAt       time.Time `json:"updated_at"`
}

// Unit is one unit of work: a single (category, date) pair fetched and stored
// in full before the cursor advances.
type Unit struct {
	Category string
	Date     time.Time
}

// Cursor is the durable pointer to the next unit of work. There is exactly one
// cursor row per deployment; it only ever moves backward through time.
type Cursor struct {
	CurrentDate    time.Time
	CategoryIndex  int
	Categories     []string
	Active         bool
	TotalFound     int64
	TotalStored    int64
	LastActivityAt time.Time
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// CurrentCategory returns the category the cursor points at, or "" when the
// index is out of range.
func (c Cursor) CurrentCategory() string {
	if c.CategoryIndex < 0 || c.CategoryIndex >= len(c.Categories) {
		return ""
	}
	return c.Categories[c.CategoryIndex]
}

// UnitProgress records the outcome of one (category, date) unit. Once
// Completed is true the unit is never reprocessed, even when ErrorMessage is
// set: a unit that exhausted its retries is recorded and skipped forward.
type UnitProgress struct {
	Category     string
	Date         time.Time
	Completed    bool
	PapersFound  int
	PapersStored int
	ErrorMessage string
	StartedAt    time.Time
	CompletedAt  time.Time
}

// FailedPaper is a quarantine record for a paper that failed to persist. It is
// independent of the per-day UnitProgress record: the unit can complete while
// individual papers sit in quarantine.
type FailedPaper struct {
	ArxivID      string
	Category     string
	ErrorMessage string
	RetryCount   int
	LastRetryAt  time.Time
}

// UnitCounts aggregates completion bookkeeping across all units ever
// attempted.
type UnitCounts struct {
	Completed int
	Failed    int
}

// Summary is the operator-facing progress snapshot exposed through the HTTP
// API.
type Summary struct {
	Active            bool     `json:"is_active"`
	CurrentDate       string   `json:"current_date,omitempty"`
	CurrentCategory   string   `json:"current_category,omitempty"`
	Categories        []string `json:"categories"`
	FloorDate         string   `json:"floor_date"`
	CompletedUnits    int      `json:"completed_date_categories"`
	FailedUnits       int      `json:"failed_date_categories"`
	TotalPapersFound  int64    `json:"total_papers_found"`
	TotalPapersStored int64    `json:"total_papers_stored"`
}

// Day truncates t to midnight UTC so two timestamps on the same calendar day
// compare equal.
func Day(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
