package crawler

import (
	"fmt"
	"time"
)

// Traversal is the pure decision logic for walking backward through
// (date, category) pairs. Within a date, categories run strictly in
// configured order; across dates, strictly newest to oldest. It holds no
// mutable state of its own: the cursor is the state.
type Traversal struct {
	categories []string
	floorDate  time.Time
}

// NewTraversal builds the traversal for a fixed category list and floor date.
func NewTraversal(categories []string, floorDate time.Time) (*Traversal, error) {
	if len(categories) == 0 {
		return nil, fmt.Errorf("traversal requires at least one category")
	}
	return &Traversal{
		categories: append([]string(nil), categories...),
		floorDate:  Day(floorDate),
	}, nil
}

// Categories returns the configured category list in traversal order.
func (t *Traversal) Categories() []string {
	return append([]string(nil), t.categories...)
}

// FloorDate returns the oldest date the crawl will attempt.
func (t *Traversal) FloorDate() time.Time {
	return t.floorDate
}

// NextUnit returns the unit the cursor points at, or ok=false once the
// current date has moved strictly before the floor date.
func (t *Traversal) NextUnit(cursor Cursor) (Unit, bool) {
	date := Day(cursor.CurrentDate)
	if date.Before(t.floorDate) {
		return Unit{}, false
	}
	if cursor.CategoryIndex < 0 || cursor.CategoryIndex >= len(t.categories) {
		return Unit{}, false
	}
	return Unit{
		Category: t.categories[cursor.CategoryIndex],
		Date:     date,
	}, true
}

// Advance moves the cursor to the next unit: increment the category index,
// and when the list is exhausted reset it to zero and step one calendar day
// backward. It returns false, and deactivates the cursor, once the decremented
// date falls before the floor date. Exactly one of (index incremented) or
// (index reset, date decremented) happens per call.
func (t *Traversal) Advance(cursor *Cursor) bool {
	cursor.CategoryIndex++
	if cursor.CategoryIndex < len(t.categories) {
		return true
	}
	cursor.CategoryIndex = 0
	cursor.CurrentDate = Day(cursor.CurrentDate).AddDate(0, 0, -1)
	if cursor.CurrentDate.Before(t.floorDate) {
		cursor.Active = false
		return false
	}
	return true
}

// NewCursor seeds a cursor at startDate with the traversal's categories.
func (t *Traversal) NewCursor(startDate, now time.Time) Cursor {
	return Cursor{
		CurrentDate:    Day(startDate),
		CategoryIndex:  0,
		Categories:     t.Categories(),
		Active:         true,
		LastActivityAt: now,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
}

// CategoriesMatch reports whether the stored cursor was built from the same
// category list, in the same order. A mismatch resets the crawl.
func (t *Traversal) CategoriesMatch(cursor Cursor) bool {
	if len(cursor.Categories) != len(t.categories) {
		return false
	}
	for i, c := range t.categories {
		if cursor.Categories[i] != c {
			return false
		}
	}
	return true
}
