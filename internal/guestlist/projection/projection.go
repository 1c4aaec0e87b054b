// Package projection derives the client-visible guestlist view from a raw
// record snapshot. Build is a pure function: snapshot in, view out, no
// retained state, so every store change can rebuild the view from scratch.
package projection

import (
	"sort"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"

	"gatecheck/internal/guestlist/models"
	platformstrings "gatecheck/pkg/platform/strings"
)

// fallbackSection collects guests whose names yield no usable first letter.
const fallbackSection = "Z"

// Section is one alphabetic group of the visible list.
type Section struct {
	Key    string               `json:"key"`
	Guests []models.GuestRecord `json:"guests"`
}

// View is the client-facing projection of one snapshot.
//
// Buckets counts every record by status regardless of the selected filter, so
// the section picker always shows totals that sum to Total. Sections and
// Genders reflect the filtered set.
type View struct {
	Total    int                        `json:"total"`
	Buckets  map[models.GuestStatus]int `json:"buckets"`
	Bucket   models.GuestStatus         `json:"bucket,omitempty"`
	Query    string                     `json:"query,omitempty"`
	Sections []Section                  `json:"sections"`
	Genders  map[string]int             `json:"genders"`
}

// stripMarks removes diacritic marks so "Émile" and "Emile" land in the same
// section.
var stripMarks = transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)

// Build projects a record snapshot through an optional status bucket and an
// optional case-insensitive name query.
func Build(records []models.GuestRecord, bucket models.GuestStatus, query string) View {
	view := View{
		Total:   len(records),
		Buckets: make(map[models.GuestStatus]int, 3),
		Bucket:  bucket,
		Query:   query,
		Genders: make(map[string]int),
	}

	needle := platformstrings.FoldForSearch(query)
	grouped := make(map[string][]models.GuestRecord)
	for _, rec := range records {
		view.Buckets[rec.Status]++
		if bucket != "" && rec.Status != bucket {
			continue
		}
		if needle != "" && !strings.Contains(platformstrings.FoldForSearch(rec.Name), needle) {
			continue
		}
		key := sectionKey(rec.Name)
		grouped[key] = append(grouped[key], rec)
		if rec.Gender != "" {
			view.Genders[rec.Gender]++
		}
	}

	view.Sections = make([]Section, 0, len(grouped))
	for key, guests := range grouped {
		sort.Slice(guests, func(i, j int) bool {
			return platformstrings.FoldForSearch(guests[i].Name) < platformstrings.FoldForSearch(guests[j].Name)
		})
		view.Sections = append(view.Sections, Section{Key: key, Guests: guests})
	}
	sort.Slice(view.Sections, func(i, j int) bool { return view.Sections[i].Key < view.Sections[j].Key })
	return view
}

// sectionKey folds the first character of a name to an upper-case ASCII
// letter. Empty or unreadable names fall back to the last section.
func sectionKey(name string) string {
	name = strings.TrimSpace(name)
	if name == "" {
		return fallbackSection
	}
	folded, _, err := transform.String(stripMarks, name)
	if err != nil || folded == "" {
		return fallbackSection
	}
	r := unicode.ToUpper([]rune(folded)[0])
	if r < 'A' || r > 'Z' {
		return fallbackSection
	}
	return string(r)
}
