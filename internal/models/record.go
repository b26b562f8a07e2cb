package models

// Field defaults applied when a row is missing the element for a field.
const (
	DefaultTitle    = "Unknown Title"
	DefaultAuthor   = "Unknown Author"
	DefaultNarrator = "Unknown Narrator"
	NoDescription   = "No description found"
)

// Record is one entry of the listening library. It has no identity beyond its
// field values; two records with equal fields are the same record.
type Record struct {
	Title         string `json:"title"`
	Author        string `json:"author"`
	Narrator      string `json:"narrator"`
	Series        string `json:"series"`
	Description   string `json:"description"`
	CoverImageURL string `json:"coverImageUrl"`
}

// HasCover reports whether the record carries a cover image URL.
func (r Record) HasCover() bool {
	return r.CoverImageURL != ""
}

// Normalize fills the defaults for empty fields. Series and cover stay empty.
func (r Record) Normalize() Record {
	if r.Title == "" {
		r.Title = DefaultTitle
	}
	if r.Author == "" {
		r.Author = DefaultAuthor
	}
	if r.Narrator == "" {
		r.Narrator = DefaultNarrator
	}
	if r.Description == "" {
		r.Description = NoDescription
	}
	return r
}

// SameSet reports whether a and b hold the same records with the same
// multiplicity, ignoring order.
func SameSet(a, b []Record) bool {
	if len(a) != len(b) {
		return false
	}

	counts := make(map[Record]int, len(a))
	for _, r := range a {
		counts[r]++
	}
	for _, r := range b {
		n := counts[r]
		if n == 0 {
			return false
		}
		counts[r] = n - 1
	}
	return true
}
