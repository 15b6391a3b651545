// Package category maps the platform's booking categories and courts/rooms to
// the numeric identifiers the API expects, and holds the advance booking
// window policy for each category.
package category

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/lithammer/fuzzysearch/fuzzy"
)

// ErrNotFound is returned when there is nothing to match against.
var ErrNotFound = errors.New("category: no candidates")

// Category is a booking category identified on the platform by its tag ID.
type Category struct {
	Key      string
	Tag      int
	HallLike bool
}

// DisplayName renders the key the way operators type it, e.g.
// BEACH_VOLLEYBALL_COURT becomes "Beach volleyball court".
func (c Category) DisplayName() string {
	return displayName(c.Key)
}

func (c Category) String() string {
	return c.DisplayName()
}

// Built-in categories. Tags can be overridden per environment through
// NewRegistry.
var (
	Strength             = Category{Key: "STRENGTH", Tag: 5}
	Gym                  = Category{Key: "GYM", Tag: 28}
	BeachVolleyballCourt = Category{Key: "BEACH_VOLLEYBALL_COURT", Tag: 88, HallLike: true}
	BodyPower            = Category{Key: "BODY_POWER", Tag: 121}
	HallX1               = Category{Key: "HALL_X1", Tag: 147, HallLike: true}
	HallX2               = Category{Key: "HALL_X2", Tag: 148, HallLike: true}
	HallX3               = Category{Key: "HALL_X3", Tag: 149, HallLike: true}
	PowerKick            = Category{Key: "POWER_KICK", Tag: 161}
)

// ErrSubcategoryMismatch is returned when a subcategory does not belong to the
// category it was requested for.
var ErrSubcategoryMismatch = errors.New("category: subcategory does not belong to category")

// Subcategory is one physical resource inside a category, such as a single
// beach volleyball court, identified by its bookable product ID. Parent is
// the key of the category it belongs to.
type Subcategory struct {
	Key       string
	ProductID int64
	Parent    string
}

// DisplayName renders the key for operators, e.g. "Beach court 1".
func (s Subcategory) DisplayName() string {
	return displayName(s.Key)
}

func (s Subcategory) String() string {
	return s.DisplayName()
}

// BelongsTo reports whether s is a resource of c.
func (s Subcategory) BelongsTo(c Category) bool {
	return s.Parent == c.Key
}

var (
	X1A         = Subcategory{Key: "X1A", ProductID: 4, Parent: HallX1.Key}
	X1B         = Subcategory{Key: "X1B", ProductID: 5, Parent: HallX1.Key}
	X3A         = Subcategory{Key: "X3A", ProductID: 16534, Parent: HallX3.Key}
	X3B         = Subcategory{Key: "X3B", ProductID: 16533, Parent: HallX3.Key}
	BeachCourt1 = Subcategory{Key: "BEACH_COURT_1", ProductID: 36, Parent: BeachVolleyballCourt.Key}
	BeachCourt2 = Subcategory{Key: "BEACH_COURT_2", ProductID: 37, Parent: BeachVolleyballCourt.Key}
	BeachCourt3 = Subcategory{Key: "BEACH_COURT_3", ProductID: 38, Parent: BeachVolleyballCourt.Key}
	BeachCourt4 = Subcategory{Key: "BEACH_COURT_4", ProductID: 39, Parent: BeachVolleyballCourt.Key}
)

// Builtin returns the built-in categories in declaration order.
func Builtin() []Category {
	return []Category{Strength, Gym, BeachVolleyballCourt, BodyPower, HallX1, HallX2, HallX3, PowerKick}
}

// BuiltinSubcategories returns the built-in subcategories in declaration order.
func BuiltinSubcategories() []Subcategory {
	return []Subcategory{X1A, X1B, X3A, X3B, BeachCourt1, BeachCourt2, BeachCourt3, BeachCourt4}
}

// IsHallLike reports whether bookings for c open per calendar day rather than
// per slot.
func IsHallLike(c Category) bool {
	return c.HallLike
}

// Registry resolves operator input to categories and subcategories.
type Registry struct {
	categories    []Category
	subcategories []Subcategory
}

// NewRegistry builds a registry from the built-in data. tagOverrides maps a
// category key (case-insensitive) to the tag ID used in this environment.
func NewRegistry(tagOverrides map[string]int) (*Registry, error) {
	categories := Builtin()
	for key, tag := range tagOverrides {
		idx := indexOfKey(categories, key)
		if idx < 0 {
			return nil, fmt.Errorf("category: unknown category %q in tag overrides", key)
		}
		if tag <= 0 {
			return nil, fmt.Errorf("category: invalid tag %d for %s", tag, categories[idx].Key)
		}
		categories[idx].Tag = tag
	}
	return &Registry{
		categories:    categories,
		subcategories: BuiltinSubcategories(),
	}, nil
}

// Categories returns a copy of the registered categories.
func (r *Registry) Categories() []Category {
	return append([]Category(nil), r.categories...)
}

// Subcategories returns a copy of the registered subcategories.
func (r *Registry) Subcategories() []Subcategory {
	return append([]Subcategory(nil), r.subcategories...)
}

// Lookup returns the category with the exact key.
func (r *Registry) Lookup(key string) (Category, bool) {
	idx := indexOfKey(r.categories, key)
	if idx < 0 {
		return Category{}, false
	}
	return r.categories[idx], true
}

// Tag returns the tag ID registered for c's key in this environment, falling
// back to c.Tag for categories the registry does not know.
func (r *Registry) Tag(c Category) int {
	if registered, ok := r.Lookup(c.Key); ok {
		return registered.Tag
	}
	return c.Tag
}

// Resolve returns the category whose display name best matches text. Any
// non-empty registry yields a match; callers that need an exact match must
// compare the result themselves.
func (r *Registry) Resolve(text string) (Category, error) {
	names := make([]string, len(r.categories))
	for i, c := range r.categories {
		names[i] = c.DisplayName()
	}
	idx, err := bestMatch(text, names)
	if err != nil {
		return Category{}, err
	}
	return r.categories[idx], nil
}

// ResolveSubcategory returns the subcategory whose display name best matches
// text.
func (r *Registry) ResolveSubcategory(text string) (Subcategory, error) {
	names := make([]string, len(r.subcategories))
	for i, s := range r.subcategories {
		names[i] = s.DisplayName()
	}
	idx, err := bestMatch(text, names)
	if err != nil {
		return Subcategory{}, err
	}
	return r.subcategories[idx], nil
}

// ResolveSubcategoryIn is ResolveSubcategory restricted to the subcategories
// of c. It returns ErrSubcategoryMismatch when c has none.
func (r *Registry) ResolveSubcategoryIn(c Category, text string) (Subcategory, error) {
	var subs []Subcategory
	for _, s := range r.subcategories {
		if s.BelongsTo(c) {
			subs = append(subs, s)
		}
	}
	if len(subs) == 0 {
		return Subcategory{}, fmt.Errorf("%w: %s has no courts or halls", ErrSubcategoryMismatch, c.DisplayName())
	}
	names := make([]string, len(subs))
	for i, s := range subs {
		names[i] = s.DisplayName()
	}
	idx, err := bestMatch(text, names)
	if err != nil {
		return Subcategory{}, err
	}
	return subs[idx], nil
}

// bestMatch prefers candidates that contain the query as a case-insensitive
// subsequence, ranked by edit distance. When none do it falls back to plain
// edit distance so a non-empty candidate list always produces a match.
func bestMatch(query string, candidates []string) (int, error) {
	if len(candidates) == 0 {
		return -1, ErrNotFound
	}
	query = strings.ToLower(strings.TrimSpace(query))

	ranks := fuzzy.RankFindNormalizedFold(query, candidates)
	if len(ranks) > 0 {
		sort.SliceStable(ranks, func(i, j int) bool {
			if ranks[i].Distance != ranks[j].Distance {
				return ranks[i].Distance < ranks[j].Distance
			}
			return ranks[i].OriginalIndex < ranks[j].OriginalIndex
		})
		return ranks[0].OriginalIndex, nil
	}

	best, bestDistance := 0, -1
	for i, candidate := range candidates {
		d := fuzzy.LevenshteinDistance(query, strings.ToLower(candidate))
		if bestDistance < 0 || d < bestDistance {
			best, bestDistance = i, d
		}
	}
	return best, nil
}

func indexOfKey(categories []Category, key string) int {
	key = strings.ToUpper(strings.TrimSpace(key))
	for i, c := range categories {
		if c.Key == key {
			return i
		}
	}
	return -1
}

func displayName(key string) string {
	s := strings.ToLower(strings.ReplaceAll(key, "_", " "))
	r, size := utf8.DecodeRuneInString(s)
	if r == utf8.RuneError {
		return s
	}
	return string(unicode.ToUpper(r)) + s[size:]
}
