package generator

import (
	"regexp"
	"strings"
)

// Tracker rich-text fields carry HTML markup and a small, fixed set of
// entities. Cleaning is deliberately narrow: strip tags, decode the known
// entities, trim. Anything fancier belongs to the tracker layer.

var (
	tagPattern       = regexp.MustCompile(`<[^>]*>`)
	criterionPattern = regexp.MustCompile(`AC\d+:`)
)

var entityReplacer = strings.NewReplacer(
	"&quot;", `"`,
	"&amp;", "&",
	"&lt;", "<",
	"&gt;", ">",
	"&nbsp;", " ",
)

// CleanText strips HTML tags, decodes the fixed entity set and trims
// surrounding whitespace.
func CleanText(s string) string {
	return strings.TrimSpace(entityReplacer.Replace(tagPattern.ReplaceAllString(s, "")))
}

// SplitCriteria splits cleaned acceptance-criteria text on the AC<digits>:
// labelling convention and returns the ordered, trimmed clauses. A nil
// result means the text did not follow the convention at all; callers then
// fall back to using the whole cleaned block in the objective narrative.
func SplitCriteria(s string) []string {
	if !criterionPattern.MatchString(s) {
		return nil
	}
	parts := criterionPattern.Split(s, -1)
	// parts[0] is whatever preceded the first label; it is preamble,
	// not a labelled clause.
	clauses := make([]string, 0, len(parts)-1)
	for _, p := range parts[1:] {
		if p = strings.TrimSpace(p); p != "" {
			clauses = append(clauses, p)
		}
	}
	return clauses
}
