package filter

import (
	"strings"
	"unicode"
	"unicode/utf8"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// synonymGroups maps a canonical skill to the spellings job posts use for it.
var synonymGroups = map[string][]string{
	"javascript": {"js", "ecmascript", "es6"},
	"typescript": {"ts"},
	"node":       {"node.js", "nodejs", "node js"},
	"react":      {"react.js", "reactjs", "react js"},
	"vue":        {"vue.js", "vuejs", "vue js"},
	"angular":    {"angularjs", "angular.js"},
	"next.js":    {"nextjs", "next js"},
	"express":    {"express.js", "expressjs"},
	"golang":     {"go lang"},
	"postgresql": {"postgres", "psql"},
	"mongodb":    {"mongo"},
	"kubernetes": {"k8s"},
	"c#":         {"csharp", "c sharp"},
	".net":       {"dotnet", "asp.net"},
	"c++":        {"cpp"},
	"aws":        {"amazon web services"},
	"gcp":        {"google cloud", "google cloud platform"},
	"python":     {"python3"},
	"ci/cd":      {"cicd", "continuous integration"},
	"ml":         {"machine learning"},
	"ai":         {"artificial intelligence"},
}

// skillAliases resolve a skill as the user writes it to a synonym group. They
// are never searched for in post text ("go" is an ordinary English word).
var skillAliases = map[string]string{
	"go": "golang",
}

// conflicts lists terms whose presence means the key is NOT what the post asks for,
// even when the key itself would match ("java" inside a JavaScript/Node post).
var conflicts = map[string][]string{
	"java":  {"javascript", "typescript", "node", "node.js", "nodejs"},
	"react": {"react native"},
	"sql":   {"nosql"},
}

// synonymIndex resolves any spelling to its canonical group key.
var synonymIndex = func() map[string]string {
	idx := make(map[string]string)
	for canonical, variants := range synonymGroups {
		idx[canonical] = canonical
		for _, v := range variants {
			if _, taken := idx[v]; !taken {
				idx[v] = canonical
			}
		}
	}
	return idx
}()

// normalizeText lowercases, strips diacritics and collapses whitespace.
func normalizeText(str string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	result, _, err := transform.String(t, str)
	if err != nil {
		result = str
	}
	return strings.Join(strings.Fields(strings.ToLower(result)), " ")
}

// Normalize is the folding used by every text comparison in this package,
// exported for page-signal checks.
func Normalize(str string) string { return normalizeText(str) }

// ContainsAny reports the first needle found in haystack after normalization.
func ContainsAny(haystack string, needles []string) (string, bool) {
	h := normalizeText(haystack)
	for _, n := range needles {
		if n = normalizeText(n); n != "" && strings.Contains(h, n) {
			return n, true
		}
	}
	return "", false
}

// synonymsOf returns every spelling of term's group except term itself.
func synonymsOf(term string) []string {
	canonical, ok := synonymIndex[term]
	if !ok {
		if canonical, ok = skillAliases[term]; !ok {
			return nil
		}
	}
	group := append([]string{canonical}, synonymGroups[canonical]...)
	out := make([]string, 0, len(group))
	for _, g := range group {
		if g != term {
			out = append(out, g)
		}
	}
	return out
}

func isWordRune(r rune) bool {
	return unicode.IsLetter(r) || unicode.IsDigit(r)
}

// containsWord reports whether term occurs in text as a whole word. A dot joined to
// letters on both sides ("node.js") keeps the token together. Terms of two characters
// or fewer also reject a match followed by '+' or '#', so "c" never matches "c++".
func containsWord(text, term string) bool {
	if term == "" {
		return false
	}
	short := utf8.RuneCountInString(term) <= 2
	from := 0
	for from < len(text) {
		i := strings.Index(text[from:], term)
		if i < 0 {
			return false
		}
		start := from + i
		end := start + len(term)
		if boundaryBefore(text, start, term) && boundaryAfter(text, end, term, short) {
			return true
		}
		from = start + 1
	}
	return false
}

func boundaryBefore(text string, start int, term string) bool {
	first, _ := utf8.DecodeRuneInString(term)
	if start == 0 || !isWordRune(first) {
		return true
	}
	prev, size := utf8.DecodeLastRuneInString(text[:start])
	if isWordRune(prev) {
		return false
	}
	if prev == '.' {
		if before, _ := utf8.DecodeLastRuneInString(text[:start-size]); isWordRune(before) {
			return false
		}
	}
	return true
}

func boundaryAfter(text string, end int, term string, short bool) bool {
	if end >= len(text) {
		return true
	}
	next, size := utf8.DecodeRuneInString(text[end:])
	if short && (next == '+' || next == '#') {
		return false
	}
	last, _ := utf8.DecodeLastRuneInString(term)
	if !isWordRune(last) {
		return true
	}
	if isWordRune(next) {
		return false
	}
	if next == '.' {
		if after, _ := utf8.DecodeRuneInString(text[end+size:]); isWordRune(after) {
			return false
		}
	}
	return true
}

// hasConflict reports whether a term that disqualifies key appears in text.
func hasConflict(text, key string) (string, bool) {
	for _, c := range conflicts[key] {
		if containsWord(text, c) {
			return c, true
		}
	}
	return "", false
}
