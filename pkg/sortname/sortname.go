// Package sortname derives catalog sort keys for records the server sent
// without one.
package sortname

import "strings"

var articles = []string{"The", "A", "An"}

var honorifics = wordSet("Dr.", "Dr", "Mr.", "Mr", "Mrs.", "Mrs", "Ms.", "Ms", "Prof.", "Prof", "Sir", "Dame", "Rev.", "Rev")

var credentials = wordSet("PhD", "Ph.D", "Ph.D.", "MD", "M.D.", "DDS", "Esq", "Esq.", "MBA", "MA", "MS", "BA", "BS")

var generations = wordSet("Jr.", "Jr", "Sr.", "Sr", "II", "III", "IV")

func wordSet(words ...string) map[string]struct{} {
	set := make(map[string]struct{}, len(words))
	for _, w := range words {
		set[strings.ToLower(w)] = struct{}{}
	}
	return set
}

func in(set map[string]struct{}, word string) bool {
	_, ok := set[strings.ToLower(word)]
	return ok
}

// Title moves a leading article to the end: "The Hobbit" sorts as
// "Hobbit, The".
func Title(title string) string {
	title = strings.TrimSpace(title)
	first, rest, ok := strings.Cut(title, " ")
	if !ok {
		return title
	}
	rest = strings.TrimSpace(rest)
	for _, article := range articles {
		if strings.EqualFold(first, article) && rest != "" {
			return rest + ", " + first
		}
	}
	return title
}

// Author turns "First Middle Last" into "Last, First Middle". Honorifics and
// credentials are dropped and generational suffixes stay at the end. Name
// particles such as "van" remain with the given names.
func Author(name string) string {
	words := strings.Fields(strings.ReplaceAll(name, ",", " "))
	for len(words) > 1 && in(honorifics, words[0]) {
		words = words[1:]
	}
	suffix := []string{}
	for len(words) > 1 {
		last := words[len(words)-1]
		if in(generations, last) {
			suffix = append([]string{last}, suffix...)
		} else if !in(credentials, last) {
			break
		}
		words = words[:len(words)-1]
	}
	if len(words) == 0 {
		return ""
	}

	parts := append([]string{words[len(words)-1]}, suffix...)
	if len(words) > 1 {
		parts = append([]string{parts[0], strings.Join(words[:len(words)-1], " ")}, suffix...)
	}
	return strings.Join(parts, ", ")
}

// Authors joins the sort names of several authors the way the catalog
// stores author_sort.
func Authors(names []string) string {
	sorted := make([]string, 0, len(names))
	for _, name := range names {
		if s := Author(name); s != "" {
			sorted = append(sorted, s)
		}
	}
	return strings.Join(sorted, " & ")
}
