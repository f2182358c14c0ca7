package storage

import "strings"

// likeEscaper escapes the LIKE wildcards for queries written with ESCAPE '\'.
// The backslash goes first so escapes added here are not escaped again.
var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

// escapeLike makes user input match literally inside a LIKE pattern.
func escapeLike(term string) string {
	return likeEscaper.Replace(term)
}

// containsPattern matches rows whose column contains term.
func containsPattern(term string) string {
	return "%" + escapeLike(term) + "%"
}

// prefixPattern matches rows whose column starts with term.
func prefixPattern(term string) string {
	return escapeLike(term) + "%"
}
