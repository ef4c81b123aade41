package storage

import "strings"

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

// escapeLike quotes LIKE wildcards so s matches literally
func escapeLike(s string) string {
	return likeEscaper.Replace(s)
}
