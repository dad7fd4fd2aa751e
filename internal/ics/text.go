package ics

import "strings"

// splitList splits a decoded CATEGORIES value into names. golang-ical has
// already removed the TEXT escaping, so every comma is a separator; tag names
// never contain commas.
func splitList(value string) []string {
	var out []string
	for _, p := range strings.Split(value, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
