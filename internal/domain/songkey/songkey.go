// Package songkey normalizes song identity so bids on "Song A / Artist X"
// and "song a / ARTIST X" accumulate on the same aggregate.
package songkey

import "strings"

// Separator joins the title and artist halves of a normalized key. It is
// part of the persisted key format; changing it would orphan existing
// aggregates.
const Separator = ":"

// Normalize returns the case-insensitive identity key for a song within an
// event: lower(title) + ":" + lower(artist), with surrounding whitespace
// stripped and inner runs of whitespace collapsed.
func Normalize(title, artist string) string {
	return fold(title) + Separator + fold(artist)
}

func fold(s string) string {
	return strings.ToLower(strings.Join(strings.Fields(s), " "))
}
