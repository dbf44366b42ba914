package compose

import (
	"regexp"

	"github.com/rivo/uniseg"
)

var urlPattern = regexp.MustCompile(`https?://[^\s]+`)

// Length counts text the way Mastodon validates it: grapheme clusters, with
// every URL counted as reservedPerURL characters when that is positive.
func Length(text string, reservedPerURL int) int {
	if reservedPerURL <= 0 {
		return uniseg.GraphemeClusterCount(text)
	}
	urls := urlPattern.FindAllStringIndex(text, -1)
	if len(urls) == 0 {
		return uniseg.GraphemeClusterCount(text)
	}
	n, prev := 0, 0
	for _, loc := range urls {
		n += uniseg.GraphemeClusterCount(text[prev:loc[0]]) + reservedPerURL
		prev = loc[1]
	}
	return n + uniseg.GraphemeClusterCount(text[prev:])
}
