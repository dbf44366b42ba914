// Package compose builds the status text for a selected image.
//
// The service enforces a hard character cap, so Compose renders three
// variants of decreasing richness and keeps the first one that fits:
//
//	tier 1: tag names, source, artist links, hashtags
//	tier 2: source, first artist link, hashtags
//	tier 3: source and the franchise hashtag
//
// Without a known limit tier 1 is always used.
package compose

import (
	"strings"

	"github.com/samber/lo"

	"github.com/five82/rikipost/internal/booru"
)

const artistPrefix = "artist_"

// Names resolves slugs against the taxonomy. *taxonomy.Index satisfies it.
type Names interface {
	DisplayName(slug string) (string, bool)
	SensitiveTags(tags []string) []string
}

// Franchise names the fandom every post belongs to.
type Franchise struct {
	// CharacterName is the display name of the generic character tag.
	CharacterName string
	// PluralName is prepended to the tag names when CharacterName is absent.
	PluralName string
	// Hashtag is the lowercase franchise hashtag without '#'.
	Hashtag string
}

// DefaultFranchise is Смешарики.
func DefaultFranchise() Franchise {
	return Franchise{
		CharacterName: "Смешарик",
		PluralName:    "Смешарики",
		Hashtag:       "смешарики",
	}
}

// Limits is the service's status length policy. A zero MaxCharacters means
// the limit is unknown.
type Limits struct {
	MaxCharacters            int
	CharactersReservedPerURL int
}

// Message is a composed status.
type Message struct {
	Text             string
	Sensitive        bool
	SpoilerText      string
	MediaDescription string
	Tier             int
	TagNames         []string
	Hashtags         []string
}

// Options configure a Composer.
type Options struct {
	Franchise Franchise
	// Artists maps an artist_ slug to profile links.
	Artists map[string][]string
}

// Composer turns images into messages.
type Composer struct {
	names     Names
	franchise Franchise
	artists   map[string][]string
}

// New builds a Composer. Empty franchise fields fall back to
// DefaultFranchise.
func New(names Names, opts Options) *Composer {
	def := DefaultFranchise()
	f := opts.Franchise
	if f.CharacterName == "" {
		f.CharacterName = def.CharacterName
	}
	if f.PluralName == "" {
		f.PluralName = def.PluralName
	}
	if f.Hashtag == "" {
		f.Hashtag = def.Hashtag
	}
	f.Hashtag = strings.TrimPrefix(f.Hashtag, "#")
	return &Composer{names: names, franchise: f, artists: opts.Artists}
}

// Compose builds the message for img under limits.
func (c *Composer) Compose(img booru.Image, limits Limits) Message {
	sensitive := c.names.SensitiveTags(img.Tags)
	names := c.TagNames(img.Tags)
	hashtags := c.Hashtags(img.Tags)

	msg := Message{
		Sensitive:        len(sensitive) > 0,
		MediaDescription: strings.Join(names, "; "),
		TagNames:         names,
		Hashtags:         hashtags,
	}
	if msg.Sensitive {
		msg.SpoilerText = strings.Join(sensitive, ", ")
	}

	links := c.artistLinks(img.Tags)
	tiers := []string{
		c.tier1(img.PostURL, names, links, hashtags),
		c.tier2(img.PostURL, links, hashtags),
		c.tier3(img.PostURL),
	}
	msg.Tier, msg.Text = pickTier(tiers, limits)
	return msg
}

// TagNames maps slugs to display names in source order, dropping unknown
// slugs. The franchise name leads when no generic character tag applies.
func (c *Composer) TagNames(tags []string) []string {
	names := lo.FilterMap(tags, func(slug string, _ int) (string, bool) {
		return c.names.DisplayName(slug)
	})
	if !lo.Contains(names, c.franchise.CharacterName) {
		names = append([]string{c.franchise.PluralName}, names...)
	}
	return names
}

// Hashtags renders every non-artist slug as a hashtag, franchise tag first
// when the image does not already carry it.
func (c *Composer) Hashtags(tags []string) []string {
	hashtags := lo.FilterMap(tags, func(slug string, _ int) (string, bool) {
		return "#" + slug, !strings.HasPrefix(slug, artistPrefix)
	})
	franchise := "#" + c.franchise.Hashtag
	if !lo.Contains(hashtags, franchise) {
		hashtags = append([]string{franchise}, hashtags...)
	}
	return hashtags
}

func (c *Composer) artistLinks(tags []string) []string {
	var links []string
	for _, slug := range tags {
		if !strings.HasPrefix(slug, artistPrefix) {
			continue
		}
		links = append(links, c.artists[slug]...)
	}
	return lo.Uniq(links)
}

func (c *Composer) tier1(postURL string, names, links, hashtags []string) string {
	lines := []string{strings.Join(names, "; "), "source: " + postURL}
	if len(links) > 0 {
		lines = append(lines, "artist: "+strings.Join(links, ", "))
	}
	lines = append(lines, "", strings.Join(hashtags, " "))
	return strings.Join(lines, "\n")
}

func (c *Composer) tier2(postURL string, links, hashtags []string) string {
	lines := []string{"source: " + postURL}
	if len(links) > 0 {
		lines = append(lines, "author: "+links[0])
	}
	lines = append(lines, "", strings.Join(hashtags, " "))
	return strings.Join(lines, "\n")
}

func (c *Composer) tier3(postURL string) string {
	return strings.Join([]string{"source: " + postURL, "", "#" + c.franchise.Hashtag}, "\n")
}

// pickTier returns the first tier that fits, or the last one when none does.
func pickTier(tiers []string, limits Limits) (int, string) {
	if limits.MaxCharacters <= 0 {
		return 1, tiers[0]
	}
	for i, text := range tiers {
		if Length(text, limits.CharactersReservedPerURL) <= limits.MaxCharacters {
			return i + 1, text
		}
	}
	return len(tiers), tiers[len(tiers)-1]
}
