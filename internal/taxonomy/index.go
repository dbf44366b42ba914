// Package taxonomy turns the booru tag taxonomy into the lookups used while
// composing a post: slug to display name, and the sensitive slug set.
package taxonomy

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/araddon/dateparse"
	"github.com/samber/lo"

	"github.com/five82/rikipost/internal/booru"
)

// DefaultPairingSlug is the content-warning tag that marks a pairing rather
// than sensitive content.
const DefaultPairingSlug = "пейр"

const lastModifiedLayout = "02.01.2006, 15:04:05"

// ErrMalformedTaxonomy is returned by Build for input it cannot index.
var ErrMalformedTaxonomy = errors.New("malformed taxonomy")

// Options tune Build.
type Options struct {
	// PairingSlug is excluded from the sensitive set. Empty uses
	// DefaultPairingSlug.
	PairingSlug string
}

// Index is an immutable view over one taxonomy snapshot.
type Index struct {
	names     map[string]string
	sensitive map[string]struct{}
	warnings  []string
	header    booru.Header
}

// Build indexes tax. Display names are merged across the five groups in
// document order; a slug repeated in a later group overrides the earlier name.
func Build(tax booru.Taxonomy, opts Options) (*Index, error) {
	pairing := strings.TrimSpace(opts.PairingSlug)
	if pairing == "" {
		pairing = DefaultPairingSlug
	}

	idx := &Index{
		names:     make(map[string]string),
		sensitive: make(map[string]struct{}),
		header:    tax.Header,
	}
	for gi, group := range tax.Groups() {
		for _, tag := range group.Tags {
			if strings.TrimSpace(tag.Slug) == "" {
				return nil, fmt.Errorf("%w: group %d tag %d has empty slug", ErrMalformedTaxonomy, gi+1, tag.ID)
			}
			idx.names[tag.Slug] = tag.Name
		}
	}
	for _, tag := range tax.Warnings.Tags {
		if tag.Slug == pairing {
			continue
		}
		if _, dup := idx.sensitive[tag.Slug]; dup {
			continue
		}
		idx.sensitive[tag.Slug] = struct{}{}
		idx.warnings = append(idx.warnings, tag.Slug)
	}
	return idx, nil
}

// DisplayName returns the human-readable name for slug.
func (i *Index) DisplayName(slug string) (string, bool) {
	name, ok := i.names[slug]
	if !ok || name == "" {
		return "", false
	}
	return name, true
}

// IsSensitive reports whether slug is a content warning.
func (i *Index) IsSensitive(slug string) bool {
	_, ok := i.sensitive[slug]
	return ok
}

// SensitiveSlugs returns the sensitive set in taxonomy order.
func (i *Index) SensitiveSlugs() []string {
	return append([]string(nil), i.warnings...)
}

// SensitiveTags returns the members of tags that are sensitive, keeping the
// order of tags.
func (i *Index) SensitiveTags(tags []string) []string {
	return lo.Filter(tags, func(tag string, _ int) bool {
		return i.IsSensitive(tag)
	})
}

// Total is the catalog size reported in the taxonomy header.
func (i *Index) Total() int64 {
	return i.header.SumCount
}

// UpdatedAt reports when the booru last changed its catalog, if the header
// carries a parseable date.
func (i *Index) UpdatedAt() (time.Time, bool) {
	if raw := strings.TrimSpace(i.header.LastModified); raw != "" {
		if t, err := time.ParseInLocation(lastModifiedLayout, raw, time.Local); err == nil {
			return t, true
		}
	}
	if raw := strings.TrimSpace(i.header.Date); raw != "" {
		if t, err := dateparse.ParseLocal(raw); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}
