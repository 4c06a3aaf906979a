package theme

import (
	"strings"

	"sitebuilder/internal/domain"
)

// ─────────────────────────────────────────────────────────────
// Style Token Resolver — section → global → default fallback
// ─────────────────────────────────────────────────────────────
//
// A style token is a settings key in one of two namespaces:
//
//	style_<section>_<suffix>   section-scoped, e.g. style_hero_bg
//	style_global_<name>        global, e.g. style_global_background
//
// Each section suffix maps to exactly one global name; the mapping is
// static and must never be ambiguous.

const (
	tokenPrefix  = "style_"
	globalPrefix = "style_global_"
)

// globalForSuffix maps a section token suffix to its global fallback
// name. A suffix missing here simply has no global fallback.
var globalForSuffix = map[string]string{
	"bg":          "background",
	"text":        "text",
	"title":       "heading",
	"accent":      "primary",
	"button_bg":   "button_background",
	"button_text": "button_text",
	"border":      "border",
	"link":        "link",
}

// globalDefaults holds the hardcoded default per global token key.
var globalDefaults = map[string]string{
	"style_global_background":        "#ffffff",
	"style_global_text":              "#1f2933",
	"style_global_heading":           "#111827",
	"style_global_primary":           "#2563eb",
	"style_global_button_background": "#2563eb",
	"style_global_button_text":       "#ffffff",
	"style_global_border":            "#e5e7eb",
	"style_global_link":              "#2563eb",
}

// sectionSuffixes lists the token suffixes each section declares.
var sectionSuffixes = map[domain.SectionKey][]string{
	domain.SectionMenu:         {"bg", "text", "link"},
	domain.SectionHero:         {"bg", "title", "text", "button_bg", "button_text"},
	domain.SectionAbout:        {"bg", "title", "text"},
	domain.SectionFeatures:     {"bg", "title", "text", "accent"},
	domain.SectionGallery:      {"bg", "title", "border"},
	domain.SectionPricing:      {"bg", "title", "accent", "button_bg", "button_text"},
	domain.SectionTestimonials: {"bg", "title", "text"},
	domain.SectionFAQ:          {"bg", "title", "text", "border"},
	domain.SectionContact:      {"bg", "title", "text", "button_bg", "button_text"},
	domain.SectionFooter:       {"bg", "text", "link"},
}

// SectionTokenKey builds the section-scoped settings key for a suffix.
func SectionTokenKey(section domain.SectionKey, suffix string) string {
	return tokenPrefix + string(section) + "_" + suffix
}

// GlobalTokenKey builds the global settings key for a global name.
func GlobalTokenKey(name string) string {
	return globalPrefix + name
}

// suffixOf extracts the token suffix from a token key. Handles scoped
// keys (style_hero_bg with section hero), global keys, and bare keys.
func suffixOf(tokenKey string, section domain.SectionKey) string {
	if section != "" {
		if s, ok := strings.CutPrefix(tokenKey, tokenPrefix+string(section)+"_"); ok {
			return s
		}
	}
	if s, ok := strings.CutPrefix(tokenKey, globalPrefix); ok {
		return s
	}
	return strings.TrimPrefix(tokenKey, tokenPrefix)
}

// Resolve returns the effective value of a style token. First match
// wins: section-scoped value, then the token key itself, then the global
// fallback, then the hardcoded default. Total — absence of every source
// resolves to "".
func Resolve(settings domain.Settings, tokenKey string, section domain.SectionKey) string {
	suffix := suffixOf(tokenKey, section)

	if section != "" {
		if v := settings[SectionTokenKey(section, suffix)]; v != "" {
			return v
		}
	}
	if v := settings[tokenKey]; v != "" {
		return v
	}

	name, ok := globalForSuffix[suffix]
	if !ok {
		// No global fallback for this suffix; only a direct global
		// default could apply.
		return globalDefaults[tokenKey]
	}
	globalKey := GlobalTokenKey(name)
	if v := settings[globalKey]; v != "" {
		return v
	}
	return globalDefaults[globalKey]
}

// ResolveSection resolves every token the section declares, keyed by the
// section-scoped token key.
func ResolveSection(settings domain.Settings, section domain.SectionKey) map[string]string {
	suffixes := sectionSuffixes[section]
	out := make(map[string]string, len(suffixes))
	for _, suffix := range suffixes {
		key := SectionTokenKey(section, suffix)
		out[key] = Resolve(settings, key, section)
	}
	return out
}

// DeclaredSuffixes returns the token suffixes a section declares.
func DeclaredSuffixes(section domain.SectionKey) []string {
	out := make([]string, len(sectionSuffixes[section]))
	copy(out, sectionSuffixes[section])
	return out
}
