package domain

// SectionKey identifies the type of a block (e.g. hero, pricing).
type SectionKey string

const (
	SectionMenu         SectionKey = "menu"
	SectionHero         SectionKey = "hero"
	SectionAbout        SectionKey = "about"
	SectionFeatures     SectionKey = "features"
	SectionGallery      SectionKey = "gallery"
	SectionPricing      SectionKey = "pricing"
	SectionTestimonials SectionKey = "testimonials"
	SectionFAQ          SectionKey = "faq"
	SectionContact      SectionKey = "contact"
	SectionFooter       SectionKey = "footer"
)

// Base strips the numeric copy suffix a duplicated section carries
// ("faq_2" → "faq"), so duplicated sections resolve to the rules of
// their base section type.
func (k SectionKey) Base() SectionKey {
	s := string(k)
	i := len(s)
	for i > 0 && s[i-1] >= '0' && s[i-1] <= '9' {
		i--
	}
	if i > 1 && i < len(s) && s[i-1] == '_' {
		return SectionKey(s[:i-1])
	}
	return k
}

// PinnedSlot is a structural constraint forcing a section to the head or
// tail of the block sequence.
type PinnedSlot string

const (
	PinnedNone PinnedSlot = ""
	PinnedHead PinnedSlot = "head"
	PinnedTail PinnedSlot = "tail"
)

// SectionDef is the static rule set for one section type. Fixed sections
// do not count against plan quota; Removable and Duplicable gate the
// corresponding composer operations independently of Fixed.
type SectionDef struct {
	Key        SectionKey `json:"key" yaml:"key"`
	Fixed      bool       `json:"fixed" yaml:"fixed"`
	Removable  bool       `json:"removable" yaml:"removable"`
	Duplicable bool       `json:"duplicable" yaml:"duplicable"`
	Pinned     PinnedSlot `json:"pinned,omitempty" yaml:"pinned,omitempty"`
}
