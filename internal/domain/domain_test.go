package domain_test

import (
	"errors"
	"testing"

	"sitebuilder/internal/domain"
)

func TestSectionKey_Base(t *testing.T) {
	cases := map[domain.SectionKey]domain.SectionKey{
		"faq":     "faq",
		"faq_2":   "faq",
		"faq_10":  "faq",
		"hero":    "hero",
		"gallery": "gallery",
		"v2":      "v2",   // no underscore before the digits
		"_2":      "_2",   // nothing before the separator
		"faq_2a":  "faq_2a",
	}
	for in, want := range cases {
		if got := in.Base(); got != want {
			t.Errorf("Base(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestSectionContent_Customized(t *testing.T) {
	empty := domain.SectionContent{}
	if empty.Customized() {
		t.Error("empty content is not customized")
	}
	reservedOnly := domain.SectionContent{domain.ModelKey: "hero-2"}
	if reservedOnly.Customized() {
		t.Error("reserved fields do not count as customization")
	}
	blank := domain.SectionContent{"title": ""}
	if blank.Customized() {
		t.Error("empty values do not count as customization")
	}
	edited := domain.SectionContent{domain.ModelKey: "hero-2", "title": "Hi"}
	if !edited.Customized() {
		t.Error("a non-reserved non-empty field is customization")
	}
}

func TestSectionContent_CloneIsDeep(t *testing.T) {
	orig := domain.SectionContent{"title": "Hi"}
	clone := orig.Clone()
	clone["title"] = "Changed"
	if orig["title"] != "Hi" {
		t.Error("clone shares storage with the original")
	}
}

func TestSettings_Bool(t *testing.T) {
	s := domain.Settings{"on": "true", "off": "false", "junk": "yes"}
	if !s.Bool("on") || s.Bool("off") || s.Bool("junk") || s.Bool("absent") {
		t.Errorf("Bool misread: %v", s)
	}
	s.SetBool("flag", true)
	if s["flag"] != "true" {
		t.Errorf("SetBool wrote %q", s["flag"])
	}
}

func TestSettings_EnabledSectionsRoundtrip(t *testing.T) {
	s := domain.Settings{}
	keys := []domain.SectionKey{domain.SectionMenu, domain.SectionHero, domain.SectionFAQ}
	s.SetEnabledSections(keys)

	got := s.EnabledSections()
	if len(got) != len(keys) {
		t.Fatalf("got %v, want %v", got, keys)
	}
	for i := range keys {
		if got[i] != keys[i] {
			t.Fatalf("got %v, want %v", got, keys)
		}
	}
}

func TestSettings_EnabledSectionsMalformed(t *testing.T) {
	s := domain.Settings{domain.SettingEnabledSections: "not json"}
	if got := s.EnabledSections(); got != nil {
		t.Errorf("got %v, want nil for malformed input", got)
	}
	if got := (domain.Settings{}).EnabledSections(); got != nil {
		t.Errorf("got %v, want nil when absent", got)
	}
}

func TestIsPolicyRejection(t *testing.T) {
	for _, err := range []error{
		domain.ErrQuotaExceeded,
		domain.ErrNotRemovable,
		domain.ErrNotDuplicable,
		domain.ErrInvalidOrder,
		domain.ErrSectionExists,
		domain.ErrReservedField,
	} {
		if !domain.IsPolicyRejection(err) {
			t.Errorf("%v should classify as a policy rejection", err)
		}
	}
	perr := &domain.PersistenceError{Op: "save content", Err: errors.New("disk full")}
	if domain.IsPolicyRejection(perr) {
		t.Error("a persistence failure is not a policy rejection")
	}
}

func TestPersistenceError_Unwrap(t *testing.T) {
	cause := errors.New("disk full")
	perr := &domain.PersistenceError{Op: "save content", Err: cause}
	if !errors.Is(perr, cause) {
		t.Error("PersistenceError must unwrap to its cause")
	}
	if perr.Error() == "" {
		t.Error("empty error string")
	}
}

func TestPlanLimits_Unlimited(t *testing.T) {
	if (domain.PlanLimits{MaxDynamicBlocks: 0}).Unlimited() {
		t.Error("zero is a ceiling, not unlimited")
	}
	if !(domain.PlanLimits{MaxDynamicBlocks: -1}).Unlimited() {
		t.Error("negative means no ceiling")
	}
}
