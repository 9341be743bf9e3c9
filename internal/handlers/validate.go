package handlers

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"cmstaxonomy/internal/models"
)

// Validation limits for taxonomy and meta fields.
const (
	maxNameLen         = 200
	maxSlugLen         = 300
	maxDescriptionLen  = 2_000
	maxMetaTitleLen    = 300
	maxMetaDescLen     = 500
	maxMetaKeywordLen  = 500
	maxCanonicalURLLen = 2_000
	maxRobotsLen       = 100
	maxCustomEntries   = 50
	maxCustomKeyLen    = 100
	maxCustomValueLen  = 2_000
)

// fieldErrors maps a request field to a human-readable message.
type fieldErrors map[string]string

func (e fieldErrors) add(field, msg string) {
	if _, ok := e[field]; !ok {
		e[field] = msg
	}
}

func (e fieldErrors) empty() bool { return len(e) == 0 }

func tooLong(limit int) string {
	return fmt.Sprintf("is too long (max %d characters)", limit)
}

// validateTerm checks the name, slug and description of a category or tag.
// requireName is false for partial updates, where an empty name keeps the
// current one.
func validateTerm(name, slug string, description *string, requireName bool) fieldErrors {
	errs := fieldErrors{}
	trimmed := strings.TrimSpace(name)
	if requireName && trimmed == "" {
		errs.add("name", "is required")
	}
	if name != "" && trimmed == "" && !requireName {
		errs.add("name", "must not be blank")
	}
	if utf8.RuneCountInString(trimmed) > maxNameLen {
		errs.add("name", tooLong(maxNameLen))
	}
	if utf8.RuneCountInString(slug) > maxSlugLen {
		errs.add("slug", tooLong(maxSlugLen))
	}
	if description != nil && utf8.RuneCountInString(*description) > maxDescriptionLen {
		errs.add("description", tooLong(maxDescriptionLen))
	}
	return errs
}

// validateMeta checks the optional SEO metadata fields.
func validateMeta(m *models.Meta) fieldErrors {
	errs := fieldErrors{}
	if utf8.RuneCountInString(m.Title) > maxMetaTitleLen {
		errs.add("title", tooLong(maxMetaTitleLen))
	}
	if utf8.RuneCountInString(m.Description) > maxMetaDescLen {
		errs.add("description", tooLong(maxMetaDescLen))
	}
	if utf8.RuneCountInString(m.Keywords) > maxMetaKeywordLen {
		errs.add("keywords", tooLong(maxMetaKeywordLen))
	}
	if utf8.RuneCountInString(m.CanonicalURL) > maxCanonicalURLLen {
		errs.add("canonical_url", tooLong(maxCanonicalURLLen))
	} else if m.CanonicalURL != "" && !strings.HasPrefix(m.CanonicalURL, "http://") && !strings.HasPrefix(m.CanonicalURL, "https://") {
		errs.add("canonical_url", "must be an absolute http(s) URL")
	}
	if utf8.RuneCountInString(m.Robots) > maxRobotsLen {
		errs.add("robots", tooLong(maxRobotsLen))
	}
	if len(m.Custom) > maxCustomEntries {
		errs.add("custom", fmt.Sprintf("has too many entries (max %d)", maxCustomEntries))
	}
	for k, v := range m.Custom {
		if strings.TrimSpace(k) == "" {
			errs.add("custom", "keys must not be blank")
		}
		if utf8.RuneCountInString(k) > maxCustomKeyLen {
			errs.add("custom", fmt.Sprintf("key %q %s", k, tooLong(maxCustomKeyLen)))
		}
		if utf8.RuneCountInString(v) > maxCustomValueLen {
			errs.add("custom", fmt.Sprintf("value of %q %s", k, tooLong(maxCustomValueLen)))
		}
	}
	return errs
}
