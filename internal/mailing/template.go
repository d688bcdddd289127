// Package mailing provides Liquid template rendering for campaign bodies.
// The dispatcher renders the campaign template once per recipient so the
// exact transmitted HTML can be persisted for audit and follow-up quoting.
package mailing

import (
	"fmt"
	"html"
	"log"
	"regexp"
	"strings"
	"sync"

	"github.com/osteele/liquid"
)

// TemplateService handles Liquid template rendering with caching.
type TemplateService struct {
	engine *liquid.Engine
	cache  sync.Map // map[string]*liquid.Template
}

// NewTemplateService creates a template service with the custom filters
// campaign bodies rely on.
func NewTemplateService() *TemplateService {
	ts := &TemplateService{engine: liquid.NewEngine()}
	ts.registerFilters()
	return ts
}

func (ts *TemplateService) registerFilters() {
	// {{ first_name | default: "there" }}
	ts.engine.RegisterFilter("default", func(value interface{}, defaultVal string) interface{} {
		if value == nil {
			return defaultVal
		}
		strVal := fmt.Sprintf("%v", value)
		if strVal == "" || strVal == "<nil>" {
			return defaultVal
		}
		return value
	})

	// {{ name | capitalize }}
	ts.engine.RegisterFilter("capitalize", func(s string) string {
		if len(s) == 0 {
			return s
		}
		return strings.ToUpper(string(s[0])) + strings.ToLower(s[1:])
	})

	// {{ user_input | escape }}
	ts.engine.RegisterFilter("escape", func(s string) string {
		return html.EscapeString(s)
	})
}

// Parse compiles a template string and returns any syntax errors.
func (ts *TemplateService) Parse(templateStr string) error {
	_, err := ts.engine.ParseString(templateStr)
	return err
}

// Render processes a template with the given context, caching the compiled
// template under cacheKey for repeated renders (one campaign body is
// rendered once per recipient). On error the original template string is
// returned so a bad personalization tag degrades rather than blocks a send.
func (ts *TemplateService) Render(cacheKey, templateStr string, ctx map[string]interface{}) (string, error) {
	if cacheKey != "" {
		if cached, ok := ts.cache.Load(cacheKey); ok {
			tpl := cached.(*liquid.Template)
			result, err := tpl.RenderString(ctx)
			if err != nil {
				log.Printf("[TemplateService] render error: %v", err)
				return templateStr, err
			}
			return result, nil
		}
	}

	tpl, err := ts.engine.ParseString(templateStr)
	if err != nil {
		log.Printf("[TemplateService] parse error: %v", err)
		return templateStr, err
	}

	result, err := tpl.RenderString(ctx)
	if err != nil {
		log.Printf("[TemplateService] render error: %v", err)
		return templateStr, err
	}

	// Only templates that have rendered cleanly are cached, so a body
	// with a bad filter keeps degrading to the raw template on every
	// recipient instead of going empty from recipient two onward.
	if cacheKey != "" {
		ts.cache.Store(cacheKey, tpl)
	}
	return result, nil
}

// RecipientContext builds the render context for one recipient.
// The local part of the address doubles as a first-name guess when no
// explicit name is known.
func RecipientContext(email string) map[string]interface{} {
	name := email
	if i := strings.Index(email, "@"); i > 0 {
		name = email[:i]
	}
	return map[string]interface{}{
		"email":      email,
		"first_name": name,
	}
}

var (
	tagRegex    = regexp.MustCompile(`<[^>]*>`)
	entityRegex = regexp.MustCompile(`&[a-zA-Z#0-9]+;`)
)

// StripMarkup removes HTML tags and entities, returning the bare text.
// Used to decide whether a body has any real content.
func StripMarkup(s string) string {
	s = tagRegex.ReplaceAllString(s, " ")
	s = entityRegex.ReplaceAllString(s, " ")
	return strings.TrimSpace(s)
}
