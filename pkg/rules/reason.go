package rules

import (
	"strings"
	"sync"
	"text/template"
)

var reasonTemplates sync.Map // template source -> *template.Template

// ReasonData is the value a rule's reason template is executed with.
type ReasonData struct {
	RuleID     string
	ContextID  string
	UserRole   string
	Attributes map[string]any
	RelatedIDs map[string]string
	Signals    map[string]float64
	Score      float64
}

// RenderReason renders the rule's reason template for a context. A rule
// without a reason, or whose template fails, falls back to its description.
func RenderReason(r *Rule, c *Context, score float64) string {
	if r.Reason == "" {
		return r.Description
	}
	if !strings.Contains(r.Reason, "{{") {
		return r.Reason
	}

	tmpl, err := reasonTemplate(r.Reason)
	if err != nil {
		return r.Description
	}

	var sb strings.Builder
	err = tmpl.Execute(&sb, ReasonData{
		RuleID:     r.ID,
		ContextID:  c.ContextID,
		UserRole:   c.UserRole,
		Attributes: c.Attributes,
		RelatedIDs: c.RelatedIDs,
		Signals:    c.SignalOverrides,
		Score:      score,
	})
	if err != nil {
		return r.Description
	}
	return sb.String()
}

// CompileReason parses a reason template without executing it.
func CompileReason(src string) error {
	_, err := reasonTemplate(src)
	return err
}

func reasonTemplate(src string) (*template.Template, error) {
	if cached, ok := reasonTemplates.Load(src); ok {
		return cached.(*template.Template), nil
	}
	tmpl, err := template.New("reason").Option("missingkey=zero").Parse(src)
	if err != nil {
		return nil, err
	}
	reasonTemplates.Store(src, tmpl)
	return tmpl, nil
}
