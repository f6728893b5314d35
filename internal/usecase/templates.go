package usecase

import (
	"context"

	"agency-ai/internal/domain"
)

// TemplateSet resolves agent types to their default configuration, so
// agents can be created from a bare type name without hardcoding
// type-specific branching anywhere else.
type TemplateSet struct {
	templates map[string]domain.AgentTemplate
}

// NewTemplateSet builds a set from the given templates. Later entries
// override earlier ones with the same type.
func NewTemplateSet(templates []domain.AgentTemplate) *TemplateSet {
	s := &TemplateSet{templates: make(map[string]domain.AgentTemplate, len(templates))}
	for _, t := range templates {
		if t.Type != "" {
			s.templates[t.Type] = t
		}
	}
	return s
}

// Get returns the template for a type.
func (s *TemplateSet) Get(typ string) (domain.AgentTemplate, bool) {
	t, ok := s.templates[typ]
	return t, ok
}

// Apply fills the definition's empty fields from its type's template.
// Definitions with no matching template pass through unchanged.
func (s *TemplateSet) Apply(def domain.AgentDefinition) domain.AgentDefinition {
	t, ok := s.templates[def.Type]
	if !ok {
		return def
	}
	if len(def.Capabilities) == 0 {
		def.Capabilities = append([]string(nil), t.Capabilities...)
	}
	if def.Prompt == "" {
		def.Prompt = t.Prompt
	}
	if def.Model == "" {
		def.Model = t.Model
	}
	return def
}

// CreateFromTemplate registers a new agent of the given type using only
// its template defaults. Fails with ErrNotFound (template subsystem) for
// unknown types.
func (r *Registry) CreateFromTemplate(ctx context.Context, templates *TemplateSet, typ, name, ownerID string) (domain.AgentRecord, error) {
	if templates == nil {
		return domain.AgentRecord{}, domain.NewSubSystemError("template", "Registry.CreateFromTemplate", domain.ErrNotFound, typ)
	}
	if _, ok := templates.Get(typ); !ok {
		return domain.AgentRecord{}, domain.NewSubSystemError("template", "Registry.CreateFromTemplate", domain.ErrNotFound, typ)
	}
	return r.Create(ctx, domain.AgentDefinition{
		Name:    name,
		Type:    typ,
		OwnerID: ownerID,
	}, templates)
}

// DefaultTemplates is the built-in type table for the agency workforce.
// Config-provided templates override these per type.
func DefaultTemplates() []domain.AgentTemplate {
	return []domain.AgentTemplate{
		{
			Type:         "ceo",
			Capabilities: []string{"strategic_planning", "task_delegation", "team_coordination"},
			Prompt:       "You are the CEO of an AI marketing agency. You coordinate the workforce and delegate tasks to specialists.",
		},
		{
			Type:         "marketing_strategist",
			Capabilities: []string{"campaign_planning", "market_research", "audience_analysis"},
			Prompt:       "You are a marketing strategist. You design campaigns grounded in market research.",
		},
		{
			Type:         "content_creator",
			Capabilities: []string{"copywriting", "blog_posts", "email_campaigns"},
			Prompt:       "You are a content creator. You write clear, on-brand marketing copy.",
		},
		{
			Type:         "seo_specialist",
			Capabilities: []string{"keyword_research", "on_page_seo", "link_building"},
			Prompt:       "You are an SEO specialist. You optimize content for search visibility.",
		},
		{
			Type:         "social_media_manager",
			Capabilities: []string{"post_scheduling", "community_engagement", "trend_monitoring"},
			Prompt:       "You are a social media manager. You plan and schedule posts across platforms.",
		},
		{
			Type:         "analytics_specialist",
			Capabilities: []string{"performance_tracking", "reporting", "attribution_modeling"},
			Prompt:       "You are an analytics specialist. You measure campaign performance and report insights.",
		},
	}
}
