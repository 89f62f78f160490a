package services

import (
	"fmt"

	"corehub/contexts/messaging-engine/ports"
)

// TemplateRegistry holds the set of provider-approved message templates,
// grounded on providers/meta_cloud/templates.py's TemplateRegistry.
type TemplateRegistry struct {
	templates map[string]ports.MessageTemplate
}

// NewTemplateRegistry builds a registry pre-loaded with the default
// vertical-notification templates.
func NewTemplateRegistry() *TemplateRegistry {
	r := &TemplateRegistry{templates: map[string]ports.MessageTemplate{}}
	r.registerDefaults()
	return r
}

func (r *TemplateRegistry) registerDefaults() {
	r.Register(ports.MessageTemplate{
		Name: "quote_created_template", Language: "en_US", Category: "UTILITY",
		Description: "Notify customer that a quote was created",
		Components: []ports.TemplateComponent{{
			Type: "body",
			Parameters: []ports.TemplateParameter{
				{Name: "customer_name", Type: "text", Required: true},
				{Name: "quote_number", Type: "text", Required: true},
				{Name: "total_value", Type: "currency", Required: true},
			},
		}},
	})
	r.Register(ports.MessageTemplate{
		Name: "order_status_template", Language: "en_US", Category: "UTILITY",
		Description: "Notify customer of order status change",
		Components: []ports.TemplateComponent{{
			Type: "body",
			Parameters: []ports.TemplateParameter{
				{Name: "customer_name", Type: "text", Required: true},
				{Name: "order_number", Type: "text", Required: true},
				{Name: "status", Type: "text", Required: true},
			},
		}},
	})
	r.Register(ports.MessageTemplate{
		Name: "delivery_started_template", Language: "en_US", Category: "UTILITY",
		Description: "Notify customer that delivery has started",
		Components: []ports.TemplateComponent{{
			Type: "body",
			Parameters: []ports.TemplateParameter{
				{Name: "customer_name", Type: "text", Required: true},
				{Name: "order_number", Type: "text", Required: true},
				{Name: "estimated_time", Type: "text", Required: false},
			},
		}},
	})
	r.Register(ports.MessageTemplate{
		Name: "delivery_completed_template", Language: "en_US", Category: "UTILITY",
		Description: "Notify customer that delivery is complete",
		Components: []ports.TemplateComponent{{
			Type: "body",
			Parameters: []ports.TemplateParameter{
				{Name: "customer_name", Type: "text", Required: true},
				{Name: "order_number", Type: "text", Required: true},
			},
		}},
	})
	r.Register(ports.MessageTemplate{
		Name: "welcome_template", Language: "en_US", Category: "UTILITY",
		Description: "Welcome message for new conversations",
		Components: []ports.TemplateComponent{{
			Type: "body",
			Parameters: []ports.TemplateParameter{
				{Name: "business_name", Type: "text", Required: true},
			},
		}},
	})
	r.Register(ports.MessageTemplate{
		Name: "auto_reply_template", Language: "en_US", Category: "UTILITY",
		Description: "Automatic reply when message is received",
		Components: []ports.TemplateComponent{{
			Type: "body",
			Parameters: []ports.TemplateParameter{
				{Name: "customer_name", Type: "text", Required: false},
			},
		}},
	})
}

// Register adds or replaces a template.
func (r *TemplateRegistry) Register(t ports.MessageTemplate) {
	r.templates[t.Name] = t
}

// Get looks up a template by name.
func (r *TemplateRegistry) Get(name string) (ports.MessageTemplate, bool) {
	t, ok := r.templates[name]
	return t, ok
}

// Names lists every registered template name.
func (r *TemplateRegistry) Names() []string {
	names := make([]string, 0, len(r.templates))
	for name := range r.templates {
		names = append(names, name)
	}
	return names
}

// BuildComponentParameter is one rendered parameter within a built
// component, ready for a provider API request body.
type BuildComponentParameter struct {
	Type  string
	Value string
}

// BuiltComponent is one rendered template component.
type BuiltComponent struct {
	Type        string
	Parameters  []BuildComponentParameter
	ButtonIndex int
	HasButtonIndex bool
}

// BuildComponents fills a template's components from variables, returning
// an error if a required parameter is missing.
func BuildComponents(t ports.MessageTemplate, variables map[string]string) ([]BuiltComponent, error) {
	built := make([]BuiltComponent, 0, len(t.Components))

	for _, component := range t.Components {
		out := BuiltComponent{Type: component.Type}
		if component.ButtonIndex != 0 {
			out.ButtonIndex = component.ButtonIndex
			out.HasButtonIndex = true
		}

		for _, param := range component.Parameters {
			value, present := variables[param.Name]
			if !present && param.Required {
				return nil, fmt.Errorf("messaging-engine: missing required template parameter %q", param.Name)
			}
			if present {
				out.Parameters = append(out.Parameters, BuildComponentParameter{Type: param.Type, Value: value})
			}
		}

		built = append(built, out)
	}

	return built, nil
}
