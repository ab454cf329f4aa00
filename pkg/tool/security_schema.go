package tool

import "encoding/json"

// securityRiskProperty is the JSON Schema fragment merged into every
// tool's advertised parameters schema, regardless of which
// SecurityAnalyzer is configured for the conversation: keeping the
// schema stable across analyzer configurations avoids tool-schema churn
// between turns, and validation of whether the argument is actually
// required is applied dynamically by the step engine.
var securityRiskProperty = map[string]any{
	"type":        "string",
	"enum":        []string{"low", "medium", "high", "unknown"},
	"description": "Self-assessed risk level of this tool call. Required when the conversation's SecurityAnalyzer delegates classification to the model.",
}

// withSecurityRiskProperty merges a security_risk property into
// schemaJSON's top-level "properties" object for presentation to the
// LLM. It never marks the field required — requiredness depends on the
// configured analyzer, enforced at call time by the step engine, not by
// the static schema. Schemas that fail to round-trip as a JSON object are
// returned unchanged.
func withSecurityRiskProperty(schemaJSON string) string {
	var doc map[string]any
	if err := json.Unmarshal([]byte(schemaJSON), &doc); err != nil {
		return schemaJSON
	}
	props, ok := doc["properties"].(map[string]any)
	if !ok {
		props = map[string]any{}
	}
	if _, exists := props["security_risk"]; !exists {
		props["security_risk"] = securityRiskProperty
	}
	doc["properties"] = props

	out, err := json.Marshal(doc)
	if err != nil {
		return schemaJSON
	}
	return string(out)
}
