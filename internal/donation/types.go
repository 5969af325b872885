// Package donation loads, validates, and serves the declarative recognition
// documents that intent handlers contribute ("donations").
//
// Each handler ships a sibling JSON document describing the phrases, token
// patterns, and parameters by which it wants to be recognised. The registry
// validates all documents at startup (fatally in strict mode) and exposes
// them as an immutable [Snapshot] shared by reference across the NLU stages.
// Reloads build a fresh snapshot and swap it atomically.
package donation

import "fmt"

// SupportedSchemaVersion is the only donation schema version this runtime
// accepts.
const SupportedSchemaVersion = "1.0"

// ParameterType enumerates the value types a donation parameter may declare.
type ParameterType string

const (
	TypeString   ParameterType = "string"
	TypeInteger  ParameterType = "integer"
	TypeFloat    ParameterType = "float"
	TypeDuration ParameterType = "duration"
	TypeDatetime ParameterType = "datetime"
	TypeBoolean  ParameterType = "boolean"
	TypeChoice   ParameterType = "choice"
	TypeEntity   ParameterType = "entity"
)

// IsValid reports whether t is a recognised parameter type.
func (t ParameterType) IsValid() bool {
	switch t {
	case TypeString, TypeInteger, TypeFloat, TypeDuration, TypeDatetime,
		TypeBoolean, TypeChoice, TypeEntity:
		return true
	}
	return false
}

// Numeric reports whether t admits min/max range constraints.
func (t ParameterType) Numeric() bool {
	return t == TypeInteger || t == TypeFloat || t == TypeDuration
}

// HandlerDonation is the root document a handler contributes.
type HandlerDonation struct {
	SchemaVersion    string           `json:"schema_version"`
	HandlerDomain    string           `json:"handler_domain"`
	GlobalParameters []ParameterSpec  `json:"global_parameters,omitempty"`
	MethodDonations  []MethodDonation `json:"method_donations"`
	NegativePatterns []TokenPattern   `json:"negative_patterns,omitempty"`
}

// MethodDonation describes one recognisable method of a handler.
type MethodDonation struct {
	MethodName    string                    `json:"method_name"`
	IntentSuffix  string                    `json:"intent_suffix"`
	Phrases       []string                  `json:"phrases"`
	Lemmas        []string                  `json:"lemmas,omitempty"`
	Parameters    []ParameterSpec           `json:"parameters,omitempty"`
	TokenPatterns []TokenPattern            `json:"token_patterns,omitempty"`
	SlotPatterns  map[string][]TokenPattern `json:"slot_patterns,omitempty"`
	Examples      []Example                 `json:"examples,omitempty"`
	Boost         float64                   `json:"boost,omitempty"`

	// domain is stamped from the enclosing document during load.
	domain string
}

// IntentName returns the full "{domain}.{suffix}" intent name.
func (m *MethodDonation) IntentName() string {
	return fmt.Sprintf("%s.%s", m.domain, m.IntentSuffix)
}

// Domain returns the owning handler domain.
func (m *MethodDonation) Domain() string {
	return m.domain
}

// EffectiveBoost returns the method's boost, defaulting to 1.0.
func (m *MethodDonation) EffectiveBoost() float64 {
	if m.Boost == 0 {
		return 1.0
	}
	return m.Boost
}

// AllParameters returns the method's parameters merged with the handler's
// global parameters; method-level specs shadow globals of the same name.
func (m *MethodDonation) AllParameters(global []ParameterSpec) []ParameterSpec {
	if len(global) == 0 {
		return m.Parameters
	}
	seen := make(map[string]bool, len(m.Parameters))
	out := make([]ParameterSpec, 0, len(m.Parameters)+len(global))
	for _, p := range m.Parameters {
		seen[p.Name] = true
		out = append(out, p)
	}
	for _, p := range global {
		if !seen[p.Name] {
			out = append(out, p)
		}
	}
	return out
}

// ParameterSpec declares one extractable parameter.
type ParameterSpec struct {
	Name               string        `json:"name"`
	Type               ParameterType `json:"type"`
	Required           bool          `json:"required,omitempty"`
	DefaultValue       any           `json:"default_value,omitempty"`
	Description        string        `json:"description,omitempty"`
	Choices            []string      `json:"choices,omitempty"`
	MinValue           *float64      `json:"min_value,omitempty"`
	MaxValue           *float64      `json:"max_value,omitempty"`
	Pattern            string        `json:"pattern,omitempty"`
	ExtractionPatterns []string      `json:"extraction_patterns,omitempty"`
	Aliases            []string      `json:"aliases,omitempty"`
}

// Example pairs a sample utterance with its expected parameters. Used for
// documentation and semantic-stage corpus enrichment.
type Example struct {
	Text       string         `json:"text"`
	Parameters map[string]any `json:"parameters,omitempty"`
}

// TokenPattern is a sequence of per-token constraint maps in the
// attribute-match DSL. See [Compile] for the recognised keys.
type TokenPattern []map[string]any
