// Package prompt validates and formats the prompt templates a2rchi's
// pipelines feed to a language model: ValidatedPromptTemplate checks
// that a template only references supported context variables and tags
// them for later splicing; PromptFormatter adapts a tagged template to
// a model's expected input shape (plain, instruction-tuned, or chat).
package prompt

import (
	"fmt"
	"regexp"
	"strings"
)

// SupportedInputVariables are the only {placeholders} a prompt template
// may reference. The first five serve the QA pipeline; the remainder
// serve grading, where a submission and rubric stand in for a question.
var SupportedInputVariables = []string{
	"full_history",
	"history",
	"question",
	"retriever_output",
	"condensed_output",
	"submission_text",
	"rubric_text",
	"summary",
	"analysis",
	"additional_comments",
}

func isSupported(v string) bool {
	for _, s := range SupportedInputVariables {
		if s == v {
			return true
		}
	}
	return false
}

var placeholderPattern = regexp.MustCompile(`\{([^}]+)\}`)

// ValidatedPromptTemplate is a prompt template with {name} placeholders
// restricted to SupportedInputVariables, with each referenced variable wrapped in
// <tag>...</tag> markers so PromptFormatter can later split the
// rendered prompt back into role-tagged sections.
type ValidatedPromptTemplate struct {
	Name           string
	Template       string // tagged, ready to Format
	InputVariables []string
}

// New validates prompt_template and builds a ValidatedPromptTemplate.
// If inputVariables is nil, the variables are inferred from the
// template's {placeholders}; otherwise every named variable must both
// be supported and appear in the template.
func New(name, template string, inputVariables []string) (*ValidatedPromptTemplate, error) {
	if inputVariables == nil {
		inputVariables = findInputVariables(template)
	} else if err := checkInputVariables(template, inputVariables); err != nil {
		return nil, err
	}
	return &ValidatedPromptTemplate{
		Name:           name,
		Template:       addTags(template),
		InputVariables: inputVariables,
	}, nil
}

func checkInputVariables(template string, vars []string) error {
	for _, v := range vars {
		if !isSupported(v) {
			return fmt.Errorf("prompt: input variable %q is not supported", v)
		}
		if !strings.Contains(template, "{"+v+"}") {
			return fmt.Errorf("prompt: input variable %q not found in template %q", v, template)
		}
	}
	return nil
}

func findInputVariables(template string) []string {
	seen := map[string]bool{}
	var out []string
	for _, match := range placeholderPattern.FindAllStringSubmatch(template, -1) {
		v := strings.TrimSpace(match[1])
		if isSupported(v) && !seen[v] {
			seen[v] = true
			out = append(out, v)
		}
	}
	return out
}

// addTags wraps every supported {placeholder} in <placeholder>...</placeholder>
// markers, leaving unsupported or malformed placeholders untouched.
func addTags(template string) string {
	return placeholderPattern.ReplaceAllStringFunc(template, func(m string) string {
		tag := strings.ToLower(strings.TrimSpace(m[1 : len(m)-1]))
		if !isSupported(tag) {
			return m
		}
		return fmt.Sprintf("<%s> {%s} </%s>", tag, tag, tag)
	})
}

// Format substitutes vars into the tagged template. Every variable in
// InputVariables must have an entry in vars (an empty string is fine).
func (t *ValidatedPromptTemplate) Format(vars map[string]string) (string, error) {
	out := t.Template
	for _, v := range t.InputVariables {
		val, ok := vars[v]
		if !ok {
			return "", fmt.Errorf("prompt: missing value for input variable %q", v)
		}
		out = strings.ReplaceAll(out, "{"+v+"}", val)
	}
	return out, nil
}
