// Package script compiles and runs answer scripts.
//
// A script is a text/template source. When it defines a template named "main",
// that template is the entry point; otherwise the whole source is.
package script

import (
	"bytes"
	"fmt"
	"strings"
	"text/template"

	domerrors "github.com/garyellow/convobot-go/internal/errors"
)

// MainTemplate is the conventional entry template name.
const MainTemplate = "main"

// CompileError carries compiler diagnostics. Its message is always "compilation failed".
type CompileError struct {
	Details string
}

func (e *CompileError) Error() string {
	return domerrors.ErrCompilationFailed.Error()
}

// Unwrap returns ErrCompilationFailed.
func (e *CompileError) Unwrap() error {
	return domerrors.ErrCompilationFailed
}

// Program is a compiled script.
type Program struct {
	tmpl *template.Template
	// Compiled lists the templates defined by the source.
	Compiled []string
	// Main is the entry template name.
	Main string
}

// Compiler compiles script sources.
type Compiler struct {
	funcs template.FuncMap
}

// NewCompiler returns a compiler with the default function set.
func NewCompiler() *Compiler {
	return &Compiler{funcs: template.FuncMap{
		"upper":   strings.ToUpper,
		"lower":   strings.ToLower,
		"title":   titleCase,
		"trim":    strings.TrimSpace,
		"join":    strings.Join,
		"default": defaultValue,
	}}
}

// Compile parses source. Any parse error is reported as a *CompileError.
func (c *Compiler) Compile(name, source string) (*Program, error) {
	if strings.TrimSpace(source) == "" {
		return nil, &CompileError{Details: "empty script"}
	}
	tmpl, err := template.New(name).Funcs(c.funcs).Option("missingkey=zero").Parse(source)
	if err != nil {
		return nil, &CompileError{Details: err.Error()}
	}

	p := &Program{tmpl: tmpl, Main: name}
	for _, t := range tmpl.Templates() {
		if t.Tree == nil {
			continue
		}
		p.Compiled = append(p.Compiled, t.Name())
	}
	if tmpl.Lookup(MainTemplate) != nil {
		p.Main = MainTemplate
	}
	if len(p.Compiled) == 0 || (p.Main == name && isBlank(tmpl)) {
		return nil, &CompileError{Details: "script produces no output"}
	}
	return p, nil
}

// Run executes the entry template with data.
func (p *Program) Run(data any) (string, error) {
	var buf bytes.Buffer
	if err := p.tmpl.ExecuteTemplate(&buf, p.Main, data); err != nil {
		return "", fmt.Errorf("run script %s: %w", p.Main, err)
	}
	return strings.TrimSpace(buf.String()), nil
}

func isBlank(t *template.Template) bool {
	return t.Tree == nil || t.Tree.Root == nil || strings.TrimSpace(t.Tree.Root.String()) == ""
}

func titleCase(s string) string {
	words := strings.Fields(s)
	for i, w := range words {
		words[i] = strings.ToUpper(w[:1]) + w[1:]
	}
	return strings.Join(words, " ")
}

func defaultValue(fallback, value any) any {
	if value == nil {
		return fallback
	}
	if s, ok := value.(string); ok && s == "" {
		return fallback
	}
	return value
}
