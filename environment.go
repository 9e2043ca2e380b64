package soy

import (
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/archimag/soy-go/parser"
	"github.com/archimag/soy-go/value"
)

// DefaultRecursionLimit is the default maximum depth of nested template
// calls.
const DefaultRecursionLimit = 500

// Environment holds the template registry together with the directives,
// functions and limits used to render them.
//
// Templates may be registered and rendered concurrently. Directives,
// functions and settings are expected to be configured before rendering
// starts.
type Environment struct {
	templates      map[string]*compiledTemplate
	templatesMu    sync.RWMutex
	directives     map[string]directive
	functions      map[string]FunctionFunc
	logger         *zap.Logger
	recursionLimit int
	fuel           uint64
	debug          bool
}

type compiledTemplate struct {
	name   string
	source string
	ast    *parser.Template
}

// NewEnvironment creates a new environment with the built-in directives and
// functions.
func NewEnvironment() *Environment {
	env := EmptyEnvironment()
	registerDefaultDirectives(env)
	registerDefaultFunctions(env)
	return env
}

// EmptyEnvironment creates an environment with no directives or functions.
func EmptyEnvironment() *Environment {
	return &Environment{
		templates:      make(map[string]*compiledTemplate),
		directives:     make(map[string]directive),
		functions:      make(map[string]FunctionFunc),
		logger:         zap.NewNop(),
		recursionLimit: DefaultRecursionLimit,
	}
}

// Register adds a parsed template under name. A template already registered
// under the same name is replaced.
func (e *Environment) Register(name string, tmpl *parser.Template) {
	e.register(name, "", tmpl)
}

func (e *Environment) register(name, source string, tmpl *parser.Template) {
	e.templatesMu.Lock()
	_, exists := e.templates[name]
	e.templates[name] = &compiledTemplate{name: name, source: source, ast: tmpl}
	e.templatesMu.Unlock()

	if exists {
		e.logger.Warn("template replaced", zap.String("template", name))
	} else {
		e.logger.Debug("template registered", zap.String("template", name))
	}
}

// AddFile parses a namespace file and registers every template in it. It
// returns the registered names in file order. Nothing is registered when the
// file fails to parse.
func (e *Environment) AddFile(filename, source string) ([]string, error) {
	file, err := parser.ParseFile(source, filename)
	if err != nil {
		return nil, convertParseError(err, filename, source)
	}
	names := make([]string, 0, len(file.Templates))
	for _, tmpl := range file.Templates {
		e.register(tmpl.Name, source, tmpl)
		names = append(names, tmpl.Name)
	}
	return names, nil
}

// AddTemplate parses a single {template} definition, or a bare template
// body, and registers it under name.
func (e *Environment) AddTemplate(name, source string) error {
	tmpl, err := parser.ParseTemplate(source, name)
	if err != nil {
		return convertParseError(err, name, source)
	}
	e.register(name, source, tmpl)
	return nil
}

// GetTemplate retrieves a template by name.
func (e *Environment) GetTemplate(name string) (*Template, error) {
	compiled, err := e.lookup(name)
	if err != nil {
		return nil, err
	}
	return &Template{env: e, compiled: compiled}, nil
}

func (e *Environment) lookup(name string) (*compiledTemplate, error) {
	e.templatesMu.RLock()
	compiled, ok := e.templates[name]
	e.templatesMu.RUnlock()
	if !ok {
		msg := suggest("template `"+name+"` is not registered", name, e.TemplateNames())
		return nil, NewError(ErrTemplateNotFound, msg)
	}
	return compiled, nil
}

// TemplateNames returns the names of all registered templates, sorted.
func (e *Environment) TemplateNames() []string {
	e.templatesMu.RLock()
	names := make([]string, 0, len(e.templates))
	for name := range e.templates {
		names = append(names, name)
	}
	e.templatesMu.RUnlock()
	sort.Strings(names)
	return names
}

// Render renders the named template with data, which is converted with
// value.FromAny.
func (e *Environment) Render(name string, data any) (string, error) {
	return e.RenderValue(name, value.FromAny(data))
}

// RenderValue renders the named template with data.
func (e *Environment) RenderValue(name string, data value.Value) (string, error) {
	tmpl, err := e.GetTemplate(name)
	if err != nil {
		return "", err
	}
	return tmpl.RenderValue(data)
}

// SetRecursionLimit sets the maximum depth of nested template calls.
func (e *Environment) SetRecursionLimit(limit int) {
	e.recursionLimit = limit
}

// SetFuel limits the work of a single render. Zero disables the limit.
func (e *Environment) SetFuel(fuel uint64) {
	e.fuel = fuel
}

// SetDebug enables capturing template source and referenced variables in
// render errors.
func (e *Environment) SetDebug(debug bool) {
	e.debug = debug
}

// SetLogger sets the logger. A nil logger disables logging.
func (e *Environment) SetLogger(logger *zap.Logger) {
	if logger == nil {
		logger = zap.NewNop()
	}
	e.logger = logger
}

// AddDirective registers a print directive. Prints using it are still
// HTML-escaped when their template autoescapes.
func (e *Environment) AddDirective(name string, fn DirectiveFunc) {
	e.directives[name] = directive{fn: fn}
}

// AddEscapingDirective registers a print directive whose output is used as
// is, replacing automatic HTML escaping.
func (e *Environment) AddEscapingDirective(name string, fn DirectiveFunc) {
	e.directives[name] = directive{fn: fn, escaping: true}
}

// AddFunction registers a function callable from expressions.
func (e *Environment) AddFunction(name string, fn FunctionFunc) {
	e.functions[name] = fn
}

func (e *Environment) directiveNames() []string {
	names := make([]string, 0, len(e.directives))
	for name := range e.directives {
		names = append(names, name)
	}
	return names
}

func (e *Environment) functionNames() []string {
	names := make([]string, 0, len(e.functions)+len(loopFunctions))
	for name := range e.functions {
		names = append(names, name)
	}
	for name := range loopFunctions {
		names = append(names, name)
	}
	return names
}

// Template is a registered template bound to its environment.
type Template struct {
	env      *Environment
	compiled *compiledTemplate
}

// Name returns the template name.
func (t *Template) Name() string {
	return t.compiled.name
}

// Source returns the source the template was parsed from. For templates
// added with AddFile this is the whole file.
func (t *Template) Source() string {
	return t.compiled.source
}

// Private reports whether the template may only be called from other
// templates.
func (t *Template) Private() bool {
	return t.compiled.ast.Private
}

// Render renders the template with data, which is converted with
// value.FromAny.
func (t *Template) Render(data any) (string, error) {
	return t.RenderValue(value.FromAny(data))
}

// RenderValue renders the template with data.
func (t *Template) RenderValue(data value.Value) (string, error) {
	if t.compiled.ast.Private {
		return "", NewError(ErrPrivateTemplate, "template `"+t.compiled.name+"` is private and can only be called from other templates").
			WithName(t.compiled.name)
	}
	start := time.Now()
	state := newState(t.env, data)
	out, err := state.render(t.compiled)
	log := t.env.logger.With(zap.String("template", t.compiled.name), zap.Duration("elapsed", time.Since(start)))
	if err != nil {
		log.Debug("render failed", zap.Error(err))
		return "", err
	}
	log.Debug("rendered", zap.Int("bytes", len(out)), zap.Uint64("fuel", state.fuel.consumed()))
	return out, nil
}
