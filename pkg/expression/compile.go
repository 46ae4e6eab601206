package expression

import (
	"fmt"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/dlclark/regexp2"
	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"

	"github.com/autobrr/dupelink/pkg/logger"
	"github.com/autobrr/dupelink/pkg/paths"
)

var (
	log = logger.GetLogger("expression")

	regexCache sync.Map
)

type CompiledExpression struct {
	Program *vm.Program
	Text    string
}

// evalContext is the environment candidate filter expressions run against.
type evalContext struct {
	Path    string
	Name    string
	Dir     string
	Ext     string
	Size    int64
	AgeDays float64
}

func newEvalContext(p paths.Path) *evalContext {
	name := p.FileName
	if name == "" {
		name = filepath.Base(p.Path)
	}

	dir := p.Directory
	if dir == "" {
		dir = filepath.Dir(p.Path)
	}

	var age float64
	if !p.ModifiedTime.IsZero() {
		age = time.Since(p.ModifiedTime).Hours() / 24
	}

	return &evalContext{
		Path:    p.Path,
		Name:    name,
		Dir:     dir,
		Ext:     strings.ToLower(filepath.Ext(name)),
		Size:    p.Size,
		AgeDays: age,
	}
}

// RegexMatch reports whether the file path matches the .NET style pattern.
func (e *evalContext) RegexMatch(pattern string) bool {
	re, err := compileRegex(pattern)
	if err != nil {
		log.WithError(err).Errorf("Failed compiling regex: %q", pattern)
		return false
	}

	match, err := re.MatchString(e.Path)
	if err != nil {
		log.WithError(err).Errorf("Failed matching regex %q against %q", pattern, e.Path)
		return false
	}

	return match
}

func compileRegex(pattern string) (*regexp2.Regexp, error) {
	if cached, ok := regexCache.Load(pattern); ok {
		return cached.(*regexp2.Regexp), nil
	}

	re, err := regexp2.Compile(pattern, regexp2.None)
	if err != nil {
		return nil, err
	}
	re.MatchTimeout = time.Second

	regexCache.Store(pattern, re)
	return re, nil
}

// Compile type-checks every expression against the candidate environment. Each must
// evaluate to a bool.
func Compile(expressions []string) ([]CompiledExpression, error) {
	compiled := make([]CompiledExpression, 0, len(expressions))

	for _, text := range expressions {
		program, err := expr.Compile(text, expr.Env(&evalContext{}), expr.AsBool())
		if err != nil {
			return nil, fmt.Errorf("compile expression %q: %w", text, err)
		}

		compiled = append(compiled, CompiledExpression{
			Program: program,
			Text:    text,
		})
	}

	return compiled, nil
}
