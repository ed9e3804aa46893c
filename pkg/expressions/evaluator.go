// Package expressions pulls values out of provider token responses with JMESPath, so connector
// descriptors can name account ids and display names declaratively.
package expressions

import (
	"fmt"
	"strconv"
	"sync"

	"github.com/jmespath/go-jmespath"
)

// Evaluator runs JMESPath expressions. Compiled expressions are kept for the life of the process;
// descriptors only ever declare a handful.
type Evaluator struct {
	compiled sync.Map // expression -> *jmespath.JMESPath
}

func NewEvaluator() *Evaluator {
	return &Evaluator{}
}

func (e *Evaluator) Evaluate(expression string, data any) (any, error) {
	path, err := e.compile(expression)
	if err != nil {
		return nil, fmt.Errorf("invalid expression %q: %w", expression, err)
	}

	result, err := path.Search(data)
	if err != nil {
		return nil, fmt.Errorf("failed to evaluate expression %q: %w", expression, err)
	}
	return result, nil
}

// EvaluateString renders the result as a string; a missing value is "". Whole numbers print
// without exponent or decimals so numeric account ids stay usable as external ids.
func (e *Evaluator) EvaluateString(expression string, data any) (string, error) {
	result, err := e.Evaluate(expression, data)
	if err != nil {
		return "", err
	}
	return stringify(result), nil
}

// EvaluateMap evaluates every named expression and drops empty results.
func (e *Evaluator) EvaluateMap(expressions map[string]string, data any) (map[string]string, error) {
	values := make(map[string]string, len(expressions))
	for name, expression := range expressions {
		value, err := e.EvaluateString(expression, data)
		if err != nil {
			return nil, err
		}
		if value == "" {
			continue
		}
		values[name] = value
	}
	return values, nil
}

// Validate compiles expression, reporting syntax errors at descriptor registration.
func (e *Evaluator) Validate(expression string) error {
	_, err := e.compile(expression)
	return err
}

func (e *Evaluator) compile(expression string) (*jmespath.JMESPath, error) {
	if cached, ok := e.compiled.Load(expression); ok {
		return cached.(*jmespath.JMESPath), nil
	}
	path, err := jmespath.Compile(expression)
	if err != nil {
		return nil, err
	}
	actual, _ := e.compiled.LoadOrStore(expression, path)
	return actual.(*jmespath.JMESPath), nil
}

func stringify(value any) string {
	switch v := value.(type) {
	case nil:
		return ""
	case string:
		return v
	case bool:
		return strconv.FormatBool(v)
	case float64:
		if v == float64(int64(v)) {
			return strconv.FormatInt(int64(v), 10)
		}
		return strconv.FormatFloat(v, 'f', -1, 64)
	default:
		return fmt.Sprint(v)
	}
}
