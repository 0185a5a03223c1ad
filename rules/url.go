package rules

import (
	"fmt"
	"reflect"
)

// NodeURLResolver maps a content node to its canonical URL path.
type NodeURLResolver interface {
	NodeURL(node ContentNode) (string, error)
}

// URLResolverFunc adapts a function to NodeURLResolver.
type URLResolverFunc func(node ContentNode) (string, error)

func (f URLResolverFunc) NodeURL(node ContentNode) (string, error) { return f(node) }

// InputURLResolver resolves an EvaluationInput to its ResolvedURL.
// Other node types resolve to the empty path, which matches no path rule.
type InputURLResolver struct{}

func (InputURLResolver) NodeURL(node ContentNode) (string, error) {
	switch n := node.(type) {
	case EvaluationInput:
		return n.ResolvedURL, nil
	case *EvaluationInput:
		return n.ResolvedURL, nil
	}
	return "", nil
}

// StaticURLResolver looks URLs up by document type alias. Used mostly in tests.
type StaticURLResolver map[string]string

func (m StaticURLResolver) NodeURL(node ContentNode) (string, error) {
	url, ok := m[node.DocumentTypeAlias()]
	if !ok {
		return "", fmt.Errorf("no url for document type %q", node.DocumentTypeAlias())
	}
	return url, nil
}

func isNil(v any) bool {
	if v == nil {
		return true
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Ptr, reflect.Map, reflect.Func, reflect.Interface, reflect.Slice, reflect.Chan:
		return rv.IsNil()
	}
	return false
}
