// Package assert evaluates typed assertions against a response.
package assert

import (
	"fmt"
	"strings"

	"github.com/expr-lang/expr"
	"github.com/xeipuuv/gojsonschema"

	"github.com/unkn0wn-root/reqflow/internal/jsonval"
	"github.com/unkn0wn-root/reqflow/internal/restfile"
)

// ErrorMessage is reported by any assertion that could not be evaluated.
const ErrorMessage = "error evaluating assertion"

// Evaluate runs every assertion against resp, in order. A failing or broken
// assertion never stops the ones after it.
func Evaluate(resp *restfile.Success, assertions []restfile.Assertion) []restfile.TestResult {
	if len(assertions) == 0 {
		return nil
	}
	results := make([]restfile.TestResult, 0, len(assertions))
	for _, a := range assertions {
		results = append(results, evaluateOne(resp, a))
	}
	return results
}

// Summary counts passing and failing results.
func Summary(results []restfile.TestResult) (passed, failed int) {
	for _, r := range results {
		if r.Passed {
			passed++
		} else {
			failed++
		}
	}
	return passed, failed
}

func evaluateOne(resp *restfile.Success, a restfile.Assertion) (result restfile.TestResult) {
	result = restfile.TestResult{AssertionID: a.ID, Name: Label(a)}
	defer func() {
		if r := recover(); r != nil {
			result.Passed = false
			result.Message = ErrorMessage
		}
	}()
	if resp == nil {
		result.Message = ErrorMessage
		return result
	}

	var err error
	result.Passed, result.Message, err = check(resp, a)
	if err != nil {
		result.Passed = false
		result.Message = ErrorMessage
	}
	return result
}

func check(resp *restfile.Success, a restfile.Assertion) (bool, string, error) {
	switch a.Type {
	case restfile.AssertStatusCode:
		want, ok := parseInt(a.Expected)
		if ok && resp.Status == want {
			return true, fmt.Sprintf("Status code is %d", resp.Status), nil
		}
		return false, fmt.Sprintf("Expected status %s but got %d", a.Expected, resp.Status), nil

	case restfile.AssertResponseTime:
		limit, ok := parseInt(a.Expected)
		if ok && resp.Time < int64(limit) {
			return true, fmt.Sprintf("Response time %dms is below %dms", resp.Time, limit), nil
		}
		return false, fmt.Sprintf("Response time %dms is not below %sms", resp.Time, a.Expected), nil

	case restfile.AssertBodyContains:
		if strings.Contains(bodyText(resp.Data), a.Expected) {
			return true, fmt.Sprintf("Body contains %q", a.Expected), nil
		}
		return false, fmt.Sprintf("Body does not contain %q", a.Expected), nil

	case restfile.AssertJSONValue:
		actual := ""
		if v, ok := Lookup(resp.Data, a.Property); ok {
			actual = v.String()
		}
		if actual == a.Expected {
			return true, fmt.Sprintf("%s equals %q", a.Property, a.Expected), nil
		}
		return false, fmt.Sprintf("Expected %s to equal %q but got %q", a.Property, a.Expected, actual), nil

	case restfile.AssertExpression:
		ok, err := evalExpression(resp, a.Property)
		if err != nil {
			return false, "", err
		}
		if ok {
			return true, "Expression is true", nil
		}
		return false, "Expression is false", nil

	case restfile.AssertJSONSchema:
		problems, err := validateSchema(resp.Data, a.Property, a.Expected)
		if err != nil {
			return false, "", err
		}
		if len(problems) == 0 {
			return true, "Body matches schema", nil
		}
		return false, "Schema violations: " + strings.Join(problems, "; "), nil

	default:
		return false, "", fmt.Errorf("unsupported assertion type %q", a.Type)
	}
}

// Label is the human name shown for an assertion.
func Label(a restfile.Assertion) string {
	switch a.Type {
	case restfile.AssertStatusCode:
		return "Status code is " + a.Expected
	case restfile.AssertResponseTime:
		return "Response time < " + a.Expected + "ms"
	case restfile.AssertBodyContains:
		return fmt.Sprintf("Body contains %q", a.Expected)
	case restfile.AssertJSONValue:
		return fmt.Sprintf("%s equals %q", a.Property, a.Expected)
	case restfile.AssertExpression:
		return "Expression: " + a.Property
	case restfile.AssertJSONSchema:
		if a.Property != "" {
			return a.Property + " matches schema"
		}
		return "Body matches schema"
	default:
		return string(a.Type)
	}
}

// Lookup walks a dot path through objects and arrays. Empty segments are
// ignored; stepping into a scalar yields ok=false.
func Lookup(data jsonval.Value, path string) (jsonval.Value, bool) {
	cur := data
	for _, seg := range strings.Split(path, ".") {
		if seg == "" {
			continue
		}
		next, ok := cur.Child(seg)
		if !ok {
			return jsonval.Value{}, false
		}
		cur = next
	}
	return cur, true
}

func bodyText(v jsonval.Value) string {
	if v.Kind() == jsonval.String {
		return v.Str()
	}
	return v.JSON()
}

// parseInt reads a leading base-10 integer. Surrounding space is ignored
// and anything after the digits is dropped.
func parseInt(s string) (int, bool) {
	s = strings.TrimSpace(s)
	neg := false
	if s != "" && (s[0] == '-' || s[0] == '+') {
		neg = s[0] == '-'
		s = s[1:]
	}
	n, digits := 0, 0
	for digits < len(s) && s[digits] >= '0' && s[digits] <= '9' {
		n = n*10 + int(s[digits]-'0')
		digits++
		if n > 1<<40 {
			return 0, false
		}
	}
	if digits == 0 {
		return 0, false
	}
	if neg {
		n = -n
	}
	return n, true
}

func evalExpression(resp *restfile.Success, source string) (bool, error) {
	if strings.TrimSpace(source) == "" {
		return false, fmt.Errorf("empty expression")
	}
	headers := resp.Headers
	if headers == nil {
		headers = map[string]string{}
	}
	env := map[string]any{
		"status":  resp.Status,
		"time":    int(resp.Time),
		"size":    int(resp.Size),
		"data":    resp.Data.ToAny(),
		"headers": headers,
	}
	program, err := expr.Compile(source, expr.Env(env), expr.AsBool())
	if err != nil {
		return false, err
	}
	out, err := expr.Run(program, env)
	if err != nil {
		return false, err
	}
	ok, isBool := out.(bool)
	if !isBool {
		return false, fmt.Errorf("expression did not evaluate to bool, got %T", out)
	}
	return ok, nil
}

// validateSchema checks the value at path (the whole body when empty)
// against an inline JSON schema. A missing path or an unusable schema is an
// error, not a violation.
func validateSchema(data jsonval.Value, path, schema string) ([]string, error) {
	if strings.TrimSpace(schema) == "" {
		return nil, fmt.Errorf("empty schema")
	}
	target := data
	if strings.TrimSpace(path) != "" {
		v, ok := Lookup(data, path)
		if !ok {
			return nil, fmt.Errorf("no value at %s", path)
		}
		target = v
	}
	res, err := gojsonschema.Validate(
		gojsonschema.NewStringLoader(schema),
		gojsonschema.NewStringLoader(target.JSON()),
	)
	if err != nil {
		return nil, err
	}
	if res.Valid() {
		return nil, nil
	}
	problems := make([]string, 0, len(res.Errors()))
	for _, e := range res.Errors() {
		problems = append(problems, e.String())
	}
	return problems, nil
}
