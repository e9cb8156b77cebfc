package runner

import (
	"github.com/tidwall/gjson"

	"github.com/unkn0wn-root/reqflow/internal/restfile"
	"github.com/unkn0wn-root/reqflow/internal/vars"
)

// extract overwrites run-scope variables from an object payload. Only names
// already in scope are considered; each is looked up as a top-level key,
// then under "data". Null values are skipped.
func extract(scope vars.Set, result restfile.Result) {
	success, ok := result.(*restfile.Success)
	if !ok || !success.Data.IsObject() {
		return
	}
	payload := success.Data
	nested, hasNested := payload.Get("data")

	for _, key := range scope.Names() {
		name := vars.Bare(key)
		v, found := payload.Get(name)
		if !found && hasNested {
			v, found = nested.Get(name)
		}
		if found && !v.IsNull() {
			scope[key] = v.String()
		}
	}
}

// applyCaptures evaluates declared gjson paths against the payload. Unlike
// extract, a capture may introduce a new name. Missing and null results
// leave the scope untouched.
func applyCaptures(scope vars.Set, captures []restfile.Capture, result restfile.Result) {
	if len(captures) == 0 {
		return
	}
	success, ok := result.(*restfile.Success)
	if !ok {
		return
	}
	doc := success.Data.JSON()
	for _, c := range captures {
		if c.Name == "" || c.Path == "" {
			continue
		}
		res := gjson.Get(doc, c.Path)
		if !res.Exists() || res.Type == gjson.Null {
			continue
		}
		scope[c.Name] = res.String()
	}
}

func capturesOf(req *restfile.Request) []restfile.Capture {
	if req == nil {
		return nil
	}
	return req.Captures
}
