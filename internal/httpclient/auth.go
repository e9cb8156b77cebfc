package httpclient

import (
	"encoding/base64"
	"net/url"
	"strings"

	"github.com/unkn0wn-root/reqflow/internal/restfile"
	"github.com/unkn0wn-root/reqflow/internal/vars"
)

const authorizationHeader = "Authorization"

// InjectAuth applies auth to headers in place and returns the URL, extended
// when an API key goes into the query. Headers the user already set are
// never replaced; a collision is silently skipped.
func InjectAuth(headers map[string]string, auth restfile.Auth, set vars.Set, req *restfile.Request, rawURL string) string {
	return injectAuth(vars.NewResolver(), headers, auth, set, req, rawURL)
}

func injectAuth(
	r *vars.Resolver,
	headers map[string]string,
	auth restfile.Auth,
	set vars.Set,
	req *restfile.Request,
	rawURL string,
) string {
	resolve := func(s string) string { return r.Resolve(s, set, req) }

	switch a := auth.(type) {
	case nil, restfile.NoAuth:
		return rawURL
	case restfile.BearerAuth:
		token := resolve(a.Token)
		if token == "" {
			return rawURL
		}
		if _, exists := headerValue(headers, authorizationHeader); !exists {
			headers[authorizationHeader] = "Bearer " + token
		}
	case restfile.BasicAuth:
		if _, exists := headerValue(headers, authorizationHeader); exists {
			return rawURL
		}
		creds := resolve(a.Username) + ":" + resolve(a.Password)
		headers[authorizationHeader] = "Basic " + base64.StdEncoding.EncodeToString([]byte(creds))
	case restfile.APIKeyAuth:
		key := resolve(a.Key)
		if strings.TrimSpace(key) == "" {
			return rawURL
		}
		value := resolve(a.Value)
		if a.AddTo == restfile.APIKeyQuery {
			base, fragment, hasFragment := strings.Cut(rawURL, "#")
			sep := "?"
			if strings.Contains(base, "?") {
				sep = "&"
			}
			out := base + sep + url.QueryEscape(key) + "=" + url.QueryEscape(value)
			if hasFragment {
				out += "#" + fragment
			}
			return out
		}
		if _, exists := headerValue(headers, key); !exists {
			headers[key] = value
		}
	}
	return rawURL
}
