package httpclient

import (
	"encoding/base64"
	"testing"

	"github.com/unkn0wn-root/reqflow/internal/restfile"
	"github.com/unkn0wn-root/reqflow/internal/vars"
)

func TestInjectAuthBearer(t *testing.T) {
	t.Parallel()
	headers := map[string]string{}
	out := InjectAuth(headers, restfile.BearerAuth{Token: "{{token}}"}, vars.Set{"token": "abc"}, nil, "http://x")
	if out != "http://x" {
		t.Fatalf("bearer must not touch the url, got %q", out)
	}
	if headers["Authorization"] != "Bearer abc" {
		t.Fatalf("unexpected authorization %q", headers["Authorization"])
	}
}

func TestInjectAuthBearerEmptyTokenSkipped(t *testing.T) {
	t.Parallel()
	headers := map[string]string{}
	InjectAuth(headers, restfile.BearerAuth{Token: "{{missing}}"}, vars.Set{"missing": ""}, nil, "http://x")
	if _, ok := headers["Authorization"]; ok {
		t.Fatalf("empty token must not set a header, got %v", headers)
	}
}

func TestInjectAuthNeverClobbers(t *testing.T) {
	t.Parallel()
	cases := []struct {
		name string
		auth restfile.Auth
	}{
		{"bearer", restfile.BearerAuth{Token: "abc"}},
		{"basic", restfile.BasicAuth{Username: "u", Password: "p"}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			headers := map[string]string{"authorization": "Foo"}
			InjectAuth(headers, tc.auth, nil, nil, "http://x")
			if len(headers) != 1 || headers["authorization"] != "Foo" {
				t.Fatalf("explicit header must win, got %v", headers)
			}
		})
	}
}

func TestInjectAuthBasic(t *testing.T) {
	t.Parallel()
	headers := map[string]string{}
	InjectAuth(headers, restfile.BasicAuth{Username: "{{user}}", Password: "s3cret"}, vars.Set{"user": "ada"}, nil, "http://x")
	want := "Basic " + base64.StdEncoding.EncodeToString([]byte("ada:s3cret"))
	if headers["Authorization"] != want {
		t.Fatalf("got %q, want %q", headers["Authorization"], want)
	}
}

func TestInjectAuthBasicEmptyCredentials(t *testing.T) {
	t.Parallel()
	headers := map[string]string{}
	InjectAuth(headers, restfile.BasicAuth{}, nil, nil, "http://x")
	want := "Basic " + base64.StdEncoding.EncodeToString([]byte(":"))
	if headers["Authorization"] != want {
		t.Fatalf("got %q, want %q", headers["Authorization"], want)
	}
}

func TestInjectAuthAPIKeyHeader(t *testing.T) {
	t.Parallel()
	headers := map[string]string{}
	auth := restfile.APIKeyAuth{Key: "X-Api-Key", Value: "{{key}}", AddTo: restfile.APIKeyHeader}
	InjectAuth(headers, auth, vars.Set{"key": "k1"}, nil, "http://x")
	if headers["X-Api-Key"] != "k1" {
		t.Fatalf("unexpected headers %v", headers)
	}

	headers = map[string]string{"x-api-key": "mine"}
	InjectAuth(headers, auth, vars.Set{"key": "k1"}, nil, "http://x")
	if len(headers) != 1 || headers["x-api-key"] != "mine" {
		t.Fatalf("existing api key header must win, got %v", headers)
	}
}

func TestInjectAuthAPIKeyQuery(t *testing.T) {
	t.Parallel()
	auth := restfile.APIKeyAuth{Key: "api key", Value: "a&b", AddTo: restfile.APIKeyQuery}
	cases := []struct {
		url  string
		want string
	}{
		{"http://x/a", "http://x/a?api+key=a%26b"},
		{"http://x/a?api+key=old", "http://x/a?api+key=old&api+key=a%26b"},
		{"http://x/a#top", "http://x/a?api+key=a%26b#top"},
	}
	for _, tc := range cases {
		headers := map[string]string{}
		if got := InjectAuth(headers, auth, nil, nil, tc.url); got != tc.want {
			t.Fatalf("InjectAuth(%q) = %q, want %q", tc.url, got, tc.want)
		}
		if len(headers) != 0 {
			t.Fatalf("query placement must not add headers, got %v", headers)
		}
	}
}

func TestInjectAuthAPIKeyRequiresKey(t *testing.T) {
	t.Parallel()
	headers := map[string]string{}
	out := InjectAuth(headers, restfile.APIKeyAuth{Value: "v", AddTo: restfile.APIKeyQuery}, nil, nil, "http://x")
	if out != "http://x" || len(headers) != 0 {
		t.Fatalf("empty key must be a no-op, got %q %v", out, headers)
	}
}

func TestInjectAuthAPIKeyEmptyAfterResolve(t *testing.T) {
	t.Parallel()
	set := vars.Set{"k": ""}
	for _, addTo := range []restfile.APIKeyPlacement{restfile.APIKeyHeader, restfile.APIKeyQuery} {
		headers := map[string]string{}
		out := InjectAuth(headers, restfile.APIKeyAuth{Key: "{{k}}", Value: "v", AddTo: addTo}, set, nil, "http://x")
		if out != "http://x" || len(headers) != 0 {
			t.Fatalf("empty resolved key must be skipped, got %q %v", out, headers)
		}
	}
}

func TestInjectAuthNone(t *testing.T) {
	t.Parallel()
	for _, auth := range []restfile.Auth{nil, restfile.NoAuth{}} {
		headers := map[string]string{}
		if out := InjectAuth(headers, auth, nil, nil, "http://x"); out != "http://x" || len(headers) != 0 {
			t.Fatalf("none must be a no-op, got %q %v", out, headers)
		}
	}
}
