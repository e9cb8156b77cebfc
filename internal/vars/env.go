package vars

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	json "github.com/goccy/go-json"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/unkn0wn-root/reqflow/internal/errdef"
)

func IsDotEnvPath(path string) bool {
	base := strings.ToLower(filepath.Base(path))
	return base == ".env" || strings.HasPrefix(base, ".env.") || strings.HasSuffix(base, ".env")
}

// LoadEnvFile reads an environment from a .env, .json or .yaml file.
// JSON files may also be Postman environment exports ({"values": [...]}).
func LoadEnvFile(path string) (Set, error) {
	if IsDotEnvPath(path) {
		values, err := godotenv.Read(path)
		if err != nil {
			return nil, errdef.Wrap(errdef.CodeFilesystem, err, "read env %s", path)
		}
		return Set(values), nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errdef.Wrap(errdef.CodeFilesystem, err, "read env %s", path)
	}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		return parseJSONEnv(data, path)
	case ".yaml", ".yml":
		var raw map[string]any
		if err := yaml.Unmarshal(data, &raw); err != nil {
			return nil, errdef.Wrap(errdef.CodeParse, err, "parse env %s", path)
		}
		return flatten(raw), nil
	default:
		return nil, errdef.New(errdef.CodeParse, "unsupported env file %s", path)
	}
}

type postmanEnv struct {
	Values []struct {
		Key     string `json:"key"`
		Value   any    `json:"value"`
		Enabled *bool  `json:"enabled"`
	} `json:"values"`
}

func parseJSONEnv(data []byte, path string) (Set, error) {
	var probe map[string]any
	if err := json.Unmarshal(data, &probe); err != nil {
		return nil, errdef.Wrap(errdef.CodeParse, err, "parse env %s", path)
	}
	if _, ok := probe["values"].([]any); ok {
		var env postmanEnv
		if err := json.Unmarshal(data, &env); err != nil {
			return nil, errdef.Wrap(errdef.CodeParse, err, "parse env %s", path)
		}
		out := make(Set, len(env.Values))
		for _, v := range env.Values {
			if v.Key == "" || (v.Enabled != nil && !*v.Enabled) {
				continue
			}
			out[v.Key] = scalar(v.Value)
		}
		return out, nil
	}
	return flatten(probe), nil
}

func flatten(raw map[string]any) Set {
	out := make(Set, len(raw))
	for k, v := range raw {
		out[k] = scalar(v)
	}
	return out
}

func scalar(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return x
	case map[string]any, []any:
		b, err := json.Marshal(x)
		if err != nil {
			return fmt.Sprint(x)
		}
		return string(b)
	default:
		return fmt.Sprint(x)
	}
}

// ParseAssignments turns k=v pairs (as given on the command line) into a
// Set.
func ParseAssignments(pairs []string) (Set, error) {
	out := make(Set, len(pairs))
	for _, pair := range pairs {
		key, value, ok := strings.Cut(pair, "=")
		key = strings.TrimSpace(key)
		if !ok || key == "" {
			return nil, errdef.New(errdef.CodeConfig, "invalid variable %q, want key=value", pair)
		}
		out[key] = value
	}
	return out, nil
}

// Merge layers sets left to right; later sets win.
func Merge(sets ...Set) Set {
	out := Set{}
	for _, s := range sets {
		for k, v := range s {
			out[k] = v
		}
	}
	return out
}
