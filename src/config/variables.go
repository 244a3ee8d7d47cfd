package config

import (
	"fmt"
	"os"
	"regexp"

	"github.com/joho/godotenv"
)

// VariableNotFound is returned when a referenced variable has no value.
type VariableNotFound struct {
	VariableName string
}

func (e *VariableNotFound) Error() string {
	return fmt.Sprintf(
		"Variable %q referenced in server configuration not found. "+
			"Please add it to the environment variables or to your MCP configuration.",
		e.VariableName,
	)
}

// VariablesSource is any variable-loading strategy.
type VariablesSource interface {
	// Load returns all variables available from this source.
	Load() (map[string]string, error)
	// Get returns a single variable value or an error if not present.
	Get(key string) (string, error)
}

// DotEnv implements VariablesSource by loading a .env file.
type DotEnv struct {
	EnvFilePath string
}

func NewDotEnv(path string) *DotEnv {
	return &DotEnv{EnvFilePath: path}
}

// Load reads the .env file and returns a map of key→value.
func (d *DotEnv) Load() (map[string]string, error) {
	return godotenv.Read(d.EnvFilePath)
}

// Get loads the file and looks up a single key.
func (d *DotEnv) Get(key string) (string, error) {
	vars, err := d.Load()
	if err != nil {
		return "", err
	}
	if val, ok := vars[key]; ok {
		return val, nil
	}
	return "", &VariableNotFound{VariableName: key}
}

// Resolver looks variables up in explicit values, then the configured
// sources in order, then the process environment.
type Resolver struct {
	// Variables explicitly passed in (takes precedence)
	Variables map[string]string

	// Sources consulted after Variables (e.g. .env files)
	LoadVariablesFrom []VariablesSource
}

func NewResolver(vars map[string]string, sources ...VariablesSource) *Resolver {
	if vars == nil {
		vars = make(map[string]string)
	}
	return &Resolver{Variables: vars, LoadVariablesFrom: sources}
}

// Get checks inline values, loaders, then os.Getenv.
func (r *Resolver) Get(key string) (string, error) {
	if r != nil {
		if v, ok := r.Variables[key]; ok {
			return v, nil
		}
		for _, loader := range r.LoadVariablesFrom {
			if val, err := loader.Get(key); err == nil && val != "" {
				return val, nil
			}
		}
	}
	if env := os.Getenv(key); env != "" {
		return env, nil
	}
	return "", &VariableNotFound{VariableName: key}
}

// Lookup is Get reporting presence instead of an error.
func (r *Resolver) Lookup(key string) (string, bool) {
	v, err := r.Get(key)
	return v, err == nil
}

var varPattern = regexp.MustCompile(`\$\{(\w+)\}|\$(\w+)`)

// ReplaceVars walks strings, maps and lists and does ${VAR}/$VAR
// substitution. Unknown variables are left as written.
func (r *Resolver) ReplaceVars(x any) any {
	switch v := x.(type) {
	case string:
		return varPattern.ReplaceAllStringFunc(v, func(match string) string {
			g := varPattern.FindStringSubmatch(match)
			name := g[1]
			if name == "" {
				name = g[2]
			}
			val, err := r.Get(name)
			if err != nil {
				return match
			}
			return val
		})
	case []any:
		out := make([]any, len(v))
		for i, e := range v {
			out[i] = r.ReplaceVars(e)
		}
		return out
	case []string:
		out := make([]string, len(v))
		for i, e := range v {
			out[i] = r.ReplaceVars(e).(string)
		}
		return out
	case map[string]any:
		out := make(map[string]any, len(v))
		for k, e := range v {
			out[k] = r.ReplaceVars(e)
		}
		return out
	case map[string]string:
		out := make(map[string]string, len(v))
		for k, e := range v {
			out[k] = r.ReplaceVars(e).(string)
		}
		return out
	default:
		return x
	}
}

// Missing lists the variables referenced in x that cannot be resolved.
func (r *Resolver) Missing(x any) []string {
	var missing []string
	seen := map[string]bool{}
	var walk func(any)
	walk = func(x any) {
		switch v := x.(type) {
		case string:
			for _, g := range varPattern.FindAllStringSubmatch(v, -1) {
				name := g[1]
				if name == "" {
					name = g[2]
				}
				if _, err := r.Get(name); err != nil && !seen[name] {
					seen[name] = true
					missing = append(missing, name)
				}
			}
		case []any:
			for _, e := range v {
				walk(e)
			}
		case map[string]any:
			for _, e := range v {
				walk(e)
			}
		}
	}
	walk(x)
	return missing
}
