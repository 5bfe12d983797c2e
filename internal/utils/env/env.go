// Package env handles the job environment variables.
package env

import (
	"fmt"
	"maps"
	"os"
	"regexp"
	"slices"
	"strings"

	"github.com/joho/godotenv"
)

var envKeyRegexp = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// ParseSpecs parses `KEY=value` specs, a bare `KEY` inherits the value from
// the current process environment.
func ParseSpecs(specs []string) (map[string]string, error) {
	env := make(map[string]string, len(specs))

	for _, spec := range specs {
		if spec == "" {
			return nil, fmt.Errorf("environment variable spec cannot be empty")
		}

		key, value, ok := strings.Cut(spec, "=")
		if !isValidKey(key) {
			return nil, fmt.Errorf("invalid environment variable key %q", key)
		}

		if !ok {
			value, ok = os.LookupEnv(key)
			if !ok {
				return nil, fmt.Errorf("environment variable %q is not set", key)
			}
		}

		env[key] = value
	}

	return env, nil
}

// ReadFiles reads dotenv files, later files override earlier ones.
func ReadFiles(paths ...string) (map[string]string, error) {
	env := map[string]string{}
	for _, p := range paths {
		fileEnv, err := godotenv.Read(p)
		if err != nil {
			return nil, fmt.Errorf("could not read env file %s: %w", p, err)
		}
		maps.Copy(env, fileEnv)
	}
	return env, nil
}

// Merge returns a new map with the override entries on top of base.
func Merge(base, override map[string]string) map[string]string {
	merged := make(map[string]string, len(base)+len(override))
	maps.Copy(merged, base)
	maps.Copy(merged, override)
	return merged
}

// List returns the env as `KEY=value` entries sorted by key.
func List(env map[string]string) []string {
	if len(env) == 0 {
		return nil
	}

	res := make([]string, 0, len(env))
	for _, k := range slices.Sorted(maps.Keys(env)) {
		res = append(res, k+"="+env[k])
	}
	return res
}

func isValidKey(k string) bool {
	return envKeyRegexp.MatchString(k)
}
