package env

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"
)

// LoadDotEnv reads a dotenv file into execution variables.
func LoadDotEnv(path string) (map[string]any, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open env file: %w", err)
	}
	defer file.Close()

	vars, err := ParseDotEnv(file)
	if err != nil {
		return nil, fmt.Errorf("read env file %s: %w", path, err)
	}
	return vars, nil
}

// ParseDotEnv accepts KEY=value lines, an optional "export " prefix,
// single or double quoted values and # comment lines. Escapes \n, \t,
// \" and \\ are expanded inside double quotes only.
func ParseDotEnv(r io.Reader) (map[string]any, error) {
	result := make(map[string]any)
	scanner := bufio.NewScanner(r)

	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		line = strings.TrimPrefix(line, "export ")

		key, value, found := strings.Cut(line, "=")
		if !found {
			continue
		}

		key = strings.TrimSpace(key)
		if key == "" {
			continue
		}
		result[key] = unquoteValue(strings.TrimSpace(value))
	}

	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

func unquoteValue(value string) string {
	if len(value) < 2 {
		return value
	}
	first, last := value[0], value[len(value)-1]
	switch {
	case first == '\'' && last == '\'':
		return value[1 : len(value)-1]
	case first == '"' && last == '"':
		return expandEscapes(value[1 : len(value)-1])
	}
	return value
}

var escapeReplacer = strings.NewReplacer(`\n`, "\n", `\t`, "\t", `\"`, `"`, `\\`, `\`)

func expandEscapes(s string) string {
	return escapeReplacer.Replace(s)
}

// MergeVariables combines variable sets; later sets win.
func MergeVariables(sources ...map[string]any) map[string]any {
	result := make(map[string]any)
	for _, src := range sources {
		for k, v := range src {
			result[k] = v
		}
	}
	return result
}
