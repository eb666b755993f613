package secret

import (
	"fmt"
	"os"
	"sort"
	"strings"
)

// ExpandEnvStrict expands environment variables in s.
//
// Semantics:
//   - `$VAR` and `${VAR}` are expanded from the environment.
//   - If `${VAR}` is present but VAR is missing from the environment, it errors.
//   - `$$` emits a literal `$` (escape hatch).
func ExpandEnvStrict(s string) (string, error) {
	var b strings.Builder
	b.Grow(len(s))

	missing := make(map[string]struct{})
	for i := 0; i < len(s); i++ {
		if s[i] != '$' {
			b.WriteByte(s[i])
			continue
		}
		if i+1 < len(s) && s[i+1] == '$' {
			b.WriteByte('$')
			i++
			continue
		}
		if i+1 < len(s) && s[i+1] == '{' {
			end := strings.IndexByte(s[i+2:], '}')
			if end < 0 {
				b.WriteByte('$')
				continue
			}
			name := s[i+2 : i+2+end]
			i += 2 + end
			if !isEnvName(name) {
				b.WriteString("${" + name + "}")
				continue
			}
			v, ok := os.LookupEnv(name)
			if !ok {
				missing[name] = struct{}{}
				continue
			}
			b.WriteString(v)
			continue
		}
		// Bare $VAR expands leniently, like os.ExpandEnv.
		j := i + 1
		for j < len(s) && isEnvNameByte(s[j], j > i+1) {
			j++
		}
		if j == i+1 {
			b.WriteByte('$')
			continue
		}
		b.WriteString(os.Getenv(s[i+1 : j]))
		i = j - 1
	}

	if len(missing) > 0 {
		names := make([]string, 0, len(missing))
		for n := range missing {
			names = append(names, n)
		}
		sort.Strings(names)
		return "", fmt.Errorf("missing required environment variables: %s", strings.Join(names, ", "))
	}
	return b.String(), nil
}

func isEnvName(s string) bool {
	if s == "" {
		return false
	}
	for i := 0; i < len(s); i++ {
		if !isEnvNameByte(s[i], i > 0) {
			return false
		}
	}
	return true
}

func isEnvNameByte(c byte, notFirst bool) bool {
	switch {
	case c == '_', c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z':
		return true
	case c >= '0' && c <= '9':
		return notFirst
	}
	return false
}
