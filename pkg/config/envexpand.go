package config

import (
	"bytes"
	"os"
	"strings"
	"text/template"
)

// ExpandEnv substitutes environment variables referenced with {{.VAR}}
// syntax in YAML content. Template syntax is used instead of $VAR so
// literal dollar signs in descriptions or patterns survive untouched.
// Missing variables expand to the empty string.
func ExpandEnv(data []byte) []byte {
	tmpl, err := template.New("catalog").Option("missingkey=zero").Parse(string(data))
	if err != nil {
		// Content without template syntax passes through unchanged.
		return data
	}

	env := make(map[string]string)
	for _, kv := range os.Environ() {
		if idx := strings.IndexByte(kv, '='); idx > 0 {
			env[kv[:idx]] = kv[idx+1:]
		}
	}

	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, env); err != nil {
		return data
	}
	return buf.Bytes()
}
