package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/eap-project/eap/pkg/agent"
	"github.com/eap-project/eap/pkg/models"
)

// catalogFile is the agents.yaml structure.
type catalogFile struct {
	Agents []agent.Spec `yaml:"agents"`
}

// LoadAgentCatalog reads the agent catalog YAML. Environment references
// in the file ({{.VAR}} syntax) are expanded before parsing. MinRole
// defaults to viewer when omitted.
func LoadAgentCatalog(path string) ([]agent.Spec, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read agent catalog: %w", err)
	}

	var file catalogFile
	if err := yaml.Unmarshal(ExpandEnv(data), &file); err != nil {
		return nil, fmt.Errorf("failed to parse agent catalog %s: %w", path, err)
	}
	if len(file.Agents) == 0 {
		return nil, fmt.Errorf("agent catalog %s defines no agents", path)
	}

	seen := make(map[string]bool, len(file.Agents))
	for i := range file.Agents {
		spec := &file.Agents[i]
		if spec.ID == "" {
			return nil, fmt.Errorf("agent catalog entry %d has no id", i)
		}
		if seen[spec.ID] {
			return nil, fmt.Errorf("duplicate agent id %q in catalog", spec.ID)
		}
		seen[spec.ID] = true
		if spec.MinRole == "" {
			spec.MinRole = models.RoleViewer
		}
		if !models.ValidRole(string(spec.MinRole)) {
			return nil, fmt.Errorf("agent %q has unknown min_role %q", spec.ID, spec.MinRole)
		}
	}
	return file.Agents, nil
}
