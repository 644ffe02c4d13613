package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/BarkinBalci/dora-metrics-service/internal/domain"
)

// SourcesFile is the YAML document listing the configured data sources
type SourcesFile struct {
	Sources []domain.DataSourceDescriptor
}

type sourcesDocument struct {
	Sources []sourceEntry `yaml:"sources"`
}

// sourceEntry defaults enabled to true when the key is absent
type sourceEntry struct {
	domain.DataSourceDescriptor
}

func (e *sourceEntry) UnmarshalYAML(node *yaml.Node) error {
	type plain domain.DataSourceDescriptor
	p := plain{Enabled: true}
	if err := node.Decode(&p); err != nil {
		return err
	}
	e.DataSourceDescriptor = domain.DataSourceDescriptor(p)
	return nil
}

// LoadSources reads and validates the data source file at path
func LoadSources(path string) (*SourcesFile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("sources: read file: %w", err)
	}
	return ParseSources(data)
}

// ParseSources parses a data source document
func ParseSources(data []byte) (*SourcesFile, error) {
	var doc sourcesDocument
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("sources: parse yaml: %w", err)
	}

	file := &SourcesFile{Sources: make([]domain.DataSourceDescriptor, 0, len(doc.Sources))}
	for _, entry := range doc.Sources {
		src := entry.DataSourceDescriptor
		if src.Name == "" {
			src.Name = src.ID
		}
		if src.Type == "" {
			src.Type = defaultType(src.Provider)
		}
		file.Sources = append(file.Sources, src)
	}

	if err := validateSources(file.Sources); err != nil {
		return nil, fmt.Errorf("sources: %w", err)
	}
	return file, nil
}

func defaultType(p domain.Provider) domain.SourceType {
	switch p {
	case domain.ProviderJira, domain.ProviderDynatrace:
		return domain.SourceTypeITSM
	}
	return domain.SourceTypeSCM
}

func validateSources(sources []domain.DataSourceDescriptor) error {
	seen := make(map[string]bool, len(sources))
	for i, src := range sources {
		if src.ID == "" {
			return fmt.Errorf("sources[%d]: id is required", i)
		}
		if seen[src.ID] {
			return fmt.Errorf("sources[%d]: duplicate id %q", i, src.ID)
		}
		seen[src.ID] = true

		switch src.Type {
		case domain.SourceTypeSCM, domain.SourceTypeITSM:
		default:
			return fmt.Errorf("sources[%d] %q: unknown type %q", i, src.ID, src.Type)
		}

		switch src.Provider {
		case domain.ProviderGitHub, domain.ProviderGitLab:
			if src.Scope.Owner == "" && src.Scope.Project == "" {
				return fmt.Errorf("sources[%d] %q: scope.owner or scope.project is required", i, src.ID)
			}
		case domain.ProviderJira:
			if src.Scope.BaseURL == "" || src.Scope.Project == "" {
				return fmt.Errorf("sources[%d] %q: scope.base_url and scope.project are required", i, src.ID)
			}
		case domain.ProviderJenkins, domain.ProviderDynatrace:
		default:
			return fmt.Errorf("sources[%d] %q: unknown provider %q", i, src.ID, src.Provider)
		}

		switch src.LeadTimeMatcher {
		case "", domain.MatcherResolvedAt, domain.MatcherDeploymentPrefix:
		default:
			return fmt.Errorf("sources[%d] %q: unknown lead_time_matcher %q", i, src.ID, src.LeadTimeMatcher)
		}
	}
	return nil
}
