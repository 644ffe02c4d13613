package domain

import "os"

// SourceType is the broad class of platform a data source belongs to
type SourceType string

const (
	SourceTypeSCM  SourceType = "scm"
	SourceTypeITSM SourceType = "itsm"
)

// Provider names the concrete vendor behind a data source
type Provider string

const (
	ProviderGitHub    Provider = "github"
	ProviderGitLab    Provider = "gitlab"
	ProviderJenkins   Provider = "jenkins"
	ProviderJira      Provider = "jira"
	ProviderDynatrace Provider = "dynatrace"
)

// Lead time matching strategies selectable per source
const (
	MatcherResolvedAt       = "resolved_at"
	MatcherDeploymentPrefix = "deployment_prefix"
)

// Credentials names the environment variables holding secrets for a source.
// Secret values are never stored in the descriptor itself.
type Credentials struct {
	TokenEnv    string `yaml:"token_env" json:"-"`
	Username    string `yaml:"username" json:"-"`
	PasswordEnv string `yaml:"password_env" json:"-"`
}

// Token returns the token resolved from the environment
func (c Credentials) Token() string {
	if c.TokenEnv == "" {
		return ""
	}
	return os.Getenv(c.TokenEnv)
}

// Password returns the password resolved from the environment
func (c Credentials) Password() string {
	if c.PasswordEnv == "" {
		return ""
	}
	return os.Getenv(c.PasswordEnv)
}

// Scope narrows a source to an owner/repository or project
type Scope struct {
	Owner   string `yaml:"owner" json:"owner,omitempty"`
	Repo    string `yaml:"repo" json:"repo,omitempty"`
	Project string `yaml:"project" json:"project,omitempty"`
	BaseURL string `yaml:"base_url" json:"base_url,omitempty"`
}

// DataSourceDescriptor describes one configured data source
type DataSourceDescriptor struct {
	ID              string      `yaml:"id" json:"id"`
	Name            string      `yaml:"name" json:"name"`
	Type            SourceType  `yaml:"type" json:"type"`
	Provider        Provider    `yaml:"provider" json:"provider"`
	Credentials     Credentials `yaml:"credentials" json:"-"`
	Scope           Scope       `yaml:"scope" json:"scope"`
	Enabled         bool        `yaml:"enabled" json:"enabled"`
	LeadTimeMatcher string      `yaml:"lead_time_matcher" json:"lead_time_matcher,omitempty"`
}
