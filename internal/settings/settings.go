// Package settings loads the deployment parameters shared by every stack in
// this app. Values come from the process environment, optionally seeded from
// a dotenv file, and the record is read-only after Load returns.
package settings

import (
	"fmt"
	"os"
	"os/user"
	"strings"

	"github.com/aws/aws-cdk-go/awscdk/v2"
	"github.com/aws/jsii-runtime-go"
	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

// Role is a Grafana organization role.
type Role string

const (
	RoleViewer       Role = "Viewer"
	RoleEditor       Role = "Editor"
	RoleAdmin        Role = "Admin"
	RoleGrafanaAdmin Role = "GrafanaAdmin"
)

// UnmarshalText validates the role name during settings parsing.
func (r *Role) UnmarshalText(text []byte) error {
	switch v := Role(text); v {
	case RoleViewer, RoleEditor, RoleAdmin, RoleGrafanaAdmin:
		*r = v
		return nil
	default:
		return fmt.Errorf("unknown grafana role %q", string(text))
	}
}

// OrgList is an ordered list of GitHub organization names. A scalar input is
// normalized by splitting on commas; see SplitOrgs.
type OrgList []string

// UnmarshalText splits a comma-separated scalar into the list form.
func (o *OrgList) UnmarshalText(text []byte) error {
	*o = SplitOrgs(string(text))
	return nil
}

// SplitOrgs normalizes a comma-separated organization string into an ordered
// list of trimmed names. An empty string yields an empty list. A value that
// is already a list (OrgList) is never re-normalized.
func SplitOrgs(s string) []string {
	s = strings.TrimSpace(s)
	if s == "" {
		return []string{}
	}
	parts := strings.Split(s, ",")
	orgs := make([]string, 0, len(parts))
	for _, p := range parts {
		orgs = append(orgs, strings.TrimSpace(p))
	}
	return orgs
}

// Settings holds every deployment parameter. Fields without a default and
// marked required abort Load when absent; no partial record is ever returned.
type Settings struct {
	// Stage uniquely identifies this deployment, e.g. "dev" or "prod".
	// Defaults to the current OS username.
	Stage string `env:"stage"`

	VpcID                  string `env:"vpc_id,required,notEmpty"`
	Project                string `env:"project" envDefault:"GHGC"`
	GrafanaDomainName      string `env:"grafana_domain_name"`
	GrafanaCertificateArn  string `env:"grafana_certificate_arn"`
	PermissionsBoundaryArn string `env:"permissions_boundary_arn,required,notEmpty"`

	// GitHub auth provider configuration. OAuth is enabled only when the
	// secret name is set; the secret holds the application's client_id and
	// client_secret.
	GitHubOAuthSecretName string  `env:"github_oauth_secret_name"`
	GitHubAllowedOrgs     OrgList `env:"github_allowed_orgs" envDefault:"nasa-impact"`
	GitHubAdminGroup      string  `env:"github_admin_group"`
	GitHubEditorGroup     string  `env:"github_editor_group"`
	DefaultUserRole       Role    `env:"default_user_role" envDefault:"Viewer"`

	// GrafanaALBSubnetMask filters the load balancer subnets down to one per
	// availability zone.
	GrafanaALBSubnetMask int `env:"grafana_alb_subnet_mask" envDefault:"24"`

	// Private namespace for service discovery. When NamespaceArn and
	// NamespaceName are both set the existing namespace is reused, otherwise
	// a new one is created under NamespaceName.
	NamespaceArn  string `env:"namespace_arn"`
	NamespaceID   string `env:"namespace_id"`
	NamespaceName string `env:"namespace_name" envDefault:"GHGC.internal"`

	HoneycombAPIKey string `env:"honeycomb_api_key,required,notEmpty"`

	// TraceExporters selects where the collector exports trace data.
	TraceExporters string `env:"trace_exporters" envDefault:"awsxray"`

	// Provided automatically when the CDK CLI runs with AWS_PROFILE=...
	Account string `env:"CDK_DEFAULT_ACCOUNT,required,notEmpty"`
	Region  string `env:"CDK_DEFAULT_REGION,required,notEmpty"`
}

// aliases maps canonical variable names to the short forms also accepted in
// the input. The canonical name wins when both are present.
var aliases = map[string]string{
	"github_oauth_secret_name": "gh_oauth_secret_name",
	"github_allowed_orgs":      "gh_allowed_orgs",
	"github_admin_group":       "gh_admin_group",
	"github_editor_group":      "gh_editor_group",
}

// Load reads settings from the process environment, seeded from the dotenv
// file named by DOTENV (default ".env", tolerated when missing). Any missing
// required variable is an error naming that variable.
func Load() (*Settings, error) {
	return load(environMap())
}

func load(vars map[string]string) (*Settings, error) {
	if err := seedDotenv(vars); err != nil {
		return nil, err
	}
	for canonical, alias := range aliases {
		if _, ok := vars[canonical]; ok {
			continue
		}
		if v, ok := vars[alias]; ok {
			vars[canonical] = v
		}
	}

	var s Settings
	if err := env.ParseWithOptions(&s, env.Options{Environment: vars}); err != nil {
		return nil, fmt.Errorf("load settings: %w", err)
	}
	if s.Stage == "" {
		s.Stage = currentUsername()
	}
	return &s, nil
}

// seedDotenv fills vars from the dotenv file without overriding values
// already present in the process environment.
func seedDotenv(vars map[string]string) error {
	path, explicit := vars["DOTENV"]
	if !explicit {
		path = ".env"
	}
	fileVars, err := godotenv.Read(path)
	if err != nil {
		if !explicit && os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("read dotenv file %s: %w", path, err)
	}
	for k, v := range fileVars {
		if _, ok := vars[k]; !ok {
			vars[k] = v
		}
	}
	return nil
}

func environMap() map[string]string {
	vars := make(map[string]string)
	for _, kv := range os.Environ() {
		if k, v, ok := strings.Cut(kv, "="); ok {
			vars[k] = v
		}
	}
	return vars
}

func currentUsername() string {
	if u, err := user.Current(); err == nil && u.Username != "" {
		return u.Username
	}
	return os.Getenv("USER")
}

// StackName combines project, service and stage into the conventional
// "{project}-{service}-{stage}" identifier.
func (s *Settings) StackName(service string) string {
	return fmt.Sprintf("%s-%s-%s", s.Project, service, s.Stage)
}

// GrafanaStackName is the dashboard stack's name.
func (s *Settings) GrafanaStackName() string {
	return s.StackName("grafana")
}

// OtelStackName is the collector stack's name.
func (s *Settings) OtelStackName() string {
	return s.StackName("otel")
}

// Env is the CDK deployment target for both stacks.
func (s *Settings) Env() *awscdk.Environment {
	return &awscdk.Environment{
		Account: jsii.String(s.Account),
		Region:  jsii.String(s.Region),
	}
}
