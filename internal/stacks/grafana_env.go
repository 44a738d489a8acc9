package stacks

import (
	"fmt"
	"strings"

	"github.com/US-GHG-Center/ghgc-monitoring/internal/settings"
	"github.com/US-GHG-Center/ghgc-monitoring/internal/taskenv"
)

// Envify converts a grafana.ini config path to the environment variable
// Grafana reads as an override, e.g. "paths.data" -> "GF_PATHS_DATA".
// https://grafana.com/docs/grafana/latest/setup-grafana/configure-grafana/#override-configuration-with-environment-variables
func Envify(key string) string {
	return "GF_" + strings.ToUpper(strings.ReplaceAll(key, ".", "_"))
}

// GitHubOAuth carries the settings for Grafana's GitHub auth provider.
type GitHubOAuth struct {
	// SecretName is the Secrets Manager entry holding client_id and
	// client_secret of the GitHub OAuth application.
	SecretName  string
	AllowedOrgs []string
	AdminGroup  string
	EditorGroup string
	DefaultRole settings.Role
}

// GrafanaEnv assembles the full environment block for the dashboard
// container. The OAuth sub-block is included only when oauth is non-nil.
func GrafanaEnv(dataPath, rootURL string, oauth *GitHubOAuth) taskenv.Env {
	base := taskenv.Env{
		Envify("paths.data"):      taskenv.Literal(dataPath),
		Envify("server.root_url"): taskenv.Literal(rootURL),
	}
	if oauth == nil {
		return base
	}
	return taskenv.Merge(base, githubOAuthEnv(*oauth))
}

// githubOAuthEnv generates the settings that configure Grafana to
// authenticate against a GitHub OAuth application. The client credentials
// stay secret references; only their location is recorded here.
func githubOAuthEnv(o GitHubOAuth) taskenv.Env {
	gh := taskenv.Env{
		// Customized
		"allowed_organizations": taskenv.Literal(strings.Join(o.AllowedOrgs, ",")),
		"role_attribute_path":   taskenv.Literal(RoleAttributePath(o.AdminGroup, o.EditorGroup, o.DefaultRole)),
		"client_id":             taskenv.SecretRef{SecretName: o.SecretName, JSONField: "client_id"},
		"client_secret":         taskenv.SecretRef{SecretName: o.SecretName, JSONField: "client_secret"},
		// Standard
		"enabled":    taskenv.Literal("true"),
		"auto_login": taskenv.Literal("true"),
		"auth_url":   taskenv.Literal("https://github.com/login/oauth/authorize"),
		"token_url":  taskenv.Literal("https://github.com/login/oauth/access_token"),
		"api_url":    taskenv.Literal("https://api.github.com/user"),
	}
	env := make(taskenv.Env, len(gh))
	for key, value := range gh {
		env[Envify("auth.github."+key)] = value
	}
	return env
}

// RoleAttributePath builds the expression Grafana evaluates to map GitHub
// group membership onto a role. Clause order matters: admin group first,
// editor group second, default role last. A clause is present only when its
// group is configured. Values are wrapped in single quotes; escaping of
// embedded quotes is left to Grafana's expression language.
func RoleAttributePath(adminGroup, editorGroup string, defaultRole settings.Role) string {
	var clauses []string
	if adminGroup != "" {
		clauses = append(clauses, groupClause(adminGroup, settings.RoleGrafanaAdmin))
	}
	if editorGroup != "" {
		clauses = append(clauses, groupClause(editorGroup, settings.RoleEditor))
	}
	clauses = append(clauses, fmt.Sprintf("'%s'", defaultRole))
	return strings.Join(clauses, " || ")
}

func groupClause(group string, role settings.Role) string {
	return fmt.Sprintf("contains(groups[*], '%s') && '%s'", group, role)
}
