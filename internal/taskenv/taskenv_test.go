package taskenv

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestMergeLaterBlocksWin(t *testing.T) {
	base := Env{
		"A": Literal("base-a"),
		"B": Literal("base-b"),
	}
	override := Env{
		"B": Literal("override-b"),
		"C": SecretRef{SecretName: "store", JSONField: "c"},
	}

	merged := Merge(base, override)
	require.Len(t, merged, 3)
	require.Equal(t, Literal("base-a"), merged["A"])
	require.Equal(t, Literal("override-b"), merged["B"])
	require.Equal(t, SecretRef{SecretName: "store", JSONField: "c"}, merged["C"])

	// inputs untouched
	require.Equal(t, Literal("base-b"), base["B"])
}

func TestMergeEmpty(t *testing.T) {
	require.Empty(t, Merge())
	require.Empty(t, Merge(Env{}, Env{}))
}

func TestSortedKeysDeterministic(t *testing.T) {
	env := Env{
		"GF_SERVER_ROOT_URL":                   Literal("https://example.com"),
		"GF_PATHS_DATA":                        Literal("/gf-data"),
		"GF_AUTH_GITHUB_ENABLED":               Literal("true"),
		"GF_AUTH_GITHUB_AUTO_LOGIN":            Literal("true"),
		"GF_AUTH_GITHUB_CLIENT_ID":             SecretRef{SecretName: "s", JSONField: "client_id"},
		"GF_AUTH_GITHUB_CLIENT_SECRET":         SecretRef{SecretName: "s", JSONField: "client_secret"},
		"GF_AUTH_GITHUB_ALLOWED_ORGANIZATIONS": Literal("org-a"),
		"GF_AUTH_GITHUB_ROLE_ATTRIBUTE_PATH":   Literal("'Viewer'"),
		"GF_AUTH_GITHUB_AUTH_URL":              Literal("https://github.com/login/oauth/authorize"),
		"GF_AUTH_GITHUB_TOKEN_URL":             Literal("https://github.com/login/oauth/access_token"),
	}

	want := []string{
		"GF_AUTH_GITHUB_ALLOWED_ORGANIZATIONS",
		"GF_AUTH_GITHUB_AUTH_URL",
		"GF_AUTH_GITHUB_AUTO_LOGIN",
		"GF_AUTH_GITHUB_CLIENT_ID",
		"GF_AUTH_GITHUB_CLIENT_SECRET",
		"GF_AUTH_GITHUB_ENABLED",
		"GF_AUTH_GITHUB_ROLE_ATTRIBUTE_PATH",
		"GF_AUTH_GITHUB_TOKEN_URL",
		"GF_PATHS_DATA",
		"GF_SERVER_ROOT_URL",
	}
	require.Equal(t, want, env.SortedKeys())

	// stable across repeated calls, unlike a map range
	for range 50 {
		require.Equal(t, want, env.SortedKeys())
	}
}

func TestValueDispatch(t *testing.T) {
	values := Env{
		"literal": Literal("x"),
		"secret":  SecretRef{SecretName: "s", JSONField: "f"},
	}

	var literals, secrets int
	for _, v := range values {
		switch v.(type) {
		case Literal:
			literals++
		case SecretRef:
			secrets++
		default:
			t.Fatalf("unexpected value type %T", v)
		}
	}
	require.Equal(t, 1, literals)
	require.Equal(t, 1, secrets)
}
