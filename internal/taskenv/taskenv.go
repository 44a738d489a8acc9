// Package taskenv models container environment variables whose values are
// either plain strings or references into an external secret store.
package taskenv

import (
	"maps"
	"slices"
)

// Value is a single container environment value. A Literal is baked into the
// task definition; a SecretRef stays an indirect pointer that the container
// runtime resolves at task start.
type Value interface {
	envValue()
}

// Literal is a plain string environment value.
type Literal string

func (Literal) envValue() {}

// SecretRef names a JSON field inside a Secrets Manager entry. The secret
// value never appears in the synthesized template.
type SecretRef struct {
	// SecretName is the Secrets Manager entry name.
	SecretName string
	// JSONField is the key inside the secret's JSON body.
	JSONField string
}

func (SecretRef) envValue() {}

// Env maps environment variable names to their values.
type Env map[string]Value

// SortedKeys returns the variable names in sorted order. Consumers attach
// variables in this order so that two assemblies of the same Env produce
// identically-ordered output.
func (e Env) SortedKeys() []string {
	return slices.Sorted(maps.Keys(e))
}

// Merge combines blocks left to right; later blocks win on key collisions.
// The inputs are not modified.
func Merge(blocks ...Env) Env {
	merged := make(Env)
	for _, block := range blocks {
		for k, v := range block {
			merged[k] = v
		}
	}
	return merged
}
