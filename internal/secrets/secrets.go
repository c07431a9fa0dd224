// Package secrets provides ordered key/value lookups for sensitive settings.
//
// Two backends exist: a YAML secrets file (the managed store used in hosted
// deployments) and the process environment (local development). Callers that
// need the "first store that knows the key" behaviour wrap them in a Chain.
package secrets

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// Store looks up a secret by key.
// ok is false when the key is absent or its value is blank.
type Store interface {
	Lookup(key string) (value string, ok bool)
	Name() string
}

// FileStore is a flat YAML mapping of secret names to values, e.g.
//
//	PASSWORD_HASH: "$2a$10$..."
//	CV_DATA: |
//	  ...
type FileStore struct {
	path   string
	values map[string]string
}

// LoadFile reads a secrets file. A missing file is not an error: the returned
// store is simply empty, since hosted and local setups differ in which
// secrets exist.
func LoadFile(path string) (*FileStore, error) {
	fs := &FileStore{path: path, values: map[string]string{}}
	if path == "" {
		return fs, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return fs, nil
		}
		return nil, fmt.Errorf("read secrets file %s: %w", path, err)
	}

	raw := map[string]any{}
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("invalid secrets file %s: %w", path, err)
	}
	for k, v := range raw {
		if v == nil {
			continue
		}
		fs.values[k] = fmt.Sprint(v)
	}
	return fs, nil
}

// NewMapStore builds a FileStore from an in-memory map. Used by tests and by
// callers that assemble secrets from another source.
func NewMapStore(values map[string]string) *FileStore {
	cp := make(map[string]string, len(values))
	for k, v := range values {
		cp[k] = v
	}
	return &FileStore{path: "memory", values: cp}
}

func (s *FileStore) Name() string { return "secrets file" }

func (s *FileStore) Lookup(key string) (string, bool) {
	v, ok := s.values[key]
	if !ok || strings.TrimSpace(v) == "" {
		return "", false
	}
	return v, true
}

// EnvStore reads secrets from the process environment.
type EnvStore struct {
	getenv func(string) string
}

// NewEnvStore returns an EnvStore backed by os.Getenv.
func NewEnvStore() *EnvStore {
	return &EnvStore{getenv: os.Getenv}
}

func (s *EnvStore) Name() string { return "environment" }

func (s *EnvStore) Lookup(key string) (string, bool) {
	v := s.getenv(key)
	if strings.TrimSpace(v) == "" {
		return "", false
	}
	return v, true
}

// Chain consults each store in order and returns the first hit.
type Chain []Store

func (c Chain) Name() string {
	names := make([]string, 0, len(c))
	for _, s := range c {
		names = append(names, s.Name())
	}
	return strings.Join(names, " > ")
}

func (c Chain) Lookup(key string) (string, bool) {
	for _, s := range c {
		if v, ok := s.Lookup(key); ok {
			return v, true
		}
	}
	return "", false
}
