package main

import (
	"errors"
	"fmt"
	"os"
	"sort"

	"gopkg.in/yaml.v3"
)

// profile describes how to reach one server: either a command speaking stdio or an SSE URL.
type profile struct {
	Command string            `yaml:"command"`
	Args    []string          `yaml:"args"`
	Env     map[string]string `yaml:"env"`
	URL     string            `yaml:"url"`
}

type profiles struct {
	Servers map[string]profile `yaml:"servers"`
}

func loadProfiles(path string) (profiles, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return profiles{}, fmt.Errorf("failed to read %s: %w", path, err)
	}

	var p profiles
	if err := yaml.Unmarshal(data, &p); err != nil {
		return profiles{}, fmt.Errorf("failed to parse %s: %w", path, err)
	}
	for name, server := range p.Servers {
		if err := server.validate(); err != nil {
			return profiles{}, fmt.Errorf("server %q: %w", name, err)
		}
	}
	return p, nil
}

func (p profile) validate() error {
	switch {
	case p.Command == "" && p.URL == "":
		return errors.New("one of command or url is required")
	case p.Command != "" && p.URL != "":
		return errors.New("command and url are mutually exclusive")
	}
	return nil
}

// pick returns the named profile, or the only one when name is empty.
func (p profiles) pick(name string) (string, profile, error) {
	if name != "" {
		server, ok := p.Servers[name]
		if !ok {
			return "", profile{}, fmt.Errorf("no server named %q", name)
		}
		return name, server, nil
	}
	if len(p.Servers) == 1 {
		for name, server := range p.Servers {
			return name, server, nil
		}
	}

	names := make([]string, 0, len(p.Servers))
	for name := range p.Servers {
		names = append(names, name)
	}
	sort.Strings(names)
	return "", profile{}, fmt.Errorf("choose a server with -server, one of %v", names)
}
