package mcpserver

import (
	"encoding/json"
)

const (
	manifestSchema = "https://static.modelcontextprotocol.io/schemas/2025-10-17/server.schema.json"
	registryName   = "io.github.panbanda/luafix"
	imageRepo      = "ghcr.io/panbanda/luafix"
)

// Manifest is the registry description of the server (server.json).
type Manifest struct {
	Schema      string     `json:"$schema"`
	Name        string     `json:"name"`
	Description string     `json:"description"`
	Version     string     `json:"version"`
	Repository  Repository `json:"repository"`
	Packages    []Package  `json:"packages"`
}

// Repository locates the source code.
type Repository struct {
	URL    string `json:"url"`
	Source string `json:"source"`
}

// Package is one way to launch the server.
type Package struct {
	RegistryType         string     `json:"registryType"`
	Identifier           string     `json:"identifier"`
	PackageArguments     []Argument `json:"packageArguments,omitempty"`
	EnvironmentVariables []EnvVar   `json:"environmentVariables,omitempty"`
	Transport            Transport  `json:"transport"`
}

// Argument is a positional argument passed to the binary.
type Argument struct {
	Type  string `json:"type"`
	Value string `json:"value,omitempty"`
}

// EnvVar documents an environment variable the server reads.
type EnvVar struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	IsRequired  bool   `json:"isRequired"`
}

// Transport names the wire transport.
type Transport struct {
	Type string `json:"type"`
}

// GenerateManifest returns the indented server.json for version.
func GenerateManifest(version string) ([]byte, error) {
	if version == "" {
		version = "0.0.0"
	}
	m := Manifest{
		Schema:      manifestSchema,
		Name:        registryName,
		Description: "Performance analysis and safe automatic fixes for FiveM Lua resources",
		Version:     version,
		Repository:  Repository{URL: "https://github.com/panbanda/luafix", Source: "github"},
		Packages: []Package{{
			RegistryType:     "oci",
			Identifier:       imageRepo + ":" + version,
			PackageArguments: []Argument{{Type: "positional", Value: "mcp"}},
			EnvironmentVariables: []EnvVar{
				{Name: "LUAFIX_CONFIG", Description: "Path to a luafix config file"},
				{Name: "LUAFIX_ANALYSIS__CACHE_THRESHOLD", Description: "Calls before a global is reported as uncached"},
			},
			Transport: Transport{Type: "stdio"},
		}},
	}
	return json.MarshalIndent(m, "", "  ")
}
