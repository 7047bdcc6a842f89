// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package v1

//go:generate go run github.com/oapi-codegen/oapi-codegen/v2/cmd/oapi-codegen --config=oapi-codegen.yaml openapi.yaml

import (
	_ "embed"
	"sync"

	"github.com/oasdiff/yaml"
)

// BaseURL is the mount point of the versioned API.
const BaseURL = "/api/v1"

//go:embed openapi.yaml
var specYAML []byte

var (
	specJSONOnce sync.Once
	specJSON     []byte
	specJSONErr  error
)

// SpecYAML returns the OpenAPI document the server is generated from.
func SpecYAML() []byte {
	return specYAML
}

// SpecJSON returns the OpenAPI document converted to JSON.
func SpecJSON() ([]byte, error) {
	specJSONOnce.Do(func() {
		specJSON, specJSONErr = yaml.YAMLToJSON(specYAML)
	})
	return specJSON, specJSONErr
}
