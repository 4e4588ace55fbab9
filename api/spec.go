// Package api embeds the OpenAPI description of the HTTP surface.
package api

import (
	_ "embed"
	"fmt"

	"github.com/getkin/kin-openapi/openapi3"
)

//go:embed openapi.yaml
var specYAML []byte

func init() {
	openapi3.DefineStringFormat("uuid", openapi3.FormatOfStringForUUIDOfRFC4122)
}

// GetSpec parses the embedded OpenAPI document. Each call returns a fresh copy.
func GetSpec() (*openapi3.T, error) {
	spec, err := openapi3.NewLoader().LoadFromData(specYAML)
	if err != nil {
		return nil, fmt.Errorf("loading openapi spec: %w", err)
	}
	return spec, nil
}
