// Package api embeds the HTTP API description served at /openapi.yaml.
package api

import _ "embed"

// OpenAPISpec is the raw OpenAPI 3.1 YAML document for the Kumo HTTP API.
//
//go:embed openapi.yaml
var OpenAPISpec []byte
