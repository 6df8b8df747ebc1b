// Package api embeds the control API's OpenAPI document.
package api

import _ "embed"

// OpenAPISpec is the OpenAPI 3 description of the control API.
//
//go:embed openapi.yaml
var OpenAPISpec []byte
