// Package schema embeds the JSON schema config files are validated against.
package schema

import _ "embed"

// URL identifies the schema resource inside the compiler.
const URL = "ttsd.v1.schema.json"

// V1 is the raw ttsd v1 configuration schema.
//
//go:embed ttsd.v1.schema.json
var V1 string
