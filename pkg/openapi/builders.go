package openapi

const (
	MediaJSON        = "application/json"
	MediaOctetStream = "application/octet-stream"
	MediaEventStream = "text/event-stream"
	MediaMultipart   = "multipart/form-data"
)

// SchemaRef returns a Schema with a $ref to the named component schema.
func SchemaRef(name string) *Schema {
	return &Schema{Ref: "#/components/schemas/" + name}
}

// ArrayOf returns an array schema whose items reference the named component schema.
func ArrayOf(name string) *Schema {
	return &Schema{Type: "array", Items: SchemaRef(name)}
}

// Binary is the schema for raw file bytes.
func Binary() *Schema {
	return &Schema{Type: "string", Format: "binary"}
}

func ResponseRef(name string) *Response {
	return &Response{Ref: "#/components/responses/" + name}
}

// ResponseMedia creates a response carrying a single media type.
func ResponseMedia(description, mediaType string, schema *Schema) *Response {
	return &Response{
		Description: description,
		Content:     map[string]*MediaType{mediaType: {Schema: schema}},
	}
}

// ResponseJSON creates a JSON response referencing the named schema.
func ResponseJSON(description, schemaName string) *Response {
	return ResponseMedia(description, MediaJSON, SchemaRef(schemaName))
}

// RequestBodyJSON creates a JSON request body referencing the named schema.
func RequestBodyJSON(schemaName string, required bool) *RequestBody {
	return &RequestBody{
		Required: required,
		Content:  map[string]*MediaType{MediaJSON: {Schema: SchemaRef(schemaName)}},
	}
}

// RequestBodyFiles creates a required multipart body with a repeated binary field.
func RequestBodyFiles(field string) *RequestBody {
	return &RequestBody{
		Required: true,
		Content: map[string]*MediaType{
			MediaMultipart: {Schema: &Schema{
				Type:       "object",
				Required:   []string{field},
				Properties: map[string]*Schema{field: {Type: "array", Items: Binary()}},
			}},
		},
	}
}

// PathParam creates a required UUID path parameter.
func PathParam(name, description string) *Parameter {
	return &Parameter{
		Name:        name,
		In:          "path",
		Required:    true,
		Description: description,
		Schema:      &Schema{Type: "string", Format: "uuid"},
	}
}

// EnumPathParam creates a required string path parameter restricted to values.
func EnumPathParam(name, description string, values ...string) *Parameter {
	enum := make([]any, len(values))
	for i, v := range values {
		enum[i] = v
	}
	return &Parameter{
		Name:        name,
		In:          "path",
		Required:    true,
		Description: description,
		Schema:      &Schema{Type: "string", Enum: enum},
	}
}

func QueryParam(name, typ, description string, required bool) *Parameter {
	return &Parameter{
		Name:        name,
		In:          "query",
		Required:    required,
		Description: description,
		Schema:      &Schema{Type: typ},
	}
}
