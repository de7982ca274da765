package tool

import (
	"fmt"
	"sort"
	"strings"

	"github.com/xeipuuv/gojsonschema"
)

// generateSchema builds the JSON schema that caller arguments are checked
// against. Every parameter is a string on the wire; kinds narrow it further.
func generateSchema(d Descriptor) (*gojsonschema.Schema, error) {
	schemaMap := map[string]interface{}{
		"type":                 "object",
		"additionalProperties": false,
		"properties":           make(map[string]interface{}),
	}

	properties := schemaMap["properties"].(map[string]interface{})
	required := []string{}

	for _, p := range d.Parameters {
		paramSchema := map[string]interface{}{
			"type":        "string",
			"description": p.Description,
		}

		switch p.Kind {
		case KindNumeric:
			paramSchema["pattern"] = numericPattern.String()
		case KindEnum:
			values := make([]interface{}, len(p.Enum))
			for i, v := range p.Enum {
				values[i] = v
			}
			paramSchema["enum"] = values
		}

		if p.Default != nil {
			paramSchema["default"] = *p.Default
		}

		properties[p.Name] = paramSchema

		if p.Required {
			required = append(required, p.Name)
		}
	}

	if len(required) > 0 {
		schemaMap["required"] = required
	}

	schema, err := gojsonschema.NewSchema(gojsonschema.NewGoLoader(schemaMap))
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrInvalidDescriptor, d.Name, err)
	}

	return schema, nil
}

// validateArguments checks args against the descriptor schema and reports the
// first violation in declared parameter order. Violations on names the
// descriptor does not declare come last, sorted by name.
func validateArguments(d Descriptor, schema *gojsonschema.Schema, args map[string]interface{}) error {
	result, err := schema.Validate(gojsonschema.NewGoLoader(args))
	if err != nil {
		return fmt.Errorf("%w: %s: %v", ErrInvalidArgument, d.Name, err)
	}
	if result.Valid() {
		return nil
	}

	byParam := make(map[string]*ArgumentError)
	for _, re := range result.Errors() {
		name := re.Field()
		if re.Type() == "required" || re.Type() == "additional_property_not_allowed" {
			if prop, ok := re.Details()["property"].(string); ok {
				name = prop
			}
		}
		if _, exists := byParam[name]; exists {
			continue
		}
		byParam[name] = argumentErrorFor(d, name, re)
	}

	for _, p := range d.Parameters {
		if argErr, ok := byParam[p.Name]; ok {
			return argErr
		}
	}

	names := make([]string, 0, len(byParam))
	for name := range byParam {
		names = append(names, name)
	}
	sort.Strings(names)
	return byParam[names[0]]
}

func argumentErrorFor(d Descriptor, name string, re gojsonschema.ResultError) *ArgumentError {
	switch re.Type() {
	case "required":
		return missingArgument(d.Name, name)
	case "additional_property_not_allowed":
		return invalidArgument(d.Name, name, "is not a parameter of this tool")
	case "invalid_type":
		return invalidArgument(d.Name, name, "must be a string")
	case "pattern":
		return invalidArgument(d.Name, name, "must be a non-negative decimal number")
	case "enum":
		if p, ok := d.Parameter(name); ok {
			return invalidArgument(d.Name, name, "must be one of "+strings.Join(p.Enum, ", "))
		}
	}
	return invalidArgument(d.Name, name, re.Description())
}
