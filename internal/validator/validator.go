// Package validator provides JSON schema validation for trip submissions.
package validator

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// Validator validates incoming trip requests against their schemas.
type Validator struct {
	tripSchema  *jsonschema.Schema
	routeSchema *jsonschema.Schema
}

// ValidationError represents a validation failure.
type ValidationError struct {
	Path    string `json:"path"`
	Message string `json:"message"`
}

// ValidationResult holds the result of a validation.
type ValidationResult struct {
	Valid  bool              `json:"valid"`
	Errors []ValidationError `json:"errors,omitempty"`
}

// New creates a new validator with embedded schemas.
func New() (*Validator, error) {
	compiler := jsonschema.NewCompiler()
	compiler.Draft = jsonschema.Draft2020

	if err := compiler.AddResource("trip.json", strings.NewReader(tripSchemaJSON)); err != nil {
		return nil, fmt.Errorf("add trip schema: %w", err)
	}
	if err := compiler.AddResource("route.json", strings.NewReader(routeSchemaJSON)); err != nil {
		return nil, fmt.Errorf("add route schema: %w", err)
	}

	tripSchema, err := compiler.Compile("trip.json")
	if err != nil {
		return nil, fmt.Errorf("compile trip schema: %w", err)
	}
	routeSchema, err := compiler.Compile("route.json")
	if err != nil {
		return nil, fmt.Errorf("compile route schema: %w", err)
	}

	return &Validator{
		tripSchema:  tripSchema,
		routeSchema: routeSchema,
	}, nil
}

// ValidateTrip validates a decoded trip creation request.
func (v *Validator) ValidateTrip(trip map[string]interface{}) *ValidationResult {
	return v.validate(v.tripSchema, trip)
}

// ValidateRoute validates a decoded route.
func (v *Validator) ValidateRoute(route map[string]interface{}) *ValidationResult {
	return v.validate(v.routeSchema, route)
}

// ValidateTripJSON validates a JSON-encoded trip creation request.
func (v *Validator) ValidateTripJSON(data []byte) *ValidationResult {
	var trip map[string]interface{}
	if err := json.Unmarshal(data, &trip); err != nil {
		return &ValidationResult{
			Valid: false,
			Errors: []ValidationError{
				{Path: "$", Message: fmt.Sprintf("invalid JSON: %v", err)},
			},
		}
	}
	return v.ValidateTrip(trip)
}

// validate runs schema validation and converts errors.
func (v *Validator) validate(schema *jsonschema.Schema, data interface{}) *ValidationResult {
	err := schema.Validate(data)
	if err == nil {
		return &ValidationResult{Valid: true}
	}

	result := &ValidationResult{Valid: false}
	if verr, ok := err.(*jsonschema.ValidationError); ok {
		result.Errors = extractErrors(verr)
	} else {
		result.Errors = []ValidationError{
			{Path: "$", Message: err.Error()},
		}
	}
	return result
}

// extractErrors recursively extracts validation errors.
func extractErrors(verr *jsonschema.ValidationError) []ValidationError {
	var errors []ValidationError

	if verr.Message != "" {
		errors = append(errors, ValidationError{
			Path:    verr.InstanceLocation,
			Message: verr.Message,
		})
	}

	for _, cause := range verr.Causes {
		errors = append(errors, extractErrors(cause)...)
	}

	return errors
}

// Embedded JSON schemas

const tripSchemaJSON = `{
  "$schema": "https://json-schema.org/draft/2020-12/schema",
  "$id": "trip.json",
  "title": "Trip Submission",
  "description": "Schema for trip creation requests",
  "type": "object",
  "required": ["name", "route"],
  "properties": {
    "name": {
      "type": "string",
      "minLength": 1,
      "description": "Human-readable trip name"
    },
    "route": {"$ref": "route.json"},
    "auto_start": {
      "type": "boolean",
      "description": "Start processing immediately"
    }
  }
}`

const routeSchemaJSON = `{
  "$schema": "https://json-schema.org/draft/2020-12/schema",
  "$id": "route.json",
  "title": "Route",
  "description": "Ordered sequence of route points",
  "type": "object",
  "required": ["points"],
  "properties": {
    "name": {
      "type": "string",
      "description": "Route name"
    },
    "points": {
      "type": "array",
      "minItems": 1,
      "items": {
        "type": "object",
        "required": ["name"],
        "properties": {
          "id": {
            "type": "string",
            "description": "Point identifier; assigned when omitted"
          },
          "name": {
            "type": "string",
            "minLength": 1,
            "description": "Place name"
          },
          "lat": {
            "type": "number",
            "minimum": -90,
            "maximum": 90,
            "description": "Latitude in degrees"
          },
          "lon": {
            "type": "number",
            "minimum": -180,
            "maximum": 180,
            "description": "Longitude in degrees"
          },
          "tags": {
            "type": "array",
            "items": {"type": "string"},
            "description": "Free-form hints for content agents"
          }
        }
      },
      "description": "Route points in travel order"
    }
  }
}`
