package validator

import "testing"

func TestValidateTripJSON(t *testing.T) {
	v, err := New()
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	tests := []struct {
		name  string
		body  string
		valid bool
	}{
		{
			name:  "valid trip",
			body:  `{"name":"coastal","route":{"points":[{"name":"harbor","lat":43.3,"lon":5.4}]}}`,
			valid: true,
		},
		{
			name:  "point without coordinates is ok",
			body:  `{"name":"loose","route":{"points":[{"name":"somewhere"}]}}`,
			valid: true,
		},
		{
			name:  "missing name",
			body:  `{"route":{"points":[{"name":"harbor"}]}}`,
			valid: false,
		},
		{
			name:  "missing route",
			body:  `{"name":"no route"}`,
			valid: false,
		},
		{
			name:  "empty points",
			body:  `{"name":"empty","route":{"points":[]}}`,
			valid: false,
		},
		{
			name:  "latitude out of range",
			body:  `{"name":"bad","route":{"points":[{"name":"x","lat":91,"lon":0}]}}`,
			valid: false,
		},
		{
			name:  "longitude out of range",
			body:  `{"name":"bad","route":{"points":[{"name":"x","lat":0,"lon":-181}]}}`,
			valid: false,
		},
		{
			name:  "point without name",
			body:  `{"name":"bad","route":{"points":[{"lat":1,"lon":2}]}}`,
			valid: false,
		},
		{
			name:  "not json",
			body:  `{{{`,
			valid: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := v.ValidateTripJSON([]byte(tt.body))
			if result.Valid != tt.valid {
				t.Fatalf("valid = %v, want %v (errors: %+v)", result.Valid, tt.valid, result.Errors)
			}
			if !result.Valid && len(result.Errors) == 0 {
				t.Fatal("invalid result carries no errors")
			}
		})
	}
}
