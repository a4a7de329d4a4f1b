package validator

import (
	"testing"
)

// TestCUEContractEnforcement checks that malformed policy input is caught
// before it reaches the rules.
func TestCUEContractEnforcement(t *testing.T) {
	v, err := New()
	if err != nil {
		t.Fatalf("Failed to create validator: %v", err)
	}

	tests := []struct {
		name    string
		data    map[string]interface{}
		wantErr bool
	}{
		{
			name: "valid_input",
			data: map[string]interface{}{
				"files":        []interface{}{},
				"buffers":      []interface{}{},
				"integers":     []interface{}{},
				"dependencies": []interface{}{},
				"resolutions":  []interface{}{},
				"diagnostics":  []interface{}{},
			},
			wantErr: false,
		},
		{
			name: "missing_buffers_field",
			data: map[string]interface{}{
				// Missing fields stay abstract and pass; present fields must match.
				"files":        []interface{}{},
				"integers":     []interface{}{},
				"dependencies": []interface{}{},
				"resolutions":  []interface{}{},
				"diagnostics":  []interface{}{},
			},
			wantErr: false,
		},
		{
			name: "invalid_resolution_status",
			data: map[string]interface{}{
				"resolutions": []interface{}{
					map[string]interface{}{
						"name":   "buf",
						"kind":   "buffer",
						"file":   "a.c",
						"line":   3,
						"status": "maybe", // Not in enum!
						"value":  0,
					},
				},
			},
			wantErr: true,
		},
		{
			name: "unknown_field",
			data: map[string]interface{}{
				"buffers": []interface{}{
					map[string]interface{}{
						"name":      "buf",
						"file":      "a.c",
						"line":      3,
						"size":      "N",
						"size_kind": "name",
						"capacity":  10, // not part of the contract
					},
				},
			},
			wantErr: true,
		},
		{
			name: "null_table",
			data: map[string]interface{}{
				"buffers": nil,
			},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := v.Validate(tt.data)
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestValidationErrors(t *testing.T) {
	v, err := New()
	if err != nil {
		t.Fatalf("Failed to create validator: %v", err)
	}

	data := map[string]interface{}{
		"dependencies": []interface{}{
			map[string]interface{}{
				"file": "a.c", "from": "buf", "to": "N", "kind": "alias", "resolved": true, "line": 1,
			},
		},
		"diagnostics": []interface{}{
			map[string]interface{}{
				"kind": "duplicate_declaration", "name": "n", "file": "a.c", "line": -1, "prev_line": 0, "message": "dup",
			},
		},
	}

	errs := v.ValidationErrors(data)
	if len(errs) == 0 {
		t.Fatalf("expected validation errors for kind and line")
	}
	if errs := v.ValidationErrors(map[string]interface{}{"files": []interface{}{}}); errs != nil {
		t.Fatalf("expected no errors, got %v", errs)
	}
}

func TestValidateJSON(t *testing.T) {
	v, err := New()
	if err != nil {
		t.Fatalf("Failed to create validator: %v", err)
	}
	if err := v.ValidateJSON([]byte(`{"integers": [{"name": "n", "file": "a.c", "line": 1, "value": "4", "value_kind": "literal"}]}`)); err != nil {
		t.Fatalf("expected valid JSON, got %v", err)
	}
	if err := v.ValidateJSON([]byte(`{"integers": [{"name": "n", "file": "", "line": 1, "value": "4", "value_kind": "literal"}]}`)); err == nil {
		t.Fatalf("expected empty file to be rejected")
	}
}
