// internal/common/validation/schema_test.go
package validation

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidateDocument_ResearchRequest(t *testing.T) {
	tests := []struct {
		name      string
		doc       map[string]interface{}
		wantValid bool
	}{
		{
			name: "valid request",
			doc: map[string]interface{}{
				"messages": []interface{}{
					map[string]interface{}{"role": "user", "content": "what is new in go 1.24?"},
				},
				"page_instance_id": "page-1",
			},
			wantValid: true,
		},
		{
			name: "missing session id",
			doc: map[string]interface{}{
				"messages": []interface{}{
					map[string]interface{}{"role": "user", "content": "hi"},
				},
			},
			wantValid: false,
		},
		{
			name: "empty history",
			doc: map[string]interface{}{
				"messages":         []interface{}{},
				"page_instance_id": "page-1",
			},
			wantValid: false,
		},
		{
			name: "unknown role",
			doc: map[string]interface{}{
				"messages": []interface{}{
					map[string]interface{}{"role": "narrator", "content": "hi"},
				},
				"page_instance_id": "page-1",
			},
			wantValid: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := ValidateDocument(ResearchRequestSchema, tt.doc)
			require.NoError(t, err)
			assert.Equal(t, tt.wantValid, result.Valid, result.Error())
			if !tt.wantValid {
				assert.NotEmpty(t, result.Errors)
			}
		})
	}
}

func TestValidateJSON_StringList(t *testing.T) {
	result, err := ValidateJSON(StringListSchema, []byte(`["a", "b"]`))
	require.NoError(t, err)
	assert.True(t, result.Valid)

	result, err = ValidateJSON(StringListSchema, []byte(`["a", 2]`))
	require.NoError(t, err)
	assert.False(t, result.Valid)
	assert.Contains(t, result.Error(), "1")

	_, err = ValidateJSON(StringListSchema, []byte(`[not json`))
	assert.Error(t, err)
}
