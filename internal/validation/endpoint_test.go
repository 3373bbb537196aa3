package validation

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEndpointValidator_ValidateAndNormalize(t *testing.T) {
	strict := NewEndpointValidator()

	tests := []struct {
		name     string
		input    string
		expected string
		errMsg   string
	}{
		{name: "https endpoint", input: "https://api.unsplash.com", expected: "https://api.unsplash.com"},
		{name: "adds scheme", input: "api.pexels.com/v1", expected: "https://api.pexels.com/v1"},
		{name: "trims trailing slash", input: "https://api.pexels.com/v1/", expected: "https://api.pexels.com/v1"},
		{name: "trims whitespace", input: "  https://api.unsplash.com  ", expected: "https://api.unsplash.com"},
		{name: "empty", input: "", errMsg: "URL cannot be empty"},
		{name: "script characters", input: "https://api.pexels.com/<script>", errMsg: "invalid characters"},
		{name: "localhost", input: "http://localhost:5000", errMsg: "localhost URLs are not permitted"},
		{name: "private ip", input: "http://10.1.2.3/api", errMsg: "private IP addresses are not permitted"},
		{name: "loopback ip", input: "http://127.0.0.2", errMsg: "private IP addresses are not permitted"},
		{name: "unspecified ip", input: "http://0.0.0.0", errMsg: "unroutable"},
		{name: "traversal", input: "https://api.pexels.com/../etc", errMsg: "directory traversal"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := strict.ValidateAndNormalize(tt.input)
			if tt.errMsg != "" {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.errMsg)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.expected, got)
		})
	}
}

func TestEndpointValidator_Permissive(t *testing.T) {
	v := NewPermissiveEndpointValidator()

	got, err := v.ValidateAndNormalize("http://localhost:5000/")
	require.NoError(t, err)
	assert.Equal(t, "http://localhost:5000", got)

	_, err = v.ValidateAndNormalize("http://192.168.1.10:8080")
	assert.NoError(t, err)
}

func TestEndpointValidator_ValidateTemplate(t *testing.T) {
	v := NewEndpointValidator()

	got, err := v.ValidateTemplate("https://photos.example.org/rss?tag={query}")
	require.NoError(t, err)
	assert.Equal(t, "https://photos.example.org/rss?tag={query}", got)

	_, err = v.ValidateTemplate("https://photos.example.org/rss")
	assert.ErrorContains(t, err, QueryPlaceholder)

	_, err = v.ValidateTemplate("http://localhost/rss?tag={query}")
	assert.ErrorContains(t, err, "localhost")
}

func TestExpandTemplate(t *testing.T) {
	got := ExpandTemplate("https://photos.example.org/rss?tag={query}", "street art")
	assert.Equal(t, "https://photos.example.org/rss?tag=street+art", got)
}

func TestEndpointValidator_ValidateAssetURL(t *testing.T) {
	v := NewEndpointValidator()

	assert.NoError(t, v.ValidateAssetURL("https://images.pexels.com/photos/1/a.jpeg"))
	assert.NoError(t, v.ValidateAssetURL("http://cdn.example.org/x.png"))
	assert.ErrorContains(t, v.ValidateAssetURL(""), "empty")
	assert.ErrorContains(t, v.ValidateAssetURL("ftp://cdn.example.org/x.png"), "http or https")
	assert.ErrorContains(t, v.ValidateAssetURL("/relative/x.png"), "http or https")
}
