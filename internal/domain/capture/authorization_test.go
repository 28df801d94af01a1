package capture

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewAuthorization(t *testing.T) {
	tests := []struct {
		name    string
		token   string
		path    string
		wantErr bool
	}{
		{name: "valid", token: "tok-1", path: "/api/properties/7/media"},
		{name: "missing token", token: "", path: "/api/properties/7/media", wantErr: true},
		{name: "missing endpoint", token: "tok-1", path: "", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			auth, err := NewAuthorization(tt.token, tt.path, "properties", "7", "Flat 3B", Limits{MaxImages: 5})
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.False(t, auth.IsZero())
			assert.Equal(t, tt.token, auth.UploadToken())
		})
	}
}

func TestAuthorizationAddressing(t *testing.T) {
	addressed, err := NewAuthorization("tok-1", "/u", "properties", "7", "Flat 3B", Limits{})
	require.NoError(t, err)
	assert.True(t, addressed.Addressable())
	assert.Equal(t, "/properties/7", addressed.DetailPath())

	// A grant can be valid for upload without naming a browsable entity.
	anonymous, err := NewAuthorization("tok-2", "/u", "", "", "", Limits{})
	require.NoError(t, err)
	assert.False(t, anonymous.Addressable())

	var zero Authorization
	assert.True(t, zero.IsZero())
}
