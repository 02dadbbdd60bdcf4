package auth

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBcrypt(t *testing.T) {
	hash, err := HashPassword("s3nha")
	require.NoError(t, err)
	assert.NotEqual(t, "s3nha", hash)

	tests := []struct {
		name     string
		hash     string
		password string
		want     error
		wantErr  bool
	}{
		{name: "match", hash: hash, password: "s3nha"},
		{name: "wrong password", hash: hash, password: "senha", want: ErrInvalidCredentials, wantErr: true},
		{name: "empty password", hash: hash, password: "", want: ErrInvalidCredentials, wantErr: true},
		{name: "corrupt hash", hash: "plaintext", password: "s3nha", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := Bcrypt{}.Verify(tt.hash, tt.password)
			if !tt.wantErr {
				require.NoError(t, err)
				return
			}
			require.Error(t, err)
			if tt.want != nil {
				assert.ErrorIs(t, err, tt.want)
			} else {
				assert.NotErrorIs(t, err, ErrInvalidCredentials)
			}
		})
	}
}

func TestHashPassword_empty(t *testing.T) {
	_, err := HashPassword("")
	require.Error(t, err)
}
