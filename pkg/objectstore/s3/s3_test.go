package s3

import (
	"os"
	"testing"

	"github.com/minio/minio-go/v7"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/require"
)

func TestNewRequiresEndpoint(t *testing.T) {
	_, err := New(Config{})
	require.Error(t, err)
}

func TestTranslateErr(t *testing.T) {
	tests := []struct {
		name        string
		err         error
		wantMissing bool
	}{
		{
			name:        "missing key",
			err:         minio.ErrorResponse{Code: "NoSuchKey"},
			wantMissing: true,
		},
		{
			name:        "missing bucket",
			err:         minio.ErrorResponse{Code: "NoSuchBucket"},
			wantMissing: true,
		},
		{
			name: "access denied stays an error",
			err:  minio.ErrorResponse{Code: "AccessDenied"},
		},
		{
			name: "plain transport error",
			err:  errors.New("connection refused"),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := translateErr(tt.err, "stat object")
			require.Error(t, got)
			require.Equal(t, tt.wantMissing, os.IsNotExist(got))
		})
	}
}
