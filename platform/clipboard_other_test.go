//go:build !windows

package platform

import (
	"errors"
	"os/exec"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSystemClipboardGet(t *testing.T) {
	exitErr := exec.Command("sh", "-c", "exit 1").Run()
	require.Error(t, exitErr)

	tests := []struct {
		name    string
		read    func() (string, error)
		want    string
		wantErr error
	}{
		{
			name: "text",
			read: func() (string, error) { return "hello", nil },
			want: "hello",
		},
		{
			name: "paste command exits non-zero",
			read: func() (string, error) { return "", exitErr },
			want: "",
		},
		{
			name:    "no utility",
			read:    func() (string, error) { return "", errNoClipboardUtility },
			wantErr: errNoClipboardUtility,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := &SystemClipboard{read: tt.read}
			got, err := c.Get()
			if tt.wantErr != nil {
				assert.True(t, errors.Is(err, tt.wantErr), "got %v", err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}
