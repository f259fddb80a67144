package build

import (
	"context"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDispatch(t *testing.T) {
	tests := []struct {
		name    string
		status  int
		err     error
		wantErr bool
	}{
		{name: "accepted", status: http.StatusNoContent},
		{name: "ok is not accepted", status: http.StatusOK, wantErr: true},
		{name: "forbidden", status: http.StatusForbidden, err: errBoom, wantErr: true},
		{name: "workflow missing", status: http.StatusNotFound, err: errBoom, wantErr: true},
		{name: "transport failure", status: 0, err: errBoom, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			api := &fakeDispatch{status: tt.status, err: tt.err}
			err := NewDispatcher(api, nil).Dispatch(context.Background(), testTarget)

			assert.Equal(t, 1, api.calls)
			assert.Equal(t, "main", api.ref)
			if !tt.wantErr {
				require.NoError(t, err)
				return
			}

			require.Error(t, err)
			assert.ErrorIs(t, err, ErrDispatchRejected)
			var de *DispatchError
			require.ErrorAs(t, err, &de)
			assert.Equal(t, tt.status, de.StatusCode)
			if tt.err != nil {
				assert.ErrorIs(t, err, tt.err)
			}
		})
	}
}
