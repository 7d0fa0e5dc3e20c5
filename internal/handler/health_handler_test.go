package handler

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"
)

type stubPinger struct {
	err error
}

func (p stubPinger) Health(context.Context) error {
	return p.err
}

func TestHealthHandlerCheck(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		err    error
		status int
		body   string
	}{
		{
			name:   "healthy store",
			status: http.StatusOK,
			body:   `{"success":true,"message":"ok"}`,
		},
		{
			name:   "store down",
			err:    errors.New("dial tcp 10.0.0.5:5432: connection refused"),
			status: http.StatusServiceUnavailable,
			body:   `{"success":false,"message":"Store unavailable","code":"SERVICE_UNAVAILABLE"}`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			rec := httptest.NewRecorder()
			NewHealthHandler(stubPinger{err: tt.err}).Check(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

			require.Equal(t, tt.status, rec.Code)
			require.Equal(t, "application/json", rec.Header().Get("Content-Type"))
			require.JSONEq(t, tt.body, rec.Body.String())
		})
	}
}
