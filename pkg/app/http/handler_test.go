package http

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	apperrors "github.com/chainsafe/bridge-tracker/pkg/app/errors"
)

func TestHandleError(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
		wantMsg    string
	}{
		{"service error", apperrors.ResourceNotFoundError(nil, "transfer not found"), http.StatusNotFound, "transfer not found"},
		{"dependency", apperrors.DependencyError(errors.New("dial tcp"), "chain unavailable"), http.StatusBadGateway, "chain unavailable"},
		{"plain error", errors.New("boom"), http.StatusInternalServerError, "Unexpected Service Error"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := HandleError(func(http.ResponseWriter, *http.Request) error { return tt.err }, zap.NewNop())

			rec := httptest.NewRecorder()
			h(rec, httptest.NewRequest(http.MethodGet, "/transfers/0x1", nil))

			require.Equal(t, tt.wantStatus, rec.Code)
			var body errorResponse
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
			assert.Equal(t, tt.wantMsg, body.ErrMsg)
			assert.Equal(t, tt.wantStatus, body.ErrMsgCode)
		})
	}
}

func TestHandleError_NoError(t *testing.T) {
	h := HandleError(func(w http.ResponseWriter, _ *http.Request) error {
		WriteJSON(w, http.StatusCreated, map[string]string{"id": "0x1"})
		return nil
	}, nil)

	rec := httptest.NewRecorder()
	h(rec, httptest.NewRequest(http.MethodPost, "/transfers", nil))

	assert.Equal(t, http.StatusCreated, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	assert.JSONEq(t, `{"id":"0x1"}`, rec.Body.String())
}
