package transport

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/wuhu-labs/wuhu/pkg/types"
)

var errBoom = errors.New("boom")

func TestWriteCoreErrorMapsSessionNotFoundTo404(t *testing.T) {
	w := httptest.NewRecorder()
	writeCoreError(w, types.ErrSessionNotFound)

	require.Equal(t, http.StatusNotFound, w.Code)
	var resp ErrorResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.Equal(t, ErrCodeNotFound, resp.Error.Code)
}

func TestWriteCoreErrorMapsSessionCorruptToConflict(t *testing.T) {
	w := httptest.NewRecorder()
	writeCoreError(w, types.ErrSessionCorrupt)

	require.Equal(t, http.StatusConflict, w.Code)
}

func TestWriteCoreErrorDefaultsToInternalError(t *testing.T) {
	w := httptest.NewRecorder()
	writeCoreError(w, errBoom)

	require.Equal(t, http.StatusInternalServerError, w.Code)
}
