package httpx

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kid-livraison/parcel/internal/shared"
)

func TestRespondErrorMapsTaxonomy(t *testing.T) {
	cases := []struct {
		err    error
		status int
	}{
		{fmt.Errorf("weight: %w", shared.ErrValidation), http.StatusBadRequest},
		{fmt.Errorf("sender 4: %w", shared.ErrNotFound), http.StatusNotFound},
		{shared.ErrCodeMismatch, http.StatusUnprocessableEntity},
		{shared.ErrInvalidState, http.StatusConflict},
		{shared.ErrConflict, http.StatusConflict},
		{shared.ErrDependency, http.StatusServiceUnavailable},
		{errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tc := range cases {
		rr := httptest.NewRecorder()
		RespondError(rr, tc.err)
		require.Equal(t, tc.status, rr.Code, tc.err.Error())
		assert.Equal(t, tc.status, StatusFor(tc.err))
		assert.Equal(t, "application/problem+json", rr.Header().Get("Content-Type"))

		var body ProblemDetail
		require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
		assert.Equal(t, tc.status, body.Status)
	}
}

func TestInternalErrorsHideDetail(t *testing.T) {
	rr := httptest.NewRecorder()
	Fail(nil, rr, httptest.NewRequest(http.MethodGet, "/x", nil), errors.New("password=secret"))
	assert.NotContains(t, rr.Body.String(), "secret")
}
