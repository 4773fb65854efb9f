package errors

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/starlingpost/starlingpost/internal/domain/social"
)

func TestFromError_DomainKinds(t *testing.T) {
	cases := []struct {
		kind   social.Kind
		status int
		code   string
	}{
		{social.KindUnknownPlatform, http.StatusBadRequest, "UNKNOWN_PLATFORM"},
		{social.KindStateNotFound, http.StatusBadRequest, "STATE_NOT_FOUND"},
		{social.KindNotFound, http.StatusNotFound, "NOT_FOUND"},
		{social.KindInvalidGrant, http.StatusConflict, "NEEDS_RELINK"},
		{social.KindRateLimited, http.StatusTooManyRequests, "RATE_LIMIT_EXCEEDED"},
		{social.KindNotImplemented, http.StatusNotImplemented, "NOT_IMPLEMENTED"},
		{social.KindConfiguration, http.StatusInternalServerError, "CONFIGURATION_ERROR"},
		{social.KindExchangeFailed, http.StatusBadGateway, "BAD_GATEWAY"},
		{social.KindTimeout, http.StatusGatewayTimeout, "GATEWAY_TIMEOUT"},
	}
	for _, tc := range cases {
		t.Run(string(tc.kind), func(t *testing.T) {
			err := fmt.Errorf("ctx: %w", social.E(tc.kind, "Op", social.YouTube, "x"))
			got := FromError(err)
			require.Equal(t, tc.status, got.HTTPStatus)
			require.Equal(t, tc.code, got.Code)
		})
	}
}

func TestFromError_UnknownIsOpaque500(t *testing.T) {
	got := FromError(fmt.Errorf("db password=hunter2 refused"))
	require.Equal(t, http.StatusInternalServerError, got.HTTPStatus)
	require.NotContains(t, got.Message, "hunter2")
	require.Empty(t, got.Detail)
}

func TestWriteError_RateLimitedSetsRetryAfter(t *testing.T) {
	rec := httptest.NewRecorder()
	WriteError(rec, social.RateLimited("FetchMetrics", social.Twitter, 1500*time.Millisecond))

	require.Equal(t, http.StatusTooManyRequests, rec.Code)
	require.Equal(t, "2", rec.Header().Get("Retry-After"))

	var body map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Equal(t, "RATE_LIMIT_EXCEEDED", body["code"])
	require.Equal(t, "twitter", body["platform"])
}

func TestWithDetail_DoesNotMutateBase(t *testing.T) {
	e := ErrBadRequest.WithDetail("uid")
	require.Equal(t, "uid", e.Detail)
	require.Empty(t, ErrBadRequest.Detail)
}
