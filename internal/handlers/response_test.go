package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"

	"github.com/shpitdev/cable-intel/internal/apierr"
)

func TestRespondClassified(t *testing.T) {
	gin.SetMode(gin.TestMode)

	cases := []struct {
		name       string
		err        error
		wantStatus int
		wantCode   string
	}{
		{"validation", apierr.Newf(apierr.KindValidation, "bad input"), 400, "validation"},
		{"not found", apierr.Newf(apierr.KindNotFound, "missing"), 404, "not_found"},
		{"fetch", apierr.Newf(apierr.KindFetch, "upstream down"), 502, "fetch"},
		{"extraction", apierr.Newf(apierr.KindExtraction, "no cables"), 502, "extraction"},
		{"timeout", apierr.Newf(apierr.KindTimeout, "deadline"), 504, "timeout"},
		{"config", apierr.Newf(apierr.KindConfig, "no extractor"), 500, "config"},
		{"wrapped", fmt.Errorf("outer: %w", apierr.Newf(apierr.KindValidation, "inner")), 400, "validation"},
		{"unclassified", errors.New("boom"), 500, "internal_error"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			c, _ := gin.CreateTestContext(w)

			RespondClassified(c, tc.err)

			if w.Code != tc.wantStatus {
				t.Fatalf("status = %d, want %d", w.Code, tc.wantStatus)
			}
			var envelope ErrorEnvelope
			if err := json.Unmarshal(w.Body.Bytes(), &envelope); err != nil {
				t.Fatalf("decode body: %v", err)
			}
			if envelope.Error.Code != tc.wantCode {
				t.Fatalf("code = %q, want %q", envelope.Error.Code, tc.wantCode)
			}
			if envelope.Error.Message == "" {
				t.Fatalf("message is empty")
			}
		})
	}
}
