package payment

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"

	apperrors "callsubs-backend/pkg/errors"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type fakeWebhookService struct {
	payload   []byte
	signature string
	err       error
}

func (f *fakeWebhookService) HandleWebhook(ctx context.Context, payload []byte, signature string) error {
	f.payload = payload
	f.signature = signature
	return f.err
}

func serve(svc WebhookService, body []byte) *httptest.ResponseRecorder {
	r := gin.New()
	r.POST("/v1/payments/webhook", NewHandler(svc).Webhook)

	req := httptest.NewRequest(http.MethodPost, "/v1/payments/webhook", bytes.NewReader(body))
	req.Header.Set("Stripe-Signature", "t=1,v1=abc")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestWebhookPassesRawBody(t *testing.T) {
	svc := &fakeWebhookService{}
	body := []byte(`{"id":"evt_1","type":"checkout.session.completed"}`)

	w := serve(svc, body)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, body, svc.payload)
	assert.Equal(t, "t=1,v1=abc", svc.signature)
}

func TestWebhookErrors(t *testing.T) {
	tests := []struct {
		name string
		err  error
		code int
	}{
		{"bad signature is not retried", apperrors.ValidationError("Invalid webhook signature"), http.StatusBadRequest},
		{"processing failure is retried", errors.New("db down"), http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := serve(&fakeWebhookService{err: tt.err}, []byte(`{}`))
			assert.Equal(t, tt.code, w.Code)
		})
	}
}

func TestWebhookRejectsOversizedBody(t *testing.T) {
	svc := &fakeWebhookService{}

	w := serve(svc, []byte(strings.Repeat("a", maxWebhookBody+1)))

	assert.Equal(t, http.StatusRequestEntityTooLarge, w.Code)
	assert.Contains(t, w.Body.String(), "PAYLOAD_TOO_LARGE")
	assert.Nil(t, svc.payload)
}

type failingReader struct{}

func (failingReader) Read([]byte) (int, error) {
	return 0, errors.New("connection reset by peer")
}

func TestWebhookBrokenBodyIsBadRequest(t *testing.T) {
	svc := &fakeWebhookService{}
	r := gin.New()
	r.POST("/v1/payments/webhook", NewHandler(svc).Webhook)

	req := httptest.NewRequest(http.MethodPost, "/v1/payments/webhook", failingReader{})
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "VALIDATION_ERROR")
	assert.Nil(t, svc.payload)
}
