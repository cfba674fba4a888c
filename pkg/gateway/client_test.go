package gateway

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/studiare/tuition-billing/pkg/config"
)

func TestCancelCharge(t *testing.T) {
	var gotPath, gotAuth string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotAuth = r.Header.Get("Authorization")
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	client := NewClient(config.GatewayConfig{BaseURL: server.URL, APIKey: "key-1"})
	require.NoError(t, client.CancelCharge(context.Background(), "charge-9"))
	assert.Equal(t, "/v1/charges/charge-9/cancel", gotPath)
	assert.Equal(t, "Bearer key-1", gotAuth)
}

func TestCancelChargeNotFoundIsSuccess(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer server.Close()

	client := NewClient(config.GatewayConfig{BaseURL: server.URL})
	require.NoError(t, client.CancelCharge(context.Background(), "charge-gone"))
}

func TestCancelChargeServerErrorFails(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer server.Close()

	client := NewClient(config.GatewayConfig{BaseURL: server.URL})
	err := client.CancelCharge(context.Background(), "charge-9")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "502")
}
