package gcp

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"

	"gcp-billing-cost/domain/config"
	"gcp-billing-cost/domain/plugin"
	"gcp-billing-cost/ingest/service"
)

func privateKeyPEM(t *testing.T) string {
	t.Helper()
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("GenerateKey failed: %v", err)
	}
	der, err := x509.MarshalPKCS8PrivateKey(key)
	if err != nil {
		t.Fatalf("MarshalPKCS8PrivateKey failed: %v", err)
	}
	return string(pem.EncodeToMemory(&pem.Block{Type: "PRIVATE KEY", Bytes: der}))
}

// tokenServer answers the JWT bearer grant with status, counting requests.
func tokenServer(t *testing.T, status int, calls *atomic.Int32) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		if err := r.ParseForm(); err != nil || r.Form.Get("assertion") == "" {
			t.Errorf("Expected a signed assertion, got %v (%v)", r.Form, err)
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		if status != http.StatusOK {
			w.Write([]byte(`{"error":"invalid_grant","error_description":"Invalid JWT Signature."}`))
			return
		}
		w.Write([]byte(`{"access_token":"ya29.test","token_type":"Bearer","expires_in":3600}`))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestVerify_MalformedPrivateKey(t *testing.T) {
	svc := service.New(config.Default(), Opener{})
	secret := testSecret()
	secret["private_key"] = "not a key at all"

	if err := svc.Verify(context.Background(), plugin.Options{}, secret); err == nil {
		t.Fatal("Expected a malformed key to fail verification")
	}

	secret["bucket"] = "exports"
	err := svc.Verify(context.Background(), plugin.Options{"source_type": "storage"}, secret)
	if err == nil {
		t.Fatal("Expected a malformed key to fail storage verification")
	}
	var pe *plugin.Error
	if errors.As(err, &pe) {
		t.Errorf("Expected the authentication error to stay an upstream error, got %v", err)
	}
}

func TestVerify_RejectedByTokenEndpoint(t *testing.T) {
	var calls atomic.Int32
	srv := tokenServer(t, http.StatusBadRequest, &calls)
	secret := testSecret()
	secret["private_key"] = privateKeyPEM(t)
	secret["token_uri"] = srv.URL

	err := service.New(config.Default(), Opener{}).Verify(context.Background(), plugin.Options{}, secret)
	if err == nil || !strings.Contains(err.Error(), "collector@proj1.iam.gserviceaccount.com") {
		t.Fatalf("Expected an authentication error naming the account, got %v", err)
	}
	if calls.Load() != 1 {
		t.Errorf("Expected one token request, got %d", calls.Load())
	}
}

func TestVerify_AcceptedCredentials(t *testing.T) {
	var calls atomic.Int32
	srv := tokenServer(t, http.StatusOK, &calls)
	secret := testSecret()
	secret["private_key"] = privateKeyPEM(t)
	secret["token_uri"] = srv.URL
	secret["bucket"] = "exports"

	err := service.New(config.Default(), Opener{}).Verify(context.Background(), plugin.Options{"source_type": "storage"}, secret)
	if err != nil {
		t.Fatalf("Verify failed: %v", err)
	}
	if calls.Load() != 1 {
		t.Errorf("Expected one token request, got %d", calls.Load())
	}
}
