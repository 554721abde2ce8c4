package tests

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"testing"

	"github.com/lithammer/shortuuid/v3"
	"github.com/stretchr/testify/require"
	"github.com/stripe/stripe-go/v76/webhook"
)

const (
	baseURL       = "http://localhost:8080"
	adminToken    = "component-admin"
	staffToken    = "component-staff"
	webhookSecret = "whsec_component"
)

type client struct {
	tenant string
}

func (c client) do(t *testing.T, method, path string, body any, headers map[string]string, out any) int {
	t.Helper()

	var payload []byte
	if body != nil {
		var err error
		payload, err = json.Marshal(body)
		require.NoError(t, err)
	}

	req, err := http.NewRequest(method, baseURL+path, bytes.NewReader(payload))
	require.NoError(t, err)

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Correlation-ID", shortuuid.New())
	if c.tenant != "" {
		req.Header.Set("X-Tenant", c.tenant)
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	if out != nil && resp.StatusCode < 300 {
		require.NoError(t, json.Unmarshal(respBody, out), string(respBody))
	}

	return resp.StatusCode
}

func admin() map[string]string {
	return map[string]string{"Authorization": "Bearer " + adminToken}
}

func staff() map[string]string {
	return map[string]string{"Authorization": "Bearer " + staffToken}
}

func sendStripeEvent(t *testing.T, eventID, eventType, object string) int {
	t.Helper()

	payload := []byte(fmt.Sprintf(
		`{"id":%q,"object":"event","type":%q,"api_version":"2023-10-16","data":{"object":%s}}`,
		eventID, eventType, object,
	))
	signed := webhook.GenerateTestSignedPayload(&webhook.UnsignedPayload{Payload: payload, Secret: webhookSecret})

	req, err := http.NewRequest(http.MethodPost, baseURL+"/webhooks/stripe", bytes.NewReader(payload))
	require.NoError(t, err)
	req.Header.Set("Stripe-Signature", signed.Header)

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	return resp.StatusCode
}
