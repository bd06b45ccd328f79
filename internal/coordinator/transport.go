package coordinator

import (
	"bytes"
	"compress/gzip"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/andybalholm/brotli"
	"github.com/tidwall/gjson"

	"github.com/maulanalegowo31-cloud/tvri-equipment-system/internal/core"
)

// maxResponseBodySize bounds the decoded response body.
const maxResponseBodySize = 10 * 1024 * 1024

// Transport performs a single exchange with the inventory endpoint.
// Implementations do not retry; the Coordinator owns the retry loop.
type Transport interface {
	// Post sends payload and returns the decoded envelope. An envelope with
	// success:false is returned together with an application error.
	Post(ctx context.Context, payload core.Payload) (*core.Envelope, error)
	// Probe checks that the endpoint answers with a JSON body.
	Probe(ctx context.Context) error
}

// HTTPTransport talks to the endpoint over HTTP.
type HTTPTransport struct {
	client *http.Client
	url    string
}

// NewHTTPTransport creates a transport for url. A nil client uses http.DefaultClient.
func NewHTTPTransport(client *http.Client, url string) *HTTPTransport {
	if client == nil {
		client = http.DefaultClient
	}
	return &HTTPTransport{client: client, url: url}
}

// URL returns the endpoint URL.
func (t *HTTPTransport) URL() string {
	return t.url
}

// Post implements Transport.
func (t *HTTPTransport) Post(ctx context.Context, payload core.Payload) (*core.Envelope, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.url, bytes.NewReader(body))
	if err != nil {
		return nil, core.NewConfigurationError("invalid endpoint URL: " + err.Error())
	}
	req.Header.Set("Content-Type", "application/json")

	status, respBody, err := t.do(req)
	if err != nil {
		return nil, err
	}
	if status < 200 || status > 299 {
		return nil, core.NewHTTPStatusError(status)
	}
	return parseEnvelope(status, respBody)
}

// Probe implements Transport.
func (t *HTTPTransport) Probe(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, t.url, nil)
	if err != nil {
		return core.NewConfigurationError("invalid endpoint URL: " + err.Error())
	}

	status, body, err := t.do(req)
	if err != nil {
		return err
	}
	if !gjson.ValidBytes(body) {
		return core.NewTransportError(status, "probe response is not valid JSON", nil)
	}
	return nil
}

func (t *HTTPTransport) do(req *http.Request) (int, []byte, error) {
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Accept-Encoding", "br, gzip")

	resp, err := t.client.Do(req)
	if err != nil {
		if ctxErr := req.Context().Err(); ctxErr != nil {
			return 0, nil, ctxErr
		}
		return 0, nil, core.NewConnectivityError("failed to reach endpoint: "+err.Error(), err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	body, err := readBody(resp)
	if err != nil {
		return resp.StatusCode, nil, err
	}
	return resp.StatusCode, body, nil
}

func readBody(resp *http.Response) ([]byte, error) {
	var r io.Reader = resp.Body
	switch enc := strings.ToLower(strings.TrimSpace(resp.Header.Get("Content-Encoding"))); enc {
	case "", "identity":
	case "br":
		r = brotli.NewReader(resp.Body)
	case "gzip":
		gz, err := gzip.NewReader(resp.Body)
		if err != nil {
			return nil, core.NewTransportError(resp.StatusCode, "failed to decode gzip body: "+err.Error(), err)
		}
		defer func() {
			_ = gz.Close()
		}()
		r = gz
	default:
		return nil, core.NewTransportError(resp.StatusCode, "unsupported content encoding: "+enc, nil)
	}

	body, err := io.ReadAll(io.LimitReader(r, maxResponseBodySize+1))
	if err != nil {
		return nil, core.NewTransportError(resp.StatusCode, "failed to read response body: "+err.Error(), err)
	}
	if len(body) > maxResponseBodySize {
		return nil, core.NewTransportError(resp.StatusCode, "response body too large", nil)
	}
	return body, nil
}

var errMalformedEnvelope = errors.New("malformed response envelope")

// parseEnvelope validates the {success, result?, error?} shape.
func parseEnvelope(status int, body []byte) (*core.Envelope, error) {
	if !gjson.ValidBytes(body) {
		return nil, core.NewTransportError(status, "response is not valid JSON", errMalformedEnvelope)
	}
	doc := gjson.ParseBytes(body)
	if !doc.IsObject() {
		return nil, core.NewTransportError(status, "response is not a JSON object", errMalformedEnvelope)
	}
	success := doc.Get("success")
	if !success.IsBool() {
		return nil, core.NewTransportError(status, "response has no boolean success field", errMalformedEnvelope)
	}

	env := &core.Envelope{
		Success: success.Bool(),
		Error:   doc.Get("error").String(),
		Message: doc.Get("message").String(),
	}
	if result := doc.Get("result"); result.Exists() {
		env.Result = json.RawMessage(result.Raw)
	}
	if !env.Success {
		return env, core.NewApplicationError(env.Error)
	}
	return env, nil
}
