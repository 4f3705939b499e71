package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"click2call-gateway/internal/config"
)

// NetSapiens talks to the NetSapiens call control REST API.
//
// Wire shapes follow the subscriber API:
//
//	POST /calls                 {to, from, callbackUrl} -> {callId, status}
//	POST /calls/{id}/end
//	POST /calls/{id}/dtmf       {digits}
//	GET  /calls/{id}            -> {callId, status, duration, startTime, endTime}
//
// The adapter is stateless apart from connection pooling and is safe for
// concurrent use.
type NetSapiens struct {
	baseURL string
	token   string
	http    *http.Client
}

func NewNetSapiens(cfg config.ProviderConfig) *NetSapiens {
	return &NetSapiens{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		token:   cfg.SubscriberToken,
		http:    &http.Client{Timeout: cfg.Timeout},
	}
}

func (n *NetSapiens) Name() string { return "netsapiens" }

func (n *NetSapiens) CreateCall(ctx context.Context, req CreateCallRequest) (CallHandle, error) {
	var out CallHandle
	if err := n.do(ctx, "create", http.MethodPost, "/calls", req, &out); err != nil {
		return CallHandle{}, err
	}
	if out.ProviderCallID == "" {
		return CallHandle{}, &Error{Kind: KindProviderServer, Op: "create", Message: "provider response missing callId"}
	}
	return out, nil
}

func (n *NetSapiens) EndCall(ctx context.Context, providerCallID string) error {
	path := fmt.Sprintf("/calls/%s/end", providerCallID)
	return n.do(ctx, "end", http.MethodPost, path, nil, nil)
}

func (n *NetSapiens) SendDigit(ctx context.Context, providerCallID, digit string) error {
	path := fmt.Sprintf("/calls/%s/dtmf", providerCallID)
	body := struct {
		Digits string `json:"digits"`
	}{Digits: digit}
	return n.do(ctx, "dtmf", http.MethodPost, path, body, nil)
}

func (n *NetSapiens) GetStatus(ctx context.Context, providerCallID string) (Status, error) {
	var out Status
	path := fmt.Sprintf("/calls/%s", providerCallID)
	if err := n.do(ctx, "status", http.MethodGet, path, nil, &out); err != nil {
		return Status{}, err
	}
	return out, nil
}

// do issues one provider round trip and normalizes the outcome.
func (n *NetSapiens) do(ctx context.Context, op, method, path string, body, out any) error {
	var rd io.Reader
	if body != nil {
		buf, err := json.Marshal(body)
		if err != nil {
			return &Error{Kind: KindNetwork, Op: op, Message: "encode request", Err: err}
		}
		rd = bytes.NewReader(buf)
	}

	req, err := http.NewRequestWithContext(ctx, method, n.baseURL+path, rd)
	if err != nil {
		return &Error{Kind: KindNetwork, Op: op, Message: "build request", Err: err}
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+n.token)

	resp, err := n.http.Do(req)
	if err != nil {
		return &Error{Kind: KindNetwork, Op: op, Message: err.Error(), Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return &Error{
			Kind:       kindForHTTPStatus(resp.StatusCode),
			Op:         op,
			HTTPStatus: resp.StatusCode,
			Message:    providerMessage(resp.Body),
		}
	}

	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return &Error{Kind: KindProviderServer, Op: op, HTTPStatus: resp.StatusCode, Message: "decode response: " + err.Error()}
		}
	}
	return nil
}

func kindForHTTPStatus(status int) Kind {
	if status >= 500 {
		return KindProviderServer
	}
	return KindProviderClient
}

// providerMessage extracts a short error message from a provider error body.
// Bodies are capped; malformed bodies degrade to a generic message.
func providerMessage(r io.Reader) string {
	raw, err := io.ReadAll(io.LimitReader(r, 4096))
	if err != nil || len(raw) == 0 {
		return "provider error"
	}
	var e struct {
		Message string `json:"message"`
	}
	if err := json.Unmarshal(raw, &e); err == nil && e.Message != "" {
		return e.Message
	}
	return "provider error"
}
