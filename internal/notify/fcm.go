// Package notify delivers push notifications over the FCM HTTP API.
// Delivery is best-effort by contract: callers get a delivered/failed
// report and nothing here can fail a license operation.
package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"

	"keygate/internal/license"
)

type FCM struct {
	endpoint  string
	serverKey string
	client    *http.Client
	lg        *zap.SugaredLogger
}

// New builds an FCM sender. An empty server key disables sending: every
// attempt is reported as failed with a warning, matching the behavior of
// running without push credentials.
func New(endpoint, serverKey string, timeout time.Duration, lg *zap.SugaredLogger) *FCM {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &FCM{
		endpoint:  endpoint,
		serverKey: serverKey,
		client:    &http.Client{Timeout: timeout},
		lg:        lg,
	}
}

type message struct {
	To              string            `json:"to,omitempty"`
	RegistrationIDs []string          `json:"registration_ids,omitempty"`
	Notification    notification      `json:"notification"`
	Data            map[string]string `json:"data,omitempty"`
}

type notification struct {
	Title string `json:"title"`
	Body  string `json:"body"`
}

type fcmResponse struct {
	Success int `json:"success"`
	Failure int `json:"failure"`
}

func (f *FCM) SendToDevice(ctx context.Context, addr, title, body string, data map[string]string) bool {
	if f.serverKey == "" {
		f.lg.Warnw("push disabled, no server key configured")
		return false
	}
	resp, err := f.post(ctx, message{To: addr, Notification: notification{Title: title, Body: body}, Data: data})
	if err != nil {
		f.lg.Errorw("push send failed", "error", err)
		return false
	}
	if resp.Failure > 0 {
		f.lg.Warnw("push rejected by fcm", "addr_suffix", suffix(addr))
		return false
	}
	return true
}

func (f *FCM) SendToMany(ctx context.Context, addrs []string, title, body string, data map[string]string) license.NotifyResult {
	if len(addrs) == 0 {
		return license.NotifyResult{}
	}
	if f.serverKey == "" {
		f.lg.Warnw("push disabled, no server key configured")
		return license.NotifyResult{Failure: len(addrs)}
	}
	resp, err := f.post(ctx, message{RegistrationIDs: addrs, Notification: notification{Title: title, Body: body}, Data: data})
	if err != nil {
		f.lg.Errorw("push multicast failed", "error", err)
		return license.NotifyResult{Failure: len(addrs)}
	}
	return license.NotifyResult{Success: resp.Success, Failure: resp.Failure}
}

func (f *FCM) post(ctx context.Context, m message) (fcmResponse, error) {
	payload, err := json.Marshal(m)
	if err != nil {
		return fcmResponse{}, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, f.endpoint, bytes.NewBuffer(payload))
	if err != nil {
		return fcmResponse{}, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "key="+f.serverKey)
	resp, err := f.client.Do(req)
	if err != nil {
		return fcmResponse{}, err
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return fcmResponse{}, err
	}
	var out fcmResponse
	if err := json.Unmarshal(body, &out); err != nil {
		return fcmResponse{}, err
	}
	return out, nil
}

// suffix keeps logged push addresses from leaking whole tokens.
func suffix(addr string) string {
	if len(addr) <= 8 {
		return addr
	}
	return "..." + addr[len(addr)-8:]
}
