package notification

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
)

const maxProviderBody = 4 << 10

// WhatsAppChannel sends text messages through the WhatsApp Business Cloud API.
type WhatsAppChannel struct {
	httpClient    *http.Client
	baseURL       string
	token         string
	phoneNumberID string
}

// NewWhatsAppChannel builds a WhatsApp channel. Missing credentials are
// reported on Send as ErrNotConfigured.
func NewWhatsAppChannel(httpClient *http.Client, baseURL, token, phoneNumberID string) *WhatsAppChannel {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &WhatsAppChannel{
		httpClient:    httpClient,
		baseURL:       strings.TrimRight(baseURL, "/"),
		token:         token,
		phoneNumberID: phoneNumberID,
	}
}

// Name implements Channel.
func (w *WhatsAppChannel) Name() string { return ChannelWhatsApp }

type whatsAppText struct {
	Body string `json:"body"`
}

type whatsAppRequest struct {
	MessagingProduct string       `json:"messaging_product"`
	To               string       `json:"to"`
	Type             string       `json:"type"`
	Text             whatsAppText `json:"text"`
}

// Send posts a text message to the recipient.
func (w *WhatsAppChannel) Send(ctx context.Context, message Message) error {
	if w.token == "" || w.phoneNumberID == "" {
		return fmt.Errorf("%w: whatsapp token and phone number id are required", ErrNotConfigured)
	}

	payload, err := json.Marshal(whatsAppRequest{
		MessagingProduct: "whatsapp",
		To:               strings.TrimPrefix(message.Destination, "+"),
		Type:             "text",
		Text:             whatsAppText{Body: message.Body},
	})
	if err != nil {
		return err
	}

	endpoint := fmt.Sprintf("%s/%s/messages", w.baseURL, w.phoneNumberID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+w.token)
	req.Header.Set("Content-Type", "application/json")

	return do(w.httpClient, req, ChannelWhatsApp)
}

func do(client *http.Client, req *http.Request, channel string) error {
	resp, err := client.Do(req)
	if err != nil {
		return &TransportError{Channel: channel, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxProviderBody))
		return &TransportError{Channel: channel, Status: resp.StatusCode, Body: string(body)}
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}
