package notification

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
)

// SMSChannel sends messages through a Twilio-compatible SMS API using
// basic auth and a form-encoded body.
type SMSChannel struct {
	httpClient *http.Client
	baseURL    string
	accountSID string
	authToken  string
	from       string
}

// NewSMSChannel builds an SMS channel.
func NewSMSChannel(httpClient *http.Client, baseURL, accountSID, authToken, from string) *SMSChannel {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &SMSChannel{
		httpClient: httpClient,
		baseURL:    strings.TrimRight(baseURL, "/"),
		accountSID: accountSID,
		authToken:  authToken,
		from:       from,
	}
}

// Name implements Channel.
func (s *SMSChannel) Name() string { return ChannelSMS }

// Send submits the message to the provider.
func (s *SMSChannel) Send(ctx context.Context, message Message) error {
	if s.accountSID == "" || s.authToken == "" || s.from == "" {
		return fmt.Errorf("%w: sms account sid, auth token and sender are required", ErrNotConfigured)
	}

	form := url.Values{}
	form.Set("To", message.Destination)
	form.Set("From", s.from)
	form.Set("Body", message.Body)

	endpoint := fmt.Sprintf("%s/Accounts/%s/Messages.json", s.baseURL, url.PathEscape(s.accountSID))
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return err
	}
	req.SetBasicAuth(s.accountSID, s.authToken)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	return do(s.httpClient, req, ChannelSMS)
}
