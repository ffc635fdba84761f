package notify

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// Mailgun sends transactional email over Mailgun's message API.
type Mailgun struct {
	http     *http.Client
	apiURL   string
	apiKey   string
	fromAddr string
}

// NewMailgun returns a Mailgun sender posting to apiURL (the domain's
// messages endpoint) as "Taqo <fromAddr>".
func NewMailgun(apiURL, apiKey, fromAddr string, timeout time.Duration) *Mailgun {
	return &Mailgun{
		http:     &http.Client{Timeout: timeout},
		apiURL:   apiURL,
		apiKey:   apiKey,
		fromAddr: fromAddr,
	}
}

// Send delivers one email. The body is the plain-text template output;
// Mailgun renders the text part for clients that want HTML.
func (m *Mailgun) Send(ctx context.Context, to, subject, body string) error {
	form := url.Values{
		"from":    {fmt.Sprintf("Taqo <%s>", m.fromAddr)},
		"to":      {to},
		"subject": {subject},
		"text":    {body},
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, m.apiURL, strings.NewReader(form.Encode()))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.SetBasicAuth("api", m.apiKey)

	resp, err := m.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("mailgun: send to %s returned %s", to, resp.Status)
	}
	return nil
}
