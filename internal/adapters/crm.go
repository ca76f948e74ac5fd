package adapters

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/openautogroup/lotview/internal/store"
)

// DefaultCRMBaseURL is the GoHighLevel REST endpoint.
const DefaultCRMBaseURL = "https://rest.gohighlevel.com/v1"

var ErrNoCRMKey = errors.New("adapters: dealership has no CRM api key")

// CRM talks to GoHighLevel. Each dealership may carry its own API key;
// DefaultAPIKey is the platform-level fallback.
type CRM struct {
	client        *Client
	BaseURL       string
	DefaultAPIKey string
}

func NewCRM(client *Client, baseURL, defaultKey string) *CRM {
	if baseURL == "" {
		baseURL = DefaultCRMBaseURL
	}
	return &CRM{client: client, BaseURL: baseURL, DefaultAPIKey: defaultKey}
}

// CRMContact is the subset of a GHL contact the platform needs.
type CRMContact struct {
	ID    string `json:"id"`
	Name  string `json:"name,omitempty"`
	Email string `json:"email,omitempty"`
	Phone string `json:"phone,omitempty"`
}

func (c *CRM) key(d *store.Dealership) (string, error) {
	if d.GHLAPIKey != "" {
		return d.GHLAPIKey, nil
	}
	if c.DefaultAPIKey != "" {
		return c.DefaultAPIKey, nil
	}
	return "", ErrNoCRMKey
}

func (c *CRM) header(key string) http.Header {
	h := http.Header{}
	h.Set("Authorization", "Bearer "+key)
	return h
}

// FindOrCreateContact looks the contact up by whichever of phone and email
// are known, and creates it when the lookup misses.
func (c *CRM) FindOrCreateContact(ctx context.Context, d *store.Dealership, name, email, phone string) (*CRMContact, error) {
	key, err := c.key(d)
	if err != nil {
		return nil, err
	}

	if phone != "" || email != "" {
		q := url.Values{}
		if phone != "" {
			q.Set("phone", phone)
		}
		if email != "" {
			q.Set("email", email)
		}
		var res struct {
			Contacts []CRMContact `json:"contacts"`
		}
		u := fmt.Sprintf("%s/contacts/lookup?%s", c.BaseURL, q.Encode())
		err := c.client.DoJSON(ctx, http.MethodGet, u, c.header(key), &d.ID, nil, &res)
		var apiErr *APIError
		switch {
		case errors.As(err, &apiErr) && apiErr.Status == http.StatusNotFound:
			// lookup misses fall through to create
		case err != nil:
			return nil, err
		case len(res.Contacts) > 0:
			return &res.Contacts[0], nil
		}
	}

	body := map[string]string{
		"name":       name,
		"email":      email,
		"phone":      phone,
		"locationId": d.GHLLocationID,
	}
	var created struct {
		Contact CRMContact `json:"contact"`
	}
	if err := c.client.DoJSON(ctx, http.MethodPost, c.BaseURL+"/contacts/", c.header(key), &d.ID, body, &created); err != nil {
		return nil, err
	}
	if created.Contact.ID == "" {
		return nil, fmt.Errorf("crm: contact create returned no id")
	}
	return &created.Contact, nil
}

// SendMessage pushes an outbound message into the contact's GHL
// conversation and returns the CRM-side message id.
func (c *CRM) SendMessage(ctx context.Context, d *store.Dealership, contactID string, channel store.Channel, body string) (string, error) {
	key, err := c.key(d)
	if err != nil {
		return "", err
	}
	payload := map[string]string{
		"contactId": contactID,
		"message":   body,
		"type":      crmMessageType(channel),
	}
	var res struct {
		ID        string `json:"id"`
		MessageID string `json:"messageId"`
	}
	if err := c.client.DoJSON(ctx, http.MethodPost, c.BaseURL+"/conversations/messages", c.header(key), &d.ID, payload, &res); err != nil {
		return "", err
	}
	if res.MessageID != "" {
		return res.MessageID, nil
	}
	return res.ID, nil
}

func crmMessageType(ch store.Channel) string {
	switch ch {
	case store.ChannelSMS:
		return "SMS"
	case store.ChannelEmail:
		return "Email"
	case store.ChannelMessenger:
		return "FB"
	default:
		return "Live_Chat"
	}
}

// NormalizePhone strips formatting so CRM lookups match regardless of how
// the customer typed the number.
func NormalizePhone(raw string) string {
	var b strings.Builder
	for _, r := range raw {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}
