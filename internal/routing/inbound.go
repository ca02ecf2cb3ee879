// ABOUTME: Decodes and validates inbound frames into the closed set of client events
// ABOUTME: Each event is checked once here for required fields and sender role

package routing

import (
	"encoding/json"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/2389/salesdesk-gateway/internal/store"
)

// Inbound event names.
const (
	InRequestSalesSupport  = "requestSalesSupport"
	InClaimConversation    = "claimConversation"
	InSalesMessage         = "salesMessage"
	InCustomerMessage      = "customerMessage"
	InCompleteConversation = "completeConversation"
	InSalesTyping          = "salesTyping"
	InSalesStopTyping      = "salesStopTyping"
	InCustomerTyping       = "customerTyping"
	InCustomerStopTyping   = "customerStopTyping"
)

// MaxTextLength is the longest message text accepted, in characters.
const MaxTextLength = 1000

// inboundRoles lists the role allowed to send each event.
var inboundRoles = map[string]store.Role{
	InRequestSalesSupport:  store.RoleCustomer,
	InCustomerMessage:      store.RoleCustomer,
	InCustomerTyping:       store.RoleCustomer,
	InCustomerStopTyping:   store.RoleCustomer,
	InClaimConversation:    store.RoleSales,
	InSalesMessage:         store.RoleSales,
	InCompleteConversation: store.RoleSales,
	InSalesTyping:          store.RoleSales,
	InSalesStopTyping:      store.RoleSales,
}

// Inbound is a decoded client event. Only the fields of Name are populated.
type Inbound struct {
	Name       string
	CustomerID string
	Text       string
	Room       string
	Lang       string
	ClientID   string
}

type inboundFrame struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

type inboundData struct {
	CustomerID string `json:"customerId"`
	Text       string `json:"text"`
	Message    string `json:"message"`
	Room       string `json:"room"`
	Lang       string `json:"lang"`
	ClientID   string `json:"clientId"`
}

// DecodeInbound parses a text frame and validates the fields its event requires.
func DecodeInbound(frame []byte) (Inbound, error) {
	var f inboundFrame
	if err := json.Unmarshal(frame, &f); err != nil {
		return Inbound{}, fmt.Errorf("%w: malformed JSON", ErrInvalidFrame)
	}
	if _, ok := inboundRoles[f.Event]; !ok {
		return Inbound{}, fmt.Errorf("%w: unknown event %q", ErrInvalidFrame, f.Event)
	}

	var d inboundData
	if len(f.Data) > 0 && string(f.Data) != "null" {
		if err := json.Unmarshal(f.Data, &d); err != nil {
			return Inbound{}, fmt.Errorf("%w: malformed data for %s", ErrInvalidFrame, f.Event)
		}
	}

	in := Inbound{Name: f.Event}
	switch f.Event {
	case InRequestSalesSupport:
		in.Text = d.Message
	case InClaimConversation, InCompleteConversation, InSalesTyping, InSalesStopTyping:
		in.CustomerID = strings.TrimSpace(d.CustomerID)
		if in.CustomerID == "" {
			return Inbound{}, fmt.Errorf("%w: customerId is required", ErrInvalidFrame)
		}
	case InSalesMessage:
		in.CustomerID = strings.TrimSpace(d.CustomerID)
		if in.CustomerID == "" {
			return Inbound{}, fmt.Errorf("%w: customerId is required", ErrInvalidFrame)
		}
		text, err := normalizeText(d.Text)
		if err != nil {
			return Inbound{}, err
		}
		in.Text = text
	case InCustomerMessage:
		text, err := normalizeText(d.Text)
		if err != nil {
			return Inbound{}, err
		}
		in.Text = text
		in.Room = d.Room
		in.Lang = d.Lang
		in.ClientID = d.ClientID
	}
	return in, nil
}

// AllowedFor reports whether role may send the event.
func (in Inbound) AllowedFor(role store.Role) bool {
	return inboundRoles[in.Name] == role
}

// normalizeText trims text and enforces the length limit.
func normalizeText(text string) (string, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return "", fmt.Errorf("%w: text is required", ErrInvalidFrame)
	}
	if utf8.RuneCountInString(text) > MaxTextLength {
		return "", fmt.Errorf("%w: text exceeds %d characters", ErrInvalidFrame, MaxTextLength)
	}
	return text, nil
}
