package protocol

import (
	"encoding/json"
	"errors"
	"time"

	"github.com/shubham-shewale/stock-ticker/pkg/models"
)

// Client -> Server
const (
	EventRegister        = "register"
	EventLogin           = "login"
	EventSubscribe       = "subscribe"
	EventUnsubscribe     = "unsubscribe"
	EventRequestSnapshot = "request_snapshot"
)

// Server -> Client
const (
	EventRegisterSuccess = "register_success"
	EventRegisterError   = "register_error"
	EventLoginSuccess    = "login_success"
	EventLoginError      = "login_error"
	EventSubscribed      = "subscribed"
	EventInitialPrices   = "initial_prices"
	EventPriceUpdate     = "price_update"
	EventError           = "error"
)

// TimeFormat matches JavaScript's Date.toISOString.
const TimeFormat = "2006-01-02T15:04:05.000Z07:00"

var ErrMissingData = errors.New("missing data")

type WSRequest struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

type CredentialsPayload struct {
	IdentityKey string `json:"identityKey"`
	Secret      string `json:"secret"`
}

type SymbolPayload struct {
	Symbol string `json:"symbol"`
}

type WSResponse struct {
	Event string      `json:"event"`
	Data  interface{} `json:"data,omitempty"`
}

type MessageData struct {
	Message string `json:"message"`
}

type ReasonData struct {
	Reason string `json:"reason"`
}

type LoginSuccessData struct {
	IdentityKey string   `json:"identityKey"`
	Catalog     []string `json:"catalog"`
}

type SubscribedData struct {
	Symbols []string `json:"symbols"`
}

type PriceUpdateData struct {
	Symbol string  `json:"symbol"`
	Price  float64 `json:"price"`
	Time   string  `json:"time"`
}

// Credentials decodes the payload of register and login.
func (r WSRequest) Credentials() (CredentialsPayload, error) {
	var p CredentialsPayload
	if len(r.Data) == 0 {
		return p, ErrMissingData
	}
	err := json.Unmarshal(r.Data, &p)
	return p, err
}

// Symbol decodes the payload of subscribe and unsubscribe, normalized.
func (r WSRequest) Symbol() (string, error) {
	var p SymbolPayload
	if len(r.Data) == 0 {
		return "", ErrMissingData
	}
	if err := json.Unmarshal(r.Data, &p); err != nil {
		return "", err
	}
	return models.NormalizeSymbol(p.Symbol), nil
}

func RegisterSuccess(message string) WSResponse {
	return WSResponse{Event: EventRegisterSuccess, Data: MessageData{Message: message}}
}

func RegisterError(reason string) WSResponse {
	return WSResponse{Event: EventRegisterError, Data: ReasonData{Reason: reason}}
}

func LoginSuccess(identityKey string, catalog []string) WSResponse {
	return WSResponse{Event: EventLoginSuccess, Data: LoginSuccessData{IdentityKey: identityKey, Catalog: catalog}}
}

func LoginError(reason string) WSResponse {
	return WSResponse{Event: EventLoginError, Data: ReasonData{Reason: reason}}
}

// Subscribed always carries the full set, never a diff.
func Subscribed(symbols []string) WSResponse {
	if symbols == nil {
		symbols = []string{}
	}
	return WSResponse{Event: EventSubscribed, Data: SubscribedData{Symbols: symbols}}
}

func InitialPrices(prices map[string]float64) WSResponse {
	return WSResponse{Event: EventInitialPrices, Data: prices}
}

func Error(reason string) WSResponse {
	return WSResponse{Event: EventError, Data: ReasonData{Reason: reason}}
}

func PriceUpdate(u models.StockUpdate) WSResponse {
	return WSResponse{Event: EventPriceUpdate, Data: PriceUpdateData{
		Symbol: u.Symbol,
		Price:  u.Price,
		Time:   u.Time.UTC().Format(TimeFormat),
	}}
}

// EncodePriceUpdate pre-renders a tick once so the router can fan the same
// bytes out to every subscriber.
func EncodePriceUpdate(u models.StockUpdate) ([]byte, error) {
	return json.Marshal(PriceUpdate(u))
}

// Decode parses an inbound text frame.
func Decode(payload []byte) (WSRequest, error) {
	var req WSRequest
	if err := json.Unmarshal(payload, &req); err != nil {
		return req, err
	}
	if req.Event == "" {
		return req, errors.New("missing event")
	}
	return req, nil
}

// PriceTime parses the time field of a price_update back into a time.Time.
func PriceTime(s string) (time.Time, error) {
	return time.Parse(TimeFormat, s)
}
