// Package client is the Go SDK for the farepass service. It wraps the
// REST surface with typed calls, a ranked in-memory card store, and the
// refresh-after-mutation flow the service expects of its consumers.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
)

type Client struct {
	baseURL    string
	httpClient *http.Client
	token      string
}

type Option func(*Client)

// WithHTTPClient overrides the default HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// WithToken sets the bearer token sent on every request.
func WithToken(token string) Option {
	return func(c *Client) { c.token = token }
}

func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: 15 * time.Second},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// SetToken replaces the bearer token, typically after login.
func (c *Client) SetToken(token string) {
	c.token = token
}

func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var reqBody *bytes.Buffer
	if body != nil {
		reqBody = &bytes.Buffer{}
		if err := json.NewEncoder(reqBody).Encode(body); err != nil {
			return &Error{Kind: KindValidation, Message: "encoding request body failed"}
		}
	}

	var req *http.Request
	var err error
	if reqBody != nil {
		req, err = http.NewRequestWithContext(ctx, method, c.baseURL+path, reqBody)
	} else {
		req, err = http.NewRequestWithContext(ctx, method, c.baseURL+path, nil)
	}
	if err != nil {
		return &Error{Kind: KindNetwork, Message: err.Error()}
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return &Error{Kind: KindNetwork, Message: "request failed: " + err.Error()}
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return errorFromResponse(resp)
	}

	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return &Error{Kind: KindNetwork, Message: "decoding response failed: " + err.Error()}
		}
	}
	return nil
}

func errorFromResponse(resp *http.Response) *Error {
	var body struct {
		Error string `json:"error"`
	}
	_ = json.NewDecoder(resp.Body).Decode(&body)

	e := &Error{StatusCode: resp.StatusCode, Message: body.Error}
	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		e.Kind = KindAuth
	case resp.StatusCode == http.StatusNotFound:
		e.Kind = KindNotFound
	case resp.StatusCode < 500:
		e.Kind = KindValidation
	default:
		e.Kind = KindNetwork
	}
	if e.Message == "" {
		e.Message = genericMessage(e.Kind)
	}
	return e
}

func genericMessage(kind Kind) string {
	switch kind {
	case KindAuth:
		return "authentication required"
	case KindNotFound:
		return "resource not found"
	case KindValidation:
		return "request rejected"
	default:
		return "service unavailable"
	}
}

// Cards fetches the member's cards, ranked server-side. A member the
// service does not know, or one with no cards, is an empty slice rather
// than an error.
func (c *Client) Cards(ctx context.Context, memberID uuid.UUID) ([]Card, error) {
	var resp checkCardResponse
	if err := c.do(ctx, http.MethodGet, "/card/check-card/"+memberID.String(), nil, &resp); err != nil {
		return nil, err
	}
	if resp.Status == "not_exist" || resp.Card == nil {
		return []Card{}, nil
	}
	return resp.Card, nil
}

// SetLock changes the lock flag. locked is a plain bool here; the 0/1
// wire encoding stays inside the SDK.
func (c *Client) SetLock(ctx context.Context, cardID uuid.UUID, locked bool) (*Card, error) {
	wire := wireLockUnlocked
	if locked {
		wire = wireLockLocked
	}
	var card Card
	err := c.do(ctx, http.MethodPut, "/card/lock/"+cardID.String(), lockRequest{CardLock: &wire}, &card)
	if err != nil {
		return nil, err
	}
	return &card, nil
}

// SetMain designates the member's main card.
func (c *Client) SetMain(ctx context.Context, cardID, memberID uuid.UUID) error {
	return c.do(ctx, http.MethodPut, "/card/main/"+cardID.String(), setMainRequest{CardUserID: memberID.String()}, nil)
}

// Use redeems fare from a scanned QR payload.
func (c *Client) Use(ctx context.Context, params UseParams) (*UseResult, error) {
	var resp useResponse
	err := c.do(ctx, http.MethodPost, "/card/use", useRequest{
		HashedInput: params.Hash,
		UsedAmount:  params.UsedAmount,
		RouteID:     params.RouteID,
		TripID:      params.TripID,
		Latitude:    params.Latitude,
		Longitude:   params.Longitude,
	}, &resp)
	if err != nil {
		return nil, err
	}
	return &resp.Data, nil
}

// CheckHash verifies a scanned card hash exists and is unowned.
func (c *Client) CheckHash(ctx context.Context, hash string) (*Card, error) {
	var resp hashCheckResponse
	if err := c.do(ctx, http.MethodGet, "/card/hash/"+hash, nil, &resp); err != nil {
		return nil, err
	}
	return &resp.Card, nil
}

// VerifyCode links a physical card to the member using the printed
// verification code.
func (c *Client) VerifyCode(ctx context.Context, hash, code string, memberID uuid.UUID) (*Card, error) {
	var card Card
	err := c.do(ctx, http.MethodPost, "/card/verify-qrcode", verifyRequest{
		CardHash:   hash,
		CardQRCode: code,
		MemberID:   memberID.String(),
	}, &card)
	if err != nil {
		return nil, err
	}
	return &card, nil
}

// TopUp adds balance to a card.
func (c *Client) TopUp(ctx context.Context, cardID uuid.UUID, amount int64) (*Card, error) {
	var card Card
	err := c.do(ctx, http.MethodPost, "/card/topup/"+cardID.String(), topUpRequest{Amount: amount}, &card)
	if err != nil {
		return nil, err
	}
	return &card, nil
}

// Purchase mints a virtual card from a purchasable product.
func (c *Client) Purchase(ctx context.Context, groupID, memberID uuid.UUID) (*Card, error) {
	var card Card
	err := c.do(ctx, http.MethodPost, "/card/createByLine", purchaseRequest{
		CardGroupID: groupID.String(),
		MemberID:    memberID.String(),
	}, &card)
	if err != nil {
		return nil, err
	}
	return &card, nil
}

// CardGroups lists the purchasable catalog for a company.
func (c *Client) CardGroups(ctx context.Context, companyID string) ([]CardGroup, error) {
	var resp cardGroupListResponse
	if err := c.do(ctx, http.MethodGet, "/cardGroup/virtual/"+companyID, nil, &resp); err != nil {
		return nil, err
	}
	return resp.CardGroups, nil
}

// Login exchanges a platform authorization code for a session token and
// installs it on the client.
func (c *Client) Login(ctx context.Context, code, nonce string) (*Member, error) {
	var resp loginResponse
	if err := c.do(ctx, http.MethodPost, "/api/auth/login", loginRequest{Code: code, Nonce: nonce}, &resp); err != nil {
		return nil, err
	}
	c.token = resp.Token
	return resp.Member, nil
}
