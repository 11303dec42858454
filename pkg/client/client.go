// Package client talks to the appointment API over HTTP on behalf of one
// authenticated actor.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/jwalitptl/appointment-engine/internal/model"
	"github.com/jwalitptl/appointment-engine/pkg/errors"
)

type Client struct {
	baseURL string
	token   string
	http    *http.Client
}

type Option func(*Client)

func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.http = hc }
}

// New returns a client for baseURL (for example http://localhost:8080/api/v1)
// sending token as its bearer credential.
func New(baseURL, token string, opts ...Option) *Client {
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
		http:    &http.Client{Timeout: 10 * time.Second},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   *struct {
		Code    errors.ErrorCode `json:"code"`
		Message string           `json:"message"`
	} `json:"error"`
}

func (c *Client) ListForActor(ctx context.Context) ([]*model.Appointment, error) {
	var out []*model.Appointment
	if err := c.do(ctx, http.MethodGet, "/appointments", nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) Get(ctx context.Context, id int64) (*model.Appointment, error) {
	var out model.Appointment
	if err := c.do(ctx, http.MethodGet, fmt.Sprintf("/appointments/%d", id), nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) Book(ctx context.Context, req model.CreateAppointmentRequest) (*model.Appointment, error) {
	var out model.Appointment
	if err := c.do(ctx, http.MethodPost, "/appointments", req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) Transition(ctx context.Context, id int64, status model.AppointmentStatus) (*model.Appointment, error) {
	var out model.Appointment
	body := model.TransitionRequest{Status: status}
	if err := c.do(ctx, http.MethodPatch, fmt.Sprintf("/appointments/%d/status", id), body, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) AvailableSlots(ctx context.Context, doctorID int64, date string) (*model.Availability, error) {
	var out model.Availability
	path := fmt.Sprintf("/appointments/doctor/%d/available-slots?date=%s", doctorID, url.QueryEscape(date))
	if err := c.do(ctx, http.MethodGet, path, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// do sends one request. API failures come back as *errors.AppError with
// the server's code; transport failures as Unavailable.
func (c *Client) do(ctx context.Context, method, path string, in, out interface{}) error {
	var body io.Reader
	if in != nil {
		raw, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("failed to encode request: %w", err)
		}
		body = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return errors.Unavailable(err)
	}
	defer resp.Body.Close()

	var env envelope
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		if resp.StatusCode >= 400 {
			return &errors.AppError{Code: errors.ErrInternal, Message: resp.Status}
		}
		return fmt.Errorf("failed to decode response: %w", err)
	}
	if !env.Success {
		if env.Error == nil {
			return &errors.AppError{Code: errors.ErrInternal, Message: resp.Status}
		}
		return &errors.AppError{Code: env.Error.Code, Message: env.Error.Message}
	}
	if out == nil || len(env.Data) == 0 {
		return nil
	}
	if err := json.Unmarshal(env.Data, out); err != nil {
		return fmt.Errorf("failed to decode response data: %w", err)
	}
	return nil
}
