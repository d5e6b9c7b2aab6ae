package scheduling

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/odontocloud/invoice-service/internal/auth"
)

var (
	// ErrAppointmentNotFound means the scheduling service has no record for
	// the requested id. Permanent; retrying cannot succeed.
	ErrAppointmentNotFound = errors.New("appointment not found")
	// ErrServiceUnavailable covers timeouts, connection failures and 5xx
	// responses. The caller may retry.
	ErrServiceUnavailable = errors.New("scheduling service unavailable")
	// ErrMalformedResponse means the service answered 200 with a body we
	// cannot decode. Permanent; logged for investigation.
	ErrMalformedResponse = errors.New("malformed scheduling response")
)

// Fetcher fetches authoritative appointment detail. The HTTP client below is
// the production implementation; tests substitute a fake.
type Fetcher interface {
	FetchAppointment(ctx context.Context, appointmentID int) (*Appointment, error)
}

// tokenSource is the slice of auth.TokenProvider the client needs.
type tokenSource interface {
	Token(ctx context.Context) (auth.AccessToken, error)
	ForceRefresh(ctx context.Context) (auth.AccessToken, error)
}

type Client struct {
	baseURL string
	tokens  tokenSource
	client  *http.Client
	logger  *logrus.Logger
}

func NewClient(baseURL string, tokens tokenSource, timeout time.Duration, logger *logrus.Logger) *Client {
	return &Client{
		baseURL: baseURL,
		tokens:  tokens,
		client:  &http.Client{Timeout: timeout},
		logger:  logger,
	}
}

// FetchAppointment performs GET /appointments/{id} with a bearer token. If
// the service rejects the token it forces one refresh and retries exactly
// once before surfacing the failure.
func (c *Client) FetchAppointment(ctx context.Context, appointmentID int) (*Appointment, error) {
	tok, err := c.tokens.Token(ctx)
	if err != nil {
		return nil, err
	}

	appt, err := c.fetch(ctx, appointmentID, tok)
	if !errors.Is(err, errUnauthorized) {
		return appt, err
	}

	c.logger.WithField("appointment_id", appointmentID).
		Warn("scheduling service rejected token, forcing refresh")

	tok, err = c.tokens.ForceRefresh(ctx)
	if err != nil {
		return nil, err
	}

	appt, err = c.fetch(ctx, appointmentID, tok)
	if errors.Is(err, errUnauthorized) {
		// A fresh token was still rejected; this is not something the
		// enrichment path can recover from on its own.
		return nil, fmt.Errorf("%w: token rejected after refresh", auth.ErrCredentialsRejected)
	}
	return appt, err
}

// errUnauthorized is internal to the refresh-and-retry handshake.
var errUnauthorized = errors.New("unauthorized")

func (c *Client) fetch(ctx context.Context, appointmentID int, tok auth.AccessToken) (*Appointment, error) {
	url := fmt.Sprintf("%s/appointments/%d", c.baseURL, appointmentID)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("build appointment request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+tok.Value)
	req.Header.Set("Accept", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrServiceUnavailable, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusOK:
		// fall through to decode
	case resp.StatusCode == http.StatusNotFound:
		return nil, fmt.Errorf("%w: id %d", ErrAppointmentNotFound, appointmentID)
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return nil, errUnauthorized
	case resp.StatusCode >= 500:
		return nil, fmt.Errorf("%w: status %d", ErrServiceUnavailable, resp.StatusCode)
	default:
		return nil, fmt.Errorf("%w: unexpected status %d", ErrMalformedResponse, resp.StatusCode)
	}

	var appt Appointment
	if err := json.NewDecoder(resp.Body).Decode(&appt); err != nil {
		c.logger.WithFields(logrus.Fields{
			"appointment_id": appointmentID,
			"error":          err.Error(),
		}).Error("could not decode appointment body")
		return nil, fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}

	return &appt, nil
}
