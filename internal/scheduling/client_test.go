package scheduling

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/odontocloud/invoice-service/internal/auth"
)

func testLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger
}

// stubTokens hands out sequentially numbered tokens and counts refreshes.
type stubTokens struct {
	tokens    int
	refreshes int
}

func (s *stubTokens) Token(ctx context.Context) (auth.AccessToken, error) {
	s.tokens++
	return auth.AccessToken{
		Value:     fmt.Sprintf("tok-%d", s.tokens+s.refreshes),
		ExpiresAt: time.Now().Add(time.Hour),
	}, nil
}

func (s *stubTokens) ForceRefresh(ctx context.Context) (auth.AccessToken, error) {
	s.refreshes++
	return auth.AccessToken{
		Value:     fmt.Sprintf("tok-%d", s.tokens+s.refreshes),
		ExpiresAt: time.Now().Add(time.Hour),
	}, nil
}

const appointmentBody = `{
	"id": 42,
	"description": "Cleaning",
	"dateAndTime": "10/01/2024 10:00",
	"dentistCRO": "CRO-12345",
	"patientRG": "55512345",
	"dentist": {"cro": "CRO-12345", "name": "Ana"},
	"patient": {"rg": "55512345", "name": "Bruno"}
}`

func TestFetchAppointment(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/appointments/42" {
			t.Errorf("path = %q, want /appointments/42", r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer tok-1" {
			t.Errorf("Authorization = %q, want Bearer tok-1", got)
		}
		fmt.Fprint(w, appointmentBody)
	}))
	defer srv.Close()

	c := NewClient(srv.URL, &stubTokens{}, time.Second, testLogger())

	appt, err := c.FetchAppointment(context.Background(), 42)
	if err != nil {
		t.Fatalf("FetchAppointment: %v", err)
	}
	if appt.ID != 42 || appt.Description != "Cleaning" {
		t.Errorf("unexpected appointment: %+v", appt)
	}
	if got := appt.PatientDocument(); got != "55512345" {
		t.Errorf("PatientDocument = %q, want 55512345", got)
	}
	if _, err := appt.StartsAt(); err != nil {
		t.Errorf("StartsAt: %v", err)
	}
}

func TestFetchNotFoundIsPermanent(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	}))
	defer srv.Close()

	c := NewClient(srv.URL, &stubTokens{}, time.Second, testLogger())

	_, err := c.FetchAppointment(context.Background(), 99)
	if !errors.Is(err, ErrAppointmentNotFound) {
		t.Errorf("error = %v, want ErrAppointmentNotFound", err)
	}
}

func TestFetchServerErrorIsTransient(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer srv.Close()

	c := NewClient(srv.URL, &stubTokens{}, time.Second, testLogger())
	if _, err := c.FetchAppointment(context.Background(), 1); !errors.Is(err, ErrServiceUnavailable) {
		t.Errorf("5xx error = %v, want ErrServiceUnavailable", err)
	}

	down := NewClient("http://127.0.0.1:1", &stubTokens{}, time.Second, testLogger())
	if _, err := down.FetchAppointment(context.Background(), 1); !errors.Is(err, ErrServiceUnavailable) {
		t.Errorf("network error = %v, want ErrServiceUnavailable", err)
	}
}

func TestFetchMalformedBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"id": "not-a-number"`)
	}))
	defer srv.Close()

	c := NewClient(srv.URL, &stubTokens{}, time.Second, testLogger())

	_, err := c.FetchAppointment(context.Background(), 1)
	if !errors.Is(err, ErrMalformedResponse) {
		t.Errorf("error = %v, want ErrMalformedResponse", err)
	}
}

func TestUnauthorizedForcesOneRefreshThenSucceeds(t *testing.T) {
	var calls int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		if calls == 1 {
			http.Error(w, "expired", http.StatusUnauthorized)
			return
		}
		if got := r.Header.Get("Authorization"); got != "Bearer tok-2" {
			t.Errorf("retry Authorization = %q, want Bearer tok-2", got)
		}
		fmt.Fprint(w, appointmentBody)
	}))
	defer srv.Close()

	tokens := &stubTokens{}
	c := NewClient(srv.URL, tokens, time.Second, testLogger())

	appt, err := c.FetchAppointment(context.Background(), 42)
	if err != nil {
		t.Fatalf("FetchAppointment: %v", err)
	}
	if appt.ID != 42 {
		t.Errorf("appointment id = %d, want 42", appt.ID)
	}
	if tokens.refreshes != 1 {
		t.Errorf("refreshes = %d, want 1", tokens.refreshes)
	}
	if calls != 2 {
		t.Errorf("remote calls = %d, want 2", calls)
	}
}

func TestUnauthorizedAfterRefreshIsFatal(t *testing.T) {
	var calls int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		http.Error(w, "nope", http.StatusForbidden)
	}))
	defer srv.Close()

	tokens := &stubTokens{}
	c := NewClient(srv.URL, tokens, time.Second, testLogger())

	_, err := c.FetchAppointment(context.Background(), 42)
	if !errors.Is(err, auth.ErrCredentialsRejected) {
		t.Errorf("error = %v, want auth.ErrCredentialsRejected", err)
	}
	if calls != 2 {
		t.Errorf("remote calls = %d, want exactly 2 (one retry)", calls)
	}
}
