package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/memberhub/admission/internal/admission"
	"github.com/memberhub/admission/internal/model"
	"github.com/memberhub/admission/internal/repository"
	"github.com/memberhub/admission/internal/service"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubEvents struct {
	event *model.Event
	err   error
}

func (s *stubEvents) CreateEvent(context.Context, model.CreateEventRequest) (*model.Event, error) {
	return s.event, s.err
}
func (s *stubEvents) ListEvents(context.Context) ([]model.Event, error) {
	if s.err != nil {
		return nil, s.err
	}
	return nil, nil
}
func (s *stubEvents) GetEvent(context.Context, string) (*model.Event, error) {
	return s.event, s.err
}
func (s *stubEvents) ListRegistrations(context.Context, string) ([]model.Registration, error) {
	return nil, s.err
}
func (s *stubEvents) Waitlist(context.Context, string) ([]model.Registration, error) {
	return nil, s.err
}
func (s *stubEvents) WaitlistPositionOf(context.Context, string, string) (int, error) {
	if s.err != nil {
		return 0, s.err
	}
	return 2, nil
}

type stubAdmissions struct {
	out *service.Outcome
	err error
}

func (s *stubAdmissions) Register(context.Context, string, string) (*service.Outcome, error) {
	return s.out, s.err
}
func (s *stubAdmissions) Cancel(context.Context, string, string) error       { return s.err }
func (s *stubAdmissions) AdminPromote(context.Context, string, string) error { return s.err }

func testRouter(events EventAPI, admissions AdmissionAPI) *chi.Mux {
	h := NewEventHandler(events, admissions)
	r := chi.NewRouter()
	r.Get("/health", HealthCheck)
	r.Route("/events", func(r chi.Router) {
		r.Post("/", h.CreateEvent)
		r.Get("/", h.ListEvents)
		r.Get("/{id}", h.GetEvent)
		r.Post("/{id}/register", h.Register)
		r.Post("/{id}/cancel", h.Cancel)
		r.Get("/{id}/registrations", h.ListRegistrations)
		r.Get("/{id}/waitlist", h.GetWaitlist)
		r.Post("/{id}/registrations/{userID}/promote", h.Promote)
		r.Get("/{id}/registrations/{userID}/position", h.GetWaitlistPosition)
	})
	return r
}

func doRequest(t *testing.T, r http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	return rec
}

func TestRegisterSeated(t *testing.T) {
	reg := &model.Registration{ID: "r1", EventID: "ev1", UserID: "alice", Status: model.StatusRegistered}
	r := testRouter(&stubEvents{}, &stubAdmissions{
		out: &service.Outcome{Kind: service.OutcomeRegistered, Registration: reg},
	})

	rec := doRequest(t, r, http.MethodPost, "/events/ev1/register", `{"user_id":"alice"}`)
	require.Equal(t, http.StatusCreated, rec.Code)

	var resp model.RegisterResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "registered", resp.Status)
	assert.Equal(t, "r1", resp.Registration.ID)
}

func TestRegisterWaitlisted(t *testing.T) {
	reg := &model.Registration{ID: "r2", EventID: "ev1", UserID: "bob", Status: model.StatusWaitlisted}
	r := testRouter(&stubEvents{}, &stubAdmissions{
		out: &service.Outcome{Kind: service.OutcomeWaitlisted, Registration: reg, Position: 3},
	})

	rec := doRequest(t, r, http.MethodPost, "/events/ev1/register", `{"user_id":"bob"}`)
	require.Equal(t, http.StatusAccepted, rec.Code)

	var resp model.RegisterResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "waitlisted", resp.Status)
	assert.Equal(t, 3, resp.Position)
}

func TestRegisterAlreadyRegistered(t *testing.T) {
	reg := &model.Registration{ID: "r1", EventID: "ev1", UserID: "alice", Status: model.StatusRegistered}
	r := testRouter(&stubEvents{}, &stubAdmissions{
		out: &service.Outcome{Kind: service.OutcomeAlreadyRegistered, Registration: reg},
	})

	rec := doRequest(t, r, http.MethodPost, "/events/ev1/register", `{"user_id":"alice"}`)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestRegisterErrorMapping(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"event not found", repository.ErrEventNotFound, http.StatusNotFound},
		{"event full", service.ErrEventFull, http.StatusConflict},
		{"not eligible", service.ErrNotEligible, http.StatusForbidden},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := testRouter(&stubEvents{}, &stubAdmissions{err: tt.err})
			rec := doRequest(t, r, http.MethodPost, "/events/ev1/register", `{"user_id":"alice"}`)
			assert.Equal(t, tt.want, rec.Code)
		})
	}
}

func TestRegisterBadBody(t *testing.T) {
	r := testRouter(&stubEvents{}, &stubAdmissions{})
	rec := doRequest(t, r, http.MethodPost, "/events/ev1/register", `{"unknown_field":1}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestCancelNotFound(t *testing.T) {
	r := testRouter(&stubEvents{}, &stubAdmissions{err: repository.ErrRegistrationNotFound})
	rec := doRequest(t, r, http.MethodPost, "/events/ev1/cancel", `{"user_id":"alice"}`)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestPromoteConflicts(t *testing.T) {
	r := testRouter(&stubEvents{}, &stubAdmissions{err: service.ErrNotOnWaitlist})
	rec := doRequest(t, r, http.MethodPost, "/events/ev1/registrations/bob/promote", "")
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestGetEventNotFound(t *testing.T) {
	r := testRouter(&stubEvents{err: repository.ErrEventNotFound}, &stubAdmissions{})
	rec := doRequest(t, r, http.MethodGet, "/events/nope", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestWaitlistReturnsEmptyArray(t *testing.T) {
	r := testRouter(&stubEvents{}, &stubAdmissions{})
	rec := doRequest(t, r, http.MethodGet, "/events/ev1/waitlist", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "[]", strings.TrimSpace(rec.Body.String()))
}

func TestGetWaitlistPosition(t *testing.T) {
	r := testRouter(&stubEvents{}, &stubAdmissions{})
	rec := doRequest(t, r, http.MethodGet, "/events/ev1/registrations/bob/position", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"position":2}`, rec.Body.String())
}

func TestGetWaitlistPositionContractViolation(t *testing.T) {
	r := testRouter(&stubEvents{err: admission.ErrNotWaitlisted}, &stubAdmissions{})
	rec := doRequest(t, r, http.MethodGet, "/events/ev1/registrations/bob/position", "")
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestHealthCheck(t *testing.T) {
	r := testRouter(&stubEvents{}, &stubAdmissions{})
	rec := doRequest(t, r, http.MethodGet, "/health", "")
	assert.Equal(t, http.StatusOK, rec.Code)
}
