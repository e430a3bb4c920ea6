package rest

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/cloudgroundcontrol/callin-studio/pkg/lifecycle"
	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/require"
)

// scriptedService returns canned errors so the HTTP mapping can be
// checked in isolation.
type scriptedService struct {
	lifecycle.Service

	err      error
	pickups  []string
	approved []string
	list     []lifecycle.Snapshot
}

func (s *scriptedService) PickUp(ctx context.Context, id string, screenerID string) error {
	s.pickups = append(s.pickups, id+"/"+screenerID)
	return s.err
}

func (s *scriptedService) Approve(ctx context.Context, id string, meta map[string]string) error {
	s.approved = append(s.approved, id)
	return s.err
}

func (s *scriptedService) PutOnAir(ctx context.Context, id string) error  { return s.err }
func (s *scriptedService) PutOnHold(ctx context.Context, id string) error { return s.err }
func (s *scriptedService) Reject(ctx context.Context, id string) error    { return s.err }
func (s *scriptedService) Complete(ctx context.Context, id string) error  { return s.err }

func (s *scriptedService) List(episodeID string) []lifecycle.Snapshot { return s.list }

func postJSON(t *testing.T, handler echo.HandlerFunc, body string) (*httptest.ResponseRecorder, error) {
	t.Helper()
	e := echo.New()
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	return rec, handler(e.NewContext(req, rec))
}

func statusOf(t *testing.T, err error) int {
	t.Helper()
	httpErr, ok := err.(*echo.HTTPError)
	require.True(t, ok, "expected an HTTP error, got %v", err)
	return httpErr.Code
}

func TestPickUpSuccess(t *testing.T) {
	svc := &scriptedService{}
	sc := NewScreeningController(svc)

	rec, err := postJSON(t, sc.PickUp, `{"participant":"PA_1","screener":"alice"}`)
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, []string{"PA_1/alice"}, svc.pickups)
}

func TestPickUpValidation(t *testing.T) {
	sc := NewScreeningController(&scriptedService{})

	_, err := postJSON(t, sc.PickUp, `{"participant":"PA_1"}`)
	require.Equal(t, http.StatusBadRequest, statusOf(t, err))

	_, err = postJSON(t, sc.PickUp, `{"screener":"alice"}`)
	require.Equal(t, http.StatusBadRequest, statusOf(t, err))
}

func TestErrorMapping(t *testing.T) {
	cases := []struct {
		name   string
		err    error
		status int
	}{
		{"not found", lifecycle.ErrParticipantNotFound, http.StatusNotFound},
		{"busy screener", lifecycle.ErrAlreadyScreening, http.StatusConflict},
		{"guard violation", &lifecycle.InvalidTransitionError{
			Participant: "PA_1",
			Current:     lifecycle.StateQueued,
			Attempted:   "approve",
		}, http.StatusConflict},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			sc := NewScreeningController(&scriptedService{err: tc.err})
			_, err := postJSON(t, sc.Approve, `{"participant":"PA_1"}`)
			require.Equal(t, tc.status, statusOf(t, err))
		})
	}
}

func TestTerminalActions(t *testing.T) {
	svc := &scriptedService{}
	sc := NewScreeningController(svc)

	for _, handler := range []echo.HandlerFunc{sc.PutOnAir, sc.PutOnHold, sc.Reject, sc.Complete} {
		rec, err := postJSON(t, handler, `{"participant":"PA_1"}`)
		require.NoError(t, err)
		require.Equal(t, http.StatusOK, rec.Code)

		_, err = postJSON(t, handler, `{}`)
		require.Equal(t, http.StatusBadRequest, statusOf(t, err))
	}
}

func TestQueue(t *testing.T) {
	svc := &scriptedService{list: []lifecycle.Snapshot{
		{ID: "PA_1", State: lifecycle.StateQueued},
		{ID: "PA_2", State: lifecycle.StateScreening},
	}}
	sc := NewScreeningController(svc)

	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/?episode=ep1", nil)
	rec := httptest.NewRecorder()
	require.NoError(t, sc.Queue(e.NewContext(req, rec)))

	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), "PA_1")
	require.Contains(t, rec.Body.String(), "queued")
}
