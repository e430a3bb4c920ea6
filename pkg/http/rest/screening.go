package rest

import (
	"errors"
	"net/http"

	"github.com/cloudgroundcontrol/callin-studio/pkg/lifecycle"
	"github.com/labstack/echo/v4"
)

// ScreeningController exposes the screener and host actions that drive
// the participant lifecycle.
type ScreeningController struct {
	svc lifecycle.Service
}

func NewScreeningController(svc lifecycle.Service) ScreeningController {
	return ScreeningController{svc}
}

var ErrEmptyFields = errors.New("one or more fields is empty")

type PickUpRequest struct {
	Participant string `json:"participant"`
	Screener    string `json:"screener"`
}

type ApproveRequest struct {
	Participant string            `json:"participant"`
	Meta        map[string]string `json:"meta"`
}

type ParticipantRequest struct {
	Participant string `json:"participant"`
}

func (sc *ScreeningController) Queue(c echo.Context) error {
	episodeID := c.QueryParam("episode")
	return c.JSON(http.StatusOK, sc.svc.List(episodeID))
}

func (sc *ScreeningController) PickUp(c echo.Context) error {
	data := new(PickUpRequest)
	if err := c.Bind(data); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err)
	}
	if data.Participant == "" || data.Screener == "" {
		return echo.NewHTTPError(http.StatusBadRequest, ErrEmptyFields)
	}
	return respond(c, sc.svc.PickUp(c.Request().Context(), data.Participant, data.Screener))
}

func (sc *ScreeningController) Approve(c echo.Context) error {
	data := new(ApproveRequest)
	if err := c.Bind(data); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err)
	}
	if data.Participant == "" {
		return echo.NewHTTPError(http.StatusBadRequest, ErrEmptyFields)
	}
	return respond(c, sc.svc.Approve(c.Request().Context(), data.Participant, data.Meta))
}

func (sc *ScreeningController) PutOnAir(c echo.Context) error {
	data := new(ParticipantRequest)
	if err := c.Bind(data); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err)
	}
	if data.Participant == "" {
		return echo.NewHTTPError(http.StatusBadRequest, ErrEmptyFields)
	}
	return respond(c, sc.svc.PutOnAir(c.Request().Context(), data.Participant))
}

func (sc *ScreeningController) PutOnHold(c echo.Context) error {
	data := new(ParticipantRequest)
	if err := c.Bind(data); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err)
	}
	if data.Participant == "" {
		return echo.NewHTTPError(http.StatusBadRequest, ErrEmptyFields)
	}
	return respond(c, sc.svc.PutOnHold(c.Request().Context(), data.Participant))
}

func (sc *ScreeningController) Reject(c echo.Context) error {
	data := new(ParticipantRequest)
	if err := c.Bind(data); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err)
	}
	if data.Participant == "" {
		return echo.NewHTTPError(http.StatusBadRequest, ErrEmptyFields)
	}
	return respond(c, sc.svc.Reject(c.Request().Context(), data.Participant))
}

func (sc *ScreeningController) Complete(c echo.Context) error {
	data := new(ParticipantRequest)
	if err := c.Bind(data); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err)
	}
	if data.Participant == "" {
		return echo.NewHTTPError(http.StatusBadRequest, ErrEmptyFields)
	}
	return respond(c, sc.svc.Complete(c.Request().Context(), data.Participant))
}

// respond maps lifecycle errors onto HTTP statuses: guard violations
// and busy screeners are conflicts, unknown participants are 404s.
func respond(c echo.Context, err error) error {
	switch {
	case err == nil:
		return c.NoContent(http.StatusOK)
	case errors.Is(err, lifecycle.ErrParticipantNotFound):
		return echo.NewHTTPError(http.StatusNotFound, err)
	case errors.Is(err, lifecycle.ErrAlreadyScreening), lifecycle.IsInvalidTransition(err):
		return echo.NewHTTPError(http.StatusConflict, err)
	default:
		return echo.NewHTTPError(http.StatusInternalServerError, err)
	}
}
