package rest

import (
	"context"
	"errors"
	"net/http"
	"os"
	"path/filepath"

	"github.com/cloudgroundcontrol/callin-studio/pkg/mixer"
	"github.com/cloudgroundcontrol/callin-studio/pkg/room"
	"github.com/cloudgroundcontrol/callin-studio/pkg/upload"
	"github.com/labstack/echo/v4"
	"github.com/labstack/gommon/log"
)

// StudioController exposes the host's mixing desk: per-source gain and
// mute, level meters, room monitoring, asset playback and master
// recording.
type StudioController struct {
	mix      *mixer.Mixer
	rooms    room.Manager
	uploader upload.Uploader
}

func NewStudioController(mix *mixer.Mixer, rooms room.Manager, uploader upload.Uploader) StudioController {
	return StudioController{mix, rooms, uploader}
}

type VolumeRequest struct {
	Source string `json:"source"`
	Volume *int   `json:"volume"`
}

type MuteRequest struct {
	Source string `json:"source"`
	Muted  *bool  `json:"muted"`
}

type PlayAssetRequest struct {
	URL string `json:"url"`
}

func (st *StudioController) SetVolume(c echo.Context) error {
	data := new(VolumeRequest)
	if err := c.Bind(data); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err)
	}
	if data.Source == "" || data.Volume == nil {
		return echo.NewHTTPError(http.StatusBadRequest, ErrEmptyFields)
	}
	return respondMixer(c, st.mix.SetVolume(data.Source, *data.Volume))
}

func (st *StudioController) SetMuted(c echo.Context) error {
	data := new(MuteRequest)
	if err := c.Bind(data); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err)
	}
	if data.Source == "" || data.Muted == nil {
		return echo.NewHTTPError(http.StatusBadRequest, ErrEmptyFields)
	}
	return respondMixer(c, st.mix.SetMuted(data.Source, *data.Muted))
}

func (st *StudioController) Level(c echo.Context) error {
	source := c.QueryParam("source")
	if source == "" {
		return c.JSON(http.StatusOK, map[string]int{"master": st.mix.MasterLevel()})
	}
	level, err := st.mix.Level(source)
	if err != nil {
		return respondMixer(c, err)
	}
	return c.JSON(http.StatusOK, map[string]int{source: level})
}

func (st *StudioController) PlayAsset(c echo.Context) error {
	data := new(PlayAssetRequest)
	if err := c.Bind(data); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err)
	}
	if data.URL == "" {
		return echo.NewHTTPError(http.StatusBadRequest, ErrEmptyFields)
	}
	if _, err := st.mix.PlayAsset(data.URL); err != nil {
		return echo.NewHTTPError(http.StatusServiceUnavailable, err)
	}
	return c.NoContent(http.StatusAccepted)
}

type MonitorRequest struct {
	Room string `json:"room"`
}

// StartMonitor subscribes the mixing desk to a room's audio, typically
// the episode's on-air room, as one graph source.
func (st *StudioController) StartMonitor(c echo.Context) error {
	data := new(MonitorRequest)
	if err := c.Bind(data); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err)
	}
	if data.Room == "" {
		return echo.NewHTTPError(http.StatusBadRequest, ErrEmptyFields)
	}

	token, err := st.rooms.IssueToken(data.Room, "MX_"+data.Room, room.Capabilities{Subscribe: true, Hidden: true})
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err)
	}
	src, err := mixer.NewRoomSource(st.rooms.URL(), token)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadGateway, err)
	}

	input := src.Input()
	if err = st.mix.AttachSource("monitor_"+data.Room, input); err != nil {
		input.Close()
		if errors.Is(err, mixer.ErrSourceExists) {
			return echo.NewHTTPError(http.StatusConflict, err)
		}
		return echo.NewHTTPError(http.StatusInternalServerError, err)
	}
	return c.NoContent(http.StatusOK)
}

// StopMonitor detaches a monitored room; detaching releases the room
// connection.
func (st *StudioController) StopMonitor(c echo.Context) error {
	data := new(MonitorRequest)
	if err := c.Bind(data); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err)
	}
	if data.Room == "" {
		return echo.NewHTTPError(http.StatusBadRequest, ErrEmptyFields)
	}
	return respondMixer(c, st.mix.DetachSource("monitor_"+data.Room))
}

func (st *StudioController) StartRecording(c echo.Context) error {
	err := st.mix.StartRecording()
	if errors.Is(err, mixer.ErrAlreadyRecording) {
		return echo.NewHTTPError(http.StatusConflict, err)
	}
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err)
	}
	return c.NoContent(http.StatusOK)
}

func (st *StudioController) StopRecording(c echo.Context) error {
	filename, err := st.mix.StopRecording()
	if errors.Is(err, mixer.ErrNotRecording) {
		return echo.NewHTTPError(http.StatusConflict, err)
	}
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err)
	}

	// Hand the finalized payload to the storage collaborator in the
	// background; the response doesn't wait on the upload
	if st.uploader != nil {
		go func() {
			file, err := os.Open(filename)
			if err != nil {
				log.Errorf("cannot open recording | error: %v, file: %s", err, filename)
				return
			}
			defer file.Close()
			key := filepath.Base(filename)
			if err = st.uploader.Upload(context.TODO(), key, file); err != nil {
				log.Errorf("cannot upload recording | error: %v, file: %s", err, filename)
				return
			}
			log.Infof("uploaded recording | key: %s", key)
		}()
	}

	return c.JSON(http.StatusOK, map[string]string{"output": filename})
}

func respondMixer(c echo.Context, err error) error {
	switch {
	case err == nil:
		return c.NoContent(http.StatusOK)
	case errors.Is(err, mixer.ErrSourceNotFound):
		return echo.NewHTTPError(http.StatusNotFound, err)
	case errors.Is(err, mixer.ErrVolumeOutOfRange):
		return echo.NewHTTPError(http.StatusBadRequest, err)
	default:
		return echo.NewHTTPError(http.StatusInternalServerError, err)
	}
}
