package main

import (
	"context"
	"net/http"
	"os"
	"os/exec"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/cloudgroundcontrol/callin-studio/pkg/bridge"
	"github.com/cloudgroundcontrol/callin-studio/pkg/episode"
	"github.com/cloudgroundcontrol/callin-studio/pkg/http/rest"
	"github.com/cloudgroundcontrol/callin-studio/pkg/lifecycle"
	"github.com/cloudgroundcontrol/callin-studio/pkg/mixer"
	"github.com/cloudgroundcontrol/callin-studio/pkg/notifier"
	"github.com/cloudgroundcontrol/callin-studio/pkg/room"
	"github.com/cloudgroundcontrol/callin-studio/pkg/telephony"
	"github.com/cloudgroundcontrol/callin-studio/pkg/upload"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/labstack/gommon/log"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func getEnvOrFail(key string) string {
	val := os.Getenv(key)
	if val == "" {
		log.Fatalf("%s not set", key)
	}
	return val
}

const reconcileInterval = 5 * time.Second

func main() {
	// Get env variables
	port := getEnvOrFail("APP_PORT")
	lkURL := getEnvOrFail("LIVEKIT_URL")
	lkAPIKey := getEnvOrFail("LIVEKIT_API_KEY")
	lkAPISecret := getEnvOrFail("LIVEKIT_API_SECRET")
	authToken := getEnvOrFail("TELEPHONY_AUTH_TOKEN")
	streamURL := getEnvOrFail("MEDIA_STREAM_URL")
	logLevel := os.Getenv("LOG_LEVEL")
	webhookUrls := os.Getenv("WEBHOOK_URLS")

	// Get log verbosity
	var verbosity log.Lvl
	switch strings.ToLower(logLevel) {
	case "debug":
		verbosity = log.DEBUG
	case "info":
		verbosity = log.INFO
	case "warn":
		verbosity = log.WARN
	case "error":
		fallthrough
	default:
		verbosity = log.ERROR
	}
	log.SetLevel(verbosity)
	log.SetHeader("(${short_file}:${line}) ${time_rfc3339} ${level}: ")

	// Separate the webhooks by comma
	var webhooks = []string{}
	if webhookUrls != "" {
		webhooks = strings.Split(webhookUrls, ",")
	}

	// Check that ffmpeg is installed; asset playback decodes through it
	_, err := exec.LookPath("ffmpeg")
	if err != nil {
		log.Fatal(err)
	}

	// Check if the recordings directory exists, otherwise create one
	stat, err := os.Stat(mixer.RecordingsDir)
	if os.IsNotExist(err) {
		err = os.Mkdir(mixer.RecordingsDir, 0755)
	} else if stat.Mode() != 0755 {
		err = os.Chmod(mixer.RecordingsDir, 0755)
	}
	if err != nil {
		log.Fatal(err)
	}

	// Create S3 uploader only if the environment variables are not empty
	s3Region := os.Getenv("S3_REGION")
	s3Bucket := os.Getenv("S3_BUCKET")
	var uploader upload.Uploader
	if s3Region != "" && s3Bucket != "" {
		uploader, err = upload.NewS3Uploader(upload.S3Config{
			Region:    s3Region,
			Bucket:    s3Bucket,
			Directory: os.Getenv("S3_DIRECTORY"),
		})
		if err != nil {
			log.Fatal(err)
		}
	}

	// Conferencing fabric
	rooms, err := room.NewManager(lkURL, lkAPIKey, lkAPISecret)
	if err != nil {
		log.Fatal(err)
	}

	// Business records. A persistent store plugs in here; the in-memory
	// store serves single-node deployments
	episodes := episode.NewMemStore()
	if id := os.Getenv("EPISODE_ID"); id != "" {
		err = episodes.Put(context.TODO(), &episode.Episode{
			ID:         id,
			LineNumber: getEnvOrFail("EPISODE_LINE"),
			OnAirRoom:  "onair_" + id,
			Live:       true,
		})
		if err != nil {
			log.Fatal(err)
		}
	}

	// Outbound event publishing
	notify := notifier.New(webhooks)

	// Telephony bridge and master mixer
	bridges := bridge.NewManager(rooms)
	mix := mixer.New()
	mix.Start()

	// Lifecycle state machine
	svc := lifecycle.NewService(bridges, rooms, episodes, notify, mix)
	bridges.OnPhoneClosed = func(participantID string) {
		if err := svc.Complete(context.TODO(), participantID); err != nil {
			log.Errorf("complete on hangup failed | participant: %s, error: %v", participantID, err)
		}
	}

	// Reconciliation sweep
	sweepCtx, stopSweep := context.WithCancel(context.Background())
	reconciler := lifecycle.NewReconciler(svc, bridges, rooms, reconcileInterval)
	go reconciler.Run(sweepCtx)

	// Controllers
	validator := telephony.NewValidator(authToken)
	calls := telephony.NewController(validator, svc, episodes, rooms, notify, streamURL)
	sockets := bridge.NewSocketHandler(bridges)
	screening := rest.NewScreeningController(svc)
	studio := rest.NewStudioController(mix, rooms, uploader)

	// Initialise server
	e := echo.New()

	// Attach middlewares
	e.Use(middleware.LoggerWithConfig(middleware.LoggerConfig{
		Format: "(${host}) ${time_rfc3339} ${level}: ${method} ${uri} ${status} ${error}\n",
	}))

	// Attach handlers
	e.GET("/", func(c echo.Context) error {
		return c.String(http.StatusOK, "Welcome to CGC")
	})
	e.GET("/health-check", func(c echo.Context) error {
		return c.NoContent(http.StatusOK)
	})
	e.GET("/metrics", echo.WrapHandler(promhttp.Handler()))

	// Telephony signaling webhooks
	e.POST("/telephony/inbound", calls.Inbound)
	e.POST("/telephony/status", calls.Status)
	e.POST("/telephony/conference", calls.ConferenceEvents)

	// Per-call media frame channel
	e.GET("/calls/media", sockets.HandleMediaStream)

	// Screening actions
	e.GET("/screening/queue", screening.Queue)
	e.POST("/screening/pickup", screening.PickUp)
	e.POST("/screening/approve", screening.Approve)
	e.POST("/screening/onair", screening.PutOnAir)
	e.POST("/screening/hold", screening.PutOnHold)
	e.POST("/screening/reject", screening.Reject)
	e.POST("/screening/complete", screening.Complete)

	// Studio mixing desk
	e.POST("/studio/volume", studio.SetVolume)
	e.POST("/studio/mute", studio.SetMuted)
	e.GET("/studio/levels", studio.Level)
	e.POST("/studio/assets", studio.PlayAsset)
	e.POST("/studio/monitor/start", studio.StartMonitor)
	e.POST("/studio/monitor/stop", studio.StopMonitor)
	e.POST("/studio/recording/start", studio.StartRecording)
	e.POST("/studio/recording/stop", studio.StopRecording)

	// Release sessions, rooms and devices in order on shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-quit
		stopSweep()
		svc.Shutdown(context.TODO())
		bridges.Shutdown()
		mix.Stop()
		notify.Close()
		e.Shutdown(context.TODO())
	}()

	// Start server
	e.Logger.Fatal(e.Start(":" + port))
}
