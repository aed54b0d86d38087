package main

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/http/pprof"
	"os"
	"reflect"
	"syscall"
	"time"

	"github.com/aukilabs/go-tooling/pkg/cli"
	"github.com/aukilabs/go-tooling/pkg/errors"
	"github.com/aukilabs/go-tooling/pkg/events"
	"github.com/aukilabs/go-tooling/pkg/logs"
	"github.com/aukilabs/go-tooling/pkg/metrics"
	"github.com/aukilabs/octree/featureflag"
	"github.com/aukilabs/octree/geometry"
	octreehttp "github.com/aukilabs/octree/http"
	"github.com/aukilabs/octree/models"
	"github.com/aukilabs/octree/octree"
	"github.com/aukilabs/octree/smoketest"
	owebsocket "github.com/aukilabs/octree/websocket"
	"github.com/go-gl/mathgl/mgl32"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/segmentio/encoding/json"
	"golang.org/x/net/websocket"
)

var (
	// The server version number. Set at build.
	version = "v0.1.0"

	infoGauge = promauto.NewGauge(prometheus.GaugeOpts{
		Name:        "octree_info",
		Help:        "Octree server information.",
		ConstLabels: prometheus.Labels{"version": version},
	})
)

// This will effectively disable obfuscation of the config struct. Without it, the keys would get obfuscated causing the cli package to generate garbled command-line options.
// https://github.com/burrowers/garble/issues/403
var _ = reflect.TypeOf(config{})

type config struct {
	Addr                string        `cli:""        env:"OCTREE_ADDR"                  help:"Listening address for client connections."`
	AdminAddr           string        `cli:""        env:"OCTREE_ADMIN_ADDR"            help:"Admin listening address."`
	PublicEndpoint      string        `cli:""        env:"OCTREE_PUBLIC_ENDPOINT"       help:"The public endpoint where this server is reachable."`
	LogLevel            string        `cli:""        env:"OCTREE_LOG_LEVEL"             help:"Log level (debug|info|warning|error)."`
	LogIndent           bool          `cli:""        env:"OCTREE_LOG_INDENT"            help:"Indent logs."`
	FrameDuration       time.Duration `cli:",hidden" env:"OCTREE_FRAME_DURATION"        help:"The duration of a scene frame."`
	OctreeSize          int           `cli:""        env:"OCTREE_SIZE"                  help:"The half extent of the cubic region covered by scene octrees."`
	OctreeLevels        int           `cli:""        env:"OCTREE_LEVELS"                help:"The subdivision levels of scene octrees."`
	Workers             int           `cli:""        env:"OCTREE_WORKERS"               help:"The goroutines used for threaded octree updates and raycasts."`
	MaxLights           int           `cli:""        env:"OCTREE_MAX_LIGHTS"            help:"The maximum number of lights affecting an object. 0 means unlimited."`
	ClientIdleTimeout   time.Duration `cli:",hidden" env:"OCTREE_CLIENT_IDLE_TIMEOUT"   help:"Time until an idle debug stream client will be disconnected."`
	DebugStreamInterval time.Duration `cli:",hidden" env:"OCTREE_DEBUG_STREAM_INTERVAL" help:"The minimum duration between two debug geometry messages."`
	LogSummaryInterval  time.Duration `cli:",hidden" env:"OCTREE_LOG_SUMMARY_INTERVAL"  help:"The duration between each log summary by connection."`
	Events              eventsConfig  `cli:",hidden" env:"-"                            help:"Event pusher configuration."`
	FeatureFlags        []string      `cli:",hidden" env:"OCTREE_FEATURE_FLAGS"         help:"Comma separated feature flags"`
	Version             bool          `cli:""        env:"-"                            help:"Show version."`
	Help                bool          `cli:""        env:"-"                            help:"Show help."`
}

type eventsConfig struct {
	Endpoint      string        `cli:",hidden" env:"OCTREE_EVENTS_ENDPOINT"       help:"Endpoint to where events are pushed."`
	FlushInterval time.Duration `cli:",hidden" env:"OCTREE_EVENTS_FLUSH_INTERVAL" help:"The duration between each event flush."`
	BatchSize     int           `cli:",hidden" env:"OCTREE_EVENTS_BATCH_SIZE"     help:"The maximum number of events sent at once."`
	QueueSize     int           `cli:",hidden" env:"OCTREE_EVENTS_QUEUE_SIZE"     help:"The size of the queue where events are stored."`
}

func main() {
	conf := config{
		Addr:                ":4000",
		AdminAddr:           ":18190",
		PublicEndpoint:      "http://localhost:4000",
		LogLevel:            logs.InfoLevel.String(),
		FrameDuration:       time.Millisecond * 15,
		OctreeSize:          octree.DefaultOctreeSize,
		OctreeLevels:        octree.DefaultOctreeLevels,
		ClientIdleTimeout:   time.Minute * 5,
		DebugStreamInterval: time.Millisecond * 100,
		LogSummaryInterval:  time.Minute,
		Events: eventsConfig{
			FlushInterval: events.DefaultFlushInterval,
			BatchSize:     events.DefaultBatchSize,
			QueueSize:     events.DefaultQueueSize,
		},
	}

	// set the information gauge to 1, useful for SUM query
	infoGauge.Set(1)

	ctx, cancel := cli.ContextWithSignals(context.Background(),
		os.Interrupt,
		syscall.SIGTERM,
	)
	defer cancel()

	cli.Register().
		Help("Starts the octree scene server.").
		Options(&conf)
	cli.Load()

	if conf.Version {
		fmt.Println(version)
		os.Exit(0)
	}

	if err := validateConfig(conf); err != nil {
		logs.Fatal(err)
	}

	logs.SetLevel(logs.ParseLevel(conf.LogLevel))
	logs.Encoder = json.Marshal
	if conf.LogIndent {
		logs.Encoder = func(v any) ([]byte, error) {
			return json.MarshalIndent(v, "", "  ")
		}
	}

	errors.Encoder = json.Marshal

	transport := metrics.HTTPTransport(http.DefaultTransport)

	if conf.Events.Endpoint != "" {
		eventsPusher := events.Pusher{
			Endpoint:      conf.Events.Endpoint,
			FlushInterval: conf.Events.FlushInterval,
			BatchSize:     conf.Events.BatchSize,
			QueueSize:     conf.Events.QueueSize,
			Transport:     transport,
		}
		go eventsPusher.Start()
		defer eventsPusher.Close()

		eventsLogger := events.Logger{
			Pusher:           &eventsPusher,
			SDKType:          "octree",
			SDKVersionFamily: version,
		}
		logs.SetLogger(eventsLogger.Log)
	}

	featureFlags := featureflag.New(conf.FeatureFlags)
	halfSize := float32(conf.OctreeSize)

	sceneOptions := models.SceneOptions{
		FrameDuration: conf.FrameDuration,
		BoundingBox: geometry.NewBoundingBox(
			mgl32.Vec3{-halfSize, -halfSize, -halfSize},
			mgl32.Vec3{halfSize, halfSize, halfSize},
		),
		Levels:       conf.OctreeLevels,
		Workers:      conf.Workers,
		MaxLights:    conf.MaxLights,
		FeatureFlags: featureFlags,
	}

	var scenes models.SceneStore
	readinessCheck := func() bool {
		return ctx.Err() == nil
	}

	var service http.ServeMux
	service.Handle("/health", octreehttp.HandleWithCORS(http.HandlerFunc(octreehttp.HandleHealthCheck)))
	service.Handle("/ready", octreehttp.HandleWithCORS(octreehttp.HandleReadyCheck(readinessCheck)))
	service.Handle("/version", octreehttp.HandleWithCORS(octreehttp.HandleVersion(version)))

	api := octreehttp.API{
		Context:      ctx,
		Scenes:       &scenes,
		SceneOptions: sceneOptions,
	}
	var apiMux http.ServeMux
	api.Register(&apiMux)
	service.Handle("/scenes", octreehttp.HandleWithCORS(&apiMux))
	service.Handle("/scenes/", octreehttp.HandleWithCORS(&apiMux))

	service.HandleFunc("/smoke-test", smoketest.HandleSmokeTest(ctx, smoketest.Options{
		Levels:       conf.OctreeLevels,
		Workers:      conf.Workers,
		FeatureFlags: featureFlags,
	}))

	featureFlags.IfNotSet(featureflag.FlagDisableDebugStream, func() {
		service.Handle("/debug/stream", websocket.Server{
			Handler: func(conn *websocket.Conn) {
				defer conn.Close()

				var h owebsocket.Handler = &owebsocket.DebugHandler{
					Scenes:            &scenes,
					Interval:          conf.DebugStreamInterval,
					ClientIdleTimeout: conf.ClientIdleTimeout,
				}
				h = owebsocket.HandlerWithLogs(h, conf.LogSummaryInterval)
				h = owebsocket.HandlerWithMetrics(h, conf.PublicEndpoint)
				defer h.Close()

				owebsocket.Handle(ctx, conn, h)
			},
		})
	})

	service.Handle("/ping", websocket.Server{
		Handler: func(ws *websocket.Conn) {
			defer ws.Close()
			io.Copy(ws, ws)
		},
	})

	var admin http.ServeMux
	admin.Handle("/metrics", promhttp.Handler())
	admin.HandleFunc("/health", octreehttp.HandleHealthCheck)
	admin.HandleFunc("/debug/pprof/", pprof.Index)
	admin.HandleFunc("/debug/pprof/cmdline", pprof.Cmdline)
	admin.HandleFunc("/debug/pprof/profile", pprof.Profile)
	admin.HandleFunc("/debug/pprof/symbol", pprof.Symbol)
	admin.HandleFunc("/debug/pprof/trace", pprof.Trace)
	admin.Handle("/debug/pprof/goroutine", pprof.Handler("goroutine"))
	admin.Handle("/debug/pprof/heap", pprof.Handler("heap"))
	admin.Handle("/debug/pprof/threadcreate", pprof.Handler("threadcreate"))
	admin.Handle("/debug/pprof/block", pprof.Handler("block"))
	admin.HandleFunc("/ready", octreehttp.HandleReadyCheck(readinessCheck))

	logs.WithTag("version", version).
		WithTag("log_level", conf.LogLevel).
		WithTag("endpoint", conf.PublicEndpoint).
		WithTag("octree_size", conf.OctreeSize).
		WithTag("octree_levels", conf.OctreeLevels).
		WithTag("feature_flags", featureFlags.List()).
		Info("starting octree server")

	octreehttp.ListenAndServe(ctx,
		&http.Server{Addr: conf.Addr, Handler: metrics.HTTPHandler(&service,
			octreehttp.MetricsPathFormatter)},
		&http.Server{Addr: conf.AdminAddr, Handler: &admin},
	)

	for _, scene := range scenes.List() {
		scenes.Remove(context.Background(), scene)
	}
}

func validateConfig(conf config) error {
	if conf.OctreeSize <= 0 {
		return errors.New("octree size must be positive").
			WithTag("octree_size", conf.OctreeSize)
	}

	if conf.OctreeLevels <= 0 {
		return errors.New("octree levels must be positive").
			WithTag("octree_levels", conf.OctreeLevels)
	}

	if conf.Workers < 0 {
		return errors.New("workers must not be negative").
			WithTag("workers", conf.Workers)
	}

	if conf.MaxLights < 0 {
		return errors.New("max lights must not be negative").
			WithTag("max_lights", conf.MaxLights)
	}

	if conf.FrameDuration <= 0 {
		return errors.New("frame duration must be positive").
			WithTag("frame_duration", conf.FrameDuration)
	}

	return nil
}
