package main

import (
	"context"
	"embed"
	"flag"
	"io/fs"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/pi-tank/tankd/internal/api"
	"github.com/pi-tank/tankd/internal/arbiter"
	"github.com/pi-tank/tankd/internal/camera"
	"github.com/pi-tank/tankd/internal/config"
	"github.com/pi-tank/tankd/internal/db"
	"github.com/pi-tank/tankd/internal/driveboard"
	"github.com/pi-tank/tankd/internal/motion"
	"github.com/pi-tank/tankd/internal/timeutil"
	"github.com/pi-tank/tankd/internal/version"
)

var (
	//go:embed static/*
	staticFiles embed.FS
	devMode       = flag.Bool("dev", false, "Run in dev mode (simulated drive board)")
	listen        = flag.String("listen", ":8080", "Listen address")
	boardPath     = flag.String("board", "/dev/ttyACM0", "Drive board serial device")
	boardBaud     = flag.Int("baud", 115200, "Drive board baud rate")
	dbFile        = flag.String("db", "tank.db", "Event log database path")
	configPath    = flag.String("config", "", "Tuning config JSON path")
	cameraIndex   = flag.Int("camera", 0, "Primary camera device index")
	migrationsDir = flag.String("migrations", "migrations", "Schema migrations directory")
)

// openBoard opens the serial drive board, falling back to a simulated board
// when the hardware is absent. A missing board is never fatal: the service
// stays up so the camera and status surfaces keep working.
func openBoard(database *db.DB) driveboard.Board {
	if *devMode {
		log.Print("dev mode: using simulated drive board")
		recordEvent(database, "board", "mode", "simulated driver selected (dev mode)")
		return driveboard.NewSimulatedBoard()
	}
	board, err := driveboard.NewSerialBoard(*boardPath, driveboard.PortOptions{BaudRate: *boardBaud})
	if err != nil {
		log.Printf("drive board %s unavailable, falling back to simulated: %v", *boardPath, err)
		recordEvent(database, "board", "fault", err.Error())
		recordEvent(database, "board", "mode", "simulated driver selected (hardware absent)")
		return driveboard.NewSimulatedBoard()
	}
	log.Printf("drive board up on %s", *boardPath)
	recordEvent(database, "board", "mode", "serial driver up on "+*boardPath)
	return board
}

func recordEvent(database *db.DB, source, kind, detail string) {
	if err := database.RecordEvent(source, kind, detail); err != nil {
		log.Printf("failed to record event: %v", err)
	}
}

func main() {
	// "tankd migrate <action>" manages the event log schema and exits
	// without starting the service.
	if len(os.Args) > 1 && os.Args[1] == "migrate" {
		flag.CommandLine.Parse(os.Args[2:])
		if err := db.RunMigrateCommand(flag.Args(), *dbFile, *migrationsDir); err != nil {
			log.Fatalf("migrate: %v", err)
		}
		return
	}

	flag.Parse()

	if *listen == "" {
		log.Fatal("Listen address is required")
	}

	var tuning *config.TuningConfig
	if *configPath != "" {
		var err error
		tuning, err = config.LoadTuningConfig(*configPath)
		if err != nil {
			log.Fatalf("failed to load tuning config: %v", err)
		}
	}

	database, err := db.NewDB(*dbFile)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer database.Close()

	board := openBoard(database)
	defer board.Close()

	clock := timeutil.RealClock{}
	actuator := motion.NewActuator(board, clock, tuning)
	arb := arbiter.New(actuator, clock, tuning)

	var cfg config.TuningConfig
	if tuning != nil {
		cfg = *tuning
	}
	pipeline := camera.NewPipeline(camera.Options{
		Opener:         camera.SystemOpener,
		PrimaryIndex:   *cameraIndex,
		Width:          cfg.GetCameraWidth(),
		Height:         cfg.GetCameraHeight(),
		Interval:       cfg.GetFrameInterval(),
		AcquireTimeout: cfg.GetAcquireTimeout(),
		JPEGQuality:    cfg.GetJPEGQuality(),
		Clock:          clock,
		OnModeChange: func(from, to camera.Mode) {
			recordEvent(database, "camera", "mode", string(from)+" -> "+string(to))
		},
	})

	var wg sync.WaitGroup
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// run the monitor routine to manage IO on the board's serial port
	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := board.Monitor(ctx); err != nil && err != context.Canceled {
			log.Printf("failed to monitor drive board: %v", err)
		}
		log.Print("monitor routine terminated")
	}()

	// subscribe to board telemetry and record faults in the event log
	wg.Add(1)
	go func() {
		defer wg.Done()
		id, c := board.Subscribe()
		defer board.Unsubscribe(id)
		for {
			select {
			case payload := <-c:
				if strings.HasPrefix(payload, "err") {
					log.Printf("board fault: %s", payload)
					recordEvent(database, "board", "fault", payload)
				}
			case <-ctx.Done():
				log.Print("telemetry routine terminated")
				return
			}
		}
	}()

	// camera acquisition routine
	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := pipeline.Run(ctx); err != nil && err != context.Canceled {
			log.Printf("camera pipeline stopped: %v", err)
		}
		log.Print("camera routine terminated")
	}()

	// HTTP server goroutine
	wg.Add(1)
	go func() {
		defer wg.Done()

		mux := http.NewServeMux()

		// mount the admin debugging routes
		database.AttachAdminRoutes(mux)
		board.AttachAdminRoutes(mux)

		// mount the teleoperation handlers
		api.NewServer(arb, actuator, pipeline).RegisterRoutes(mux)

		// read static files from the embedded filesystem in production or from
		// the local ./static in dev for easier iteration without restarting the
		// server
		var staticHandler http.Handler
		if *devMode {
			staticHandler = http.FileServer(http.Dir("./static"))
		} else {
			staticRoot, err := fs.Sub(staticFiles, "static")
			if err != nil {
				log.Fatalf("failed to open embedded static files: %v", err)
			}
			staticHandler = http.FileServer(http.FS(staticRoot))
		}
		mux.Handle("/", staticHandler)

		server := &http.Server{
			Addr:    *listen,
			Handler: api.LoggingMiddleware(mux),
		}

		go func() {
			log.Printf("tankd %s listening on %s", version.Version, *listen)
			if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				log.Fatalf("failed to start server: %v", err)
			}
		}()

		<-ctx.Done()
		log.Println("shutting down HTTP server...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			log.Printf("HTTP server shutdown error: %v", err)
		}

		log.Printf("HTTP server routine stopped")
	}()

	wg.Wait()

	// halt both tracks before releasing the board
	if err := actuator.StopAll(); err != nil {
		log.Printf("failed to stop tracks on shutdown: %v", err)
	}
	log.Printf("Graceful shutdown complete")
}
