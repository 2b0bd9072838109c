// Package api exposes the teleoperation HTTP surface: discrete and
// gamepad driving, crane control, the MJPEG video feed, and status.
package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/pi-tank/tankd/internal/arbiter"
	"github.com/pi-tank/tankd/internal/camera"
	"github.com/pi-tank/tankd/internal/monitoring"
	"github.com/pi-tank/tankd/internal/motion"
	"github.com/pi-tank/tankd/internal/version"
)

// ANSI escape codes for cyan and reset
const colorCyan = "\033[36m"
const colorReset = "\033[0m"
const colorYellow = "\033[33m"
const colorBoldGreen = "\033[1;32m"
const colorBoldRed = "\033[1;31m"

type Server struct {
	arb *arbiter.Arbiter
	act *motion.Actuator
	cam *camera.Pipeline
}

func NewServer(arb *arbiter.Arbiter, act *motion.Actuator, cam *camera.Pipeline) *Server {
	return &Server{
		arb: arb,
		act: act,
		cam: cam,
	}
}

type loggingResponseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (lrw *loggingResponseWriter) WriteHeader(code int) {
	lrw.statusCode = code
	lrw.ResponseWriter.WriteHeader(code)
}

func (lrw *loggingResponseWriter) Flush() {
	if flusher, ok := lrw.ResponseWriter.(http.Flusher); ok {
		flusher.Flush()
	}
}

func statusCodeColor(statusCode int) string {
	switch {
	case statusCode >= 200 && statusCode < 300:
		return colorBoldGreen + strconv.Itoa(statusCode) + colorReset
	case statusCode >= 300 && statusCode < 400:
		return colorYellow + strconv.Itoa(statusCode) + colorReset
	case statusCode >= 400:
		return colorBoldRed + strconv.Itoa(statusCode) + colorReset
	default:
		return strconv.Itoa(statusCode)
	}
}

// LoggingMiddleware logs method, path, query, status, and duration
func LoggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		lrw := &loggingResponseWriter{w, http.StatusOK}
		next.ServeHTTP(lrw, r)
		monitoring.Logf(
			"[%s] %s %s%s%s %vms",
			statusCodeColor(lrw.statusCode), r.Method,
			colorCyan, r.RequestURI, colorReset,
			float64(time.Since(start).Nanoseconds())/1e6,
		)
	})
}

// RegisterRoutes mounts the teleoperation handlers on mux. They are
// registered individually so the caller can share the mux with static
// assets and debug routes.
func (s *Server) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/control", s.controlHandler)
	mux.HandleFunc("/gamepad_control", s.gamepadControlHandler)
	mux.HandleFunc("/crane_control", s.craneControlHandler)
	mux.HandleFunc("/crane_status", s.craneStatusHandler)
	mux.HandleFunc("/status", s.statusHandler)
	mux.HandleFunc("/video_feed", s.videoFeedHandler)
}

func (s *Server) ServeMux() *http.ServeMux {
	mux := http.NewServeMux()
	s.RegisterRoutes(mux)
	return mux
}

func (s *Server) writeJSONError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": msg})
}

func (s *Server) writeJSON(w http.ResponseWriter, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(data); err != nil {
		monitoring.Logf("failed to encode json response: %v", err)
	}
}

// submitError maps an arbiter error onto an HTTP status. Malformed or
// out-of-range input is the caller's fault; anything else is a board
// failure.
func (s *Server) submitError(w http.ResponseWriter, err error) {
	if arbiter.IsInputError(err) {
		s.writeJSONError(w, http.StatusBadRequest, err.Error())
		return
	}
	s.writeJSONError(w, http.StatusInternalServerError, fmt.Sprintf("actuation failed: %v", err))
}

func (s *Server) controlHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		s.writeJSONError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	var req struct {
		Command string `json:"command"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeJSONError(w, http.StatusBadRequest, "Invalid JSON body")
		return
	}
	if err := s.arb.SubmitDiscrete(req.Command); err != nil {
		s.submitError(w, err)
		return
	}
	s.writeJSON(w, map[string]string{"status": "ok", "command": req.Command})
}

func (s *Server) gamepadControlHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		s.writeJSONError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	// Dual-stick polls carry left_stick_y/right_stick_y; single-stick
	// polls carry stick_y/stick_x. Presence decides the mixing path, so
	// the fields stay pointers.
	var req struct {
		LeftStickY  *float64 `json:"left_stick_y"`
		RightStickY *float64 `json:"right_stick_y"`
		StickY      *float64 `json:"stick_y"`
		StickX      *float64 `json:"stick_x"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeJSONError(w, http.StatusBadRequest, "Invalid JSON body")
		return
	}
	var in arbiter.AnalogInput
	switch {
	case req.LeftStickY != nil && req.RightStickY != nil:
		in = arbiter.AnalogInput{LeftY: *req.LeftStickY, RightY: req.RightStickY}
	case req.StickY != nil && req.StickX != nil:
		in = arbiter.AnalogInput{LeftY: *req.StickY, X: *req.StickX}
	default:
		s.writeJSONError(w, http.StatusBadRequest,
			"Expected left_stick_y and right_stick_y, or stick_y and stick_x")
		return
	}
	if err := s.arb.SubmitAnalog(in); err != nil {
		s.submitError(w, err)
		return
	}
	s.writeJSON(w, map[string]string{"status": "ok"})
}

func (s *Server) craneControlHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		s.writeJSONError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	var req struct {
		Command string `json:"command"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeJSONError(w, http.StatusBadRequest, "Invalid JSON body")
		return
	}
	if err := s.arb.SubmitCrane(req.Command); err != nil {
		s.submitError(w, err)
		return
	}
	s.writeJSON(w, map[string]interface{}{
		"status": "ok",
		"crane":  s.act.CraneState(),
	})
}

func (s *Server) craneStatusHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.writeJSONError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}
	s.writeJSON(w, s.act.CraneState())
}

// StatusResponse is the aggregate hardware snapshot served at /status.
type StatusResponse struct {
	Motors          motion.MotorsSnapshot `json:"motors"`
	Crane           motion.CraneStatus    `json:"crane"`
	CameraStreaming bool                  `json:"camera_streaming"`
	CameraMode      camera.Mode           `json:"camera_mode"`
	BoardSimulated  bool                  `json:"board_simulated"`
	Version         string                `json:"version"`
}

func (s *Server) statusHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.writeJSONError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}
	s.writeJSON(w, StatusResponse{
		Motors:          s.act.Motors(),
		Crane:           s.act.CraneState(),
		CameraStreaming: s.cam.Streaming(),
		CameraMode:      s.cam.Mode(),
		BoardSimulated:  s.act.Simulated(),
		Version:         version.Version,
	})
}

const mjpegBoundary = "frame"

// videoFeedHandler streams frames as multipart/x-mixed-replace until the
// client disconnects. Each client reads at its own pace; slow clients skip
// frames rather than delay the pipeline.
func (s *Server) videoFeedHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.writeJSONError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}
	flusher, ok := w.(http.Flusher)
	if !ok {
		s.writeJSONError(w, http.StatusInternalServerError, "Streaming not supported")
		return
	}

	w.Header().Set("Content-Type", "multipart/x-mixed-replace; boundary="+mjpegBoundary)
	w.Header().Set("Cache-Control", "no-store")

	var last uint64
	for {
		frame, err := s.cam.Hub().Next(r.Context(), last)
		if err != nil {
			return
		}
		last = frame.Seq
		_, err = fmt.Fprintf(w, "--%s\r\nContent-Type: image/jpeg\r\nContent-Length: %d\r\n\r\n", mjpegBoundary, len(frame.Data))
		if err != nil {
			return
		}
		if _, err := w.Write(frame.Data); err != nil {
			return
		}
		if _, err := fmt.Fprint(w, "\r\n"); err != nil {
			return
		}
		flusher.Flush()
	}
}
