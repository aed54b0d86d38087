package http

import (
	"net/http"
	"runtime"
)

// VersionResponse is the body returned by the version endpoint.
type VersionResponse struct {
	Version   string `json:"version"`
	GoVersion string `json:"go_version"`
}

func HandleHealthCheck(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
}

// HandleReadyCheck answers 503 until readinessCheck reports true.
func HandleReadyCheck(readinessCheck func() bool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !readinessCheck() {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
	}
}

func HandleVersion(version string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, VersionResponse{
			Version:   version,
			GoVersion: runtime.Version(),
		})
	}
}
