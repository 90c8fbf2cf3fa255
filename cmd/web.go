package cmd

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	gmux "github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/andrewmarklloyd/sentry-notifier/internal/pkg/config"
	"github.com/andrewmarklloyd/sentry-notifier/internal/pkg/fleet"
	"github.com/andrewmarklloyd/sentry-notifier/internal/pkg/socket"
)

const (
	get             = "GET"
	shutdownTimeout = 5 * time.Second
)

type vehicleLister interface {
	Vehicles() []fleet.VehicleState
}

type WebServer struct {
	httpServer *http.Server
	vehicles   vehicleLister
}

func newWebServer(monitorConfig config.MonitorConfig, vehicles vehicleLister, socketHub *socket.Hub) WebServer {
	router := gmux.NewRouter().StrictSlash(true)

	w := WebServer{
		vehicles: vehicles,
	}

	router.Handle("/healthz", http.HandlerFunc(healthHandler)).Methods(get)
	router.Handle("/metrics", promhttp.Handler()).Methods(get)
	router.Handle("/api/vehicles", http.HandlerFunc(w.vehiclesHandler)).Methods(get)
	if socketHub != nil {
		router.Handle("/ws", socketHub).Methods(get)
	}

	srv := &http.Server{
		Handler:      router,
		Addr:         "0.0.0.0:" + monitorConfig.Port,
		WriteTimeout: 15 * time.Second,
		ReadTimeout:  15 * time.Second,
	}

	w.httpServer = srv
	return w
}

func (s WebServer) start() {
	logger.Infof("Web server listening on %s", s.httpServer.Addr)
	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Errorf("web server: %s", err)
	}
}

func (s WebServer) shutdown() {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := s.httpServer.Shutdown(ctx); err != nil {
		logger.Errorf("shutting down web server: %s", err)
	}
}

func (s WebServer) vehiclesHandler(w http.ResponseWriter, req *http.Request) {
	vehicles, err := json.Marshal(s.vehicles.Vehicles())
	if err != nil {
		logger.Errorf("marshalling vehicles: %s", err)
		http.Error(w, `{"error":"Error getting vehicles"}`, http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	fmt.Fprintf(w, `{"vehicles":%s}`, string(vehicles))
}

func healthHandler(w http.ResponseWriter, req *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	fmt.Fprintf(w, `{"version":"%s"}`, version)
}
