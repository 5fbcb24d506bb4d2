package api

import (
	"net"
	"net/http"

	"github.com/go-errors/errors"
	"github.com/gorilla/mux"
	"github.com/the-lightning-land/stationd/daemon"
)

// check Api compliance to its interface during compile time
var _ daemon.Api = (*Api)(nil)

type Config struct {
	Log Logger
}

type Api struct {
	daemon *daemon.Daemon
	router *mux.Router
	log    Logger
}

func New(config *Config) *Api {
	api := &Api{
		router: mux.NewRouter(),
	}

	if config.Log != nil {
		api.log = config.Log
	} else {
		api.log = noopLogger{}
	}

	api.router.Handle("/api/v1/network", api.handleGetNetwork()).Methods(http.MethodGet)
	api.router.Handle("/api/v1/network", api.handlePostNetwork()).Methods(http.MethodPost)
	api.router.Handle("/api/v1/network", api.handleDeleteNetwork()).Methods(http.MethodDelete)
	api.router.Handle("/api/v1/network/scan", api.handleGetScan()).Methods(http.MethodGet)
	api.router.Handle("/api/v1/network/events", api.handleGetNetworkEvents()).Methods(http.MethodGet)

	return api
}

func (a *Api) SetDaemon(daemon *daemon.Daemon) {
	a.daemon = daemon
}

func (a *Api) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	a.router.ServeHTTP(w, r)
}

func (a *Api) Serve(l net.Listener) error {
	err := http.Serve(l, a.router)
	if err != nil {
		return errors.Errorf("Unable to serve api: %v", err)
	}

	return nil
}
