package handler

import (
	"net/http"

	"github.com/gorilla/mux"
	"github.com/rs/cors"

	"busybee/internal/apierror"
	"busybee/internal/logger"
	"busybee/pkg"
)

// RPCPrefix is where the RPC surface is mounted, apart from the REST routes.
const RPCPrefix = "/api/trpc/"

// NewRouter mounts the REST routes and the RPC handler on one router and
// wraps it with CORS, request logging and panic recovery.
func NewRouter(tasks *TaskHandler, rpc http.Handler, log logger.Logger) http.Handler {
	r := mux.NewRouter()
	tasks.RegisterRoutes(r)
	if rpc != nil {
		r.PathPrefix(RPCPrefix).Handler(http.StripPrefix(RPCPrefix, rpc))
	}

	r.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		pkg.WriteError(w, http.StatusNotFound, "Not found")
	})
	r.MethodNotAllowedHandler = http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		pkg.WriteError(w, http.StatusMethodNotAllowed, "Method not allowed")
	})

	c := cors.New(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{
			http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodOptions,
		},
		AllowedHeaders: []string{"*"},
		ExposedHeaders: []string{logger.TraceparentHeader},
	})

	return c.Handler(logger.RequestLogger(log)(apierror.Recover(r)))
}
