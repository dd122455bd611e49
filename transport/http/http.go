// Package http implements spec.md §4.12's smart-HTTP transport: ref
// advertisement and the upload-pack/receive-pack request bodies, routed
// with github.com/gorilla/mux.
package http

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/grafana/monogit/log"
	"github.com/grafana/monogit/protocol"
	"github.com/grafana/monogit/store"
)

// Server wires an ObjectStore onto the three smart-HTTP endpoints.
type Server struct {
	Store  store.ObjectStore
	Logger log.Logger
}

// Router builds the mux.Router serving GET .../info/refs and the two POST
// pack-exchange endpoints.
func (s *Server) Router() *mux.Router {
	r := mux.NewRouter()
	r.HandleFunc("/{path:.*}/info/refs", s.handleInfoRefs).Methods(http.MethodGet)
	r.HandleFunc("/{path:.*}/git-upload-pack", s.handleUploadPack).Methods(http.MethodPost)
	r.HandleFunc("/{path:.*}/git-receive-pack", s.handleReceivePack).Methods(http.MethodPost)
	return r
}

func (s *Server) handleInfoRefs(w http.ResponseWriter, r *http.Request) {
	path := mux.Vars(r)["path"]
	service := r.URL.Query().Get("service")

	ctx := r.Context()

	var (
		data []byte
		err  error
	)
	switch service {
	case "git-upload-pack":
		data, err = protocol.AdvertiseFetch(ctx, s.Store, path, true)
	case "git-receive-pack":
		data, err = protocol.AdvertisePush(ctx, s.Store, path, true)
	default:
		http.Error(w, "unsupported or missing service parameter", http.StatusBadRequest)
		return
	}
	if err != nil {
		s.writeError(w, err)
		return
	}

	w.Header().Set("Content-Type", fmt.Sprintf("application/x-%s-advertisement", service))
	w.Header().Set("Cache-Control", "no-cache, max-age=0, must-revalidate")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}

func (s *Server) handleUploadPack(w http.ResponseWriter, r *http.Request) {
	path := mux.Vars(r)["path"]
	w.Header().Set("Content-Type", "application/x-git-upload-pack-result")
	w.WriteHeader(http.StatusOK)
	if err := protocol.RunUploadPack(r.Context(), s.Store, path, r.Body, w); err != nil {
		s.logError("upload-pack failed", path, err)
	}
}

func (s *Server) handleReceivePack(w http.ResponseWriter, r *http.Request) {
	path := mux.Vars(r)["path"]
	w.Header().Set("Content-Type", "application/x-git-receive-pack-result")
	w.WriteHeader(http.StatusOK)
	if err := protocol.RunReceivePack(r.Context(), s.Store, path, r.Body, w); err != nil {
		s.logError("receive-pack failed", path, err)
	}
}

// writeError is only reachable before any response body has been written
// (the info/refs advertisement path), so it's still safe to set a status
// code here; the pack-exchange handlers above have already committed 200
// by the time a protocol error can surface, matching a streamed response.
func (s *Server) writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	if errors.Is(err, protocol.ErrProtocolParse) {
		status = http.StatusBadRequest
	}
	http.Error(w, err.Error(), status)
}

func (s *Server) logError(msg, path string, err error) {
	if s.Logger != nil {
		s.Logger.Error(msg, "path", path, "error", err)
	}
}
