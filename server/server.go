package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/rs/cors"
	"github.com/zenazn/goji/web"
	"github.com/zenazn/goji/web/middleware"
	"golang.org/x/net/netutil"

	"github.com/janelia-flyem/bgrid/bgrid"
	"github.com/janelia-flyem/bgrid/blockmodel"
	"github.com/janelia-flyem/bgrid/geometry"
	"github.com/janelia-flyem/bgrid/project"
	"github.com/janelia-flyem/bgrid/storage"
	"github.com/janelia-flyem/bgrid/table"
)

const (
	// WebAPIPath prefixes every HTTP API route.
	WebAPIPath = "/api/"

	// ArrowStreamType is the media type of table bodies.
	ArrowStreamType = "application/vnd.apache.arrow.stream"

	shutdownDelay = 5 * time.Second
)

// Server exposes a project over HTTP.
type Server struct {
	proj       *project.Project
	secret     string
	privileges privileges
	readOnly   bool
	handler    http.Handler

	maxConnections int
}

// New returns a server for the project using the [server] and [auth]
// sections of the configuration.
func New(proj *project.Project, c *Config) (*Server, error) {
	privs, err := loadAuthFile(c.Auth.AuthFile)
	if err != nil {
		return nil, err
	}
	s := &Server{
		proj:       proj,
		secret:     c.Auth.SecretKey,
		privileges: privs,
		readOnly:   c.Server.ReadOnly,

		maxConnections: c.Server.MaxConnections,
	}

	mux := web.New()
	mux.Use(middleware.RequestID)
	mux.Use(middleware.Recoverer)
	mux.Use(logRequests)
	if len(c.Server.CORSDomains) != 0 {
		mux.Use(cors.New(cors.Options{
			AllowedOrigins:   c.Server.CORSDomains,
			AllowedMethods:   []string{"GET", "HEAD", "POST", "DELETE"},
			AllowedHeaders:   []string{"Authorization", "Content-Type"},
			AllowCredentials: true,
		}).Handler)
	}

	api := WebAPIPath
	mux.Get(api+"elements", s.listHandler)
	mux.Get(api+"changelog", s.changelogHandler)
	mux.Get(api+"storage/stats", s.statsHandler)
	mux.Get(api+"elements/:name/geometry", s.geometryHandler)
	mux.Get(api+"elements/:name/attributes", s.attributesHandler)
	mux.Get(api+"elements/:name/table", s.tableHandler)
	mux.Post(api+"elements/:name/table", s.authorized(s.writeHandler))
	mux.Post(api+"elements/:name/calculated", s.authorized(s.calculatedHandler))
	mux.Delete(api+"elements/:name/attributes/:attr", s.authorized(s.deleteAttributeHandler))
	mux.Delete(api+"elements/:name", s.authorized(s.deleteHandler))
	mux.NotFound(func(w http.ResponseWriter, r *http.Request) {
		httpError(w, r, http.StatusNotFound, "no such endpoint")
	})
	mux.Compile()
	s.handler = mux
	return s, nil
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.handler.ServeHTTP(w, r)
}

// Serve listens on addr until the context is cancelled, then shuts down
// gracefully.
func (s *Server) Serve(ctx context.Context, addr string) error {
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("web server failed to listen on %s: %v", addr, err)
	}
	if s.maxConnections > 0 {
		listener = netutil.LimitListener(listener, s.maxConnections)
	}
	srv := &http.Server{Handler: s}
	errCh := make(chan error, 1)
	go func() {
		bgrid.Infof("Web server listening at %s ...\n", listener.Addr())
		errCh <- srv.Serve(listener)
	}()
	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}
	bgrid.Infof("Shutting down web server, waiting up to %s\n", shutdownDelay)
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownDelay)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

func logRequests(c *web.C, h http.Handler) http.Handler {
	fn := func(w http.ResponseWriter, r *http.Request) {
		tlog := bgrid.NewTimeLog()
		h.ServeHTTP(w, r)
		tlog.Debugf("HTTP %s: %s [%s]\n", r.Method, r.URL, middleware.GetReqID(*c))
	}
	return http.HandlerFunc(fn)
}

// httpError logs and sends an error message.
func httpError(w http.ResponseWriter, r *http.Request, status int, format string, args ...interface{}) {
	message := fmt.Sprintf(format, args...)
	errorMsg := fmt.Sprintf("%s (%s).", message, r.URL.Path)
	if status >= http.StatusInternalServerError {
		bgrid.Errorf("%s\n", errorMsg)
	} else {
		bgrid.Debugf("%s\n", errorMsg)
	}
	http.Error(w, errorMsg, status)
}

// sendError maps sentinel errors to HTTP status codes.
func sendError(w http.ResponseWriter, r *http.Request, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, bgrid.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, bgrid.ErrAlreadyExists):
		status = http.StatusConflict
	case errors.Is(err, bgrid.ErrValue), errors.Is(err, bgrid.ErrValidation), errors.Is(err, bgrid.ErrMalformedIndex):
		status = http.StatusBadRequest
	}
	httpError(w, r, status, "%v", err)
}

func sendJSON(w http.ResponseWriter, r *http.Request, v interface{}) {
	sendJSONStatus(w, r, http.StatusOK, v)
}

func sendJSONStatus(w http.ResponseWriter, r *http.Request, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		bgrid.Errorf("Unable to send JSON for %s: %v\n", r.URL.Path, err)
	}
}

// project returns the project as the authenticated user, if any.
func (s *Server) project(c web.C) *project.Project {
	if user, ok := c.Env["user"].(string); ok {
		return s.proj.As(user)
	}
	return s.proj
}

func (s *Server) listHandler(c web.C, w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if parent := r.URL.Query().Get("parent"); parent != "" {
		names, err := s.proj.Children(ctx, parent)
		if err != nil {
			sendError(w, r, err)
			return
		}
		sendJSON(w, r, names)
		return
	}
	infos, err := s.proj.Store().ListElements(ctx)
	if err != nil {
		sendError(w, r, err)
		return
	}
	sendJSON(w, r, infos)
}

func (s *Server) changelogHandler(c web.C, w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	md, err := s.proj.Store().Project(ctx)
	if err != nil {
		sendError(w, r, err)
		return
	}
	if element := r.URL.Query().Get("element"); element != "" {
		sendJSON(w, r, md.History(element))
		return
	}
	sendJSON(w, r, md.Changelog)
}

func (s *Server) statsHandler(c web.C, w http.ResponseWriter, r *http.Request) {
	sendJSON(w, r, storage.StoreStats(s.proj.Store()))
}

func (s *Server) geometryHandler(c web.C, w http.ResponseWriter, r *http.Request) {
	geom, err := s.proj.Geometry(r.Context(), c.URLParams["name"])
	if err != nil {
		sendError(w, r, err)
		return
	}
	sendJSON(w, r, geom.ToPortable())
}

func (s *Server) attributesHandler(c web.C, w http.ResponseWriter, r *http.Request) {
	names, err := s.proj.BlockModelAttributes(r.Context(), c.URLParams["name"])
	if err != nil {
		sendError(w, r, err)
		return
	}
	sendJSON(w, r, names)
}

// readOptions parses ?attributes=a,b&query=...&index=0,5,9&encode=true.
func readOptions(r *http.Request) (blockmodel.ReadOptions, error) {
	q := r.URL.Query()
	var opts blockmodel.ReadOptions
	if attrs := q.Get("attributes"); attrs != "" {
		opts.Attributes = strings.Split(attrs, ",")
	}
	opts.Query = q.Get("query")
	if idx := q.Get("index"); idx != "" {
		for _, field := range strings.Split(idx, ",") {
			i, err := strconv.Atoi(strings.TrimSpace(field))
			if err != nil {
				return opts, fmt.Errorf("bad index position %q: %w", field, bgrid.ErrValue)
			}
			opts.IndexFilter = append(opts.IndexFilter, i)
		}
	}
	if enc := q.Get("encode"); enc != "" {
		b, err := strconv.ParseBool(enc)
		if err != nil {
			return opts, fmt.Errorf("bad encode setting %q: %w", enc, bgrid.ErrValue)
		}
		opts.EncodeIndex = b
	}
	return opts, nil
}

func (s *Server) tableHandler(c web.C, w http.ResponseWriter, r *http.Request) {
	opts, err := readOptions(r)
	if err != nil {
		sendError(w, r, err)
		return
	}
	t, err := s.proj.ReadBlockModel(r.Context(), c.URLParams["name"], opts)
	if err != nil {
		sendError(w, r, err)
		return
	}
	w.Header().Set("Content-Type", ArrowStreamType)
	if err := t.WriteIPC(w); err != nil {
		bgrid.Errorf("Unable to stream table %q: %v\n", c.URLParams["name"], err)
	}
}

// writeHandler stores an Arrow IPC stream body as a block model.  Query
// parameters: overwrite=true, kind=RegularBlockModel|TensorGridBlockModel,
// description.
func (s *Server) writeHandler(c web.C, w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	var opts project.WriteOptions
	if ow := q.Get("overwrite"); ow != "" {
		b, err := strconv.ParseBool(ow)
		if err != nil {
			sendError(w, r, fmt.Errorf("bad overwrite setting %q: %w", ow, bgrid.ErrValue))
			return
		}
		opts.AllowOverwrite = b
	}
	if k := q.Get("kind"); k != "" {
		kind, err := geometry.ParseKind(k)
		if err != nil {
			sendError(w, r, err)
			return
		}
		opts.Kind = kind
	}
	opts.Description = q.Get("description")

	t, err := table.ReadIPC(r.Body)
	if err != nil {
		sendError(w, r, fmt.Errorf("bad Arrow IPC body: %v: %w", err, bgrid.ErrValue))
		return
	}
	el, err := s.project(c).WriteBlockModel(r.Context(), t, c.URLParams["name"], opts)
	if err != nil {
		sendError(w, r, err)
		return
	}
	sendJSONStatus(w, r, http.StatusCreated, map[string]interface{}{
		"name":       el.Name,
		"type":       el.Kind().String(),
		"num_cells":  el.Geometry.NumCells(),
		"attributes": el.AvailableNames(),
	})
}

// calculatedHandler accepts a JSON object of attribute name to expression.
func (s *Server) calculatedHandler(c web.C, w http.ResponseWriter, r *http.Request) {
	var defs blockmodel.CalculatedAttributes
	if err := json.NewDecoder(r.Body).Decode(&defs); err != nil {
		sendError(w, r, fmt.Errorf("bad calculated attributes: %v: %w", err, bgrid.ErrValue))
		return
	}
	if err := s.project(c).AddCalculatedAttributes(r.Context(), c.URLParams["name"], defs...); err != nil {
		sendError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) deleteAttributeHandler(c web.C, w http.ResponseWriter, r *http.Request) {
	if err := s.project(c).DeleteAttribute(r.Context(), c.URLParams["name"], c.URLParams["attr"]); err != nil {
		sendError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) deleteHandler(c web.C, w http.ResponseWriter, r *http.Request) {
	if err := s.project(c).DeleteBlockModel(r.Context(), c.URLParams["name"]); err != nil {
		sendError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
