/*
	This file serves block model tables over Arrow Flight.  Tickets are JSON
	FlightTickets; DoPut takes the element name from the descriptor path.
*/

package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"

	"github.com/apache/arrow/go/v14/arrow"
	"github.com/apache/arrow/go/v14/arrow/flight"
	"github.com/apache/arrow/go/v14/arrow/ipc"
	"github.com/apache/arrow/go/v14/arrow/memory"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"

	"github.com/janelia-flyem/bgrid/bgrid"
	"github.com/janelia-flyem/bgrid/blockmodel"
	"github.com/janelia-flyem/bgrid/project"
	"github.com/janelia-flyem/bgrid/table"
)

// FlightTicket selects a table to stream with DoGet.
type FlightTicket struct {
	Name        string   `json:"name"`
	Attributes  []string `json:"attributes,omitempty"`
	Query       string   `json:"query,omitempty"`
	IndexFilter []int    `json:"index,omitempty"`
	EncodeIndex bool     `json:"encode,omitempty"`
}

// Ticket returns the flight ticket for the request.
func (ft FlightTicket) Ticket() (*flight.Ticket, error) {
	data, err := json.Marshal(ft)
	if err != nil {
		return nil, err
	}
	return &flight.Ticket{Ticket: data}, nil
}

func (ft FlightTicket) readOptions() blockmodel.ReadOptions {
	return blockmodel.ReadOptions{
		Attributes:  ft.Attributes,
		Query:       ft.Query,
		IndexFilter: ft.IndexFilter,
		EncodeIndex: ft.EncodeIndex,
	}
}

// FlightServer implements the Arrow Flight service over the server's project.
type FlightServer struct {
	flight.BaseFlightServer

	srv    *Server
	server *grpc.Server
}

// NewFlightServer returns a Flight service sharing the HTTP server's project
// and authorization.
func (s *Server) NewFlightServer() *FlightServer {
	fs := &FlightServer{srv: s}
	fs.server = grpc.NewServer()
	flight.RegisterFlightServiceServer(fs.server, fs)
	return fs
}

// ListenAndServe serves on addr until the context is cancelled.
func (fs *FlightServer) ListenAndServe(ctx context.Context, addr string) error {
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("Arrow Flight server failed to listen on %s: %v", addr, err)
	}
	return fs.Serve(ctx, listener)
}

// Serve accepts connections on the listener until the context is cancelled.
func (fs *FlightServer) Serve(ctx context.Context, listener net.Listener) error {
	go func() {
		<-ctx.Done()
		bgrid.Infof("Shutting down Arrow Flight server\n")
		fs.server.GracefulStop()
	}()
	bgrid.Infof("Arrow Flight server listening on %s\n", listener.Addr())
	if err := fs.server.Serve(listener); err != nil {
		return fmt.Errorf("Arrow Flight server failed to serve: %v", err)
	}
	return nil
}

// flightError maps sentinel errors to gRPC status codes.
func flightError(err error) error {
	code := codes.Internal
	switch {
	case errors.Is(err, bgrid.ErrNotFound):
		code = codes.NotFound
	case errors.Is(err, bgrid.ErrAlreadyExists):
		code = codes.AlreadyExists
	case errors.Is(err, bgrid.ErrValue), errors.Is(err, bgrid.ErrValidation), errors.Is(err, bgrid.ErrMalformedIndex):
		code = codes.InvalidArgument
	}
	return status.Error(code, err.Error())
}

// writer returns the project for a write request, checking any token passed
// in the "authorization" metadata.
func (fs *FlightServer) writer(ctx context.Context) (*project.Project, error) {
	s := fs.srv
	if s.readOnly {
		return nil, status.Error(codes.PermissionDenied, "server is read-only")
	}
	if s.secret == "" {
		return s.proj, nil
	}
	var header string
	if md, ok := metadata.FromIncomingContext(ctx); ok {
		if values := md.Get("authorization"); len(values) != 0 {
			header = values[0]
		}
	}
	user, err := s.verifyToken(header)
	if err != nil {
		return nil, status.Error(codes.Unauthenticated, err.Error())
	}
	if !s.privileges.allows(user, "put") {
		return nil, status.Errorf(codes.PermissionDenied, "user %q is not authorized", user)
	}
	return s.proj.As(user), nil
}

func (fs *FlightServer) flightInfo(ctx context.Context, name string) (*flight.FlightInfo, error) {
	geom, err := fs.srv.proj.Geometry(ctx, name)
	if err != nil {
		return nil, err
	}
	tkt, err := FlightTicket{Name: name}.Ticket()
	if err != nil {
		return nil, err
	}
	return &flight.FlightInfo{
		FlightDescriptor: &flight.FlightDescriptor{Type: flight.DescriptorPATH, Path: []string{name}},
		Endpoint:         []*flight.FlightEndpoint{{Ticket: tkt}},
		TotalRecords:     int64(geom.NumCells()),
		TotalBytes:       -1,
	}, nil
}

// ListFlights sends one FlightInfo per stored element.
func (fs *FlightServer) ListFlights(criteria *flight.Criteria, stream flight.FlightService_ListFlightsServer) error {
	ctx := stream.Context()
	infos, err := fs.srv.proj.Store().ListElements(ctx)
	if err != nil {
		return flightError(err)
	}
	for _, info := range infos {
		fi, err := fs.flightInfo(ctx, info.Name)
		if err != nil {
			return flightError(err)
		}
		if err := stream.Send(fi); err != nil {
			return err
		}
	}
	return nil
}

// GetFlightInfo describes the element named by a path descriptor.
func (fs *FlightServer) GetFlightInfo(ctx context.Context, desc *flight.FlightDescriptor) (*flight.FlightInfo, error) {
	if desc.GetType() != flight.DescriptorPATH || len(desc.GetPath()) != 1 {
		return nil, status.Error(codes.InvalidArgument, "descriptor must be a single element name path")
	}
	fi, err := fs.flightInfo(ctx, desc.GetPath()[0])
	if err != nil {
		return nil, flightError(err)
	}
	return fi, nil
}

// DoGet streams the table selected by a JSON FlightTicket.
func (fs *FlightServer) DoGet(tkt *flight.Ticket, stream flight.FlightService_DoGetServer) error {
	var ft FlightTicket
	if err := json.Unmarshal(tkt.GetTicket(), &ft); err != nil {
		return status.Errorf(codes.InvalidArgument, "bad ticket: %v", err)
	}
	t, err := fs.srv.proj.ReadBlockModel(stream.Context(), ft.Name, ft.readOptions())
	if err != nil {
		return flightError(err)
	}
	mem := memory.NewGoAllocator()
	rec, err := t.ToRecord(mem)
	if err != nil {
		return flightError(err)
	}
	defer rec.Release()

	w := flight.NewRecordWriter(stream, ipc.WithSchema(rec.Schema()), ipc.WithAllocator(mem))
	if err := w.Write(rec); err != nil {
		w.Close()
		return err
	}
	bgrid.Debugf("Flight sent %d rows of %q\n", rec.NumRows(), ft.Name)
	return w.Close()
}

// DoPut stores an uploaded table as the element named by the descriptor
// path, replacing any existing element.
func (fs *FlightServer) DoPut(stream flight.FlightService_DoPutServer) error {
	ctx := stream.Context()
	proj, err := fs.writer(ctx)
	if err != nil {
		return err
	}
	reader, err := flight.NewRecordReader(stream)
	if err != nil {
		return status.Errorf(codes.InvalidArgument, "bad flight stream: %v", err)
	}
	defer reader.Release()
	desc := reader.LatestFlightDescriptor()
	if desc == nil || len(desc.GetPath()) != 1 {
		return status.Error(codes.InvalidArgument, "descriptor must be a single element name path")
	}
	name := desc.GetPath()[0]

	var recs []arrow.Record
	defer func() {
		for _, rec := range recs {
			rec.Release()
		}
	}()
	for reader.Next() {
		rec := reader.Record()
		rec.Retain()
		recs = append(recs, rec)
	}
	if err := reader.Err(); err != nil {
		return status.Errorf(codes.InvalidArgument, "bad flight stream: %v", err)
	}
	t, err := table.FromRecords(reader.Schema(), recs)
	if err != nil {
		return flightError(err)
	}
	el, err := proj.WriteBlockModel(ctx, t, name, project.WriteOptions{AllowOverwrite: true})
	if err != nil {
		return flightError(err)
	}
	msg := fmt.Sprintf(`{"name":%q,"num_cells":%d}`, el.Name, el.Geometry.NumCells())
	return stream.Send(&flight.PutResult{AppMetadata: []byte(msg)})
}
