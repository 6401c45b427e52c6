// Command-line interface to a block model store.
// Converts tables to and from stored grid elements and serves them over HTTP.

package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"syscall"

	"golang.org/x/sync/errgroup"

	"github.com/janelia-flyem/bgrid/bgrid"
	"github.com/janelia-flyem/bgrid/blockmodel"
	"github.com/janelia-flyem/bgrid/geometry"
	"github.com/janelia-flyem/bgrid/project"
	"github.com/janelia-flyem/bgrid/schema"
	"github.com/janelia-flyem/bgrid/server"
	"github.com/janelia-flyem/bgrid/storage"
	"github.com/janelia-flyem/bgrid/table"

	// Store engines selected by the [store] engine setting.
	_ "github.com/janelia-flyem/bgrid/storage/badger"
	_ "github.com/janelia-flyem/bgrid/storage/bucket"
)

var (
	// Display usage if true.
	showHelp = flag.Bool("help", false, "")

	// Run in verbose mode if true.
	runVerbose = flag.Bool("verbose", false, "")

	// Path to the TOML configuration.  Leave unset for an in-memory store.
	configFile = flag.String("config", "", "")

	// User recorded in the changelog.
	user = flag.String("user", "", "")

	// Address for http communication, overriding the configuration.
	httpAddress = flag.String("http", "", "")

	// Address for Arrow Flight communication, overriding the configuration.
	flightAddress = flag.String("flight", "", "")
)

const helpMessage = `
bgrid converts block model tables to and from stored grid elements

Usage: bgrid [options] <command>

      -config     =string   TOML configuration file.
      -user       =string   User recorded in the changelog.
      -http       =string   Address for HTTP communication.
      -flight     =string   Address for Arrow Flight communication.
      -verbose    (flag)    Run in verbose mode.
  -h, -help       (flag)    Show help message

Commands:

	about
	help
	serve
	list
	geometry  <name>
	import    <file.parquet|file.arrow> <name> [schema=<file>] [overwrite=true] [kind=<type>] [description=<text>]
	export    <name> <file.parquet|file.arrow> [attributes=a,b] [query=<expr>] [index=0,5,9] [encode=true] [compression=zstd]
	schema    <name> <schema.json>
	delete    <name> [attribute=<attr>]
	changelog [<name>]
	synth     <file.parquet|file.arrow> [shape=5,4,3] [size=1,1,0.5] [corner=0,0,0] [tensor=true]
	token     <user>

Element types are RegularBlockModel or TensorGridBlockModel.
`

func main() {
	flag.BoolVar(showHelp, "h", false, "Show help message")
	flag.Usage = func() { fmt.Print(helpMessage) }
	flag.Parse()

	if flag.NArg() >= 1 && strings.ToLower(flag.Args()[0]) == "help" {
		*showHelp = true
	}
	if *showHelp || flag.NArg() == 0 {
		flag.Usage()
		os.Exit(0)
	}
	if *runVerbose {
		bgrid.Verbose = true
		bgrid.SetLogMode(bgrid.DebugMode)
	}

	config := server.DefaultConfig()
	if *configFile != "" {
		var err error
		if config, err = server.LoadConfig(*configFile); err != nil {
			fmt.Fprintln(os.Stderr, err.Error())
			os.Exit(1)
		}
	}
	if *httpAddress != "" {
		config.Server.HTTPAddress = *httpAddress
	}
	if *flightAddress != "" {
		config.Server.FlightAddress = *flightAddress
	}
	config.Logging.SetLogger()
	defer bgrid.Shutdown()

	// Capture ctrl+c and other interrupts, then shut down gracefully.
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := DoCommand(ctx, config, Command(flag.Args()), os.Stdout); err != nil {
		fmt.Fprintln(os.Stderr, err.Error())
		stop()
		bgrid.Shutdown()
		os.Exit(1)
	}
}

// DoCommand serves as a switchboard for commands.
func DoCommand(ctx context.Context, config *server.Config, cmd Command, out io.Writer) error {
	switch cmd.Name() {
	case "":
		return fmt.Errorf("blank command")
	case "about":
		fmt.Fprintf(out, "bgrid store engines: %s\n", storage.EnginesAvailable())
		return nil
	case "synth":
		return DoSynth(cmd, out)
	case "token":
		var name string
		cmd.CommandArgs(&name)
		if name == "" || config.Auth.SecretKey == "" {
			return fmt.Errorf("token needs a user and a configured [auth] secret_key")
		}
		token, err := server.NewToken(config.Auth.SecretKey, name)
		if err != nil {
			return err
		}
		fmt.Fprintln(out, token)
		return nil
	}

	proj, closer, err := config.OpenProject(ctx, *user)
	if err != nil {
		return err
	}
	defer closer.Close()

	switch cmd.Name() {
	case "serve":
		return DoServe(ctx, proj, config)
	case "list":
		return DoList(ctx, proj, out)
	case "geometry":
		return DoGeometry(ctx, proj, cmd, out)
	case "import":
		return DoImport(ctx, proj, cmd, out)
	case "export":
		return DoExport(ctx, proj, cmd, out)
	case "schema":
		return DoSchema(ctx, proj, cmd, out)
	case "delete":
		return DoDelete(ctx, proj, cmd, out)
	case "changelog":
		return DoChangelog(ctx, proj, cmd, out)
	default:
		return fmt.Errorf("unknown command %q, try 'bgrid help'", cmd.Name())
	}
}

// DoServe runs the HTTP server and, if configured, the Arrow Flight server
// until interrupted.
func DoServe(ctx context.Context, proj *project.Project, config *server.Config) error {
	s, err := server.New(proj, config)
	if err != nil {
		return err
	}
	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return s.Serve(ctx, config.Server.HTTPAddress)
	})
	if addr := config.Server.FlightAddress; addr != "" {
		g.Go(func() error {
			return s.NewFlightServer().ListenAndServe(ctx, addr)
		})
	}
	return g.Wait()
}

// DoList prints every element with its type, shape and attributes.
func DoList(ctx context.Context, proj *project.Project, out io.Writer) error {
	infos, err := proj.Store().ListElements(ctx)
	if err != nil {
		return err
	}
	sort.Slice(infos, func(i, j int) bool { return infos[i].Name < infos[j].Name })
	for _, info := range infos {
		fmt.Fprintf(out, "%s\t%s\t%dx%dx%d\t%s\n", info.Name, info.Type,
			info.Shape[0], info.Shape[1], info.Shape[2], strings.Join(info.Attributes, ","))
	}
	return nil
}

// DoGeometry prints the portable JSON record of an element's geometry.
func DoGeometry(ctx context.Context, proj *project.Project, cmd Command, out io.Writer) error {
	var name string
	cmd.CommandArgs(&name)
	if name == "" {
		return fmt.Errorf("geometry command must be followed by an element name")
	}
	geom, err := proj.Geometry(ctx, name)
	if err != nil {
		return err
	}
	data, err := json.MarshalIndent(geom.ToPortable(), "", "  ")
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "%s\n", data)
	return nil
}

func isParquet(filename string) bool {
	ext := strings.ToLower(filepath.Ext(filename))
	return ext == ".parquet" || ext == ".pq"
}

func readTable(ctx context.Context, filename string) (*table.Table, error) {
	f, err := os.Open(filename)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	if isParquet(filename) {
		return table.ReadParquet(ctx, f)
	}
	return table.ReadIPC(f)
}

func writeTable(t *table.Table, filename string, compression bgrid.Compression) error {
	f, err := os.Create(filename)
	if err != nil {
		return err
	}
	if isParquet(filename) {
		err = t.WriteParquet(f, compression)
	} else {
		err = t.WriteIPC(f)
	}
	if err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

// DoImport converts a parquet or Arrow IPC file into a stored element.
func DoImport(ctx context.Context, proj *project.Project, cmd Command, out io.Writer) error {
	var filename, name string
	cmd.CommandArgs(&filename, &name)
	if filename == "" || name == "" {
		return fmt.Errorf("import command must be followed by a file and an element name")
	}
	var opts project.WriteOptions
	var err error
	if opts.AllowOverwrite, err = cmd.BoolParameter("overwrite"); err != nil {
		return err
	}
	if k, found := cmd.Parameter("kind"); found {
		if opts.Kind, err = geometry.ParseKind(k); err != nil {
			return err
		}
	}
	opts.Description, _ = cmd.Parameter("description")
	if path, found := cmd.Parameter("schema"); found {
		if opts.Schema, err = schema.ReadFile(path); err != nil {
			return err
		}
	}
	t, err := readTable(ctx, filename)
	if err != nil {
		return err
	}
	el, err := proj.WriteBlockModel(ctx, t, name, opts)
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "Wrote %s %q: %d cells, attributes %s\n", el.Kind(), name,
		el.Geometry.NumCells(), strings.Join(el.AvailableNames(), ","))
	return nil
}

// DoExport writes a stored element to a parquet or Arrow IPC file.
func DoExport(ctx context.Context, proj *project.Project, cmd Command, out io.Writer) error {
	var name, filename string
	cmd.CommandArgs(&name, &filename)
	if name == "" || filename == "" {
		return fmt.Errorf("export command must be followed by an element name and a file")
	}
	var opts blockmodel.ReadOptions
	var err error
	if attrs, found := cmd.Parameter("attributes"); found {
		opts.Attributes = strings.Split(attrs, ",")
	}
	opts.Query, _ = cmd.Parameter("query")
	if idx, found := cmd.Parameter("index"); found {
		for _, field := range strings.Split(idx, ",") {
			i, err := strconv.Atoi(strings.TrimSpace(field))
			if err != nil {
				return fmt.Errorf("bad index position %q: %w", field, bgrid.ErrValue)
			}
			opts.IndexFilter = append(opts.IndexFilter, i)
		}
	}
	if opts.EncodeIndex, err = cmd.BoolParameter("encode"); err != nil {
		return err
	}
	compression := bgrid.Zstd
	if c, found := cmd.Parameter("compression"); found {
		if compression, err = bgrid.ParseCompression(c); err != nil {
			return err
		}
	}
	t, err := proj.ReadBlockModel(ctx, name, opts)
	if err != nil {
		return err
	}
	if err := writeTable(t, filename, compression); err != nil {
		return err
	}
	fmt.Fprintf(out, "Exported %d rows of %q to %s\n", t.Len(), name, filename)
	return nil
}

// DoSchema validates an element against a schema file and stores the schema.
func DoSchema(ctx context.Context, proj *project.Project, cmd Command, out io.Writer) error {
	var name, filename string
	cmd.CommandArgs(&name, &filename)
	if name == "" || filename == "" {
		return fmt.Errorf("schema command must be followed by an element name and a schema file")
	}
	s, err := schema.ReadFile(filename)
	if err != nil {
		return err
	}
	if err := proj.WriteSchema(ctx, name, s); err != nil {
		return err
	}
	fmt.Fprintf(out, "Schema %q stored with %q\n", s.Title, name)
	return nil
}

// DoDelete removes an element or one of its attributes.
func DoDelete(ctx context.Context, proj *project.Project, cmd Command, out io.Writer) error {
	var name string
	cmd.CommandArgs(&name)
	if name == "" {
		return fmt.Errorf("delete command must be followed by an element name")
	}
	if attr, found := cmd.Parameter("attribute"); found {
		if err := proj.DeleteAttribute(ctx, name, attr); err != nil {
			return err
		}
		fmt.Fprintf(out, "Deleted attribute %q of %q\n", attr, name)
		return nil
	}
	if err := proj.DeleteBlockModel(ctx, name); err != nil {
		return err
	}
	fmt.Fprintf(out, "Deleted %q\n", name)
	return nil
}

// DoChangelog prints the changelog, optionally for one element.
func DoChangelog(ctx context.Context, proj *project.Project, cmd Command, out io.Writer) error {
	var name string
	cmd.CommandArgs(&name)
	log, err := proj.Changelog(ctx)
	if err != nil {
		return err
	}
	for _, msg := range log {
		if name != "" && msg.Element != name {
			continue
		}
		fmt.Fprintf(out, "%s\t%s\t%s\t%s\t%s\n", msg.Time.Format("2006-01-02 15:04:05"), msg.User, msg.Action, msg.Element, msg.Description)
	}
	return nil
}

// DoSynth writes a synthetic block model table for testing.
func DoSynth(cmd Command, out io.Writer) error {
	var filename string
	cmd.CommandArgs(&filename)
	if filename == "" {
		return fmt.Errorf("synth command must be followed by an output file")
	}
	shape := [3]int{5, 4, 3}
	if s, found := cmd.Parameter("shape"); found {
		v, err := parseTriple(s)
		if err != nil {
			return err
		}
		for i := range shape {
			shape[i] = int(v[i])
			if shape[i] < 1 || float64(shape[i]) != v[i] {
				return fmt.Errorf("shape %q must be positive integers: %w", s, bgrid.ErrValue)
			}
		}
	}
	size := [3]float64{1, 1, 1}
	if s, found := cmd.Parameter("size"); found {
		var err error
		if size, err = parseTriple(s); err != nil {
			return err
		}
	}
	var corner bgrid.Vector3d
	if s, found := cmd.Parameter("corner"); found {
		v, err := parseTriple(s)
		if err != nil {
			return err
		}
		corner = bgrid.Vector3d(v)
	}
	tensor, err := cmd.BoolParameter("tensor")
	if err != nil {
		return err
	}
	t := table.SyntheticBlockModel(shape, size, corner, tensor)
	if err := writeTable(t, filename, bgrid.Zstd); err != nil {
		return err
	}
	fmt.Fprintf(out, "Wrote %d synthetic cells to %s\n", t.Len(), filename)
	return nil
}
