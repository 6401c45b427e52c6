package server

import (
	"context"
	"fmt"
	"os"

	"github.com/BurntSushi/toml"

	"github.com/janelia-flyem/bgrid/bgrid"
	"github.com/janelia-flyem/bgrid/project"
	"github.com/janelia-flyem/bgrid/storage"
)

const (
	// DefaultWebAddress is the default address of the HTTP server.
	DefaultWebAddress = "localhost:8000"

	// DefaultEngine is used when the [store] section names no engine.
	DefaultEngine = "badger"

	// DefaultUser is recorded in the changelog when no user is configured.
	DefaultUser = "bgrid"
)

// Config is the TOML configuration shared by the server and command line.
type Config struct {
	Server  serverConfig
	Logging bgrid.LogConfig
	Store   map[string]interface{}
	Cache   cacheConfig
	Kafka   storage.KafkaConfig
	Auth    authConfig

	// location is the file the configuration was read from.
	location string
}

type serverConfig struct {
	HTTPAddress   string   `toml:"httpAddress"`
	FlightAddress string   `toml:"flightAddress"` // Arrow Flight service, off if empty
	Host          string   // identifies this server in kafka topics
	User          string   // default changelog user
	CORSDomains   []string `toml:"cors_domains"`
	ReadOnly      bool     `toml:"read_only"`

	// MaxConnections caps simultaneous HTTP connections if positive.
	MaxConnections int `toml:"max_connections"`
}

type cacheConfig struct {
	Size int // megabytes
}

// DefaultConfig returns the configuration used when no file is given: a
// memory store served on DefaultWebAddress.
func DefaultConfig() *Config {
	return &Config{
		Server: serverConfig{HTTPAddress: DefaultWebAddress},
		Store:  map[string]interface{}{"engine": "memory"},
	}
}

// LoadConfig reads a TOML configuration file.  Relative paths are taken
// relative to the file's own directory.
func LoadConfig(filename string) (*Config, error) {
	if filename == "" {
		return nil, fmt.Errorf("no TOML configuration file provided: %w", bgrid.ErrValue)
	}
	c := DefaultConfig()
	c.Store = nil
	if _, err := toml.DecodeFile(filename, c); err != nil {
		return nil, fmt.Errorf("could not decode TOML config %q: %v: %w", filename, err, bgrid.ErrValue)
	}
	c.location = filename
	if err := c.convertPathsToAbsolute(filename); err != nil {
		return nil, err
	}
	return c, nil
}

// Location returns the configuration file path or "" for a default config.
func (c *Config) Location() string {
	return c.location
}

func (c *Config) convertPathsToAbsolute(configPath string) error {
	// [logging].logfile
	c.Logging.Logfile = bgrid.ConvertToAbsolute(c.Logging.Logfile, configPath)

	// [auth].auth_file
	c.Auth.AuthFile = bgrid.ConvertToAbsolute(c.Auth.AuthFile, configPath)

	// [store].path
	if p, ok := c.Store["path"]; ok {
		path, ok := p.(string)
		if !ok {
			return fmt.Errorf("don't understand store path setting %v: %w", p, bgrid.ErrValue)
		}
		c.Store["path"] = bgrid.ConvertToAbsolute(path, configPath)
	}
	return nil
}

// StoreConfig returns the [store] section for the engine it names.
func (c *Config) StoreConfig() bgrid.StoreConfig {
	settings := make(map[string]interface{}, len(c.Store))
	engine := DefaultEngine
	for k, v := range c.Store {
		if k == "engine" {
			if name, ok := v.(string); ok && name != "" {
				engine = name
			}
			continue
		}
		settings[k] = v
	}
	return bgrid.NewStoreConfig(engine, settings)
}

// HostID returns the configured host or the machine host name.
func (c *Config) HostID() string {
	if c.Server.Host != "" {
		return c.Server.Host
	}
	host, err := os.Hostname()
	if err != nil {
		bgrid.Errorf("Unable to get host name, using 'localhost': %v\n", err)
		return "localhost"
	}
	return host
}

// OpenProject opens the configured store, wrapping it in a cache and kafka
// publisher when those are configured.  Closing the returned project's store
// and the publisher is the caller's job; see Closer.
func (c *Config) OpenProject(ctx context.Context, user string) (*project.Project, Closer, error) {
	sc := c.StoreConfig()
	kv, err := storage.Open(sc)
	if err != nil {
		return nil, Closer{}, err
	}
	var store storage.Store = kv
	if c.Cache.Size > 0 {
		numBytes := c.Cache.Size * bgrid.Mega
		bgrid.Infof("Caching decoded elements in %s\n", bgrid.HumanBytes(numBytes))
		store = storage.NewCachedStore(store, numBytes)
	}
	closer := Closer{store: store}

	var opts []project.Option
	if len(c.Kafka.Servers) != 0 {
		pub, err := storage.NewKafkaPublisher(c.Kafka, c.HostID())
		if err != nil {
			closer.Close()
			return nil, Closer{}, err
		}
		closer.publisher = pub
		opts = append(opts, project.WithPublisher(pub))
	}

	if user == "" {
		user = c.Server.User
	}
	if user == "" {
		user = DefaultUser
	}
	proj, err := project.Open(ctx, store, user, opts...)
	if err != nil {
		closer.Close()
		return nil, Closer{}, err
	}
	bgrid.Infof("Opened %s store for user %q\n", sc.Engine, user)
	return proj, closer, nil
}

// Closer releases what Config.OpenProject acquired.
type Closer struct {
	store     storage.Store
	publisher storage.Publisher
}

// Close flushes the publisher and closes the store.
func (c Closer) Close() error {
	if c.publisher != nil {
		if err := c.publisher.Close(); err != nil {
			bgrid.Errorf("Error closing change publisher: %v\n", err)
		}
	}
	if c.store == nil {
		return nil
	}
	return c.store.Close()
}
