package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/amaumene/grabarr/internal/models"
	"github.com/amaumene/grabarr/internal/naming"
	"github.com/amaumene/grabarr/internal/quality"
)

// Download client implementations
const (
	ClientSABnzbd = "sabnzbd"
	ClientNZBGet  = "nzbget"
	ClientTorBox  = "torbox"
)

// Event publisher backends
const (
	EventsLog   = "log"
	EventsNATS  = "nats"
	EventsKafka = "kafka"
)

// Config holds all application configuration
type Config struct {
	// Server
	ServerPort string `mapstructure:"server_port"`

	// Logging
	LogLevel  string `mapstructure:"log_level"`
	LogFormat string `mapstructure:"log_format"` // text or json

	// Paths
	ConfigDir        string `mapstructure:"-"`
	DatabaseFile     string `mapstructure:"database_file"`      // $CONFIG_DIR/grabarr.db
	IgnoredTermsFile string `mapstructure:"ignored_terms_file"` // $CONFIG_DIR/ignored.txt

	Indexers      []IndexerConfig        `mapstructure:"indexers"`
	Clients       []ClientConfig         `mapstructure:"clients"`
	Profiles      []quality.Profile      `mapstructure:"profiles"`
	CustomFormats []quality.CustomFormat `mapstructure:"custom_formats"`
	Media         MediaSettings          `mapstructure:"media"`
	Search        SearchConfig           `mapstructure:"search"`
	Download      DownloadConfig         `mapstructure:"download"`
	Blacklist     BlacklistConfig        `mapstructure:"blacklist"`
	Scheduler     SchedulerConfig        `mapstructure:"scheduler"`
	Events        EventsConfig           `mapstructure:"events"`
	Telemetry     TelemetryConfig        `mapstructure:"telemetry"`
}

// IndexerConfig describes one newznab indexer
type IndexerConfig struct {
	Name       string           `mapstructure:"name"`
	URL        string           `mapstructure:"url"`
	APIKey     string           `mapstructure:"api_key"`
	Enabled    bool             `mapstructure:"enabled"`
	Timeout    time.Duration    `mapstructure:"timeout"`
	Categories map[string][]int `mapstructure:"categories"`
}

// CategoriesFor returns the configured categories of a media type
func (i IndexerConfig) CategoriesFor(mt models.MediaType) []int {
	return i.Categories[string(mt)]
}

// ClientConfig describes one download client
type ClientConfig struct {
	Name           string        `mapstructure:"name"`
	Implementation string        `mapstructure:"implementation"`
	URL            string        `mapstructure:"url"`
	APIKey         string        `mapstructure:"api_key"`
	Username       string        `mapstructure:"username"`
	Password       string        `mapstructure:"password"`
	Category       string        `mapstructure:"category"`
	MountPath      string        `mapstructure:"mount_path"`
	Enabled        bool          `mapstructure:"enabled"`
	Priority       int           `mapstructure:"priority"`
	Timeout        time.Duration `mapstructure:"timeout"`
}

// MediaConfig holds the library settings of one media type
type MediaConfig struct {
	Root     string `mapstructure:"root"`
	Template string `mapstructure:"template"`
	Profile  string `mapstructure:"profile"`
}

// MediaSettings holds per media type library settings
type MediaSettings struct {
	TV    MediaConfig `mapstructure:"tv"`
	Movie MediaConfig `mapstructure:"movie"`
	Music MediaConfig `mapstructure:"music"`
	Book  MediaConfig `mapstructure:"book"`
}

// For returns the settings of a media type
func (m MediaSettings) For(mt models.MediaType) MediaConfig {
	switch mt {
	case models.MediaTypeTV:
		return m.TV
	case models.MediaTypeMovie:
		return m.Movie
	case models.MediaTypeMusic:
		return m.Music
	default:
		return m.Book
	}
}

func (m *MediaSettings) set(mt models.MediaType, media MediaConfig) {
	switch mt {
	case models.MediaTypeTV:
		m.TV = media
	case models.MediaTypeMovie:
		m.Movie = media
	case models.MediaTypeMusic:
		m.Music = media
	default:
		m.Book = media
	}
}

// SearchConfig tunes indexer searches
type SearchConfig struct {
	CacheTTL            time.Duration `mapstructure:"cache_ttl"`
	SimilarityThreshold float64       `mapstructure:"similarity_threshold"`
	MaxRetries          uint64        `mapstructure:"max_retries"`
}

// DownloadConfig tunes download monitoring
type DownloadConfig struct {
	StuckTimeout time.Duration `mapstructure:"stuck_timeout"`
}

// BlacklistConfig controls when and for how long releases are blacklisted
type BlacklistConfig struct {
	TTL         time.Duration `mapstructure:"ttl"`
	MaxFailures int           `mapstructure:"max_failures"`
}

// SchedulerConfig holds the interval of every background task
type SchedulerConfig struct {
	RefreshQueue   time.Duration `mapstructure:"refresh_queue"`
	WantedSearch   time.Duration `mapstructure:"wanted_search"`
	StuckDownloads time.Duration `mapstructure:"stuck_downloads"`
	BlacklistPrune time.Duration `mapstructure:"blacklist_prune"`
}

// EventsConfig selects where lifecycle events are published
type EventsConfig struct {
	Backend       string   `mapstructure:"backend"`
	NATSURL       string   `mapstructure:"nats_url"`
	SubjectPrefix string   `mapstructure:"subject_prefix"`
	KafkaBrokers  []string `mapstructure:"kafka_brokers"`
	KafkaTopic    string   `mapstructure:"kafka_topic"`
}

// TelemetryConfig controls tracing
type TelemetryConfig struct {
	Enabled     bool   `mapstructure:"enabled"`
	ServiceName string `mapstructure:"service_name"`
}

// Profile returns the quality profile with the given name
func (c *Config) Profile(name string) (quality.Profile, bool) {
	for _, p := range c.Profiles {
		if p.Name == name {
			return p, true
		}
	}
	return quality.Profile{}, false
}

// ProfileFor returns the profile of an entity, falling back to the media type default
func (c *Config) ProfileFor(mt models.MediaType, name string) (quality.Profile, bool) {
	if name == "" {
		name = c.Media.For(mt).Profile
	}
	return c.Profile(name)
}

// Load loads configuration from the environment, .env and $CONFIG_DIR/config.yaml
func Load() (*Config, error) {
	// Setup a dotenv reader FIRST so CONFIG_DIR can come from .env
	dotenv := viper.New()
	dotenv.SetConfigName(".env")
	dotenv.SetConfigType("env")
	dotenv.AddConfigPath(".")

	// Load .env file if it exists (ignore if not found)
	if err := dotenv.ReadInConfig(); err == nil {
		for _, key := range dotenv.AllKeys() {
			name := strings.ToUpper(key)
			if _, ok := os.LookupEnv(name); !ok {
				_ = os.Setenv(name, dotenv.GetString(key))
			}
		}
	}

	configDir := os.Getenv("CONFIG_DIR")
	if configDir == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("failed to get home directory: %w", err)
		}
		configDir = filepath.Join(homeDir, ".config", "grabarr")
	}

	return LoadFrom(configDir)
}

// LoadFrom loads configuration from config.yaml in the given directory
func LoadFrom(configDir string) (*Config, error) {
	// Convert relative path to absolute path
	absPath, err := filepath.Abs(configDir)
	if err != nil {
		return nil, fmt.Errorf("failed to get absolute path for CONFIG_DIR: %w", err)
	}
	configDir = absPath

	// Create config directory if it doesn't exist
	if err := os.MkdirAll(configDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create config directory: %w", err)
	}

	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(configDir)
	v.SetEnvPrefix("GRABARR")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v, configDir)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}
	cfg.ConfigDir = configDir
	applyItemDefaults(&cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper, configDir string) {
	v.SetDefault("server_port", "8080")
	v.SetDefault("log_level", "info")
	v.SetDefault("log_format", "text")
	v.SetDefault("database_file", filepath.Join(configDir, "grabarr.db"))
	v.SetDefault("ignored_terms_file", filepath.Join(configDir, "ignored.txt"))

	v.SetDefault("search.cache_ttl", 5*time.Minute)
	v.SetDefault("search.similarity_threshold", 0.85)
	v.SetDefault("search.max_retries", 2)

	v.SetDefault("download.stuck_timeout", 30*time.Minute)

	v.SetDefault("blacklist.ttl", 7*24*time.Hour)
	v.SetDefault("blacklist.max_failures", 2)

	v.SetDefault("scheduler.refresh_queue", 15*time.Second)
	v.SetDefault("scheduler.wanted_search", time.Hour)
	v.SetDefault("scheduler.stuck_downloads", 10*time.Minute)
	v.SetDefault("scheduler.blacklist_prune", 6*time.Hour)

	v.SetDefault("events.backend", EventsLog)
	v.SetDefault("events.subject_prefix", "grabarr")
	v.SetDefault("events.kafka_topic", "grabarr.events")

	v.SetDefault("telemetry.enabled", false)
	v.SetDefault("telemetry.service_name", "grabarr")

	v.SetDefault("media.tv.template", naming.DefaultTemplates[models.MediaTypeTV])
	v.SetDefault("media.movie.template", naming.DefaultTemplates[models.MediaTypeMovie])
	v.SetDefault("media.music.template", naming.DefaultTemplates[models.MediaTypeMusic])
	v.SetDefault("media.book.template", naming.DefaultTemplates[models.MediaTypeBook])
}

// applyItemDefaults fills defaults inside list entries, which viper cannot reach
func applyItemDefaults(cfg *Config) {
	for i := range cfg.Indexers {
		if cfg.Indexers[i].Timeout == 0 {
			cfg.Indexers[i].Timeout = 30 * time.Second
		}
	}
	for i := range cfg.Clients {
		if cfg.Clients[i].Timeout == 0 {
			cfg.Clients[i].Timeout = 30 * time.Second
		}
		cfg.Clients[i].Implementation = strings.ToLower(cfg.Clients[i].Implementation)
	}
	if len(cfg.Profiles) == 0 {
		cfg.Profiles = quality.DefaultProfiles()
		for _, mt := range models.MediaTypes {
			media := cfg.Media.For(mt)
			if media.Profile == "" {
				media.Profile = quality.DefaultProfileName(mt)
				cfg.Media.set(mt, media)
			}
		}
	}
}

// Validate rejects configuration that cannot be run
func (c *Config) Validate() error {
	for _, idx := range c.Indexers {
		if idx.Name == "" {
			return fmt.Errorf("indexer name is required")
		}
		if idx.URL == "" {
			return fmt.Errorf("indexer %q: url is required", idx.Name)
		}
		if idx.APIKey == "" {
			return fmt.Errorf("indexer %q: api_key is required", idx.Name)
		}
		for mt := range idx.Categories {
			if _, err := models.ParseMediaType(mt); err != nil {
				return fmt.Errorf("indexer %q: %w", idx.Name, err)
			}
		}
	}

	for _, cl := range c.Clients {
		if cl.Name == "" {
			return fmt.Errorf("client name is required")
		}
		switch cl.Implementation {
		case ClientSABnzbd, ClientNZBGet:
			if cl.URL == "" {
				return fmt.Errorf("client %q: url is required", cl.Name)
			}
		case ClientTorBox:
			if cl.APIKey == "" {
				return fmt.Errorf("client %q: api_key is required", cl.Name)
			}
		default:
			return fmt.Errorf("client %q: unsupported implementation %q", cl.Name, cl.Implementation)
		}
	}

	names := make(map[string]bool, len(c.Profiles))
	for _, p := range c.Profiles {
		if err := p.Validate(); err != nil {
			return err
		}
		if names[p.Name] {
			return fmt.Errorf("duplicate quality profile %q", p.Name)
		}
		names[p.Name] = true
	}

	for _, cf := range c.CustomFormats {
		if err := cf.Validate(); err != nil {
			return err
		}
	}

	for _, mt := range models.MediaTypes {
		media := c.Media.For(mt)
		if media.Profile != "" && !names[media.Profile] {
			return fmt.Errorf("media %s: unknown quality profile %q", mt, media.Profile)
		}
		if err := naming.Validate(mt, media.Template); err != nil {
			return fmt.Errorf("media %s: %w", mt, err)
		}
	}

	if c.Blacklist.MaxFailures < 1 {
		return fmt.Errorf("blacklist.max_failures must be at least 1")
	}
	switch c.Events.Backend {
	case EventsLog:
	case EventsNATS:
		if c.Events.NATSURL == "" {
			return fmt.Errorf("events.nats_url is required for the nats backend")
		}
	case EventsKafka:
		if len(c.Events.KafkaBrokers) == 0 {
			return fmt.Errorf("events.kafka_brokers is required for the kafka backend")
		}
	default:
		return fmt.Errorf("unsupported events backend %q", c.Events.Backend)
	}

	return nil
}
