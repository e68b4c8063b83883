package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	sharedcfg "github.com/couchcryptid/storm-data-shared/config"
	"github.com/go-playground/validator/v10"
)

// Config holds all service settings, populated from environment variables.
type Config struct {
	MonitoredLocations []string `validate:"min=1,dive,required"`
	ArchiveBaseURL     string   `validate:"required,url"`
	ObservationBaseURL string   `validate:"required,url"`
	DownloadTimeout    time.Duration
	ResolveTimeout     time.Duration
	WorkDir            string
	GribDumpCommand    string `validate:"required"`

	// Relational store.
	DBDriver         string `validate:"oneof=mysql postgres"`
	DBHost           string `validate:"required,hostname_rfc1123|ip"`
	DBPort           int    `validate:"min=1,max=65535"`
	DBUser           string `validate:"required"`
	DBPassword       string
	DBName           string `validate:"required"`
	DBCreateDatabase bool

	// Scheduling and run derivation.
	CycleInterval     time.Duration
	RunCadence        time.Duration
	ColdStartLookback time.Duration

	HTTPAddr        string
	LogLevel        string `validate:"oneof=debug info warn warning error"`
	LogFormat       string `validate:"oneof=json text"`
	ShutdownTimeout time.Duration

	// Optional cycle report publication.
	KafkaEnabled     bool
	KafkaBrokers     []string
	KafkaReportTopic string
}

const (
	defaultArchiveBaseURL     = "https://meteo.arso.gov.si/uploads/probase/www/model/data"
	defaultObservationBaseURL = "https://meteo.arso.gov.si/uploads/probase/www/observ/surface/text/sl"
	defaultLocations          = "Kranj,Vogel,Ljubl-ana_bezigrad"
)

var structValidator = validator.New(validator.WithRequiredStructEnabled())

// Load reads configuration from environment variables, applying defaults where unset.
func Load() (*Config, error) {
	shutdownTimeout, err := sharedcfg.ParseShutdownTimeout()
	if err != nil {
		return nil, err
	}

	cfg := &Config{
		MonitoredLocations: parseList(sharedcfg.EnvOrDefault("MONITORED_LOCATIONS", defaultLocations)),
		ArchiveBaseURL:     strings.TrimRight(sharedcfg.EnvOrDefault("ARCHIVE_BASE_URL", defaultArchiveBaseURL), "/"),
		ObservationBaseURL: strings.TrimRight(sharedcfg.EnvOrDefault("OBSERVATION_BASE_URL", defaultObservationBaseURL), "/"),
		WorkDir:            sharedcfg.EnvOrDefault("WORK_DIR", os.TempDir()),
		GribDumpCommand:    sharedcfg.EnvOrDefault("GRIB_DUMP_COMMAND", "grib_dump"),

		DBDriver:   strings.ToLower(sharedcfg.EnvOrDefault("DB_DRIVER", "mysql")),
		DBHost:     sharedcfg.EnvOrDefault("DB_HOST", "localhost"),
		DBUser:     sharedcfg.EnvOrDefault("DB_USER", "root"),
		DBPassword: sharedcfg.EnvOrDefault("DB_PASSWORD", "password"),
		DBName:     sharedcfg.EnvOrDefault("DB_NAME", "Aladin"),

		HTTPAddr:        sharedcfg.EnvOrDefault("HTTP_ADDR", ":8080"),
		LogLevel:        strings.ToLower(sharedcfg.EnvOrDefault("LOG_LEVEL", "info")),
		LogFormat:       strings.ToLower(sharedcfg.EnvOrDefault("LOG_FORMAT", "json")),
		ShutdownTimeout: shutdownTimeout,

		KafkaBrokers:     sharedcfg.ParseBrokers(sharedcfg.EnvOrDefault("KAFKA_BROKERS", "localhost:9092")),
		KafkaReportTopic: sharedcfg.EnvOrDefault("KAFKA_REPORT_TOPIC", "nwp-ingest-cycles"),
	}

	durations := []struct {
		name string
		def  string
		dst  *time.Duration
	}{
		{"DOWNLOAD_TIMEOUT", "5m", &cfg.DownloadTimeout},
		{"RESOLVE_TIMEOUT", "30s", &cfg.ResolveTimeout},
		{"CYCLE_INTERVAL", "1h", &cfg.CycleInterval},
		{"RUN_CADENCE", "6h", &cfg.RunCadence},
		{"COLD_START_LOOKBACK", "30h", &cfg.ColdStartLookback},
	}
	for _, d := range durations {
		if *d.dst, err = parsePositiveDuration(d.name, d.def); err != nil {
			return nil, err
		}
	}

	if cfg.DBPort, err = parsePort(cfg.DBDriver); err != nil {
		return nil, err
	}
	if cfg.DBCreateDatabase, err = parseBool("DB_CREATE_DATABASE", cfg.DBDriver == "mysql"); err != nil {
		return nil, err
	}
	if cfg.KafkaEnabled, err = parseBool("KAFKA_ENABLED", false); err != nil {
		return nil, err
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	if err := structValidator.Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			return fmt.Errorf("invalid %s: failed %q check", envName(verrs[0].StructField()), verrs[0].Tag())
		}
		return err
	}

	if 24*time.Hour%c.RunCadence != 0 {
		return errors.New("RUN_CADENCE must divide 24h")
	}
	if c.ColdStartLookback < c.RunCadence {
		return errors.New("COLD_START_LOOKBACK must be at least RUN_CADENCE")
	}
	if c.KafkaEnabled {
		if len(c.KafkaBrokers) == 0 {
			return errors.New("KAFKA_BROKERS is required when KAFKA_ENABLED is true")
		}
		if c.KafkaReportTopic == "" {
			return errors.New("KAFKA_REPORT_TOPIC is required when KAFKA_ENABLED is true")
		}
	}
	return nil
}

// envNames maps struct fields to the variables they are read from.
var envNames = map[string]string{
	"MonitoredLocations": "MONITORED_LOCATIONS",
	"ArchiveBaseURL":     "ARCHIVE_BASE_URL",
	"ObservationBaseURL": "OBSERVATION_BASE_URL",
	"GribDumpCommand":    "GRIB_DUMP_COMMAND",
	"DBDriver":           "DB_DRIVER",
	"DBHost":             "DB_HOST",
	"DBPort":             "DB_PORT",
	"DBUser":             "DB_USER",
	"DBName":             "DB_NAME",
	"LogLevel":           "LOG_LEVEL",
	"LogFormat":          "LOG_FORMAT",
}

func envName(field string) string {
	if name, ok := envNames[field]; ok {
		return name
	}
	return field
}

func parseList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func parsePositiveDuration(name, def string) (time.Duration, error) {
	d, err := time.ParseDuration(sharedcfg.EnvOrDefault(name, def))
	if err != nil || d <= 0 {
		return 0, fmt.Errorf("invalid %s", name)
	}
	return d, nil
}

func parsePort(driver string) (int, error) {
	def := "3306"
	if driver == "postgres" {
		def = "5432"
	}
	port, err := strconv.Atoi(sharedcfg.EnvOrDefault("DB_PORT", def))
	if err != nil {
		return 0, errors.New("invalid DB_PORT")
	}
	return port, nil
}

func parseBool(name string, def bool) (bool, error) {
	v := os.Getenv(name)
	if v == "" {
		return def, nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return false, fmt.Errorf("invalid %s", name)
	}
	return b, nil
}
