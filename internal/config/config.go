package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"

	"gopkg.in/yaml.v3"

	"github.com/annel0/rpgng/internal/htable"
	"github.com/annel0/rpgng/internal/logging"
)

// ErrInvalidConfig возвращается Validate.
var ErrInvalidConfig = errors.New("config: invalid")

// Config корневая структура конфигурации приложения.
type Config struct {
	Log       LogConfig       `yaml:"log"`
	Registry  RegistryConfig  `yaml:"registry"`
	Inventory InventoryConfig `yaml:"inventory"`
	Inspector InspectorConfig `yaml:"inspector"`
	Telemetry TelemetryConfig `yaml:"telemetry"`
	Events    EventsConfig    `yaml:"events"`
}

type LogConfig struct {
	Level        string            `yaml:"level"`
	ConsoleLevel string            `yaml:"console_level"`
	File         string            `yaml:"file"`
	// Components задаёт пороги отдельных компонентов: registry: warn.
	Components   map[string]string `yaml:"components,omitempty"`
}

type RegistryConfig struct {
	FirstEntityID     uint32 `yaml:"first_entity_id"`
	InitialCapacity   int    `yaml:"initial_capacity"`
	ComponentCapacity int    `yaml:"component_capacity"`
	NameMaxLen        int    `yaml:"name_max_len"`
	Hash              string `yaml:"hash"`
	MaxBuckets        int    `yaml:"max_buckets"`
}

type InventoryConfig struct {
	MaxItems        int `yaml:"max_items"`
	CatalogCapacity int `yaml:"catalog_capacity"`
}

type InspectorConfig struct {
	Enabled bool   `yaml:"enabled"`
	Addr    string `yaml:"addr"`
}

type TelemetryConfig struct {
	Enabled bool   `yaml:"enabled"`
	Service string `yaml:"service"`
}

// EventsConfig описывает пересылку событий жизненного цикла в JetStream.
// Пустой NATSURL отключает пересылку.
type EventsConfig struct {
	NATSURL   string `yaml:"nats_url"`
	Stream    string `yaml:"stream"`
	Retention int    `yaml:"retention_hours"`
}

// Default возвращает конфигурацию по умолчанию.
func Default() *Config {
	return &Config{
		Log: LogConfig{Level: "debug", ConsoleLevel: "info"},
		Registry: RegistryConfig{
			FirstEntityID:     1,
			InitialCapacity:   16,
			ComponentCapacity: 4,
			NameMaxLen:        256,
			Hash:              "oaat",
		},
		Inventory: InventoryConfig{MaxItems: 256, CatalogCapacity: 16},
		Inspector: InspectorConfig{Addr: ":8088"},
		Telemetry: TelemetryConfig{Service: "rpgng"},
		Events:    EventsConfig{Stream: "RPGNG_EVENTS", Retention: 24},
	}
}

// InspectorAddr возвращает адрес инспектора с приоритетом: config -> env -> default
func (c *InspectorConfig) InspectorAddr() string {
	return getWithEnvFallback(c.Addr, "RPGNG_INSPECTOR_ADDR", ":8088")
}

// URL возвращает адрес NATS с приоритетом: config -> env.
func (c *EventsConfig) URL() string {
	return getWithEnvFallback(c.NATSURL, "RPGNG_NATS_URL", "")
}

func getWithEnvFallback(value, envVar, def string) string {
	if value != "" {
		return value
	}
	if envVal := os.Getenv(envVar); envVal != "" {
		return envVal
	}
	return def
}

// RetentionHours возвращает срок хранения событий с учётом RPGNG_EVENTS_RETENTION.
func (c *EventsConfig) RetentionHours() int {
	if c.Retention > 0 {
		return c.Retention
	}
	if envVal := os.Getenv("RPGNG_EVENTS_RETENTION"); envVal != "" {
		if h, err := strconv.Atoi(envVal); err == nil && h > 0 {
			return h
		}
	}
	return 24
}

// HashFunc возвращает выбранную хэш-функцию.
func (c *RegistryConfig) HashFunc() htable.HashFunc {
	h, _ := htable.HashByName(c.Hash)
	return h
}

// Validate проверяет значения, которые нельзя исправить значениями по умолчанию.
func (c *Config) Validate() error {
	var errs []error
	if c.Registry.InitialCapacity <= 0 {
		errs = append(errs, fmt.Errorf("registry.initial_capacity must be positive, got %d", c.Registry.InitialCapacity))
	}
	if c.Registry.ComponentCapacity <= 0 {
		errs = append(errs, fmt.Errorf("registry.component_capacity must be positive, got %d", c.Registry.ComponentCapacity))
	}
	if c.Registry.NameMaxLen <= 0 {
		errs = append(errs, fmt.Errorf("registry.name_max_len must be positive, got %d", c.Registry.NameMaxLen))
	}
	if c.Registry.MaxBuckets < 0 {
		errs = append(errs, fmt.Errorf("registry.max_buckets must not be negative, got %d", c.Registry.MaxBuckets))
	}
	if _, ok := htable.HashByName(c.Registry.Hash); !ok {
		errs = append(errs, fmt.Errorf("registry.hash: unknown hash %q", c.Registry.Hash))
	}
	if c.Inventory.MaxItems <= 0 {
		errs = append(errs, fmt.Errorf("inventory.max_items must be positive, got %d", c.Inventory.MaxItems))
	}
	if c.Inventory.CatalogCapacity <= 0 {
		errs = append(errs, fmt.Errorf("inventory.catalog_capacity must be positive, got %d", c.Inventory.CatalogCapacity))
	}
	for _, lvl := range []struct{ key, value string }{
		{"log.level", c.Log.Level},
		{"log.console_level", c.Log.ConsoleLevel},
	} {
		if lvl.value == "" {
			continue
		}
		if _, err := logging.ParseLevel(lvl.value); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", lvl.key, err))
		}
	}
	for component, lvl := range c.Log.Components {
		if _, err := logging.ParseLevel(lvl); err != nil {
			errs = append(errs, fmt.Errorf("log.components.%s: %w", component, err))
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, errors.Join(errs...))
	}
	return nil
}

// Load читает YAML файл конфигурации поверх Default().
// Если path == "", пытается прочитать из ENV RPGNG_CONFIG; если не задан и он,
// возвращает Default().
func Load(path string) (*Config, error) {
	cfg := Default()
	if path == "" {
		path = os.Getenv("RPGNG_CONFIG")
		if path == "" {
			return cfg, nil
		}
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return cfg, nil
}
