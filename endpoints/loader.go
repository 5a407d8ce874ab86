package endpoints

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

/* Loader manages endpoint classes from endpoints.yaml
 * Classes are matched in file order; the first match wins and anything
 * unmatched falls back to the default class
 */

const defaultWindowSeconds = 60

// Config represents the structure of endpoints.yaml
type Config struct {
	WindowSeconds int           `yaml:"window_seconds"`
	SkipPaths     []string      `yaml:"skip_paths"`
	Default       DefaultConfig `yaml:"default"`
	Classes       []ClassConfig `yaml:"classes"`
}

// DefaultConfig names the fallback class
type DefaultConfig struct {
	Name    string `yaml:"name"`
	Ceiling int    `yaml:"ceiling"`
}

// ClassConfig represents a single class in the YAML file
type ClassConfig struct {
	Name       string   `yaml:"name"`
	PathPrefix string   `yaml:"path_prefix"`
	Methods    []string `yaml:"methods"`
	Ceiling    int      `yaml:"ceiling"`
}

// Loader holds the loaded classes
type Loader struct {
	classes  []*Class
	ceilings map[string]int
	fallback DefaultConfig
	skip     map[string]bool
	window   time.Duration
}

// NewLoader creates a loader with no classes; every request is "general" with no ceiling
func NewLoader() *Loader {
	return &Loader{
		ceilings: make(map[string]int),
		fallback: DefaultConfig{Name: "general"},
		skip:     make(map[string]bool),
		window:   defaultWindowSeconds * time.Second,
	}
}

// Defaults returns the built-in classes used when no endpoints file is configured
func Defaults() *Loader {
	l := NewLoader()
	err := l.apply(Config{
		WindowSeconds: defaultWindowSeconds,
		SkipPaths:     []string{"/health", "/metrics"},
		Default:       DefaultConfig{Name: "general", Ceiling: 120},
		Classes: []ClassConfig{
			{Name: "events", PathPrefix: "/api/v1/events", Ceiling: 100},
			{Name: "heatmaps", PathPrefix: "/api/v1/heatmaps", Ceiling: 60},
			{Name: "funnels_write", PathPrefix: "/api/v1/funnels", Methods: []string{"POST", "PUT", "DELETE"}, Ceiling: 30},
		},
	})
	if err != nil {
		panic(fmt.Sprintf("built-in endpoint classes: %v", err))
	}
	return l
}

// Load reads and parses the endpoints.yaml file
func (l *Loader) Load(filePath string) error {
	data, err := os.ReadFile(filePath)
	if err != nil {
		return fmt.Errorf("reading endpoints file: %w", err)
	}
	return l.Parse(data)
}

// Parse replaces the loaded classes with the ones in data
func (l *Loader) Parse(data []byte) error {
	var config Config
	if err := yaml.Unmarshal(data, &config); err != nil {
		return fmt.Errorf("parsing endpoints YAML: %w", err)
	}
	return l.apply(config)
}

func (l *Loader) apply(config Config) error {
	if config.WindowSeconds < 0 {
		return fmt.Errorf("window_seconds cannot be negative")
	}
	if config.WindowSeconds == 0 {
		config.WindowSeconds = defaultWindowSeconds
	}
	if config.Default.Name == "" {
		config.Default.Name = "general"
	}
	if config.Default.Ceiling < 0 {
		return fmt.Errorf("default ceiling cannot be negative")
	}

	classes := make([]*Class, 0, len(config.Classes))
	ceilings := map[string]int{config.Default.Name: config.Default.Ceiling}
	for _, cc := range config.Classes {
		methods := make([]string, 0, len(cc.Methods))
		for _, m := range cc.Methods {
			methods = append(methods, strings.ToUpper(strings.TrimSpace(m)))
		}
		class := &Class{
			Name:       cc.Name,
			PathPrefix: cc.PathPrefix,
			Methods:    methods,
			Ceiling:    cc.Ceiling,
		}
		if err := class.Validate(); err != nil {
			return fmt.Errorf("validating class: %w", err)
		}
		if _, dup := ceilings[class.Name]; dup {
			return fmt.Errorf("duplicate class name %s", class.Name)
		}
		ceilings[class.Name] = class.Ceiling
		classes = append(classes, class)
	}

	skip := make(map[string]bool, len(config.SkipPaths))
	for _, p := range config.SkipPaths {
		skip[p] = true
	}

	l.classes = classes
	l.ceilings = ceilings
	l.fallback = config.Default
	l.skip = skip
	l.window = time.Duration(config.WindowSeconds) * time.Second
	return nil
}

// Classify returns the class name for a request
func (l *Loader) Classify(path, method string) string {
	for _, c := range l.classes {
		if c.Matches(path, method) {
			return c.Name
		}
	}
	return l.fallback.Name
}

// Ceiling returns the ceiling of a class; unknown classes get the default ceiling
func (l *Loader) Ceiling(class string) int {
	if n, ok := l.ceilings[class]; ok {
		return n
	}
	return l.fallback.Ceiling
}

// Skip reports whether path bypasses rate limiting
func (l *Loader) Skip(path string) bool {
	return l.skip[path]
}

// Window returns the configured window size
func (l *Loader) Window() time.Duration {
	return l.window
}

// Default returns the fallback class
func (l *Loader) Default() DefaultConfig {
	return l.fallback
}

// List returns the loaded classes in match order
func (l *Loader) List() []*Class {
	classes := make([]*Class, len(l.classes))
	copy(classes, l.classes)
	return classes
}

// SkipPaths returns the paths that bypass rate limiting
func (l *Loader) SkipPaths() []string {
	paths := make([]string, 0, len(l.skip))
	for p := range l.skip {
		paths = append(paths, p)
	}
	return paths
}
