package endpoints

import (
	"fmt"
	"net/http"
	"strings"
)

/* Class groups inbound routes that share one rate-limit ceiling
 * Matches on a path prefix and, optionally, a set of methods
 */
type Class struct {
	Name       string
	PathPrefix string
	Methods    []string // empty matches every method
	Ceiling    int      // requests per window
}

// Validate checks if the class configuration is valid
func (c *Class) Validate() error {
	if c.Name == "" {
		return fmt.Errorf("name cannot be empty")
	}
	if c.PathPrefix == "" {
		return fmt.Errorf("path_prefix cannot be empty for class %s", c.Name)
	}
	if !strings.HasPrefix(c.PathPrefix, "/") {
		return fmt.Errorf("path_prefix must start with / for class %s", c.Name)
	}
	if c.Ceiling < 0 {
		return fmt.Errorf("ceiling cannot be negative for class %s", c.Name)
	}
	for _, m := range c.Methods {
		if !knownMethod(m) {
			return fmt.Errorf("unknown method %q for class %s", m, c.Name)
		}
	}
	return nil
}

// Matches reports whether a request falls in this class
func (c *Class) Matches(path, method string) bool {
	if !strings.HasPrefix(path, c.PathPrefix) {
		return false
	}
	if len(c.Methods) == 0 {
		return true
	}
	for _, m := range c.Methods {
		if strings.EqualFold(m, method) {
			return true
		}
	}
	return false
}

func knownMethod(m string) bool {
	switch strings.ToUpper(m) {
	case http.MethodGet, http.MethodHead, http.MethodPost, http.MethodPut,
		http.MethodPatch, http.MethodDelete, http.MethodOptions:
		return true
	}
	return false
}
