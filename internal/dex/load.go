package dex

import (
	"bytes"
	_ "embed"
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	json "github.com/goccy/go-json"
	"gopkg.in/yaml.v3"
)

var ErrEmptyData = errors.New("dex: data file contains no species")

//go:embed seed.yaml
var seedYAML []byte

// Seed returns a registry loaded with the embedded seed data.
func Seed() *Registry {
	var d Data
	if err := yaml.Unmarshal(seedYAML, &d); err != nil {
		panic(fmt.Sprintf("dex: embedded seed is invalid: %v", err))
	}
	r := NewRegistry()
	r.Add(d)
	return r
}

// Parse decodes dex data. Files ending in .json are decoded as JSON;
// everything else as YAML.
func Parse(name string, b []byte) (Data, error) {
	var d Data
	var err error
	if strings.EqualFold(filepath.Ext(name), ".json") {
		err = json.Unmarshal(b, &d)
	} else {
		dec := yaml.NewDecoder(bytes.NewReader(b))
		dec.KnownFields(true)
		err = dec.Decode(&d)
	}
	if err != nil {
		return Data{}, fmt.Errorf("failed to parse dex file %s: %w", name, err)
	}
	if len(d.Species) == 0 {
		return Data{}, fmt.Errorf("%s: %w", name, ErrEmptyData)
	}
	return d, nil
}

// LoadFile reads a dex file from disk into the registry.
func (r *Registry) LoadFile(path string) error {
	b, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read dex file %s: %w", path, err)
	}
	d, err := Parse(path, b)
	if err != nil {
		return err
	}
	r.Add(d)
	return nil
}

// LoadURL fetches a JSON dex export and merges it into the registry.
func (r *Registry) LoadURL(url string) error {
	client := &http.Client{Timeout: 10 * time.Second}

	resp, err := client.Get(url)
	if err != nil {
		return fmt.Errorf("failed to fetch dex: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("dex fetch returned status %d", resp.StatusCode)
	}

	var d Data
	if err := json.NewDecoder(resp.Body).Decode(&d); err != nil {
		return fmt.Errorf("failed to parse dex: %w", err)
	}
	if len(d.Species) == 0 {
		return fmt.Errorf("%s: %w", url, ErrEmptyData)
	}

	r.Add(d)
	return nil
}
