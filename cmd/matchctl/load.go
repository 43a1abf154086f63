package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/meetmates/matcher/internal/geo"
	"github.com/meetmates/matcher/internal/matching"
)

// decodeFile decodes a JSON or YAML file into v, chosen by extension.
func decodeFile(path string, v any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}

	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		dec := json.NewDecoder(bytes.NewReader(data))
		dec.DisallowUnknownFields()
		if err := dec.Decode(v); err != nil {
			return fmt.Errorf("%s: %w", path, err)
		}
	case ".yaml", ".yml":
		dec := yaml.NewDecoder(bytes.NewReader(data))
		dec.KnownFields(true)
		if err := dec.Decode(v); err != nil {
			return fmt.Errorf("%s: %w", path, err)
		}
	default:
		return fmt.Errorf("%s: unsupported extension, want .json, .yaml or .yml", path)
	}
	return nil
}

// normalize applies the defaults a client would and validates the result.
func normalize(p *matching.Profile) error {
	if p.RadiusKm == 0 {
		p.RadiusKm = matching.DefaultRadiusKm
	}
	if p.Location != nil && p.Location.Geohash == "" {
		p.Location.Geohash = geo.Geohash(p.Location.Latitude, p.Location.Longitude, geo.DefaultGeohashPrecision)
	}
	return p.Validate()
}

func loadProfile(path string) (matching.Profile, error) {
	var p matching.Profile
	if err := decodeFile(path, &p); err != nil {
		return p, err
	}
	if err := normalize(&p); err != nil {
		return p, fmt.Errorf("%s: %w", path, err)
	}
	return p, nil
}

func loadProfiles(path string) ([]matching.Profile, error) {
	var profiles []matching.Profile
	if err := decodeFile(path, &profiles); err != nil {
		return nil, err
	}
	for i := range profiles {
		if err := normalize(&profiles[i]); err != nil {
			return nil, fmt.Errorf("%s: entry %d: %w", path, i, err)
		}
	}
	return profiles, nil
}
