package regions

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"reflect"
	"time"

	"github.com/mitchellh/mapstructure"
	"gopkg.in/yaml.v3"
)

// regionsFile represents the structure of a regions YAML file.
type regionsFile struct {
	Regions []map[string]any `yaml:"regions"`
}

// Loader handles loading and validating region configurations.
type Loader struct {
	configPath string
}

// NewLoader creates a new Loader instance.
func NewLoader(configPath string) *Loader {
	return &Loader{
		configPath: configPath,
	}
}

// Load loads regions from the configuration file. Invalid entries are
// skipped so one broken region does not take the service down; use Lint to
// surface them. Load fails only when no valid region remains.
func (l *Loader) Load() ([]Region, error) {
	raw, err := l.loadRaw()
	if err != nil {
		return nil, err
	}

	regions := make([]Region, 0, len(raw))
	seen := make(map[string]struct{}, len(raw))
	for _, src := range raw {
		region, convertErr := l.convert(src)
		if convertErr != nil {
			continue
		}
		if validateErr := validateRegion(&region); validateErr != nil {
			continue
		}
		if _, dup := seen[region.ID]; dup {
			continue
		}
		seen[region.ID] = struct{}{}
		region.applyDefaults()
		regions = append(regions, region)
	}

	if len(regions) == 0 {
		return nil, ErrNoRegions
	}

	return regions, nil
}

// Lint loads the file and returns every validation problem it contains.
// An empty slice means the file is clean.
func (l *Loader) Lint() ([]error, error) {
	raw, err := l.loadRaw()
	if err != nil {
		return nil, err
	}

	var issues []error
	seen := make(map[string]int)
	for i, src := range raw {
		region, convertErr := l.convert(src)
		if convertErr != nil {
			issues = append(issues, fmt.Errorf("region %d: %w", i+1, convertErr))
			continue
		}
		if validateErr := validateRegion(&region); validateErr != nil {
			issues = append(issues, fmt.Errorf("region %d (%s): %w", i+1, region.ID, validateErr))
			continue
		}
		if prev, dup := seen[region.ID]; dup {
			issues = append(issues, fmt.Errorf("region %d (%s): duplicate of region %d", i+1, region.ID, prev))
			continue
		}
		seen[region.ID] = i + 1
	}

	return issues, nil
}

// loadRaw loads the raw region data from the configuration file.
func (l *Loader) loadRaw() ([]map[string]any, error) {
	data, err := os.ReadFile(l.configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read regions file: %w", err)
	}

	var file regionsFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	if len(file.Regions) == 0 {
		return nil, ErrNoRegions
	}

	return file.Regions, nil
}

// convert decodes a raw region map into a Region struct.
func (l *Loader) convert(src map[string]any) (Region, error) {
	var region Region
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           &region,
		WeaklyTypedInput: true,
		DecodeHook: mapstructure.ComposeDecodeHookFunc(
			numberToSecondsHookFunc(),
			mapstructure.StringToTimeDurationHookFunc(),
			mapstructure.StringToSliceHookFunc(","),
		),
	})
	if err != nil {
		return Region{}, fmt.Errorf("failed to create decoder: %w", err)
	}

	if decodeErr := decoder.Decode(src); decodeErr != nil {
		return Region{}, fmt.Errorf("failed to decode region: %w", decodeErr)
	}

	return region, nil
}

// numberToSecondsHookFunc converts bare numbers to durations in seconds,
// the way the files have historically expressed rate limits.
func numberToSecondsHookFunc() mapstructure.DecodeHookFunc {
	durationType := reflect.TypeOf(time.Duration(0))
	return func(_, t reflect.Type, data any) (any, error) {
		if t != durationType {
			return data, nil
		}
		switch v := data.(type) {
		case int:
			return time.Duration(v) * time.Second, nil
		case int64:
			return time.Duration(v) * time.Second, nil
		case float64:
			return time.Duration(v * float64(time.Second)), nil
		default:
			return data, nil
		}
	}
}

// validateRegion checks the fields every region must carry.
func validateRegion(r *Region) error {
	if r.ID == "" {
		return fmt.Errorf("%w: id", ErrMissingRequiredField)
	}
	if r.Name == "" {
		return fmt.Errorf("%w: name", ErrMissingRequiredField)
	}
	switch r.Source {
	case SourceDiarium, SourceTransport, SourceMunicipal:
	case "":
		return fmt.Errorf("%w: source", ErrMissingRequiredField)
	default:
		return fmt.Errorf("unknown source kind %q", r.Source)
	}
	if r.BaseURL == "" {
		return fmt.Errorf("%w: base_url", ErrMissingRequiredField)
	}
	if err := validateURL(r.BaseURL); err != nil {
		return fmt.Errorf("invalid base_url: %w", err)
	}
	if r.SearchPath == "" {
		return fmt.Errorf("%w: search_path", ErrMissingRequiredField)
	}
	if r.Source != SourceDiarium && r.PageParam == "" {
		return fmt.Errorf("%w: page_param (required for %s sources)", ErrMissingRequiredField, r.Source)
	}
	if r.MaxPages < 0 {
		return errors.New("max_pages must not be negative")
	}
	if r.RateLimit < 0 {
		return errors.New("rate_limit must not be negative")
	}
	return nil
}

// validateURL validates the URL format.
func validateURL(urlStr string) error {
	u, err := url.Parse(urlStr)
	if err != nil {
		return err
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return errors.New("must be a valid HTTP(S) URL")
	}
	return nil
}
