package seed

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

type LookupFunc func(string) (string, bool)

type Config struct {
	Dir       string
	SalesRows int
	Days      int
	Seed      int64
	// Upload publishes the bundle to the object store instead of Dir; the
	// manifest then uses s3 sources under Prefix.
	Upload bool
	Prefix string
	Start  time.Time
}

func DefaultConfig() Config {
	return Config{
		Dir:       "demo-data",
		SalesRows: 500,
		Days:      30,
		Seed:      time.Now().UTC().UnixNano(),
		Prefix:    "datasets/demo",
		Start:     time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC),
	}
}

func LoadConfigFromEnv(lookup LookupFunc) (Config, error) {
	if lookup == nil {
		return Config{}, fmt.Errorf("lookup function is required")
	}
	cfg := DefaultConfig()
	if err := applyString(lookup, "DUCKVIZ_DEMO_DIR", &cfg.Dir); err != nil {
		return Config{}, err
	}
	if err := applyInt(lookup, "DUCKVIZ_DEMO_SALES_ROWS", &cfg.SalesRows); err != nil {
		return Config{}, err
	}
	if err := applyInt(lookup, "DUCKVIZ_DEMO_DAYS", &cfg.Days); err != nil {
		return Config{}, err
	}
	if err := applyInt64(lookup, "DUCKVIZ_DEMO_SEED", &cfg.Seed); err != nil {
		return Config{}, err
	}
	if err := applyBool(lookup, "DUCKVIZ_DEMO_UPLOAD", &cfg.Upload); err != nil {
		return Config{}, err
	}
	if err := applyString(lookup, "DUCKVIZ_DEMO_PREFIX", &cfg.Prefix); err != nil {
		return Config{}, err
	}

	if strings.TrimSpace(cfg.Dir) == "" {
		return Config{}, fmt.Errorf("DUCKVIZ_DEMO_DIR is required")
	}
	if cfg.SalesRows <= 0 {
		return Config{}, fmt.Errorf("DUCKVIZ_DEMO_SALES_ROWS must be > 0")
	}
	if cfg.Days <= 0 {
		return Config{}, fmt.Errorf("DUCKVIZ_DEMO_DAYS must be > 0")
	}
	if cfg.Upload && strings.Trim(cfg.Prefix, "/ ") == "" {
		return Config{}, fmt.Errorf("DUCKVIZ_DEMO_PREFIX is required when uploading")
	}
	cfg.Prefix = strings.Trim(strings.TrimSpace(cfg.Prefix), "/")
	return cfg, nil
}

func applyString(lookup LookupFunc, key string, dst *string) error {
	raw, ok := lookup(key)
	if !ok {
		return nil
	}
	*dst = strings.TrimSpace(raw)
	return nil
}

func applyBool(lookup LookupFunc, key string, dst *bool) error {
	raw, ok := lookup(key)
	if !ok {
		return nil
	}
	v, err := strconv.ParseBool(strings.TrimSpace(raw))
	if err != nil {
		return fmt.Errorf("invalid %s: %w", key, err)
	}
	*dst = v
	return nil
}

func applyInt(lookup LookupFunc, key string, dst *int) error {
	raw, ok := lookup(key)
	if !ok {
		return nil
	}
	v, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil {
		return fmt.Errorf("invalid %s: %w", key, err)
	}
	*dst = v
	return nil
}

func applyInt64(lookup LookupFunc, key string, dst *int64) error {
	raw, ok := lookup(key)
	if !ok {
		return nil
	}
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil
	}
	v, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return fmt.Errorf("invalid %s: %w", key, err)
	}
	*dst = v
	return nil
}
