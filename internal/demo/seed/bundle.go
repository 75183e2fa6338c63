package seed

import (
	"bytes"
	"context"
	"encoding/csv"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/parquet-go/parquet-go"

	"github.com/duckmesh/duckviz/internal/catalog"
	"github.com/duckmesh/duckviz/internal/storage"
)

const (
	SalesFile    = "sales.parquet"
	WeatherFile  = "weather.csv"
	ManifestFile = "datasets.toml"
)

// Bundle is the encoded demo datasets keyed by file name.
type Bundle struct {
	Files       map[string][]byte
	SalesRows   int
	WeatherRows int
}

func Build(cfg Config) (Bundle, error) {
	g := NewGenerator(cfg.Seed, cfg.Start, cfg.Days)
	sales := g.Sales(cfg.SalesRows)
	weather := g.Weather()

	salesData, err := encodeSales(sales)
	if err != nil {
		return Bundle{}, err
	}
	weatherData, err := encodeWeather(weather)
	if err != nil {
		return Bundle{}, err
	}
	return Bundle{
		Files:       map[string][]byte{SalesFile: salesData, WeatherFile: weatherData},
		SalesRows:   len(sales),
		WeatherRows: len(weather),
	}, nil
}

// Manifest describes the bundle as local files, or as objects under prefix
// when source is s3.
func Manifest(source catalog.Source, prefix string) catalog.Manifest {
	entry := func(name, file string) catalog.Entry {
		e := catalog.Entry{Name: name, Source: source}
		if source == catalog.SourceObject {
			e.Key = prefix + "/" + file
		} else {
			e.Path = file
		}
		return e
	}
	return catalog.Manifest{Datasets: []catalog.Entry{
		entry("sales", SalesFile),
		entry("weather", WeatherFile),
	}}
}

// WriteDir writes every bundle file and a manifest for them into dir.
func WriteDir(dir string, bundle Bundle, manifest catalog.Manifest) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create demo dir: %w", err)
	}
	for name, data := range bundle.Files {
		if err := os.WriteFile(filepath.Join(dir, name), data, 0o644); err != nil {
			return fmt.Errorf("write %s: %w", name, err)
		}
	}
	var buf bytes.Buffer
	if err := toml.NewEncoder(&buf).Encode(manifest); err != nil {
		return fmt.Errorf("encode manifest: %w", err)
	}
	return os.WriteFile(filepath.Join(dir, ManifestFile), buf.Bytes(), 0o644)
}

// Upload stores every bundle file under prefix in store.
func Upload(ctx context.Context, store storage.ObjectStore, prefix string, bundle Bundle, logger *slog.Logger) error {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	for name, data := range bundle.Files {
		key := prefix + "/" + name
		info, err := store.Put(ctx, key, bytes.NewReader(data), int64(len(data)), storage.PutOptions{ContentType: contentType(name)})
		if err != nil {
			return fmt.Errorf("upload %s: %w", key, err)
		}
		logger.Info("demo dataset uploaded", slog.String("key", info.Key), slog.Int64("size", info.Size))
	}
	return nil
}

func encodeSales(rows []SaleRecord) ([]byte, error) {
	var buf bytes.Buffer
	writer := parquet.NewGenericWriter[SaleRecord](&buf)
	if _, err := writer.Write(rows); err != nil {
		return nil, fmt.Errorf("write sales parquet: %w", err)
	}
	if err := writer.Close(); err != nil {
		return nil, fmt.Errorf("close sales parquet: %w", err)
	}
	return buf.Bytes(), nil
}

func encodeWeather(rows []WeatherRecord) ([]byte, error) {
	var buf bytes.Buffer
	writer := csv.NewWriter(&buf)
	records := make([][]string, 0, len(rows)+1)
	records = append(records, []string{"day", "city", "temperature_c", "precipitation_mm"})
	for _, row := range rows {
		records = append(records, []string{
			row.Day.Format(time.DateOnly),
			row.City,
			strconv.FormatFloat(row.TemperatureC, 'f', 2, 64),
			strconv.FormatFloat(row.PrecipitationMM, 'f', 2, 64),
		})
	}
	if err := writer.WriteAll(records); err != nil {
		return nil, fmt.Errorf("write weather csv: %w", err)
	}
	return buf.Bytes(), nil
}

func contentType(name string) string {
	switch filepath.Ext(name) {
	case ".parquet":
		return "application/vnd.apache.parquet"
	case ".csv":
		return "text/csv"
	default:
		return "application/octet-stream"
	}
}
