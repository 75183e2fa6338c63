package seed

import (
	"math"
	"math/rand"
	"time"
)

type SaleRecord struct {
	OrderID   int64     `parquet:"order_id"`
	OrderedAt time.Time `parquet:"ordered_at,timestamp(millisecond)"`
	Region    string    `parquet:"region"`
	Category  string    `parquet:"category"`
	Channel   string    `parquet:"channel"`
	Units     int64     `parquet:"units"`
	Revenue   float64   `parquet:"revenue"`
}

type WeatherRecord struct {
	Day             time.Time
	City            string
	TemperatureC    float64
	PrecipitationMM float64
}

var (
	regions    = []string{"north", "south", "east", "west"}
	categories = []string{"books", "electronics", "garden", "grocery", "toys"}
	channels   = []string{"web", "store", "mobile"}
	cities     = []string{"Berlin", "Lisbon", "Oslo"}
	basePrice  = map[string]float64{"books": 14, "electronics": 180, "garden": 35, "grocery": 9, "toys": 22}
	baseTemp   = map[string]float64{"Berlin": 9, "Lisbon": 17, "Oslo": 4}
)

// Generator produces deterministic synthetic rows for a seed.
type Generator struct {
	rnd      *rand.Rand
	start    time.Time
	days     int
	sequence int64
}

func NewGenerator(seed int64, start time.Time, days int) *Generator {
	return &Generator{rnd: rand.New(rand.NewSource(seed)), start: start.UTC(), days: days}
}

func (g *Generator) NextSale() SaleRecord {
	g.sequence++
	category := pickOne(g.rnd, categories)
	units := int64(g.rnd.Intn(5) + 1)
	price := basePrice[category] * (0.8 + g.rnd.Float64()*0.4)
	orderedAt := g.start.
		Add(time.Duration(g.rnd.Intn(g.days)) * 24 * time.Hour).
		Add(time.Duration(g.rnd.Intn(24*60)) * time.Minute)

	return SaleRecord{
		OrderID:   g.sequence,
		OrderedAt: orderedAt,
		Region:    pickOne(g.rnd, regions),
		Category:  category,
		Channel:   pickOne(g.rnd, channels),
		Units:     units,
		Revenue:   round2(price * float64(units)),
	}
}

func (g *Generator) Sales(n int) []SaleRecord {
	out := make([]SaleRecord, n)
	for i := range out {
		out[i] = g.NextSale()
	}
	return out
}

// Weather returns one observation per city and day.
func (g *Generator) Weather() []WeatherRecord {
	out := make([]WeatherRecord, 0, g.days*len(cities))
	for day := 0; day < g.days; day++ {
		date := g.start.Add(time.Duration(day) * 24 * time.Hour)
		for _, city := range cities {
			precipitation := 0.0
			if g.rnd.Intn(3) == 0 {
				precipitation = round2(g.rnd.Float64() * 12)
			}
			out = append(out, WeatherRecord{
				Day:             date,
				City:            city,
				TemperatureC:    round2(baseTemp[city] + g.rnd.NormFloat64()*3),
				PrecipitationMM: precipitation,
			})
		}
	}
	return out
}

func round2(value float64) float64 {
	return math.Round(value*100) / 100
}

func pickOne(r *rand.Rand, values []string) string {
	return values[r.Intn(len(values))]
}
