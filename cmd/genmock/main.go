// Command genmock writes a deterministic synthetic protest dataset in the
// CSV layout the dashboard loads. The same seed always yields the same file,
// so it can back local runs and demos without the real data.
//
// Usage:
//
//	go run ./cmd/genmock --out data/selected_data.csv --weeks 20 --seed 42
package main

import (
	"encoding/csv"
	"fmt"
	"io"
	"log"
	"math/rand/v2"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/couchcryptid/farm-protest-map/internal/domain"
	"github.com/spf13/pflag"
)

// firstWeek is the Monday of ISO week 2023-50, where the protest wave starts.
var firstWeek = time.Date(2023, time.December, 11, 0, 0, 0, 0, time.UTC)

type city struct {
	name, country string
	lat, lon      float64
}

var cities = []city{
	{"Paris", "France", 48.8566, 2.3522},
	{"Lyon", "France", 45.7640, 4.8357},
	{"Toulouse", "France", 43.6047, 1.4442},
	{"Brussels", "Belgium", 50.8503, 4.3517},
	{"Berlin", "Germany", 52.5200, 13.4050},
	{"Munich", "Germany", 48.1351, 11.5820},
	{"Amsterdam", "Netherlands", 52.3676, 4.9041},
	{"Madrid", "Spain", 40.4168, -3.7038},
	{"Seville", "Spain", 37.3891, -5.9845},
	{"Rome", "Italy", 41.9028, 12.4964},
	{"Milan", "Italy", 45.4642, 9.1900},
	{"Warsaw", "Poland", 52.2297, 21.0122},
	{"Bucharest", "Romania", 44.4268, 26.1025},
	{"Athens", "Greece", 37.9838, 23.7275},
	{"Lisbon", "Portugal", 38.7223, -9.1393},
	{"Dublin", "Ireland", 53.3498, -6.2603},
}

var actions = []string{
	"Tractor convoy",
	"Motorway blockade",
	"Rally outside the ministry",
	"Manure dumped at prefecture",
	"Border crossing blockade",
	"March on parliament",
}

type options struct {
	out          string
	weeks        int
	perWeek      int
	seed         uint64
	missingCoord float64
}

func main() {
	var opts options
	pflag.StringVar(&opts.out, "out", "data/selected_data.csv", "output CSV path (- for stdout)")
	pflag.IntVar(&opts.weeks, "weeks", 20, "number of consecutive ISO weeks")
	pflag.IntVar(&opts.perWeek, "per-week", 8, "maximum protests per week")
	pflag.Uint64Var(&opts.seed, "seed", 42, "random seed")
	pflag.Float64Var(&opts.missingCoord, "missing-coords", 0, "fraction of rows written without coordinates")
	pflag.Parse()

	if err := run(opts); err != nil {
		log.Fatal(err)
	}
}

func run(opts options) error {
	if opts.weeks <= 0 || opts.perWeek <= 0 {
		return fmt.Errorf("--weeks and --per-week must be positive")
	}

	var w io.Writer = os.Stdout
	if opts.out != "-" {
		if err := os.MkdirAll(filepath.Dir(opts.out), 0o755); err != nil {
			return err
		}
		f, err := os.Create(opts.out)
		if err != nil {
			return err
		}
		defer f.Close()
		w = f
	}

	counts, err := generate(w, opts)
	if err != nil {
		return err
	}
	if opts.out != "-" {
		log.Printf("wrote %s", opts.out)
		printStats(counts)
	}
	return nil
}

// generate writes the dataset and returns the number of rows per category.
func generate(w io.Writer, opts options) (map[string]int, error) {
	rng := rand.New(rand.NewPCG(opts.seed, opts.seed^0x9e3779b97f4a7c15))
	reasons := domain.ReasonKeys()

	header := append([]string{"week_year", "lat", "lon", "notes_wrapped", "location", "country"}, reasons...)
	cw := csv.NewWriter(w)
	if err := cw.Write(header); err != nil {
		return nil, err
	}

	counts := map[string]int{}
	for week := range opts.weeks {
		year, num := firstWeek.AddDate(0, 0, 7*week).ISOWeek()
		label := fmt.Sprintf("%d-%02d", year, num)

		// Every week gets at least one protest so the slider has no gaps.
		for range 1 + rng.IntN(opts.perWeek) {
			c := cities[rng.IntN(len(cities))]
			action := actions[rng.IntN(len(actions))]

			row := make([]string, 0, len(header))
			lat, lon := jitter(rng, c.lat), jitter(rng, c.lon)
			if rng.Float64() < opts.missingCoord {
				row = append(row, label, "", "")
			} else {
				row = append(row, label, formatCoord(lat), formatCoord(lon))
			}
			row = append(row, fmt.Sprintf("%s<br>%s, %s", action, c.name, c.country), c.name, c.country)

			counts[domain.AllProtests]++
			flagged := false
			for range reasons {
				v := "0"
				if rng.Float64() < 0.15 {
					v, flagged = "1", true
				}
				row = append(row, v)
			}
			// Rows always carry at least one reason.
			if !flagged {
				i := rng.IntN(len(reasons))
				row[len(row)-len(reasons)+i] = "1"
			}
			for i, reason := range reasons {
				if row[len(row)-len(reasons)+i] == "1" {
					counts[reason]++
				}
			}

			if err := cw.Write(row); err != nil {
				return nil, err
			}
		}
	}
	cw.Flush()
	return counts, cw.Error()
}

func jitter(rng *rand.Rand, v float64) float64 {
	return v + (rng.Float64()-0.5)*0.2
}

func formatCoord(v float64) string {
	return strconv.FormatFloat(v, 'f', 4, 64)
}

func printStats(counts map[string]int) {
	fmt.Println("\n=== Rows per category ===")
	for _, c := range domain.Categories() {
		fmt.Printf("  %-56s %d\n", c.Label, counts[c.Key])
	}
}
