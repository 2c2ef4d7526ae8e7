// Command gen-grid generates a synthetic spectral grid JSON for testing and
// demos. The flux follows a power law in E/m with a kinematic cutoff at the
// mass, which is the shape the interpolator is exact on.
package main

import (
	"flag"
	"log"
	"math"
	"strconv"
	"strings"

	"github.com/halo-data/sigmav.report/internal/spectra"
)

func main() {
	output := flag.String("o", "grid.json", "output path")
	massMin := flag.Float64("mass-min", 100, "lowest mass node in GeV")
	massMax := flag.Float64("mass-max", 10000, "highest mass node in GeV")
	massNodes := flag.Int("mass-nodes", 14, "number of mass nodes")
	energyMin := flag.Float64("energy-min", 10, "lowest energy node in GeV")
	energyMax := flag.Float64("energy-max", 10000, "highest energy node in GeV")
	energyNodes := flag.Int("energy-nodes", 40, "number of energy nodes")
	index := flag.Float64("index", 1.5, "spectral index of the synthetic flux")
	refSigmaV := flag.Float64("ref-sigmav", 3e-26, "reference cross section in cm^3 s^-1")
	refJFactor := flag.Float64("ref-jfactor", 1e18, "reference J-factor in GeV^2 cm^-5")
	channelList := flag.String("channels", "5:b,8:tau,11:W", "channels as id:name pairs")
	flag.Parse()

	var channels []spectra.Channel
	names := make(map[spectra.Channel]string)
	for _, pair := range strings.Split(*channelList, ",") {
		parts := strings.SplitN(strings.TrimSpace(pair), ":", 2)
		if len(parts) != 2 || parts[1] == "" {
			log.Fatalf("bad channel spec %q (want id:name)", pair)
		}
		id, err := strconv.Atoi(parts[0])
		if err != nil {
			log.Fatalf("bad channel id %q: %v", parts[0], err)
		}
		ch := spectra.Channel(id)
		channels = append(channels, ch)
		names[ch] = parts[1]
	}

	masses := logNodes(*massMin, *massMax, *massNodes)
	energies := logNodes(*energyMin, *energyMax, *energyNodes)

	// Each channel gets a slightly different slope so interpolation across
	// channels is distinguishable in tests.
	flux := make([][][]float64, len(channels))
	for ci := range channels {
		slope := *index + 0.1*float64(ci)
		flux[ci] = make([][]float64, len(masses))
		for mi, m := range masses {
			row := make([]float64, len(energies))
			for ei, e := range energies {
				if e < m {
					row[ei] = math.Pow(e/m, -slope)
				}
			}
			flux[ci][mi] = row
		}
	}

	table, err := spectra.NewGridTable(channels, names, masses, energies, flux, *refSigmaV, *refJFactor)
	if err != nil {
		log.Fatalf("assemble grid: %v", err)
	}
	if err := spectra.WriteGridFile(*output, table); err != nil {
		log.Fatalf("write grid: %v", err)
	}
	log.Printf("✓ Created: %s (%d channels, %d masses, %d energies)",
		*output, len(channels), len(masses), len(energies))
}

func logNodes(lo, hi float64, n int) []float64 {
	if n < 2 || !(lo > 0) || !(hi > lo) {
		log.Fatalf("bad node range [%g, %g] x%d", lo, hi, n)
	}
	nodes := make([]float64, n)
	step := math.Pow(hi/lo, 1/float64(n-1))
	v := lo
	for i := range nodes {
		nodes[i] = v
		v *= step
	}
	nodes[n-1] = hi
	return nodes
}
