package spectra

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/halo-data/sigmav.report/internal/units"
)

// gridFile is the on-disk grid table schema. Node coordinates are stored in
// the declared energy unit; flux is indexed [channel][mass][energy].
type gridFile struct {
	EnergyUnit string        `json:"energy_unit"`
	FluxUnit   string        `json:"flux_unit,omitempty"`
	RefSigmaV  float64       `json:"ref_sigma_v"`
	RefJFactor float64       `json:"ref_j_factor"`
	Channels   []channelDef  `json:"channels"`
	Masses     []float64     `json:"masses"`
	Energies   []float64     `json:"energies"`
	Flux       [][][]float64 `json:"flux"`
}

type channelDef struct {
	ID   int    `json:"id"`
	Name string `json:"name,omitempty"`
}

// LoadGridTable reads and validates a grid table from a JSON file. The file
// is validated to have a .json extension and to be under the max file size
// before parsing; node and flux validation happens in NewGridTable.
func LoadGridTable(path string) (*GridTable, error) {
	cleanPath := filepath.Clean(path)
	if ext := filepath.Ext(cleanPath); ext != ".json" {
		return nil, fmt.Errorf("grid file must have .json extension, got %q", ext)
	}

	fileInfo, err := os.Stat(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to stat grid file: %w", err)
	}
	const maxFileSize = 64 * 1024 * 1024 // 64MB
	if fileInfo.Size() > maxFileSize {
		return nil, fmt.Errorf("grid file too large: %d bytes (max %d)", fileInfo.Size(), maxFileSize)
	}

	data, err := os.ReadFile(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read grid file: %w", err)
	}
	return ParseGridTable(data)
}

// ParseGridTable builds a GridTable from raw grid-file JSON.
func ParseGridTable(data []byte) (*GridTable, error) {
	var gf gridFile
	if err := json.Unmarshal(data, &gf); err != nil {
		return nil, fmt.Errorf("failed to parse grid file: %w", err)
	}
	if gf.EnergyUnit == "" {
		gf.EnergyUnit = units.GeV
	}
	if !units.IsValidEnergyUnit(gf.EnergyUnit) {
		return nil, fmt.Errorf("%w: energy unit %q (valid: %s)", ErrInvalidParameter, gf.EnergyUnit, units.ValidEnergyUnitsString())
	}
	if gf.RefSigmaV <= 0 {
		return nil, fmt.Errorf("%w: ref_sigma_v %g, want positive", ErrInvalidParameter, gf.RefSigmaV)
	}
	if gf.RefJFactor <= 0 {
		return nil, fmt.Errorf("%w: ref_j_factor %g, want positive", ErrInvalidParameter, gf.RefJFactor)
	}

	channels := make([]Channel, len(gf.Channels))
	names := make(map[Channel]string, len(gf.Channels))
	for i, cd := range gf.Channels {
		channels[i] = Channel(cd.ID)
		names[Channel(cd.ID)] = cd.Name
	}

	masses := make([]float64, len(gf.Masses))
	for i, m := range gf.Masses {
		masses[i] = units.ToGeV(m, gf.EnergyUnit)
	}
	energies := make([]float64, len(gf.Energies))
	for i, e := range gf.Energies {
		energies[i] = units.ToGeV(e, gf.EnergyUnit)
	}

	t, err := NewGridTable(channels, names, masses, energies, gf.Flux, gf.RefSigmaV, gf.RefJFactor)
	if err != nil {
		return nil, err
	}
	t.FluxUnit = gf.FluxUnit
	return t, nil
}

// WriteGridFile serialises a grid back to the on-disk JSON schema. Used by
// the grid generator tool and round-trip tests; the fitting core itself only
// consumes grid files.
func WriteGridFile(path string, t *GridTable) error {
	nM, nE := len(t.masses), len(t.energies)
	gf := gridFile{
		EnergyUnit: units.GeV,
		FluxUnit:   t.FluxUnit,
		RefSigmaV:  t.RefSigmaV,
		RefJFactor: t.RefJFactor,
		Masses:     t.masses,
		Energies:   t.energies,
		Flux:       make([][][]float64, len(t.channels)),
	}
	for _, ch := range t.channels {
		gf.Channels = append(gf.Channels, channelDef{ID: int(ch), Name: t.names[ch]})
	}
	for ci := range t.channels {
		slab := make([][]float64, nM)
		for mi := 0; mi < nM; mi++ {
			base := (ci*nM + mi) * nE
			slab[mi] = t.flux[base : base+nE]
		}
		gf.Flux[ci] = slab
	}

	data, err := json.MarshalIndent(&gf, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal grid: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write grid file: %w", err)
	}
	return nil
}
