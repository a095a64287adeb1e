package ext2

import (
	_ "embed"
	"fmt"
	"io"
	"strings"

	"github.com/gocarina/gocsv"
)

// Geometry describes the parameters needed to lay out a fresh ext2
// image: block size, how many inodes and blocks each group carries,
// and the total block count. It plays the same role for Format that
// disks.DiskGeometry plays for the teacher's raw-device formatters.
type Geometry struct {
	Slug           string `csv:"slug"`
	Name           string `csv:"name"`
	BlockSize      uint32 `csv:"block_size"`
	TotalBlocks    uint32 `csv:"total_blocks"`
	BlocksPerGroup uint32 `csv:"blocks_per_group"`
	InodesPerGroup uint32 `csv:"inodes_per_group"`
	Notes          string `csv:"notes"`
}

// TotalSizeBytes gives the minimum backing store size for this geometry.
func (g Geometry) TotalSizeBytes() int64 {
	return int64(g.TotalBlocks) * int64(g.BlockSize)
}

//go:embed geometries.csv
var rawGeometriesCSV string

var namedGeometries map[string]Geometry

// GetGeometry returns the named preset geometry, or an error if slug
// isn't one of the presets embedded in geometries.csv.
func GetGeometry(slug string) (Geometry, error) {
	g, ok := namedGeometries[slug]
	if !ok {
		return Geometry{}, fmt.Errorf("no predefined ext2 geometry named %q", slug)
	}
	return g, nil
}

func init() {
	namedGeometries = make(map[string]Geometry)
	reader := strings.NewReader(rawGeometriesCSV)
	err := gocsv.UnmarshalToCallback(reader, func(row Geometry) error {
		if _, exists := namedGeometries[row.Slug]; exists {
			return fmt.Errorf("duplicate ext2 geometry slug %q", row.Slug)
		}
		namedGeometries[row.Slug] = row
		return nil
	})
	if err != nil && err != io.EOF {
		panic(err)
	}
}
