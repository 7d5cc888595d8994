// Package presets loads a small named catalog of volume tunable presets
// (spec §6's storage_amount/storage_size/block_size/max_file_amount/
// NAME_MAX) from an embedded CSV, the way the teacher's disks package loads
// a catalog of disk geometries.
package presets

import (
	_ "embed"
	"fmt"
	"strings"

	"github.com/gocarina/gocsv"
	"github.com/vfscore/vfscore"
)

//go:embed presets.csv
var rawCSV string

// entry is the CSV row shape; gocsv matches columns by the csv tag.
type entry struct {
	Name          string `csv:"name"`
	StorageAmount uint32 `csv:"storage_amount"`
	StorageSize   uint32 `csv:"storage_size"`
	BlockSize     uint32 `csv:"block_size"`
	MaxFileAmount uint32 `csv:"max_file_amount"`
	NameMax       uint32 `csv:"name_max"`
}

func (e entry) toParams() vfscore.Params {
	return vfscore.Params{
		StorageAmount: e.StorageAmount,
		StorageSize:   e.StorageSize,
		BlockSize:     e.BlockSize,
		MaxFileAmount: e.MaxFileAmount,
		NameMax:       e.NameMax,
	}
}

var catalog map[string]vfscore.Params

func init() {
	catalog = make(map[string]vfscore.Params)
	var rows []entry
	if err := gocsv.UnmarshalString(rawCSV, &rows); err != nil {
		panic(err)
	}
	for _, row := range rows {
		catalog[row.Name] = row.toParams()
	}
}

// Get returns the named preset's tunables.
func Get(name string) (vfscore.Params, error) {
	params, ok := catalog[name]
	if !ok {
		return vfscore.Params{}, fmt.Errorf("no preset named %q; known presets: %s", name, strings.Join(Names(), ", "))
	}
	return params, nil
}

// Names returns every known preset name.
func Names() []string {
	names := make([]string, 0, len(catalog))
	for name := range catalog {
		names = append(names, name)
	}
	return names
}
