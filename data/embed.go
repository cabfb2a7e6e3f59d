package data

import (
	_ "embed"
)

//go:embed seed/units.yaml
var SeedUnits string
