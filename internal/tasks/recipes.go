package tasks

import (
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// Recipe is a named patch transformation.
type Recipe struct {
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	Custom      bool   `json:"custom"`
}

// builtinRecipes is the static table of recipes shipped with the patch
// tool. Custom recipe discovery never touches this list.
var builtinRecipes = []Recipe{
	{Name: "ExtractElements", Description: "Extract a filtered subset of elements into a new model"},
	{Name: "MergeProjects", Description: "Merge multiple models into a single project"},
	{Name: "Optimise", Description: "Rewrite the model with deduplicated instances"},
	{Name: "ResetAbsoluteCoordinates", Description: "Rebase large placement coordinates to the origin"},
	{Name: "SplitByBuildingStorey", Description: "Split a model into one file per storey"},
	{Name: "ConvertLengthUnit", Description: "Convert the project length unit"},
	{Name: "Migrate", Description: "Migrate the model to another IFC schema version"},
	{Name: "OffsetObjectPlacements", Description: "Apply a translation or rotation to all placements"},
	{Name: "Purge", Description: "Remove orphaned or unused entities"},
	{Name: "SetFalseOrigin", Description: "Set a false origin for coordinate readability"},
}

// BuiltinRecipes returns a copy of the static recipe table.
func BuiltinRecipes() []Recipe {
	out := make([]Recipe, len(builtinRecipes))
	copy(out, builtinRecipes)
	return out
}

// ScanCustomRecipes discovers custom recipes in dir: every .py file
// contributes one recipe named after the filename stem. A missing
// directory yields an empty list.
func ScanCustomRecipes(dir string) ([]Recipe, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}

	var recipes []Recipe
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		name := entry.Name()
		if !strings.HasSuffix(name, ".py") || strings.HasPrefix(name, "_") {
			continue
		}
		recipes = append(recipes, Recipe{
			Name:   strings.TrimSuffix(name, filepath.Ext(name)),
			Custom: true,
		})
	}
	sort.Slice(recipes, func(i, j int) bool { return recipes[i].Name < recipes[j].Name })
	return recipes, nil
}
