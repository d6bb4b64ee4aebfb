package tasks

import (
	"context"
	"fmt"

	"github.com/openbim/ifcpipeline/internal/kind"
)

// Patch applies a named recipe to a model. Custom recipes are looked up
// in the custom-recipe directory; built-in recipes ship with the tool.
func (e *Env) Patch(ctx context.Context, req kind.PatchRequest) (any, error) {
	if req.UseCustom {
		recipes, err := ScanCustomRecipes(e.CustomRecipesDir)
		if err != nil {
			return nil, fmt.Errorf("failed to scan custom recipes: %w", err)
		}
		if !hasRecipe(recipes, req.Recipe) {
			return nil, fmt.Errorf("unknown custom recipe %q", req.Recipe)
		}
	}

	in, err := e.input(req.InputFile)
	if err != nil {
		return nil, err
	}
	out, err := e.output(kind.Patch.OutputDir, req.OutputFile)
	if err != nil {
		return nil, err
	}

	e.Log.Info().Str("recipe", req.Recipe).Bool("custom", req.UseCustom).Msg("running patch")
	if err := e.runTool(ctx, "ifcpatch", out, func(tmpOut string) []string {
		args := []string{"--input", in, "--output", tmpOut, "--recipe", req.Recipe}
		if req.UseCustom {
			args = append(args, "--recipe-dir", e.CustomRecipesDir)
		}
		for _, a := range req.Arguments {
			args = append(args, "--arg", fmt.Sprint(a))
		}
		return args
	}); err != nil {
		return nil, err
	}
	return map[string]any{
		"success":     true,
		"output_path": out,
		"recipe":      req.Recipe,
	}, nil
}

// PatchList enumerates available recipes. Answered synchronously by the
// gateway, so it must stay cheap: a static table plus one directory
// scan.
func (e *Env) PatchList(ctx context.Context, req kind.PatchListRequest) (any, error) {
	var recipes []Recipe
	builtinCount := 0
	customCount := 0

	if req.IncludeBuiltin {
		recipes = append(recipes, BuiltinRecipes()...)
		builtinCount = len(recipes)
	}
	if req.IncludeCustom {
		custom, err := ScanCustomRecipes(e.CustomRecipesDir)
		if err != nil {
			return nil, fmt.Errorf("failed to scan custom recipes: %w", err)
		}
		recipes = append(recipes, custom...)
		customCount = len(custom)
	}

	return map[string]any{
		"recipes":       recipes,
		"builtin_count": builtinCount,
		"custom_count":  customCount,
		"total_count":   builtinCount + customCount,
	}, nil
}

func hasRecipe(recipes []Recipe, name string) bool {
	for _, r := range recipes {
		if r.Name == name {
			return true
		}
	}
	return false
}
