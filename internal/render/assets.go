package render

import (
	_ "embed"
	"fmt"

	"github.com/evanw/esbuild/pkg/api"
)

//go:embed viewer/viewer.ts
var viewerTS string

//go:embed viewer/viewer.css
var viewerCSS string

// ViewerAssets holds the compiled viewer bundle injected into every
// composed report page.
type ViewerAssets struct {
	JS  string
	CSS string
}

// BuildViewer compiles the embedded viewer source into a single-file JS
// bundle and its stylesheet. Pass minify=false for readable output when
// debugging captures.
func BuildViewer(minify bool) (*ViewerAssets, error) {
	js, err := buildStdin(viewerTS, "viewer.ts", api.LoaderTS, minify)
	if err != nil {
		return nil, fmt.Errorf("viewer script build failed: %w", err)
	}
	css, err := buildStdin(viewerCSS, "viewer.css", api.LoaderCSS, minify)
	if err != nil {
		return nil, fmt.Errorf("viewer stylesheet build failed: %w", err)
	}
	return &ViewerAssets{JS: js, CSS: css}, nil
}

func buildStdin(contents, sourcefile string, loader api.Loader, minify bool) (string, error) {
	buildOpts := api.BuildOptions{
		Stdin: &api.StdinOptions{
			Contents:   contents,
			Sourcefile: sourcefile,
			Loader:     loader,
		},
		Bundle:   true,
		Write:    false, // Keep in memory for injection
		Platform: api.PlatformBrowser,
		Format:   api.FormatIIFE,
		Target:   api.ES2020,
		LogLevel: api.LogLevelSilent,
	}
	if minify {
		buildOpts.MinifyWhitespace = true
		buildOpts.MinifyIdentifiers = true
		buildOpts.MinifySyntax = true
	}

	result := api.Build(buildOpts)
	if len(result.Errors) > 0 {
		var errMsg string
		for _, buildErr := range result.Errors {
			if buildErr.Location != nil {
				errMsg += fmt.Sprintf("%s:%d:%d: %s\n",
					buildErr.Location.File,
					buildErr.Location.Line,
					buildErr.Location.Column,
					buildErr.Text)
				continue
			}
			errMsg += buildErr.Text + "\n"
		}
		return "", fmt.Errorf("esbuild errors:\n%s", errMsg)
	}

	if len(result.OutputFiles) == 0 {
		return "", fmt.Errorf("no output generated for %s", sourcefile)
	}
	return string(result.OutputFiles[0].Contents), nil
}
