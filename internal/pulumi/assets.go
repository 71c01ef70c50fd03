package provider

import (
	"fmt"
	"os"
	"path"
	"path/filepath"

	"github.com/pulumi/pulumi/sdk/v3/go/pulumi"

	"github.com/fanapp/fanapp-personalization/internal/utils"
)

// Asset sub-directories under the asset root.
const (
	functionsDir = "functions"
	jobsDir      = "jobs"
	layersDir    = "pythonlayers"
)

// Files never shipped in an archive.
var assetExcludes = []string{
	"**/__pycache__/**",
	"**/*.pyc",
	"tests/**",
	"**/tests/**",
}

// assetArchive packs every file under dir, keyed by its slash path relative
// to dir and prefixed with prefix.
func assetArchive(dir, prefix string) (pulumi.Archive, error) {
	info, err := os.Stat(dir)
	if err != nil {
		return nil, fmt.Errorf("asset directory %s: %w", dir, err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("asset directory %s is not a directory", dir)
	}
	files, err := utils.GlobFiltered(dir, []string{"**"}, assetExcludes)
	if err != nil {
		return nil, fmt.Errorf("failed to list assets in %s: %w", dir, err)
	}
	if len(files) == 0 {
		return nil, fmt.Errorf("asset directory %s has no files", dir)
	}
	assets := make(map[string]interface{}, len(files))
	for _, f := range files {
		rel, err := filepath.Rel(dir, f)
		if err != nil {
			return nil, err
		}
		assets[path.Join(prefix, filepath.ToSlash(rel))] = pulumi.NewFileAsset(f)
	}
	return pulumi.NewAssetArchive(assets), nil
}

// functionCode archives <root>/functions/<name>.
func functionCode(root, name string) (pulumi.Archive, error) {
	return assetArchive(filepath.Join(root, functionsDir, name), "")
}

// layerCode archives <root>/pythonlayers/<name> under the python/ prefix
// expected by the Python runtime.
func layerCode(root, name string) (pulumi.Archive, error) {
	return assetArchive(filepath.Join(root, layersDir, name), "python")
}

// jobScript returns <root>/jobs/<name>/main.py.
func jobScript(root, name string) (pulumi.Asset, error) {
	p := filepath.Join(root, jobsDir, name, "main.py")
	if _, err := os.Stat(p); err != nil {
		return nil, fmt.Errorf("glue script %s: %w", p, err)
	}
	return pulumi.NewFileAsset(p), nil
}
