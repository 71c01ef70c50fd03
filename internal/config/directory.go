package config

import (
	_ "embed"
	"fmt"
	"slices"
	"strings"

	"gopkg.in/yaml.v3"
)

//go:embed environments.yaml
var directoryYAML []byte

// CMSEndpoint is the CMS configuration for one environment label.
type CMSEndpoint struct {
	Endpoint        string `yaml:"endpoint"`
	BasePath        string `yaml:"basePath"`
	CDNHost         string `yaml:"cdnHost"`
	APIKeySecretArn string `yaml:"apiKeySecretArn"`
}

// ThronEndpoint is the Thron configuration for one environment label.
type ThronEndpoint struct {
	Host            string `yaml:"host"`
	AdminHost       string `yaml:"adminHost"`
	PublicFolder    string `yaml:"publicFolder"`
	ConfigSecretArn string `yaml:"configSecretArn"`
}

// Directory is the static table of external-service endpoints.
type Directory struct {
	CMS   map[string]CMSEndpoint   `yaml:"cms"`
	Thron map[string]ThronEndpoint `yaml:"thron"`
}

// LoadDirectory parses the embedded directory.
func LoadDirectory() (Directory, error) {
	var d Directory
	if err := yaml.Unmarshal(directoryYAML, &d); err != nil {
		return Directory{}, fmt.Errorf("invalid environment directory: %w", err)
	}
	return d, nil
}

// CMSFor returns the CMS endpoints for label.
func (d Directory) CMSFor(label string) (CMSEndpoint, error) {
	c, ok := d.CMS[label]
	if !ok {
		return CMSEndpoint{}, fmt.Errorf("unknown CMS_ENV %q (known: %s)", label, strings.Join(sortedKeys(d.CMS), ", "))
	}
	return c, nil
}

// ThronFor returns the Thron endpoints for label.
func (d Directory) ThronFor(label string) (ThronEndpoint, error) {
	t, ok := d.Thron[label]
	if !ok {
		return ThronEndpoint{}, fmt.Errorf("unknown THRON_ENV %q (known: %s)", label, strings.Join(sortedKeys(d.Thron), ", "))
	}
	return t, nil
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}
