package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// DefaultYAML renders the default configuration as commented YAML. This is
// what `branchlite init` writes.
func DefaultYAML() ([]byte, error) {
	data, err := yaml.Marshal(defaultYAMLDoc(DefaultDataDir()))
	if err != nil {
		return nil, fmt.Errorf("rendering default config: %w", err)
	}
	return data, nil
}

// WriteDefault writes the default configuration file at path, atomically.
func WriteDefault(path string) error {
	data, err := DefaultYAML()
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}
	if err := atomicWriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("writing config: %w", err)
	}
	return nil
}

func defaultYAMLDoc(dataDir string) *yaml.Node {
	key := func(name, comment string) *yaml.Node {
		return &yaml.Node{Kind: yaml.ScalarNode, Value: name, HeadComment: comment}
	}
	str := func(v string) *yaml.Node {
		return &yaml.Node{Kind: yaml.ScalarNode, Value: v}
	}
	num := func(v string) *yaml.Node {
		return &yaml.Node{Kind: yaml.ScalarNode, Value: v, Tag: "!!int"}
	}

	doc := &yaml.Node{Kind: yaml.MappingNode}
	doc.HeadComment = "branchlite configuration\n" +
		"Every key can also be set through the environment\n" +
		"(data.dir -> BRANCHLITE_DATA_DIR) or a command-line flag."
	doc.Content = []*yaml.Node{
		key("data", ""),
		{Kind: yaml.MappingNode, Content: []*yaml.Node{
			key("dir", "Root directory for the project registry and per-project stores."),
			str(dataDir),
		}},
		key("sql", ""),
		{Kind: yaml.MappingNode, Content: []*yaml.Node{
			key("max_rows", "Row cap for SELECT results; larger sets are marked truncated."),
			num("500"),
			key("busy_timeout_ms", "How long statements wait on a locked store."),
			num("5000"),
		}},
		key("log", "Set log.file to send logs to a path instead of stderr."),
		{Kind: yaml.MappingNode, Content: []*yaml.Node{
			key("level", "debug | info | warn | error"),
			str("info"),
			key("format", "auto | text | json"),
			str("auto"),
		}},
	}
	return doc
}
