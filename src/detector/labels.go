package detector

import (
	"fmt"
	"os"
	"sort"

	"gopkg.in/yaml.v3"
)

// LoadLabels reads class names from a dataset yaml. Both the list form
// (names: [a, b]) and the indexed map form (names: {0: a}) are accepted.
func LoadLabels(path string) ([]string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var doc struct {
		Names yaml.Node `yaml:"names"`
	}
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	switch doc.Names.Kind {
	case yaml.SequenceNode:
		var names []string
		if err := doc.Names.Decode(&names); err != nil {
			return nil, err
		}
		return names, nil
	case yaml.MappingNode:
		var byIndex map[int]string
		if err := doc.Names.Decode(&byIndex); err != nil {
			return nil, err
		}
		idx := make([]int, 0, len(byIndex))
		for i := range byIndex {
			idx = append(idx, i)
		}
		sort.Ints(idx)
		names := make([]string, 0, len(idx))
		for _, i := range idx {
			if i != len(names) {
				return nil, fmt.Errorf("%s: class indices must be contiguous from 0", path)
			}
			names = append(names, byIndex[i])
		}
		return names, nil
	}
	return nil, fmt.Errorf("%s: missing names", path)
}
