package cmd

import (
	"fmt"

	goccy "github.com/goccy/go-json"
	"gopkg.in/yaml.v3"
)

// render prints v to stdout as YAML (default) or JSON when --format=json
// is given.
func render(v interface{}) error {
	switch outputFormat {
	case "json":
		b, err := goccy.MarshalIndent(v, "", "  ")
		if err != nil {
			return err
		}
		fmt.Println(string(b))
		return nil
	default:
		b, err := yaml.Marshal(v)
		if err != nil {
			return err
		}
		fmt.Print(string(b))
		return nil
	}
}
