package config_test

import (
	"fmt"

	"github.com/openfroyo/lifecycle/pkg/config"
)

func ExampleManifestParser_ParseCUE() {
	parser := config.NewManifestParser(nil)

	m, err := parser.ParseCUE([]byte(`
components: [
	{name: "net", priority: "high"},
	{name: "web", requires: ["net"]},
]
`), "example.cue")
	if err != nil {
		fmt.Println(err)
		return
	}

	descs, err := m.Descriptors(nil)
	if err != nil {
		fmt.Println(err)
		return
	}
	for _, d := range descs {
		fmt.Println(d.Name, d.Priority, len(d.Dependencies))
	}
	// Output:
	// net high 0
	// web normal 1
}
