package ui

import (
	"fmt"
	"strings"

	"github.com/muurk/wsduplex/internal/discovery"
)

// RenderInstances lists discovered servers, one per line.
func RenderInstances(instances []*discovery.Instance) string {
	if len(instances) == 0 {
		return MutedStyle.Render("No wsduplex servers found.")
	}

	var b strings.Builder
	for _, inst := range instances {
		version := inst.Version
		if version == "" {
			version = "unknown"
		}
		fmt.Fprintf(&b, "%s %s %s\n",
			HeaderParamValueStyle.Render(inst.Name),
			EndpointStyle.Render(inst.URL()),
			MutedStyle.Render("("+version+")"),
		)
	}
	return strings.TrimRight(b.String(), "\n")
}
