package registry

import (
	"github.com/mark3labs/mcp-go/mcp"
)

// toolNameSeparator joins a service id and a tool name into the qualified
// name exposed in the aggregated catalog. Qualification makes cross-service
// tool name collisions unambiguous instead of silently dropping one side.
const toolNameSeparator = "_"

// QualifiedToolName builds the catalog name for a tool owned by a service.
func QualifiedToolName(serviceID, toolName string) string {
	return serviceID + toolNameSeparator + toolName
}

// AggregatedTool is one entry of the merged tool catalog.
type AggregatedTool struct {
	QualifiedName string
	ServiceID     string
	Tool          mcp.Tool
}

// BuildCatalog projects a registry snapshot into the ordered aggregated tool
// catalog. Only services holding a live session contribute; a service that
// disconnected before the snapshot is simply absent.
//
// The function is pure: it reads nothing but its argument, so the dispatcher
// rebuilds the catalog once per query instead of caching it.
func BuildCatalog(snapshot []ServiceView) []AggregatedTool {
	var catalog []AggregatedTool
	for _, svc := range snapshot {
		if !svc.Status.Healthy() {
			continue
		}
		for _, tool := range svc.Tools {
			catalog = append(catalog, AggregatedTool{
				QualifiedName: QualifiedToolName(svc.ID, tool.Name),
				ServiceID:     svc.ID,
				Tool:          tool,
			})
		}
	}
	return catalog
}
