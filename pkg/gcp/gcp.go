// Package gcp resolves credentials and resource names shared by the Pub/Sub
// and BigQuery clients.
package gcp

import (
	"strings"

	"google.golang.org/api/option"

	"github.com/BenTyson/evercraft-sub001/pkg/config"
)

// ClientOptions prefers inline JSON credentials over a credentials file.
// With neither set, application default credentials apply.
func ClientOptions(cfg config.GCPConfig) []option.ClientOption {
	if raw := strings.TrimSpace(cfg.CredentialsJSON); raw != "" {
		return []option.ClientOption{option.WithCredentialsJSON([]byte(raw))}
	}
	if path := strings.TrimSpace(cfg.ApplicationCredentials); path != "" {
		return []option.ClientOption{option.WithCredentialsFile(path)}
	}
	return nil
}

// ResourceName expands a short id into projects/<project>/<collection>/<id>.
// Names that are already fully qualified for the collection pass through.
// It returns "" when either the id or the project is blank.
func ResourceName(project, collection, id string) string {
	id = strings.TrimSpace(id)
	if id == "" {
		return ""
	}
	if strings.HasPrefix(id, "projects/") && strings.Contains(id, "/"+collection+"/") {
		return id
	}
	project = strings.TrimSpace(project)
	if project == "" {
		return ""
	}
	return "projects/" + project + "/" + collection + "/" + id
}
