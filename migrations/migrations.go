// Package migrations embeds the inventory schema.
package migrations

import (
	"embed"
	"io/fs"
	"sort"
	"strings"

	"github.com/scentflow/scentflow-backend/pkg/database"
)

//go:embed *.sql
var files embed.FS

// All returns the embedded migrations ordered by file name
// (NNN_description.sql). The file name without extension is the version.
func All() ([]database.Migration, error) {
	entries, err := fs.ReadDir(files, ".")
	if err != nil {
		return nil, err
	}

	migrations := make([]database.Migration, 0, len(entries))
	for _, entry := range entries {
		body, err := files.ReadFile(entry.Name())
		if err != nil {
			return nil, err
		}
		migrations = append(migrations, database.Migration{
			Version: strings.TrimSuffix(entry.Name(), ".sql"),
			SQL:     string(body),
		})
	}

	sort.Slice(migrations, func(i, j int) bool {
		return migrations[i].Version < migrations[j].Version
	})
	return migrations, nil
}
