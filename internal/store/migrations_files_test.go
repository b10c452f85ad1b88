package store

import (
	"io/fs"
	"regexp"
	"testing"
)

func TestMigrationsHaveMatchingUpAndDownFiles(t *testing.T) {
	pattern := regexp.MustCompile(`^(\d+)_.*\.(up|down)\.sql$`)

	for _, dialect := range []string{DialectPostgres, DialectSQLite} {
		migrations, err := Migrations(dialect, "")
		if err != nil {
			t.Fatalf("open %s migrations: %v", dialect, err)
		}
		entries, err := fs.ReadDir(migrations, ".")
		if err != nil {
			t.Fatalf("read %s migrations: %v", dialect, err)
		}

		byVersion := map[string]map[string]bool{}
		for _, entry := range entries {
			match := pattern.FindStringSubmatch(entry.Name())
			if match == nil {
				continue
			}
			version, direction := match[1], match[2]
			if byVersion[version] == nil {
				byVersion[version] = map[string]bool{}
			}
			if byVersion[version][direction] {
				t.Fatalf("%s: duplicate %s migration file for version %s", dialect, direction, version)
			}
			byVersion[version][direction] = true
		}

		if len(byVersion) == 0 {
			t.Fatalf("%s: no migrations discovered", dialect)
		}
		for version, dirs := range byVersion {
			if !dirs["up"] || !dirs["down"] {
				t.Fatalf("%s: version %s must include both up and down files", dialect, version)
			}
		}
	}
}

func TestDialectsShipTheSameMigrationVersions(t *testing.T) {
	names := func(dialect string) map[string]bool {
		migrations, err := Migrations(dialect, "")
		if err != nil {
			t.Fatalf("open %s migrations: %v", dialect, err)
		}
		entries, err := fs.ReadDir(migrations, ".")
		if err != nil {
			t.Fatalf("read %s migrations: %v", dialect, err)
		}
		out := map[string]bool{}
		for _, entry := range entries {
			out[entry.Name()] = true
		}
		return out
	}

	postgres := names(DialectPostgres)
	sqlite := names(DialectSQLite)
	for name := range postgres {
		if !sqlite[name] {
			t.Fatalf("sqlite is missing %s", name)
		}
	}
	for name := range sqlite {
		if !postgres[name] {
			t.Fatalf("postgres is missing %s", name)
		}
	}
}
