package settings

import (
	"fmt"

	"sif-backend/internal/domain"
	"sif-backend/pkg/errors"
)

// MigrationResult reports what Migrate did with a raw document
type MigrationResult int

const (
	// MigrationNotNeeded means the document is already at the current schema version
	MigrationNotNeeded MigrationResult = iota
	// MigrationApplied means a new, migrated document was produced
	MigrationApplied
)

// Migrator upgrades raw settings documents to the current schema version.
// Migrations run stepwise: every shipped version has a defined path to the
// next one, so any past document can be bridged transitively.
type Migrator struct {
	steps map[int]func(map[string]interface{}) (map[string]interface{}, error)
}

// NewMigrator creates a migrator covering every shipped schema version
func NewMigrator() *Migrator {
	return &Migrator{
		steps: map[int]func(map[string]interface{}) (map[string]interface{}, error){
			1: migrateV1toV2,
			2: migrateV2toV3,
		},
	}
}

// NeedsMigration reports whether a document at the given version must be
// migrated before it is exposed to application code.
func (m *Migrator) NeedsMigration(version int) bool {
	return version < domain.CurrentSettingsSchemaVersion
}

// Migrate produces a current-version raw document from the given one.
// The input document is never mutated; each step returns a new map.
// A document already at the current version yields a no-op result.
func (m *Migrator) Migrate(raw map[string]interface{}, version int) (map[string]interface{}, MigrationResult, error) {
	if version == domain.CurrentSettingsSchemaVersion {
		return raw, MigrationNotNeeded, nil
	}
	if version < 1 || version > domain.CurrentSettingsSchemaVersion {
		return nil, MigrationNotNeeded, errors.MigrationError(version, domain.CurrentSettingsSchemaVersion,
			fmt.Errorf("unknown settings schema version %d", version))
	}

	doc := deepCopy(raw)
	for v := version; v < domain.CurrentSettingsSchemaVersion; v++ {
		step, ok := m.steps[v]
		if !ok {
			return nil, MigrationNotNeeded, errors.MigrationError(v, v+1,
				fmt.Errorf("no migration step defined"))
		}
		next, err := step(doc)
		if err != nil {
			return nil, MigrationNotNeeded, errors.MigrationError(v, v+1, err)
		}
		next["version"] = int64(v + 1)
		doc = next
	}

	return doc, MigrationApplied, nil
}

// migrateV1toV2 expands the v1 flat notification toggles into the v2 shape
// with per-category and per-type override maps and a quiet-hours window.
func migrateV1toV2(doc map[string]interface{}) (map[string]interface{}, error) {
	out := deepCopy(doc)

	old, _ := out["notifications"].(map[string]interface{})
	if old == nil {
		old = map[string]interface{}{}
	}
	enabled := boolField(old, "enabled", true)
	sound := boolField(old, "sound", true)
	badge := boolField(old, "badge", true)

	categories := map[string]interface{}{}
	for _, c := range domain.AllNotificationCategories {
		categories[string(c)] = map[string]interface{}{"enabled": true, "sound": true, "badge": true}
	}
	types := map[string]interface{}{}
	for _, t := range domain.AllNotificationTypes {
		types[string(t)] = map[string]interface{}{"enabled": true, "sound": true, "badge": true}
	}

	out["notifications"] = map[string]interface{}{
		"enabled":                   enabled,
		"soundEnabled":              sound,
		"badgeEnabled":              badge,
		"bannerEnabled":             true,
		"lockScreenEnabled":         true,
		"notificationCenterEnabled": true,
		"categoryOverrides":         categories,
		"typeOverrides":             types,
		"quietHoursEnabled":         false,
		"quietHoursStart":           "22:00",
		"quietHoursEnd":             "08:00",
	}
	return out, nil
}

// migrateV2toV3 adds digest settings and the appearance sub-document
func migrateV2toV3(doc map[string]interface{}) (map[string]interface{}, error) {
	out := deepCopy(doc)

	prefs, _ := out["notifications"].(map[string]interface{})
	if prefs == nil {
		return nil, fmt.Errorf("v2 document is missing the notifications sub-document")
	}
	if _, ok := prefs["digestEnabled"]; !ok {
		prefs["digestEnabled"] = false
		prefs["digestHour"] = int64(9)
		prefs["maxPerHour"] = int64(0)
	}
	out["notifications"] = prefs

	if _, ok := out["appearance"]; !ok {
		out["appearance"] = map[string]interface{}{
			"theme":     "system",
			"fontScale": int64(100),
		}
	}
	return out, nil
}

func boolField(doc map[string]interface{}, key string, fallback bool) bool {
	if v, ok := doc[key].(bool); ok {
		return v
	}
	return fallback
}

// deepCopy copies a raw document so migration steps never mutate their input
func deepCopy(in map[string]interface{}) map[string]interface{} {
	out := make(map[string]interface{}, len(in))
	for k, v := range in {
		switch t := v.(type) {
		case map[string]interface{}:
			out[k] = deepCopy(t)
		case []interface{}:
			s := make([]interface{}, len(t))
			for i, e := range t {
				if m, ok := e.(map[string]interface{}); ok {
					s[i] = deepCopy(m)
				} else {
					s[i] = e
				}
			}
			out[k] = s
		default:
			out[k] = v
		}
	}
	return out
}
