package settings

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sif-backend/internal/domain"
	"sif-backend/pkg/errors"
)

func v1Document() map[string]interface{} {
	return map[string]interface{}{
		"uid":     "user-1",
		"version": int64(1),
		"profile": map[string]interface{}{
			"displayName": "Alice",
		},
		"notifications": map[string]interface{}{
			"enabled": true,
			"sound":   false,
			"badge":   true,
		},
	}
}

func TestNeedsMigration(t *testing.T) {
	m := NewMigrator()

	assert.True(t, m.NeedsMigration(1))
	assert.True(t, m.NeedsMigration(2))
	assert.False(t, m.NeedsMigration(domain.CurrentSettingsSchemaVersion))
	assert.False(t, m.NeedsMigration(domain.CurrentSettingsSchemaVersion+1))
}

func TestMigrate_CurrentVersionIsNoOp(t *testing.T) {
	m := NewMigrator()
	doc := map[string]interface{}{"version": int64(domain.CurrentSettingsSchemaVersion)}

	out, result, err := m.Migrate(doc, domain.CurrentSettingsSchemaVersion)

	assert.NoError(t, err)
	assert.Equal(t, MigrationNotNeeded, result)
	assert.Equal(t, doc, out)
}

func TestMigrate_V1ToCurrent(t *testing.T) {
	m := NewMigrator()

	out, result, err := m.Migrate(v1Document(), 1)
	require.NoError(t, err)
	assert.Equal(t, MigrationApplied, result)
	assert.Equal(t, int64(domain.CurrentSettingsSchemaVersion), out["version"])

	prefs, ok := out["notifications"].(map[string]interface{})
	require.True(t, ok)

	// flat v1 toggles carried through to the v2 shape
	assert.Equal(t, true, prefs["enabled"])
	assert.Equal(t, false, prefs["soundEnabled"])
	assert.Equal(t, true, prefs["badgeEnabled"])

	categories, ok := prefs["categoryOverrides"].(map[string]interface{})
	require.True(t, ok)
	assert.Len(t, categories, len(domain.AllNotificationCategories))

	types, ok := prefs["typeOverrides"].(map[string]interface{})
	require.True(t, ok)
	assert.Len(t, types, len(domain.AllNotificationTypes))

	// v3 additions present
	assert.Equal(t, false, prefs["digestEnabled"])
	appearance, ok := out["appearance"].(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, "system", appearance["theme"])

	// untouched sections survive
	profile, ok := out["profile"].(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, "Alice", profile["displayName"])
}

func TestMigrate_V2ToCurrent(t *testing.T) {
	m := NewMigrator()

	v2, _, err := m.Migrate(v1Document(), 1)
	require.NoError(t, err)

	// rewind the version stamp to replay just the v2 step
	v2["version"] = int64(2)
	delete(v2, "appearance")

	out, result, err := m.Migrate(v2, 2)
	require.NoError(t, err)
	assert.Equal(t, MigrationApplied, result)
	assert.Equal(t, int64(3), out["version"])
	assert.Contains(t, out, "appearance")
}

func TestMigrate_DoesNotMutateInput(t *testing.T) {
	m := NewMigrator()
	in := v1Document()

	_, _, err := m.Migrate(in, 1)
	require.NoError(t, err)

	assert.Equal(t, int64(1), in["version"], "input version must be untouched")
	prefs := in["notifications"].(map[string]interface{})
	assert.NotContains(t, prefs, "categoryOverrides", "input document must not gain migrated fields")
}

func TestMigrate_UnknownVersion(t *testing.T) {
	m := NewMigrator()

	for _, version := range []int{0, -1, domain.CurrentSettingsSchemaVersion + 1} {
		_, _, err := m.Migrate(map[string]interface{}{}, version)
		require.Error(t, err)
		assert.True(t, errors.IsCode(err, errors.ErrCodeMigrationFailed))
	}
}

func TestMigrate_ErrorNamesVersionPair(t *testing.T) {
	m := NewMigrator()

	// a v2 document without the notifications sub-document fails the v2 step
	_, _, err := m.Migrate(map[string]interface{}{"version": int64(2)}, 2)
	require.Error(t, err)

	appErr := errors.GetAppError(err)
	require.NotNil(t, appErr)
	assert.Equal(t, errors.ErrCodeMigrationFailed, appErr.Code)
	assert.Contains(t, appErr.Error(), "2")
	assert.Contains(t, appErr.Error(), "3")
}
