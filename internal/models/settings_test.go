package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMergeUploadSettings(t *testing.T) {
	s, err := MergeUploadSettings(nil)
	require.NoError(t, err)
	assert.Equal(t, DefaultUploadSettings(), s)

	s, err = MergeUploadSettings([]byte(`{"api_url": "https://img.example/up", "unknown": 1}`))
	require.NoError(t, err)
	assert.Equal(t, "https://img.example/up", s.APIURL)
	assert.Equal(t, DefaultHeaders, s.Headers)
	assert.Equal(t, DefaultBody, s.Body)
	assert.Equal(t, DefaultTarget, s.Target)

	s, err = MergeUploadSettings([]byte(`{broken`))
	assert.Error(t, err)
	assert.Equal(t, DefaultUploadSettings(), s)
}

func TestSettingFields(t *testing.T) {
	fields := SettingFields()
	require.Len(t, fields, 4)
	labels := make([]string, 0, len(fields))
	for _, f := range fields {
		labels = append(labels, f.Label)
	}
	assert.Equal(t, []string{"Api URL", "Headers", "Body", "Response URL Target"}, labels)

	f, ok := LookupSettingField("target")
	require.True(t, ok)
	s := DefaultUploadSettings()
	f.Set(&s, "data.url")
	assert.Equal(t, "data.url", f.Get(&s))

	_, ok = LookupSettingField("nope")
	assert.False(t, ok)
}
