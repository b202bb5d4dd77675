package registry

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dkourtesis/fusion-semantic-registry-sub001/internal/shared/fault"
	"github.com/dkourtesis/fusion-semantic-registry-sub001/internal/shared/testutil"
)

const weatherSeed = `
provider:
  key: weather-co
  name: Weather Co
  description: Forecast services
services:
  - key: forecast-basic
    name: Basic Forecast
    category_uri: urn:cat:forecast
    input_uris: [urn:in:location]
    output_uris: [urn:out:temperature]
  - key: forecast-pro
    name: Pro Forecast
    category_uri: urn:cat:forecast
    input_uris: [urn:in:location, urn:in:date]
    output_uris: [urn:out:temperature, urn:out:humidity]
`

func writeSeed(t *testing.T, dir, name, content string) {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func TestSeedDirectory(t *testing.T) {
	f := newFixture(t)
	dir := t.TempDir()
	writeSeed(t, dir, "weather.yaml", weatherSeed)
	writeSeed(t, dir, "nested/billing.yml", "provider:\n  name: Billing\nservices:\n  - name: Invoice\n")
	writeSeed(t, dir, "broken.yaml", "provider: [unterminated")
	writeSeed(t, dir, "notes.txt", "ignored")

	seeder := NewSeeder(f.manager, dir, "", nil)
	result, err := seeder.Seed(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 3, result.Files)
	assert.Equal(t, 1, result.Failed)
	assert.Equal(t, 2, result.Providers)
	assert.Equal(t, 3, result.Services)

	p, err := f.manager.GetProvider("weather-co")
	require.NoError(t, err)
	assert.Equal(t, SystemOwner, p.Owner)

	svc, err := f.manager.GetService("forecast-pro")
	require.NoError(t, err)
	assert.Equal(t, []string{"urn:in:date", "urn:in:location"}, svc.InputURIs)

	// seeded services are visible to the index
	affected, err := f.manager.AddRFP(context.Background(), f.alice,
		testutil.CreateTestRFP("urn:rfp:temp", "urn:cat:forecast", []string{"urn:in:location"}, []string{"urn:out:temperature"}))
	require.NoError(t, err)
	assert.Equal(t, []string{"forecast-basic", "forecast-pro"}, affected)
}

func TestSeedIsRepeatable(t *testing.T) {
	f := newFixture(t)
	dir := t.TempDir()
	writeSeed(t, dir, "weather.yaml", weatherSeed)

	seeder := NewSeeder(f.manager, dir, "*.yaml", nil)
	for n := 0; n < 2; n++ {
		result, err := seeder.Seed(context.Background())
		require.NoError(t, err)
		assert.Equal(t, 0, result.Failed)
	}

	services, err := f.manager.ListServices("weather-co")
	require.NoError(t, err)
	assert.Len(t, services, 2)
}

func TestSeedSystemRecordsAreProtected(t *testing.T) {
	f := newFixture(t)
	seeder := NewSeeder(f.manager, t.TempDir(), "", nil)
	_, err := seeder.Load([]byte(weatherSeed))
	require.NoError(t, err)

	_, err = f.manager.DeleteService(context.Background(), f.alice, "forecast-basic")
	testutil.AssertFault(t, err, fault.Auth)
}

func TestSeedErrors(t *testing.T) {
	f := newFixture(t)

	result, err := NewSeeder(f.manager, filepath.Join(t.TempDir(), "missing"), "", nil).Seed(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, result.Files)

	_, err = NewSeeder(f.manager, t.TempDir(), "[", nil).Seed(context.Background())
	testutil.AssertFault(t, err, fault.Configuration)

	seeder := NewSeeder(f.manager, t.TempDir(), "", nil)
	_, err = seeder.Load([]byte("services: []"))
	testutil.AssertFault(t, err, fault.MalformedInput)

	n, err := seeder.Load([]byte("provider:\n  name: P\nservices:\n  - name: ok\n  - name: bad\n    input_uris: ['a b']\n"))
	assert.Error(t, err)
	assert.Equal(t, 1, n)
}

func TestSeedTranscodesLegacyCharset(t *testing.T) {
	f := newFixture(t)
	dir := t.TempDir()

	// "é" and "è" as single Latin-1 bytes
	latin1 := "provider:\n  key: cafe\n  name: Caf\xe9 Cr\xe8me\n" +
		"  description: Donn\xe9es m\xe9t\xe9o et soci\xe9t\xe9 g\xe9n\xe9rale, tr\xe8s d\xe9taill\xe9es\n" +
		"services:\n  - key: cafe-menu\n    name: Menu\n"
	writeSeed(t, dir, "cafe.yaml", latin1)

	result, err := NewSeeder(f.manager, dir, "", nil).Seed(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, result.Failed)

	p, err := f.manager.GetProvider("cafe")
	require.NoError(t, err)
	assert.True(t, utf8.ValidString(p.Name))
	assert.True(t, strings.HasPrefix(p.Name, "Caf"))
}

func TestToUTF8PassesThroughUTF8(t *testing.T) {
	in := []byte("name: Café")
	out, cs, err := toUTF8(in)
	require.NoError(t, err)
	assert.Equal(t, "UTF-8", cs)
	assert.Equal(t, in, out)
}
