package cli

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/denismitr/lemondb"
	"github.com/denismitr/lemondb/snapshot"
)

const testSchema = `stores:
  things: "id++, name"
  pairs: "[shape+color]"
`

type cliRun struct {
	stdout string
	stderr string
	err    error
}

func execute(t *testing.T, stdin string, args ...string) cliRun {
	t.Helper()

	out, errOut := &bytes.Buffer{}, &bytes.Buffer{}
	cmd := NewRootCommand()
	cmd.SetOut(out)
	cmd.SetErr(errOut)
	cmd.SetIn(strings.NewReader(stdin))
	cmd.SetArgs(args)

	err := cmd.Execute()
	return cliRun{stdout: out.String(), stderr: errOut.String(), err: err}
}

func initDB(t *testing.T) (dir, db string) {
	t.Helper()

	dir = t.TempDir()
	db = filepath.Join(dir, "test.ldb")
	schema := filepath.Join(dir, "schema.yaml")
	require.NoError(t, os.WriteFile(schema, []byte(testSchema), 0666))

	r := execute(t, "", "--db", db, "init", "--schema", schema)
	require.NoError(t, r.err)
	assert.Equal(t, "pairs\t[shape+color]\nthings\tid++\n", r.stdout)

	return dir, db
}

func TestInitAndStores(t *testing.T) {
	_, db := initDB(t)
	assert.FileExists(t, db)

	r := execute(t, "", "--db", db, "stores")
	require.NoError(t, r.err)
	assert.Equal(t, "pairs\t[shape+color]\nthings\tid++\n", r.stdout)
}

func TestInitRequiresSchema(t *testing.T) {
	r := execute(t, "", "--db", lemondb.InMemory, "init")
	require.Error(t, r.err)
	assert.Contains(t, r.err.Error(), "schema")
}

func TestImportExportClear(t *testing.T) {
	dir, db := initDB(t)

	doc := filepath.Join(dir, "doc.json")
	require.NoError(t, os.WriteFile(doc, []byte(`{
		"things": [{"id": 1, "name": "A"}, {"id": 2, "name": "B"}],
		"pairs": [{"shape": "circle", "color": "red"}],
		"ghost": [{"id": 1}]
	}`), 0666))

	r := execute(t, "", "--db", db, "import", doc)
	require.NoError(t, r.err)
	assert.Equal(t, "imported "+doc+"\n", r.stdout)

	r = execute(t, "", "--db", db, "export")
	require.NoError(t, r.err)
	assert.True(t, strings.HasSuffix(r.stdout, "\n"))
	assert.JSONEq(t, `{
		"pairs": [{"shape": "circle", "color": "red"}],
		"things": [{"id": 1, "name": "A"}, {"id": 2, "name": "B"}]
	}`, r.stdout)

	t.Run("importing the same records again fails and changes nothing", func(t *testing.T) {
		r := execute(t, "", "--db", db, "import", doc)
		require.Error(t, r.err)
		assert.True(t, errors.Is(r.err, lemondb.ErrConstraint))

		var recErr *snapshot.RecordError
		require.True(t, errors.As(r.err, &recErr))

		after := execute(t, "", "--db", db, "export")
		require.NoError(t, after.err)
		assert.JSONEq(t, `{
			"pairs": [{"shape": "circle", "color": "red"}],
			"things": [{"id": 1, "name": "A"}, {"id": 2, "name": "B"}]
		}`, after.stdout)
	})

	t.Run("clear keeps the stores", func(t *testing.T) {
		r := execute(t, "", "--db", db, "clear")
		require.NoError(t, r.err)
		assert.Equal(t, "cleared 2 stores\n", r.stdout)

		after := execute(t, "", "--db", db, "export")
		require.NoError(t, after.err)
		assert.Equal(t, `{"pairs":[],"things":[]}`+"\n", after.stdout)

		stores := execute(t, "", "--db", db, "stores")
		require.NoError(t, stores.err)
		assert.Equal(t, "pairs\t[shape+color]\nthings\tid++\n", stores.stdout)
	})

	t.Run("auto increment continues after clear", func(t *testing.T) {
		r := execute(t, `{"things":[{"name":"C"}]}`, "--db", db, "import", "-")
		require.NoError(t, r.err)
		assert.Equal(t, "imported -\n", r.stdout)

		after := execute(t, "", "--db", db, "export")
		require.NoError(t, after.err)
		assert.JSONEq(t, `{"pairs":[],"things":[{"id":3,"name":"C"}]}`, after.stdout)
	})
}

func TestImportErrors(t *testing.T) {
	dir, db := initDB(t)

	t.Run("malformed document", func(t *testing.T) {
		r := execute(t, `{"things": [`, "--db", db, "import", "-")
		require.Error(t, r.err)
		assert.True(t, errors.Is(r.err, snapshot.ErrMalformedDocument))
	})

	t.Run("missing file", func(t *testing.T) {
		r := execute(t, "", "--db", db, "import", filepath.Join(dir, "nope.json"))
		require.Error(t, r.err)
	})

	t.Run("file argument is required", func(t *testing.T) {
		r := execute(t, "", "--db", db, "import")
		require.Error(t, r.err)
	})
}

func TestExportToFile(t *testing.T) {
	dir, db := initDB(t)

	r := execute(t, `{"things":[{"id":1,"name":"A"}]}`, "--db", db, "import", "-")
	require.NoError(t, r.err)

	out := filepath.Join(dir, "out.json")
	r = execute(t, "", "--db", db, "-v", "export", "--pretty", "-o", out)
	require.NoError(t, r.err)
	assert.Empty(t, r.stdout)
	assert.Contains(t, r.stderr, "database exported")
	assert.NoFileExists(t, out+".tmp")

	data, err := os.ReadFile(out)
	require.NoError(t, err)
	assert.Contains(t, string(data), "\n  ")

	var decoded map[string]interface{}
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Equal(t, map[string]interface{}{
		"pairs":  []interface{}{},
		"things": []interface{}{map[string]interface{}{"id": 1.0, "name": "A"}},
	}, decoded)
}

func TestTypedRoundTrip(t *testing.T) {
	_, db := initDB(t)

	typed := `{"things":[{"$types":{"at":"date"},"at":"2021-03-04T05:06:07Z","id":1}]}`
	r := execute(t, typed, "--db", db, "--typed", "import", "-")
	require.NoError(t, r.err)

	r = execute(t, "", "--db", db, "--typed", "export")
	require.NoError(t, r.err)
	assert.Equal(t, `{"pairs":[],"things":[{"$types":{"at":"date"},"at":"2021-03-04T05:06:07Z","id":1}]}`+"\n", r.stdout)
}
