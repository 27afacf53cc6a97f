package snapshot_test

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/sebdah/goldie/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"

	"github.com/denismitr/lemondb"
	"github.com/denismitr/lemondb/snapshot"
)

func openLemon(t *testing.T, path string, definitions map[string]string) *lemondb.DB {
	t.Helper()

	schema, err := lemondb.ParseSchemas(definitions)
	require.NoError(t, err)

	db, closer, err := lemondb.Open(path, &lemondb.Config{Schema: schema, NoSync: true})
	require.NoError(t, err)
	t.Cleanup(func() { _ = closer() })

	return db
}

func add(t *testing.T, db *lemondb.DB, store string, values ...interface{}) {
	t.Helper()

	err := db.Update(context.Background(), func(tx *lemondb.Tx) error {
		s, err := tx.ObjectStore(store)
		if err != nil {
			return err
		}

		for _, v := range values {
			if err := s.Add(v).Err(); err != nil {
				return err
			}
		}

		return nil
	}, store)
	require.NoError(t, err)
}

func count(t *testing.T, db *lemondb.DB, store string) int {
	t.Helper()

	var n int
	err := db.View(context.Background(), func(tx *lemondb.Tx) error {
		s, err := tx.ObjectStore(store)
		if err != nil {
			return err
		}

		req := s.Count()
		if err := req.Err(); err != nil {
			return err
		}

		n = req.Result().(int)
		return nil
	}, store)
	require.NoError(t, err)

	return n
}

func golden(t *testing.T) *goldie.Goldie {
	return goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
}

type lemonSnapshotSuite struct {
	suite.Suite
	ctx context.Context
	db  *lemondb.DB
	s   *snapshot.Snapshotter
}

func (ls *lemonSnapshotSuite) SetupTest() {
	ls.ctx = context.Background()
	ls.db = openLemon(ls.T(), lemondb.InMemory, map[string]string{"things": "id++, name"})
	ls.s = snapshot.New()
}

func (ls *lemonSnapshotSuite) export() string {
	b, err := ls.s.Export(ls.ctx, snapshot.FromLemon(ls.db))
	ls.Require().NoError(err)
	return string(b)
}

func (ls *lemonSnapshotSuite) TestEmptyStoreExportsAsEmptyArray() {
	ls.Equal(`{"things":[]}`, ls.export())
}

func (ls *lemonSnapshotSuite) TestExportClearImportRoundTrip() {
	add(ls.T(), ls.db, "things", map[string]interface{}{"name": "A"}, map[string]interface{}{"name": "B"})

	exported := ls.export()
	golden(ls.T()).Assert(ls.T(), "things", []byte(exported))

	db := snapshot.FromLemon(ls.db)
	ls.Require().NoError(ls.s.Clear(ls.ctx, db))
	ls.Equal(`{"things":[]}`, ls.export())

	ls.Require().NoError(ls.s.Import(ls.ctx, db, []byte(exported)))
	ls.Equal(exported, ls.export())
}

func (ls *lemonSnapshotSuite) TestImportIgnoresUnknownStores() {
	err := ls.s.Import(ls.ctx, snapshot.FromLemon(ls.db), []byte(`{"ghost":[{"id":1}]}`))
	ls.Require().NoError(err)
	ls.Equal(0, count(ls.T(), ls.db, "things"))
}

func (ls *lemonSnapshotSuite) TestClearKeepsStoresAndKeyGenerator() {
	add(ls.T(), ls.db, "things", map[string]interface{}{"name": "A"})
	ls.Require().NoError(ls.s.Clear(ls.ctx, snapshot.FromLemon(ls.db)))

	ls.Equal([]string{"things"}, ls.db.StoreNames())
	ls.Equal(0, count(ls.T(), ls.db, "things"))

	add(ls.T(), ls.db, "things", map[string]interface{}{"name": "B"})
	ls.Equal(`{"things":[{"id":2,"name":"B"}]}`, ls.export())
}

func (ls *lemonSnapshotSuite) TestDuplicateKeyAbortsWholeImport() {
	add(ls.T(), ls.db, "things", map[string]interface{}{"name": "A"})
	before := ls.export()

	err := ls.s.Import(ls.ctx, snapshot.FromLemon(ls.db), []byte(`{"things":[{"id":5,"name":"new"},{"id":1,"name":"dup"}]}`))
	ls.Require().Error(err)
	ls.True(errors.Is(err, lemondb.ErrConstraint))

	var recErr *snapshot.RecordError
	ls.Require().True(errors.As(err, &recErr))
	ls.Equal("things", recErr.Store)
	ls.Equal(1, recErr.Index)

	ls.Equal(before, ls.export())
}

func (ls *lemonSnapshotSuite) TestMalformedImportChangesNothing() {
	add(ls.T(), ls.db, "things", map[string]interface{}{"name": "A"})
	before := ls.export()

	for _, input := range []string{`{"things":[`, `{"things":{"id":3}}`, `[]`} {
		err := ls.s.Import(ls.ctx, snapshot.FromLemon(ls.db), []byte(input))
		ls.Require().Error(err)
		ls.True(errors.Is(err, snapshot.ErrMalformedDocument), input)
	}

	ls.Equal(before, ls.export())
}

func (ls *lemonSnapshotSuite) TestImportAddsToExistingRecords() {
	add(ls.T(), ls.db, "things", map[string]interface{}{"name": "A"})

	err := ls.s.Import(ls.ctx, snapshot.FromLemon(ls.db), []byte(`{"things":[{"id":10,"name":"J"},{"name":"K"}]}`))
	ls.Require().NoError(err)

	ls.Equal(`{"things":[{"id":1,"name":"A"},{"id":10,"name":"J"},{"id":11,"name":"K"}]}`, ls.export())
}

func TestLemonSnapshotSuite(t *testing.T) {
	suite.Run(t, &lemonSnapshotSuite{})
}

func TestLemon_MultipleStores(t *testing.T) {
	ctx := context.Background()
	db := openLemon(t, lemondb.InMemory, map[string]string{
		"shapes":      "id++, name",
		"colors":      "id++",
		"color_shape": "[shape+color]",
		"empty":       "++id",
	})

	add(t, db, "colors",
		map[string]interface{}{"name": "red", "info": "warm"},
		map[string]interface{}{"name": "blue", "info": "cold"},
	)
	add(t, db, "shapes", map[string]interface{}{"name": "circle"}, map[string]interface{}{"name": "square"})
	add(t, db, "color_shape",
		map[string]interface{}{"shape": "square", "color": "red"},
		map[string]interface{}{"shape": "circle", "color": "blue"},
		map[string]interface{}{"shape": "circle", "color": "red"},
	)

	exported, err := snapshot.ExportToJSON(ctx, snapshot.FromLemon(db), snapshot.Identity{})
	require.NoError(t, err)
	golden(t).Assert(t, "multiple_stores", exported)

	t.Run("a fresh database with the same schema imports it back", func(t *testing.T) {
		other := openLemon(t, lemondb.InMemory, map[string]string{
			"shapes":      "id++, name",
			"colors":      "id++",
			"color_shape": "[shape+color]",
			"empty":       "++id",
		})

		require.NoError(t, snapshot.ImportFromJSON(ctx, snapshot.FromLemon(other), exported, snapshot.Identity{}))

		again, err := snapshot.ExportToJSON(ctx, snapshot.FromLemon(other), snapshot.Identity{})
		require.NoError(t, err)
		assert.Equal(t, string(exported), string(again))
	})

	t.Run("stores missing from the document are left alone", func(t *testing.T) {
		other := openLemon(t, lemondb.InMemory, map[string]string{"colors": "id++", "notes": "id++"})
		add(t, other, "notes", map[string]interface{}{"text": "keep"})

		require.NoError(t, snapshot.ImportFromJSON(ctx, snapshot.FromLemon(other), exported, snapshot.Identity{}))
		assert.Equal(t, 2, count(t, other, "colors"))
		assert.Equal(t, 1, count(t, other, "notes"))
	})
}

func TestLemon_TypedRoundTrip(t *testing.T) {
	ctx := context.Background()
	db := openLemon(t, lemondb.InMemory, map[string]string{"events": "id"})

	at := time.Date(2021, 3, 4, 5, 6, 7, 0, time.UTC)
	add(t, db, "events", map[string]interface{}{"id": 1, "at": at, "blob": []byte("hi")})

	s := snapshot.New(snapshot.WithSerializer(snapshot.Typed{}))
	exported, err := s.Export(ctx, snapshot.FromLemon(db))
	require.NoError(t, err)
	golden(t).Assert(t, "typed", exported)

	require.NoError(t, s.Clear(ctx, snapshot.FromLemon(db)))
	require.NoError(t, s.Import(ctx, snapshot.FromLemon(db), exported))

	err = db.View(ctx, func(tx *lemondb.Tx) error {
		events, err := tx.ObjectStore("events")
		if err != nil {
			return err
		}

		req := events.Get(1)
		if err := req.Err(); err != nil {
			return err
		}

		v := req.Result().(map[string]interface{})
		revived, ok := v["at"].(time.Time)
		require.True(t, ok)
		assert.True(t, at.Equal(revived))
		assert.Equal(t, []byte("hi"), v["blob"])
		return nil
	})
	require.NoError(t, err)
}

func TestLemon_DuplicateInEveryStoreAbortsOnce(t *testing.T) {
	definitions := make(map[string]string)
	doc := "{"
	for i := 0; i < 8; i++ {
		name := fmt.Sprintf("s%d", i)
		definitions[name] = "id"
		if i > 0 {
			doc += ","
		}
		doc += fmt.Sprintf(`"%s":[{"id":1},{"id":1}]`, name)
	}
	doc += "}"

	db := openLemon(t, lemondb.InMemory, definitions)

	for run := 0; run < 50; run++ {
		err := snapshot.New().Import(context.Background(), snapshot.FromLemon(db), []byte(doc))
		require.Error(t, err)
		assert.True(t, errors.Is(err, lemondb.ErrConstraint), err.Error())

		var recErr *snapshot.RecordError
		require.True(t, errors.As(err, &recErr))
		assert.Equal(t, 1, recErr.Index)
	}

	for name := range definitions {
		assert.Equal(t, 0, count(t, db, name), name)
	}
}

func TestLemon_PersistedImportSurvivesReopen(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "things.ldb")
	definitions := map[string]string{"things": "id++, name"}

	schema, err := lemondb.ParseSchemas(definitions)
	require.NoError(t, err)

	db, closer, err := lemondb.Open(path, &lemondb.Config{Schema: schema, NoSync: true})
	require.NoError(t, err)

	doc := []byte(`{"things":[{"id":1,"name":"A"},{"id":2,"name":"B"}]}`)
	require.NoError(t, snapshot.ImportFromJSON(ctx, snapshot.FromLemon(db), doc, snapshot.Identity{}))
	require.NoError(t, closer())

	reopened := openLemon(t, path, definitions)
	exported, err := snapshot.ExportToJSON(ctx, snapshot.FromLemon(reopened), snapshot.Identity{})
	require.NoError(t, err)
	assert.Equal(t, string(doc), string(exported))
}

func TestLemon_EmptyDatabase(t *testing.T) {
	ctx := context.Background()
	db := openLemon(t, lemondb.InMemory, nil)

	exported, err := snapshot.ExportToJSON(ctx, snapshot.FromLemon(db), snapshot.Identity{})
	require.NoError(t, err)
	assert.Equal(t, `{}`, string(exported))

	require.NoError(t, snapshot.ImportFromJSON(ctx, snapshot.FromLemon(db), []byte(`{"things":[{"id":1}]}`), snapshot.Identity{}))
	require.NoError(t, snapshot.ClearDatabase(ctx, snapshot.FromLemon(db)))
}
