package mongo

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/v2/bson"

	"staretl/internal/datasource"
	"staretl/internal/etlerr"
)

type fakeStore struct {
	pingErr      error
	docs         map[string][]bson.D
	disconnected bool
	gotDB        string
}

func (f *fakeStore) Ping(context.Context) error { return f.pingErr }

func (f *fakeStore) Find(_ context.Context, db, coll string) ([]bson.D, error) {
	f.gotDB = db
	docs, ok := f.docs[coll]
	if !ok {
		return nil, errors.New("no such collection")
	}
	return docs, nil
}

func (f *fakeStore) Disconnect(context.Context) error {
	f.disconnected = true
	return nil
}

// Tests below swap the package-level connect seam and must not run in
// parallel with each other.
func withStore(t *testing.T, st store, err error) {
	t.Helper()
	orig := connect
	t.Cleanup(func() { connect = orig })
	connect = func(context.Context, string) (store, error) { return st, err }
}

func TestOpen_ValidationAndConnectivity(t *testing.T) {
	_, err := Open(context.Background(), " ", "", nil)
	assert.ErrorIs(t, err, etlerr.ErrConfiguration)

	withStore(t, nil, errors.New("bad scheme"))
	_, err = Open(context.Background(), "mongodb://x", "", nil)
	assert.ErrorIs(t, err, etlerr.ErrConnectivity)

	st := &fakeStore{pingErr: errors.New("server selection timeout")}
	withStore(t, st, nil)
	_, err = Open(context.Background(), "mongodb://x", "", nil)
	assert.ErrorIs(t, err, etlerr.ErrConnectivity)
	assert.True(t, st.disconnected, "client released after failed ping")
}

func TestFetch_ConvertsBSON(t *testing.T) {
	oid := bson.NewObjectID()
	when := time.Date(2024, 3, 9, 14, 30, 0, 0, time.UTC)
	st := &fakeStore{docs: map[string][]bson.D{
		"carts": {{
			{Key: "_id", Value: oid},
			{Key: "id", Value: int32(5000)},
			{Key: "userId", Value: int64(1)},
			{Key: "transaction_date", Value: bson.NewDateTimeFromTime(when)},
			{Key: "products", Value: bson.A{
				bson.D{{Key: "id", Value: int32(100)}, {Key: "price", Value: 10.5}},
			}},
			{Key: "meta", Value: bson.M{"note": nil}},
		}},
	}}
	withStore(t, st, nil)

	src, err := Open(context.Background(), "mongodb://x", "", nil)
	require.NoError(t, err)
	got, err := src.Fetch(context.Background(), "carts")
	require.NoError(t, err)
	assert.Equal(t, DefaultDatabase, st.gotDB)

	require.Len(t, got, 1)
	doc := got[0]
	assert.Equal(t, oid.Hex(), doc["_id"])
	assert.Equal(t, int64(5000), doc["id"])
	assert.Equal(t, when, doc["transaction_date"])
	assert.Equal(t, []any{map[string]any{"id": int64(100), "price": 10.5}}, doc["products"])
	assert.Equal(t, map[string]any{"note": nil}, doc["meta"])

	_, err = src.Fetch(context.Background(), "missing")
	assert.ErrorIs(t, err, etlerr.ErrConnectivity)

	require.NoError(t, src.Close(context.Background()))
	assert.True(t, st.disconnected)
}

func TestRegistered(t *testing.T) {
	assert.Contains(t, datasource.ListKinds(), "mongo")

	st := &fakeStore{docs: map[string][]bson.D{"users": nil}}
	withStore(t, st, nil)
	c, err := datasource.New(context.Background(), datasource.Config{Kind: "mongo", URI: "mongodb://x", Database: "shop"})
	require.NoError(t, err)
	_, err = c.Fetch(context.Background(), "users")
	require.NoError(t, err)
	assert.Equal(t, "shop", st.gotDB)
}
