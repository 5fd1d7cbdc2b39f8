package storage

import (
	"testing"

	"github.com/annel0/plotmines/internal/mine"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
)

func TestMongoRecordDocument(t *testing.T) {
	r := sampleRecords(t)[0]

	data, err := bson.Marshal(r)
	require.NoError(t, err)

	raw := bson.Raw(data)
	assert.Equal(t, r.ID, raw.Lookup("_id").StringValue())
	assert.Equal(t, r.Owner.ID, raw.Lookup("owner", "id").StringValue())
	assert.Equal(t, r.Minimum.Region, raw.Lookup("minimum", "region").StringValue())

	var back mine.Record
	require.NoError(t, bson.Unmarshal(data, &back))
	assert.Equal(t, r, back)
}

func TestMongoSaveModels(t *testing.T) {
	records := sampleRecords(t)

	models, stale := mongoSaveModels(records)
	require.Len(t, models, len(records))
	for i, m := range models {
		replace, ok := m.(*mongo.ReplaceOneModel)
		require.True(t, ok)
		require.NotNil(t, replace.Upsert)
		assert.True(t, *replace.Upsert, "каждая запись должна вставляться или заменяться")
		assert.Equal(t, bson.M{"_id": records[i].ID}, replace.Filter)
		assert.Equal(t, records[i], replace.Replacement)
	}

	// Удаляются только документы вне нового набора
	assert.Equal(t, bson.M{"_id": bson.M{"$nin": bson.A{records[0].ID, records[1].ID}}}, stale)
}

func TestMongoSaveModels_Empty(t *testing.T) {
	models, stale := mongoSaveModels(nil)
	assert.Empty(t, models)
	// Пустой $nin совпадает со всеми документами
	assert.Equal(t, bson.M{"_id": bson.M{"$nin": bson.A{}}}, stale)
}

func TestRedisRecordEncoding(t *testing.T) {
	r := sampleRecords(t)[0]

	data, err := encodeRecord(r)
	require.NoError(t, err)

	back, err := decodeRecord(r.ID, data)
	require.NoError(t, err)
	assert.Equal(t, r, back)
}

func TestRedisRecordEncoding_Corrupt(t *testing.T) {
	_, err := decodeRecord("broken", []byte("{not json"))
	assert.ErrorIs(t, err, ErrCorruptState)

	_, err = decodeRecord("anonymous", []byte(`{"template":"DIAMOND_MINE"}`))
	assert.ErrorIs(t, err, ErrCorruptState)
}
