package redis

import (
	"context"
	"testing"
	"time"

	"github.com/go-redis/redismock/v9"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newMockClient(t *testing.T) (*Client, redismock.ClientMock) {
	t.Helper()
	db, mock := redismock.NewClientMock()
	return &Client{Client: db}, mock
}

func TestSetWithExpiration_SendsTTL(t *testing.T) {
	client, mock := newMockClient(t)
	mock.ExpectSet("dispatch:driver:cell:abc", "89283082e73ffff", 10*time.Minute).SetVal("OK")

	err := client.SetWithExpiration(context.Background(), "dispatch:driver:cell:abc", "89283082e73ffff", 10*time.Minute)

	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGetString_ReturnsStoredValue(t *testing.T) {
	client, mock := newMockClient(t)
	mock.ExpectGet("dispatch:driver:cell:abc").SetVal("89283082e73ffff")

	val, err := client.GetString(context.Background(), "dispatch:driver:cell:abc")

	require.NoError(t, err)
	assert.Equal(t, "89283082e73ffff", val)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSAddSRem_RoundTripOnCellSet(t *testing.T) {
	client, mock := newMockClient(t)
	cellKey := "dispatch:h3:89283082e73ffff"
	mock.ExpectSAdd(cellKey, "driver-1").SetVal(1)
	mock.ExpectSRem(cellKey, "driver-1").SetVal(1)

	require.NoError(t, client.SAdd(context.Background(), cellKey, "driver-1"))
	require.NoError(t, client.SRem(context.Background(), cellKey, "driver-1"))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSMembers_ReturnsAllDrivers(t *testing.T) {
	client, mock := newMockClient(t)
	cellKey := "dispatch:h3:89283082e73ffff"
	mock.ExpectSMembers(cellKey).SetVal([]string{"driver-1", "driver-2"})

	members, err := client.SMembers(context.Background(), cellKey)

	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"driver-1", "driver-2"}, members)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGeoAddAndRemove(t *testing.T) {
	client, mock := newMockClient(t)
	mock.ExpectGeoAdd("dispatch:drivers:geo", &redis.GeoLocation{Longitude: 77.209, Latitude: 28.6139, Name: "driver-1"}).SetVal(1)
	mock.ExpectZRem("dispatch:drivers:geo", "driver-1").SetVal(1)

	require.NoError(t, client.GeoAdd(context.Background(), "dispatch:drivers:geo", 77.209, 28.6139, "driver-1"))
	require.NoError(t, client.GeoRemove(context.Background(), "dispatch:drivers:geo", "driver-1"))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestDelete_RemovesKeys(t *testing.T) {
	client, mock := newMockClient(t)
	mock.ExpectDel("dispatch:driver:cell:abc").SetVal(1)

	require.NoError(t, client.Delete(context.Background(), "dispatch:driver:cell:abc"))
	assert.NoError(t, mock.ExpectationsWereMet())
}
