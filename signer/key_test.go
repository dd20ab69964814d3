package signer

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestDealThresholdShardsValidation(t *testing.T) {
	_, err := DealThresholdShards("", nil, 2, 3)
	require.Error(t, err)

	_, err = DealThresholdShards("1", nil, 4, 3)
	require.Error(t, err)

	_, err = DealThresholdShards("1", nil, 0, 0)
	require.Error(t, err)

	_, err = DealThresholdShards("1", []byte("not a scalar encoding"), 2, 3)
	require.Error(t, err)
}

func TestShardKeySaveLoadRoundTrip(t *testing.T) {
	dealt, err := DealThresholdShards("1", nil, 2, 3)
	require.NoError(t, err)

	file := filepath.Join(t.TempDir(), "shard_v1.json")
	require.NoError(t, dealt[1].Save(file))

	loaded, err := LoadThresholdShardKey(file)
	require.NoError(t, err)
	require.Equal(t, dealt[1], loaded)
}

func TestLoadShardKeysByVersion(t *testing.T) {
	dir := t.TempDir()

	for _, version := range []string{"1", "2"} {
		dealt, err := DealThresholdShards(version, nil, 2, 3)
		require.NoError(t, err)
		require.NoError(t, dealt[0].Save(filepath.Join(dir, "shard_v"+version+".json")))
	}

	keys, err := LoadShardKeys(dir)
	require.NoError(t, err)
	require.Len(t, keys, 2)
	require.Equal(t, "1", keys["1"].KeyVersion)
	require.Equal(t, "2", keys["2"].KeyVersion)

	// A second shard for an already loaded version is a configuration error.
	dealt, err := DealThresholdShards("2", nil, 2, 3)
	require.NoError(t, err)
	require.NoError(t, dealt[1].Save(filepath.Join(dir, "shard_v2_dup.json")))
	_, err = LoadShardKeys(dir)
	require.Error(t, err)
}

func TestLoadShardKeysEmptyDir(t *testing.T) {
	_, err := LoadShardKeys(t.TempDir())
	require.Error(t, err)
}
