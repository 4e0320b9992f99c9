/*
Copyright 2024 Blnk Finance Authors.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

	http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package cache

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type catalogEntry struct {
	ID    string
	Price string
}

func newTestCache(t *testing.T) (Cache, *miniredis.Miniredis) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewCache(client), mr
}

func TestSetGet(t *testing.T) {
	c, mr := newTestCache(t)
	ctx := context.Background()

	value := []catalogEntry{{ID: "identity", Price: "14.99"}}
	require.NoError(t, c.Set(ctx, "catalog", value, 10*time.Minute))
	assert.True(t, mr.Exists("catalog"))

	var got []catalogEntry
	require.NoError(t, c.Get(ctx, "catalog", &got))
	assert.Equal(t, value, got)
}

func TestGetNonExistentKey(t *testing.T) {
	c, _ := newTestCache(t)

	var got []catalogEntry
	err := c.Get(context.Background(), "nonExistentKey", &got)
	assert.True(t, errors.Is(err, ErrCacheMiss))
	assert.Empty(t, got)
}

func TestDelete(t *testing.T) {
	c, _ := newTestCache(t)
	ctx := context.Background()

	require.NoError(t, c.Set(ctx, "key", "value", time.Minute))
	require.NoError(t, c.Delete(ctx, "key"))

	var got string
	assert.ErrorIs(t, c.Get(ctx, "key", &got), ErrCacheMiss)
}

func TestLocalOnly(t *testing.T) {
	c := NewCache(nil)
	ctx := context.Background()

	require.NoError(t, c.Set(ctx, "key", map[string]string{"hello": "world"}, time.Minute))
	var got map[string]string
	require.NoError(t, c.Get(ctx, "key", &got))
	assert.Equal(t, "world", got["hello"])
}
