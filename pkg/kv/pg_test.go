package kv

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chainsafe/bridge-tracker/pkg/pgutil"
	mghelper "github.com/chainsafe/bridge-tracker/pkg/pgutil/migrations"
)

func TestPGStorage_GetPut(t *testing.T) {
	pgutil.RequireDockerAccess(t)

	db, cleanup := pgutil.SetupTestDB(t)
	defer cleanup()
	ctx := context.Background()

	require.NoError(t, mghelper.CreateSchema(ctx, db, &DocumentDao{}))
	s := NewPGStorage(db)

	_, err := s.Get(ctx, "bridge-tracker:transfers")
	assert.True(t, errors.Is(err, ErrNotFound))

	require.NoError(t, s.Put(ctx, "bridge-tracker:transfers", []byte(`[{"id":"0xaa"}]`)))
	got, err := s.Get(ctx, "bridge-tracker:transfers")
	require.NoError(t, err)
	assert.JSONEq(t, `[{"id":"0xaa"}]`, string(got))

	require.NoError(t, s.Put(ctx, "bridge-tracker:transfers", []byte(`[]`)))
	got, err = s.Get(ctx, "bridge-tracker:transfers")
	require.NoError(t, err)
	assert.JSONEq(t, `[]`, string(got))

	var count int
	count, err = db.NewSelect().Model((*DocumentDao)(nil)).Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}
