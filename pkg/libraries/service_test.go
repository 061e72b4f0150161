package libraries

import (
	"context"
	"testing"
	"time"

	"github.com/shishobooks/shelfsync/internal/testgen"
	"github.com/shishobooks/shelfsync/pkg/errcodes"
	"github.com/shishobooks/shelfsync/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAdvanceWatermark(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	db := testgen.DB(t)
	svc := NewService(db)
	key := models.LibraryKey{ServerUUID: "srv", Name: "Main"}
	testgen.Library(t, db, key)

	t1 := testgen.Epoch.Add(time.Hour)
	require.NoError(t, svc.AdvanceWatermark(ctx, key, t1))
	require.NoError(t, svc.AdvanceWatermark(ctx, key, testgen.Epoch))

	lib, err := svc.RetrieveLibrary(ctx, RetrieveLibraryOptions{Key: &key})
	require.NoError(t, err)
	assert.True(t, lib.LastModified.Equal(t1), "watermark moved backwards: %s", lib.LastModified)
}

func TestAdvanceWatermark_MissingLibrary(t *testing.T) {
	t.Parallel()
	svc := NewService(testgen.DB(t))
	err := svc.AdvanceWatermark(context.Background(), models.LibraryKey{ServerUUID: "x", Name: "y"}, time.Now())
	var e *errcodes.Error
	require.ErrorAs(t, err, &e)
	assert.Equal(t, "not_found", e.Code)
}

func TestListLibraries(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	db := testgen.DB(t)
	svc := NewService(db)

	a := models.LibraryKey{ServerUUID: "srv", Name: "A"}
	b := models.LibraryKey{ServerUUID: "srv", Name: "B"}
	c := models.LibraryKey{ServerUUID: "other", Name: "C"}
	testgen.Library(t, db, a)
	hidden := testgen.Library(t, db, b)
	manual := testgen.Library(t, db, c)

	hidden.Hidden = true
	require.NoError(t, svc.UpdateLibrary(ctx, hidden, UpdateLibraryOptions{Columns: []string{"hidden"}}))
	manual.AutoUpdate = false
	require.NoError(t, svc.UpdateLibrary(ctx, manual, UpdateLibraryOptions{Columns: []string{"auto_update"}}))

	visible, err := svc.ListLibraries(ctx, ListLibrariesOptions{})
	require.NoError(t, err)
	assert.Equal(t, []string{"C", "A"}, names(visible))

	all, err := svc.ListLibraries(ctx, ListLibrariesOptions{IncludeHidden: true, ServerUUID: &a.ServerUUID})
	require.NoError(t, err)
	assert.Equal(t, []string{"A", "B"}, names(all))

	auto, err := svc.ListLibraries(ctx, ListLibrariesOptions{AutoUpdateOnly: true})
	require.NoError(t, err)
	assert.Equal(t, []string{"A"}, names(auto))
}

func TestSetCustomColumnsAndSyncError(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	db := testgen.DB(t)
	svc := NewService(db)
	key := models.LibraryKey{ServerUUID: "srv", Name: "Main"}
	testgen.Library(t, db, key)

	require.NoError(t, svc.SetCustomColumns(ctx, key, models.CustomColumns{"#read_pos": {Label: "#read_pos", Datatype: "comments"}}))
	msg := "timeout"
	require.NoError(t, svc.SetSyncError(ctx, key, &msg))

	lib, err := svc.RetrieveLibrary(ctx, RetrieveLibraryOptions{Key: &key})
	require.NoError(t, err)
	assert.Contains(t, lib.CustomColumns, "#read_pos")
	require.NotNil(t, lib.LastSyncError)
	assert.Equal(t, "timeout", *lib.LastSyncError)
	assert.True(t, ReadingPositionEnabled(lib))

	finished := time.Date(2026, 9, 1, 12, 0, 0, 0, time.UTC)
	require.NoError(t, svc.MarkSynced(ctx, key, finished))
	lib, err = svc.RetrieveLibrary(ctx, RetrieveLibraryOptions{Key: &key})
	require.NoError(t, err)
	assert.Nil(t, lib.LastSyncError)
	require.NotNil(t, lib.LastSynced)
	assert.True(t, lib.LastSynced.Equal(finished))
}

func names(libs []*models.Library) []string {
	out := make([]string, 0, len(libs))
	for _, l := range libs {
		out = append(out, l.Name)
	}
	return out
}
