package memory_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"roomcast/database"
	"roomcast/database/memory"
)

func TestRoomInfo(t *testing.T) {
	t.Run("given new room when created then it can be found", func(t *testing.T) {
		db := memory.New()
		_, err := db.CreateRoomInfo("r1", "living room", "pw12", "a")
		require.NoError(t, err)

		info, err := db.FindRoomInfoByID("r1")
		require.NoError(t, err)
		assert.Equal(t, "living room", info.Name)
		assert.True(t, info.IsAdmin("a"))
		assert.True(t, info.Authenticate("pw12"))
		assert.False(t, info.Authenticate("pw"))
	})

	t.Run("given existing room when created again then return already exists", func(t *testing.T) {
		db := memory.New()
		_, err := db.CreateRoomInfo("r1", "", "", "a")
		require.NoError(t, err)
		_, err = db.CreateRoomInfo("r1", "", "", "b")
		assert.ErrorIs(t, err, database.ErrRoomAlreadyExists)
	})

	t.Run("given unknown room when found then return not found", func(t *testing.T) {
		db := memory.New()
		_, err := db.FindRoomInfoByID("nope")
		assert.ErrorIs(t, err, database.ErrRoomNotFound)
	})

	t.Run("given found room when mutated then stored copy is unchanged", func(t *testing.T) {
		db := memory.New()
		_, err := db.CreateRoomInfo("r1", "", "", "a")
		require.NoError(t, err)
		info, err := db.FindRoomInfoByID("r1")
		require.NoError(t, err)
		info.AdminID = "b"

		stored, err := db.FindRoomInfoByID("r1")
		require.NoError(t, err)
		assert.Equal(t, "a", stored.AdminID)
	})

	t.Run("given room with participants when deleted then participants are gone", func(t *testing.T) {
		db := memory.New()
		_, err := db.CreateRoomInfo("r1", "", "", "a")
		require.NoError(t, err)
		_, err = db.CreateParticipantInfo("r1", "a", true)
		require.NoError(t, err)
		_, err = db.CreateParticipantInfo("r1", "b", false)
		require.NoError(t, err)

		require.NoError(t, db.DeleteRoomInfoByID("r1"))
		rooms, participants, err := db.Count()
		require.NoError(t, err)
		assert.Zero(t, rooms)
		assert.Zero(t, participants)
	})
}

func TestParticipantInfo(t *testing.T) {
	setup := func(t *testing.T) *memory.DB {
		db := memory.New()
		_, err := db.CreateRoomInfo("r1", "", "", "a")
		require.NoError(t, err)
		return db
	}

	t.Run("given participants when listed then return them in insertion order", func(t *testing.T) {
		db := setup(t)
		for _, id := range []string{"zz", "aa", "mm"} {
			_, err := db.CreateParticipantInfo("r1", id, false)
			require.NoError(t, err)
		}

		infos, err := db.FindParticipantInfosByRoom("r1")
		require.NoError(t, err)
		require.Len(t, infos, 3)
		assert.Equal(t, "zz", infos[0].ID)
		assert.Equal(t, "aa", infos[1].ID)
		assert.Equal(t, "mm", infos[2].ID)
	})

	t.Run("given new participant when created then default settings are applied", func(t *testing.T) {
		db := setup(t)
		info, err := db.CreateParticipantInfo("r1", "a", true)
		require.NoError(t, err)
		assert.Equal(t, database.DefaultStreamSettings, info.Settings)
		assert.True(t, info.IsAdmin)
	})

	t.Run("given duplicate participant when created then return already exists", func(t *testing.T) {
		db := setup(t)
		_, err := db.CreateParticipantInfo("r1", "a", true)
		require.NoError(t, err)
		_, err = db.CreateParticipantInfo("r1", "a", false)
		assert.ErrorIs(t, err, database.ErrParticipantAlreadyExists)
	})

	t.Run("given unknown room when participant created then return room not found", func(t *testing.T) {
		db := setup(t)
		_, err := db.CreateParticipantInfo("r2", "a", false)
		assert.ErrorIs(t, err, database.ErrRoomNotFound)
	})

	t.Run("given participant when updated then seq is preserved", func(t *testing.T) {
		db := setup(t)
		created, err := db.CreateParticipantInfo("r1", "b", false)
		require.NoError(t, err)

		change := created.DeepCopy()
		change.UpdateStatus(true, false)
		change.Seq = 0
		updated, err := db.UpdateParticipantInfo(change)
		require.NoError(t, err)
		assert.True(t, updated.HasVideo)
		assert.Equal(t, created.Seq, updated.Seq)
	})

	t.Run("given a member when promoted then flag and room admin change together", func(t *testing.T) {
		db := setup(t)
		_, err := db.CreateParticipantInfo("r1", "b", false)
		require.NoError(t, err)

		promoted, err := db.PromoteParticipantInfo("r1", "b")
		require.NoError(t, err)
		assert.True(t, promoted.IsAdmin)

		room, err := db.FindRoomInfoByID("r1")
		require.NoError(t, err)
		assert.Equal(t, "b", room.AdminID)
		stored, err := db.FindParticipantInfoByID("r1", "b")
		require.NoError(t, err)
		assert.True(t, stored.IsAdmin)
	})

	t.Run("given unknown member when promoted then nothing changes", func(t *testing.T) {
		db := setup(t)
		before, err := db.FindRoomInfoByID("r1")
		require.NoError(t, err)

		_, err = db.PromoteParticipantInfo("r1", "ghost")
		assert.ErrorIs(t, err, database.ErrParticipantNotFound)
		_, err = db.PromoteParticipantInfo("r2", "b")
		assert.ErrorIs(t, err, database.ErrRoomNotFound)

		after, err := db.FindRoomInfoByID("r1")
		require.NoError(t, err)
		assert.Equal(t, before.AdminID, after.AdminID)
	})

	t.Run("given connection in a room when looked up by connection then return membership", func(t *testing.T) {
		db := setup(t)
		_, err := db.CreateParticipantInfo("r1", "b", false)
		require.NoError(t, err)

		infos, err := db.FindParticipantInfosByConnection("b")
		require.NoError(t, err)
		require.Len(t, infos, 1)
		assert.Equal(t, "r1", infos[0].RoomID)

		infos, err = db.FindParticipantInfosByConnection("c")
		require.NoError(t, err)
		assert.Empty(t, infos)
	})

	t.Run("given unknown participant when deleted then return not found", func(t *testing.T) {
		db := setup(t)
		err := db.DeleteParticipantInfoByID("r1", "ghost")
		assert.ErrorIs(t, err, database.ErrParticipantNotFound)
	})
}
