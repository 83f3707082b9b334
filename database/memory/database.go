// Package memory provides an in-memory database implementation.
package memory

import (
	"cmp"
	"fmt"
	"slices"
	"sync/atomic"
	"time"

	"github.com/hashicorp/go-memdb"
	"roomcast/database"
)

// DB is a memory-backed database.
type DB struct {
	db  *memdb.MemDB
	seq atomic.Uint64
}

// New creates a new memory-backed database.
func New() *DB {
	db, err := memdb.NewMemDB(schema)
	if err != nil {
		panic(err)
	}
	return &DB{
		db: db,
	}
}

// CreateRoomInfo creates a new room if it doesn't exist.
func (d *DB) CreateRoomInfo(id, name, password, adminID string) (*database.RoomInfo, error) {
	txn := d.db.Txn(true)
	defer txn.Abort()
	existing, err := txn.First(tblRooms, idxRoomID, id)
	if err != nil {
		return nil, fmt.Errorf("find room by id: %w", err)
	}
	if existing != nil {
		return nil, fmt.Errorf("%s: %w", id, database.ErrRoomAlreadyExists)
	}
	info := &database.RoomInfo{
		ID:        id,
		Name:      name,
		Password:  password,
		AdminID:   adminID,
		CreatedAt: time.Now(),
	}
	if err := txn.Insert(tblRooms, info); err != nil {
		return nil, fmt.Errorf("insert room: %w", err)
	}
	txn.Commit()
	return info.DeepCopy(), nil
}

// FindRoomInfoByID finds a room by its ID.
func (d *DB) FindRoomInfoByID(id string) (*database.RoomInfo, error) {
	txn := d.db.Txn(false)
	defer txn.Abort()
	raw, err := txn.First(tblRooms, idxRoomID, id)
	if err != nil {
		return nil, fmt.Errorf("find room by id: %w", err)
	}
	if raw == nil {
		return nil, fmt.Errorf("%s: %w", id, database.ErrRoomNotFound)
	}
	return raw.(*database.RoomInfo).DeepCopy(), nil
}

// FindAllRoomInfos returns every live room.
func (d *DB) FindAllRoomInfos() ([]*database.RoomInfo, error) {
	txn := d.db.Txn(false)
	defer txn.Abort()
	it, err := txn.Get(tblRooms, idxRoomID)
	if err != nil {
		return nil, fmt.Errorf("fetch rooms: %w", err)
	}
	var infos []*database.RoomInfo
	for obj := it.Next(); obj != nil; obj = it.Next() {
		infos = append(infos, obj.(*database.RoomInfo).DeepCopy())
	}
	return infos, nil
}

// DeleteRoomInfoByID deletes a room together with its remaining participants.
func (d *DB) DeleteRoomInfoByID(id string) error {
	txn := d.db.Txn(true)
	defer txn.Abort()
	raw, err := txn.First(tblRooms, idxRoomID, id)
	if err != nil {
		return fmt.Errorf("find room by id: %w", err)
	}
	if raw == nil {
		return fmt.Errorf("%s: %w", id, database.ErrRoomNotFound)
	}
	if err := txn.Delete(tblRooms, raw); err != nil {
		return fmt.Errorf("delete room: %w", err)
	}
	if _, err := txn.DeleteAll(tblParticipants, idxParticipantRoomID, id); err != nil {
		return fmt.Errorf("delete participants of room: %w", err)
	}
	txn.Commit()
	return nil
}

// CreateParticipantInfo adds a connection to a room.
func (d *DB) CreateParticipantInfo(roomID, id string, isAdmin bool) (*database.ParticipantInfo, error) {
	txn := d.db.Txn(true)
	defer txn.Abort()
	room, err := txn.First(tblRooms, idxRoomID, roomID)
	if err != nil {
		return nil, fmt.Errorf("find room by id: %w", err)
	}
	if room == nil {
		return nil, fmt.Errorf("%s: %w", roomID, database.ErrRoomNotFound)
	}
	existing, err := txn.First(tblParticipants, idxParticipantID, roomID, id)
	if err != nil {
		return nil, fmt.Errorf("find participant by id: %w", err)
	}
	if existing != nil {
		return nil, fmt.Errorf("participant %s in room %s: %w", id, roomID, database.ErrParticipantAlreadyExists)
	}

	info := &database.ParticipantInfo{
		ID:       id,
		RoomID:   roomID,
		IsAdmin:  isAdmin,
		Settings: database.DefaultStreamSettings,
		Seq:      d.seq.Add(1),
		JoinedAt: time.Now(),
	}
	if err := txn.Insert(tblParticipants, info); err != nil {
		return nil, fmt.Errorf("insert participant: %w", err)
	}
	txn.Commit()
	return info.DeepCopy(), nil
}

// FindParticipantInfoByID finds a participant of a room by its connection ID.
func (d *DB) FindParticipantInfoByID(roomID, id string) (*database.ParticipantInfo, error) {
	txn := d.db.Txn(false)
	defer txn.Abort()
	raw, err := txn.First(tblParticipants, idxParticipantID, roomID, id)
	if err != nil {
		return nil, fmt.Errorf("find participant by id: %w", err)
	}
	if raw == nil {
		return nil, fmt.Errorf("participant %s in room %s: %w", id, roomID, database.ErrParticipantNotFound)
	}
	return raw.(*database.ParticipantInfo).DeepCopy(), nil
}

// FindParticipantInfosByRoom returns the participants of a room in insertion order.
func (d *DB) FindParticipantInfosByRoom(roomID string) ([]*database.ParticipantInfo, error) {
	return d.findParticipants(idxParticipantRoomID, roomID)
}

// FindParticipantInfosByConnection returns every membership of a connection.
func (d *DB) FindParticipantInfosByConnection(id string) ([]*database.ParticipantInfo, error) {
	return d.findParticipants(idxParticipantConnection, id)
}

func (d *DB) findParticipants(index, value string) ([]*database.ParticipantInfo, error) {
	txn := d.db.Txn(false)
	defer txn.Abort()
	it, err := txn.Get(tblParticipants, index, value)
	if err != nil {
		return nil, fmt.Errorf("fetch participants by %s: %w", index, err)
	}
	var infos []*database.ParticipantInfo
	for obj := it.Next(); obj != nil; obj = it.Next() {
		infos = append(infos, obj.(*database.ParticipantInfo).DeepCopy())
	}
	slices.SortFunc(infos, func(a, b *database.ParticipantInfo) int {
		return cmp.Compare(a.Seq, b.Seq)
	})
	return infos, nil
}

// UpdateParticipantInfo replaces the stored participant. Seq and JoinedAt are kept.
func (d *DB) UpdateParticipantInfo(info *database.ParticipantInfo) (*database.ParticipantInfo, error) {
	txn := d.db.Txn(true)
	defer txn.Abort()
	raw, err := txn.First(tblParticipants, idxParticipantID, info.RoomID, info.ID)
	if err != nil {
		return nil, fmt.Errorf("find participant by id: %w", err)
	}
	if raw == nil {
		return nil, fmt.Errorf("participant %s in room %s: %w", info.ID, info.RoomID, database.ErrParticipantNotFound)
	}
	stored := raw.(*database.ParticipantInfo)
	updated := info.DeepCopy()
	updated.Seq = stored.Seq
	updated.JoinedAt = stored.JoinedAt
	if err := txn.Insert(tblParticipants, updated); err != nil {
		return nil, fmt.Errorf("update participant: %w", err)
	}
	txn.Commit()
	return updated.DeepCopy(), nil
}

// PromoteParticipantInfo makes the participant the admin of its room. The
// participant flag and the room record change in the same transaction.
func (d *DB) PromoteParticipantInfo(roomID, id string) (*database.ParticipantInfo, error) {
	txn := d.db.Txn(true)
	defer txn.Abort()
	rawRoom, err := txn.First(tblRooms, idxRoomID, roomID)
	if err != nil {
		return nil, fmt.Errorf("find room by id: %w", err)
	}
	if rawRoom == nil {
		return nil, fmt.Errorf("%s: %w", roomID, database.ErrRoomNotFound)
	}
	raw, err := txn.First(tblParticipants, idxParticipantID, roomID, id)
	if err != nil {
		return nil, fmt.Errorf("find participant by id: %w", err)
	}
	if raw == nil {
		return nil, fmt.Errorf("participant %s in room %s: %w", id, roomID, database.ErrParticipantNotFound)
	}

	participant := raw.(*database.ParticipantInfo).DeepCopy()
	participant.IsAdmin = true
	if err := txn.Insert(tblParticipants, participant); err != nil {
		return nil, fmt.Errorf("update participant: %w", err)
	}
	room := rawRoom.(*database.RoomInfo).DeepCopy()
	room.AdminID = id
	if err := txn.Insert(tblRooms, room); err != nil {
		return nil, fmt.Errorf("update room: %w", err)
	}
	txn.Commit()
	return participant.DeepCopy(), nil
}

// DeleteParticipantInfoByID removes a connection from a room.
func (d *DB) DeleteParticipantInfoByID(roomID, id string) error {
	txn := d.db.Txn(true)
	defer txn.Abort()
	raw, err := txn.First(tblParticipants, idxParticipantID, roomID, id)
	if err != nil {
		return fmt.Errorf("find participant by id: %w", err)
	}
	if raw == nil {
		return fmt.Errorf("participant %s in room %s: %w", id, roomID, database.ErrParticipantNotFound)
	}
	if err := txn.Delete(tblParticipants, raw); err != nil {
		return fmt.Errorf("delete participant: %w", err)
	}
	txn.Commit()
	return nil
}

// Count returns the number of rooms and participants.
func (d *DB) Count() (int, int, error) {
	txn := d.db.Txn(false)
	defer txn.Abort()
	rooms, err := count(txn, tblRooms, idxRoomID)
	if err != nil {
		return 0, 0, err
	}
	participants, err := count(txn, tblParticipants, idxParticipantID)
	if err != nil {
		return 0, 0, err
	}
	return rooms, participants, nil
}

func count(txn *memdb.Txn, table, index string) (int, error) {
	it, err := txn.Get(table, index)
	if err != nil {
		return 0, fmt.Errorf("fetch %s: %w", table, err)
	}
	n := 0
	for obj := it.Next(); obj != nil; obj = it.Next() {
		n++
	}
	return n, nil
}
