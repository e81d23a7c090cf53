// Package badger provides a Badger-based implementation of the storage interface.
package badger

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"
	"sync"
	"time"

	"github.com/dgraph-io/badger/v4"

	"github.com/vedmemory/ved/pkg/storage"
)

// Config holds configuration for BadgerStorage.
type Config struct {
	Path             string
	SyncWrites       bool
	ValueLogFileSize int64
	// InMemory keeps all data in RAM; Path is ignored.
	InMemory bool
}

// BadgerStorage implements the Storage interface using Badger.
//
// Conversations are indexed twice by inverted creation time so a forward
// prefix scan yields newest first: once per (project, user) pair for
// retrieval and once per user for listings.
type BadgerStorage struct {
	db     *badger.DB
	config *Config

	seqMu sync.Mutex
	seqs  map[string]*badger.Sequence
}

const (
	seqBandwidth = 100
	maxRetries   = 5
)

// NewBadgerStorage creates a new Badger storage instance.
func NewBadgerStorage(config *Config) (*BadgerStorage, error) {
	opts := badger.DefaultOptions(config.Path)
	if config.InMemory {
		opts = badger.DefaultOptions("").WithInMemory(true)
	}
	opts.SyncWrites = config.SyncWrites
	if config.ValueLogFileSize > 0 {
		opts.ValueLogFileSize = config.ValueLogFileSize
	}
	opts.NumVersionsToKeep = 1
	opts = opts.WithLoggingLevel(badger.WARNING)

	db, err := badger.Open(opts)
	if err != nil {
		return nil, &storage.StorageUnavailableError{Cause: err}
	}

	return &BadgerStorage{
		db:     db,
		config: config,
		seqs:   make(map[string]*badger.Sequence),
	}, nil
}

// Key generation functions
func userKey(id int64) []byte {
	return []byte(fmt.Sprintf("user:%020d", id))
}

func userEmailKey(email string) []byte {
	return []byte("user:email:" + email)
}

func projectKey(id int64) []byte {
	return []byte(fmt.Sprintf("project:%020d", id))
}

func projectTombstoneKey(id int64) []byte {
	return []byte(fmt.Sprintf("project:deleting:%020d", id))
}

func projectIndexUserPrefix(userID int64) []byte {
	return []byte(fmt.Sprintf("project:index:user:%020d:", userID))
}

func projectIndexUserKey(p *storage.Project) []byte {
	return append(projectIndexUserPrefix(p.UserID), recencySuffix(p.CreatedAt, p.ID)...)
}

func conversationKey(id int64) []byte {
	return []byte(fmt.Sprintf("conversation:%020d", id))
}

func conversationIndexProjectPrefix(projectID, userID int64) []byte {
	return []byte(fmt.Sprintf("conversation:index:project:%020d:%020d:", projectID, userID))
}

func conversationIndexUserPrefix(userID int64) []byte {
	return []byte(fmt.Sprintf("conversation:index:user:%020d:", userID))
}

func conversationIndexCreatedKey(c *storage.Conversation) []byte {
	return []byte(fmt.Sprintf("conversation:index:created:%020d:%020d", ascendingMillis(c.CreatedAt), c.ID))
}

var conversationIndexCreatedPrefix = []byte("conversation:index:created:")

func conversationIndexKeys(c *storage.Conversation) [][]byte {
	suffix := recencySuffix(c.CreatedAt, c.ID)
	return [][]byte{
		append(conversationIndexProjectPrefix(c.ProjectID, c.UserID), suffix...),
		append(conversationIndexUserPrefix(c.UserID), suffix...),
		conversationIndexCreatedKey(c),
	}
}

func summaryKey(conversationID int64) []byte {
	return []byte(fmt.Sprintf("summary:%020d", conversationID))
}

// recencySuffix sorts newer timestamps, then higher ids, first.
func recencySuffix(t time.Time, id int64) string {
	return fmt.Sprintf("%020d:%020d", descendingMillis(t), math.MaxInt64-id)
}

// ascendingMillis and descendingMillis map t onto unsigned keys that keep
// their order across the whole int64 millisecond range, pre-1970 included.
func ascendingMillis(t time.Time) uint64 {
	return uint64(t.UnixMilli()) ^ (1 << 63)
}

func descendingMillis(t time.Time) uint64 {
	return math.MaxUint64 - ascendingMillis(t)
}

// Serialization helpers
func serialize(v interface{}) ([]byte, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, &storage.SerializationError{
			Operation: "marshal",
			Cause:     err,
		}
	}
	return data, nil
}

func deserialize(data []byte, v interface{}) error {
	if err := json.Unmarshal(data, v); err != nil {
		return &storage.SerializationError{
			Operation: "unmarshal",
			Cause:     err,
		}
	}
	return nil
}

func encodeID(id int64) []byte {
	return []byte(strconv.FormatInt(id, 10))
}

func decodeID(val []byte) (int64, error) {
	id, err := strconv.ParseInt(string(val), 10, 64)
	if err != nil {
		return 0, &storage.SerializationError{Operation: "decode id", Cause: err}
	}
	return id, nil
}

// nextID hands out monotonically increasing ids per entity. Leased ranges
// that were not used before a restart are skipped.
func (b *BadgerStorage) nextID(entity string) (int64, error) {
	b.seqMu.Lock()
	defer b.seqMu.Unlock()

	seq, ok := b.seqs[entity]
	if !ok {
		var err error
		seq, err = b.db.GetSequence([]byte("seq:"+entity), seqBandwidth)
		if err != nil {
			return 0, err
		}
		b.seqs[entity] = seq
	}

	n, err := seq.Next()
	if err != nil {
		return 0, err
	}
	return int64(n) + 1, nil
}

// update runs fn in a read-write transaction, retrying on conflicts.
func (b *BadgerStorage) update(fn func(txn *badger.Txn) error) error {
	var err error
	for i := 0; i < maxRetries; i++ {
		err = b.db.Update(fn)
		if !errors.Is(err, badger.ErrConflict) {
			return err
		}
	}
	return err
}

func getJSON(txn *badger.Txn, key []byte, v interface{}) error {
	item, err := txn.Get(key)
	if err != nil {
		return err
	}
	return item.Value(func(val []byte) error {
		return deserialize(val, v)
	})
}

func setJSON(txn *badger.Txn, key []byte, v interface{}) error {
	data, err := serialize(v)
	if err != nil {
		return err
	}
	return txn.Set(key, data)
}

// scanIDs walks an index prefix in key order and returns the ids stored as
// values, stopping after limit entries when limit > 0.
func scanIDs(txn *badger.Txn, prefix []byte, limit int) ([]int64, error) {
	opts := badger.DefaultIteratorOptions
	opts.Prefix = prefix
	opts.PrefetchValues = false

	it := txn.NewIterator(opts)
	defer it.Close()

	var ids []int64
	for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
		var id int64
		err := it.Item().Value(func(val []byte) error {
			var derr error
			id, derr = decodeID(val)
			return derr
		})
		if err != nil {
			return nil, err
		}
		ids = append(ids, id)
		if limit > 0 && len(ids) >= limit {
			break
		}
	}
	return ids, nil
}

// CreateUser stores a new user, assigning its ID.
func (b *BadgerStorage) CreateUser(ctx context.Context, u *storage.User) error {
	id, err := b.nextID("user")
	if err != nil {
		return &storage.StorageUnavailableError{Cause: err}
	}

	u.ID = id
	u.CreatedAt = storage.Timestamp(u.CreatedAt)
	if u.ResumeMode == "" {
		u.ResumeMode = storage.DefaultResumeMode
	}

	return b.update(func(txn *badger.Txn) error {
		if _, err := txn.Get(userEmailKey(u.Email)); err == nil {
			return &storage.DuplicateKeyError{EntityType: "user", Key: u.Email}
		} else if !errors.Is(err, badger.ErrKeyNotFound) {
			return err
		}

		if err := setJSON(txn, userKey(u.ID), u); err != nil {
			return err
		}
		return txn.Set(userEmailKey(u.Email), encodeID(u.ID))
	})
}

// GetUser retrieves a user by ID.
func (b *BadgerStorage) GetUser(ctx context.Context, id int64) (*storage.User, error) {
	var u storage.User
	err := b.db.View(func(txn *badger.Txn) error {
		return getJSON(txn, userKey(id), &u)
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, storage.NewNotFound("user", id)
	}
	if err != nil {
		return nil, err
	}
	return &u, nil
}

// GetUserByEmail retrieves a user by email.
func (b *BadgerStorage) GetUserByEmail(ctx context.Context, email string) (*storage.User, error) {
	var u storage.User
	err := b.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(userEmailKey(email))
		if err != nil {
			return err
		}
		var id int64
		if err := item.Value(func(val []byte) error {
			var derr error
			id, derr = decodeID(val)
			return derr
		}); err != nil {
			return err
		}
		return getJSON(txn, userKey(id), &u)
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, &storage.NotFoundError{EntityType: "user", ID: email}
	}
	if err != nil {
		return nil, err
	}
	return &u, nil
}

// UpdateResumeMode sets a user's preferred resume mode.
func (b *BadgerStorage) UpdateResumeMode(ctx context.Context, userID int64, mode string) error {
	err := b.update(func(txn *badger.Txn) error {
		var u storage.User
		if err := getJSON(txn, userKey(userID), &u); err != nil {
			return err
		}
		u.ResumeMode = mode
		return setJSON(txn, userKey(userID), &u)
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return storage.NewNotFound("user", userID)
	}
	return err
}

// CreateProject stores a new project, assigning its ID.
func (b *BadgerStorage) CreateProject(ctx context.Context, p *storage.Project) error {
	id, err := b.nextID("project")
	if err != nil {
		return &storage.StorageUnavailableError{Cause: err}
	}

	p.ID = id
	p.CreatedAt = storage.Timestamp(p.CreatedAt)

	return b.update(func(txn *badger.Txn) error {
		if err := setJSON(txn, projectKey(p.ID), p); err != nil {
			return err
		}
		return txn.Set(projectIndexUserKey(p), encodeID(p.ID))
	})
}

func ownedProject(txn *badger.Txn, projectID, userID int64) (*storage.Project, error) {
	var p storage.Project
	err := getJSON(txn, projectKey(projectID), &p)
	if errors.Is(err, badger.ErrKeyNotFound) || (err == nil && p.UserID != userID) {
		return nil, storage.NewNotFound("project", projectID)
	}
	if err != nil {
		return nil, err
	}
	return &p, nil
}

// GetProject retrieves a project owned by userID.
func (b *BadgerStorage) GetProject(ctx context.Context, projectID, userID int64) (*storage.Project, error) {
	var p *storage.Project
	err := b.db.View(func(txn *badger.Txn) error {
		var err error
		p, err = ownedProject(txn, projectID, userID)
		return err
	})
	if err != nil {
		return nil, err
	}
	return p, nil
}

// ListProjects lists a user's projects, newest first.
func (b *BadgerStorage) ListProjects(ctx context.Context, userID int64) ([]*storage.Project, error) {
	var result []*storage.Project
	err := b.db.View(func(txn *badger.Txn) error {
		ids, err := scanIDs(txn, projectIndexUserPrefix(userID), 0)
		if err != nil {
			return err
		}
		for _, id := range ids {
			var p storage.Project
			if err := getJSON(txn, projectKey(id), &p); err != nil {
				return err
			}
			result = append(result, &p)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// DeleteProject removes a project with its conversations and summaries.
// The project record is first swapped for a tombstone, so a save racing the
// delete fails its ownership check. The cascade then runs in write batches;
// a retry after an interruption resumes from the tombstone.
func (b *BadgerStorage) DeleteProject(ctx context.Context, projectID, userID int64) error {
	if err := b.retireProject(projectID, userID); err != nil {
		return err
	}

	var convs []*storage.Conversation
	err := b.db.View(func(txn *badger.Txn) error {
		ids, err := scanIDs(txn, conversationIndexProjectPrefix(projectID, userID), 0)
		if err != nil {
			return err
		}
		for _, id := range ids {
			var c storage.Conversation
			if err := getJSON(txn, conversationKey(id), &c); err != nil {
				return err
			}
			convs = append(convs, &c)
		}
		return nil
	})
	if err != nil {
		return err
	}

	wb := b.db.NewWriteBatch()
	defer wb.Cancel()

	for _, c := range convs {
		if err := wb.Delete(conversationKey(c.ID)); err != nil {
			return err
		}
		if err := wb.Delete(summaryKey(c.ID)); err != nil {
			return err
		}
		for _, k := range conversationIndexKeys(c) {
			if err := wb.Delete(k); err != nil {
				return err
			}
		}
	}
	if err := wb.Flush(); err != nil {
		return err
	}

	return b.update(func(txn *badger.Txn) error {
		return txn.Delete(projectTombstoneKey(projectID))
	})
}

// retireProject replaces the project record and its index entry with a
// tombstone. A tombstone left by an earlier attempt is accepted as is.
func (b *BadgerStorage) retireProject(projectID, userID int64) error {
	return b.update(func(txn *badger.Txn) error {
		p, err := ownedProject(txn, projectID, userID)
		if storage.IsNotFound(err) {
			var dead storage.Project
			terr := getJSON(txn, projectTombstoneKey(projectID), &dead)
			if errors.Is(terr, badger.ErrKeyNotFound) || (terr == nil && dead.UserID != userID) {
				return err
			}
			return terr
		}
		if err != nil {
			return err
		}
		if err := setJSON(txn, projectTombstoneKey(projectID), p); err != nil {
			return err
		}
		if err := txn.Delete(projectIndexUserKey(p)); err != nil {
			return err
		}
		return txn.Delete(projectKey(projectID))
	})
}

// SaveConversation stores a new conversation in a project owned by c.UserID.
func (b *BadgerStorage) SaveConversation(ctx context.Context, c *storage.Conversation) error {
	id, err := b.nextID("conversation")
	if err != nil {
		return &storage.StorageUnavailableError{Cause: err}
	}

	c.ID = id
	c.CreatedAt = storage.Timestamp(c.CreatedAt)

	return b.update(func(txn *badger.Txn) error {
		if _, err := ownedProject(txn, c.ProjectID, c.UserID); err != nil {
			return err
		}
		if err := setJSON(txn, conversationKey(c.ID), c); err != nil {
			return err
		}
		for _, k := range conversationIndexKeys(c) {
			if err := txn.Set(k, encodeID(c.ID)); err != nil {
				return err
			}
		}
		return nil
	})
}

// GetConversation retrieves a conversation owned by userID.
func (b *BadgerStorage) GetConversation(ctx context.Context, conversationID, userID int64) (*storage.Conversation, error) {
	var c storage.Conversation
	err := b.db.View(func(txn *badger.Txn) error {
		return getJSON(txn, conversationKey(conversationID), &c)
	})
	if errors.Is(err, badger.ErrKeyNotFound) || (err == nil && c.UserID != userID) {
		return nil, storage.NewNotFound("conversation", conversationID)
	}
	if err != nil {
		return nil, err
	}
	return &c, nil
}

// loadRecords fetches conversations and their summaries inside one read
// transaction.
func loadRecords(txn *badger.Txn, ids []int64) ([]*storage.ConversationRecord, error) {
	result := make([]*storage.ConversationRecord, 0, len(ids))
	for _, id := range ids {
		rec := &storage.ConversationRecord{}
		if err := getJSON(txn, conversationKey(id), &rec.Conversation); err != nil {
			return nil, err
		}

		var s storage.Summary
		err := getJSON(txn, summaryKey(id), &s)
		switch {
		case err == nil:
			rec.Summary = &s
		case !errors.Is(err, badger.ErrKeyNotFound):
			return nil, err
		}
		result = append(result, rec)
	}
	return result, nil
}

func (b *BadgerStorage) userRecords(userID int64, limit int) ([]*storage.ConversationRecord, error) {
	var result []*storage.ConversationRecord
	err := b.db.View(func(txn *badger.Txn) error {
		ids, err := scanIDs(txn, conversationIndexUserPrefix(userID), limit)
		if err != nil {
			return err
		}
		result, err = loadRecords(txn, ids)
		return err
	})
	return result, err
}

// ListConversations lists a user's conversations with summary status.
func (b *BadgerStorage) ListConversations(ctx context.Context, userID int64) ([]*storage.ConversationOverview, error) {
	recs, err := b.userRecords(userID, 0)
	if err != nil {
		return nil, err
	}
	result := make([]*storage.ConversationOverview, 0, len(recs))
	for _, rec := range recs {
		result = append(result, rec.Overview())
	}
	return result, nil
}

// RecentConversations returns up to limit conversations of the (project,
// user) pair, newest first, each with its summary.
func (b *BadgerStorage) RecentConversations(ctx context.Context, projectID, userID int64, limit int) ([]*storage.ConversationRecord, error) {
	if limit <= 0 {
		return nil, nil
	}

	var result []*storage.ConversationRecord
	err := b.db.View(func(txn *badger.Txn) error {
		ids, err := scanIDs(txn, conversationIndexProjectPrefix(projectID, userID), limit)
		if err != nil {
			return err
		}
		result, err = loadRecords(txn, ids)
		return err
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// LatestConversation returns the user's newest conversation.
func (b *BadgerStorage) LatestConversation(ctx context.Context, userID int64) (*storage.ConversationRecord, error) {
	recs, err := b.userRecords(userID, 1)
	if err != nil {
		return nil, err
	}
	if len(recs) == 0 {
		return nil, &storage.NotFoundError{EntityType: "conversation", ID: "latest"}
	}
	return recs[0], nil
}

// ListUnsummarized returns up to limit conversations without a summary, oldest first.
func (b *BadgerStorage) ListUnsummarized(ctx context.Context, limit int) ([]*storage.Conversation, error) {
	var result []*storage.Conversation
	err := b.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = conversationIndexCreatedPrefix
		opts.PrefetchValues = false

		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Seek(conversationIndexCreatedPrefix); it.ValidForPrefix(conversationIndexCreatedPrefix); it.Next() {
			var id int64
			if err := it.Item().Value(func(val []byte) error {
				var derr error
				id, derr = decodeID(val)
				return derr
			}); err != nil {
				return err
			}

			if _, err := txn.Get(summaryKey(id)); err == nil {
				continue
			} else if !errors.Is(err, badger.ErrKeyNotFound) {
				return err
			}

			var c storage.Conversation
			if err := getJSON(txn, conversationKey(id), &c); err != nil {
				return err
			}
			result = append(result, &c)
			if limit > 0 && len(result) >= limit {
				break
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// UpsertSummary creates or overwrites the summary of a conversation.
func (b *BadgerStorage) UpsertSummary(ctx context.Context, conversationID int64, content string, at time.Time) (*storage.Summary, error) {
	var s storage.Summary
	err := b.update(func(txn *badger.Txn) error {
		if _, err := txn.Get(conversationKey(conversationID)); err != nil {
			return err
		}

		s = storage.Summary{}
		err := getJSON(txn, summaryKey(conversationID), &s)
		if errors.Is(err, badger.ErrKeyNotFound) {
			id, err := b.nextID("summary")
			if err != nil {
				return err
			}
			s = storage.Summary{ID: id, ConversationID: conversationID}
		} else if err != nil {
			return err
		}

		s.Content = content
		s.UpdatedAt = storage.Timestamp(at)
		return setJSON(txn, summaryKey(conversationID), &s)
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, storage.NewNotFound("conversation", conversationID)
	}
	if err != nil {
		return nil, err
	}
	return &s, nil
}

// ListSummaries returns the summaries of a user's conversations, newest
// conversation first.
func (b *BadgerStorage) ListSummaries(ctx context.Context, userID int64) ([]*storage.Summary, error) {
	recs, err := b.userRecords(userID, 0)
	if err != nil {
		return nil, err
	}
	var result []*storage.Summary
	for _, rec := range recs {
		if rec.Summary != nil {
			result = append(result, rec.Summary)
		}
	}
	return result, nil
}

// Ping reports whether the database is open.
func (b *BadgerStorage) Ping(ctx context.Context) error {
	if b.db.IsClosed() {
		return &storage.StorageUnavailableError{Cause: errors.New("badger: database closed")}
	}
	return nil
}

// Close releases id sequences and closes the database.
func (b *BadgerStorage) Close() error {
	b.seqMu.Lock()
	for name, seq := range b.seqs {
		_ = seq.Release()
		delete(b.seqs, name)
	}
	b.seqMu.Unlock()

	if b.db.IsClosed() {
		return nil
	}
	return b.db.Close()
}

// RunGC runs value log garbage collection until nothing is reclaimed.
func (b *BadgerStorage) RunGC(discardRatio float64) error {
	for {
		err := b.db.RunValueLogGC(discardRatio)
		if errors.Is(err, badger.ErrNoRewrite) || errors.Is(err, badger.ErrRejected) {
			return nil
		}
		if err != nil {
			return err
		}
	}
}
