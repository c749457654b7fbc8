package services

import (
	"context"
	"database/sql"
	"fmt"
	"slices"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/dmitrijs2005/gophchat/internal/common"
	"github.com/dmitrijs2005/gophchat/internal/dbx"
	"github.com/dmitrijs2005/gophchat/internal/server/models"
	"github.com/dmitrijs2005/gophchat/internal/server/repositories/conversations"
	"github.com/dmitrijs2005/gophchat/internal/server/repositories/messages"
	"github.com/dmitrijs2005/gophchat/internal/server/repositories/users"
)

func newSQLMockDB(t *testing.T) (*sql.DB, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New error: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return db, mock
}

type fakeUsersRepo struct {
	byName map[string]*models.User
	nextID int64
	err    error

	searchQuery   string
	searchExclude int64
	searchLimit   int
}

func newFakeUsersRepo() *fakeUsersRepo {
	return &fakeUsersRepo{byName: map[string]*models.User{}}
}

func (f *fakeUsersRepo) Create(_ context.Context, u *models.User) (*models.User, error) {
	if f.err != nil {
		return nil, f.err
	}
	if _, ok := f.byName[u.UserName]; ok {
		return nil, common.ErrorAlreadyExists
	}
	f.nextID++
	u.ID = f.nextID
	u.CreatedAt = time.Now()
	f.byName[u.UserName] = u
	return u, nil
}

func (f *fakeUsersRepo) GetUserByLogin(_ context.Context, login string) (*models.User, error) {
	if f.err != nil {
		return nil, f.err
	}
	u, ok := f.byName[login]
	if !ok {
		return nil, common.ErrorNotFound
	}
	return u, nil
}

func (f *fakeUsersRepo) GetByID(_ context.Context, id int64) (*models.User, error) {
	if f.err != nil {
		return nil, f.err
	}
	for _, u := range f.byName {
		if u.ID == id {
			return u, nil
		}
	}
	return nil, common.ErrorNotFound
}

func (f *fakeUsersRepo) Search(_ context.Context, query string, excludeID int64, limit int) ([]models.Participant, error) {
	f.searchQuery, f.searchExclude, f.searchLimit = query, excludeID, limit
	return []models.Participant{{ID: 9, UserName: "found"}}, nil
}

type fakeConvRepo struct {
	participants map[int64][]int64
	nextID       int64
	err          error
	lockErr      error
	created      int
	calls        []string
}

func newFakeConvRepo() *fakeConvRepo {
	return &fakeConvRepo{participants: map[int64][]int64{}}
}

func (f *fakeConvRepo) Create(context.Context) (*models.Conversation, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.nextID++
	f.created++
	f.participants[f.nextID] = nil
	return &models.Conversation{ID: f.nextID, CreatedAt: time.Now()}, nil
}

func (f *fakeConvRepo) AddParticipant(_ context.Context, conversationID, userID int64) error {
	f.participants[conversationID] = append(f.participants[conversationID], userID)
	slices.Sort(f.participants[conversationID])
	return nil
}

func (f *fakeConvRepo) LockPair(_ context.Context, a, b int64) error {
	f.calls = append(f.calls, fmt.Sprintf("lock %d-%d", min(a, b), max(a, b)))
	return f.lockErr
}

func (f *fakeConvRepo) FindDirect(_ context.Context, a, b int64) (int64, error) {
	f.calls = append(f.calls, "find")
	if f.err != nil {
		return 0, f.err
	}
	want := []int64{min(a, b), max(a, b)}
	for id := int64(1); id <= f.nextID; id++ {
		if slices.Equal(f.participants[id], want) {
			return id, nil
		}
	}
	return 0, common.ErrorNotFound
}

func (f *fakeConvRepo) ParticipantsOf(_ context.Context, id int64) ([]int64, error) {
	if f.err != nil {
		return nil, f.err
	}
	return slices.Clone(f.participants[id]), nil
}

func (f *fakeConvRepo) IsParticipant(_ context.Context, id, userID int64) (bool, error) {
	if f.err != nil {
		return false, f.err
	}
	return slices.Contains(f.participants[id], userID), nil
}

func (f *fakeConvRepo) ListForUser(_ context.Context, userID int64) ([]*models.ConversationSummary, error) {
	var out []*models.ConversationSummary
	for id := int64(1); id <= f.nextID; id++ {
		if slices.Contains(f.participants[id], userID) {
			out = append(out, &models.ConversationSummary{ID: id})
		}
	}
	return out, nil
}

func (f *fakeConvRepo) GetForUser(_ context.Context, id, userID int64) (*models.ConversationSummary, error) {
	if !slices.Contains(f.participants[id], userID) {
		return nil, common.ErrorNotFound
	}
	return &models.ConversationSummary{ID: id}, nil
}

type fakeMessagesRepo struct {
	conversationOf map[int64]int64
	page           []*models.Message
	readers        map[int64][]int64
	created        []models.NewMessage
	appended       [][2]int64

	pageArgs    [3]int64
	readerRange [2]int64
}

func (f *fakeMessagesRepo) Create(_ context.Context, m models.NewMessage) (*models.Message, error) {
	f.created = append(f.created, m)
	return &models.Message{ID: int64(len(f.created)), ConversationID: m.ConversationID, SenderID: m.SenderID,
		Type: m.Type, Content: m.Content, ReadBy: []int64{}}, nil
}

func (f *fakeMessagesRepo) ConversationOf(_ context.Context, messageID int64) (int64, error) {
	id, ok := f.conversationOf[messageID]
	if !ok {
		return 0, common.ErrorNotFound
	}
	return id, nil
}

func (f *fakeMessagesRepo) AppendReader(_ context.Context, messageID, userID int64) error {
	f.appended = append(f.appended, [2]int64{messageID, userID})
	return nil
}

func (f *fakeMessagesRepo) ListPage(_ context.Context, conversationID, beforeID int64, limit int) ([]*models.Message, error) {
	f.pageArgs = [3]int64{conversationID, beforeID, int64(limit)}
	return f.page, nil
}

func (f *fakeMessagesRepo) ReadersInRange(_ context.Context, _, fromID, toID int64) (map[int64][]int64, error) {
	f.readerRange = [2]int64{fromID, toID}
	return f.readers, nil
}

type fakeRepoManager struct {
	u *fakeUsersRepo
	c *fakeConvRepo
	m *fakeMessagesRepo
}

func newFakeRepoManager() *fakeRepoManager {
	return &fakeRepoManager{u: newFakeUsersRepo(), c: newFakeConvRepo(), m: &fakeMessagesRepo{}}
}

func (m *fakeRepoManager) RunMigrations(context.Context, *sql.DB) error     { return nil }
func (m *fakeRepoManager) Users(dbx.DBTX) users.Repository                 { return m.u }
func (m *fakeRepoManager) Conversations(dbx.DBTX) conversations.Repository { return m.c }
func (m *fakeRepoManager) Messages(dbx.DBTX) messages.Repository           { return m.m }
