package repository

import (
	"cmp"
	"context"
	"maps"
	"slices"
	"sync"
	"time"

	"github.com/johndonneUZH/tracko-server-sub001/internal/model"
)

// MemoryStore はプロセス内メモリを使用したStore実装。
// `serve --in-memory`での起動とサービス層のテストで使用する。
// トランザクションは直列化され、fnがエラーを返すと開始時点のスナップショットに戻す。
type MemoryStore struct {
	txMu sync.Mutex // 書き込みの直列化
	mu   sync.RWMutex
	data memoryData
}

type memoryData struct {
	users       map[string]model.User
	projects    map[string]model.Project
	ideas       map[string]model.Idea
	votes       map[string]map[string]int // ideaID -> userID -> +1/-1
	comments    map[string]model.Comment
	messages    []model.Message
	changes     []model.ChangeEvent
	friendships []model.Friendship
}

func (d memoryData) clone() memoryData {
	votes := make(map[string]map[string]int, len(d.votes))
	for ideaID, v := range d.votes {
		votes[ideaID] = maps.Clone(v)
	}
	return memoryData{
		users:       maps.Clone(d.users),
		projects:    maps.Clone(d.projects),
		ideas:       maps.Clone(d.ideas),
		votes:       votes,
		comments:    maps.Clone(d.comments),
		messages:    slices.Clone(d.messages),
		changes:     slices.Clone(d.changes),
		friendships: slices.Clone(d.friendships),
	}
}

// NewMemoryStore は空のMemoryStoreを生成する。
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		data: memoryData{
			users:    make(map[string]model.User),
			projects: make(map[string]model.Project),
			ideas:    make(map[string]model.Idea),
			votes:    make(map[string]map[string]int),
			comments: make(map[string]model.Comment),
		},
	}
}

// WithinTx はfnを直列化されたトランザクション内で実行する。
// fnが失敗した場合と、コミット時点でctxが終了している場合はロールバックする。
// コミット前にキャンセルされたトランザクションを破棄するsql.Txと同じ結果になる。
func (s *MemoryStore) WithinTx(ctx context.Context, fn func(tx Repositories) error) error {
	s.txMu.Lock()
	defer s.txMu.Unlock()

	s.mu.RLock()
	snapshot := s.data.clone()
	s.mu.RUnlock()

	err := fn(memoryRepositories{store: s, inTx: true})
	if err == nil {
		err = ctx.Err()
	}
	if err != nil {
		s.mu.Lock()
		s.data = snapshot
		s.mu.Unlock()
		return err
	}
	return nil
}

func (s *MemoryStore) Users() UserRepository             { return memoryRepositories{store: s}.Users() }
func (s *MemoryStore) Projects() ProjectRepository       { return memoryRepositories{store: s}.Projects() }
func (s *MemoryStore) Ideas() IdeaRepository             { return memoryRepositories{store: s}.Ideas() }
func (s *MemoryStore) Comments() CommentRepository       { return memoryRepositories{store: s}.Comments() }
func (s *MemoryStore) Messages() MessageRepository       { return memoryRepositories{store: s}.Messages() }
func (s *MemoryStore) Changes() ChangeRepository         { return memoryRepositories{store: s}.Changes() }
func (s *MemoryStore) Friendships() FriendshipRepository { return memoryRepositories{store: s}.Friendships() }

type memoryRepositories struct {
	store *MemoryStore
	inTx  bool
}

func (r memoryRepositories) Users() UserRepository             { return memoryUserRepo{r} }
func (r memoryRepositories) Projects() ProjectRepository       { return memoryProjectRepo{r} }
func (r memoryRepositories) Ideas() IdeaRepository             { return memoryIdeaRepo{r} }
func (r memoryRepositories) Comments() CommentRepository       { return memoryCommentRepo{r} }
func (r memoryRepositories) Messages() MessageRepository       { return memoryMessageRepo{r} }
func (r memoryRepositories) Changes() ChangeRepository         { return memoryChangeRepo{r} }
func (r memoryRepositories) Friendships() FriendshipRepository { return memoryFriendshipRepo{r} }

// write はトランザクション外からの書き込みも直列化して実行する。
func (r memoryRepositories) write(fn func(d *memoryData) error) error {
	if !r.inTx {
		r.store.txMu.Lock()
		defer r.store.txMu.Unlock()
	}
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	return fn(&r.store.data)
}

func (r memoryRepositories) read(fn func(d *memoryData)) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()
	fn(&r.store.data)
}

// --- users ---

type memoryUserRepo struct{ memoryRepositories }

func (r memoryUserRepo) Create(_ context.Context, user *model.User) error {
	return r.write(func(d *memoryData) error {
		for _, u := range d.users {
			if u.Username == user.Username {
				return ErrDuplicate
			}
		}
		if _, ok := d.users[user.ID]; ok {
			return ErrDuplicate
		}
		d.users[user.ID] = *user
		return nil
	})
}

func (r memoryUserRepo) FindByID(_ context.Context, id string) (*model.User, error) {
	var found *model.User
	r.read(func(d *memoryData) {
		if u, ok := d.users[id]; ok {
			found = &u
		}
	})
	return found, nil
}

func (r memoryUserRepo) FindByUsername(_ context.Context, username string) (*model.User, error) {
	var found *model.User
	r.read(func(d *memoryData) {
		for _, u := range d.users {
			if u.Username == username {
				found = &u
				return
			}
		}
	})
	return found, nil
}

// --- projects ---

type memoryProjectRepo struct{ memoryRepositories }

func copyProject(p model.Project) *model.Project {
	p.Members = slices.Clone(p.Members)
	return &p
}

func (r memoryProjectRepo) Create(_ context.Context, project *model.Project) error {
	return r.write(func(d *memoryData) error {
		if _, ok := d.projects[project.ID]; ok {
			return ErrDuplicate
		}
		d.projects[project.ID] = *copyProject(*project)
		return nil
	})
}

func (r memoryProjectRepo) FindByID(_ context.Context, id string) (*model.Project, error) {
	var found *model.Project
	r.read(func(d *memoryData) {
		if p, ok := d.projects[id]; ok {
			found = copyProject(p)
		}
	})
	return found, nil
}

// LockByID はトランザクションが直列化されているためFindByIDと同じ。
func (r memoryProjectRepo) LockByID(ctx context.Context, id string) (*model.Project, error) {
	return r.FindByID(ctx, id)
}

func (r memoryProjectRepo) Update(_ context.Context, project *model.Project) error {
	return r.write(func(d *memoryData) error {
		p, ok := d.projects[project.ID]
		if !ok {
			return nil
		}
		p.Name = project.Name
		p.Description = project.Description
		p.UpdatedAt = project.UpdatedAt
		d.projects[project.ID] = p
		return nil
	})
}

func (r memoryProjectRepo) Delete(_ context.Context, id string) error {
	return r.write(func(d *memoryData) error {
		delete(d.projects, id)
		for ideaID, idea := range d.ideas {
			if idea.ProjectID == id {
				delete(d.ideas, ideaID)
				delete(d.votes, ideaID)
			}
		}
		for commentID, c := range d.comments {
			if c.ProjectID == id {
				delete(d.comments, commentID)
			}
		}
		d.messages = slices.DeleteFunc(d.messages, func(m model.Message) bool { return m.ProjectID == id })
		return nil
	})
}

func (r memoryProjectRepo) AddMember(_ context.Context, projectID, userID string) error {
	return r.write(func(d *memoryData) error {
		p, ok := d.projects[projectID]
		if !ok {
			return nil
		}
		if slices.Contains(p.Members, userID) {
			return ErrDuplicate
		}
		p.Members = append(slices.Clone(p.Members), userID)
		d.projects[projectID] = p
		return nil
	})
}

func (r memoryProjectRepo) RemoveMember(_ context.Context, projectID, userID string) error {
	return r.write(func(d *memoryData) error {
		p, ok := d.projects[projectID]
		if !ok {
			return nil
		}
		p.Members = slices.DeleteFunc(slices.Clone(p.Members), func(m string) bool { return m == userID })
		d.projects[projectID] = p
		return nil
	})
}

func (r memoryProjectRepo) ListByUser(_ context.Context, userID string) ([]*model.Project, error) {
	var result []*model.Project
	r.read(func(d *memoryData) {
		for _, p := range d.projects {
			if p.HasMember(userID) {
				result = append(result, copyProject(p))
			}
		}
	})
	slices.SortFunc(result, func(a, b *model.Project) int {
		return cmp.Or(a.CreatedAt.Compare(b.CreatedAt), cmp.Compare(a.ID, b.ID))
	})
	return result, nil
}

// --- ideas ---

type memoryIdeaRepo struct{ memoryRepositories }

func (r memoryIdeaRepo) withVotes(d *memoryData, idea model.Idea) *model.Idea {
	idea.Upvotes, idea.Downvotes = nil, nil
	voters := slices.Sorted(maps.Keys(d.votes[idea.ID]))
	for _, userID := range voters {
		if d.votes[idea.ID][userID] > 0 {
			idea.Upvotes = append(idea.Upvotes, userID)
		} else {
			idea.Downvotes = append(idea.Downvotes, userID)
		}
	}
	return &idea
}

func (r memoryIdeaRepo) Create(_ context.Context, idea *model.Idea) error {
	return r.write(func(d *memoryData) error {
		stored := *idea
		stored.Upvotes, stored.Downvotes = nil, nil
		d.ideas[idea.ID] = stored
		return nil
	})
}

func (r memoryIdeaRepo) FindByID(_ context.Context, projectID, ideaID string) (*model.Idea, error) {
	var found *model.Idea
	r.read(func(d *memoryData) {
		if idea, ok := d.ideas[ideaID]; ok && idea.ProjectID == projectID {
			found = r.withVotes(d, idea)
		}
	})
	return found, nil
}

func (r memoryIdeaRepo) Update(_ context.Context, idea *model.Idea) error {
	return r.write(func(d *memoryData) error {
		stored, ok := d.ideas[idea.ID]
		if !ok || stored.ProjectID != idea.ProjectID {
			return nil
		}
		stored.Title = idea.Title
		stored.Description = idea.Description
		stored.Status = idea.Status
		stored.UpdatedAt = idea.UpdatedAt
		d.ideas[idea.ID] = stored
		return nil
	})
}

func (r memoryIdeaRepo) Delete(_ context.Context, projectID, ideaID string) error {
	return r.write(func(d *memoryData) error {
		if idea, ok := d.ideas[ideaID]; !ok || idea.ProjectID != projectID {
			return nil
		}
		delete(d.ideas, ideaID)
		delete(d.votes, ideaID)
		for commentID, c := range d.comments {
			if c.IdeaID == ideaID {
				delete(d.comments, commentID)
			}
		}
		return nil
	})
}

func (r memoryIdeaRepo) ListByProject(_ context.Context, projectID string) ([]*model.Idea, error) {
	var result []*model.Idea
	r.read(func(d *memoryData) {
		for _, idea := range d.ideas {
			if idea.ProjectID == projectID {
				result = append(result, r.withVotes(d, idea))
			}
		}
	})
	slices.SortFunc(result, func(a, b *model.Idea) int {
		return cmp.Or(a.CreatedAt.Compare(b.CreatedAt), cmp.Compare(a.ID, b.ID))
	})
	return result, nil
}

func (r memoryIdeaRepo) SetVote(_ context.Context, ideaID, userID string, value int) error {
	return r.write(func(d *memoryData) error {
		if d.votes[ideaID] == nil {
			d.votes[ideaID] = make(map[string]int)
		}
		d.votes[ideaID][userID] = value
		return nil
	})
}

// --- comments ---

type memoryCommentRepo struct{ memoryRepositories }

func (r memoryCommentRepo) Create(_ context.Context, c *model.Comment) error {
	return r.write(func(d *memoryData) error {
		d.comments[c.ID] = *c
		return nil
	})
}

func (r memoryCommentRepo) FindByID(_ context.Context, ideaID, commentID string) (*model.Comment, error) {
	var found *model.Comment
	r.read(func(d *memoryData) {
		if c, ok := d.comments[commentID]; ok && c.IdeaID == ideaID {
			found = &c
		}
	})
	return found, nil
}

func (r memoryCommentRepo) Delete(_ context.Context, commentID string) error {
	return r.write(func(d *memoryData) error {
		delete(d.comments, commentID)
		return nil
	})
}

func (r memoryCommentRepo) ListByIdea(_ context.Context, ideaID string) ([]*model.Comment, error) {
	var result []*model.Comment
	r.read(func(d *memoryData) {
		for _, c := range d.comments {
			if c.IdeaID == ideaID {
				result = append(result, &c)
			}
		}
	})
	slices.SortFunc(result, func(a, b *model.Comment) int {
		return cmp.Or(a.CreatedAt.Compare(b.CreatedAt), cmp.Compare(a.ID, b.ID))
	})
	return result, nil
}

// --- messages ---

type memoryMessageRepo struct{ memoryRepositories }

func (r memoryMessageRepo) Create(_ context.Context, m *model.Message) error {
	return r.write(func(d *memoryData) error {
		d.messages = append(d.messages, *m)
		return nil
	})
}

func (r memoryMessageRepo) ListByProject(_ context.Context, projectID string) ([]*model.Message, error) {
	var result []*model.Message
	r.read(func(d *memoryData) {
		for _, m := range d.messages {
			if m.ProjectID == projectID {
				result = append(result, &m)
			}
		}
	})
	slices.SortFunc(result, func(a, b *model.Message) int {
		return cmp.Or(a.CreatedAt.Compare(b.CreatedAt), cmp.Compare(a.ID, b.ID))
	})
	return result, nil
}

// --- changes ---

type memoryChangeRepo struct{ memoryRepositories }

func (r memoryChangeRepo) Append(_ context.Context, e *model.ChangeEvent) error {
	return r.write(func(d *memoryData) error {
		d.changes = append(d.changes, *e)
		return nil
	})
}

func (r memoryChangeRepo) ListByProject(_ context.Context, projectID string, since time.Time) ([]*model.ChangeEvent, error) {
	return r.list(func(e model.ChangeEvent) bool { return e.ProjectID == projectID }, since), nil
}

func (r memoryChangeRepo) ListByActor(_ context.Context, actorID string, since time.Time) ([]*model.ChangeEvent, error) {
	return r.list(func(e model.ChangeEvent) bool { return e.ActorID == actorID }, since), nil
}

func (r memoryChangeRepo) list(match func(model.ChangeEvent) bool, since time.Time) []*model.ChangeEvent {
	var result []*model.ChangeEvent
	r.read(func(d *memoryData) {
		// 追記順の逆順が新しい順
		for i := len(d.changes) - 1; i >= 0; i-- {
			e := d.changes[i]
			if match(e) && !e.CreatedAt.Before(since) {
				result = append(result, &e)
			}
		}
	})
	return result
}

// --- friendships ---

type memoryFriendshipRepo struct{ memoryRepositories }

func (r memoryFriendshipRepo) Find(_ context.Context, userA, userB string) (*model.Friendship, error) {
	var found *model.Friendship
	r.read(func(d *memoryData) {
		for _, f := range d.friendships {
			if f.Involves(userA) && f.Involves(userB) {
				found = &f
				return
			}
		}
	})
	return found, nil
}

func (r memoryFriendshipRepo) Create(_ context.Context, friendship *model.Friendship) error {
	return r.write(func(d *memoryData) error {
		for _, f := range d.friendships {
			if f.Involves(friendship.RequesterID) && f.Involves(friendship.AddresseeID) {
				return ErrDuplicate
			}
		}
		d.friendships = append(d.friendships, *friendship)
		return nil
	})
}

func (r memoryFriendshipRepo) Accept(_ context.Context, requesterID, addresseeID string, at time.Time) error {
	return r.write(func(d *memoryData) error {
		for i, f := range d.friendships {
			if f.RequesterID == requesterID && f.AddresseeID == addresseeID {
				d.friendships[i].Status = model.FriendshipAccepted
				d.friendships[i].UpdatedAt = at
			}
		}
		return nil
	})
}

func (r memoryFriendshipRepo) Delete(_ context.Context, userA, userB string) error {
	return r.write(func(d *memoryData) error {
		d.friendships = slices.DeleteFunc(d.friendships, func(f model.Friendship) bool {
			return f.Involves(userA) && f.Involves(userB)
		})
		return nil
	})
}

func (r memoryFriendshipRepo) ListByUser(_ context.Context, userID string) ([]*model.Friendship, error) {
	var result []*model.Friendship
	r.read(func(d *memoryData) {
		for _, f := range d.friendships {
			if f.Involves(userID) {
				result = append(result, &f)
			}
		}
	})
	return result, nil
}

// compile-time interface check
var _ Store = (*MemoryStore)(nil)
