package analysis

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/hitoshi/sentilens/internal/auth"
	"github.com/hitoshi/sentilens/internal/model"
	"github.com/hitoshi/sentilens/internal/repository"
)

// memUserRepo はシナリオテスト用のインメモリユーザーリポジトリ。
type memUserRepo struct {
	mu    sync.Mutex
	users map[string]*model.User
}

func (r *memUserRepo) find(match func(*model.User) bool) *model.User {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, u := range r.users {
		if match(u) {
			return u
		}
	}
	return nil
}

func (r *memUserRepo) FindByID(_ context.Context, id string) (*model.User, error) {
	return r.find(func(u *model.User) bool { return u.ID == id }), nil
}

func (r *memUserRepo) FindByUsername(_ context.Context, username string) (*model.User, error) {
	return r.find(func(u *model.User) bool { return u.Username == username }), nil
}

func (r *memUserRepo) FindByEmail(_ context.Context, email string) (*model.User, error) {
	return r.find(func(u *model.User) bool { return u.Email == email }), nil
}

func (r *memUserRepo) Create(_ context.Context, u *model.User) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.users[u.ID] = u
	return nil
}

func (r *memUserRepo) Update(ctx context.Context, u *model.User) error {
	return r.Create(ctx, u)
}

func (r *memUserRepo) DeleteByID(_ context.Context, id string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.users[id]
	delete(r.users, id)
	return ok, nil
}

var _ repository.UserRepository = (*memUserRepo)(nil)

// 登録からログイン、分析作成、予測取り込み、集計、アクセス制御までの一連の流れ。
func TestScenario_RegisterAnalyzeAndCount(t *testing.T) {
	ctx := context.Background()
	logger := slog.New(slog.NewJSONHandler(io.Discard, nil))

	tokens, err := auth.NewTokenIssuer(auth.TokenConfig{Secret: []byte("scenario-secret"), ExpiresIn: time.Hour})
	require.NoError(t, err)
	users := &memUserRepo{users: map[string]*model.User{}}
	authSvc := auth.NewService(users, auth.NewBcryptHasher(bcrypt.MinCost), tokens, logger)

	alice, err := authSvc.Register(ctx, auth.RegisterParams{Username: "alice", Email: "alice@example.com", Password: "password123", Role: model.RoleAnalyst})
	require.NoError(t, err)
	bob, err := authSvc.Register(ctx, auth.RegisterParams{Username: "bob", Email: "bob@example.com", Password: "password123"})
	require.NoError(t, err)

	verified, err := authSvc.ValidateCredentials(ctx, "alice", "password123")
	require.NoError(t, err)
	require.NotNil(t, verified)
	login, err := authSvc.Login(verified)
	require.NoError(t, err)
	claims, err := authSvc.VerifyToken(login.AccessToken)
	require.NoError(t, err)
	require.Equal(t, alice.ID, claims.UserID())

	f := newFixture(TwitterSource{})
	a, err := f.svc.CreateAnalysis(ctx, claims.UserID(), CreateAnalysisParams{
		Keyword: "x", SinceDate: "2023-01-01", UntilDate: "2023-01-07",
	})
	require.NoError(t, err)
	assert.Equal(t, model.StatusCollecting, a.Status)

	for _, s := range []model.Sentiment{model.SentimentPositive, model.SentimentPositive, model.SentimentNegative} {
		ingest(t, f, a.ID, s, "2023-01-03T09:00:00Z", 0)
	}

	count, err := f.svc.CountSentiments(ctx, a.ID, alice.ID)
	require.NoError(t, err)
	assert.Equal(t, model.SentimentCount{Total: 3, Positive: 2, Neutral: 0, Negative: 1}, *count)

	_, err = f.svc.GetAnalysis(ctx, a.ID, bob.ID)
	assert.Equal(t, model.ErrCodeAnalysisForbidden, errCode(t, err))
}
