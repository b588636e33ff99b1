package analysis

import (
	"context"
	"sort"
	"sync"

	"github.com/hitoshi/sentilens/internal/model"
	"github.com/hitoshi/sentilens/internal/repository"
)

// memAnalysisRepo はテスト用のインメモリ分析リポジトリ。
type memAnalysisRepo struct {
	mu       sync.Mutex
	items    map[string]*model.Analysis
	findErr  error
	createFn func(a *model.Analysis) error
}

func newMemAnalysisRepo() *memAnalysisRepo {
	return &memAnalysisRepo{items: map[string]*model.Analysis{}}
}

func (r *memAnalysisRepo) Create(_ context.Context, a *model.Analysis) error {
	if r.createFn != nil {
		if err := r.createFn(a); err != nil {
			return err
		}
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	copied := *a
	r.items[a.ID] = &copied
	return nil
}

func (r *memAnalysisRepo) FindByID(_ context.Context, id string) (*model.Analysis, error) {
	if r.findErr != nil {
		return nil, r.findErr
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	a, ok := r.items[id]
	if !ok {
		return nil, nil
	}
	copied := *a
	return &copied, nil
}

func (r *memAnalysisRepo) List(_ context.Context, userID string, limit, offset int) ([]*model.Analysis, int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var all []*model.Analysis
	for _, a := range r.items {
		if userID == "" || a.UserID == userID {
			all = append(all, a)
		}
	}
	sort.Slice(all, func(i, j int) bool {
		if !all[i].CreatedAt.Equal(all[j].CreatedAt) {
			return all[i].CreatedAt.After(all[j].CreatedAt)
		}
		return all[i].ID > all[j].ID
	})
	total := len(all)
	if offset >= total {
		return []*model.Analysis{}, total, nil
	}
	end := offset + limit
	if end > total {
		end = total
	}
	return all[offset:end], total, nil
}

func (r *memAnalysisRepo) UpdateStatus(_ context.Context, id string, from, to model.AnalysisStatus) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	a, ok := r.items[id]
	if !ok || a.Status != from {
		return false, nil
	}
	a.Status = to
	return true, nil
}

func (r *memAnalysisRepo) UpdateDetails(_ context.Context, id string, d model.VideoDetails) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	a, ok := r.items[id]
	if !ok {
		return false, nil
	}
	if a.YouTube == nil {
		return false, repository.ErrUnsupported
	}
	a.YouTube.Title = d.Title
	a.YouTube.ChannelName = d.ChannelName
	a.YouTube.VideoDate = d.VideoDate
	return true, nil
}

// memPredictionRepo はテスト用のインメモリ予測リポジトリ。
type memPredictionRepo struct {
	mu    sync.Mutex
	items []*model.Prediction
	// rank は並び順の値を返す。
	rank func(p *model.Prediction) float64
}

func newMemPredictionRepo(source model.Source) *memPredictionRepo {
	rank := func(p *model.Prediction) float64 { return float64(p.LikeCount) }
	if source == model.SourceTwitter {
		rank = func(p *model.Prediction) float64 { return p.Tweet.PopularityScore }
	}
	return &memPredictionRepo{rank: rank}
}

func (r *memPredictionRepo) Create(_ context.Context, p *model.Prediction) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.items = append(r.items, p)
	return nil
}

func (r *memPredictionRepo) byHistory(historyID string) []*model.Prediction {
	var out []*model.Prediction
	for _, p := range r.items {
		if p.HistoryID == historyID {
			out = append(out, p)
		}
	}
	return out
}

func (r *memPredictionRepo) ListByHistoryID(_ context.Context, historyID string) ([]*model.Prediction, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := r.byHistory(historyID)
	sort.SliceStable(out, func(i, j int) bool { return r.rank(out[i]) > r.rank(out[j]) })
	return out, nil
}

func (r *memPredictionRepo) CountSentiments(_ context.Context, historyID string) (*model.SentimentCount, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c := &model.SentimentCount{}
	for _, p := range r.byHistory(historyID) {
		c.Total++
		switch p.Sentiment {
		case model.SentimentPositive:
			c.Positive++
		case model.SentimentNeutral:
			c.Neutral++
		case model.SentimentNegative:
			c.Negative++
		}
	}
	return c, nil
}

func (r *memPredictionRepo) DailySummary(_ context.Context, historyID string) ([]model.DailySentiment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	days := map[string]*model.DailySentiment{}
	for _, p := range r.byHistory(historyID) {
		key := p.PostedAt.UTC().Format("2006-01-02")
		d, ok := days[key]
		if !ok {
			d = &model.DailySentiment{Date: key}
			days[key] = d
		}
		switch p.Sentiment {
		case model.SentimentPositive:
			d.Positive++
		case model.SentimentNeutral:
			d.Neutral++
		case model.SentimentNegative:
			d.Negative++
		}
	}
	out := make([]model.DailySentiment, 0, len(days))
	for _, d := range days {
		out = append(out, *d)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Date < out[j].Date })
	return out, nil
}

func (r *memPredictionRepo) ListTopics(_ context.Context) ([]string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	seen := map[string]bool{}
	var topics []string
	for _, p := range r.items {
		if !seen[p.Topic] {
			seen[p.Topic] = true
			topics = append(topics, p.Topic)
		}
	}
	sort.Strings(topics)
	return topics, nil
}

var (
	_ repository.AnalysisRepository   = (*memAnalysisRepo)(nil)
	_ repository.PredictionRepository = (*memPredictionRepo)(nil)
)
