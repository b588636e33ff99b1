// Package youtube はYouTube Data APIとの連携機能を提供する。
// 動画詳細の取得クライアントと、未取得の分析へ詳細を補完するバッチジョブを含む。
package youtube

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/hitoshi/sentilens/internal/model"
)

const (
	// DefaultEndpoint はvideos.listのエンドポイント。
	DefaultEndpoint = "https://www.googleapis.com/youtube/v3/videos"
	// maxIDsPerRequest は1リクエストあたりの最大動画ID数。
	maxIDsPerRequest = 50
)

// videoListResponse はvideos.list（part=snippet）の応答のうち使用する部分。
type videoListResponse struct {
	Items []struct {
		ID      string `json:"id"`
		Snippet struct {
			Title        string    `json:"title"`
			ChannelTitle string    `json:"channelTitle"`
			PublishedAt  time.Time `json:"publishedAt"`
		} `json:"snippet"`
	} `json:"items"`
}

// apiErrorResponse はAPIエラー時の応答。
type apiErrorResponse struct {
	Error struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

// Client はYouTube Data APIのクライアント。
type Client struct {
	http     *resty.Client
	logger   *slog.Logger
	apiKey   string
	endpoint string
}

// NewClient はClientを生成する。
// httpClientには宛先検証済みのクライアントを渡す（security.EndpointGuard.NewClient）。
func NewClient(httpClient *http.Client, apiKey, endpoint string, logger *slog.Logger) *Client {
	if endpoint == "" {
		endpoint = DefaultEndpoint
	}
	return &Client{
		http: resty.NewWithClient(httpClient).
			SetHeader("Accept", "application/json").
			SetHeader("User-Agent", "sentilens/1.0"),
		logger:   logger,
		apiKey:   apiKey,
		endpoint: endpoint,
	}
}

// GetVideoDetails は複数動画の詳細を一括取得する。
// IDは最大50件まで。削除済みや非公開の動画は結果に含まれない。
func (c *Client) GetVideoDetails(ctx context.Context, videoIDs []string) (map[string]model.VideoDetails, error) {
	if len(videoIDs) == 0 {
		return map[string]model.VideoDetails{}, nil
	}
	if len(videoIDs) > maxIDsPerRequest {
		return nil, fmt.Errorf("動画IDの数が上限を超えています: %d > %d", len(videoIDs), maxIDsPerRequest)
	}

	var result videoListResponse
	var apiErr apiErrorResponse
	resp, err := c.http.R().
		SetContext(ctx).
		SetQueryParams(map[string]string{
			"part": "snippet",
			"id":   strings.Join(videoIDs, ","),
			"key":  c.apiKey,
		}).
		SetResult(&result).
		SetError(&apiErr).
		Get(c.endpoint)
	if err != nil {
		c.logger.Error("YouTube APIの呼び出しに失敗しました",
			slog.String("error", err.Error()),
			slog.Int("video_count", len(videoIDs)),
		)
		return nil, fmt.Errorf("YouTube APIの呼び出しに失敗しました: %w", err)
	}
	if resp.IsError() {
		c.logger.Error("YouTube APIがエラーステータスを返しました",
			slog.Int("http_status", resp.StatusCode()),
			slog.String("message", apiErr.Error.Message),
			slog.Int("video_count", len(videoIDs)),
		)
		return nil, fmt.Errorf("YouTube APIがステータス %d を返しました", resp.StatusCode())
	}

	details := make(map[string]model.VideoDetails, len(result.Items))
	for _, item := range result.Items {
		details[item.ID] = model.VideoDetails{
			Title:       item.Snippet.Title,
			ChannelName: item.Snippet.ChannelTitle,
			VideoDate:   item.Snippet.PublishedAt.UTC(),
		}
	}
	return details, nil
}
