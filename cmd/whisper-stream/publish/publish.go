package publish

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/mattermost/mattermost/server/public/model"
)

const (
	httpUploadTimeout          = 30 * time.Second
	httpRequestTimeout         = 5 * time.Second
	maxUploadRetryAttempts     = 5
	uploadRetryAttemptWaitTime = 5 * time.Second
)

type APIClient interface {
	UploadFile(ctx context.Context, data []byte, channelID string, filename string) (*model.FileUploadResponse, *model.Response, error)
	CreatePost(ctx context.Context, post *model.Post) (*model.Post, *model.Response, error)
}

type Config struct {
	SiteURL   string
	AuthToken string
	ChannelID string
}

// Publisher posts exported transcripts to a Mattermost channel.
type Publisher struct {
	cfg       Config
	apiClient APIClient
	retryWait time.Duration
}

func New(cfg Config) *Publisher {
	apiClient := model.NewAPIv4Client(cfg.SiteURL)
	apiClient.SetToken(cfg.AuthToken)

	return &Publisher{
		cfg:       cfg,
		apiClient: apiClient,
		retryWait: uploadRetryAttemptWaitTime,
	}
}

// Publish uploads the file at path and creates a post with message that
// references it. Failed attempts are retried a bounded number of times.
func (p *Publisher) Publish(ctx context.Context, path, message string) (*model.Post, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read file: %w", err)
	}

	var lastErr error
	for i := 0; i < maxUploadRetryAttempts; i++ {
		if i > 0 {
			slog.Error("publish failed", slog.Duration("reattempt_time", p.retryWait), slog.String("err", lastErr.Error()))
			select {
			case <-ctx.Done():
				return nil, fmt.Errorf("failed to publish: %w", ctx.Err())
			case <-time.After(p.retryWait):
			}
		}

		post, err := p.publish(ctx, data, filepath.Base(path), message)
		if err != nil {
			lastErr = err
			continue
		}

		return post, nil
	}

	return nil, fmt.Errorf("failed to publish after %d attempts: %w", maxUploadRetryAttempts, lastErr)
}

func (p *Publisher) publish(ctx context.Context, data []byte, filename, message string) (*model.Post, error) {
	uploadCtx, cancelUpload := context.WithTimeout(ctx, httpUploadTimeout)
	defer cancelUpload()

	resp, _, err := p.apiClient.UploadFile(uploadCtx, data, p.cfg.ChannelID, filename)
	if err != nil {
		return nil, fmt.Errorf("failed to upload file: %w", err)
	}

	if len(resp.FileInfos) != 1 {
		return nil, fmt.Errorf("unexpected number of uploaded files: %d", len(resp.FileInfos))
	}

	postCtx, cancelPost := context.WithTimeout(ctx, httpRequestTimeout)
	defer cancelPost()

	post, _, err := p.apiClient.CreatePost(postCtx, &model.Post{
		ChannelId: p.cfg.ChannelID,
		Message:   message,
		FileIds:   model.StringArray{resp.FileInfos[0].Id},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create post: %w", err)
	}

	return post, nil
}
