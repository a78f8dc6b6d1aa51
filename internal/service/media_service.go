package service

import (
	"Relay/internal/api/config"
	"context"
	"fmt"
	log "log/slog"
	"net/http"
	"time"

	"github.com/go-resty/resty/v2"
)

// MediaVerifier 媒体资产校验：消息核心不存媒体内容，只在发送前向媒体服务确认资产存在且已就绪
type MediaVerifier interface {
	Verify(ctx context.Context, assetID string, ownerUserID uint64) (bool, error)
}

type mediaVerifierImpl struct {
	client *resty.Client
}

func NewMediaVerifier() MediaVerifier {
	client := resty.New().
		SetBaseURL(config.Cfg.Media.ServiceURL).
		SetTimeout(time.Duration(config.Cfg.Media.TimeoutMS) * time.Millisecond).
		SetRetryCount(1)
	return &mediaVerifierImpl{client: client}
}

type mediaAssetResp struct {
	ID     string `json:"id"`
	Status string `json:"status"`
	Owner  uint64 `json:"ownerUserId"`
}

// Verify 仅 ready 状态且归属匹配的资产可引用；媒体服务不可达视为校验失败而非放行
func (s *mediaVerifierImpl) Verify(ctx context.Context, assetID string, ownerUserID uint64) (bool, error) {
	var asset mediaAssetResp
	resp, err := s.client.R().
		SetContext(ctx).
		SetResult(&asset).
		Get(fmt.Sprintf("/internal/assets/%s", assetID))
	if err != nil {
		log.Error("media asset lookup failed", "assetId", assetID, "err", err)
		return false, err
	}
	if resp.StatusCode() == http.StatusNotFound {
		return false, nil
	}
	if resp.IsError() {
		return false, fmt.Errorf("media service status %d", resp.StatusCode())
	}
	return asset.Status == "ready" && asset.Owner == ownerUserID, nil
}
