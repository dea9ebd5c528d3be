package main

import (
	"log"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	redis "github.com/redis/go-redis/v9"

	"github.com/yourusername/news-portal/internal/config"
	"github.com/yourusername/news-portal/internal/jobs"
	"github.com/yourusername/news-portal/internal/sms"
)

// setupDispatch はキュー経由の SMS 送信ドライバーを組み立てます。
// 戻り値の関数は状態保存用 Redis クライアントを閉じます。
func setupDispatch(cfg *config.Config, logger *log.Logger) (*jobs.Manager, func() error, error) {
	opt, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		return nil, nil, err
	}

	redisClient := redis.NewClient(opt)
	store := jobs.NewStore(redisClient, cfg.DispatchRecordTTL)
	gateway := sms.NewGatewayClient(cfg.SMSGatewayAPIKey, cfg.SMSGatewayURL, cfg.SMSSenderID, cfg.SMSDispatchTimeout)
	manager, err := jobs.NewManager(cfg, gateway, store, logger)
	if err != nil {
		_ = redisClient.Close()
		return nil, nil, err
	}
	return manager, redisClient.Close, nil
}

func dispatchStatusHandler(manager *jobs.Manager) gin.HandlerFunc {
	return func(c *gin.Context) {
		dispatchID := c.Param("id")
		if strings.TrimSpace(dispatchID) == "" {
			c.JSON(http.StatusBadRequest, gin.H{
				"code":    "INVALID_INPUT",
				"message": "dispatchId を指定してください。",
			})
			return
		}

		record, err := manager.GetRecord(c.Request.Context(), dispatchID)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{
				"code":    "INTERNAL_ERROR",
				"message": "送信状況の取得に失敗しました。",
			})
			return
		}
		if record == nil {
			c.JSON(http.StatusNotFound, gin.H{
				"code":    "DISPATCH_NOT_FOUND",
				"message": "指定された送信は存在しません。",
			})
			return
		}

		payload := gin.H{
			"dispatchId": record.DispatchID,
			"status":     record.Status,
			"mobile":     record.Mobile,
			"attempts":   record.Attempts,
			"updatedAt":  record.UpdatedAt,
		}
		if record.Error != nil {
			payload["error"] = record.Error
		}

		c.JSON(http.StatusOK, payload)
	}
}
