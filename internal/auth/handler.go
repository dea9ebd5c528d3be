package auth

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-contrib/sessions"
	"github.com/gin-gonic/gin"

	"github.com/yourusername/news-portal/internal/account"
	"github.com/yourusername/news-portal/internal/challenge"
)

// ImageCode は GET /api/user/image_code のハンドラーです。画像だけを返します。
func (m *Manager) ImageCode(c *gin.Context) {
	sid, err := challengeSessionID(c, true)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"code":    "SESSION_SAVE_FAILED",
			"message": "セッションの保存に失敗しました",
		})
		return
	}

	img, err := m.challenges.IssueImageChallenge(c.Request.Context(), sid)
	if err != nil {
		m.respondChallengeError(c, err)
		return
	}

	c.Header("Cache-Control", "no-store")
	c.Data(http.StatusOK, img.ContentType, img.Data)
}

// SmsCode は GET /api/user/sms_code のハンドラーです。
// 画像認証コードを照合し、成功した場合に SMS 認証コードを送信します。
func (m *Manager) SmsCode(c *gin.Context) {
	mobile := strings.TrimSpace(c.Query("mobile"))
	imageCode := strings.TrimSpace(c.Query("img_code"))
	if mobile == "" || imageCode == "" {
		c.JSON(http.StatusBadRequest, gin.H{
			"code":    "INVALID_INPUT",
			"message": "電話番号と画像認証コードを入力してください",
		})
		return
	}
	if err := account.ValidateMobile(mobile); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"code":    "INVALID_INPUT",
			"message": "電話番号の形式が正しくありません",
		})
		return
	}

	sid, err := challengeSessionID(c, false)
	if err != nil || sid == "" {
		m.respondChallengeError(c, challenge.ErrNoChallenge)
		return
	}

	dispatch, err := m.challenges.IssueSmsChallenge(c.Request.Context(), sid, mobile, imageCode)
	if err != nil {
		m.respondChallengeError(c, err)
		return
	}

	c.JSON(http.StatusAccepted, gin.H{
		"dispatchId": dispatch.ID,
		"expiresAt":  dispatch.ExpiresAt.UTC(),
	})
}

// Register は POST /api/user/register のハンドラーです。
// SMS 認証コードはパスワードの検証より先に消費されます。
func (m *Manager) Register(c *gin.Context) {
	mobile := strings.TrimSpace(c.PostForm("mobile"))
	password := c.PostForm("password")
	smsCode := strings.TrimSpace(c.PostForm("smscode"))
	if mobile == "" || password == "" || smsCode == "" {
		c.JSON(http.StatusBadRequest, gin.H{
			"code":    "INVALID_INPUT",
			"message": "登録情報が不足しています",
		})
		return
	}

	sid, err := challengeSessionID(c, false)
	if err != nil || sid == "" {
		m.respondChallengeError(c, challenge.ErrNoChallenge)
		return
	}

	verified, err := m.challenges.ConsumeSmsChallenge(c.Request.Context(), sid, smsCode)
	if err != nil {
		m.respondChallengeError(c, err)
		return
	}
	if verified.Mobile != mobile {
		// 別の番号に送ったコードでは登録させない
		m.respondChallengeError(c, challenge.ErrMismatch)
		return
	}

	user, err := m.accounts.Register(c.Request.Context(), mobile, password)
	if err != nil {
		switch {
		case errors.Is(err, account.ErrWeakPassword):
			c.JSON(http.StatusBadRequest, gin.H{
				"code":    "WEAK_PASSWORD",
				"message": "パスワードは6〜20文字の英数字と指定の記号で入力してください",
			})
		case errors.Is(err, account.ErrInvalidMobile):
			c.JSON(http.StatusBadRequest, gin.H{
				"code":    "INVALID_INPUT",
				"message": "電話番号の形式が正しくありません",
			})
		case errors.Is(err, account.ErrMobileTaken):
			c.JSON(http.StatusConflict, gin.H{
				"code":    "MOBILE_TAKEN",
				"message": "この電話番号は既に登録されています",
			})
		default:
			m.logger.Printf("register failed: %v", err)
			respondInternalError(c)
		}
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"userId":   user.ID,
		"nickName": user.NickName,
	})
}

// respondChallengeError は認証コードのエラーを HTTP レスポンスに変換します。
func (m *Manager) respondChallengeError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, challenge.ErrInvalidInput):
		c.JSON(http.StatusBadRequest, gin.H{
			"code":    "INVALID_INPUT",
			"message": "入力内容が不足しています",
		})
	case errors.Is(err, challenge.ErrNoChallenge):
		c.JSON(http.StatusBadRequest, gin.H{
			"code":    "CHALLENGE_MISSING",
			"message": "認証コードが無効です。もう一度取得してください",
		})
	case errors.Is(err, challenge.ErrMismatch):
		c.JSON(http.StatusBadRequest, gin.H{
			"code":    "CHALLENGE_MISMATCH",
			"message": "認証コードが正しくありません。もう一度取得してください",
		})
	case errors.Is(err, challenge.ErrDispatchFailure):
		m.logger.Printf("sms dispatch failed: %v", err)
		c.JSON(http.StatusBadGateway, gin.H{
			"code":    "DISPATCH_FAILED",
			"message": "SMS の送信に失敗しました。画像認証からやり直してください",
		})
	default:
		m.logger.Printf("challenge operation failed: %v", err)
		respondInternalError(c)
	}
}

// challengeSessionID はセッションに紐づく認証コード用のIDを返します。
// create が true でIDがない場合は新しく発行してセッションに保存します。
func challengeSessionID(c *gin.Context, create bool) (string, error) {
	session := sessions.Default(c)
	if sid, ok := session.Get(sessionKeyChallenge).(string); ok && sid != "" {
		return sid, nil
	}
	if !create {
		return "", nil
	}

	sid, err := generateToken()
	if err != nil {
		return "", err
	}
	session.Set(sessionKeyChallenge, sid)
	if err := session.Save(); err != nil {
		return "", err
	}
	return sid, nil
}
