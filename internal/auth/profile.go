package auth

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/yourusername/news-portal/internal/account"
)

// Index は GET /api/user/ のハンドラーです。ログイン中のユーザー情報を返します。
func (m *Manager) Index(c *gin.Context) {
	user, ok := m.currentUser(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, userPayload(user))
}

// UpdateBase は POST /api/user/base のハンドラーです。署名・ニックネーム・性別を更新します。
func (m *Manager) UpdateBase(c *gin.Context) {
	signature := c.PostForm("signature")
	nickName := c.PostForm("nick_name")
	genderRaw := c.PostForm("gender")
	if signature == "" || nickName == "" || genderRaw == "" {
		c.JSON(http.StatusBadRequest, gin.H{
			"code":    "INVALID_INPUT",
			"message": "情報をすべて入力してください",
		})
		return
	}
	gender, err := strconv.Atoi(genderRaw)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"code":    "INVALID_INPUT",
			"message": "gender は 0 または 1 で指定してください",
		})
		return
	}

	userID := c.GetInt64(ContextUserKey)
	user, err := m.accounts.UpdateProfile(c.Request.Context(), userID, account.Profile{
		Signature: signature,
		NickName:  nickName,
		Gender:    gender,
	})
	if err != nil {
		switch {
		case errors.Is(err, account.ErrInvalidProfile):
			c.JSON(http.StatusBadRequest, gin.H{
				"code":    "INVALID_INPUT",
				"message": err.Error(),
			})
		case errors.Is(err, account.ErrUserNotFound):
			c.JSON(http.StatusNotFound, gin.H{
				"code":    "USER_NOT_FOUND",
				"message": "ユーザーが見つかりません",
			})
		default:
			m.logger.Printf("update profile failed user=%d: %v", userID, err)
			respondInternalError(c)
		}
		return
	}

	c.JSON(http.StatusOK, userPayload(user))
}

func (m *Manager) currentUser(c *gin.Context) (*account.User, bool) {
	userID := c.GetInt64(ContextUserKey)
	user, err := m.accounts.Profile(c.Request.Context(), userID)
	if err != nil {
		if errors.Is(err, account.ErrUserNotFound) {
			c.JSON(http.StatusNotFound, gin.H{
				"code":    "USER_NOT_FOUND",
				"message": "ユーザーが見つかりません",
			})
			return nil, false
		}
		m.logger.Printf("load profile failed user=%d: %v", userID, err)
		respondInternalError(c)
		return nil, false
	}
	return user, true
}

func userPayload(user *account.User) gin.H {
	return gin.H{
		"userId":    user.ID,
		"mobile":    user.Mobile,
		"nickName":  user.NickName,
		"avatarUrl": user.AvatarURL,
		"signature": user.Signature,
		"gender":    user.Gender,
	}
}
