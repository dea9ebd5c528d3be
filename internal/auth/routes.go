package auth

import "github.com/gin-gonic/gin"

// RegisterRoutes は /api/user 配下のルートを登録します。
func (m *Manager) RegisterRoutes(user *gin.RouterGroup) {
	// 未ログインでも叩けるもの（ログイン前はセッションがないので CSRF 検証は不要）
	user.GET("/image_code", m.ImageCode)
	user.GET("/sms_code", m.SmsCode)
	user.POST("/register", m.Register)
	user.POST("/login", m.Login)

	protected := user.Group("")
	protected.Use(m.RequireLogin(), m.VerifyCSRF())
	{
		protected.POST("/logout", m.Logout)
		protected.GET("/", m.Index)
		protected.GET("/base", m.Index)
		protected.POST("/base", m.UpdateBase)
	}
}
