package jobs

import "time"

// Status は SMS 送信ジョブの状態を表します。
type Status string

const (
	StatusQueued  Status = "queued"
	StatusRunning Status = "running"
	StatusSent    Status = "sent"
	StatusFailed  Status = "failed"
)

// ErrorInfo は送信失敗時のエラー情報を保持します。
type ErrorInfo struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Record は送信ジョブの現在状態を表します。認証コードそのものは保存しません。
type Record struct {
	DispatchID string     `json:"dispatchId"`
	Mobile     string     `json:"mobile"` // 下4桁以外はマスク済み
	Status     Status     `json:"status"`
	Attempts   int        `json:"attempts"`
	GatewayID  string     `json:"gatewayId,omitempty"`
	Error      *ErrorInfo `json:"error,omitempty"`
	CreatedAt  time.Time  `json:"createdAt"`
	UpdatedAt  time.Time  `json:"updatedAt"`
	ExpiresAt  time.Time  `json:"expiresAt"`
}

// MaskMobile は電話番号の下4桁以外を * に置き換えます。
func MaskMobile(mobile string) string {
	if len(mobile) <= 4 {
		return mobile
	}
	masked := make([]byte, len(mobile))
	for i := range mobile {
		if i < len(mobile)-4 {
			masked[i] = '*'
		} else {
			masked[i] = mobile[i]
		}
	}
	return string(masked)
}
