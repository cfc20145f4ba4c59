package domain

import "fmt"

type AuthReason string

const (
	AuthUserNotFound  AuthReason = "user-not-found"
	AuthWrongPassword AuthReason = "wrong-password"
	AuthEmailInUse    AuthReason = "email-in-use"
	AuthWeakPassword  AuthReason = "weak-password"
	AuthInvalidEmail  AuthReason = "invalid-email"
	AuthNetwork       AuthReason = "network-failure"
	AuthUnknown       AuthReason = "unknown"
)

// AuthError is returned by the identity provider. Reason selects the text shown
// to the user and does not drive control flow.
type AuthError struct {
	Reason AuthReason
	Err    error
}

func (e *AuthError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("auth %s: %v", e.Reason, e.Err)
	}
	return "auth " + string(e.Reason)
}

func (e *AuthError) Unwrap() error { return e.Err }

func (e *AuthError) DisplayMessage() string {
	switch e.Reason {
	case AuthUserNotFound:
		return "Không tìm thấy tài khoản với email này."
	case AuthWrongPassword:
		return "Mật khẩu không chính xác."
	case AuthEmailInUse:
		return "Email này đã được sử dụng."
	case AuthWeakPassword:
		return "Mật khẩu quá yếu. Vui lòng chọn mật khẩu mạnh hơn."
	case AuthInvalidEmail:
		return "Email không hợp lệ."
	case AuthNetwork:
		return "Lỗi kết nối mạng. Vui lòng thử lại."
	default:
		return "Đã xảy ra lỗi. Vui lòng thử lại."
	}
}
