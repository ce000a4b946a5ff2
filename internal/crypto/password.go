// Package crypto はパスワードハッシュ化機能を提供する。
package crypto

import "golang.org/x/crypto/bcrypt"

// HashPassword はパスワードをbcryptでハッシュ化する。
func HashPassword(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}

// CheckPassword はパスワードがハッシュと一致するかを検証する。
// 一致しない場合はエラーを返す。
func CheckPassword(hash, password string) error {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password))
}
