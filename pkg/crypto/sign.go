package crypto

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
)

// sign.go - подпись приватных запросов к REST API биржи
//
// Binance подписывает query string запроса HMAC-SHA256
// секретным ключом аккаунта, подпись в hex нижним регистром
// добавляется параметром signature.

// SignHMAC256 возвращает hex-подпись payload ключом secret
func SignHMAC256(payload, secret string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(payload))
	return hex.EncodeToString(mac.Sum(nil))
}

// VerifyHMAC256 проверяет подпись в константное время
func VerifyHMAC256(payload, secret, signature string) bool {
	expected := SignHMAC256(payload, secret)
	return hmac.Equal([]byte(expected), []byte(signature))
}
